package cleanerdoc

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CommandConfig describes an external process to run and capture the
// trimmed stdout of, backing StringSource::CommandOutput. Justified as
// stdlib-only: no example repo shells out through a third-party
// process-execution library (see DESIGN.md).
type CommandConfig struct {
	Program string
	Args    []string
	Stdin   StringSource
	Timeout time.Duration
}

// UnmarshalYAML decodes {program, args?, stdin?, timeout?}.
func (c *CommandConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Program string    `yaml:"program"`
		Args    []string  `yaml:"args"`
		Stdin   yaml.Node `yaml:"stdin"`
		Timeout string    `yaml:"timeout"`
	}
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("command config: %w", err)
	}
	if raw.Program == "" {
		return fmt.Errorf("command config: program is required")
	}
	c.Program = raw.Program
	c.Args = raw.Args
	if raw.Stdin.Kind != 0 {
		stdin, err := DecodeStringSource(&raw.Stdin)
		if err != nil {
			return err
		}
		c.Stdin = stdin
	}
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("command config: timeout: %w", err)
		}
		c.Timeout = d
	}
	return nil
}

// runCommand executes cfg, feeding it an optional stdin resolved from the
// task state, and returns its trimmed stdout as the produced value.
func runCommand(cfg CommandConfig, v *TaskStateView) (*string, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, cfg.Program, cfg.Args...)

	if cfg.Stdin != nil {
		stdin, err := cfg.Stdin.Get(v)
		if err != nil {
			return nil, err
		}
		if stdin != nil {
			cmd.Stdin = strings.NewReader(*stdin)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("cleanerdoc: command %q: %w: %s", cfg.Program, err, stderr.String())
	}

	out := strings.TrimRight(stdout.String(), "\n")
	return &out, nil
}
