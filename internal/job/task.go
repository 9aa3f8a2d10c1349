package job

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/edgecomet/urlcleaner/internal/cleanerdoc"
	"github.com/edgecomet/urlcleaner/internal/taskstate"
	"github.com/edgecomet/urlcleaner/pkg/urlmodel"
)

// TaskConfig is one materialized unit of work: a parsed URL plus its
// per-task context.
type TaskConfig struct {
	Url     *urlmodel.BetterUrl
	Context *taskstate.TaskContext
}

// LazyTaskConfig carries unparsed task input. Materialization (the URL
// parse and context validation) is deferred to worker threads so the
// producer thread stays cheap.
type LazyTaskConfig struct {
	// Raw is either a bare URL or a YAML/JSON mapping
	// {url, context?: {vars?, flags?}}.
	Raw string
	// Parsed short-circuits Materialize for hosts that already hold a
	// TaskConfig.
	Parsed *TaskConfig
}

// Materialize parses the raw input into a TaskConfig.
func (lc LazyTaskConfig) Materialize() (*TaskConfig, error) {
	if lc.Parsed != nil {
		return lc.Parsed, nil
	}
	raw := strings.TrimSpace(lc.Raw)
	if raw == "" {
		return nil, fmt.Errorf("job: empty task config")
	}
	if strings.HasPrefix(raw, "{") {
		var doc struct {
			Url     string `yaml:"url"`
			Context *struct {
				Vars  map[string]string `yaml:"vars"`
				Flags []string          `yaml:"flags"`
			} `yaml:"context"`
		}
		if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("job: task config: %w", err)
		}
		if doc.Url == "" {
			return nil, fmt.Errorf("job: task config: url is required")
		}
		u, err := urlmodel.Parse(doc.Url)
		if err != nil {
			return nil, fmt.Errorf("job: task config url %q: %w", doc.Url, err)
		}
		cfg := &TaskConfig{Url: u}
		if doc.Context != nil {
			ctx := &taskstate.TaskContext{Vars: doc.Context.Vars}
			if len(doc.Context.Flags) > 0 {
				ctx.Flags = make(map[string]struct{}, len(doc.Context.Flags))
				for _, f := range doc.Context.Flags {
					ctx.Flags[f] = struct{}{}
				}
			}
			cfg.Context = ctx
		}
		return cfg, nil
	}
	u, err := urlmodel.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("job: task url %q: %w", raw, err)
	}
	return &TaskConfig{Url: u}, nil
}

// LazyTask pairs an unmaterialized task config with borrowed job
// configuration. It is cheap to construct on the producer side.
type LazyTask struct {
	ID     uint64
	Config LazyTaskConfig
	job    *Job
}

// Make materializes the lazy task into a runnable Task. Failures (bad URL,
// malformed context) are reportable per task and never affect siblings.
func (lt *LazyTask) Make() (*Task, error) {
	cfg, err := lt.Config.Materialize()
	if err != nil {
		return nil, err
	}
	return &Task{ID: lt.ID, Config: cfg, job: lt.job}, nil
}

// Task is one materialized (URL, context) -> cleaned URL unit of work.
type Task struct {
	ID     uint64
	Config *TaskConfig
	job    *Job
}

// DoTaskError wraps a task failure with the input that produced it.
type DoTaskError struct {
	Input string
	Err   error
}

func (e *DoTaskError) Error() string {
	return fmt.Sprintf("task for %q failed: %v", e.Input, e.Err)
}

func (e *DoTaskError) Unwrap() error { return e.Err }

// Do instantiates a TaskState over a cloned URL and a fresh scratchpad and
// evaluates the cleaner's root action against it. The input URL is never
// mutated, so a failed task can still report its original input.
func (t *Task) Do() (*urlmodel.BetterUrl, error) {
	input := t.Config.Url.String()
	url := t.Config.Url.Clone()
	ts := &cleanerdoc.TaskState{
		ID:         t.ID,
		Url:        url,
		Scratchpad: taskstate.NewScratchpad(),
		Params:     t.job.params,
		Commons:    t.job.cfg.Cleaner.Commons,
		Context:    t.Config.Context,
		JobContext: t.job.cfg.Context,
		Cache:      t.job.cfg.Cache,
		Unthreader: t.job.cfg.Unthreader,
		Logger:     t.job.logger,
	}
	if err := t.job.cfg.Cleaner.Apply(ts); err != nil {
		return nil, &DoTaskError{Input: input, Err: err}
	}
	return url, nil
}
