package cleanerdoc

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/edgecomet/urlcleaner/internal/taskstate"
)

// Commons bundles named, reusable subtrees invoked by the *::Common
// variants of each sum type.
type Commons struct {
	Actions             map[string]Action
	Conditions          map[string]Condition
	StringSources       map[string]StringSource
	StringModifications map[string]StringModification
	StringMatchers      map[string]StringMatcher
}

// NewCommons returns an empty, ready-to-populate Commons.
func NewCommons() *Commons {
	return &Commons{
		Actions:             make(map[string]Action),
		Conditions:          make(map[string]Condition),
		StringSources:       make(map[string]StringSource),
		StringModifications: make(map[string]StringModification),
		StringMatchers:      make(map[string]StringMatcher),
	}
}

// UnmarshalYAML decodes a {actions?, conditions?, string_sources?,
// string_modifications?, string_matchers?} mapping into a Commons, each
// named entry dispatched through its family's Decode* function.
func (c *Commons) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Actions             map[string]yaml.Node `yaml:"actions"`
		Conditions          map[string]yaml.Node `yaml:"conditions"`
		StringSources       map[string]yaml.Node `yaml:"string_sources"`
		StringModifications map[string]yaml.Node `yaml:"string_modifications"`
		StringMatchers      map[string]yaml.Node `yaml:"string_matchers"`
	}
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("cleanerdoc: commons: %w", err)
	}
	*c = *NewCommons()
	for name, n := range raw.Actions {
		n := n
		act, err := DecodeAction(&n)
		if err != nil {
			return fmt.Errorf("cleanerdoc: commons.actions[%s]: %w", name, err)
		}
		c.Actions[name] = act
	}
	for name, n := range raw.Conditions {
		n := n
		cond, err := DecodeCondition(&n)
		if err != nil {
			return fmt.Errorf("cleanerdoc: commons.conditions[%s]: %w", name, err)
		}
		c.Conditions[name] = cond
	}
	for name, n := range raw.StringSources {
		n := n
		src, err := DecodeStringSource(&n)
		if err != nil {
			return fmt.Errorf("cleanerdoc: commons.string_sources[%s]: %w", name, err)
		}
		c.StringSources[name] = src
	}
	for name, n := range raw.StringModifications {
		n := n
		mod, err := DecodeStringModification(&n)
		if err != nil {
			return fmt.Errorf("cleanerdoc: commons.string_modifications[%s]: %w", name, err)
		}
		c.StringModifications[name] = mod
	}
	for name, n := range raw.StringMatchers {
		n := n
		matcher, err := DecodeStringMatcher(&n)
		if err != nil {
			return fmt.Errorf("cleanerdoc: commons.string_matchers[%s]: %w", name, err)
		}
		c.StringMatchers[name] = matcher
	}
	return nil
}

// CommonCall is the shared payload of every *::Common variant: the named
// subtree plus the arguments built into a CommonCallArgs frame for the
// callee.
type CommonCall struct {
	Name string    `yaml:"name"`
	Args *CallArgs `yaml:"args,omitempty"`
}

// CallArgs is the decoded form of a CommonCallArgs frame, as supplied at a
// Common(name, args) call site.
type CallArgs struct {
	Flags               []string
	Vars                map[string]string
	Actions             map[string]Action
	Conditions          map[string]Condition
	StringSources       map[string]StringSource
	StringModifications map[string]StringModification
	StringMatchers      map[string]StringMatcher
}

// UnmarshalYAML decodes a {flags?, vars?, actions?, conditions?,
// string_sources?, string_modifications?, string_matchers?} mapping.
func (a *CallArgs) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Flags               []string             `yaml:"flags"`
		Vars                map[string]string    `yaml:"vars"`
		Actions             map[string]yaml.Node `yaml:"actions"`
		Conditions          map[string]yaml.Node `yaml:"conditions"`
		StringSources       map[string]yaml.Node `yaml:"string_sources"`
		StringModifications map[string]yaml.Node `yaml:"string_modifications"`
		StringMatchers      map[string]yaml.Node `yaml:"string_matchers"`
	}
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("cleanerdoc: common call args: %w", err)
	}
	a.Flags = raw.Flags
	a.Vars = raw.Vars
	if len(raw.Actions) > 0 {
		a.Actions = make(map[string]Action, len(raw.Actions))
		for name, n := range raw.Actions {
			n := n
			act, err := DecodeAction(&n)
			if err != nil {
				return fmt.Errorf("cleanerdoc: common call args.actions[%s]: %w", name, err)
			}
			a.Actions[name] = act
		}
	}
	if len(raw.Conditions) > 0 {
		a.Conditions = make(map[string]Condition, len(raw.Conditions))
		for name, n := range raw.Conditions {
			n := n
			cond, err := DecodeCondition(&n)
			if err != nil {
				return fmt.Errorf("cleanerdoc: common call args.conditions[%s]: %w", name, err)
			}
			a.Conditions[name] = cond
		}
	}
	if len(raw.StringSources) > 0 {
		a.StringSources = make(map[string]StringSource, len(raw.StringSources))
		for name, n := range raw.StringSources {
			n := n
			src, err := DecodeStringSource(&n)
			if err != nil {
				return fmt.Errorf("cleanerdoc: common call args.string_sources[%s]: %w", name, err)
			}
			a.StringSources[name] = src
		}
	}
	if len(raw.StringModifications) > 0 {
		a.StringModifications = make(map[string]StringModification, len(raw.StringModifications))
		for name, n := range raw.StringModifications {
			n := n
			mod, err := DecodeStringModification(&n)
			if err != nil {
				return fmt.Errorf("cleanerdoc: common call args.string_modifications[%s]: %w", name, err)
			}
			a.StringModifications[name] = mod
		}
	}
	if len(raw.StringMatchers) > 0 {
		a.StringMatchers = make(map[string]StringMatcher, len(raw.StringMatchers))
		for name, n := range raw.StringMatchers {
			n := n
			matcher, err := DecodeStringMatcher(&n)
			if err != nil {
				return fmt.Errorf("cleanerdoc: common call args.string_matchers[%s]: %w", name, err)
			}
			a.StringMatchers[name] = matcher
		}
	}
	return nil
}

// buildCommonCallArgs converts the declarative CallArgs supplied at a call
// site into the taskstate.CommonCallArgs frame pushed for the callee. It
// is a structural copy, not an evaluation: each sub-item is evaluated
// lazily if and when the callee's CommonCallArg(name) resolves it.
func buildCommonCallArgs(call *CallArgs, _ *TaskStateView) *taskstate.CommonCallArgs {
	if call == nil {
		return nil
	}
	frame := &taskstate.CommonCallArgs{Vars: call.Vars}
	if len(call.Flags) > 0 {
		frame.Flags = make(map[string]struct{}, len(call.Flags))
		for _, f := range call.Flags {
			frame.Flags[f] = struct{}{}
		}
	}
	if len(call.Actions) > 0 {
		frame.Actions = make(map[string]any, len(call.Actions))
		for k, v := range call.Actions {
			frame.Actions[k] = v
		}
	}
	if len(call.Conditions) > 0 {
		frame.Conditions = make(map[string]any, len(call.Conditions))
		for k, v := range call.Conditions {
			frame.Conditions[k] = v
		}
	}
	if len(call.StringSources) > 0 {
		frame.StringSources = make(map[string]any, len(call.StringSources))
		for k, v := range call.StringSources {
			frame.StringSources[k] = v
		}
	}
	if len(call.StringModifications) > 0 {
		frame.StringModifications = make(map[string]any, len(call.StringModifications))
		for k, v := range call.StringModifications {
			frame.StringModifications[k] = v
		}
	}
	if len(call.StringMatchers) > 0 {
		frame.StringMatchers = make(map[string]any, len(call.StringMatchers))
		for k, v := range call.StringMatchers {
			frame.StringMatchers[k] = v
		}
	}
	return frame
}
