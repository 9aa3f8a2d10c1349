package taskstate

// TaskContext carries the per-task vars/flags supplied alongside the input
// URL (the "context" of a TaskConfig).
type TaskContext struct {
	Vars  map[string]string
	Flags map[string]struct{}
}

func (c *TaskContext) Var(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.Vars[name]
	return v, ok
}

func (c *TaskContext) FlagIsSet(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Flags[name]
	return ok
}

// JobContext carries values shared by every task in a Job (as opposed to
// TaskContext, which is per-task).
type JobContext struct {
	Vars  map[string]string
	Flags map[string]struct{}
}

func (c *JobContext) Var(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.Vars[name]
	return v, ok
}

func (c *JobContext) FlagIsSet(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Flags[name]
	return ok
}

// CommonCallArgs is the frame pushed onto a TaskStateView when evaluating a
// Common(name, args) call: flags, vars, and named typed sub-items supplied
// by the caller, resolved only in the topmost frame (no dynamic scoping
// across nested commons).
type CommonCallArgs struct {
	Flags map[string]struct{}
	Vars  map[string]string
	// Actions/Conditions/StringSources/etc. are stored as `any` here and
	// type-asserted by the cleanerdoc package, which owns those concrete
	// sum types and would otherwise create an import cycle with taskstate.
	Actions           map[string]any
	Conditions        map[string]any
	StringSources     map[string]any
	StringModifications map[string]any
	StringMatchers    map[string]any
}

func (a *CommonCallArgs) FlagIsSet(name string) bool {
	if a == nil {
		return false
	}
	_, ok := a.Flags[name]
	return ok
}

func (a *CommonCallArgs) Var(name string) (string, bool) {
	if a == nil {
		return "", false
	}
	v, ok := a.Vars[name]
	return v, ok
}
