// Package taskstate holds the per-task execution context pieces: the
// Scratchpad, TaskContext, JobContext and CommonCallArgs that cleanerdoc's
// TaskState/TaskStateView pair threads through Action/Condition/StringSource
// evaluation.
package taskstate

// Scratchpad is a per-task mutable workspace: a set of flag names and a
// name -> value string map, used to stash intermediate computations across
// rule applications within one task.
type Scratchpad struct {
	Flags map[string]struct{}
	Vars  map[string]string
}

// NewScratchpad returns an empty, ready-to-use Scratchpad.
func NewScratchpad() *Scratchpad {
	return &Scratchpad{Flags: make(map[string]struct{}), Vars: make(map[string]string)}
}

// Clone returns a deep copy, used by Action::RevertOnError to snapshot
// state before a potentially-failing delegate runs.
func (s *Scratchpad) Clone() *Scratchpad {
	clone := &Scratchpad{
		Flags: make(map[string]struct{}, len(s.Flags)),
		Vars:  make(map[string]string, len(s.Vars)),
	}
	for k := range s.Flags {
		clone.Flags[k] = struct{}{}
	}
	for k, v := range s.Vars {
		clone.Vars[k] = v
	}
	return clone
}

// Restore replaces s's contents with snapshot's, in place, so callers that
// hold a *Scratchpad reference (as TaskState does) observe the revert.
func (s *Scratchpad) Restore(snapshot *Scratchpad) {
	s.Flags = snapshot.Flags
	s.Vars = snapshot.Vars
}

func (s *Scratchpad) FlagIsSet(name string) bool {
	_, ok := s.Flags[name]
	return ok
}

func (s *Scratchpad) SetFlag(name string, value bool) {
	if value {
		s.Flags[name] = struct{}{}
	} else {
		delete(s.Flags, name)
	}
}

func (s *Scratchpad) Var(name string) (string, bool) {
	v, ok := s.Vars[name]
	return v, ok
}

// SetVar sets name to value, or deletes it when value is nil.
func (s *Scratchpad) SetVar(name string, value *string) {
	if value == nil {
		delete(s.Vars, name)
		return
	}
	s.Vars[name] = *value
}
