package params

import "github.com/edgecomet/urlcleaner/internal/httpconfig"

// SetDiff describes inserts/removals against one named set, plus whether
// the set should be created if absent or deleted outright.
type SetDiff struct {
	Init   bool
	Insert []string
	Remove []string
	Delete bool
}

// MapDiff describes an overlay onto one named Map[string].
type MapDiff struct {
	Init    bool
	SetIfNull *string
	SetElse   *string
	Entries   map[string]string
	Delete    bool
}

// ParamsDiff is a per-task overlay applied to a shared Params base. Apply
// clones only the fields it actually touches.
type ParamsDiff struct {
	SetFlags       []string
	UnsetFlags     []string
	SetVars        map[string]string
	UnsetVars      []string
	Sets           map[string]SetDiff
	Maps           map[string]MapDiff
	DeleteMaps     []string
	HTTPConfigDiff *httpconfig.HttpClientConfigDiff
	SetReadCache   *bool
	SetWriteCache  *bool
}

// Apply applies d to base in the spec's documented order: flags, vars,
// sets, maps, then the HTTP client config diff. base is mutated in place;
// callers that must preserve the original should Clone() first.
func (d ParamsDiff) Apply(base *Params) {
	applyFlags(base, d)
	applyVars(base, d)
	applySets(base, d)
	applyMaps(base, d)
	if d.HTTPConfigDiff != nil {
		base.HTTPClientConfig = d.HTTPConfigDiff.Apply(base.HTTPClientConfig)
	}
	if d.SetReadCache != nil {
		base.ReadCache = *d.SetReadCache
	}
	if d.SetWriteCache != nil {
		base.WriteCache = *d.SetWriteCache
	}
}

// ApplyMultiple is a non-consuming variant that borrows base's address but
// leaves d's slices/maps untouched (Apply already does not mutate d, so
// this is provided only to mirror the spec's named entry point).
func ApplyMultiple(base *Params, diffs ...ParamsDiff) {
	for _, d := range diffs {
		d.Apply(base)
	}
}

func applyFlags(base *Params, d ParamsDiff) {
	if len(d.SetFlags) == 0 && len(d.UnsetFlags) == 0 {
		return
	}
	flags := make(map[string]struct{}, len(base.Flags)+len(d.SetFlags))
	for k := range base.Flags {
		flags[k] = struct{}{}
	}
	for _, k := range d.SetFlags {
		flags[k] = struct{}{}
	}
	for _, k := range d.UnsetFlags {
		delete(flags, k)
	}
	base.Flags = flags
}

func applyVars(base *Params, d ParamsDiff) {
	if len(d.SetVars) == 0 && len(d.UnsetVars) == 0 {
		return
	}
	vars := make(map[string]string, len(base.Vars)+len(d.SetVars))
	for k, v := range base.Vars {
		vars[k] = v
	}
	for k, v := range d.SetVars {
		vars[k] = v
	}
	for _, k := range d.UnsetVars {
		delete(vars, k)
	}
	base.Vars = vars
}

func applySets(base *Params, d ParamsDiff) {
	if len(d.Sets) == 0 {
		return
	}
	sets := make(map[string]map[string]struct{}, len(base.Sets))
	for name, set := range base.Sets {
		sets[name] = set
	}
	for name, sd := range d.Sets {
		if sd.Delete {
			delete(sets, name)
			continue
		}
		// Any touched set is auto-created; Init is accepted for explicitness
		// but never changes the outcome.
		existing := sets[name]
		if existing == nil {
			existing = make(map[string]struct{})
		}
		cloned := make(map[string]struct{}, len(existing)+len(sd.Insert))
		for v := range existing {
			cloned[v] = struct{}{}
		}
		for _, v := range sd.Insert {
			cloned[v] = struct{}{}
		}
		for _, v := range sd.Remove {
			delete(cloned, v)
		}
		sets[name] = cloned
	}
	base.Sets = sets
}

func applyMaps(base *Params, d ParamsDiff) {
	if len(d.Maps) == 0 && len(d.DeleteMaps) == 0 {
		return
	}
	maps := make(map[string]Map[string], len(base.Maps))
	for name, m := range base.Maps {
		maps[name] = m
	}
	for name, md := range d.Maps {
		existing, ok := maps[name]
		if !ok && md.Init {
			existing = Map[string]{Entries: make(map[string]string)}
		}
		if existing.Entries == nil {
			existing.Entries = make(map[string]string)
		} else {
			cloned := make(map[string]string, len(existing.Entries))
			for k, v := range existing.Entries {
				cloned[k] = v
			}
			existing.Entries = cloned
		}
		for k, v := range md.Entries {
			existing.Entries[k] = v
		}
		if md.SetIfNull != nil {
			existing.IfNull = md.SetIfNull
		}
		if md.SetElse != nil {
			existing.Else = md.SetElse
		}
		maps[name] = existing
	}
	for _, name := range d.DeleteMaps {
		delete(maps, name)
	}
	base.Maps = maps
}
