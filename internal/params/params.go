// Package params implements Params and ParamsDiff: the engine's shared,
// copy-on-write configuration (flags, vars, sets, lists, maps, named
// partitionings, HTTP client config) and the diff type used to derive a
// per-task overlay without mutating the shared base.
package params

import (
	"fmt"

	"github.com/edgecomet/urlcleaner/internal/httpconfig"
)

// Map is a named lookup table: a present, non-null key returns its entry;
// a null key returns IfNull; any other miss returns Else.
type Map[T any] struct {
	Entries map[string]T
	IfNull  *T
	Else    *T
}

// Lookup resolves key (nil meaning "null") against the map's rules.
func (m Map[T]) Lookup(key *string) (T, bool) {
	var zero T
	if key == nil {
		if m.IfNull != nil {
			return *m.IfNull, true
		}
		if m.Else != nil {
			return *m.Else, true
		}
		return zero, false
	}
	if v, ok := m.Entries[*key]; ok {
		return v, true
	}
	if m.Else != nil {
		return *m.Else, true
	}
	return zero, false
}

// NamedPartitioning is an ordered set of disjoint named buckets over a
// universe of string values.
type NamedPartitioning struct {
	buckets      []string
	membership   map[string]string // value -> bucket name
}

// NewNamedPartitioning builds a partitioning from ordered (bucket, values)
// pairs, failing if any value appears in more than one bucket.
func NewNamedPartitioning(pairs []PartitionBucket) (*NamedPartitioning, error) {
	np := &NamedPartitioning{membership: make(map[string]string)}
	for _, pair := range pairs {
		np.buckets = append(np.buckets, pair.Name)
		for _, v := range pair.Values {
			if v == nil {
				continue
			}
			if existing, ok := np.membership[*v]; ok {
				return nil, fmt.Errorf("params: value %q appears in both %q and %q", *v, existing, pair.Name)
			}
			np.membership[*v] = pair.Name
		}
	}
	return np, nil
}

// PartitionBucket is one named bucket's ordered membership list, used to
// construct a NamedPartitioning.
type PartitionBucket struct {
	Name   string
	Values []*string
}

// PartitionOf returns the bucket name containing v, or ("", false) if v is
// absent from every bucket.
func (np *NamedPartitioning) PartitionOf(v string) (string, bool) {
	name, ok := np.membership[v]
	return name, ok
}

// Params is the engine's shared configuration. Every collection field is
// conceptually copy-on-write: Borrowed returns a lightweight handle whose
// mutations via ParamsDiff.Apply clone only the fields actually touched,
// never the original.
type Params struct {
	Flags              map[string]struct{}
	Vars               map[string]string
	Sets               map[string]map[string]struct{}
	Lists              map[string][]string
	Maps               map[string]Map[string]
	Partitionings      map[string]*NamedPartitioning
	HTTPClientConfig   httpconfig.HttpClientConfig
	ReadCache          bool
	WriteCache         bool
}

// New returns an empty Params with all collections initialized.
func New() *Params {
	return &Params{
		Flags:         make(map[string]struct{}),
		Vars:          make(map[string]string),
		Sets:          make(map[string]map[string]struct{}),
		Lists:         make(map[string][]string),
		Maps:          make(map[string]Map[string]),
		Partitionings: make(map[string]*NamedPartitioning),
	}
}

// Clone returns a deep copy of p.
func (p *Params) Clone() *Params {
	clone := &Params{
		Flags:            make(map[string]struct{}, len(p.Flags)),
		Vars:             make(map[string]string, len(p.Vars)),
		Sets:             make(map[string]map[string]struct{}, len(p.Sets)),
		Lists:            make(map[string][]string, len(p.Lists)),
		Maps:             make(map[string]Map[string], len(p.Maps)),
		Partitionings:    make(map[string]*NamedPartitioning, len(p.Partitionings)),
		HTTPClientConfig: p.HTTPClientConfig,
		ReadCache:        p.ReadCache,
		WriteCache:       p.WriteCache,
	}
	for k := range p.Flags {
		clone.Flags[k] = struct{}{}
	}
	for k, v := range p.Vars {
		clone.Vars[k] = v
	}
	for name, set := range p.Sets {
		cloned := make(map[string]struct{}, len(set))
		for v := range set {
			cloned[v] = struct{}{}
		}
		clone.Sets[name] = cloned
	}
	for name, list := range p.Lists {
		clone.Lists[name] = append([]string(nil), list...)
	}
	for name, m := range p.Maps {
		clone.Maps[name] = m
	}
	for name, part := range p.Partitionings {
		clone.Partitionings[name] = part
	}
	return clone
}

// Borrowed returns a shallow copy of p suitable for applying a ParamsDiff
// without mutating p itself: Apply replaces the touched fields on the copy
// rather than writing into the collections it shares with p.
func (p *Params) Borrowed() *Params {
	cp := *p
	return &cp
}

// FlagIsSet reports whether name is set.
func (p *Params) FlagIsSet(name string) bool {
	_, ok := p.Flags[name]
	return ok
}

// Var looks up a named var.
func (p *Params) Var(name string) (string, bool) {
	v, ok := p.Vars[name]
	return v, ok
}

// SetContains reports whether value is a member of the named set.
func (p *Params) SetContains(name, value string) bool {
	set, ok := p.Sets[name]
	if !ok {
		return false
	}
	_, ok = set[value]
	return ok
}

// List returns the named ordered list.
func (p *Params) List(name string) ([]string, bool) {
	l, ok := p.Lists[name]
	return l, ok
}
