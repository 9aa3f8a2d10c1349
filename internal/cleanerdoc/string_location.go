package cleanerdoc

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// StringLocation answers "where within a haystack should we test for a
// needle" — Anywhere, Start, End, or an index-bounded window — via Check.
type StringLocation interface {
	Check(haystack, needle string) (bool, error)
}

// DecodeStringLocation dispatches a YAML node into a concrete
// StringLocation by its single variant tag, or a bare string for
// no-payload variants (e.g. "Anywhere").
func DecodeStringLocation(node *yaml.Node) (StringLocation, error) {
	tag, payload, err := singleKeyTag(node)
	if err != nil {
		return nil, fmt.Errorf("string location: %w", err)
	}
	switch tag {
	case "Anywhere":
		return locAnywhere{}, nil
	case "Start":
		return locStart{}, nil
	case "End":
		return locEnd{}, nil
	case "At":
		var i int
		if err := decodePayload(payload, &i); err != nil {
			return nil, err
		}
		return locAt{I: i}, nil
	case "After":
		var i int
		if err := decodePayload(payload, &i); err != nil {
			return nil, err
		}
		return locAfter{I: i}, nil
	case "Before":
		var i int
		if err := decodePayload(payload, &i); err != nil {
			return nil, err
		}
		return locBefore{I: i}, nil
	case "Between":
		var raw struct {
			Start int `yaml:"start"`
			End   int `yaml:"end"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		return locBetween{Start: raw.Start, End: raw.End}, nil
	case "Not":
		inner, err := decodeChildLocation(payload)
		if err != nil {
			return nil, err
		}
		return locNot{Inner: inner}, nil
	case "All":
		items, err := decodeLocationList(payload)
		if err != nil {
			return nil, err
		}
		return locAll{Items: items}, nil
	case "Any":
		items, err := decodeLocationList(payload)
		if err != nil {
			return nil, err
		}
		return locAny{Items: items}, nil
	default:
		return nil, fmt.Errorf("string location: unknown variant %q", tag)
	}
}

func decodeChildLocation(payload *yaml.Node) (StringLocation, error) {
	if payload == nil {
		return nil, fmt.Errorf("string location: missing payload")
	}
	return DecodeStringLocation(payload)
}

func decodeLocationList(payload *yaml.Node) ([]StringLocation, error) {
	var nodes []yaml.Node
	if err := decodePayload(payload, &nodes); err != nil {
		return nil, err
	}
	items := make([]StringLocation, len(nodes))
	for i := range nodes {
		loc, err := DecodeStringLocation(&nodes[i])
		if err != nil {
			return nil, err
		}
		items[i] = loc
	}
	return items, nil
}

type locAnywhere struct{}

func (locAnywhere) Check(haystack, needle string) (bool, error) {
	return strings.Contains(haystack, needle), nil
}

type locStart struct{}

func (locStart) Check(haystack, needle string) (bool, error) {
	return strings.HasPrefix(haystack, needle), nil
}

type locEnd struct{}

func (locEnd) Check(haystack, needle string) (bool, error) {
	return strings.HasSuffix(haystack, needle), nil
}

// locAt tests that needle occurs starting exactly at byte index I.
type locAt struct{ I int }

func (l locAt) Check(haystack, needle string) (bool, error) {
	idx := resolveIndex(len(haystack), l.I)
	if idx < 0 || idx+len(needle) > len(haystack) {
		return false, nil
	}
	return haystack[idx:idx+len(needle)] == needle, nil
}

// locAfter tests the region strictly after index I.
type locAfter struct{ I int }

func (l locAfter) Check(haystack, needle string) (bool, error) {
	idx := resolveIndex(len(haystack), l.I)
	if idx < 0 || idx+1 > len(haystack) {
		return false, nil
	}
	return strings.Contains(haystack[idx+1:], needle), nil
}

// locBefore tests the region strictly before index I.
type locBefore struct{ I int }

func (l locBefore) Check(haystack, needle string) (bool, error) {
	idx := resolveIndex(len(haystack), l.I)
	if idx < 0 {
		idx = len(haystack)
	}
	if idx > len(haystack) {
		idx = len(haystack)
	}
	return strings.Contains(haystack[:idx], needle), nil
}

// locBetween tests the [start, end) window.
type locBetween struct{ Start, End int }

func (l locBetween) Check(haystack, needle string) (bool, error) {
	start := resolveIndex(len(haystack), l.Start)
	end := resolveIndex(len(haystack), l.End)
	if start < 0 || end > len(haystack) || start > end {
		return false, nil
	}
	return strings.Contains(haystack[start:end], needle), nil
}

type locNot struct{ Inner StringLocation }

func (l locNot) Check(haystack, needle string) (bool, error) {
	ok, err := l.Inner.Check(haystack, needle)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

type locAll struct{ Items []StringLocation }

func (l locAll) Check(haystack, needle string) (bool, error) {
	for _, item := range l.Items {
		ok, err := item.Check(haystack, needle)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

type locAny struct{ Items []StringLocation }

func (l locAny) Check(haystack, needle string) (bool, error) {
	for _, item := range l.Items {
		ok, err := item.Check(haystack, needle)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// resolveIndex turns a possibly-negative index into an absolute byte
// offset against a string of the given length, mirroring the negative
// indexing convention used across the path/domain segment accessors.
func resolveIndex(length, i int) int {
	if i < 0 {
		i += length
	}
	return i
}
