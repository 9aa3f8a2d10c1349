package cleanerdoc

import (
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// CharMatcher tests a single rune, used by StringMatcher's AllCharsMatch /
// AnyCharMatches variants.
type CharMatcher interface {
	Match(r rune) bool
}

// DecodeCharMatcher dispatches a YAML node into a concrete CharMatcher by
// its single variant tag, or a bare string for no-payload variants.
func DecodeCharMatcher(node *yaml.Node) (CharMatcher, error) {
	tag, payload, err := singleKeyTag(node)
	if err != nil {
		return nil, fmt.Errorf("char matcher: %w", err)
	}
	switch tag {
	case "Always":
		return charAlways{}, nil
	case "Never":
		return charNever{}, nil
	case "IsAlphabetic":
		return charFunc(unicode.IsLetter), nil
	case "IsNumeric":
		return charFunc(unicode.IsNumber), nil
	case "IsAlphanumeric":
		return charFunc(func(r rune) bool { return unicode.IsLetter(r) || unicode.IsNumber(r) }), nil
	case "IsWhitespace":
		return charFunc(unicode.IsSpace), nil
	case "IsAscii":
		return charFunc(func(r rune) bool { return r < 128 }), nil
	case "IsUppercase":
		return charFunc(unicode.IsUpper), nil
	case "IsLowercase":
		return charFunc(unicode.IsLower), nil
	case "IsOneOf":
		var chars string
		if err := decodePayload(payload, &chars); err != nil {
			return nil, err
		}
		return charIsOneOf{Chars: chars}, nil
	case "Not":
		inner, err := decodeChildCharMatcher(payload)
		if err != nil {
			return nil, err
		}
		return charNot{Inner: inner}, nil
	case "All":
		items, err := decodeCharMatcherList(payload)
		if err != nil {
			return nil, err
		}
		return charAll{Items: items}, nil
	case "Any":
		items, err := decodeCharMatcherList(payload)
		if err != nil {
			return nil, err
		}
		return charAny{Items: items}, nil
	default:
		return nil, fmt.Errorf("char matcher: unknown variant %q", tag)
	}
}

func decodeChildCharMatcher(payload *yaml.Node) (CharMatcher, error) {
	if payload == nil {
		return nil, fmt.Errorf("char matcher: missing payload")
	}
	return DecodeCharMatcher(payload)
}

func decodeCharMatcherList(payload *yaml.Node) ([]CharMatcher, error) {
	var nodes []yaml.Node
	if err := decodePayload(payload, &nodes); err != nil {
		return nil, err
	}
	items := make([]CharMatcher, len(nodes))
	for i := range nodes {
		m, err := DecodeCharMatcher(&nodes[i])
		if err != nil {
			return nil, err
		}
		items[i] = m
	}
	return items, nil
}

type charAlways struct{}

func (charAlways) Match(rune) bool { return true }

type charNever struct{}

func (charNever) Match(rune) bool { return false }

type charFunc func(r rune) bool

func (f charFunc) Match(r rune) bool { return f(r) }

type charIsOneOf struct{ Chars string }

func (c charIsOneOf) Match(r rune) bool { return strings.ContainsRune(c.Chars, r) }

type charNot struct{ Inner CharMatcher }

func (c charNot) Match(r rune) bool { return !c.Inner.Match(r) }

type charAll struct{ Items []CharMatcher }

func (c charAll) Match(r rune) bool {
	for _, item := range c.Items {
		if !item.Match(r) {
			return false
		}
	}
	return true
}

type charAny struct{ Items []CharMatcher }

func (c charAny) Match(r rune) bool {
	for _, item := range c.Items {
		if item.Match(r) {
			return true
		}
	}
	return false
}
