package urlmodel

import (
	"fmt"
	"net/url"
	"strings"
)

// Path returns the decoded path.
func (b *BetterUrl) Path() string { return b.u.Path }

// SetPath replaces the whole path, percent-encoding as needed.
func (b *BetterUrl) SetPath(p string) {
	b.u.Path = p
	b.u.RawPath = ""
}

// RawPath returns the raw (possibly percent-encoded) path as it appears in
// the URL string.
func (b *BetterUrl) RawPath() string {
	if b.u.RawPath != "" {
		return b.u.RawPath
	}
	return b.u.EscapedPath()
}

// pathSegments splits a rooted path into segments, preserving a trailing
// empty segment (i.e. a trailing slash) so RemoveEmptyLastPathSegment can
// observe it.
func pathSegments(path string) []string {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func joinPathSegments(segments []string) string {
	if len(segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(segments, "/")
}

// PathSegment returns the decoded i-th path segment (negative counts from
// the end).
func (b *BetterUrl) PathSegment(i int) (string, bool) {
	segments := pathSegments(b.Path())
	idx, ok := segmentAt(segments, i)
	if !ok {
		return "", false
	}
	return segments[idx], true
}

// RawPathSegment returns the i-th path segment without percent-decoding.
func (b *BetterUrl) RawPathSegment(i int) (string, bool) {
	segments := pathSegments(b.RawPath())
	idx, ok := segmentAt(segments, i)
	if !ok {
		return "", false
	}
	return segments[idx], true
}

// SetPathSegment replaces (v non-nil) or removes (v nil) the i-th segment.
func (b *BetterUrl) SetPathSegment(i int, v *string) error {
	return b.setPathSegmentRaw(i, v, true)
}

// SetRawPathSegment is like SetPathSegment but skips percent-encoding of v.
func (b *BetterUrl) SetRawPathSegment(i int, v *string) error {
	return b.setPathSegmentRaw(i, v, false)
}

func (b *BetterUrl) setPathSegmentRaw(i int, v *string, encode bool) error {
	segments := pathSegments(b.Path())
	idx, ok := segmentAt(segments, i)
	if !ok {
		return fmt.Errorf("urlmodel: set path segment %d: %w", i, ErrSegmentOutOfRange)
	}
	if v == nil {
		if len(segments) == 1 {
			return fmt.Errorf("urlmodel: remove path segment %d: %w", i, ErrCannotRemoveAllPath)
		}
		segments = append(segments[:idx], segments[idx+1:]...)
		b.SetPath(joinPathSegments(segments))
		return nil
	}
	value := *v
	if encode {
		value = url.PathEscape(value)
	}
	segments[idx] = value
	b.u.RawPath = joinPathSegments(segments)
	b.u.Path, _ = url.PathUnescape(b.u.RawPath)
	return nil
}

// InsertPathSegmentAt inserts v before index i, shifting later segments.
func (b *BetterUrl) InsertPathSegmentAt(i int, v string) error {
	return b.insertPathSegment(i, v, true, false)
}

// InsertPathSegmentAfter inserts v after index i.
func (b *BetterUrl) InsertPathSegmentAfter(i int, v string) error {
	return b.insertPathSegment(i, v, true, true)
}

// InsertRawPathSegmentAt is like InsertPathSegmentAt but skips encoding.
func (b *BetterUrl) InsertRawPathSegmentAt(i int, v string) error {
	return b.insertPathSegment(i, v, false, false)
}

// InsertRawPathSegmentAfter is like InsertPathSegmentAfter but skips encoding.
func (b *BetterUrl) InsertRawPathSegmentAfter(i int, v string) error {
	return b.insertPathSegment(i, v, false, true)
}

func (b *BetterUrl) insertPathSegment(i int, v string, encode, after bool) error {
	segments := pathSegments(b.Path())
	idx, ok := segmentAt(segments, i)
	if !ok {
		// An empty path accepts insertion at the front.
		if len(segments) == 0 && (i == 0 || i == -1) {
			idx = 0
		} else {
			return fmt.Errorf("urlmodel: insert path segment %d: %w", i, ErrSegmentOutOfRange)
		}
	}
	if after {
		idx++
	}
	value := v
	if encode {
		value = url.PathEscape(value)
	}
	segments = append(segments[:idx], append([]string{value}, segments[idx:]...)...)
	b.u.RawPath = joinPathSegments(segments)
	b.u.Path, _ = url.PathUnescape(b.u.RawPath)
	return nil
}

// RemovePathSegment removes the i-th segment.
func (b *BetterUrl) RemovePathSegment(i int) error {
	return b.SetPathSegment(i, nil)
}

// PathSegmentsStr returns all path segments joined with "/" (the path
// minus its leading slash).
func (b *BetterUrl) PathSegmentsStr() (string, bool) {
	p := b.Path()
	if !strings.HasPrefix(p, "/") {
		return "", false
	}
	return strings.TrimPrefix(p, "/"), true
}

// SetPathSegmentsStr replaces every path segment from a "/"-joined string.
func (b *BetterUrl) SetPathSegmentsStr(v string) {
	b.SetPath("/" + v)
}

// FirstNPathSegments returns the first n segments joined with "/".
func (b *BetterUrl) FirstNPathSegments(n int) (string, bool) {
	segments := pathSegments(b.Path())
	if n < 0 || n > len(segments) {
		return "", false
	}
	return strings.Join(segments[:n], "/"), true
}

// PathSegmentsAfterFirstN returns every segment after the first n, joined
// with "/".
func (b *BetterUrl) PathSegmentsAfterFirstN(n int) (string, bool) {
	segments := pathSegments(b.Path())
	if n < 0 || n > len(segments) {
		return "", false
	}
	return strings.Join(segments[n:], "/"), true
}

// LastNPathSegments returns the last n segments joined with "/".
func (b *BetterUrl) LastNPathSegments(n int) (string, bool) {
	segments := pathSegments(b.Path())
	if n < 0 || n > len(segments) {
		return "", false
	}
	return strings.Join(segments[len(segments)-n:], "/"), true
}

// PathSegmentsBeforeLastN returns every segment before the last n, joined
// with "/".
func (b *BetterUrl) PathSegmentsBeforeLastN(n int) (string, bool) {
	segments := pathSegments(b.Path())
	if n < 0 || n > len(segments) {
		return "", false
	}
	return strings.Join(segments[:len(segments)-n], "/"), true
}

// replacePathSegmentRange swaps segments[start:end] for the segments of v
// ("/"-split; nil removes the range). The result must keep at least one
// segment.
func (b *BetterUrl) replacePathSegmentRange(start, end int, v *string) error {
	segments := pathSegments(b.Path())
	if start < 0 || end > len(segments) || start > end {
		return fmt.Errorf("urlmodel: replace path segments [%d, %d): %w", start, end, ErrSegmentOutOfRange)
	}
	var replacement []string
	if v != nil {
		replacement = strings.Split(*v, "/")
	}
	out := append([]string(nil), segments[:start]...)
	out = append(out, replacement...)
	out = append(out, segments[end:]...)
	if len(out) == 0 {
		return fmt.Errorf("urlmodel: replace path segments [%d, %d): %w", start, end, ErrCannotRemoveAllPath)
	}
	b.SetPath(joinPathSegments(out))
	return nil
}

// SetFirstNPathSegments replaces the first n segments with those of v
// (nil removes them).
func (b *BetterUrl) SetFirstNPathSegments(n int, v *string) error {
	segments := pathSegments(b.Path())
	if n < 0 || n > len(segments) {
		return fmt.Errorf("urlmodel: set first %d path segments: %w", n, ErrSegmentOutOfRange)
	}
	return b.replacePathSegmentRange(0, n, v)
}

// SetPathSegmentsAfterFirstN replaces every segment after the first n with
// those of v (nil removes them).
func (b *BetterUrl) SetPathSegmentsAfterFirstN(n int, v *string) error {
	segments := pathSegments(b.Path())
	if n < 0 || n > len(segments) {
		return fmt.Errorf("urlmodel: set path segments after first %d: %w", n, ErrSegmentOutOfRange)
	}
	return b.replacePathSegmentRange(n, len(segments), v)
}

// SetLastNPathSegments replaces the last n segments with those of v (nil
// removes them).
func (b *BetterUrl) SetLastNPathSegments(n int, v *string) error {
	segments := pathSegments(b.Path())
	if n < 0 || n > len(segments) {
		return fmt.Errorf("urlmodel: set last %d path segments: %w", n, ErrSegmentOutOfRange)
	}
	return b.replacePathSegmentRange(len(segments)-n, len(segments), v)
}

// SetPathSegmentsBeforeLastN replaces every segment before the last n with
// those of v (nil removes them).
func (b *BetterUrl) SetPathSegmentsBeforeLastN(n int, v *string) error {
	segments := pathSegments(b.Path())
	if n < 0 || n > len(segments) {
		return fmt.Errorf("urlmodel: set path segments before last %d: %w", n, ErrSegmentOutOfRange)
	}
	return b.replacePathSegmentRange(0, len(segments)-n, v)
}

// RemoveEmptyLastPathSegment removes a trailing empty segment (i.e. a
// trailing slash) if present.
func (b *BetterUrl) RemoveEmptyLastPathSegment() error {
	segments := pathSegments(b.Path())
	if len(segments) == 0 {
		return nil
	}
	if segments[len(segments)-1] == "" {
		return b.RemovePathSegment(-1)
	}
	return nil
}

// RemoveEmptyLastPathSegmentAndInsertNew removes a trailing empty segment
// (if present) and appends v as the new last segment.
func (b *BetterUrl) RemoveEmptyLastPathSegmentAndInsertNew(v string) error {
	if err := b.RemoveEmptyLastPathSegment(); err != nil {
		return err
	}
	segments := pathSegments(b.Path())
	b.SetPath(joinPathSegments(append(segments, v)))
	return nil
}

// RemoveFirstNPathSegments removes n segments from the start; it returns
// ErrCannotRemoveAllPath if n is not less than the segment count.
func (b *BetterUrl) RemoveFirstNPathSegments(n int) error {
	segments := pathSegments(b.Path())
	if n >= len(segments) {
		return fmt.Errorf("urlmodel: remove first %d path segments: %w", n, ErrCannotRemoveAllPath)
	}
	b.SetPath(joinPathSegments(segments[n:]))
	return nil
}

// RemoveLastNPathSegments removes n segments from the end; it returns
// ErrCannotRemoveAllPath if n is not less than the segment count.
func (b *BetterUrl) RemoveLastNPathSegments(n int) error {
	segments := pathSegments(b.Path())
	if n >= len(segments) {
		return fmt.Errorf("urlmodel: remove last %d path segments: %w", n, ErrCannotRemoveAllPath)
	}
	b.SetPath(joinPathSegments(segments[:len(segments)-n]))
	return nil
}

// KeepFirstNPathSegments keeps only the first n segments.
func (b *BetterUrl) KeepFirstNPathSegments(n int) error {
	segments := pathSegments(b.Path())
	if n <= 0 {
		return fmt.Errorf("urlmodel: keep first %d path segments: %w", n, ErrCannotRemoveAllPath)
	}
	if n > len(segments) {
		n = len(segments)
	}
	b.SetPath(joinPathSegments(segments[:n]))
	return nil
}

// KeepLastNPathSegments keeps only the last n segments.
func (b *BetterUrl) KeepLastNPathSegments(n int) error {
	segments := pathSegments(b.Path())
	if n <= 0 {
		return fmt.Errorf("urlmodel: keep last %d path segments: %w", n, ErrCannotRemoveAllPath)
	}
	if n > len(segments) {
		n = len(segments)
	}
	b.SetPath(joinPathSegments(segments[len(segments)-n:]))
	return nil
}
