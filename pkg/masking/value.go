package masking

import (
	"fmt"
	"reflect"
)

// maxScrubDepth bounds recursion through nested metadata. Anything deeper
// is almost certainly a cycle built through interface values.
const maxScrubDepth = 32

// ScrubValue returns a scrubbed copy of an arbitrary metadata value.
// Strings are pattern-masked; maps and slices are walked recursively with
// sensitive keys redacted wholesale. Revisited containers (and anything
// past the depth bound) are replaced with the circular-reference token.
func (s *Scrubber) ScrubValue(v any) any {
	return s.scrub(v, make(map[uintptr]bool), 0)
}

// ScrubMap returns a scrubbed copy of a string-keyed metadata map.
func (s *Scrubber) ScrubMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, _ := s.scrub(m, make(map[uintptr]bool), 0).(map[string]any)
	return out
}

func (s *Scrubber) scrub(v any, visited map[uintptr]bool, depth int) any {
	if v == nil {
		return nil
	}
	if depth > maxScrubDepth {
		return CircularRef
	}

	switch val := v.(type) {
	case string:
		return s.ScrubString(val)
	case map[string]any:
		ptr := reflect.ValueOf(val).Pointer()
		if visited[ptr] {
			return CircularRef
		}
		visited[ptr] = true
		defer delete(visited, ptr)

		out := make(map[string]any, len(val))
		for k, inner := range val {
			if s.IsSensitiveKey(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = s.scrub(inner, visited, depth+1)
		}
		return out
	case []any:
		if len(val) > 0 {
			ptr := reflect.ValueOf(val).Pointer()
			if visited[ptr] {
				return CircularRef
			}
			visited[ptr] = true
			defer delete(visited, ptr)
		}
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = s.scrub(inner, visited, depth+1)
		}
		return out
	case fmt.Stringer:
		return s.ScrubString(val.String())
	case error:
		return s.ScrubString(val.Error())
	default:
		// Numbers, bools, times, and typed structs pass through — the
		// patterns only match free-form text.
		return v
	}
}
