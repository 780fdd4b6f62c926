package research

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedOutput marks a generation response that could not be parsed
// into the expected structure. Callers fall back rather than propagate it.
var ErrMalformedOutput = errors.New("malformed generation output")

// ParseStructured extracts the first balanced JSON object from a raw
// generation response and unmarshals it into T. Models routinely wrap their
// JSON in prose or code fences, so the decoder scans for braces instead of
// trusting the whole payload.
func ParseStructured[T any](raw string) (T, error) {
	var out T
	jsonStr := firstJSONObject(raw)
	if jsonStr == "" {
		return out, fmt.Errorf("%w: no JSON object found", ErrMalformedOutput)
	}
	if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return out, nil
}

// firstJSONObject returns the first balanced {...} block in s, or "".
func firstJSONObject(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, ch := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
