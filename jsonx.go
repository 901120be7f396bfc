package prism

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON locates and returns the first balanced JSON object or array in
// s. Providers routinely wrap JSON in fenced code blocks or append trailing
// prose; this strips fences and scans for the first balanced value so that
// callers never hard-fail on formatting drift.
func ExtractJSON(s string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(s)

	// Strip markdown code fences.
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if i := strings.LastIndex(trimmed, "```"); i >= 0 {
			trimmed = trimmed[:i]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.IndexAny(trimmed, "{[")
	if start == -1 {
		return nil, fmt.Errorf("no JSON value in response")
	}

	raw, ok := balancedJSON(trimmed[start:])
	if !ok {
		return nil, fmt.Errorf("unbalanced JSON value in response")
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("invalid JSON value in response")
	}
	return json.RawMessage(raw), nil
}

// balancedJSON returns the prefix of s that forms one balanced JSON object or
// array, tracking string literals and escapes so braces inside strings do not
// count.
func balancedJSON(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// clamp01 restricts v to [0,1]. Provider-reported scores and confidences go
// through this before use.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
