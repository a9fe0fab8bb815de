// Package json extracts JSON payloads from model replies.
//
// Classifier and follow-up question prompts ask for JSON, but replies often
// arrive wrapped in markdown fences or surrounded by commentary.
package json

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Extract parses the first JSON value (object or array) found in reply.
func Extract[T any](reply string) (T, error) {
	var result T
	raw, err := Find(reply)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

// Find returns the raw JSON portion of reply.
//
// Tried in order: the whole (unfenced) reply, the outermost {...} span,
// the outermost [...] span. Spans are matched by first/last delimiter,
// so unbalanced braces inside strings may defeat it.
func Find(reply string) (string, error) {
	reply = stripFences(reply)
	if json.Valid([]byte(reply)) && reply != "" {
		return reply, nil
	}

	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		if span, ok := between(reply, pair[0], pair[1]); ok {
			return span, nil
		}
	}

	preview := reply
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("failed to extract valid JSON from response: %q", preview)
}

func between(s, open, close string) (string, bool) {
	start := strings.Index(s, open)
	end := strings.LastIndex(s, close)
	if start == -1 || end <= start {
		return "", false
	}
	span := s[start : end+1]
	if !json.Valid([]byte(span)) {
		return "", false
	}
	return span, true
}

// stripFences removes ```json / ``` markers around a reply.
func stripFences(reply string) string {
	trimmed := strings.TrimSpace(reply)
	if rest, ok := strings.CutPrefix(trimmed, "```json"); ok {
		trimmed = strings.TrimSpace(rest)
	} else if rest, ok := strings.CutPrefix(trimmed, "```"); ok {
		trimmed = strings.TrimSpace(rest)
	}
	if rest, ok := strings.CutSuffix(trimmed, "```"); ok {
		trimmed = strings.TrimSpace(rest)
	}
	return trimmed
}

// Strings extracts a list of strings from reply. It accepts either a bare
// array or an object holding the list under key.
func Strings(reply, key string) ([]string, error) {
	raw, err := Find(reply)
	if err != nil {
		return nil, err
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return list, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	field, ok := obj[key]
	if !ok {
		return nil, fmt.Errorf("missing %q in response", key)
	}
	if err := json.Unmarshal(field, &list); err != nil {
		return nil, fmt.Errorf("field %q: %w", key, err)
	}
	return list, nil
}
