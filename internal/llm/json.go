package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MalformedOutputError means the model ignored the output contract. It is a
// deterministic failure of the prompt or model, so it is classified fatal.
type MalformedOutputError struct {
	Stage  string
	Reason string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("llm: malformed output in %s: %s", e.Stage, e.Reason)
}

// DecodeJSON extracts the JSON document from a completion and unmarshals it.
// Models wrap JSON in markdown fences or prose often enough that the
// extraction tolerates both; a document that still fails to parse is a
// MalformedOutputError.
func DecodeJSON(stage, raw string, out any) error {
	doc := extractJSON(raw)
	if doc == "" {
		return &MalformedOutputError{Stage: stage, Reason: "no JSON document found"}
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return &MalformedOutputError{Stage: stage, Reason: err.Error()}
	}
	return nil
}

// extractJSON returns the outermost JSON object or array in raw.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		if i := strings.LastIndex(raw, "```"); i >= 0 {
			raw = raw[:i]
		}
		raw = strings.TrimSpace(raw)
	}

	start := -1
	for i, r := range raw {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	open := rune(raw[start])
	closer := matching(open)
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := rune(raw[i])
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
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}

func matching(open rune) rune {
	if open == '{' {
		return '}'
	}
	return ']'
}
