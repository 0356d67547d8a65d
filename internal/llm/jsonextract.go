package llm

import (
	"encoding/json"
	"strings"
)

// extractJSON tolerates the model wrapping its answer in a ```json fence or
// surrounding it with prose, since the Messages API has no native JSON-object
// mode: find the first balanced {...} or [...] span and parse that.
func extractJSON(raw string) []byte {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return nil
	}
	open := s[start]
	close := byte('}')
	if open == '[' {
		close = ']'
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return []byte(s[start : i+1])
			}
		}
	}
	return nil
}

// decodeJSONLoose parses the extracted JSON span into v, returning false
// (never an error) when extraction or decoding fails so callers can fall
// back to a typed neutral default.
func decodeJSONLoose(raw string, v any) bool {
	span := extractJSON(raw)
	if span == nil {
		return false
	}
	return json.Unmarshal(span, v) == nil
}
