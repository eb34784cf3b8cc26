package util

import (
	"regexp"
	"strings"
)

var jsonCodeBlockRegex = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// ExtractJSON extracts a JSON object from a model response that may wrap it
// in markdown code fences or surrounding prose. Truncated objects with at
// least one complete string value are closed so the caller can attempt an
// unmarshal anyway.
func ExtractJSON(s string) string {
	matches := jsonCodeBlockRegex.FindStringSubmatch(s)
	if len(matches) > 1 {
		s = strings.TrimSpace(matches[1])
	} else {
		s = strings.TrimSpace(s)
	}

	objectStart := strings.Index(s, "{")
	if objectStart == -1 {
		return s
	}

	objectEnd := findMatchingBrace(s, objectStart)
	if objectEnd != -1 {
		return s[objectStart : objectEnd+1]
	}

	// Truncated object: drop the incomplete trailing member and close what
	// remains, so at least the complete fields survive.
	lastComma := -1
	depth := 0
	inString := false
	escaped := false
	for i := objectStart; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		case ',':
			if depth == 1 {
				lastComma = i
			}
		}
	}
	if lastComma > objectStart {
		return s[objectStart:lastComma] + "}"
	}

	return s
}

// findMatchingBrace finds the closing brace matching the opening brace at
// startPos, skipping braces inside string values. Returns -1 when the object
// is unterminated.
func findMatchingBrace(s string, startPos int) int {
	count := 0
	inString := false
	escaped := false

	for i := startPos; i < len(s); i++ {
		ch := s[i]

		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}

		if !inString {
			switch ch {
			case '{':
				count++
			case '}':
				count--
				if count == 0 {
					return i
				}
			}
		}
	}

	return -1
}

// SanitizeJSON replaces literal newlines inside string values with escaped
// ones. Models regularly emit multi-line file contents without escaping.
func SanitizeJSON(s string) string {
	var result strings.Builder
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if escaped {
			result.WriteByte(ch)
			escaped = false
			continue
		}
		if ch == '\\' {
			result.WriteByte(ch)
			escaped = true
			continue
		}
		if ch == '"' {
			result.WriteByte(ch)
			inString = !inString
			continue
		}

		if inString && (ch == '\n' || ch == '\r') {
			result.WriteString("\\n")
			if ch == '\r' && i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			continue
		}

		result.WriteByte(ch)
	}

	return result.String()
}
