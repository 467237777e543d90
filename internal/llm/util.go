package llm

import "strings"

// CleanJSONBlock strips markdown code fences and conversational text around a
// JSON object or array in a model response.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		// Skip a language identifier on the first line
		if idx := strings.Index(text, "\n"); idx >= 0 {
			firstLine := strings.TrimSpace(text[:idx])
			if len(firstLine) < 20 && !strings.ContainsAny(firstLine, " {[") {
				text = text[idx+1:]
			}
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	if text == "" || text[0] == '{' || text[0] == '[' {
		if obj := extractBalanced(text); obj != "" {
			return obj
		}
		return text
	}

	// Preamble before the payload: take the first balanced object or array.
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	if obj := extractBalanced(text[start:]); obj != "" {
		return obj
	}
	return text
}

// extractJSONObject returns the balanced object at the start of s, or "".
func extractJSONObject(s string) string {
	if !strings.HasPrefix(s, "{") {
		return ""
	}
	return extractBalanced(s)
}

// extractJSONArray returns the balanced array at the start of s, or "".
func extractJSONArray(s string) string {
	if !strings.HasPrefix(s, "[") {
		return ""
	}
	return extractBalanced(s)
}

// extractBalanced scans from s[0] to its matching close bracket, honouring
// string literals and escapes.
func extractBalanced(s string) string {
	if s == "" {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
