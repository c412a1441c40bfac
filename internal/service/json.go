package service

import (
	"strings"
	"unicode"
)

// extractJSON pulls a JSON document out of a reasoning response that may be
// wrapped in markdown fences or surrounded by prose. Handles both objects
// and arrays.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)

	// Strip markdown code fences
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		return strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		return strings.TrimSpace(s)
	}

	// Find the outermost object or array, whichever opens first.
	objStart := strings.Index(s, "{")
	arrStart := strings.Index(s, "[")

	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		if end := strings.LastIndex(s, "]"); end > arrStart {
			return s[arrStart : end+1]
		}
	}
	if objStart >= 0 {
		if end := strings.LastIndex(s, "}"); end > objStart {
			return s[objStart : end+1]
		}
	}

	return s
}

// sanitizePromptInput strips control characters and common prompt injection
// patterns from user-supplied text before it is embedded in a reasoning
// prompt. This prevents role-override attacks (e.g., "system: ignore all
// previous instructions") and fence escaping.
func sanitizePromptInput(s string) string {
	// Strip non-printable control characters (keep newlines, tabs, spaces).
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	// Remove common prompt injection role markers at line beginnings.
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(strings.ToLower(line))
		for _, prefix := range []string{
			"system:", "assistant:", "user:", "[system]", "[assistant]",
			"<|system|>", "<|assistant|>", "<|im_start|>",
			"### system", "### assistant", "### instruction",
		} {
			if strings.HasPrefix(trimmed, prefix) {
				lines[i] = "[sanitized] " + line
				break
			}
		}
	}
	s = strings.Join(lines, "\n")

	// Length limit to prevent context flooding.
	const maxInputLen = 10000
	if len(s) > maxInputLen {
		s = s[:maxInputLen] + "\n[truncated]"
	}

	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// joinList renders a string slice as a newline-separated bullet list for
// prompt embedding.
func joinList(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
