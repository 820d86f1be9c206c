// Package snippet derives the short plain-text preview stored alongside
// each email.
package snippet

import "strings"

const (
	maxLen       = 200
	truncateFrom = 150
)

// Extract collapses bodyPlain into a single line, dropping empty lines
// and runs of whitespace, then truncates at the last whitespace boundary
// within [150, 200) characters, appending "…" if truncated. Returns nil
// if the input is empty or entirely whitespace (stored as NULL).
func Extract(bodyPlain string) *string {
	if bodyPlain == "" {
		return nil
	}

	var lines []string
	for _, line := range strings.Split(bodyPlain, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) == 0 {
		return nil
	}

	joined := strings.Join(lines, " ")
	joined = collapseWhitespace(joined)
	if joined == "" {
		return nil
	}

	if len([]rune(joined)) <= maxLen {
		return &joined
	}

	runes := []rune(joined)
	window := runes[truncateFrom:maxLen]
	cut := -1
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == ' ' {
			cut = truncateFrom + i
			break
		}
	}
	if cut == -1 {
		cut = maxLen
	}
	result := strings.TrimRight(string(runes[:cut]), " ") + "…"
	return &result
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	lastWasSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			if !lastWasSpace {
				b.WriteByte(' ')
			}
			lastWasSpace = true
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
