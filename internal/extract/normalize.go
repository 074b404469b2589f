package extract

import "strings"

// Normalize splits raw OCR text into trimmed lines.
// Case is preserved and blank lines are kept as empty strings, since the
// particulars collector counts them. Empty input yields no lines.
func Normalize(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\f", "\n")

	raw := strings.Split(text, "\n")
	lines := make([]string, len(raw))
	for i, line := range raw {
		lines[i] = strings.TrimSpace(line)
	}
	return lines
}
