package speech

import "strings"

// StripHTML removes markup tags from caption text so the synthesizer
// only sees spoken words. Runs of whitespace collapse to one space.
func StripHTML(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))

	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			sb.WriteByte(' ')
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(sb.String()), " ")
}
