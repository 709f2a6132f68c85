package posts

import "strings"

const wordsPerMinute = 275

// ReadingTimeMinutes estimates how long an HTML body takes to read. Any
// non-empty body takes at least one minute.
func ReadingTimeMinutes(html string) int {
	words := len(strings.Fields(stripTags(html)))
	if words == 0 {
		return 0
	}
	return (words + wordsPerMinute - 1) / wordsPerMinute
}

func stripTags(html string) string {
	var b strings.Builder
	b.Grow(len(html))
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>' && inTag:
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
