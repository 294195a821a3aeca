package catalog

import (
	"regexp"
	"strings"
)

const excerptSentences = 3

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// Excerpt returns the first three sentences of text. Text with fewer
// sentences, or with no sentence boundary at all, is returned whole.
func Excerpt(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	ends := sentenceEnd.FindAllStringIndex(text, excerptSentences)
	if len(ends) < excerptSentences {
		return text
	}
	// Keep the terminator, drop the whitespace after it.
	return text[:ends[excerptSentences-1][0]+1]
}
