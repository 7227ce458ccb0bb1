package llm

import (
	"regexp"
	"strings"
)

var (
	markdownMarks = regexp.MustCompile("[*_`#]+")
	spaceRuns     = regexp.MustCompile(`\s+`)
)

// maxSpokenSentences caps how much of a reply is voiced; long model output
// makes for a bad listening experience.
const maxSpokenSentences = 3

// TrimForSpeech strips markdown decoration and caps the reply at a few
// sentences so synthesis stays short and natural.
func TrimForSpeech(text string) string {
	text = markdownMarks.ReplaceAllString(text, "")
	text = spaceRuns.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	sentences := splitSentences(text)
	if len(sentences) > maxSpokenSentences {
		sentences = sentences[:maxSpokenSentences]
	}
	return strings.TrimSpace(strings.Join(sentences, ""))
}

// splitSentences splits on Japanese and Latin sentence terminators, keeping
// the terminator with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		switch r {
		case '。', '！', '？', '.', '!', '?':
			sentences = append(sentences, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		sentences = append(sentences, b.String())
	}
	return sentences
}
