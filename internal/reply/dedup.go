package reply

import (
	"regexp"
	"strings"
)

var sentenceSplitRe = regexp.MustCompile(`[^.!?。！？\n]*[.!?。！？\n]+|[^.!?。！？\n]+$`)

// stripDuplication removes within-utterance repetition from a fallback
// auto-send candidate (spec §4.3 step 9): sentence-level dedup of
// consecutive identical sentences, falling back to a word-level "X X"
// check when the text does not split into more than one sentence.
func stripDuplication(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}

	sentences := splitSentences(text)
	if len(sentences) > 1 {
		return strings.TrimSpace(dedupeConsecutiveSentences(sentences))
	}
	return dedupeWordLevel(text)
}

func splitSentences(text string) []string {
	matches := sentenceSplitRe.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

func dedupeConsecutiveSentences(sentences []string) string {
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		if len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == strings.TrimSpace(s) {
			continue
		}
		out = append(out, s)
	}
	return strings.Join(out, " ")
}

func dedupeWordLevel(text string) string {
	words := strings.Fields(text)
	n := len(words)
	if n < 2 || n%2 != 0 {
		return text
	}
	half := n / 2
	if strings.Join(words[:half], " ") == strings.Join(words[half:], " ") {
		return strings.Join(words[:half], " ")
	}
	return text
}
