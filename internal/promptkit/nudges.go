package promptkit

import (
	"fmt"
	"strings"

	"roomkeeper/internal/llmadapter"
)

const silenceToken = "[沉默]"

// SilenceToken is the literal marker Reply's model emits (instead of normal
// text) to mean "I chose not to speak this turn" — distinct from an empty
// string so a truncated/empty response can't be mistaken for a deliberate
// silence.
func SilenceToken() string { return silenceToken }

// IsSilence reports whether a rendered reply is the deliberate-silence
// marker rather than real content.
func IsSilence(text string) bool {
	return strings.TrimSpace(text) == silenceToken
}

// EndOfTurnNudge appends the standing end-of-turn instruction every Reply
// call carries: permission to stay silent, and a warning against repeating
// the bot's own last few sent messages verbatim.
func EndOfTurnNudge(recentSelfMessages []string) llmadapter.Message {
	var sb strings.Builder
	sb.WriteString("Before replying: if you genuinely have nothing worth adding right now, respond with exactly ")
	sb.WriteString(silenceToken)
	sb.WriteString(" and nothing else.\n")

	if len(recentSelfMessages) > 0 {
		sb.WriteString("Do not repeat any of your own recent messages verbatim:\n")
		for _, m := range recentSelfMessages {
			fmt.Fprintf(&sb, "- %s\n", m)
		}
	}

	return llmadapter.NewSystemMessage(sb.String())
}

// IntentThoughtNudge injects Intent's most recent private "current thought"
// into Reply's prompt, giving Reply continuity with Intent's most recent
// willingness evaluation without Reply re-deriving it.
func IntentThoughtNudge(thought string) llmadapter.Message {
	return llmadapter.NewSystemMessage("Your current train of thought about this conversation: " + thought)
}
