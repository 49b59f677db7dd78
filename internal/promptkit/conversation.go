package promptkit

import (
	"fmt"

	"roomkeeper/internal/llmadapter"
	"roomkeeper/internal/roomdata"
)

// BuildConversationTurns renders a target's raw message buffer into the
// role-tagged, merged, sanitized turn sequence every scheduler layer sends
// as the tail of its prompt. consumed tracks which @-mentions have already
// triggered a reply (spec §4.3's "unconsumed @me" rule): a message whose id
// is in consumed is rendered like any other message, not specially flagged.
func BuildConversationTurns(messages []roomdata.Message, tokens OwnerTokens, consumed *roomdata.ConsumedSet) []llmadapter.Message {
	raw := make([]llmadapter.Message, 0, len(messages))

	for _, m := range messages {
		role := llmadapter.RoleUser
		if m.IsSelf {
			role = llmadapter.RoleAssistant
		}

		text := tokens.Strip(m.Content)
		if !m.IsSelf && m.IsAtMe && !consumed.Contains(m.MessageID) {
			text = "[@me] " + text
		}

		var blocks []llmadapter.ContentBlock
		if !m.IsSelf {
			header := fmt.Sprintf("%s: ", m.SenderName)
			blocks = append(blocks, llmadapter.NewTextBlock(tokens.WrapUntrusted(header+text)))
		} else {
			blocks = append(blocks, llmadapter.NewTextBlock(text))
		}
		blocks = append(blocks, ResolveImageBlocks(m.ImageRefs)...)

		raw = append(raw, llmadapter.Message{
			Role:      role,
			Content:   blocks,
			Timestamp: m.Timestamp.Unix(),
		})
	}

	merged := mergeConsecutiveSameRole(raw)
	return ensureFirstTurnIsUser(merged)
}

// mergeConsecutiveSameRole folds adjacent same-role turns into one, since
// most back ends reject (or silently mis-render) consecutive same-role
// messages.
func mergeConsecutiveSameRole(turns []llmadapter.Message) []llmadapter.Message {
	if len(turns) == 0 {
		return turns
	}
	out := make([]llmadapter.Message, 0, len(turns))
	out = append(out, turns[0])

	for _, t := range turns[1:] {
		last := &out[len(out)-1]
		if last.Role == t.Role {
			last.Content = append(last.Content, t.Content...)
			continue
		}
		out = append(out, t)
	}
	return out
}

// ensureFirstTurnIsUser inserts a "(conversation resumes)" user turn when the
// conversation would otherwise open with an assistant turn (can happen
// right after a daily compression wipes everything but a bot-authored
// system note), since every back end requires the first turn to be user.
func ensureFirstTurnIsUser(turns []llmadapter.Message) []llmadapter.Message {
	if len(turns) == 0 || turns[0].Role == llmadapter.RoleUser {
		return turns
	}
	placeholder := llmadapter.NewUserMessage("(conversation resumes)")
	return append([]llmadapter.Message{placeholder}, turns...)
}
