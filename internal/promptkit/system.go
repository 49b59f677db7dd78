package promptkit

import (
	"fmt"
	"strings"

	"roomkeeper/internal/config"
	"roomkeeper/internal/llmadapter"
	"roomkeeper/internal/persona"
	"roomkeeper/internal/roomdata"
)

// Role identifies which scheduler layer a system prompt is being assembled
// for, since each layer is permitted a different slice of persona/strategy
// documents (spec §4.2-§4.4).
type Role int

const (
	RoleObserver Role = iota
	RoleReply
	RoleIntent
)

// SystemPromptInputs bundles everything BuildSystemPrompt needs to read; all
// of it is re-read fresh from disk on every call (spec §9: no caching of
// persona documents across calls).
type SystemPromptInputs struct {
	Store  *persona.Store
	Social *config.SocialConfig
	Target roomdata.Target
	Lurk   roomdata.LurkMode
	Tokens OwnerTokens

	// IntentHistory is only consulted for RoleIntent.
	IntentHistory []roomdata.IntentEntry
}

var lurkInstructions = map[roomdata.LurkMode]string{
	roomdata.LurkNormal: "Participate normally: reply when it's natural to do so.",
	roomdata.LurkSemi:   "Lurk mode: semi — only reply when directly addressed or the conversation is clearly about you.",
	roomdata.LurkFull:   "Lurk mode: full — stay silent unless directly @-mentioned.",
}

// BuildSystemPrompt assembles the role-specific system message: persona
// (soul/user/memory), social memory, group rule, reply strategy (Reply
// only), lurk-mode instruction, and — for Intent — the rolling willingness
// history.
func BuildSystemPrompt(role Role, in SystemPromptInputs) (llmadapter.Message, error) {
	var sb strings.Builder

	soul, err := in.Store.Soul()
	if err != nil {
		return llmadapter.Message{}, fmt.Errorf("promptkit: read soul: %w", err)
	}
	if soul != "" {
		sb.WriteString(soul)
		sb.WriteString("\n\n")
	}

	user, err := in.Store.User()
	if err != nil {
		return llmadapter.Message{}, fmt.Errorf("promptkit: read user doc: %w", err)
	}
	if user != "" {
		sb.WriteString("## About the owner\n")
		sb.WriteString(user)
		sb.WriteString("\n\n")
	}

	memory, err := in.Store.Memory()
	if err != nil {
		return llmadapter.Message{}, fmt.Errorf("promptkit: read memory: %w", err)
	}
	if memory != "" {
		sb.WriteString("## Long-term memory\n")
		sb.WriteString(memory)
		sb.WriteString("\n\n")
	}

	social, err := in.Store.SocialMemory()
	if err != nil {
		return llmadapter.Message{}, fmt.Errorf("promptkit: read social memory: %w", err)
	}
	if social != "" {
		sb.WriteString("## Social memory\n")
		sb.WriteString(social)
		sb.WriteString("\n\n")
	}

	groupRule, err := in.Store.GroupRule(in.Target.ID)
	if err != nil {
		return llmadapter.Message{}, fmt.Errorf("promptkit: read group rule: %w", err)
	}
	if groupRule != "" {
		sb.WriteString("## This chat's rules\n")
		sb.WriteString(groupRule)
		sb.WriteString("\n\n")
	}

	if role == RoleReply {
		strategy, err := in.Store.ReplyStrategy()
		if err != nil {
			return llmadapter.Message{}, fmt.Errorf("promptkit: read reply strategy: %w", err)
		}
		if strategy != "" {
			sb.WriteString("## Reply strategy\n")
			sb.WriteString(strategy)
			sb.WriteString("\n\n")
		}
	}

	if instr, ok := lurkInstructions[in.Lurk]; ok {
		sb.WriteString(instr)
		sb.WriteString("\n\n")
	}

	if role == RoleIntent {
		sb.WriteString(renderIntentHistory(in.IntentHistory))
	}

	if role == RoleObserver {
		sb.WriteString("You are the background observer for this chat: update the group rule and social memory documents when you notice something durable worth recording. You never send chat messages.\n")
	}

	return llmadapter.NewSystemMessage(in.Tokens.WrapOwner(sb.String())), nil
}

func renderIntentHistory(history []roomdata.IntentEntry) string {
	if len(history) == 0 {
		return "## Willingness history\n(no prior evaluations)\n\n"
	}
	var sb strings.Builder
	sb.WriteString("## Willingness history (most recent last)\n")
	for _, e := range history {
		fmt.Fprintf(&sb, "- %s willingness=%d (%s): %s\n", e.Timestamp.Format("15:04:05"), e.Willingness, e.WillingnessLabel, e.Content)
	}
	sb.WriteString("\n")
	return sb.String()
}
