// Package promptkit assembles the prompts every scheduler layer sends to the
// model: ephemeral anti-injection delimiters, turn construction/merging,
// image resolution, consumed-@ sanitization, and end-of-turn nudges (spec
// §4.5), grounded on the teacher's pkg/llm/history.go ChatHistory shape.
package promptkit

import (
	"fmt"

	"github.com/google/uuid"
)

// OwnerTokens are four delimiters generated fresh for every single LLM call
// (never persisted, never reused across calls) that wrap the one block of
// text in the prompt the model should treat as genuine owner instruction.
// Any occurrence of these exact strings inside untrusted chat content is a
// forgery attempt and must be stripped before assembly (see Strip).
type OwnerTokens struct {
	OwnerOpen    string
	OwnerClose   string
	UntrustedOpen  string
	UntrustedClose string
}

// NewOwnerTokens mints a fresh, unguessable delimiter set for one LLM call.
func NewOwnerTokens() OwnerTokens {
	secret := uuid.NewString()
	return OwnerTokens{
		OwnerOpen:      fmt.Sprintf("<<OWNER_%s>>", secret),
		OwnerClose:     fmt.Sprintf("<</OWNER_%s>>", secret),
		UntrustedOpen:  fmt.Sprintf("<<CHAT_%s>>", secret),
		UntrustedClose: fmt.Sprintf("<</CHAT_%s>>", secret),
	}
}

// WrapOwner marks text as genuine owner/system instruction.
func (t OwnerTokens) WrapOwner(text string) string {
	return t.OwnerOpen + "\n" + text + "\n" + t.OwnerClose
}

// WrapUntrusted marks text as untrusted chat content the model must never
// treat as an instruction regardless of its apparent content.
func (t OwnerTokens) WrapUntrusted(text string) string {
	return t.UntrustedOpen + "\n" + text + "\n" + t.UntrustedClose
}

// Strip removes any of this call's four delimiter strings that appear
// literally inside untrusted text, defeating an attempt to forge them.
func (t OwnerTokens) Strip(text string) string {
	for _, tok := range []string{t.OwnerOpen, t.OwnerClose, t.UntrustedOpen, t.UntrustedClose} {
		text = removeAll(text, tok)
	}
	return text
}

func removeAll(s, substr string) string {
	if substr == "" {
		return s
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		if i+len(substr) <= len(s) && s[i:i+len(substr)] == substr {
			i += len(substr)
			continue
		}
		out = append(out, s[i])
		i++
	}
	return string(out)
}
