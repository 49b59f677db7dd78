package promptkit

import (
	"strings"
	"testing"

	"roomkeeper/internal/config"
	"roomkeeper/internal/persona"
	"roomkeeper/internal/roomdata"
)

func TestBuildSystemPromptIncludesReplyStrategyOnlyForReply(t *testing.T) {
	sys := config.DefaultSystemConfig()
	store := persona.New(t.TempDir(), sys)
	if err := store.WriteReplyStrategy("always be concise"); err != nil {
		t.Fatalf("write reply strategy: %v", err)
	}

	in := SystemPromptInputs{
		Store:  store,
		Social: &config.SocialConfig{},
		Target: roomdata.Target{ID: "g1", Kind: roomdata.KindGroup},
		Lurk:   roomdata.LurkNormal,
		Tokens: NewOwnerTokens(),
	}

	observerPrompt, err := BuildSystemPrompt(RoleObserver, in)
	if err != nil {
		t.Fatalf("observer prompt: %v", err)
	}
	if strings.Contains(observerPrompt.GetTextContent(), "always be concise") {
		t.Fatal("expected Observer's system prompt to omit the reply strategy")
	}

	replyPrompt, err := BuildSystemPrompt(RoleReply, in)
	if err != nil {
		t.Fatalf("reply prompt: %v", err)
	}
	if !strings.Contains(replyPrompt.GetTextContent(), "always be concise") {
		t.Fatal("expected Reply's system prompt to include the reply strategy")
	}
}

func TestBuildSystemPromptIncludesIntentHistoryOnlyForIntent(t *testing.T) {
	sys := config.DefaultSystemConfig()
	store := persona.New(t.TempDir(), sys)

	in := SystemPromptInputs{
		Store:  store,
		Social: &config.SocialConfig{},
		Target: roomdata.Target{ID: "g1", Kind: roomdata.KindGroup},
		Lurk:   roomdata.LurkNormal,
		Tokens: NewOwnerTokens(),
	}

	replyPrompt, err := BuildSystemPrompt(RoleReply, in)
	if err != nil {
		t.Fatalf("reply prompt: %v", err)
	}
	if strings.Contains(replyPrompt.GetTextContent(), "Willingness history") {
		t.Fatal("expected Reply's system prompt to omit willingness history")
	}

	intentPrompt, err := BuildSystemPrompt(RoleIntent, in)
	if err != nil {
		t.Fatalf("intent prompt: %v", err)
	}
	if !strings.Contains(intentPrompt.GetTextContent(), "Willingness history") {
		t.Fatal("expected Intent's system prompt to include willingness history")
	}
}

func TestBuildSystemPromptAppliesLurkInstruction(t *testing.T) {
	sys := config.DefaultSystemConfig()
	store := persona.New(t.TempDir(), sys)

	in := SystemPromptInputs{
		Store:  store,
		Social: &config.SocialConfig{},
		Target: roomdata.Target{ID: "g1", Kind: roomdata.KindGroup},
		Lurk:   roomdata.LurkFull,
		Tokens: NewOwnerTokens(),
	}

	prompt, err := BuildSystemPrompt(RoleReply, in)
	if err != nil {
		t.Fatalf("reply prompt: %v", err)
	}
	if !strings.Contains(prompt.GetTextContent(), "full") {
		t.Fatal("expected full lurk-mode instruction to be present")
	}
}
