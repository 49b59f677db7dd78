package geminiofficial

import (
	"testing"

	"roomkeeper/internal/llmadapter"
)

func TestNormalizeStopReason(t *testing.T) {
	cases := map[string]string{
		"STOP":                     llmadapter.StopReasonStop,
		"FINISH_REASON_STOP":       llmadapter.StopReasonStop,
		"MAX_TOKENS":               llmadapter.StopReasonLength,
		"FINISH_REASON_MAX_TOKENS": llmadapter.StopReasonLength,
		"SAFETY":                   "safety",
	}
	for in, want := range cases {
		if got := normalizeStopReason(in); got != want {
			t.Errorf("normalizeStopReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanThoughtSignaturesDropsUnsignedCalls(t *testing.T) {
	signed := llmadapter.ToolCall{
		Name:     "lookup",
		Function: llmadapter.FunctionCall{Name: "lookup", Arguments: "{}"},
		Meta:     map[string]any{"thought_signature": []byte("sig")},
	}
	unsigned := llmadapter.ToolCall{
		Name:     "other",
		Function: llmadapter.FunctionCall{Name: "other", Arguments: "{}"},
	}

	messages := []llmadapter.Message{
		llmadapter.NewUserMessage("hi"),
		{Role: llmadapter.RoleAssistant, ToolCalls: []llmadapter.ToolCall{signed, unsigned}},
	}

	cleaned := cleanThoughtSignatures(messages)
	if len(cleaned) != 2 {
		t.Fatalf("expected 2 messages to survive, got %d", len(cleaned))
	}
	if len(cleaned[1].ToolCalls) != 1 || cleaned[1].ToolCalls[0].Name != "lookup" {
		t.Fatalf("expected only the signed tool call to survive, got %+v", cleaned[1].ToolCalls)
	}
}

func TestCleanThoughtSignaturesDropsEmptyAssistantTurn(t *testing.T) {
	messages := []llmadapter.Message{
		{Role: llmadapter.RoleAssistant, ToolCalls: []llmadapter.ToolCall{
			{Name: "x", Function: llmadapter.FunctionCall{Name: "x", Arguments: "{}"}},
		}},
	}
	cleaned := cleanThoughtSignatures(messages)
	if len(cleaned) != 0 {
		t.Fatalf("expected the emptied turn to be dropped entirely, got %d messages", len(cleaned))
	}
}

func TestConvertMessagesSeparatesSystemInstruction(t *testing.T) {
	messages := []llmadapter.Message{
		llmadapter.NewSystemMessage("be terse"),
		llmadapter.NewUserMessage("hello"),
		llmadapter.NewAssistantMessage("hi there"),
	}

	contents, sys := convertMessages(messages)
	if sys == nil || len(sys.Parts) != 1 || sys.Parts[0].Text != "be terse" {
		t.Fatalf("expected system instruction to be extracted, got %+v", sys)
	}
	if len(contents) != 2 {
		t.Fatalf("expected 2 remaining contents, got %d", len(contents))
	}
	if contents[1].Role != "model" {
		t.Errorf("expected assistant role to map to \"model\", got %q", contents[1].Role)
	}
}
