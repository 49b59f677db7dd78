package openaicompat

import (
	"testing"

	"roomkeeper/internal/llmadapter"
)

func TestNormalizeStopReason(t *testing.T) {
	cases := map[string]string{
		"stop":   llmadapter.StopReasonStop,
		"STOP":   llmadapter.StopReasonStop,
		"length": llmadapter.StopReasonLength,
		"tool_calls": "tool_calls",
	}
	for in, want := range cases {
		if got := normalizeStopReason(in); got != want {
			t.Errorf("normalizeStopReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConvertMessagesRoundTripsToolCall(t *testing.T) {
	msgs := []llmadapter.Message{
		llmadapter.NewSystemMessage("be helpful"),
		llmadapter.NewUserMessage("hello"),
		{
			Role: llmadapter.RoleAssistant,
			ToolCalls: []llmadapter.ToolCall{
				{ID: "call_1", Name: "lookup", Function: llmadapter.FunctionCall{Name: "lookup", Arguments: `{"q":"x"}`}},
			},
		},
		{Role: llmadapter.RoleTool, ToolCallID: "call_1", Content: []llmadapter.ContentBlock{llmadapter.NewTextBlock("result")}},
	}

	out := convertMessages(msgs)
	if len(out) != 4 {
		t.Fatalf("expected 4 converted messages, got %d", len(out))
	}
	if out[0].OfSystem == nil {
		t.Error("expected first message to be system")
	}
	if out[2].OfAssistant == nil || len(out[2].OfAssistant.ToolCalls) != 1 {
		t.Error("expected assistant message with one tool call")
	}
	if out[3].OfTool == nil || out[3].OfTool.ToolCallID != "call_1" {
		t.Error("expected tool message carrying the matching call id")
	}
}

func TestConvertMessagesWithImage(t *testing.T) {
	msg := llmadapter.NewUserMessage("")
	msg.AddContentBlock(llmadapter.NewTextBlock("look at this"))
	msg.AddContentBlock(llmadapter.NewImageBlockFromBase64([]byte{1, 2, 3}, "image/png"))

	out := convertMessages([]llmadapter.Message{msg})
	if len(out) != 1 || out[0].OfUser == nil {
		t.Fatalf("expected one user message")
	}
	parts := out[0].OfUser.Content.OfArrayOfContentParts
	if len(parts) != 2 {
		t.Fatalf("expected 2 content parts, got %d", len(parts))
	}
}
