package tools

import (
	"context"
	"fmt"

	"roomkeeper/internal/roomdata"
	"roomkeeper/internal/toolloop"
)

// Sender is the minimal chat-gateway capability send_message needs — the
// consumer-side interface spec §6's gateway.Client will satisfy, kept local
// here so this package never imports the gateway package.
type Sender interface {
	SendMessage(ctx context.Context, targetID string, kind roomdata.Kind, content string) (messageID string, err error)
}

// Stripper removes one call's ephemeral anti-injection delimiters from text
// — satisfied structurally by promptkit.OwnerTokens, kept local here for
// the same reason as Sender.
type Stripper interface {
	Strip(text string) string
}

// SendMessageTool is the one tool that ever crosses the chat-gateway
// boundary to actually speak — registered only into Reply's toolset. It
// force-overrides target/target_kind from the scheduler rather than trusting
// model-provided arguments (spec §4.5's toolArgTransform), and strips any
// ephemeral secrets the model echoed back into content before it reaches
// the gateway.
type SendMessageTool struct {
	Sender   Sender
	Target   roomdata.Target
	Stripper Stripper
}

func (t *SendMessageTool) Name() string        { return "send_message" }
func (t *SendMessageTool) Description() string { return "Send a chat message into this conversation." }
func (t *SendMessageTool) Parameters() map[string]any {
	return map[string]any{
		"content": map[string]any{"type": "string", "description": "The message text to send."},
	}
}
func (t *SendMessageTool) RequiredParameters() []string { return []string{"content"} }
func (t *SendMessageTool) External() bool                { return true }

func (t *SendMessageTool) Execute(ctx context.Context, args map[string]any) (toolloop.Result, error) {
	content, ok := args["content"].(string)
	if !ok || content == "" {
		return toolloop.Result{}, fmt.Errorf("missing or invalid %q parameter", "content")
	}
	if t.Stripper != nil {
		content = t.Stripper.Strip(content)
	}

	messageID, err := t.Sender.SendMessage(ctx, t.Target.ID, t.Target.Kind, content)
	if err != nil {
		return toolloop.Result{}, fmt.Errorf("send message: %w", err)
	}
	return toolloop.Ok(textBlock(fmt.Sprintf("sent (id=%s)", messageID))), nil
}
