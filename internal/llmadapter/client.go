package llmadapter

import (
	"context"
	"fmt"
	"time"
)

// ToolSpec is the back-end-agnostic tool descriptor passed to StreamChat;
// each adapter renders it into its own wire format (OpenAI "function" tools
// vs. Gemini "functionDeclaration").
type ToolSpec struct {
	Name               string
	Description        string
	Parameters         map[string]any
	RequiredParameters []string
}

// Client is the uniform LLM back-end contract named in spec §6: "buildRequest,
// parseResponse, parseStreamChunk, and constructors for assistant-tool-call /
// tool-result / function-call / function-response messages" collapsed into
// one StreamChat call plus a transient-error classifier, mirroring the
// teacher's llm.LLMClient interface (pkg/llm/llm.go).
type Client interface {
	Provider() string
	StreamChat(ctx context.Context, messages []Message, tools []ToolSpec) (<-chan StreamChunk, error)
	IsTransientError(err error) bool
}

// CollectChunks drains a StreamChat channel into one aggregated Message plus
// the final StreamChunk (for finish reason / usage), used by callers that
// don't need incremental streaming (Observer/Reply/Intent all call the LLM
// non-streaming per spec §4.5: "stream=false for Reply/Observer/Intent final
// calls").
func CollectChunks(ch <-chan StreamChunk) (Message, StreamChunk, error) {
	var msg Message
	var final StreamChunk
	var textBuf string

	for chunk := range ch {
		if chunk.Err != nil {
			return msg, chunk, chunk.Err
		}
		for _, b := range chunk.ContentBlocks {
			if b.Type == BlockTypeText {
				textBuf += b.Text
			} else {
				msg.AddContentBlock(b)
			}
		}
		msg.ToolCalls = append(msg.ToolCalls, chunk.ToolCalls...)
		if chunk.IsFinal {
			final = chunk
		}
	}

	if textBuf != "" {
		msg.AddContentBlock(NewTextBlock(textBuf))
	}
	msg.Role = RoleAssistant
	return msg, final, nil
}

// FallbackClient wraps multiple atomic Clients, retrying each up to
// MaxRetries times before failing over to the next (teacher's
// pkg/llm/llm.go FallbackClient, unchanged in shape).
type FallbackClient struct {
	Clients    []Client
	MaxRetries int
	RetryDelay time.Duration
}

func (f *FallbackClient) Provider() string {
	if len(f.Clients) == 0 {
		return "fallback(empty)"
	}
	return "fallback(" + f.Clients[0].Provider() + ")"
}

func (f *FallbackClient) IsTransientError(err error) bool {
	for _, c := range f.Clients {
		if c.IsTransientError(err) {
			return true
		}
	}
	return false
}

func (f *FallbackClient) StreamChat(ctx context.Context, messages []Message, tools []ToolSpec) (<-chan StreamChunk, error) {
	var lastErr error
	for _, client := range f.Clients {
		for attempt := 0; attempt <= f.MaxRetries; attempt++ {
			ch, err := client.StreamChat(ctx, messages, tools)
			if err == nil {
				return ch, nil
			}
			lastErr = err
			if !client.IsTransientError(err) {
				break
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.RetryDelay):
			}
		}
	}
	return nil, fmt.Errorf("llmadapter: all clients exhausted: %w", lastErr)
}
