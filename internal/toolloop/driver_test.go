package toolloop

import (
	"context"
	"errors"
	"testing"
	"time"

	"roomkeeper/internal/llmadapter"
)

type fakeTool struct {
	name     string
	external bool
	calls    int
	result   Result
	err      error
}

func (f *fakeTool) Name() string                   { return f.name }
func (f *fakeTool) Description() string            { return "fake" }
func (f *fakeTool) Parameters() map[string]any     { return map[string]any{} }
func (f *fakeTool) RequiredParameters() []string    { return nil }
func (f *fakeTool) External() bool                  { return f.external }
func (f *fakeTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	f.calls++
	if f.err != nil {
		return Result{}, f.err
	}
	return f.result, nil
}

// scriptedClient replays a fixed sequence of assistant turns, one per call
// to StreamChat, to drive the loop deterministically.
type scriptedClient struct {
	turns []llmadapter.Message
	i     int
}

func (c *scriptedClient) Provider() string { return "scripted" }
func (c *scriptedClient) IsTransientError(err error) bool { return false }
func (c *scriptedClient) StreamChat(ctx context.Context, messages []llmadapter.Message, tools []llmadapter.ToolSpec) (<-chan llmadapter.StreamChunk, error) {
	if c.i >= len(c.turns) {
		c.i++
		out := make(chan llmadapter.StreamChunk, 1)
		out <- llmadapter.NewFinalChunk(llmadapter.StopReasonStop, nil)
		close(out)
		return out, nil
	}
	turn := c.turns[c.i]
	c.i++

	out := make(chan llmadapter.StreamChunk, 4)
	for _, b := range turn.Content {
		out <- llmadapter.StreamChunk{ContentBlocks: []llmadapter.ContentBlock{b}}
	}
	if len(turn.ToolCalls) > 0 {
		out <- llmadapter.StreamChunk{ToolCalls: turn.ToolCalls}
	}
	out <- llmadapter.NewFinalChunk(llmadapter.StopReasonStop, nil)
	close(out)
	return out, nil
}

func TestDriverRunStopsWhenNoToolCalls(t *testing.T) {
	client := &scriptedClient{turns: []llmadapter.Message{
		{Content: []llmadapter.ContentBlock{llmadapter.NewTextBlock("hello")}},
	}}
	reg := NewRegistry()
	d := &Driver{Client: client, Registry: reg, MaxIterations: 10, ExternalTimeout: time.Second, BuiltinTimeout: time.Second}

	out, err := d.Run(context.Background(), []llmadapter.Message{llmadapter.NewUserMessage("hi")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Iterations != 1 || out.Truncated {
		t.Fatalf("expected single-iteration non-truncated run, got %+v", out)
	}
	if out.Final.GetTextContent() != "hello" {
		t.Fatalf("expected final text %q, got %q", "hello", out.Final.GetTextContent())
	}
}

func TestDriverRunExecutesToolThenStops(t *testing.T) {
	tool := &fakeTool{name: "lookup", result: Ok(llmadapter.NewTextBlock("42"))}
	client := &scriptedClient{turns: []llmadapter.Message{
		{ToolCalls: []llmadapter.ToolCall{{ID: "c1", Name: "lookup", Function: llmadapter.FunctionCall{Name: "lookup", Arguments: "{}"}}}},
		{Content: []llmadapter.ContentBlock{llmadapter.NewTextBlock("done")}},
	}}
	reg := NewRegistry()
	reg.Register(tool)
	d := &Driver{Client: client, Registry: reg, MaxIterations: 10, ExternalTimeout: time.Second, BuiltinTimeout: time.Second}

	out, err := d.Run(context.Background(), []llmadapter.Message{llmadapter.NewUserMessage("hi")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tool.calls != 1 {
		t.Fatalf("expected tool to be called once, got %d", tool.calls)
	}
	if out.Final.GetTextContent() != "done" {
		t.Fatalf("expected final text %q, got %q", "done", out.Final.GetTextContent())
	}
	if out.Iterations != 2 {
		t.Fatalf("expected 2 iterations, got %d", out.Iterations)
	}
}

func TestDriverUnknownToolDoesNotAbortLoop(t *testing.T) {
	client := &scriptedClient{turns: []llmadapter.Message{
		{ToolCalls: []llmadapter.ToolCall{{ID: "c1", Name: "missing", Function: llmadapter.FunctionCall{Name: "missing", Arguments: "{}"}}}},
		{Content: []llmadapter.ContentBlock{llmadapter.NewTextBlock("recovered")}},
	}}
	reg := NewRegistry()
	d := &Driver{Client: client, Registry: reg, MaxIterations: 10, ExternalTimeout: time.Second, BuiltinTimeout: time.Second}

	out, err := d.Run(context.Background(), []llmadapter.Message{llmadapter.NewUserMessage("hi")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Final.GetTextContent() != "recovered" {
		t.Fatalf("expected the loop to recover after an unknown tool call, got %q", out.Final.GetTextContent())
	}
}

func TestDriverToolPanicDoesNotAbortLoop(t *testing.T) {
	panicTool := panicingTool{name: "boom"}
	client := &scriptedClient{turns: []llmadapter.Message{
		{ToolCalls: []llmadapter.ToolCall{{ID: "c1", Name: "boom", Function: llmadapter.FunctionCall{Name: "boom", Arguments: "{}"}}}},
		{Content: []llmadapter.ContentBlock{llmadapter.NewTextBlock("still alive")}},
	}}
	reg := NewRegistry()
	reg.Register(panicTool)
	d := &Driver{Client: client, Registry: reg, MaxIterations: 10, ExternalTimeout: time.Second, BuiltinTimeout: time.Second}

	out, err := d.Run(context.Background(), []llmadapter.Message{llmadapter.NewUserMessage("hi")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Final.GetTextContent() != "still alive" {
		t.Fatalf("expected loop to survive a tool panic, got %q", out.Final.GetTextContent())
	}
}

type panicingTool struct{ name string }

func (p panicingTool) Name() string                { return p.name }
func (p panicingTool) Description() string         { return "panics" }
func (p panicingTool) Parameters() map[string]any  { return map[string]any{} }
func (p panicingTool) RequiredParameters() []string { return nil }
func (p panicingTool) External() bool               { return false }
func (p panicingTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	panic("boom")
}

func TestDriverMaxIterationsTruncates(t *testing.T) {
	tool := &fakeTool{name: "loop", result: Ok(llmadapter.NewTextBlock("again"))}
	var turns []llmadapter.Message
	for i := 0; i < 5; i++ {
		turns = append(turns, llmadapter.Message{ToolCalls: []llmadapter.ToolCall{{ID: "c", Name: "loop", Function: llmadapter.FunctionCall{Name: "loop", Arguments: "{}"}}}})
	}
	client := &scriptedClient{turns: turns}
	reg := NewRegistry()
	reg.Register(tool)
	d := &Driver{Client: client, Registry: reg, MaxIterations: 3, ExternalTimeout: time.Second, BuiltinTimeout: time.Second}

	out, err := d.Run(context.Background(), []llmadapter.Message{llmadapter.NewUserMessage("hi")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Truncated || out.Iterations != 3 {
		t.Fatalf("expected a truncated 3-iteration run, got %+v", out)
	}
}

func TestResultErrNeverAbortsDispatch(t *testing.T) {
	r := Err(errors.New("boom"))
	if r.IsOk() {
		t.Fatal("expected Err result to report IsOk() == false")
	}
	if len(r.Blocks()) != 1 {
		t.Fatalf("expected Err result to still render a content block, got %d", len(r.Blocks()))
	}
}
