// Package toolloop is the uniform, iteration-bounded tool dispatch contract
// shared by Observer, Reply, and Intent, adapted from the teacher's
// pkg/tools/tool.go (Tool/ToolRegistry) and pkg/agent/engine.go
// (ProcessLLMStream/ResolveAndCommitToolCall).
package toolloop

import (
	"context"
	"time"

	"roomkeeper/internal/llmadapter"
)

// Tool is the dispatchable unit every built-in document tool and the
// gateway send_message tool implement.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	RequiredParameters() []string
	// External reports whether this tool crosses a process boundary (a
	// chat-gateway call) rather than touching local disk state, which
	// determines which of the two iteration timeouts applies.
	External() bool
	Execute(ctx context.Context, args map[string]any) (Result, error)
}

// Result is the Ok/Err variant every tool dispatch produces. An Err result
// is never fatal to the loop: its rendered blocks are fed back to the model
// as the tool's output exactly like an Ok result, so the model can recover
// or rephrase instead of the whole turn aborting.
type Result struct {
	ok     bool
	blocks []llmadapter.ContentBlock
	detail error
}

func Ok(blocks ...llmadapter.ContentBlock) Result {
	return Result{ok: true, blocks: blocks}
}

func Err(err error) Result {
	return Result{
		ok:     false,
		detail: err,
		blocks: []llmadapter.ContentBlock{llmadapter.NewTextBlock("Error: " + err.Error())},
	}
}

func (r Result) IsOk() bool                        { return r.ok }
func (r Result) Blocks() []llmadapter.ContentBlock { return r.blocks }
func (r Result) Err() error                         { return r.detail }

// Registry holds the tools available to one scheduler-layer invocation.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

func (r *Registry) Specs() []llmadapter.ToolSpec {
	out := make([]llmadapter.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, llmadapter.ToolSpec{
			Name:               t.Name(),
			Description:        t.Description(),
			Parameters:         t.Parameters(),
			RequiredParameters: t.RequiredParameters(),
		})
	}
	return out
}

// timeoutFor returns the external (chat-gateway) or builtin (local disk)
// per-call timeout named in spec §4.5/§6.
func timeoutFor(t Tool, external, builtin time.Duration) time.Duration {
	if t.External() {
		return external
	}
	return builtin
}
