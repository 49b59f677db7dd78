package toolloop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"roomkeeper/internal/llmadapter"
)

// Driver runs the uniform tool-loop contract: call the model, execute any
// tool calls it asks for, append the results, and call again — until the
// model stops calling tools, MAX_TOTAL_ITERATIONS is hit, or the context is
// cancelled (engine generation-token cancellation per spec §5).
type Driver struct {
	Client          llmadapter.Client
	Registry        *Registry
	MaxIterations   int
	ExternalTimeout time.Duration
	BuiltinTimeout  time.Duration

	// ToolServerCap bounds how many calls a single Run makes against one
	// tool server (the built-in local executor or the external gateway
	// bridge — the two dispatch targets of spec §4.5 step 2). Zero or
	// negative means unlimited, matching spec's "null means unlimited".
	ToolServerCap int

	serverCalls map[string]int
}

// toolServer names the dispatch target a tool belongs to, matching spec
// §4.5 step 2's "built-in executor" vs "external tool bridge" split — the
// only two tool servers this implementation has.
func toolServer(t Tool) string {
	if t.External() {
		return "external"
	}
	return "builtin"
}

// Outcome is what one Run produces: the final assistant message (after the
// last tool-free turn), the full transcript of turns appended along the way
// (for callers that persist history), and the iteration count actually used.
type Outcome struct {
	Final      llmadapter.Message
	Appended   []llmadapter.Message
	Iterations int
	Truncated  bool // hit MaxIterations before the model stopped calling tools
}

func (d *Driver) Run(ctx context.Context, messages []llmadapter.Message) (Outcome, error) {
	maxIter := d.MaxIterations
	if maxIter <= 0 {
		maxIter = 100
	}

	specs := d.Registry.Specs()
	working := append([]llmadapter.Message(nil), messages...)
	var appended []llmadapter.Message
	d.serverCalls = make(map[string]int)

	for iter := 0; iter < maxIter; iter++ {
		select {
		case <-ctx.Done():
			return Outcome{Appended: appended, Iterations: iter}, ctx.Err()
		default:
		}

		ch, err := d.Client.StreamChat(ctx, working, specs)
		if err != nil {
			return Outcome{Appended: appended, Iterations: iter}, fmt.Errorf("toolloop: stream chat: %w", err)
		}

		assistantMsg, final, err := llmadapter.CollectChunks(ch)
		if err != nil {
			return Outcome{Appended: appended, Iterations: iter}, fmt.Errorf("toolloop: collect chunks: %w", err)
		}
		assistantMsg.Role = llmadapter.RoleAssistant

		working = append(working, assistantMsg)
		appended = append(appended, assistantMsg)

		if len(assistantMsg.ToolCalls) == 0 {
			return Outcome{Final: assistantMsg, Appended: appended, Iterations: iter + 1}, nil
		}

		for _, tc := range assistantMsg.ToolCalls {
			toolMsg := d.dispatch(ctx, tc)
			working = append(working, toolMsg)
			appended = append(appended, toolMsg)
		}

		if final.FinishReason == llmadapter.StopReasonLength {
			return Outcome{Final: assistantMsg, Appended: appended, Iterations: iter + 1}, nil
		}
	}

	slog.WarnContext(ctx, "toolloop: max iterations reached", "max", maxIter)
	last := llmadapter.Message{}
	if len(appended) > 0 {
		last = appended[len(appended)-1]
	}
	return Outcome{Final: last, Appended: appended, Iterations: maxIter, Truncated: true}, nil
}

func (d *Driver) dispatch(ctx context.Context, tc llmadapter.ToolCall) llmadapter.Message {
	cleanName := strings.TrimPrefix(tc.Name, "functions.")

	tool, ok := d.Registry.Get(cleanName)
	if !ok {
		return toolResultMessage(tc.ID, Err(fmt.Errorf("unknown tool %q", tc.Name)))
	}

	if d.ToolServerCap > 0 {
		server := toolServer(tool)
		d.serverCalls[server]++
		if d.serverCalls[server] > d.ToolServerCap {
			return toolResultMessage(tc.ID, Err(fmt.Errorf("tool server %q call cap (%d) exceeded, skipping %q", server, d.ToolServerCap, tc.Name)))
		}
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
		return toolResultMessage(tc.ID, Err(fmt.Errorf("parse arguments: %w", err)))
	}

	timeout := timeoutFor(tool, d.ExternalTimeout, d.BuiltinTimeout)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := d.execute(callCtx, tool, args)
	return toolResultMessage(tc.ID, result)
}

// execute isolates a tool panic (a misbehaving built-in must never abort
// the whole scheduler layer) and folds a returned error into Result.
func (d *Driver) execute(ctx context.Context, tool Tool, args map[string]any) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "toolloop: tool panicked", "tool", tool.Name(), "panic", r)
			result = Err(fmt.Errorf("tool %q panicked: %v", tool.Name(), r))
		}
	}()

	res, err := tool.Execute(ctx, args)
	if err != nil {
		return Err(err)
	}
	return res
}

func toolResultMessage(toolCallID string, r Result) llmadapter.Message {
	return llmadapter.Message{
		Role:       llmadapter.RoleTool,
		ToolCallID: toolCallID,
		Content:    r.Blocks(),
	}
}
