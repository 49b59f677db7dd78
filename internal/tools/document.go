// Package tools implements the built-in document tools (group rule, social
// memory, reply strategy, history/log queries) and the gateway send_message
// tool named in spec §6, adapted from the teacher's ActionSpec table
// pattern in pkg/tools/os_tool.go.
package tools

import (
	"context"
	"fmt"

	"roomkeeper/internal/persona"
	"roomkeeper/internal/roomdata"
	"roomkeeper/internal/toolloop"
)

// GroupRuleReadTool lets Observer/Reply read the current per-target group
// rule document before deciding whether to revise it.
type GroupRuleReadTool struct {
	Store  *persona.Store
	Target roomdata.Target
}

func (t *GroupRuleReadTool) Name() string        { return "read_group_rule" }
func (t *GroupRuleReadTool) Description() string { return "Read the current group rule notes for this chat." }
func (t *GroupRuleReadTool) Parameters() map[string]any { return map[string]any{} }
func (t *GroupRuleReadTool) RequiredParameters() []string { return nil }
func (t *GroupRuleReadTool) External() bool       { return false }

func (t *GroupRuleReadTool) Execute(ctx context.Context, args map[string]any) (toolloop.Result, error) {
	content, err := t.Store.GroupRule(t.Target.ID)
	if err != nil {
		return toolloop.Result{}, fmt.Errorf("read group rule: %w", err)
	}
	if content == "" {
		content = "(no group rule recorded yet)"
	}
	return textResult(content), nil
}

// GroupRuleWriteTool lets Observer revise the group rule document — one of
// Observer's write paths per spec §4.2.
type GroupRuleWriteTool struct {
	Store  *persona.Store
	Target roomdata.Target
}

func (t *GroupRuleWriteTool) Name() string        { return "write_group_rule" }
func (t *GroupRuleWriteTool) Description() string { return "Replace the group rule notes for this chat." }
func (t *GroupRuleWriteTool) Parameters() map[string]any {
	return map[string]any{
		"content": map[string]any{"type": "string", "description": "The full replacement text for the group rule document."},
	}
}
func (t *GroupRuleWriteTool) RequiredParameters() []string { return []string{"content"} }
func (t *GroupRuleWriteTool) External() bool                { return false }

func (t *GroupRuleWriteTool) Execute(ctx context.Context, args map[string]any) (toolloop.Result, error) {
	content, ok := args["content"].(string)
	if !ok {
		return toolloop.Result{}, fmt.Errorf("missing or invalid %q parameter", "content")
	}
	if err := t.Store.WriteGroupRule(t.Target.ID, content); err != nil {
		return toolloop.Result{}, fmt.Errorf("write group rule: %w", err)
	}
	return textResult("group rule updated"), nil
}

// SocialMemoryReadTool / SocialMemoryWriteTool expose the pet-wide social
// memory document (not scoped to one target), Observer's other write path.
type SocialMemoryReadTool struct{ Store *persona.Store }

func (t *SocialMemoryReadTool) Name() string        { return "read_social_memory" }
func (t *SocialMemoryReadTool) Description() string { return "Read the pet's accumulated social memory notes." }
func (t *SocialMemoryReadTool) Parameters() map[string]any { return map[string]any{} }
func (t *SocialMemoryReadTool) RequiredParameters() []string { return nil }
func (t *SocialMemoryReadTool) External() bool       { return false }

func (t *SocialMemoryReadTool) Execute(ctx context.Context, args map[string]any) (toolloop.Result, error) {
	content, err := t.Store.SocialMemory()
	if err != nil {
		return toolloop.Result{}, fmt.Errorf("read social memory: %w", err)
	}
	if content == "" {
		content = "(no social memory recorded yet)"
	}
	return textResult(content), nil
}

type SocialMemoryWriteTool struct{ Store *persona.Store }

func (t *SocialMemoryWriteTool) Name() string        { return "write_social_memory" }
func (t *SocialMemoryWriteTool) Description() string { return "Replace the pet's social memory notes." }
func (t *SocialMemoryWriteTool) Parameters() map[string]any {
	return map[string]any{
		"content": map[string]any{"type": "string", "description": "The full replacement text for the social memory document."},
	}
}
func (t *SocialMemoryWriteTool) RequiredParameters() []string { return []string{"content"} }
func (t *SocialMemoryWriteTool) External() bool                { return false }

func (t *SocialMemoryWriteTool) Execute(ctx context.Context, args map[string]any) (toolloop.Result, error) {
	content, ok := args["content"].(string)
	if !ok {
		return toolloop.Result{}, fmt.Errorf("missing or invalid %q parameter", "content")
	}
	if err := t.Store.WriteSocialMemory(content); err != nil {
		return toolloop.Result{}, fmt.Errorf("write social memory: %w", err)
	}
	return textResult("social memory updated"), nil
}

// ReplyStrategyReadTool / ReplyStrategyWriteTool expose the reply-strategy
// document. The write tool is only ever registered into a role's toolset
// when social.agentCanEditStrategy is true — gating happens at registration
// time (see Toolset.BuildObserver and Toolset.BuildReply), not inside
// Execute.
type ReplyStrategyReadTool struct{ Store *persona.Store }

func (t *ReplyStrategyReadTool) Name() string        { return "read_reply_strategy" }
func (t *ReplyStrategyReadTool) Description() string { return "Read the current reply strategy notes." }
func (t *ReplyStrategyReadTool) Parameters() map[string]any { return map[string]any{} }
func (t *ReplyStrategyReadTool) RequiredParameters() []string { return nil }
func (t *ReplyStrategyReadTool) External() bool       { return false }

func (t *ReplyStrategyReadTool) Execute(ctx context.Context, args map[string]any) (toolloop.Result, error) {
	content, err := t.Store.ReplyStrategy()
	if err != nil {
		return toolloop.Result{}, fmt.Errorf("read reply strategy: %w", err)
	}
	return textResult(content), nil
}

type ReplyStrategyWriteTool struct{ Store *persona.Store }

func (t *ReplyStrategyWriteTool) Name() string        { return "write_reply_strategy" }
func (t *ReplyStrategyWriteTool) Description() string { return "Replace the reply strategy notes." }
func (t *ReplyStrategyWriteTool) Parameters() map[string]any {
	return map[string]any{
		"content": map[string]any{"type": "string", "description": "The full replacement text for the reply strategy document."},
	}
}
func (t *ReplyStrategyWriteTool) RequiredParameters() []string { return []string{"content"} }
func (t *ReplyStrategyWriteTool) External() bool                { return false }

func (t *ReplyStrategyWriteTool) Execute(ctx context.Context, args map[string]any) (toolloop.Result, error) {
	content, ok := args["content"].(string)
	if !ok {
		return toolloop.Result{}, fmt.Errorf("missing or invalid %q parameter", "content")
	}
	if err := t.Store.WriteReplyStrategy(content); err != nil {
		return toolloop.Result{}, fmt.Errorf("write reply strategy: %w", err)
	}
	return textResult("reply strategy updated"), nil
}

func textResult(s string) toolloop.Result {
	return toolloop.Ok(textBlock(s))
}
