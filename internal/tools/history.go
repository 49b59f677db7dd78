package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"roomkeeper/internal/persona"
	"roomkeeper/internal/roomdata"
	"roomkeeper/internal/toolloop"
)

// HistoryQueryTool lets the model pull more of the current target's raw
// message buffer than fits in the assembled prompt, for "what did they say
// earlier" style questions.
type HistoryQueryTool struct {
	Runtime *roomdata.Runtime
}

func (t *HistoryQueryTool) Name() string { return "query_history" }
func (t *HistoryQueryTool) Description() string {
	return "Fetch the most recent N raw messages from this chat's buffer."
}
func (t *HistoryQueryTool) Parameters() map[string]any {
	return map[string]any{
		"count": map[string]any{"type": "integer", "description": "How many of the most recent messages to return (default 20, max 200)."},
	}
}
func (t *HistoryQueryTool) RequiredParameters() []string { return nil }
func (t *HistoryQueryTool) External() bool                { return false }

func (t *HistoryQueryTool) Execute(ctx context.Context, args map[string]any) (toolloop.Result, error) {
	count := 20
	if raw, ok := args["count"]; ok {
		if f, ok := raw.(float64); ok && f > 0 {
			count = int(f)
		}
	}
	if count > 200 {
		count = 200
	}

	all := t.Runtime.Buffer.Snapshot()
	if len(all) > count {
		all = all[len(all)-count:]
	}

	var sb strings.Builder
	for _, m := range all {
		fmt.Fprintf(&sb, "[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.SenderName, m.Content)
	}
	if sb.Len() == 0 {
		return textResult("(no messages in buffer)"), nil
	}
	return textResult(sb.String()), nil
}

// CrossGroupLogQueryTool lets the model consult a past date's daily digest,
// which covers every watched target, used for cross-group awareness
// questions ("did you see anything in the other group about X").
type CrossGroupLogQueryTool struct {
	Store *persona.Store
}

func (t *CrossGroupLogQueryTool) Name() string { return "query_cross_group_log" }
func (t *CrossGroupLogQueryTool) Description() string {
	return "Fetch a prior daily digest, optionally scoped to one date (YYYY-MM-DD, defaults to yesterday)."
}
func (t *CrossGroupLogQueryTool) Parameters() map[string]any {
	return map[string]any{
		"date": map[string]any{"type": "string", "description": "Date in YYYY-MM-DD form."},
	}
}
func (t *CrossGroupLogQueryTool) RequiredParameters() []string { return nil }
func (t *CrossGroupLogQueryTool) External() bool                { return false }

func (t *CrossGroupLogQueryTool) Execute(ctx context.Context, args map[string]any) (toolloop.Result, error) {
	date, _ := args["date"].(string)
	if date == "" {
		date = time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	}
	content, err := t.Store.DailyDigest(date)
	if err != nil {
		return toolloop.Result{}, fmt.Errorf("read daily digest: %w", err)
	}
	if content == "" {
		content = fmt.Sprintf("(no digest recorded for %s)", date)
	}
	return textResult(content), nil
}
