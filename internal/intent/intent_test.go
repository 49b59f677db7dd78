package intent

import (
	"context"
	"testing"
	"time"

	"roomkeeper/internal/config"
	"roomkeeper/internal/eventbus"
	"roomkeeper/internal/llmadapter"
	"roomkeeper/internal/persona"
	"roomkeeper/internal/roomdata"
)

type textClient struct{ text string }

func (c textClient) Provider() string                { return "stub" }
func (c textClient) IsTransientError(err error) bool { return false }
func (c textClient) StreamChat(ctx context.Context, messages []llmadapter.Message, tools []llmadapter.ToolSpec) (<-chan llmadapter.StreamChunk, error) {
	ch := make(chan llmadapter.StreamChunk, 1)
	ch <- llmadapter.StreamChunk{
		ContentBlocks: []llmadapter.ContentBlock{llmadapter.NewTextBlock(c.text)},
		IsFinal:       true,
		FinishReason:  llmadapter.StopReasonStop,
	}
	close(ch)
	return ch, nil
}

func newIntent(t *testing.T, text string) *Intent {
	t.Helper()
	sys := config.DefaultSystemConfig()
	return &Intent{
		Client: textClient{text: text},
		Store:  persona.New(t.TempDir(), sys),
		Sys:    sys,
		Social: &config.SocialConfig{},
		Bus:    eventbus.New(0),
	}
}

func TestParseEntryStrictTag(t *testing.T) {
	e := parseEntry(time.Now(), "[想聊：今天天气不错]", nil)
	if e.Willingness != 4 || e.WillingnessLabel != "想聊" {
		t.Fatalf("got willingness=%d label=%q", e.Willingness, e.WillingnessLabel)
	}
}

func TestParseEntryLooseTag(t *testing.T) {
	e := parseEntry(time.Now(), "无感：没什么想说的", nil)
	if e.Willingness != 2 || e.WillingnessLabel != "无感" {
		t.Fatalf("got willingness=%d label=%q", e.Willingness, e.WillingnessLabel)
	}
}

func TestParseEntryUntaggedIsIdle(t *testing.T) {
	e := parseEntry(time.Now(), "just some unrelated text", nil)
	if !e.Idle || e.Willingness != 0 {
		t.Fatalf("expected idle/untagged entry, got %+v", e)
	}
}

func TestRunEvaluationSetsReplyWakeAboveThreshold(t *testing.T) {
	in := newIntent(t, "[忍不住：必须说点什么]")
	rt := roomdata.NewRuntime(roomdata.Target{ID: "g1", Kind: roomdata.KindGroup}, 500, 3)
	rt.Buffer.Append([]roomdata.Message{
		{MessageID: "m1", Timestamp: time.Now(), SenderName: "alice", Content: "hello"},
	})

	in.runEvaluation(context.Background(), rt, false)

	if !rt.ReplyWake.ConsumeIfSet() {
		t.Fatal("expected ReplyWakeFlag to be set for willingness 5")
	}
	latest, ok := rt.Intent.Latest()
	if !ok || latest.Willingness != 5 {
		t.Fatalf("expected latest entry willingness 5, got %+v", latest)
	}
	id, set := rt.IntentWM.Get()
	if !set || id != "m1" {
		t.Fatalf("expected intent watermark advanced to m1, got %q set=%v", id, set)
	}
}

func TestRunEvaluationFinalPutsIntentBackToSleep(t *testing.T) {
	in := newIntent(t, "[不想理：安静]")
	rt := roomdata.NewRuntime(roomdata.Target{ID: "g1", Kind: roomdata.KindGroup}, 500, 3)
	rt.Intent.SetSleeping(false)

	in.runEvaluation(context.Background(), rt, true)

	if !rt.Intent.IsSleeping() {
		t.Fatal("expected intent to be sleeping after a final idle-timeout evaluation")
	}
}
