package observer

import (
	"context"
	"testing"
	"time"

	"roomkeeper/internal/config"
	"roomkeeper/internal/eventbus"
	"roomkeeper/internal/gateway"
	"roomkeeper/internal/llmadapter"
	"roomkeeper/internal/persona"
	"roomkeeper/internal/roomdata"
)

type stubClient struct{}

func (stubClient) Provider() string { return "stub" }
func (stubClient) IsTransientError(err error) bool { return false }
func (stubClient) StreamChat(ctx context.Context, messages []llmadapter.Message, tools []llmadapter.ToolSpec) (<-chan llmadapter.StreamChunk, error) {
	ch := make(chan llmadapter.StreamChunk, 1)
	ch <- llmadapter.StreamChunk{
		ContentBlocks: []llmadapter.ContentBlock{llmadapter.NewTextBlock("noted")},
		IsFinal:       true,
		FinishReason:  llmadapter.StopReasonStop,
	}
	close(ch)
	return ch, nil
}

type stubGateway struct{}

func (stubGateway) BatchGetRecentContext(ctx context.Context, target roomdata.Target, limit int) gateway.BatchResult {
	return gateway.BatchResult{}
}
func (stubGateway) SendMessage(ctx context.Context, targetID string, kind roomdata.Kind, content string) (string, error) {
	return "", nil
}
func (stubGateway) CompressContext(ctx context.Context, target roomdata.Target) error { return nil }

func newObserver(t *testing.T) *Observer {
	t.Helper()
	sys := config.DefaultSystemConfig()
	return &Observer{
		Client:  stubClient{},
		Gateway: stubGateway{},
		Store:   persona.New(t.TempDir(), sys),
		Sys:     sys,
		Social:  &config.SocialConfig{},
		Bus:     eventbus.New(0),
	}
}

func TestEvaluateAdvancesWatermarkToSnapshotTail(t *testing.T) {
	o := newObserver(t)
	rt := roomdata.NewRuntime(roomdata.Target{ID: "g1", Kind: roomdata.KindGroup}, 500, 3)
	rt.Buffer.Append([]roomdata.Message{
		{MessageID: "m1", Timestamp: time.Now(), SenderName: "alice", Content: "hello"},
	})

	if err := o.evaluate(context.Background(), rt); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	id, set := rt.ObserverWM.Get()
	if !set || id != "m1" {
		t.Fatalf("expected watermark advanced to m1, got %q set=%v", id, set)
	}
}

func TestEffectiveCooldownGrowsWithErrorsAndCaps(t *testing.T) {
	o := newObserver(t)
	o.Sys.ObserverIntervalMs = 1000
	o.Sys.ObserverBackoffCapMs = 3000

	if got := o.effectiveCooldown(0); got != time.Second {
		t.Fatalf("expected base cooldown with 0 errors, got %v", got)
	}
	if got := o.effectiveCooldown(10); got != time.Second+3*time.Second {
		t.Fatalf("expected backoff capped at 3s, got %v", got)
	}
}
