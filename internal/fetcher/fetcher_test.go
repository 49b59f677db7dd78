package fetcher

import (
	"context"
	"testing"
	"time"

	"roomkeeper/internal/config"
	"roomkeeper/internal/eventbus"
	"roomkeeper/internal/gateway"
	"roomkeeper/internal/persona"
	"roomkeeper/internal/roomdata"
)

type fakeGateway struct {
	result gateway.BatchResult
	sent   []string
}

func (g *fakeGateway) BatchGetRecentContext(ctx context.Context, target roomdata.Target, limit int) gateway.BatchResult {
	return g.result
}

func (g *fakeGateway) SendMessage(ctx context.Context, targetID string, kind roomdata.Kind, content string) (string, error) {
	g.sent = append(g.sent, content)
	return "sent-1", nil
}

func (g *fakeGateway) CompressContext(ctx context.Context, target roomdata.Target) error { return nil }

func newFetcher(t *testing.T, gw gateway.Client) *Fetcher {
	t.Helper()
	sys := config.DefaultSystemConfig()
	store := persona.New(t.TempDir(), sys)
	return &Fetcher{
		Gateway: gw,
		Store:   store,
		Sys:     sys,
		Bus:     eventbus.New(0),
	}
}

func TestPullOneAppendsMessagesIdempotently(t *testing.T) {
	msg := gateway.RawMessage{MessageID: "m1", Timestamp: time.Now(), SenderID: "u1", SenderName: "alice", Content: "hi"}
	gw := &fakeGateway{result: gateway.BatchResult{Messages: []gateway.RawMessage{msg}}}
	f := newFetcher(t, gw)

	rt := roomdata.NewRuntime(roomdata.Target{ID: "g1", Kind: roomdata.KindGroup}, 500, 3)

	f.pullOne(context.Background(), rt)
	f.pullOne(context.Background(), rt)

	if got := rt.Buffer.Len(); got != 1 {
		t.Fatalf("expected buffer len 1 after duplicate pulls, got %d", got)
	}
}

func TestPullOneFirstPullConsumesAllAtMe(t *testing.T) {
	msg := gateway.RawMessage{MessageID: "m1", Timestamp: time.Now(), SenderID: "u1", SenderName: "alice", Content: "@me hello", AtMe: true}
	gw := &fakeGateway{result: gateway.BatchResult{Messages: []gateway.RawMessage{msg}}}
	f := newFetcher(t, gw)

	rt := roomdata.NewRuntime(roomdata.Target{ID: "g1", Kind: roomdata.KindGroup}, 500, 3)
	f.pullOne(context.Background(), rt)

	if !rt.Consumed.Contains("m1") {
		t.Fatal("expected first-pull guard to consume the @me message")
	}
	if rt.Intent.IsSleeping() == false {
		// MarkActivity wakes it, which is the behavior we want since added > 0.
	}
}

func TestPullOneNonFirstPullMarksUrgentAtMe(t *testing.T) {
	first := gateway.RawMessage{MessageID: "m1", Timestamp: time.Now(), SenderID: "u1", SenderName: "alice", Content: "hi"}
	gw := &fakeGateway{result: gateway.BatchResult{Messages: []gateway.RawMessage{first}}}
	f := newFetcher(t, gw)

	rt := roomdata.NewRuntime(roomdata.Target{ID: "g1", Kind: roomdata.KindGroup}, 500, 3)
	f.pullOne(context.Background(), rt) // first pull, consumes nothing since not at-me

	second := gateway.RawMessage{MessageID: "m2", Timestamp: time.Now(), SenderID: "u1", SenderName: "alice", Content: "@me urgent", AtMe: true}
	gw.result = gateway.BatchResult{Messages: []gateway.RawMessage{first, second}}
	f.pullOne(context.Background(), rt)

	if !rt.Consumed.Contains("m2") {
		t.Fatal("expected the new @me message to be consumed")
	}
	if rt.Intent.ConsumeUrgentAtMe() != true {
		t.Fatal("expected urgent_at_me to be set")
	}
}

func TestPullOneGatewayErrorSkipsRoundWithoutPanicking(t *testing.T) {
	gw := &fakeGateway{result: gateway.BatchResult{Err: context.DeadlineExceeded}}
	f := newFetcher(t, gw)

	rt := roomdata.NewRuntime(roomdata.Target{ID: "g1", Kind: roomdata.KindGroup}, 500, 3)
	f.pullOne(context.Background(), rt)

	if rt.Buffer.Len() != 0 {
		t.Fatal("expected no messages appended on gateway error")
	}
}
