package compress

import (
	"context"
	"strings"
	"testing"
	"time"

	"roomkeeper/internal/config"
	"roomkeeper/internal/eventbus"
	"roomkeeper/internal/llmadapter"
	"roomkeeper/internal/persona"
)

type stubClient struct{ text string }

func (c stubClient) Provider() string                { return "stub" }
func (c stubClient) IsTransientError(err error) bool { return false }
func (c stubClient) StreamChat(ctx context.Context, messages []llmadapter.Message, tools []llmadapter.ToolSpec) (<-chan llmadapter.StreamChunk, error) {
	ch := make(chan llmadapter.StreamChunk, 1)
	ch <- llmadapter.StreamChunk{
		ContentBlocks: []llmadapter.ContentBlock{llmadapter.NewTextBlock(c.text)},
		IsFinal:       true,
		FinishReason:  llmadapter.StopReasonStop,
	}
	close(ch)
	return ch, nil
}

func TestSplitSectionsGroupsByDate(t *testing.T) {
	raw := "\n## 2024-01-01T10:00:00Z\n\nmorning chat\n\n## 2024-01-01T18:00:00Z\n\nevening chat\n\n## 2024-01-02T09:00:00Z\n\nnext day\n"
	got := splitSections(raw)

	if len(got) != 2 {
		t.Fatalf("expected 2 distinct dates, got %d: %v", len(got), got)
	}
	if !strings.Contains(got["2024-01-01"], "morning chat") || !strings.Contains(got["2024-01-01"], "evening chat") {
		t.Fatalf("expected both same-day sections merged, got %q", got["2024-01-01"])
	}
	if !strings.Contains(got["2024-01-02"], "next day") {
		t.Fatalf("missing second date section: %q", got["2024-01-02"])
	}
}

func TestRemoveDateSectionsKeepsOthers(t *testing.T) {
	raw := "\n## 2024-01-01T10:00:00Z\n\nold stuff\n\n## 2024-01-02T09:00:00Z\n\nkeep me\n"
	got := removeDateSections(raw, "2024-01-01")

	if strings.Contains(got, "old stuff") {
		t.Fatalf("expected 2024-01-01 section removed, got %q", got)
	}
	if !strings.Contains(got, "keep me") {
		t.Fatalf("expected 2024-01-02 section preserved, got %q", got)
	}
}

func TestRunOnceWritesDigestAndStripsPastDateOnly(t *testing.T) {
	sys := config.DefaultSystemConfig()
	store := persona.New(t.TempDir(), sys)

	today := time.Now().UTC().Format("2006-01-02")
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")

	if err := store.AppendGroupBufferSection("g1", yesterday+"T10:00:00Z", "yesterday's chatter"); err != nil {
		t.Fatalf("seed yesterday section: %v", err)
	}
	if err := store.AppendGroupBufferSection("g1", today+"T10:00:00Z", "today's chatter"); err != nil {
		t.Fatalf("seed today section: %v", err)
	}

	job := &Job{
		Client:  stubClient{text: "a quiet day overall"},
		Store:   store,
		Sys:     sys,
		Bus:     eventbus.New(0),
		Targets: func() []persona.KnownTarget { return []persona.KnownTarget{{ID: "g1"}} },
	}

	job.RunOnce(context.Background())

	digest, err := store.DailyDigest(yesterday)
	if err != nil || digest != "a quiet day overall" {
		t.Fatalf("expected digest written for %s, got %q err=%v", yesterday, digest, err)
	}

	raw, err := store.GroupBufferRaw("g1")
	if err != nil {
		t.Fatalf("read group buffer: %v", err)
	}
	if strings.Contains(raw, "yesterday's chatter") {
		t.Fatal("expected yesterday's section to be stripped after successful digest")
	}
	if !strings.Contains(raw, "today's chatter") {
		t.Fatal("expected today's section to survive untouched")
	}

	meta, err := store.CompressMeta()
	if err != nil || meta.LastCompressTime == "" {
		t.Fatalf("expected compress_meta updated, got %+v err=%v", meta, err)
	}
}
