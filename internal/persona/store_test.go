package persona

import (
	"os"
	"path/filepath"
	"testing"

	"roomkeeper/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	sys := config.DefaultSystemConfig()
	return New(t.TempDir(), sys)
}

func TestTruncateKeepsHeadAndTail(t *testing.T) {
	content := ""
	for i := 0; i < 1000; i++ {
		content += "x"
	}
	out := Truncate(content, 100, 0.7, 0.2)
	if len(out) >= len(content) {
		t.Fatal("expected truncated output to be shorter than input")
	}
}

func TestTruncateNoopUnderLimit(t *testing.T) {
	if got := Truncate("short", 1000, 0.7, 0.2); got != "short" {
		t.Fatalf("expected no truncation under limit, got %q", got)
	}
}

func TestGroupRuleRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteGroupRule("g1", "be nice"); err != nil {
		t.Fatal(err)
	}
	got, err := s.GroupRule("g1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "be nice" {
		t.Fatalf("L1 round-trip violated: got %q", got)
	}
}

func TestReplyStrategyDefaultsWhenAbsent(t *testing.T) {
	s := newTestStore(t)
	got, err := s.ReplyStrategy()
	if err != nil {
		t.Fatal(err)
	}
	if got != defaultReplyStrategy {
		t.Fatal("expected built-in default reply strategy when file absent")
	}
}

func TestKnownTargetsAcceptsLegacyBareArray(t *testing.T) {
	s := newTestStore(t)
	dir := filepath.Join(s.root, "social")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "targets.json"), []byte(`["g1", "g2"]`), 0o644); err != nil {
		t.Fatal(err)
	}
	targets, err := s.KnownTargets()
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 2 || targets[0].ID != "g1" || targets[1].ID != "g2" {
		t.Fatalf("expected legacy bare array parsed into 2 targets, got %+v", targets)
	}
}

func TestGroupBufferAppendSection(t *testing.T) {
	s := newTestStore(t)
	if err := s.AppendGroupBufferSection("g1", "2026-07-29T00:00:00Z", "hello"); err != nil {
		t.Fatal(err)
	}
	raw, err := s.GroupBufferRaw("g1")
	if err != nil {
		t.Fatal(err)
	}
	if raw == "" {
		t.Fatal("expected non-empty group buffer after append")
	}
}
