package roomdata

import (
	"sort"
	"sync"
)

// Buffer is the per-target MessageBuffer of spec §3: a de-duplicated,
// size-capped, timestamp-sorted message sequence plus the last batch
// metadata and compressed-summary string the gateway returned.
type Buffer struct {
	mu       sync.Mutex
	messages []Message
	seenIDs  map[string]struct{}

	hardCap            int
	rebuildMultiplier  int
	metadata           map[string]any
	compressedSummary  string
}

// NewBuffer constructs a Buffer enforcing hardCap entries, rebuilding
// seenIDs once it grows past hardCap*rebuildMultiplier (spec: "seen_ids may
// grow to at most 3 × BUFFER_HARD_CAP; above that it is rebuilt").
func NewBuffer(hardCap, rebuildMultiplier int) *Buffer {
	return &Buffer{
		hardCap:           hardCap,
		rebuildMultiplier: rebuildMultiplier,
		seenIDs:           make(map[string]struct{}),
		metadata:          make(map[string]any),
	}
}

// Append idempotently merges msgs into the buffer by MessageID, synthesizing
// a local id for any message missing one. It returns the number of messages
// actually inserted (P8: feeding the same batch twice yields added == 0 the
// second time).
func (b *Buffer) Append(msgs []Message) (added int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, m := range msgs {
		if m.MessageID == "" {
			m.MessageID = synthLocalID(m.Timestamp)
		}
		if _, dup := b.seenIDs[m.MessageID]; dup {
			continue
		}
		b.seenIDs[m.MessageID] = struct{}{}
		b.messages = append(b.messages, m)
		added++
	}

	if added > 0 {
		b.resort()
	}
	b.enforceHardCap()
	b.maybeRebuildSeenIDs()
	return added
}

// resort restores timestamp-ascending order (spec: "always timestamp-
// ascending after any locally cached sends are injected").
func (b *Buffer) resort() {
	sort.SliceStable(b.messages, func(i, j int) bool {
		return b.messages[i].Timestamp.Before(b.messages[j].Timestamp)
	})
}

func (b *Buffer) enforceHardCap() {
	if len(b.messages) <= b.hardCap {
		return
	}
	overflow := len(b.messages) - b.hardCap
	for _, m := range b.messages[:overflow] {
		delete(b.seenIDs, m.MessageID)
	}
	b.messages = append([]Message(nil), b.messages[overflow:]...)
}

func (b *Buffer) maybeRebuildSeenIDs() {
	limit := b.hardCap * b.rebuildMultiplier
	if limit <= 0 || len(b.seenIDs) <= limit {
		return
	}
	fresh := make(map[string]struct{}, len(b.messages))
	for _, m := range b.messages {
		fresh[m.MessageID] = struct{}{}
	}
	b.seenIDs = fresh
}

// Snapshot returns a defensive copy of the current sequence, safe to hand to
// an in-flight LLM call: subsequent Append calls never mutate it (spec §5:
// "the LLM is called with a captured messages slice").
func (b *Buffer) Snapshot() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// TailID returns the id of the last message in the buffer, or "" if empty.
func (b *Buffer) TailID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.messages) == 0 {
		return ""
	}
	return b.messages[len(b.messages)-1].MessageID
}

// Len reports the current message count (for P2: |buffer| <= hardCap).
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

// IndexOf returns the index of id within the current sequence.
func (b *Buffer) IndexOf(id string) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.indexOfLocked(id)
}

func (b *Buffer) indexOfLocked(id string) (int, bool) {
	for i, m := range b.messages {
		if m.MessageID == id {
			return i, true
		}
	}
	return 0, false
}

// IndexAndSnapshot atomically returns both the index of id and a defensive
// copy of the full sequence, avoiding a TOCTOU race between a separate
// IndexOf + Snapshot pair under concurrent Append calls.
func (b *Buffer) IndexAndSnapshot(id string) (idx int, found bool, snap []Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, found = b.indexOfLocked(id)
	snap = make([]Message, len(b.messages))
	copy(snap, b.messages)
	return idx, found, snap
}

// SetMetadata/Metadata store the last batch metadata dict from the gateway.
func (b *Buffer) SetMetadata(md map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metadata = md
}

func (b *Buffer) Metadata() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metadata
}

// SetCompressedSummary/CompressedSummary track the gateway's last rolling
// summary so Fetcher can diff it for delta bookkeeping (spec §4.1).
func (b *Buffer) SetCompressedSummary(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compressedSummary = s
}

func (b *Buffer) CompressedSummary() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.compressedSummary
}

// TrimOlderThan drops buffer entries strictly before the given watermark id,
// but never trims below keepAtLeast entries preceding that watermark (spec
// §4.1's trim_old_messages: "leaving at least BUFFER_COMPRESS_THRESHOLD
// pre-watermark messages in place").
func (b *Buffer) TrimOlderThan(watermarkID string, keepAtLeast int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := -1
	for i, m := range b.messages {
		if m.MessageID == watermarkID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	cut := idx - keepAtLeast
	if cut <= 0 {
		return
	}
	for _, m := range b.messages[:cut] {
		delete(b.seenIDs, m.MessageID)
	}
	b.messages = append([]Message(nil), b.messages[cut:]...)
}

// SeenIDCount exposes the internal set size for tests validating the rebuild
// threshold.
func (b *Buffer) SeenIDCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.seenIDs)
}
