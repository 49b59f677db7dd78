package roomdata

import (
	"sync"
	"time"
)

// SentEntry is one record in the Sent-cache (spec §3).
type SentEntry struct {
	Content   string
	Timestamp time.Time
	MessageID string // may be empty if the gateway never confirmed an id
}

// SentCache is the append-only per-target record of messages the agent
// successfully sent, re-injected into future buffer snapshots tagged
// IsSelf=true whenever the gateway omits them from its own stream.
type SentCache struct {
	mu      sync.Mutex
	entries []SentEntry
}

func NewSentCache() *SentCache {
	return &SentCache{}
}

func (s *SentCache) Append(e SentEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

// PruneOlderThan drops entries older than the buffer's earliest timestamp
// (spec: "entries older than the buffer's earliest timestamp are pruned").
func (s *SentCache) PruneOlderThan(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0:0]
	for _, e := range s.entries {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	s.entries = kept
}

// AsMessages renders the cache as locally-sourced Messages (IsSelf=true),
// synthesizing a local id for any entry the gateway never confirmed.
func (s *SentCache) AsMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, 0, len(s.entries))
	for _, e := range s.entries {
		id := e.MessageID
		if id == "" {
			id = synthLocalID(e.Timestamp)
		}
		out = append(out, Message{
			MessageID: id,
			Timestamp: e.Timestamp,
			Content:   e.Content,
			IsSelf:    true,
		})
	}
	return out
}

func (s *SentCache) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
