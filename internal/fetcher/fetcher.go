// Package fetcher is L1 of the scheduler: a single timer-driven loop that
// pulls new messages for every watched target and merges them into each
// target's buffer, idempotently by message id. Grounded on the teacher's
// single polling goroutine in pkg/channels/telegram/telegram_channel.go,
// generalized from one platform's long-poll to a batched multi-target pull
// against internal/gateway.Client.
package fetcher

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"roomkeeper/internal/config"
	"roomkeeper/internal/eventbus"
	"roomkeeper/internal/gateway"
	"roomkeeper/internal/persona"
	"roomkeeper/internal/roomdata"
)

const perTargetPullLimit = 10

// Fetcher runs the L1 pull loop against however many targets Runtimes
// reports at the start of each tick — the engine adds/removes targets by
// changing what that func returns, never by reaching into a running loop.
type Fetcher struct {
	Gateway  gateway.Client
	Store    *persona.Store
	Sys      *config.SystemConfig
	Bus      *eventbus.Bus
	Runtimes func() []*roomdata.Runtime
}

// Run blocks until ctx is cancelled, ticking at FETCH_INTERVAL. One slow or
// hanging pull never blocks others: each target's pull is isolated in its
// own goroutine, and Run never sleeps longer than the interval after one
// round completes (its own runtime excluded), per spec §4.1.
func (f *Fetcher) Run(ctx context.Context) {
	interval := time.Duration(f.Sys.FetchIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.tick(ctx)
		}
	}
}

func (f *Fetcher) tick(ctx context.Context) {
	runtimes := f.Runtimes()
	done := make(chan struct{}, len(runtimes))
	for _, rt := range runtimes {
		rt := rt
		go func() {
			defer func() { done <- struct{}{} }()
			f.pullOne(ctx, rt)
		}()
	}
	for range runtimes {
		<-done
	}
}

// pullOne performs one target's batched pull. A gateway-reported error (or
// a transport error) aborts this target's round without advancing anything
// — a non-empty error block must never be treated as an empty, advance-
// worthy batch (spec §9).
func (f *Fetcher) pullOne(ctx context.Context, rt *roomdata.Runtime) {
	result := f.Gateway.BatchGetRecentContext(ctx, rt.Target, perTargetPullLimit)
	if result.Err != nil {
		f.Bus.Emit(eventbus.LogEntry{
			Level:   eventbus.LevelWarn,
			Target:  rt.Target.ID,
			Message: "fetch failed, skipping this round",
			Details: map[string]any{"error": result.Err.Error()},
		})
		return
	}

	if result.DisplayName != "" {
		rt.DisplayName = result.DisplayName
	}

	msgs := make([]roomdata.Message, 0, len(result.Messages))
	for _, rm := range result.Messages {
		msgs = append(msgs, roomdata.Message{
			MessageID:  rm.MessageID,
			Timestamp:  rm.Timestamp,
			SenderID:   rm.SenderID,
			SenderName: rm.SenderName,
			Content:    rm.Content,
			IsAtMe:     rm.AtMe,
			ImageRefs:  rm.Images,
		})
	}
	// The gateway never echoes back the agent's own sends; re-inject them
	// from the local record so self-messages still appear in order.
	msgs = append(msgs, rt.Sent.AsMessages()...)

	added := rt.Buffer.Append(msgs)

	if rt.ConsumeFirstPull() {
		f.consumeAllAtMe(rt)
	} else {
		f.detectUrgentAtMe(rt, msgs)
	}

	if added > 0 {
		rt.Intent.MarkActivity(time.Now())
	}

	rt.Consumed.PruneToBuffer(rt.Buffer)
	f.bookkeepSummary(rt, result.CompressedSummary)
}

// consumeAllAtMe is the first-seen guard: the first pull that ever succeeds
// for a target preemptively consumes every @me message already present so
// the agent never "replies to history" on startup.
func (f *Fetcher) consumeAllAtMe(rt *roomdata.Runtime) {
	for _, m := range rt.Buffer.Snapshot() {
		if m.IsAtMe && !m.IsSelf {
			rt.Consumed.Add(m.MessageID)
		}
	}
}

// detectUrgentAtMe scans this pull's batch for an unconsumed @me and, if
// found, consumes it and force-wakes Intent. Re-checking already-consumed
// ids makes this safe to call against overlapping (re-delivered) batches.
func (f *Fetcher) detectUrgentAtMe(rt *roomdata.Runtime, batch []roomdata.Message) {
	found := false
	for _, m := range batch {
		if m.IsAtMe && !m.IsSelf && !rt.Consumed.Contains(m.MessageID) {
			rt.Consumed.Add(m.MessageID)
			found = true
		}
	}
	if found {
		rt.Intent.SetUrgentAtMe()
	}
}

// bookkeepSummary compares a richer gateway's rolling session summary
// against what was last archived, appends only the new suffix when the new
// summary is a prefix-extension of the old one, and triggers trim_old_
// messages. Raw platform transports never report a summary, so this is a
// no-op for them.
func (f *Fetcher) bookkeepSummary(rt *roomdata.Runtime, newSummary string) {
	if newSummary == "" {
		return
	}
	prev := rt.Buffer.CompressedSummary()
	if newSummary == prev {
		return
	}

	delta := newSummary
	if prev != "" && strings.HasPrefix(newSummary, prev) {
		delta = strings.TrimSpace(newSummary[len(prev):])
	}

	if delta != "" {
		if err := f.Store.AppendGroupBufferSection(rt.Target.ID, time.Now().UTC().Format(time.RFC3339), delta); err != nil {
			slog.Warn("fetcher: append group buffer section failed", "target", rt.Target.ID, "error", err)
		}
	}
	rt.Buffer.SetCompressedSummary(newSummary)
	f.trimOldMessages(rt)
}

// trimOldMessages drops buffer entries older than whichever of the
// observer/reply watermarks is earlier, keeping BUFFER_COMPRESS_THRESHOLD
// pre-watermark messages in place (spec §4.1).
func (f *Fetcher) trimOldMessages(rt *roomdata.Runtime) {
	obsID, obsSet := rt.ObserverWM.Get()
	repID, repSet := rt.ReplyWM.Get()

	var cutoff string
	switch {
	case obsSet && repSet:
		oi, oFound := rt.Buffer.IndexOf(obsID)
		ri, rFound := rt.Buffer.IndexOf(repID)
		switch {
		case oFound && rFound:
			if oi <= ri {
				cutoff = obsID
			} else {
				cutoff = repID
			}
		case oFound:
			cutoff = obsID
		case rFound:
			cutoff = repID
		default:
			return
		}
	case obsSet:
		cutoff = obsID
	case repSet:
		cutoff = repID
	default:
		return
	}

	rt.Buffer.TrimOlderThan(cutoff, f.Sys.BufferCompressThreshold)
}
