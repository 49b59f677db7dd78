// Package observer is L2 of the scheduler: one goroutine per target,
// cooldown-gated, that lets the model maintain the durable group-rule and
// social-memory documents without ever speaking into the chat. Grounded on
// the teacher's per-session goroutine loop in pkg/agent/engine.go, adapted
// from a chat-driven loop to a silent, tool-only background pass.
package observer

import (
	"context"
	"log/slog"
	"time"

	"roomkeeper/internal/config"
	"roomkeeper/internal/eventbus"
	"roomkeeper/internal/gateway"
	"roomkeeper/internal/llmadapter"
	"roomkeeper/internal/persona"
	"roomkeeper/internal/promptkit"
	"roomkeeper/internal/roomdata"
	"roomkeeper/internal/tools"
	"roomkeeper/internal/toolloop"
)

const idleSleep = 2 * time.Second

// Observer drives one target's background pass. The engine starts one
// RunTarget goroutine per watched target and cancels ctx on shutdown or
// config reload (spec §5's generation-token model).
type Observer struct {
	Client  llmadapter.Client
	Gateway gateway.Client
	Store   *persona.Store
	Sys     *config.SystemConfig
	Social  *config.SocialConfig
	Bus     *eventbus.Bus
}

// RunTarget blocks until ctx is cancelled.
func (o *Observer) RunTarget(ctx context.Context, rt *roomdata.Runtime) {
	var lastRun time.Time
	consecutiveErrors := 0

	for {
		if rt.Paused.Get() || rt.Buffer.Len() == 0 {
			if !sleepCtx(ctx, idleSleep) {
				return
			}
			continue
		}

		newMsgs, firstRun := rt.ObserverWM.ChangeDetect(rt.Buffer)
		if firstRun {
			rt.ObserverWM.Advance(rt.Buffer.TailID())
			if !sleepCtx(ctx, idleSleep) {
				return
			}
			continue
		}

		cooldown := o.effectiveCooldown(consecutiveErrors)
		if len(newMsgs) == 0 || time.Since(lastRun) < cooldown {
			if !sleepCtx(ctx, idleSleep) {
				return
			}
			continue
		}

		release := rt.Busy.Acquire(roomdata.OwnerObserver)
		err := o.evaluate(ctx, rt)
		release()
		lastRun = time.Now()

		if err != nil {
			consecutiveErrors++
			o.Bus.Emit(eventbus.LogEntry{Level: eventbus.LevelError, Target: rt.Target.ID, Message: "observer call failed", Details: map[string]any{"error": err.Error()}})
		} else {
			consecutiveErrors = 0
		}

		if !sleepCtx(ctx, idleSleep) {
			return
		}
	}
}

func (o *Observer) baseCooldown() time.Duration {
	ms := o.Social.ObserverIntervalMs
	if ms <= 0 {
		ms = o.Sys.ObserverIntervalMs
	}
	return time.Duration(ms) * time.Millisecond
}

// effectiveCooldown implements spec §4.2's backoff: effective = base +
// min(errors × base, ObserverBackoffCapMs), reset to base on success.
func (o *Observer) effectiveCooldown(consecutiveErrors int) time.Duration {
	base := o.baseCooldown()
	backoff := time.Duration(consecutiveErrors) * base
	backoffCap := time.Duration(o.Sys.ObserverBackoffCapMs) * time.Millisecond
	if backoff > backoffCap {
		backoff = backoffCap
	}
	return base + backoff
}

func (o *Observer) evaluate(ctx context.Context, rt *roomdata.Runtime) error {
	snapshot := rt.Buffer.Snapshot()
	tokens := promptkit.NewOwnerTokens()

	sys, err := promptkit.BuildSystemPrompt(promptkit.RoleObserver, promptkit.SystemPromptInputs{
		Store:  o.Store,
		Social: o.Social,
		Target: rt.Target,
		Lurk:   rt.Lurk.Get(),
		Tokens: tokens,
	})
	if err != nil {
		return err
	}

	turns := promptkit.BuildConversationTurns(snapshot, tokens, rt.Consumed)
	messages := append([]llmadapter.Message{sys}, turns...)

	toolset := &tools.Toolset{
		Store:                o.Store,
		Target:               rt.Target,
		Runtime:              rt,
		AgentCanEditStrategy: o.Social.AgentCanEditStrategy,
	}

	driver := &toolloop.Driver{
		Client:          o.Client,
		Registry:        toolset.BuildObserver(),
		MaxIterations:   o.Sys.MaxToolLoopIterations,
		ExternalTimeout: time.Duration(o.Sys.ExternalToolTimeoutMs) * time.Millisecond,
		BuiltinTimeout:  time.Duration(o.Sys.BuiltinToolTimeoutMs) * time.Millisecond,
		ToolServerCap:   o.Sys.DefaultToolServerCap,
	}

	if _, err := driver.Run(ctx, messages); err != nil {
		return err
	}

	// Always advance to the snapshot tail regardless of what the LLM wrote:
	// Observer produces no "messages the agent said", so the snapshot tail
	// is the correct fence (spec §4.2 step 6).
	if len(snapshot) > 0 {
		rt.ObserverWM.Advance(snapshot[len(snapshot)-1].MessageID)
	}

	o.maybeTriggerCompression(rt)
	return nil
}

// maybeTriggerCompression fires a fire-and-forget compression request once
// the old-message count above the earlier of observer_wm/reply_wm exceeds
// BUFFER_COMPRESS_THRESHOLD (spec §4.2 step 7).
func (o *Observer) maybeTriggerCompression(rt *roomdata.Runtime) {
	obsID, obsSet := rt.ObserverWM.Get()
	repID, repSet := rt.ReplyWM.Get()
	if !obsSet || !repSet {
		return
	}

	oi, oFound := rt.Buffer.IndexOf(obsID)
	ri, rFound := rt.Buffer.IndexOf(repID)
	if !oFound || !rFound {
		return
	}

	earlier := oi
	if ri < earlier {
		earlier = ri
	}
	if earlier+1 <= o.Sys.BufferCompressThreshold {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := o.Gateway.CompressContext(ctx, rt.Target); err != nil {
			slog.Warn("observer: fire-and-forget compression request failed", "target", rt.Target.ID, "error", err)
		}
	}()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
