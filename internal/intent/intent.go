// Package intent is L4 of the scheduler: a per-target loop that produces a
// short "current thought + willingness 1..5" on a cadence driven by message
// arrival rather than wall-clock, and is the sole trigger authority for
// Reply in the absence of an @-mention. Grounded on the teacher's
// pkg/agent/engine.go evaluation flow, adapted from on-demand chat handling
// to a standing background evaluator.
package intent

import (
	"context"
	"regexp"
	"strings"
	"time"

	"roomkeeper/internal/config"
	"roomkeeper/internal/eventbus"
	"roomkeeper/internal/llmadapter"
	"roomkeeper/internal/persona"
	"roomkeeper/internal/promptkit"
	"roomkeeper/internal/roomdata"
	"roomkeeper/internal/tools"
	"roomkeeper/internal/toolloop"
)

// pollInterval is how often a sleeping or cooling-down target re-checks its
// triggers; short enough that the interruptible wake (spec §5) keeps urgent
// @me latency close to the Fetcher interval even if a wake is ever missed.
const pollInterval = 500 * time.Millisecond

// maxHistoryMessages bounds how much of the buffer Intent reads per call
// (spec §4.4 step 2: "the last <= 30 buffer messages").
const maxHistoryMessages = 30

type Intent struct {
	Client llmadapter.Client
	Store  *persona.Store
	Sys    *config.SystemConfig
	Social *config.SocialConfig
	Bus    *eventbus.Bus
}

func (in *Intent) cooldown() time.Duration {
	return time.Duration(in.Sys.IntentEvalCooldownMs) * time.Millisecond
}

func (in *Intent) idleTimeout() time.Duration {
	return time.Duration(in.Sys.IntentIdleTimeoutMs) * time.Millisecond
}

// RunTarget blocks until ctx is cancelled.
func (in *Intent) RunTarget(ctx context.Context, rt *roomdata.Runtime) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if rt.Paused.Get() {
			if !rt.Intent.Sleep(pollInterval) {
				// timed out, nothing to do; loop and re-check paused
			}
			continue
		}

		urgent := rt.Intent.ConsumeUrgentAtMe()
		forced := rt.Intent.ConsumeForceEval()
		newMsgs, _ := rt.IntentWM.ChangeDetect(rt.Buffer)
		elapsed := time.Since(rt.Intent.LastEval())

		shouldEval := false
		switch {
		case urgent, forced:
			shouldEval = true
		case rt.Intent.IsSleeping():
			shouldEval = false
		case rt.Lurk.Get() == roomdata.LurkNormal:
			shouldEval = len(newMsgs) > 0 || elapsed >= in.cooldown()
		default:
			shouldEval = elapsed >= in.cooldown()
		}

		if shouldEval {
			in.runEvaluation(ctx, rt, false)
			continue
		}

		if !rt.Intent.IsSleeping() && time.Since(rt.Intent.LastActivity()) >= in.idleTimeout() {
			in.runEvaluation(ctx, rt, true)
			continue
		}

		if !rt.Intent.Sleep(pollInterval) {
			// plain timeout, loop to re-check triggers
		}
	}
}

// runEvaluation performs one full Intent cycle (spec §4.4 steps 1-9). When
// final is true this is the idle-timeout evaluation: after it completes,
// Intent goes back to sleep and its watermark is advanced to the buffer
// tail regardless of what was parsed.
func (in *Intent) runEvaluation(ctx context.Context, rt *roomdata.Runtime, final bool) {
	release := rt.Busy.Acquire(roomdata.OwnerIntent)
	defer release()

	text, err := in.callWithRetries(ctx, rt)
	entry := parseEntry(time.Now(), text, err)
	rt.Intent.Push(entry)
	rt.Intent.SetLastEval(entry.Timestamp)

	if err != nil {
		in.Bus.Emit(eventbus.LogEntry{Level: eventbus.LevelError, Target: rt.Target.ID, Message: "intent evaluation failed", Details: map[string]any{"error": err.Error()}})
	} else {
		in.Bus.Emit(eventbus.LogEntry{Level: eventbus.LevelIntent, Target: rt.Target.ID, Message: entry.Content, Details: map[string]any{"willingness": entry.Willingness, "label": entry.WillingnessLabel}})
	}

	rt.Gate.Unlock()
	rt.IntentWM.Advance(rt.Buffer.TailID())

	if entry.Willingness >= 3 {
		rt.ReplyWake.Set()
	}

	if final {
		rt.Intent.SetSleeping(true)
	}
}

// callWithRetries issues the Intent LLM call with up to
// IntentLLMMaxRetries retries (3 total attempts), rebuilding the prompt
// against the current buffer each time so a retry picks up messages that
// arrived mid-retry (spec §4.4 step 3).
func (in *Intent) callWithRetries(ctx context.Context, rt *roomdata.Runtime) (string, error) {
	retryDelay := time.Duration(in.Sys.IntentRetryDelayMs) * time.Millisecond
	maxAttempts := in.Sys.IntentLLMMaxRetries + 1

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		text, err := in.callOnce(ctx, rt)
		if err == nil {
			return text, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func (in *Intent) callOnce(ctx context.Context, rt *roomdata.Runtime) (string, error) {
	tokens := promptkit.NewOwnerTokens()

	sys, err := promptkit.BuildSystemPrompt(promptkit.RoleIntent, promptkit.SystemPromptInputs{
		Store:         in.Store,
		Social:        in.Social,
		Target:        rt.Target,
		Lurk:          rt.Lurk.Get(),
		Tokens:        tokens,
		IntentHistory: rt.Intent.History(),
	})
	if err != nil {
		return "", err
	}

	snapshot := rt.Buffer.Snapshot()
	if len(snapshot) > maxHistoryMessages {
		snapshot = snapshot[len(snapshot)-maxHistoryMessages:]
	}

	turns := promptkit.BuildConversationTurns(snapshot, tokens, rt.Consumed)
	messages := append([]llmadapter.Message{sys}, turns...)
	for i := range messages {
		messages[i] = messages[i].StripImages()
	}

	toolset := &tools.Toolset{Store: in.Store, Target: rt.Target, Runtime: rt}
	driver := &toolloop.Driver{
		Client:          in.Client,
		Registry:        toolset.BuildIntent(),
		MaxIterations:   in.Sys.MaxToolLoopIterations,
		ExternalTimeout: time.Duration(in.Sys.ExternalToolTimeoutMs) * time.Millisecond,
		BuiltinTimeout:  time.Duration(in.Sys.BuiltinToolTimeoutMs) * time.Millisecond,
		ToolServerCap:   in.Sys.DefaultToolServerCap,
	}

	outcome, err := driver.Run(ctx, messages)
	if err != nil {
		return "", err
	}
	return outcome.Final.GetTextContent(), nil
}

// willingnessTags maps the six fixed Chinese tags to their willingness
// score, in the order spec §4.4 step 4 lists them.
var willingnessTags = []struct {
	tag   string
	score int
}{
	{"不想理", 1},
	{"无感", 2},
	{"等回复", 2},
	{"有点想说", 3},
	{"想聊", 4},
	{"忍不住", 5},
}

var strictTagRe = regexp.MustCompile(`\[([^\[\]：:]+)[：:]([^\[\]]*)\]`)
var looseTagRe = regexp.MustCompile(`([^\s：:]+)[：:](.*)`)

// parseEntry turns one raw Intent completion into a ring-buffer entry,
// matching the strict `[tag：reason]` form first, then the loose
// `tag：reason` form, then falling back to idle/untagged (spec §4.4 step 4).
func parseEntry(ts time.Time, text string, callErr error) roomdata.IntentEntry {
	if callErr != nil {
		return roomdata.IntentEntry{Timestamp: ts, Idle: true, Willingness: 0, Content: callErr.Error()}
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return roomdata.IntentEntry{Timestamp: ts, Idle: true, Willingness: 0, Content: ""}
	}

	if m := strictTagRe.FindStringSubmatch(trimmed); m != nil {
		if score, label, ok := matchTag(m[1]); ok {
			return roomdata.IntentEntry{Timestamp: ts, Willingness: score, WillingnessLabel: label, Content: strings.TrimSpace(m[2])}
		}
	}
	if m := looseTagRe.FindStringSubmatch(trimmed); m != nil {
		if score, label, ok := matchTag(m[1]); ok {
			return roomdata.IntentEntry{Timestamp: ts, Willingness: score, WillingnessLabel: label, Content: strings.TrimSpace(m[2])}
		}
	}

	return roomdata.IntentEntry{Timestamp: ts, Idle: true, Willingness: 0, Content: trimmed}
}

func matchTag(candidate string) (score int, label string, ok bool) {
	candidate = strings.TrimSpace(candidate)
	for _, t := range willingnessTags {
		if strings.Contains(candidate, t.tag) {
			return t.score, t.tag, true
		}
	}
	return 0, "", false
}
