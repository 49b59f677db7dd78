// Package reply is L3 of the scheduler: the only layer permitted to speak.
// It is never triggered by new messages alone — only by Intent's
// willingness signal or an unconsumed @-mention — and advances its
// watermark only to the buffer tail it actually saw before the LLM call
// began, never past messages that arrived mid-call. Grounded on the
// teacher's pkg/agent/engine.go HandleMessage/ProcessLLMStream flow,
// adapted from chat-triggered to scheduler-triggered.
package reply

import (
	"context"
	"strings"
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

const detectionInterval = time.Second

type Reply struct {
	Client  llmadapter.Client
	Gateway gateway.Client
	Store   *persona.Store
	Sys     *config.SystemConfig
	Social  *config.SocialConfig
	Bus     *eventbus.Bus
}

func (r *Reply) gateTimeout() time.Duration {
	return time.Duration(r.Sys.IntentGateTimeoutMs) * time.Millisecond
}

// RunTarget blocks until ctx is cancelled. pendingWake/pendingAtMe are
// sticky across iterations: a trigger raised while the IntentGate is locked
// or ProcessorBusy is held by Intent is not lost, it is retried on the next
// ~1 s tick until the gate opens (spec §4.3 step 5's "the gate still
// applies").
func (r *Reply) RunTarget(ctx context.Context, rt *roomdata.Runtime) {
	var pendingWake, pendingAtMe bool

	for {
		if rt.Paused.Get() || rt.Buffer.Len() == 0 {
			if !sleepCtx(ctx, detectionInterval) {
				return
			}
			continue
		}

		newMsgs, firstRun := rt.ReplyWM.ChangeDetect(rt.Buffer)
		if firstRun {
			r.handleFirstRun(rt)
			if !sleepCtx(ctx, detectionInterval) {
				return
			}
			continue
		}

		if rt.ReplyWake.ConsumeIfSet() {
			pendingWake = true
		}
		for _, m := range newMsgs {
			if m.IsAtMe && !m.IsSelf && !rt.Consumed.Contains(m.MessageID) {
				rt.Consumed.Add(m.MessageID)
				pendingAtMe = true
			}
		}
		if pendingAtMe {
			rt.Intent.SetUrgentAtMe()
		}

		if !pendingWake && !pendingAtMe {
			if len(newMsgs) > 0 {
				rt.ReplyWM.Advance(rt.Buffer.TailID())
			}
			if !sleepCtx(ctx, detectionInterval) {
				return
			}
			continue
		}

		lurk := rt.Lurk.Get()
		if lurk == roomdata.LurkFull || (lurk == roomdata.LurkSemi && !pendingAtMe) {
			rt.ReplyWM.Advance(rt.Buffer.TailID())
			pendingWake, pendingAtMe = false, false
			if !sleepCtx(ctx, detectionInterval) {
				return
			}
			continue
		}

		if rt.Gate.Check(time.Now(), r.gateTimeout()) {
			if !sleepCtx(ctx, detectionInterval) {
				return
			}
			continue
		}

		release, ok := rt.Busy.TryAcquire(roomdata.OwnerReply)
		if !ok {
			if !sleepCtx(ctx, detectionInterval) {
				return
			}
			continue
		}

		snapshotWM := rt.Buffer.TailID()
		action, err := r.evaluate(ctx, rt)
		release()

		if err != nil {
			r.Bus.Emit(eventbus.LogEntry{Level: eventbus.LevelError, Target: rt.Target.ID, Message: "reply call failed", Details: map[string]any{"error": err.Error(), "action": action}})
		}

		switch action {
		case "replied", "silent":
			rt.ReplyWM.Advance(snapshotWM)
			pendingWake, pendingAtMe = false, false
			if action == "replied" {
				rt.Gate.Lock(time.Now())
				rt.Intent.SetForceEval()
			}
		case "send_failed", "error":
			// Watermark stays put; pending flags stay set so the next tick
			// retries (spec §4.3 step 9/10).
		}

		if !sleepCtx(ctx, detectionInterval) {
			return
		}
	}
}

// handleFirstRun implements spec §4.3 step 2: a target's very first Reply
// check never fires the LLM, but any @me already sitting in the buffer is
// still consumed and force-wakes Intent.
func (r *Reply) handleFirstRun(rt *roomdata.Runtime) {
	found := false
	for _, m := range rt.Buffer.Snapshot() {
		if m.IsAtMe && !m.IsSelf && !rt.Consumed.Contains(m.MessageID) {
			rt.Consumed.Add(m.MessageID)
			found = true
		}
	}
	if found {
		rt.Intent.SetUrgentAtMe()
	}
	rt.ReplyWM.Advance(rt.Buffer.TailID())
}

// sendRecorder wraps a tools.Sender to let evaluate distinguish "never
// called send_message", "called it and it failed every time", and "called
// it and at least one call succeeded" — the three-way split spec §4.3 step
// 9 needs — without scraping rendered tool-result text.
type sendRecorder struct {
	inner     tools.Sender
	rt        *roomdata.Runtime
	attempts  int
	successes int
}

func (s *sendRecorder) SendMessage(ctx context.Context, targetID string, kind roomdata.Kind, content string) (string, error) {
	s.attempts++
	id, err := s.inner.SendMessage(ctx, targetID, kind, content)
	if err != nil {
		return "", err
	}
	s.successes++
	s.rt.Sent.Append(roomdata.SentEntry{Content: content, Timestamp: time.Now(), MessageID: id})
	return id, nil
}

// gatewaySender adapts internal/gateway.Client to tools.Sender.
type gatewaySender struct{ gw gateway.Client }

func (g gatewaySender) SendMessage(ctx context.Context, targetID string, kind roomdata.Kind, content string) (string, error) {
	return g.gw.SendMessage(ctx, targetID, kind, content)
}

// evaluate runs one Reply LLM call and interprets its outcome into one of
// "replied", "silent", "send_failed", or "error" (spec §4.3 steps 8-10).
func (r *Reply) evaluate(ctx context.Context, rt *roomdata.Runtime) (string, error) {
	snapshot := rt.Buffer.Snapshot()

	tokens, outcome, recorder, err := r.runLLM(ctx, rt, snapshot, false)
	if err != nil {
		tokens, outcome, recorder, err = r.runLLM(ctx, rt, snapshot, true)
		if err != nil {
			return "error", err
		}
	}

	if recorder.attempts > 0 {
		if recorder.successes > 0 {
			return "replied", nil
		}
		return "send_failed", nil
	}

	text := strings.TrimSpace(tokens.Strip(outcome.Final.GetTextContent()))
	if text == "" || promptkit.IsSilence(text) {
		return "silent", nil
	}

	deduped := stripDuplication(text)
	messageID, err := r.Gateway.SendMessage(ctx, rt.Target.ID, rt.Target.Kind, deduped)
	if err != nil {
		return "send_failed", err
	}
	rt.Sent.Append(roomdata.SentEntry{Content: deduped, Timestamp: time.Now(), MessageID: messageID})
	return "replied", nil
}

func (r *Reply) runLLM(ctx context.Context, rt *roomdata.Runtime, snapshot []roomdata.Message, stripImages bool) (promptkit.OwnerTokens, toolloop.Outcome, *sendRecorder, error) {
	tokens := promptkit.NewOwnerTokens()

	sys, err := promptkit.BuildSystemPrompt(promptkit.RoleReply, promptkit.SystemPromptInputs{
		Store:         r.Store,
		Social:        r.Social,
		Target:        rt.Target,
		Lurk:          rt.Lurk.Get(),
		Tokens:        tokens,
		IntentHistory: nil,
	})
	if err != nil {
		return tokens, toolloop.Outcome{}, nil, err
	}

	turns := promptkit.BuildConversationTurns(snapshot, tokens, rt.Consumed)
	messages := append([]llmadapter.Message{sys}, turns...)
	messages = append(messages, r.endOfTurnNudges(rt)...)

	if stripImages {
		for i := range messages {
			messages[i] = messages[i].StripImages()
		}
	}

	recorder := &sendRecorder{inner: gatewaySender{gw: r.Gateway}, rt: rt}
	toolset := &tools.Toolset{
		Store:                r.Store,
		Target:               rt.Target,
		Runtime:              rt,
		Sender:               recorder,
		Stripper:             tokens,
		AgentCanEditStrategy: r.Social.AgentCanEditStrategy,
	}

	driver := &toolloop.Driver{
		Client:          r.Client,
		Registry:        toolset.BuildReply(),
		MaxIterations:   r.Sys.MaxToolLoopIterations,
		ExternalTimeout: time.Duration(r.Sys.ExternalToolTimeoutMs) * time.Millisecond,
		BuiltinTimeout:  time.Duration(r.Sys.BuiltinToolTimeoutMs) * time.Millisecond,
		ToolServerCap:   r.Sys.DefaultToolServerCap,
	}

	outcome, err := driver.Run(ctx, messages)
	return tokens, outcome, recorder, err
}

// endOfTurnNudges builds the self-repetition warning plus the current-
// thought injection from Intent's latest evaluation (spec §4.5).
func (r *Reply) endOfTurnNudges(rt *roomdata.Runtime) []llmadapter.Message {
	recent := rt.Sent.AsMessages()
	var recentTexts []string
	if n := len(recent); n > 0 {
		start := n - 3
		if start < 0 {
			start = 0
		}
		for _, m := range recent[start:] {
			recentTexts = append(recentTexts, m.Content)
		}
	}

	out := []llmadapter.Message{promptkit.EndOfTurnNudge(recentTexts)}

	if latest, ok := rt.Intent.Latest(); ok {
		out = append(out, promptkit.IntentThoughtNudge(latest.Content))
	} else {
		out = append(out, promptkit.IntentThoughtNudge("(Intent is asleep; no recent evaluation.)"))
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
