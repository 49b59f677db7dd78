// Package engine wires the four scheduler layers, the daily compression
// job, the chat gateway, and the LLM back ends into one running process per
// assistant, matching spec §5's "one engine singleton activeLoop of type
// { petId, config, generation, cleanup }". Grounded on the teacher's
// main.go + GatewayBuilder sequencing (construct every collaborator, start
// every loop, hand back a stop function).
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"roomkeeper/internal/compress"
	"roomkeeper/internal/config"
	"roomkeeper/internal/eventbus"
	"roomkeeper/internal/fetcher"
	"roomkeeper/internal/gateway"
	"roomkeeper/internal/gateway/discord"
	"roomkeeper/internal/gateway/telegram"
	"roomkeeper/internal/gateway/wsbridge"
	"roomkeeper/internal/intent"
	"roomkeeper/internal/llmadapter"
	"roomkeeper/internal/observer"
	"roomkeeper/internal/persona"
	"roomkeeper/internal/reply"
	"roomkeeper/internal/roomdata"
)

// Engine is the process-wide singleton of spec §5: at most one generation
// is ever live. Start stops any previous generation first, so a freshly
// started loop can never be serviced by a leftover goroutine from the one
// it replaced.
type Engine struct {
	mu         sync.Mutex
	generation int64
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	Bus *eventbus.Bus

	runtimesMu sync.Mutex
	runtimes   map[string]*roomdata.Runtime
}

func New() *Engine {
	return &Engine{
		Bus:      eventbus.New(250 * time.Millisecond),
		runtimes: make(map[string]*roomdata.Runtime),
	}
}

// Start tears down any running generation, builds every collaborator fresh
// from cfg/sys, and launches the four per-target scheduler loops plus the
// daily compression job. workspaceRoot is the per-assistant persona
// directory (spec §6's on-disk layout root).
func (e *Engine) Start(cfg *config.Config, sys *config.SystemConfig, workspaceRoot string) error {
	e.Stop()

	if err := cfg.Validate(); err != nil {
		return err
	}

	store := persona.New(workspaceRoot, sys)

	gw, err := e.buildGateway(cfg)
	if err != nil {
		return fmt.Errorf("engine: build gateway: %w", err)
	}

	observerClient, err := llmadapter.Resolve(cfg, sys, cfg.Social.APIProviderID, cfg.Social.ModelName)
	if err != nil {
		return fmt.Errorf("engine: resolve observer/reply model: %w", err)
	}
	intentClient, err := e.resolveIntentClient(cfg, sys)
	if err != nil {
		return fmt.Errorf("engine: resolve intent model: %w", err)
	}

	e.mu.Lock()
	e.generation++
	generation := e.generation
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	runtimes := e.rebuildRuntimes(cfg, sys, store)

	if err := e.reconcileKnownTargets(store, cfg); err != nil {
		e.Bus.Emit(eventbus.LogEntry{Level: eventbus.LevelError, Message: "engine: failed to persist known targets", Details: map[string]any{"error": err.Error()}})
	}

	f := &fetcher.Fetcher{
		Gateway:  gw,
		Store:    store,
		Sys:      sys,
		Bus:      e.Bus,
		Runtimes: func() []*roomdata.Runtime { return e.snapshotRuntimes() },
	}
	obs := &observer.Observer{Client: observerClient, Gateway: gw, Store: store, Sys: sys, Social: &cfg.Social, Bus: e.Bus}
	rep := &reply.Reply{Client: observerClient, Gateway: gw, Store: store, Sys: sys, Social: &cfg.Social, Bus: e.Bus}
	itt := &intent.Intent{Client: intentClient, Store: store, Sys: sys, Social: &cfg.Social, Bus: e.Bus}
	job := &compress.Job{
		Client: observerClient,
		Store:  store,
		Sys:    sys,
		Bus:    e.Bus,
		Targets: func() []persona.KnownTarget {
			targets, _ := store.KnownTargets()
			return targets
		},
	}

	e.launch(func() { f.Run(ctx) })
	e.launch(func() { job.Run(ctx) })
	for _, rt := range runtimes {
		rt := rt
		e.launch(func() { obs.RunTarget(ctx, rt) })
		e.launch(func() { rep.RunTarget(ctx, rt) })
		e.launch(func() { itt.RunTarget(ctx, rt) })
	}

	_ = generation // bumped per Start call; every loop's lifetime is bounded
	// by ctx, so generation itself only needs to exist, not be checked here.
	return nil
}

// launch runs fn in a tracked goroutine, joined by Stop's WaitGroup.
func (e *Engine) launch(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// Stop cancels the current generation and blocks until every loop has
// exited. Safe to call when nothing is running.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	e.wg.Wait()
}

func (e *Engine) snapshotRuntimes() []*roomdata.Runtime {
	e.runtimesMu.Lock()
	defer e.runtimesMu.Unlock()
	out := make([]*roomdata.Runtime, 0, len(e.runtimes))
	for _, rt := range e.runtimes {
		out = append(out, rt)
	}
	return out
}

// rebuildRuntimes constructs one Runtime per watched group/friend, applying
// persisted lurk modes. Each Start call gets entirely fresh Runtimes — spec
// §5 defines restart-discards-stale-callbacks semantics for the engine
// singleton but not cross-restart buffer/watermark preservation, so a
// config reload is a clean rebuild rather than an incremental diff.
func (e *Engine) rebuildRuntimes(cfg *config.Config, sys *config.SystemConfig, store *persona.Store) map[string]*roomdata.Runtime {
	runtimes := make(map[string]*roomdata.Runtime)

	add := func(id string, kind roomdata.Kind) {
		rt := roomdata.NewRuntime(roomdata.Target{ID: id, Kind: kind}, sys.BufferHardCap, sys.SeenIDsRebuildMultiplier)
		if mode, ok := cfg.Lurk[id]; ok {
			rt.Lurk.Set(roomdata.LurkMode(mode))
		}
		runtimes[id] = rt
	}
	for _, id := range cfg.Social.WatchedGroups {
		add(id, roomdata.KindGroup)
	}
	for _, id := range cfg.Social.WatchedFriends {
		add(id, roomdata.KindDirect)
	}

	e.runtimesMu.Lock()
	e.runtimes = runtimes
	e.runtimesMu.Unlock()
	return runtimes
}

// reconcileKnownTargets implements spec §4.6's engine-start step: load
// KnownTargets and merge in the current config's watched targets, so the
// compression job can enumerate archive files for targets even after they
// are later removed from the live config.
func (e *Engine) reconcileKnownTargets(store *persona.Store, cfg *config.Config) error {
	existing, err := store.KnownTargets()
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(existing))
	merged := append([]persona.KnownTarget(nil), existing...)
	for _, t := range existing {
		seen[t.ID] = true
	}
	for _, id := range append(append([]string(nil), cfg.Social.WatchedGroups...), cfg.Social.WatchedFriends...) {
		if !seen[id] {
			merged = append(merged, persona.KnownTarget{ID: id})
			seen[id] = true
		}
	}

	return store.WriteKnownTargets(merged)
}

// resolveIntentClient scopes localmodel's lower-latency backend to the
// Intent role only (SPEC_FULL's domain-stack decision): if one of the
// configured providers declares api format "local_model", Intent uses it in
// preference to the shared observer/reply provider; otherwise it falls back
// to the same provider, optionally with its own model name override.
func (e *Engine) resolveIntentClient(cfg *config.Config, sys *config.SystemConfig) (llmadapter.Client, error) {
	providerID := cfg.Social.APIProviderID
	for _, p := range cfg.Providers {
		if p.APIFormat == "local_model" {
			providerID = p.ID
			break
		}
	}

	model := cfg.Social.ModelName
	if cfg.Social.IntentModelName != "" {
		model = cfg.Social.IntentModelName
	}

	return llmadapter.Resolve(cfg, sys, providerID, model)
}

// buildGateway selects the one configured chat-gateway transport named
// under cfg.Channels (spec §6's external gateway tool protocol), trying
// each recognized channel key in turn.
func (e *Engine) buildGateway(cfg *config.Config) (gateway.Client, error) {
	if raw, ok := cfg.Channels["discord"]; ok {
		var dc struct {
			BotToken string `json:"botToken"`
		}
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &dc); err != nil {
			return nil, fmt.Errorf("discord channel config: %w", err)
		}
		return discord.New(dc.BotToken)
	}
	if raw, ok := cfg.Channels["telegram"]; ok {
		var tc struct {
			Token string `json:"token"`
		}
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &tc); err != nil {
			return nil, fmt.Errorf("telegram channel config: %w", err)
		}
		return telegram.New(tc.Token)
	}
	if raw, ok := cfg.Channels["wsbridge"]; ok {
		var wc struct {
			URL string `json:"url"`
		}
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &wc); err != nil {
			return nil, fmt.Errorf("wsbridge channel config: %w", err)
		}
		return wsbridge.Dial(context.Background(), wc.URL)
	}
	return nil, fmt.Errorf("no recognized channel configured (expected one of: discord, telegram, wsbridge)")
}
