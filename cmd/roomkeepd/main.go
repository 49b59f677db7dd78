// Command roomkeepd is the process entrypoint: load config, start the
// engine, and keep it running across config edits until a signal arrives.
// Grounded on the teacher's main.go (signal-context lifecycle, config
// hot-reload loop, retry-with-backoff on startup failure).
package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"roomkeeper/internal/config"
	"roomkeeper/internal/engine"
	_ "roomkeeper/internal/llmadapter/geminiofficial" // self-registers the "gemini" provider factory
	_ "roomkeeper/internal/llmadapter/localmodel"     // self-registers the "ollama" provider factory
	_ "roomkeeper/internal/llmadapter/openaicompat"   // self-registers the "openai" provider factory
	"roomkeeper/internal/rlog"
)

const workspaceRoot = "data"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, sysCfg, err := config.Load(); err == nil {
		rlog.Setup(sysCfg.LogLevel)
	} else {
		rlog.Setup("info")
	}

	reloadCh := config.WatchConfig(ctx, "config.json", "system.json")
	e := engine.New()
	defer e.Stop()

	for {
		if err := startOnce(e); err != nil {
			slog.Error("roomkeepd: failed to start", "error", err)
			slog.Info("roomkeepd: retrying in 5 seconds")
			select {
			case <-ctx.Done():
				return
			case <-reloadCh:
				slog.Info("roomkeepd: config change detected while waiting, retrying immediately")
			case <-time.After(5 * time.Second):
			}
			continue
		}

		slog.Info("roomkeepd: engine started")
		select {
		case <-ctx.Done():
			return
		case <-reloadCh:
			slog.Info("roomkeepd: config change detected, restarting engine")
		}
	}
}

// startOnce loads the current config and (re)starts the engine from it.
// Start itself stops any previously running generation first, so this is
// safe to call repeatedly on every reload.
func startOnce(e *engine.Engine) error {
	cfg, sysCfg, err := config.Load()
	if err != nil {
		return err
	}
	rlog.Setup(sysCfg.LogLevel)
	return e.Start(cfg, sysCfg, workspaceRoot)
}
