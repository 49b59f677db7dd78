package geminiofficial

import (
	"context"
	"log/slog"

	"roomkeeper/internal/config"
	"roomkeeper/internal/llmadapter"
)

type Factory struct{}

func (f *Factory) Create(cfg llmadapter.ProviderGroupConfig, sys *config.SystemConfig) ([]llmadapter.Client, error) {
	var clients []llmadapter.Client
	for _, model := range cfg.Models {
		for _, key := range cfg.APIKeys {
			client, err := New(context.Background(), key, model, cfg.UseThoughtSignature)
			if err != nil {
				slog.Error("geminiofficial: failed to create client", "model", model, "error", err)
				continue
			}
			clients = append(clients, client)
		}
	}
	return clients, nil
}

func init() {
	llmadapter.RegisterProvider("gemini", &Factory{})
}
