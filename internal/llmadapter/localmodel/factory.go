package localmodel

import (
	"log/slog"

	"roomkeeper/internal/config"
	"roomkeeper/internal/llmadapter"
)

type Factory struct{}

func (f *Factory) Create(cfg llmadapter.ProviderGroupConfig, sys *config.SystemConfig) ([]llmadapter.Client, error) {
	var clients []llmadapter.Client
	for _, model := range cfg.Models {
		client, err := New(model, cfg.BaseURL, cfg.Options)
		if err != nil {
			slog.Error("localmodel: failed to create client", "model", model, "error", err)
			continue
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func init() {
	llmadapter.RegisterProvider("ollama", &Factory{})
}
