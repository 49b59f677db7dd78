package openaicompat

import (
	"log/slog"

	"roomkeeper/internal/config"
	"roomkeeper/internal/llmadapter"
)

type Factory struct{}

func (f *Factory) Create(cfg llmadapter.ProviderGroupConfig, sys *config.SystemConfig) ([]llmadapter.Client, error) {
	apiKey := ""
	if len(cfg.APIKeys) > 0 {
		apiKey = cfg.APIKeys[0]
	}

	var clients []llmadapter.Client
	for _, model := range cfg.Models {
		if model == "" {
			continue
		}
		clients = append(clients, New("openai", apiKey, model, cfg.BaseURL))
	}
	if len(clients) == 0 {
		slog.Warn("openaicompat: no models configured, no clients created")
	}
	return clients, nil
}

func init() {
	llmadapter.RegisterProvider("openai", &Factory{})
}
