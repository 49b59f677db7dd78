package llmadapter

import (
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"

	"roomkeeper/internal/config"
)

// providerTypeFor maps spec §6's api_providers.apiFormat values onto the
// internal provider registry keys used by RegisterProvider.
func providerTypeFor(apiFormat string) string {
	switch apiFormat {
	case "gemini_official":
		return "gemini"
	case "local_model":
		return "ollama"
	default:
		return "openai"
	}
}

// Resolve builds a single-model Client for the given provider id + model
// name, the shape every scheduler layer actually needs (Observer/Reply use
// social.modelName; Intent may override with social.intentModelName). It is
// the domain-specific entry point on top of the generic NewFromConfig below.
func Resolve(cfg *config.Config, sys *config.SystemConfig, providerID, modelName string) (Client, error) {
	provider, ok := cfg.ResolveProvider(providerID)
	if !ok {
		return nil, fmt.Errorf("llmadapter: api provider %q not resolved", providerID)
	}

	group := ProviderGroupConfig{
		Type:    providerTypeFor(provider.APIFormat),
		APIKeys: []string{provider.APIKey},
		Models:  []string{modelName},
		BaseURL: provider.BaseURL,
	}

	factory, ok := GetProviderFactory(group.Type)
	if !ok {
		return nil, fmt.Errorf("llmadapter: no provider factory registered for %q", group.Type)
	}

	clients, err := factory.Create(group, sys)
	if err != nil {
		return nil, fmt.Errorf("llmadapter: create client for %q: %w", providerID, err)
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("llmadapter: provider %q produced no clients", providerID)
	}
	return clients[0], nil
}

// NewFromConfig is the generic multi-group loader in the teacher's original
// shape (pkg/llm/loader.go): a JSON array of ProviderGroupConfig producing
// one atomic client per model/key, wrapped in a FallbackClient when more
// than one atomic client results. Kept for callers that want
// fallback-across-providers rather than a single pinned model; the engine
// itself resolves every role, the daily compression job included, through
// Resolve.
func NewFromConfig(rawLLM jsoniter.RawMessage, system *config.SystemConfig) (Client, error) {
	if rawLLM == nil {
		return nil, fmt.Errorf("llmadapter: missing llm config")
	}

	var groups []ProviderGroupConfig
	if err := jsoniter.Unmarshal(rawLLM, &groups); err != nil {
		return nil, fmt.Errorf("llmadapter: parse llm config: %w", err)
	}

	var all []Client
	for _, group := range groups {
		factory, ok := GetProviderFactory(group.Type)
		if !ok {
			slog.Warn("unknown llm provider type", "type", group.Type)
			continue
		}
		clients, err := factory.Create(group, system)
		if err != nil {
			slog.Warn("failed to create llm clients", "type", group.Type, "error", err)
			continue
		}
		all = append(all, clients...)
	}

	if len(all) == 0 {
		return nil, fmt.Errorf("llmadapter: no llm clients could be initialized")
	}
	if len(all) == 1 {
		return all[0], nil
	}
	return &FallbackClient{
		Clients:    all,
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
	}, nil
}
