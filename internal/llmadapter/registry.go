package llmadapter

import "roomkeeper/internal/config"

// ProviderGroupConfig configures a cluster of models from one provider —
// unchanged in shape from the teacher's pkg/llm/registry.go
// ProviderGroupConfig.
type ProviderGroupConfig struct {
	Type                string         `json:"type"`
	APIKeys             []string       `json:"api_keys,omitempty"`
	Models              []string       `json:"models"`
	BaseURL             string         `json:"base_url,omitempty"`
	UseThoughtSignature bool           `json:"use_thought_signature,omitempty"`
	Options             map[string]any `json:"options,omitempty"`
}

// ProviderFactory lets each back-end package self-register a constructor
// for the generic loader, exactly as in the teacher.
type ProviderFactory interface {
	Create(groupConfig ProviderGroupConfig, system *config.SystemConfig) ([]Client, error)
}

var providerRegistry = make(map[string]ProviderFactory)

func RegisterProvider(name string, factory ProviderFactory) {
	providerRegistry[name] = factory
}

func GetProviderFactory(name string) (ProviderFactory, bool) {
	f, ok := providerRegistry[name]
	return f, ok
}
