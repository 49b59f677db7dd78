// Package config loads and validates roomkeeper's two configuration layers:
// Config (per-assistant social/provider settings) and SystemConfig
// (engine-level technical knobs).
package config

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// ProviderConfig describes one entry in the api_providers settings key.
type ProviderConfig struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	APIKey       string   `json:"apiKey"`
	BaseURL      string   `json:"baseUrl"`
	APIFormat    string   `json:"apiFormat"` // "openai_compatible" | "gemini_official" | "local_model"
	DefaultModel string   `json:"defaultModel,omitempty"`
	CachedModels []string `json:"cachedModels,omitempty"`
}

// SocialConfig is the `social_config_<petId>` settings-store entry (spec §6).
type SocialConfig struct {
	PetID                    string   `json:"petId"`
	MCPServerName            string   `json:"mcpServerName"`
	APIProviderID            string   `json:"apiProviderId"`
	ModelName                string   `json:"modelName"`
	IntentModelName          string   `json:"intentModelName,omitempty"`
	ReplyIntervalMs          int      `json:"replyInterval,omitempty"`
	ObserverIntervalMs       int      `json:"observerInterval,omitempty"`
	PollingIntervalMs        int      `json:"pollingInterval,omitempty"`
	WatchedGroups            []string `json:"watchedGroups"`
	WatchedFriends           []string `json:"watchedFriends"`
	SocialPersonaPrompt      string   `json:"socialPersonaPrompt"`
	AtMustReply              bool     `json:"atMustReply"`
	AgentCanEditStrategy     bool     `json:"agentCanEditStrategy,omitempty"`
	InjectBehaviorGuidelines string   `json:"injectBehaviorGuidelines,omitempty"`
	AtInstantReply           bool     `json:"atInstantReply,omitempty"`
	BotQQ                    string   `json:"botQQ"`
	OwnerQQ                  string   `json:"ownerQQ,omitempty"`
	OwnerName                string   `json:"ownerName,omitempty"`
	EnabledMCPServers        []string `json:"enabledMcpServers,omitempty"`
}

// LurkModes is the `social_lurk_modes_<petId>` settings-store entry.
// Absent entries default to "normal" and are never persisted.
type LurkModes map[string]string

// Config is the top-level config.json document.
type Config struct {
	PetID     string                         `json:"pet_id"`
	Social    SocialConfig                   `json:"social"`
	Lurk      LurkModes                      `json:"lurk_modes,omitempty"`
	Providers []ProviderConfig               `json:"api_providers"`
	Channels  map[string]jsoniter.RawMessage `json:"channels,omitempty"`
}

// DeepCopy clones Config so concurrent readers never observe a half-applied
// reload.
func (c *Config) DeepCopy() *Config {
	cp := *c
	cp.Social.WatchedGroups = append([]string(nil), c.Social.WatchedGroups...)
	cp.Social.WatchedFriends = append([]string(nil), c.Social.WatchedFriends...)
	if c.Lurk != nil {
		cp.Lurk = make(LurkModes, len(c.Lurk))
		for k, v := range c.Lurk {
			cp.Lurk[k] = v
		}
	}
	cp.Providers = append([]ProviderConfig(nil), c.Providers...)
	return &cp
}

// Validate ensures mandatory fields are present before the engine starts.
func (c *Config) Validate() error {
	if c.PetID == "" {
		return fmt.Errorf("config: mandatory 'pet_id' is missing")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("config: mandatory 'api_providers' is missing or empty")
	}
	if c.Social.APIProviderID == "" {
		return fmt.Errorf("config: social.apiProviderId is required")
	}
	return nil
}

// ResolveProvider returns the provider entry referenced by id, or
// (nil, false) if unresolved.
func (c *Config) ResolveProvider(id string) (*ProviderConfig, bool) {
	for i := range c.Providers {
		if c.Providers[i].ID == id {
			return &c.Providers[i], true
		}
	}
	return nil, false
}

// SystemConfig carries engine-level technical parameters (spec §4's named
// constants), with DefaultSystemConfig() providing the spec's literal
// defaults.
type SystemConfig struct {
	FetchIntervalMs          int `json:"fetch_interval_ms"`
	ObserverIntervalMs       int `json:"observer_interval_ms"`
	ObserverSleepMs          int `json:"observer_sleep_ms"`
	ReplyDetectionMs         int `json:"reply_detection_ms"`
	IntentEvalCooldownMs     int `json:"intent_eval_cooldown_ms"`
	IntentIdleTimeoutMs      int `json:"intent_idle_timeout_ms"`
	IntentLLMMaxRetries      int `json:"intent_llm_max_retries"`
	IntentRetryDelayMs       int `json:"intent_retry_delay_ms"`
	IntentGateTimeoutMs      int `json:"intent_gate_timeout_ms"`
	BufferHardCap            int `json:"buffer_hard_cap"`
	BufferCompressThreshold  int `json:"buffer_compress_threshold"`
	SeenIDsRebuildMultiplier int `json:"seen_ids_rebuild_multiplier"`
	MaxToolLoopIterations    int `json:"max_tool_loop_iterations"`
	DefaultToolServerCap     int `json:"default_tool_server_cap"`
	ExternalToolTimeoutMs    int `json:"external_tool_timeout_ms"`
	BuiltinToolTimeoutMs     int `json:"builtin_tool_timeout_ms"`
	ObserverBackoffCapMs     int `json:"observer_backoff_cap_ms"`
	DailyCompressCron        string `json:"daily_compress_cron"`
	LogLevel                 string `json:"log_level"`
	GroupRuleMaxChars        int `json:"group_rule_max_chars"`
	ReplyStrategyMaxChars    int `json:"reply_strategy_max_chars"`
	PersonaTruncateHeadPct   float64 `json:"persona_truncate_head_pct"`
	PersonaTruncateTailPct   float64 `json:"persona_truncate_tail_pct"`
	PersonaMaxChars          int `json:"persona_max_chars"`
}

// DefaultSystemConfig returns the spec's literal default constants.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		FetchIntervalMs:          1000,
		ObserverIntervalMs:       180_000,
		ObserverSleepMs:          2000,
		ReplyDetectionMs:         1000,
		IntentEvalCooldownMs:     60_000,
		IntentIdleTimeoutMs:      5 * 60_000,
		IntentLLMMaxRetries:      2,
		IntentRetryDelayMs:       2000,
		IntentGateTimeoutMs:      30_000,
		BufferHardCap:            500,
		BufferCompressThreshold:  30,
		SeenIDsRebuildMultiplier: 3,
		MaxToolLoopIterations:    100,
		DefaultToolServerCap:     100,
		ExternalToolTimeoutMs:    5 * 60_000,
		BuiltinToolTimeoutMs:     60_000,
		ObserverBackoffCapMs:     300_000,
		DailyCompressCron:        "55 23 * * *",
		LogLevel:                 "info",
		GroupRuleMaxChars:        10_000,
		ReplyStrategyMaxChars:    5_000,
		PersonaTruncateHeadPct:   0.7,
		PersonaTruncateTailPct:   0.2,
		PersonaMaxChars:          20_000,
	}
}

func (s *SystemConfig) DeepCopy() *SystemConfig {
	cp := *s
	return &cp
}

// Load reads config.json and system.json from the current directory,
// returning defaulted system config when system.json is absent.
func Load() (*Config, *SystemConfig, error) {
	const appPath = "config.json"
	if _, err := os.Stat(appPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file %q not found, please create one", appPath)
	}

	raw, err := os.ReadFile(appPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	sysCfg := LoadSystemConfig("system.json")
	return &cfg, sysCfg, nil
}

// LoadSystemConfig loads an optional system.json, falling back to defaults
// for any field not present (and if the file itself is missing/unparsable).
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, cfg); err != nil {
		return DefaultSystemConfig()
	}
	return cfg
}
