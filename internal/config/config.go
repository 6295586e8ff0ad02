// Package config loads and manages reactagent configuration.
// Configuration source priority (highest to lowest):
// 1. Environment variables (LLM_API_KEY, LLM_BASE_URL, LLM_MODEL, ANTHROPIC_API_KEY, etc.)
// 2. Config file path specified via --config flag
// 3. ~/.config/reactagent/config.yaml
//
// String values in the file may reference the environment as ${VAR} or
// ${VAR:-default}.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed providers_default.yaml
var defaultProvidersYAML []byte

// DefaultThreshold is the fraction of the context window at which history is
// compacted when the config does not say otherwise.
const DefaultThreshold = 0.5

// ProviderDefaults holds the default base URL and model for a provider.
type ProviderDefaults struct {
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// LoadProviderDefaults parses the embedded defaults and merges any user
// overrides from ~/.config/reactagent/providers.yaml.
func LoadProviderDefaults() map[string]ProviderDefaults {
	defs := make(map[string]ProviderDefaults)
	_ = yaml.Unmarshal(defaultProvidersYAML, &defs)

	dir, err := Dir()
	if err != nil {
		return defs
	}
	data, err := os.ReadFile(filepath.Join(dir, "providers.yaml"))
	if err != nil {
		return defs
	}
	userDefs := make(map[string]ProviderDefaults)
	if yaml.Unmarshal(data, &userDefs) != nil {
		return defs
	}
	for name, ud := range userDefs {
		d := defs[name]
		if ud.BaseURL != "" {
			d.BaseURL = ud.BaseURL
		}
		if ud.DefaultModel != "" {
			d.DefaultModel = ud.DefaultModel
		}
		defs[name] = d
	}
	return defs
}

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// ChatCompressionConfig controls when history is compacted.
type ChatCompressionConfig struct {
	// ContextPercentageThreshold is the fraction of the model's context
	// window at which history is compacted. 1 disables the automatic check.
	ContextPercentageThreshold float64 `yaml:"context_percentage_threshold"`

	// ForceOnOverflow compacts with force when the provider rejects a request
	// for exceeding its context window.
	ForceOnOverflow bool `yaml:"force_on_overflow"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string   `yaml:"level"`  // debug | info | warn | error
	Format      string   `yaml:"format"` // json | console
	OutputPaths []string `yaml:"output_paths"`
}

// MetricsConfig holds Prometheus exporter settings.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty = disabled.
	Addr string `yaml:"addr"`
}

// Config is the complete configuration structure for reactagent.
type Config struct {
	// Provider is the active provider name (e.g. "ollama", "anthropic", "openai")
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// Temperature is passed to the model when set.
	Temperature *float64 `yaml:"temperature"`

	// Providers holds per-provider configuration.
	Providers map[string]*ProviderConfig `yaml:"providers"`

	// SystemPrompt is a custom system prompt (empty uses default).
	SystemPrompt string `yaml:"system_prompt"`

	// ContextWindow overrides the context window of the active model.
	// 0 = detect from the model name.
	ContextWindow int `yaml:"context_window"`

	// ModelLimits maps model names or globs ("qwen*") to context windows.
	ModelLimits map[string]int `yaml:"model_limits"`

	ChatCompression ChatCompressionConfig `yaml:"chat_compression"`

	// Tokenizer: "estimate" (default) | "tiktoken"
	Tokenizer string `yaml:"tokenizer"`

	// SummaryModel is used for compaction summaries. Empty = active model.
	SummaryModel string `yaml:"summary_model"`

	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:    "ollama",
		Providers:   make(map[string]*ProviderConfig),
		ModelLimits: make(map[string]int),
		ChatCompression: ChatCompressionConfig{
			ContextPercentageThreshold: DefaultThreshold,
		},
		Tokenizer: "estimate",
		Log: LogConfig{
			Level:       "warn",
			Format:      "console",
			OutputPaths: []string{"stderr"},
		},
	}
}

// Dir returns ~/.config/reactagent.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "reactagent"), nil
}

// Load reads the config file and merges environment variable overrides.
// A missing file yields the defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		if dir, err := Dir(); err == nil {
			configPath = filepath.Join(dir, "config.yaml")
		}
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}
	if cfg.ModelLimits == nil {
		cfg.ModelLimits = make(map[string]int)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return err
	}
	if root.Kind == 0 {
		return nil // empty document
	}
	if err := interpolateNode(&root, os.LookupEnv); err != nil {
		return err
	}
	return root.Decode(cfg)
}

// Validate checks value ranges. Threshold 1 is accepted and turns automatic
// compaction off.
func (c *Config) Validate() error {
	t := c.ChatCompression.ContextPercentageThreshold
	if !(t > 0 && t <= 1) {
		return fmt.Errorf("chat_compression.context_percentage_threshold must be in (0, 1], got %v", t)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be in [0, 2], got %v", *c.Temperature)
	}
	switch c.Tokenizer {
	case "", "estimate", "tiktoken":
	default:
		return fmt.Errorf("unknown tokenizer %q (want estimate or tiktoken)", c.Tokenizer)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.ContextWindow < 0 {
		return fmt.Errorf("context_window must not be negative, got %d", c.ContextWindow)
	}
	return nil
}

// GetProviderConfig returns the config for the named provider, or an empty config if not found.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok && pc != nil {
		return pc
	}
	return &ProviderConfig{}
}

// ActiveModel resolves the model to use: global override, then the
// provider's configured model, then the provider's known default.
func (c *Config) ActiveModel() string {
	if c.Model != "" {
		return c.Model
	}
	if m := c.GetProviderConfig(c.Provider).Model; m != "" {
		return m
	}
	return KnownProviderModels[c.Provider]
}

// ModelLimitOverrides merges model_limits with context_window, which applies
// to the active model.
func (c *Config) ModelLimitOverrides() map[string]int {
	out := make(map[string]int, len(c.ModelLimits)+1)
	for k, v := range c.ModelLimits {
		out[k] = v
	}
	if c.ContextWindow > 0 {
		if m := c.ActiveModel(); m != "" {
			out[m] = c.ContextWindow
		}
	}
	return out
}

var (
	// KnownProviderBaseURLs maps well-known provider names to their base URLs.
	// Populated from providers_default.yaml (embedded) + user overrides.
	KnownProviderBaseURLs map[string]string

	// KnownProviderModels maps well-known provider names to their default models.
	// Populated from providers_default.yaml (embedded) + user overrides.
	KnownProviderModels map[string]string
)

func init() {
	defs := LoadProviderDefaults()
	KnownProviderBaseURLs = make(map[string]string, len(defs))
	KnownProviderModels = make(map[string]string, len(defs))
	for name, d := range defs {
		if d.BaseURL != "" {
			KnownProviderBaseURLs[name] = d.BaseURL
		}
		if d.DefaultModel != "" {
			KnownProviderModels[name] = d.DefaultModel
		}
	}
}

// SaveProviderToFile persists a single provider's config and the active provider
// name into ~/.config/reactagent/config.yaml, preserving all other user settings.
func SaveProviderToFile(providerName string, pc ProviderConfig) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return saveProvider(filepath.Join(dir, "config.yaml"), providerName, pc)
}

func saveProvider(cfgPath, providerName string, pc ProviderConfig) error {
	// Read existing file into a generic map to preserve unknown fields.
	raw := make(map[string]any)
	if data, err := os.ReadFile(cfgPath); err == nil {
		_ = yaml.Unmarshal(data, &raw) // start fresh if corrupt
	}

	providers, _ := raw["providers"].(map[string]any)
	if providers == nil {
		providers = make(map[string]any)
	}

	entry := map[string]any{}
	if pc.APIKey != "" {
		entry["api_key"] = pc.APIKey
	}
	if pc.BaseURL != "" {
		entry["base_url"] = pc.BaseURL
	}
	if pc.Model != "" {
		entry["model"] = pc.Model
	}
	providers[providerName] = entry
	raw["providers"] = providers

	// Set active provider and clear stale global model override.
	raw["provider"] = providerName
	delete(raw, "model")

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(cfgPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func ensureProvider(cfg *Config, name string) *ProviderConfig {
	if cfg.Providers[name] == nil {
		cfg.Providers[name] = &ProviderConfig{}
	}
	return cfg.Providers[name]
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Provider selection first so the generic overrides land on it.
	if v := os.Getenv("REACTAGENT_PROVIDER"); v != "" {
		cfg.Provider = v
	}

	if v := os.Getenv("LLM_API_KEY"); v != "" {
		ensureProvider(cfg, cfg.Provider).APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		ensureProvider(cfg, cfg.Provider).BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("REACTAGENT_MODEL"); v != "" {
		cfg.Model = v
	}

	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		ensureProvider(cfg, "anthropic").APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		pc := ensureProvider(cfg, "openai")
		if pc.APIKey == "" {
			pc.APIKey = v
		}
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		ensureProvider(cfg, "ollama").BaseURL = ollamaBaseURL(v)
	}
}

// ollamaBaseURL turns an OLLAMA_HOST value ("host:port" or a URL) into the
// OpenAI-compatible endpoint.
func ollamaBaseURL(host string) string {
	host = strings.TrimRight(host, "/")
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	if strings.HasSuffix(host, "/v1") {
		return host
	}
	return host + "/v1"
}
