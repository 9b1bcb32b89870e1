package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
	"github.com/mihaisavezi/llm-bridge/internal/providers"
)

const (
	DefaultPort           = 6970
	DefaultHost           = "127.0.0.1"
	DefaultConfigFilename = "config.json"
	DefaultYAMLFilename   = "config.yaml"
	DefaultProvider       = llm.ProviderOpenAI

	DefaultRequestTimeout = 120
	DefaultStreamTimeout  = 300
	DefaultWarmupTimeout  = 2
	DefaultCacheTTL       = 600
)

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// ProviderSettings configures one upstream provider. Empty fields fall back
// to the provider catalog.
type ProviderSettings struct {
	Name           string        `json:"name" yaml:"name"`
	APIKey         string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	URL            string        `json:"url,omitempty" yaml:"url,omitempty"`
	Models         []string      `json:"models,omitempty" yaml:"models,omitempty"`
	ModelWhitelist []string      `json:"model_whitelist,omitempty" yaml:"model_whitelist,omitempty"`
	Temperature    *float64      `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens      *int          `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	System         string        `json:"system,omitempty" yaml:"system,omitempty"`
	EnableCaching  bool          `json:"enable_caching,omitempty" yaml:"enable_caching,omitempty"`
	Reasoning      llm.Reasoning `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	WebSearch      bool          `json:"web_search,omitempty" yaml:"web_search,omitempty"`
}

// IsModelAllowed reports whether model passes the whitelist. An empty
// whitelist allows everything; entries match as substrings.
func (p ProviderSettings) IsModelAllowed(model string) bool {
	if len(p.ModelWhitelist) == 0 {
		return true
	}
	for _, allowed := range p.ModelWhitelist {
		if strings.Contains(model, allowed) {
			return true
		}
	}
	return false
}

// AllowedModels filters models through the whitelist.
func (p ProviderSettings) AllowedModels(models []string) []string {
	if len(p.ModelWhitelist) == 0 {
		return models
	}
	var out []string
	for _, m := range models {
		if p.IsModelAllowed(m) {
			out = append(out, m)
		}
	}
	return out
}

// Timeouts are in seconds.
type Timeouts struct {
	Request int `json:"request,omitempty" yaml:"request,omitempty"`
	Stream  int `json:"stream,omitempty" yaml:"stream,omitempty"`
	Warmup  int `json:"warmup,omitempty" yaml:"warmup,omitempty"`
}

func (t Timeouts) RequestDuration() time.Duration { return time.Duration(t.Request) * time.Second }
func (t Timeouts) StreamDuration() time.Duration  { return time.Duration(t.Stream) * time.Second }
func (t Timeouts) WarmupDuration() time.Duration  { return time.Duration(t.Warmup) * time.Second }

type CacheSettings struct {
	Backend    string `json:"backend,omitempty" yaml:"backend,omitempty"`
	TTLSeconds int    `json:"ttl_seconds,omitempty" yaml:"ttl_seconds,omitempty"`
	RedisURL   string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
}

func (c CacheSettings) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type RetrySettings struct {
	MaxRetries       int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	InitialBackoffMs int `json:"initial_backoff_ms,omitempty" yaml:"initial_backoff_ms,omitempty"`
	MaxBackoffMs     int `json:"max_backoff_ms,omitempty" yaml:"max_backoff_ms,omitempty"`
}

type Config struct {
	Host            string             `json:"host,omitempty" yaml:"host,omitempty"`
	Port            int                `json:"port,omitempty" yaml:"port,omitempty"`
	APIKey          string             `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	DefaultProvider string             `json:"default_provider,omitempty" yaml:"default_provider,omitempty"`
	Timeouts        Timeouts           `json:"timeouts,omitempty" yaml:"timeouts,omitempty"`
	Cache           CacheSettings      `json:"cache,omitempty" yaml:"cache,omitempty"`
	Retry           RetrySettings      `json:"retry,omitempty" yaml:"retry,omitempty"`
	Features        llm.Features       `json:"features,omitempty" yaml:"features,omitempty"`
	Providers       []ProviderSettings `json:"providers,omitempty" yaml:"providers,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.DefaultProvider == "" {
		c.DefaultProvider = string(DefaultProvider)
	}
	if c.Timeouts.Request <= 0 {
		c.Timeouts.Request = DefaultRequestTimeout
	}
	if c.Timeouts.Stream <= 0 {
		c.Timeouts.Stream = DefaultStreamTimeout
	}
	if c.Timeouts.Warmup <= 0 {
		c.Timeouts.Warmup = DefaultWarmupTimeout
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "none"
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = DefaultCacheTTL
	}
}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if _, err := llm.ParseProviderID(c.DefaultProvider); err != nil {
		errs = append(errs, fmt.Errorf("default_provider: %w", err))
	}

	switch c.Cache.Backend {
	case "none", "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			errs = append(errs, errors.New("cache.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}

	seen := make(map[llm.ProviderID]bool)
	for i, p := range c.Providers {
		id, err := llm.ParseProviderID(p.Name)
		if err != nil {
			errs = append(errs, fmt.Errorf("providers[%d]: %w", i, err))
			continue
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("providers[%d]: %s configured twice", i, id))
		}
		seen[id] = true
		if id == llm.ProviderCustom && p.URL == "" {
			errs = append(errs, fmt.Errorf("providers[%d]: custom provider needs a url", i))
		}
	}

	return errors.Join(errs...)
}

// Provider returns the settings for id, if configured.
func (c *Config) Provider(id llm.ProviderID) (ProviderSettings, bool) {
	for _, p := range c.Providers {
		if pid, err := llm.ParseProviderID(p.Name); err == nil && pid == id {
			return p, true
		}
	}
	return ProviderSettings{}, false
}

// ResolveProvider parses name, falling back to the default provider.
func (c *Config) ResolveProvider(name string) (llm.ProviderID, error) {
	if name == "" {
		name = c.DefaultProvider
	}
	return llm.ParseProviderID(name)
}

// RequestConfig assembles the per-call configuration for a provider. The API
// key comes from the settings or, failing that, <PROVIDER>_API_KEY.
func (c *Config) RequestConfig(id llm.ProviderID) llm.Config {
	p, _ := c.Provider(id)

	cfg := llm.Config{
		Provider: id,
		APIKey:   p.APIKey,
		BaseURL:  p.URL,
		System:   llm.System{Text: p.System, EnableCaching: p.EnableCaching},
		Params: llm.Params{
			Temperature: p.Temperature,
			MaxTokens:   p.MaxTokens,
			Reasoning:   p.Reasoning,
		},
		Features: c.Features,
	}
	if len(p.Models) > 0 {
		cfg.Model = p.Models[0]
	}
	if p.WebSearch {
		cfg.Features.WebSearch = true
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(APIKeyEnv(id))
	}
	return cfg
}

// CheckModel rejects models filtered out by the provider's whitelist.
func (c *Config) CheckModel(id llm.ProviderID, model string) error {
	p, ok := c.Provider(id)
	if !ok || model == "" || p.IsModelAllowed(model) {
		return nil
	}
	return llm.ConfigError(id, "model %q is not in the configured whitelist", model)
}

// CatalogOverrides turns provider settings into catalog overrides.
func (c *Config) CatalogOverrides() map[llm.ProviderID]providers.Override {
	out := make(map[llm.ProviderID]providers.Override)
	for _, p := range c.Providers {
		id, err := llm.ParseProviderID(p.Name)
		if err != nil {
			continue
		}
		out[id] = providers.Override{
			BaseURL:     p.URL,
			Models:      p.Models,
			Temperature: p.Temperature,
			MaxTokens:   p.MaxTokens,
		}
	}
	return out
}

// APIKeyEnv names the environment variable consulted for a provider key.
func APIKeyEnv(id llm.ProviderID) string {
	return strings.ToUpper(string(id)) + "_API_KEY"
}

// Manager loads and caches the configuration. YAML is preferred over the
// legacy JSON file when both exist.
type Manager struct {
	baseDir     string
	configValue atomic.Value
	logger      *slog.Logger

	mu        sync.Mutex
	listeners []func(*Config)
}

func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir, logger: slog.Default()}
}

func (m *Manager) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

func (m *Manager) yamlPath() string { return filepath.Join(m.baseDir, DefaultYAMLFilename) }
func (m *Manager) jsonPath() string { return filepath.Join(m.baseDir, DefaultConfigFilename) }

func (m *Manager) HasYAML() bool { return fileExists(m.yamlPath()) }
func (m *Manager) HasJSON() bool { return fileExists(m.jsonPath()) }

func (m *Manager) Exists() bool {
	return m.HasYAML() || m.HasJSON()
}

// GetPath returns the file Load reads, or the YAML path when none exists.
func (m *Manager) GetPath() string {
	if !m.HasYAML() && m.HasJSON() {
		return m.jsonPath()
	}
	return m.yamlPath()
}

func (m *Manager) Load() (*Config, error) {
	path := m.GetPath()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	expanded := []byte(expandEnvVars(string(data)))

	var cfg Config
	if strings.HasSuffix(path, ".yaml") {
		err = yaml.Unmarshal(expanded, &cfg)
	} else {
		err = json.Unmarshal(expanded, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}

	cfg.applyDefaults()
	m.configValue.Store(&cfg)
	return &cfg, nil
}

func (m *Manager) Get() *Config {
	if v := m.configValue.Load(); v != nil {
		return v.(*Config)
	}

	cfg, err := m.Load()
	if err != nil {
		cfg = &Config{}
		cfg.applyDefaults()
	}
	return cfg
}

// Save fills in defaults and writes cfg as YAML.
func (m *Manager) Save(cfg *Config) error {
	cfg.applyDefaults()

	if err := os.MkdirAll(m.baseDir, 0750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(m.yamlPath(), data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	m.configValue.Store(cfg)
	return nil
}

// CreateExample writes a starter config.yaml with keys read from the
// environment at load time.
func (m *Manager) CreateExample() error {
	cfg := &Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		APIKey:          "${LLMB_API_KEY:}",
		DefaultProvider: string(DefaultProvider),
		Cache:           CacheSettings{Backend: "memory", TTLSeconds: DefaultCacheTTL},
		Retry:           RetrySettings{MaxRetries: 1, InitialBackoffMs: 500},
	}
	for _, id := range []llm.ProviderID{llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderGemini, llm.ProviderOpenRouter, llm.ProviderOllama} {
		cfg.Providers = append(cfg.Providers, ProviderSettings{
			Name:   string(id),
			APIKey: "${" + APIKeyEnv(id) + ":}",
		})
	}
	cfg.applyDefaults()
	return m.Save(cfg)
}

// OnReload registers fn to run after a successful reload.
func (m *Manager) OnReload(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Watch reloads the configuration when a file in the config directory
// changes. Reload failures keep the previous configuration. The watcher
// stops when done is closed.
func (m *Manager) Watch(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(m.baseDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir %s: %w", m.baseDir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isConfigFile(event.Name) || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					continue
				}
				m.logger.Info("config file changed, reloading", "file", event.Name)
				cfg, err := m.Load()
				if err != nil {
					m.logger.Error("failed to reload config", "error", err)
					continue
				}
				m.notify(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	return nil
}

func (m *Manager) notify(cfg *Config) {
	m.mu.Lock()
	listeners := append(([]func(*Config))(nil), m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

func isConfigFile(name string) bool {
	base := filepath.Base(name)
	return base == DefaultYAMLFilename || base == DefaultConfigFilename
}

// expandEnvVars replaces ${VAR} and ${VAR:default} patterns in a string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		defaultVal := ""
		if len(submatch) >= 3 {
			defaultVal = submatch[2]
		}
		if val, ok := os.LookupEnv(submatch[1]); ok {
			return val
		}
		return defaultVal
	})
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
