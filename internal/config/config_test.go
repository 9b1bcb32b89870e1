package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

func TestConfig_LoadAndSave(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)

	cfg := &Config{
		Host:            "127.0.0.1",
		Port:            8080,
		APIKey:          "test-key",
		DefaultProvider: "anthropic",
		Providers: []ProviderSettings{
			{
				Name:        "openrouter",
				URL:         "https://openrouter.ai/api/v1/chat/completions",
				APIKey:      "test-provider-key",
				Models:      []string{"anthropic/claude-sonnet-4.5"},
				Temperature: llm.Float(0.3),
			},
		},
	}

	require.NoError(t, manager.Save(cfg))
	assert.True(t, manager.Exists())
	assert.FileExists(t, filepath.Join(tmpDir, DefaultYAMLFilename))

	loaded, err := manager.Load()
	require.NoError(t, err)

	assert.Equal(t, cfg.Host, loaded.Host)
	assert.Equal(t, cfg.Port, loaded.Port)
	assert.Equal(t, cfg.APIKey, loaded.APIKey)
	assert.Equal(t, "anthropic", loaded.DefaultProvider)
	require.Len(t, loaded.Providers, 1)
	assert.Equal(t, "openrouter", loaded.Providers[0].Name)
	assert.Equal(t, "https://openrouter.ai/api/v1/chat/completions", loaded.Providers[0].URL)
	require.NotNil(t, loaded.Providers[0].Temperature)
	assert.Equal(t, 0.3, *loaded.Providers[0].Temperature)
}

func TestConfig_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, DefaultYAMLFilename), []byte("providers: []\n"), 0644))

	cfg, err := manager.Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, string(DefaultProvider), cfg.DefaultProvider)
	assert.Equal(t, Timeouts{Request: 120, Stream: 300, Warmup: 2}, cfg.Timeouts)
	assert.Equal(t, "none", cfg.Cache.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, DefaultConfigFilename), []byte("invalid json"), 0644))

	_, err := manager.Load()
	assert.Error(t, err)
}

func TestConfig_MissingFile(t *testing.T) {
	manager := NewManager(t.TempDir())

	_, err := manager.Load()
	assert.Error(t, err)
	assert.False(t, manager.Exists())
}

func TestConfig_GetWithoutLoad(t *testing.T) {
	manager := NewManager(t.TempDir())

	cfg := manager.Get()
	require.NotNil(t, cfg)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultHost, cfg.Host)
}

func TestProviderSettings_ModelWhitelist(t *testing.T) {
	provider := ProviderSettings{
		Name:           "openrouter",
		ModelWhitelist: []string{"claude", "gpt-4"},
	}
	models := []string{
		"anthropic/claude-sonnet-4.5",
		"anthropic/claude-opus-4.1",
		"openai/gpt-4o",
		"openai/gpt-3.5-turbo",
		"meta-llama/llama-3.1-70b",
	}

	assert.True(t, provider.IsModelAllowed("anthropic/claude-sonnet-4.5"))
	assert.True(t, provider.IsModelAllowed("openai/gpt-4o"))
	assert.False(t, provider.IsModelAllowed("meta-llama/llama-3.1-70b"))
	assert.False(t, provider.IsModelAllowed("openai/gpt-3.5-turbo"))

	assert.Equal(t, models[:3], provider.AllowedModels(models))
}

func TestProviderSettings_NoWhitelist(t *testing.T) {
	provider := ProviderSettings{Name: "openai"}
	models := []string{"gpt-4o", "gpt-4.1-mini"}

	assert.True(t, provider.IsModelAllowed("any-model"))
	assert.Equal(t, models, provider.AllowedModels(models))
}

func TestConfig_CheckModel(t *testing.T) {
	cfg := &Config{Providers: []ProviderSettings{{Name: "openai", ModelWhitelist: []string{"gpt-4o"}}}}

	assert.NoError(t, cfg.CheckModel(llm.ProviderOpenAI, "gpt-4o-mini"))
	assert.NoError(t, cfg.CheckModel(llm.ProviderOpenAI, ""))
	assert.NoError(t, cfg.CheckModel(llm.ProviderGroq, "anything"))

	err := cfg.CheckModel(llm.ProviderOpenAI, "o3")
	assert.ErrorIs(t, err, llm.ErrConfig)
}
