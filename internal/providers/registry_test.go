package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

func TestRegistry_EveryProviderHasAnAdapter(t *testing.T) {
	registry := newTestRegistry(t)

	assert.Equal(t, len(llm.AllProviders()), len(registry.List()))
	for _, id := range llm.AllProviders() {
		a, ok := registry.Get(id)
		require.True(t, ok, "provider %s should have an adapter", id)
		assert.Equal(t, id, a.Key())
		assert.NotEmpty(t, a.Name())
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry(nil, nil)
	d, _ := registry.Catalog().Lookup(llm.ProviderOpenRouter)

	registry.Register(NewCompat(NewOpenRouterHooks(), d, nil))

	a, exists := registry.Get(llm.ProviderOpenRouter)
	assert.True(t, exists, "provider should exist after registration")
	assert.Equal(t, "OpenRouter", a.Name())

	_, exists = registry.Get(llm.ProviderOpenAI)
	assert.False(t, exists, "unregistered provider should not exist")
}

func TestRegistry_GetByDomain(t *testing.T) {
	registry := newTestRegistry(t)

	testCases := []struct {
		url      string
		expected llm.ProviderID
	}{
		{"https://openrouter.ai/api/v1/chat/completions", llm.ProviderOpenRouter},
		{"https://api.openai.com/v1/chat/completions", llm.ProviderOpenAI},
		{"https://api.anthropic.com/v1/messages", llm.ProviderAnthropic},
		{"https://integrate.api.nvidia.com/v1/chat/completions", llm.ProviderNvidia},
		{"https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent", llm.ProviderGemini},
		{"http://localhost:11434/api/chat", llm.ProviderOllama},
		{"https://api.x.ai/v1/chat/completions", llm.ProviderXAI},
		{"https://API.DEEPSEEK.COM/chat/completions", llm.ProviderDeepSeek},
	}

	for _, tc := range testCases {
		a, err := registry.GetByDomain(tc.url)
		require.NoError(t, err, "should get provider for %s", tc.url)
		assert.Equal(t, tc.expected, a.Key(), "provider should match for %s", tc.url)
	}
}

func TestRegistry_GetByDomain_Errors(t *testing.T) {
	registry := newTestRegistry(t)

	_, err := registry.GetByDomain("invalid-url")
	assert.Error(t, err, "should get error for a URL without host")

	_, err = registry.GetByDomain("https://unknown-provider.com/api")
	assert.Error(t, err, "should get error for unknown domain")
}

func TestCatalog_Overrides(t *testing.T) {
	base := DefaultCatalog()

	d, ok := base.Lookup(llm.ProviderOpenAI)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", d.DefaultModel())
	assert.Equal(t, "max_tokens", d.TokenField)

	over := base.WithOverrides(map[llm.ProviderID]Override{
		llm.ProviderOpenAI: {Models: []string{"gpt-4.1-mini"}, Temperature: llm.Float(0.2)},
		llm.ProviderCustom: {BaseURL: "http://127.0.0.1:8000/v1/chat/completions"},
	})

	d, _ = over.Lookup(llm.ProviderOpenAI)
	assert.Equal(t, "gpt-4.1-mini", d.DefaultModel())
	require.NotNil(t, d.Temperature)
	assert.Equal(t, 0.2, *d.Temperature)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", d.BaseURL)

	d, _ = over.Lookup(llm.ProviderCustom)
	assert.Equal(t, "http://127.0.0.1:8000/v1/chat/completions", d.BaseURL)

	// the original catalog is untouched
	d, _ = base.Lookup(llm.ProviderOpenAI)
	assert.Equal(t, "gpt-4o", d.DefaultModel())
	assert.Nil(t, d.Temperature)

	d.Models[0] = "mutated"
	d, _ = base.Lookup(llm.ProviderOpenAI)
	assert.Equal(t, "gpt-4o", d.DefaultModel())
}

func TestCatalog_TemperatureDefaultUsed(t *testing.T) {
	catalog := DefaultCatalog().WithOverrides(map[llm.ProviderID]Override{
		llm.ProviderGroq: {Temperature: llm.Float(0.1)},
	})
	registry := NewRegistry(catalog, nil)
	registry.Initialize()

	a, _ := registry.Get(llm.ProviderGroq)
	env, err := Build(a, []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, testConfig(llm.ProviderGroq))
	require.NoError(t, err)
	assert.Equal(t, 0.1, env.Body["temperature"])
}
