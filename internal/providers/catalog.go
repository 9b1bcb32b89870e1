package providers

import (
	"maps"
	"slices"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

// Defaults are the per-provider values used when the request config leaves
// a field empty.
type Defaults struct {
	Provider    llm.ProviderID
	Name        string
	BaseURL     string
	Models      []string
	Temperature *float64
	MaxTokens   *int
	// TokenField is the provider's native output limit field.
	TokenField string
	Headers    map[string]string
}

// DefaultModel is the first listed model, or "" when none is known.
func (d Defaults) DefaultModel() string {
	if len(d.Models) == 0 {
		return ""
	}
	return d.Models[0]
}

func (d Defaults) clone() Defaults {
	d.Models = slices.Clone(d.Models)
	d.Headers = maps.Clone(d.Headers)
	if d.Temperature != nil {
		d.Temperature = llm.Float(*d.Temperature)
	}
	if d.MaxTokens != nil {
		d.MaxTokens = llm.Int(*d.MaxTokens)
	}
	return d
}

// Override replaces catalog values for one provider. Zero fields keep the
// built-in value.
type Override struct {
	BaseURL     string
	Models      []string
	Temperature *float64
	MaxTokens   *int
}

// Catalog is an immutable set of provider defaults.
type Catalog struct {
	entries map[llm.ProviderID]Defaults
}

// Lookup returns a copy of the defaults for id.
func (c *Catalog) Lookup(id llm.ProviderID) (Defaults, bool) {
	d, ok := c.entries[id]
	if !ok {
		return Defaults{Provider: id, Name: string(id), TokenField: "max_tokens"}, false
	}
	return d.clone(), true
}

// WithOverrides returns a new catalog with the overrides applied on top.
func (c *Catalog) WithOverrides(overrides map[llm.ProviderID]Override) *Catalog {
	out := &Catalog{entries: make(map[llm.ProviderID]Defaults, len(c.entries))}
	for id, d := range c.entries {
		out.entries[id] = d.clone()
	}

	for id, o := range overrides {
		d, _ := c.Lookup(id)
		if o.BaseURL != "" {
			d.BaseURL = o.BaseURL
		}
		if len(o.Models) > 0 {
			d.Models = slices.Clone(o.Models)
		}
		if o.Temperature != nil {
			d.Temperature = llm.Float(*o.Temperature)
		}
		if o.MaxTokens != nil {
			d.MaxTokens = llm.Int(*o.MaxTokens)
		}
		out.entries[id] = d
	}

	return out
}

// DefaultCatalog returns the built-in provider defaults.
func DefaultCatalog() *Catalog {
	c := &Catalog{entries: make(map[llm.ProviderID]Defaults)}
	for _, d := range builtinDefaults() {
		if d.TokenField == "" {
			d.TokenField = "max_tokens"
		}
		c.entries[d.Provider] = d
	}
	return c
}

func builtinDefaults() []Defaults {
	return []Defaults{
		{
			Provider: llm.ProviderOpenAI, Name: "OpenAI",
			BaseURL: "https://api.openai.com/v1/chat/completions",
			Models:  []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-5", "o3", "o4-mini", "gpt-4o-search-preview"},
		},
		{
			Provider: llm.ProviderAnthropic, Name: "Anthropic",
			BaseURL:   "https://api.anthropic.com/v1/messages",
			Models:    []string{"claude-sonnet-4-5", "claude-opus-4-1", "claude-3-7-sonnet-latest", "claude-3-5-haiku-latest"},
			MaxTokens: llm.Int(8192),
		},
		{
			Provider: llm.ProviderGemini, Name: "Google Gemini",
			BaseURL:    "https://generativelanguage.googleapis.com/v1beta/models",
			Models:     []string{"gemini-2.5-flash", "gemini-2.5-pro", "gemini-3-pro-preview", "gemini-2.0-flash"},
			TokenField: "maxOutputTokens",
		},
		{
			Provider: llm.ProviderDeepSeek, Name: "DeepSeek",
			BaseURL: "https://api.deepseek.com/chat/completions",
			Models:  []string{"deepseek-chat", "deepseek-reasoner"},
		},
		{
			Provider: llm.ProviderOllama, Name: "Ollama",
			BaseURL:    "http://localhost:11434/api/chat",
			Models:     []string{"llama3.2", "qwen3", "deepseek-r1", "gpt-oss"},
			TokenField: "num_predict",
		},
		{
			Provider: llm.ProviderGroq, Name: "Groq",
			BaseURL: "https://api.groq.com/openai/v1/chat/completions",
			Models:  []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant", "openai/gpt-oss-120b"},
		},
		{
			Provider: llm.ProviderMistral, Name: "Mistral",
			BaseURL: "https://api.mistral.ai/v1/chat/completions",
			Models:  []string{"mistral-large-latest", "mistral-small-latest", "codestral-latest"},
		},
		{
			Provider: llm.ProviderXAI, Name: "xAI",
			BaseURL: "https://api.x.ai/v1/chat/completions",
			Models:  []string{"grok-4", "grok-3", "grok-3-mini"},
		},
		{
			Provider: llm.ProviderOpenRouter, Name: "OpenRouter",
			BaseURL: "https://openrouter.ai/api/v1/chat/completions",
			Models:  []string{"openai/gpt-4o", "anthropic/claude-sonnet-4.5", "google/gemini-2.5-flash", "deepseek/deepseek-r1"},
		},
		{
			Provider: llm.ProviderQwen, Name: "Qwen",
			BaseURL: "https://dashscope-intl.aliyuncs.com/compatible-mode/v1/chat/completions",
			Models:  []string{"qwen-plus", "qwen-max", "qwen-turbo", "qwen3-235b-a22b"},
		},
		{
			Provider: llm.ProviderKimi, Name: "Kimi",
			BaseURL: "https://api.moonshot.ai/v1/chat/completions",
			Models:  []string{"kimi-k2-0905-preview", "moonshot-v1-32k"},
		},
		{
			Provider: llm.ProviderTogether, Name: "Together AI",
			BaseURL: "https://api.together.xyz/v1/chat/completions",
			Models:  []string{"meta-llama/Llama-3.3-70B-Instruct-Turbo", "deepseek-ai/DeepSeek-R1"},
		},
		{
			Provider: llm.ProviderFireworks, Name: "Fireworks",
			BaseURL: "https://api.fireworks.ai/inference/v1/chat/completions",
			Models:  []string{"accounts/fireworks/models/llama-v3p1-70b-instruct", "accounts/fireworks/models/deepseek-r1"},
		},
		{
			Provider: llm.ProviderSambaNova, Name: "SambaNova",
			BaseURL: "https://api.sambanova.ai/v1/chat/completions",
			Models:  []string{"Meta-Llama-3.3-70B-Instruct", "DeepSeek-R1"},
		},
		{
			Provider: llm.ProviderCohere, Name: "Cohere",
			BaseURL: "https://api.cohere.com/v2/chat",
			Models:  []string{"command-a-03-2025", "command-r-plus"},
		},
		{
			Provider: llm.ProviderDoubao, Name: "Doubao",
			BaseURL: "https://ark.cn-beijing.volces.com/api/v3/chat/completions",
			Models:  []string{"doubao-seed-1-6-250615", "doubao-1-5-pro-32k-250115"},
		},
		{
			Provider: llm.ProviderNvidia, Name: "NVIDIA NIM",
			BaseURL: "https://integrate.api.nvidia.com/v1/chat/completions",
			Models:  []string{"meta/llama-3.3-70b-instruct", "deepseek-ai/deepseek-r1", "nvidia/llama-3.1-nemotron-70b-instruct"},
		},
		{
			Provider: llm.ProviderCustom, Name: "Custom endpoint",
		},
	}
}
