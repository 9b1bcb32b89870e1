package llm

import (
	"fmt"
	"strings"
)

// ProviderID identifies one of the supported upstream APIs.
type ProviderID string

const (
	ProviderOpenAI     ProviderID = "openai"
	ProviderAnthropic  ProviderID = "anthropic"
	ProviderGemini     ProviderID = "gemini"
	ProviderDeepSeek   ProviderID = "deepseek"
	ProviderOllama     ProviderID = "ollama"
	ProviderGroq       ProviderID = "groq"
	ProviderMistral    ProviderID = "mistral"
	ProviderXAI        ProviderID = "xai"
	ProviderOpenRouter ProviderID = "openrouter"
	ProviderQwen       ProviderID = "qwen"
	ProviderKimi       ProviderID = "kimi"
	ProviderTogether   ProviderID = "together"
	ProviderFireworks  ProviderID = "fireworks"
	ProviderSambaNova  ProviderID = "sambanova"
	ProviderCohere     ProviderID = "cohere"
	ProviderDoubao     ProviderID = "doubao"
	ProviderNvidia     ProviderID = "nvidia"
	ProviderCustom     ProviderID = "custom"
)

var allProviders = [...]ProviderID{
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderGemini,
	ProviderDeepSeek,
	ProviderOllama,
	ProviderGroq,
	ProviderMistral,
	ProviderXAI,
	ProviderOpenRouter,
	ProviderQwen,
	ProviderKimi,
	ProviderTogether,
	ProviderFireworks,
	ProviderSambaNova,
	ProviderCohere,
	ProviderDoubao,
	ProviderNvidia,
	ProviderCustom,
}

var providerAliases = map[string]ProviderID{
	"claude":     ProviderAnthropic,
	"gpt":        ProviderOpenAI,
	"google":     ProviderGemini,
	"grok":       ProviderXAI,
	"moonshot":   ProviderKimi,
	"dashscope":  ProviderQwen,
	"volcengine": ProviderDoubao,
}

// AllProviders returns every known provider in display order.
func AllProviders() []ProviderID {
	out := make([]ProviderID, len(allProviders))
	copy(out, allProviders[:])
	return out
}

// ParseProviderID resolves a user supplied provider name, accepting a few
// common aliases ("claude", "gpt", "grok").
func ParseProviderID(s string) (ProviderID, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, id := range allProviders {
		if string(id) == name {
			return id, nil
		}
	}
	if id, ok := providerAliases[name]; ok {
		return id, nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

func (p ProviderID) String() string {
	return string(p)
}
