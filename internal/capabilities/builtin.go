package capabilities

import "github.com/mihaisavezi/llm-bridge/internal/llm"

const (
	// AnthropicMinThinkingBudget is the smallest budget_tokens the Messages
	// API accepts.
	AnthropicMinThinkingBudget = 1024
	// ThinkingHeadroom is left for the answer when max_tokens has to be
	// raised above a thinking budget.
	ThinkingHeadroom = 1024
)

var (
	standardEfforts = []string{"low", "medium", "high"}
	gpt5Efforts     = []string{"minimal", "low", "medium", "high"}
	grokEfforts     = []string{"low", "high"}
)

// Builtin returns the default capability table. Each call builds a fresh
// value; construct it once at startup and share it.
func Builtin() *Table {
	return NewTable(builtinSpecs()...)
}

func builtinSpecs() []ModelSpec {
	return []ModelSpec{
		// OpenAI
		{Provider: llm.ProviderOpenAI, MaxTemperature: 2.0, Capabilities: []Capability{Vision}},
		{
			Provider: llm.ProviderOpenAI, Prefix: "o1",
			TokenField: "max_completion_tokens", Reasoning: ReasoningEffort, AlwaysReasons: true,
			ReasoningTemperature: 1.0, Efforts: standardEfforts,
		},
		{
			Provider: llm.ProviderOpenAI, Prefix: "o3",
			TokenField: "max_completion_tokens", Reasoning: ReasoningEffort, AlwaysReasons: true,
			ReasoningTemperature: 1.0, Efforts: standardEfforts,
		},
		{
			Provider: llm.ProviderOpenAI, Prefix: "o4",
			TokenField: "max_completion_tokens", Reasoning: ReasoningEffort, AlwaysReasons: true,
			ReasoningTemperature: 1.0, Efforts: standardEfforts,
		},
		{
			Provider: llm.ProviderOpenAI, Prefix: "gpt-5",
			TokenField: "max_completion_tokens", Reasoning: ReasoningEffort, AlwaysReasons: true,
			ReasoningTemperature: 1.0, Efforts: gpt5Efforts,
		},
		// chat variants of gpt-5 are plain completion models
		{Provider: llm.ProviderOpenAI, Prefix: "gpt-5-chat"},
		{Provider: llm.ProviderOpenAI, Prefix: "gpt-4o-search", Capabilities: []Capability{WebSearch}},
		{Provider: llm.ProviderOpenAI, Prefix: "gpt-4o-mini-search", Capabilities: []Capability{WebSearch}},

		// Anthropic
		{Provider: llm.ProviderAnthropic, MaxTemperature: 1.0, Capabilities: []Capability{PromptCaching, Vision}},
		{Provider: llm.ProviderAnthropic, Prefix: "claude-3-5", Capabilities: []Capability{WebSearch}},
		anthropicThinking("claude-3-7-sonnet"),
		anthropicThinking("claude-sonnet-4"),
		anthropicThinking("claude-opus-4"),
		anthropicThinking("claude-haiku-4"),

		// Gemini
		{Provider: llm.ProviderGemini, MaxTemperature: 2.0, Capabilities: []Capability{WebSearch, Vision}},
		{Provider: llm.ProviderGemini, Prefix: "gemini-1.5", Without: []Capability{WebSearch}},
		{
			Provider: llm.ProviderGemini, Prefix: "gemini-2.5",
			Reasoning: ReasoningLevel, ThinkingLevels: []string{"low", "medium", "high"},
			LevelBudgets: map[string]int{"low": 1024, "medium": 8192, "high": 24576}, LevelAsBudget: true,
		},
		{
			Provider: llm.ProviderGemini, Prefix: "gemini-3",
			Reasoning: ReasoningLevel, ThinkingLevels: []string{"low", "high"},
			LevelBudgets: map[string]int{"low": 2048, "high": 8192},
		},
		{
			Provider: llm.ProviderGemini, Prefix: "gemini-3-flash",
			Reasoning: ReasoningLevel, ThinkingLevels: []string{"minimal", "low", "medium", "high"},
			LevelBudgets: map[string]int{"minimal": 512, "low": 2048, "medium": 4096, "high": 8192},
		},

		// DeepSeek: the reasoner always thinks and takes no knob for it.
		{Provider: llm.ProviderDeepSeek, MaxTemperature: 2.0},

		// Ollama
		{Provider: llm.ProviderOllama, MaxTemperature: 2.0},
		{Provider: llm.ProviderOllama, Prefix: "qwen3", Reasoning: ReasoningToggle},
		{Provider: llm.ProviderOllama, Prefix: "deepseek-r1", Reasoning: ReasoningToggle},
		{Provider: llm.ProviderOllama, Prefix: "gpt-oss", Reasoning: ReasoningToggle},

		// Groq
		{Provider: llm.ProviderGroq, MaxTemperature: 2.0},
		{Provider: llm.ProviderGroq, Prefix: "openai/gpt-oss", Reasoning: ReasoningEffort, Efforts: standardEfforts},

		// Mistral
		{Provider: llm.ProviderMistral, MaxTemperature: 1.5, Capabilities: []Capability{Vision}},

		// xAI
		{Provider: llm.ProviderXAI, MaxTemperature: 2.0, Capabilities: []Capability{WebSearch}},
		{Provider: llm.ProviderXAI, Prefix: "grok-3-mini", Reasoning: ReasoningEffort, Efforts: grokEfforts},

		// OpenRouter normalizes reasoning and search across upstreams.
		{
			Provider: llm.ProviderOpenRouter, MaxTemperature: 2.0,
			Reasoning: ReasoningEffort, Efforts: standardEfforts,
			Capabilities: []Capability{WebSearch},
		},

		// Qwen (DashScope compatible mode)
		{Provider: llm.ProviderQwen, MaxTemperature: 1.99, Capabilities: []Capability{WebSearch}},
		{Provider: llm.ProviderQwen, Prefix: "qwen3", Reasoning: ReasoningToggle},
		{Provider: llm.ProviderQwen, Prefix: "qwen-plus", Reasoning: ReasoningToggle},

		{Provider: llm.ProviderKimi, MaxTemperature: 1.0},
		{Provider: llm.ProviderTogether, MaxTemperature: 2.0},
		{Provider: llm.ProviderFireworks, MaxTemperature: 2.0},
		{Provider: llm.ProviderSambaNova, MaxTemperature: 1.0},
		{Provider: llm.ProviderCohere, MaxTemperature: 1.0},

		// Doubao (Volcengine Ark)
		{Provider: llm.ProviderDoubao, MaxTemperature: 1.0},
		{Provider: llm.ProviderDoubao, Prefix: "doubao-seed", Reasoning: ReasoningToggle},

		// NVIDIA NIM
		{Provider: llm.ProviderNvidia, MaxTemperature: 1.0},

		{Provider: llm.ProviderCustom, MaxTemperature: 2.0},
	}
}

func anthropicThinking(prefix string) ModelSpec {
	return ModelSpec{
		Provider:             llm.ProviderAnthropic,
		Prefix:               prefix,
		Reasoning:            ReasoningBudget,
		ReasoningTemperature: 1.0,
		MinThinkingBudget:    AnthropicMinThinkingBudget,
		Capabilities:         []Capability{WebSearch},
	}
}
