package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

func anthropicAdapter(t *testing.T) Adapter {
	t.Helper()
	a, ok := newTestRegistry(t).Get(llm.ProviderAnthropic)
	require.True(t, ok)
	return a
}

func TestAnthropic_ThinkingBudgetRaised(t *testing.T) {
	a := anthropicAdapter(t)

	cfg := llm.Config{
		Provider: llm.ProviderAnthropic,
		Model:    "claude-sonnet-4-5",
		APIKey:   "sk-ant-test",
		Params: llm.Params{
			MaxTokens: llm.Int(1000),
			Reasoning: llm.Reasoning{Enabled: true, BudgetTokens: 500},
		},
	}

	env, err := Build(a, []llm.Message{{Role: llm.RoleUser, Content: "prove it"}}, cfg)
	require.NoError(t, err)

	thinking, ok := env.Body["thinking"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "enabled", thinking["type"])
	budget := thinking["budget_tokens"].(int)
	assert.GreaterOrEqual(t, budget, 1024)

	maxTokens := env.Body["max_tokens"].(int)
	assert.Greater(t, maxTokens, budget)
	assert.Equal(t, 1.0, env.Body["temperature"])

	require.Len(t, env.Adjustments, 3)
	assert.Equal(t, "thinking_budget", env.Adjustments[0].Field)
	assert.Equal(t, "max_tokens", env.Adjustments[1].Field)
	assert.Equal(t, "temperature", env.Adjustments[2].Field)
}

func TestAnthropic_SystemBlocksAndCaching(t *testing.T) {
	a := anthropicAdapter(t)

	cfg := llm.Config{
		Provider: llm.ProviderAnthropic,
		APIKey:   "sk-ant-test",
		System:   llm.System{Text: "You review code.", EnableCaching: true},
	}
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "Be strict."},
		{Role: llm.RoleUser, Content: "review this"},
		{Role: llm.RoleAssistant, Content: ""},
	}

	env, err := Build(a, msgs, cfg)
	require.NoError(t, err)

	blocks, ok := env.Body["system"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, blocks, 2)
	assert.Equal(t, "You review code.", blocks[0]["text"])
	assert.Equal(t, "Be strict.", blocks[1]["text"])

	cached := 0
	for _, b := range blocks {
		assert.Equal(t, "text", b["type"])
		if _, ok := b["cache_control"]; ok {
			cached++
		}
	}
	assert.Equal(t, 1, cached, "exactly one block carries the cache marker")

	wire := wireMessages(t, env.Body)
	require.Len(t, wire, 1, "system and empty messages are not sent as turns")
	assert.Equal(t, "user", wire[0]["role"])

	assert.Equal(t, "sk-ant-test", env.Headers["x-api-key"])
	assert.Equal(t, AnthropicVersion, env.Headers["anthropic-version"])
	assert.NotContains(t, env.Headers, "Authorization")
	assert.Equal(t, "https://api.anthropic.com/v1/messages", env.URL)
	assert.Equal(t, 8192, env.Body["max_tokens"], "catalog default")
}

func TestAnthropic_NoCachingWithoutRequest(t *testing.T) {
	a := anthropicAdapter(t)

	env, err := Build(a, []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, llm.Config{
		Provider: llm.ProviderAnthropic,
		APIKey:   "k",
		System:   llm.System{Text: "sys"},
	})
	require.NoError(t, err)

	blocks := env.Body["system"].([]map[string]any)
	require.Len(t, blocks, 1)
	assert.NotContains(t, blocks[0], "cache_control")
	assert.NotContains(t, env.Body, "thinking")
	assert.NotContains(t, env.Body, "tools")
}

func TestAnthropic_WebSearchTool(t *testing.T) {
	a := anthropicAdapter(t)

	env, err := Build(a, []llm.Message{{Role: llm.RoleUser, Content: "news"}}, llm.Config{
		Provider: llm.ProviderAnthropic,
		Model:    "claude-sonnet-4-5",
		APIKey:   "k",
		Features: llm.Features{WebSearch: true, Streaming: true},
	})
	require.NoError(t, err)

	tools := env.Body["tools"].([]map[string]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "web_search_20250305", tools[0]["type"])
	assert.Equal(t, true, env.Body["stream"])
	assert.True(t, env.Streaming())
}

func TestAnthropic_MissingKey(t *testing.T) {
	a := anthropicAdapter(t)
	_, err := Build(a, []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, llm.Config{Provider: llm.ProviderAnthropic})
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrConfig)
}

func TestAnthropic_ParseThinking(t *testing.T) {
	a := anthropicAdapter(t)
	body := `{
		"type": "message",
		"content": [
			{"type": "thinking", "thinking": "Let me add.", "signature": "sig"},
			{"type": "text", "text": "4"}
		],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 10, "output_tokens": 20}
	}`

	result := ParseResponse(a, []byte(body))
	require.True(t, result.Success)
	assert.Equal(t, "4", result.Content)
	assert.Equal(t, "Let me add.", result.Reasoning)
	assert.Equal(t, "end_turn", result.FinishReason)
	assert.Equal(t, 20, result.Usage.OutputTokens)
}
