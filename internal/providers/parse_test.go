package providers

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

// syntheticResponse renders a successful reply in the native shape of id.
// finish is the provider's own finish/stop reason, empty for a normal stop.
func syntheticResponse(t *testing.T, id llm.ProviderID, text, finish string) []byte {
	t.Helper()

	var raw map[string]any
	switch id {
	case llm.ProviderAnthropic:
		raw = map[string]any{
			"type":        "message",
			"content":     []any{map[string]any{"type": "text", "text": text}},
			"stop_reason": finishOr(finish, "end_turn"),
			"usage":       map[string]any{"input_tokens": 12, "output_tokens": 7},
		}
	case llm.ProviderGemini:
		raw = map[string]any{
			"candidates": []any{map[string]any{
				"content":      map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}},
				"finishReason": finishOr(finish, "STOP"),
			}},
			"usageMetadata": map[string]any{"promptTokenCount": 12, "candidatesTokenCount": 7},
		}
	case llm.ProviderOllama:
		raw = map[string]any{
			"model":             "llama3.2",
			"message":           map[string]any{"role": "assistant", "content": text},
			"done":              true,
			"done_reason":       finishOr(finish, "stop"),
			"prompt_eval_count": 12,
			"eval_count":        7,
		}
	case llm.ProviderCohere:
		raw = map[string]any{
			"id":            "c1",
			"finish_reason": finishOr(finish, "COMPLETE"),
			"message": map[string]any{
				"role":    "assistant",
				"content": []any{map[string]any{"type": "text", "text": text}},
			},
			"usage": map[string]any{"billed_units": map[string]any{"input_tokens": 12, "output_tokens": 7}},
		}
	default:
		raw = map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": text}, "finish_reason": finishOr(finish, "stop")}},
			"usage":   map[string]any{"prompt_tokens": 12, "completion_tokens": 7},
		}
	}

	data, err := json.Marshal(raw)
	require.NoError(t, err)
	return data
}

func finishOr(finish, fallback string) string {
	if finish != "" {
		return finish
	}
	return fallback
}

func truncationReason(id llm.ProviderID) string {
	switch id {
	case llm.ProviderAnthropic:
		return "max_tokens"
	case llm.ProviderGemini, llm.ProviderCohere:
		return "MAX_TOKENS"
	default:
		return "length"
	}
}

func TestParse_RoundTripPreservesText(t *testing.T) {
	r := newTestRegistry(t)
	texts := []string{
		"The answer is 42.",
		"  leading and trailing space  \n",
		"multi\nline\n\n- with *markdown*",
		"unicode: héllo wörld ✓",
	}

	for _, id := range r.List() {
		a, _ := r.Get(id)
		t.Run(string(id), func(t *testing.T) {
			env, err := Build(a, []llm.Message{{Role: llm.RoleUser, Content: "question"}}, testConfig(id))
			require.NoError(t, err)
			require.NotEmpty(t, env.Body)

			for _, text := range texts {
				result := ParseResponse(a, syntheticResponse(t, id, text, ""))
				require.True(t, result.Success, result.Error)
				assert.Equal(t, text, result.Content)
				assert.False(t, result.Truncated)
				assert.False(t, result.WebSearchUsed)
				assert.Equal(t, llm.Usage{InputTokens: 12, OutputTokens: 7}, result.Usage)
			}
		})
	}
}

func TestParse_TruncationNoticeAppendedOnce(t *testing.T) {
	r := newTestRegistry(t)

	for _, id := range r.List() {
		a, _ := r.Get(id)
		t.Run(string(id), func(t *testing.T) {
			for _, text := range []string{"", "partial answer"} {
				result := ParseResponse(a, syntheticResponse(t, id, text, truncationReason(id)))
				require.True(t, result.Success)
				assert.True(t, result.Truncated)
				assert.Equal(t, text+llm.TruncationNotice, result.Content)
				assert.Equal(t, 1, strings.Count(result.Content, llm.TruncationNotice))
			}
		})
	}
}

func TestParseResponse_DecodeErrors(t *testing.T) {
	r := newTestRegistry(t)
	a, _ := r.Get(llm.ProviderOpenAI)

	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"empty", "", "empty response body"},
		{"whitespace", "  \n", "empty response body"},
		{"empty object", "{}", "empty response body"},
		{"html", "<html>Bad Gateway</html>", "response is not valid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseResponse(a, []byte(tt.body))
			assert.False(t, result.Success)
			require.NotNil(t, result.Err)
			assert.True(t, errors.Is(result.Err, llm.ErrDecode))
			assert.Equal(t, tt.msg, result.Err.Message)
		})
	}
}

func TestParse_UnknownShape(t *testing.T) {
	r := newTestRegistry(t)

	payload := map[string]any{"weird": strings.Repeat("x", 2*llm.SnippetLimit)}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	for _, id := range r.List() {
		a, _ := r.Get(id)
		result := ParseResponse(a, data)
		assert.False(t, result.Success, id)
		require.NotNil(t, result.Err, id)
		assert.True(t, errors.Is(result.Err, llm.ErrShape), id)
		assert.Contains(t, result.Error, "unexpected response format")
		assert.LessOrEqual(t, len(result.Err.Snippet), llm.SnippetLimit+3)
	}
}

func TestParse_ErrorObject(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		id   llm.ProviderID
		body string
		want string
	}{
		{llm.ProviderOpenAI, `{"error":{"message":"Rate limit reached","type":"requests","code":429}}`, "Rate limit reached"},
		{llm.ProviderAnthropic, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, "Overloaded"},
		{llm.ProviderGemini, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`, "API key not valid"},
		{llm.ProviderOllama, `{"error":"model 'nope' not found"}`, "model 'nope' not found"},
		{llm.ProviderMistral, `{"error":{"type":"invalid_request_error"}}`, "invalid_request_error"},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			a, _ := r.Get(tt.id)
			result := ParseResponse(a, []byte(tt.body))
			assert.False(t, result.Success)
			require.NotNil(t, result.Err)
			assert.True(t, errors.Is(result.Err, llm.ErrHTTPStatus))
			assert.Equal(t, tt.want, result.Err.Message)
		})
	}

	a, _ := r.Get(llm.ProviderOpenAI)
	result := ParseResponse(a, []byte(`{"error":{"message":"slow","code":429}}`))
	assert.Equal(t, 429, result.Err.StatusCode)
}

func TestParse_NullErrorIsNotAFailure(t *testing.T) {
	r := newTestRegistry(t)

	for _, id := range r.List() {
		a, _ := r.Get(id)
		t.Run(string(id), func(t *testing.T) {
			var raw map[string]any
			require.NoError(t, json.Unmarshal(syntheticResponse(t, id, "hello", ""), &raw))
			raw["error"] = nil
			body, err := json.Marshal(raw)
			require.NoError(t, err)

			result := ParseResponse(a, body)
			require.True(t, result.Success, result.Error)
			assert.Equal(t, "hello", result.Content)
		})
	}

	a, _ := r.Get(llm.ProviderOpenAI)
	d := a.DecodeStreamEvent(map[string]any{
		"error":   nil,
		"choices": []any{map[string]any{"delta": map[string]any{"content": "Hel"}}},
	})
	require.Nil(t, d.Err)
	assert.Equal(t, "Hel", d.Content)

	assert.False(t, hasError(map[string]any{"error": ""}))
	assert.False(t, hasError(map[string]any{"error": false}))
	assert.True(t, hasError(map[string]any{"error": "boom"}))
	assert.True(t, hasError(map[string]any{"error": map[string]any{}}))
}

func TestSplitThinking(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		answer    string
		reasoning string
	}{
		{"no tag", "  plain text  ", "  plain text  ", ""},
		{"leading block", "<think>\nplan it\n</think>\n\nThe answer.", "The answer.", "plan it"},
		{"two blocks", "<think>a</think>x<think>b</think>y", "xy", "a\n\nb"},
		{"unclosed", "<think>still thinking", "", "still thinking"},
		{"empty block", "<think></think>done", "done", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer, reasoning := SplitThinking(tt.in)
			assert.Equal(t, tt.answer, answer)
			assert.Equal(t, tt.reasoning, reasoning)
		})
	}
}

func TestParse_Reasoning(t *testing.T) {
	r := newTestRegistry(t)

	t.Run("structured field", func(t *testing.T) {
		a, _ := r.Get(llm.ProviderDeepSeek)
		body := `{"choices":[{"message":{"role":"assistant","content":"42","reasoning_content":"6*7"},"finish_reason":"stop"}]}`
		result := ParseResponse(a, []byte(body))
		assert.Equal(t, "42", result.Content)
		assert.Equal(t, "6*7", result.Reasoning)
	})

	t.Run("inline tag extracted", func(t *testing.T) {
		a, _ := r.Get(llm.ProviderNvidia)
		body := `{"choices":[{"message":{"role":"assistant","content":"<think>hmm</think>\n42"},"finish_reason":"stop"}]}`
		result := ParseResponse(a, []byte(body))
		assert.Equal(t, "42", result.Content)
		assert.Equal(t, "hmm", result.Reasoning)
	})

	t.Run("inline tag kept without extraction", func(t *testing.T) {
		a, _ := r.Get(llm.ProviderMistral)
		require.False(t, a.SupportsReasoningExtraction())
		body := `{"choices":[{"message":{"role":"assistant","content":"<think>hmm</think>42"},"finish_reason":"stop"}]}`
		result := ParseResponse(a, []byte(body))
		assert.Equal(t, "<think>hmm</think>42", result.Content)
		assert.Empty(t, result.Reasoning)
	})

	t.Run("content parts", func(t *testing.T) {
		a, _ := r.Get(llm.ProviderMistral)
		body := `{"choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]},"finish_reason":"stop"}]}`
		assert.Equal(t, "ab", ParseResponse(a, []byte(body)).Content)
	})
}

func TestParse_WebSearchEvidence(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name string
		id   llm.ProviderID
		body string
		want bool
	}{
		{
			"openai url citation", llm.ProviderOpenAI,
			`{"choices":[{"message":{"content":"x","annotations":[{"type":"url_citation","url_citation":{"url":"https://a"}}]},"finish_reason":"stop"}]}`,
			true,
		},
		{
			"openai no annotations", llm.ProviderOpenAI,
			`{"choices":[{"message":{"content":"x","annotations":[]},"finish_reason":"stop"}]}`,
			false,
		},
		{
			"xai citations", llm.ProviderXAI,
			`{"choices":[{"message":{"content":"x"},"finish_reason":"stop"}],"citations":["https://a"]}`,
			true,
		},
		{
			"anthropic search results", llm.ProviderAnthropic,
			`{"content":[{"type":"web_search_tool_result","content":[{"type":"web_search_result","url":"https://a"}]},{"type":"text","text":"x"}],"stop_reason":"end_turn"}`,
			true,
		},
		{
			"anthropic failed search", llm.ProviderAnthropic,
			`{"content":[{"type":"web_search_tool_result","content":{"type":"web_search_tool_result_error","error_code":"unavailable"}},{"type":"text","text":"x"}],"stop_reason":"end_turn"}`,
			false,
		},
		{
			"gemini grounding chunks", llm.ProviderGemini,
			`{"candidates":[{"content":{"parts":[{"text":"x"}]},"finishReason":"STOP","groundingMetadata":{"groundingChunks":[{"web":{"uri":"https://a"}}]}}]}`,
			true,
		},
		{
			"gemini empty grounding", llm.ProviderGemini,
			`{"candidates":[{"content":{"parts":[{"text":"x"}]},"finishReason":"STOP","groundingMetadata":{"groundingChunks":[]}}]}`,
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := r.Get(tt.id)
			result := ParseResponse(a, []byte(tt.body))
			require.True(t, result.Success, result.Error)
			assert.Equal(t, tt.want, result.WebSearchUsed)
		})
	}
}

func TestDecodeStreamEvent(t *testing.T) {
	r := newTestRegistry(t)

	decode := func(t *testing.T, id llm.ProviderID, event string) llm.Delta {
		t.Helper()
		a, _ := r.Get(id)
		var raw map[string]any
		require.NoError(t, json.Unmarshal([]byte(event), &raw))
		return a.DecodeStreamEvent(raw)
	}

	t.Run("chat chunk", func(t *testing.T) {
		d := decode(t, llm.ProviderOpenAI, `{"choices":[{"delta":{"content":"Hel"},"finish_reason":null}]}`)
		assert.Equal(t, "Hel", d.Content)
		d = decode(t, llm.ProviderOpenAI, `{"choices":[{"delta":{},"finish_reason":"length"}]}`)
		assert.True(t, d.Truncated)
	})

	t.Run("anthropic deltas", func(t *testing.T) {
		d := decode(t, llm.ProviderAnthropic, `{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"hm"}}`)
		assert.Equal(t, "hm", d.Reasoning)
		d = decode(t, llm.ProviderAnthropic, `{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"Hi"}}`)
		assert.Equal(t, "Hi", d.Content)
		d = decode(t, llm.ProviderAnthropic, `{"type":"message_delta","delta":{"stop_reason":"max_tokens"},"usage":{"output_tokens":9}}`)
		assert.True(t, d.Truncated)
		require.NotNil(t, d.Usage)
		assert.Equal(t, 9, d.Usage.OutputTokens)
		d = decode(t, llm.ProviderAnthropic, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
		require.NotNil(t, d.Err)
		assert.Equal(t, "Overloaded", d.Err.Message)
	})

	t.Run("gemini chunk", func(t *testing.T) {
		d := decode(t, llm.ProviderGemini, `{"candidates":[{"content":{"parts":[{"text":"plan","thought":true},{"text":"Hi"}]}}]}`)
		assert.Equal(t, "Hi", d.Content)
		assert.Equal(t, "plan", d.Reasoning)
	})

	t.Run("ollama line", func(t *testing.T) {
		d := decode(t, llm.ProviderOllama, `{"message":{"role":"assistant","content":"Hi"},"done":false}`)
		assert.Equal(t, "Hi", d.Content)
		assert.Nil(t, d.Usage)
		d = decode(t, llm.ProviderOllama, `{"message":{"role":"assistant","content":""},"done":true,"done_reason":"length","eval_count":3}`)
		assert.True(t, d.Truncated)
		require.NotNil(t, d.Usage)
		assert.Equal(t, 3, d.Usage.OutputTokens)
	})

	t.Run("cohere events", func(t *testing.T) {
		d := decode(t, llm.ProviderCohere, `{"type":"content-delta","index":0,"delta":{"message":{"content":{"text":"Hi"}}}}`)
		assert.Equal(t, "Hi", d.Content)
		d = decode(t, llm.ProviderCohere, `{"type":"message-end","delta":{"finish_reason":"MAX_TOKENS","usage":{"billed_units":{"output_tokens":4}}}}`)
		assert.True(t, d.Truncated)
	})
}

func TestRemoveFields(t *testing.T) {
	data := map[string]any{
		"keep":          "this",
		"cache_control": map[string]any{"type": "ephemeral"},
		"nested": map[string]any{
			"keep_nested":   "value",
			"cache_control": map[string]any{"type": "ephemeral"},
			"deep": map[string]any{
				"cache_control": "remove_me",
				"keep_deep":     "deep_value",
			},
		},
		"array": []any{
			map[string]any{"cache_control": "remove", "keep_array": "array_value"},
		},
	}

	result, ok := removeFields(data, []string{"cache_control"}).(map[string]any)
	require.True(t, ok, "result should be a map")

	assert.NotContains(t, result, "cache_control")
	assert.Equal(t, "this", result["keep"])

	nested := result["nested"].(map[string]any)
	assert.NotContains(t, nested, "cache_control")
	assert.Equal(t, "value", nested["keep_nested"])

	deep := nested["deep"].(map[string]any)
	assert.NotContains(t, deep, "cache_control")
	assert.Equal(t, "deep_value", deep["keep_deep"])

	array := result["array"].([]any)
	require.Len(t, array, 1)
	assert.Equal(t, map[string]any{"keep_array": "array_value"}, array[0])

	assert.Contains(t, data, "cache_control", "input is not modified")
}
