package providers

import (
	"regexp"
	"slices"
	"strings"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

var thinkPattern = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

const thinkOpen = "<think>"

// SplitThinking separates inline <think> blocks from the answer. An unclosed
// tag turns the rest of the text into reasoning. Content without a tag is
// returned unchanged.
func SplitThinking(content string) (answer, reasoning string) {
	if !strings.Contains(content, thinkOpen) {
		return content, ""
	}

	var parts []string
	answer = thinkPattern.ReplaceAllStringFunc(content, func(block string) string {
		m := thinkPattern.FindStringSubmatch(block)
		if t := strings.TrimSpace(m[1]); t != "" {
			parts = append(parts, t)
		}
		return ""
	})

	if i := strings.Index(answer, thinkOpen); i >= 0 {
		if t := strings.TrimSpace(answer[i+len(thinkOpen):]); t != "" {
			parts = append(parts, t)
		}
		answer = answer[:i]
	}

	return strings.TrimSpace(answer), strings.Join(parts, "\n\n")
}

// TokenMapping names the usage fields of a provider's response.
type TokenMapping struct {
	InputTokens  string
	OutputTokens string
}

var (
	OpenAITokenMapping    = TokenMapping{InputTokens: "prompt_tokens", OutputTokens: "completion_tokens"}
	AnthropicTokenMapping = TokenMapping{InputTokens: "input_tokens", OutputTokens: "output_tokens"}
	GeminiTokenMapping    = TokenMapping{InputTokens: "promptTokenCount", OutputTokens: "candidatesTokenCount"}
	OllamaTokenMapping    = TokenMapping{InputTokens: "prompt_eval_count", OutputTokens: "eval_count"}
)

// MapTokenUsage reads usage counters using m. Missing fields count as zero.
func MapTokenUsage(usage map[string]any, m TokenMapping) llm.Usage {
	return llm.Usage{
		InputTokens:  intField(usage, m.InputTokens),
		OutputTokens: intField(usage, m.OutputTokens),
	}
}

// removeFields drops the named keys at every level of a decoded JSON value.
func removeFields(data any, fields []string) any {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			if slices.Contains(fields, key) {
				continue
			}
			out[key] = removeFields(value, fields)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = removeFields(item, fields)
		}
		return out
	default:
		return v
	}
}

// decodeChatCompletion handles the chat.completion shape shared by the
// OpenAI-compatible providers.
func decodeChatCompletion(key llm.ProviderID, raw map[string]any, extract bool) llm.Result {
	if hasError(raw) {
		return llm.Failure(llm.BodyError(key, raw))
	}

	choice, ok := firstChoice(raw)
	if !ok {
		if msg, ok := raw["message"].(string); ok && msg != "" {
			return llm.Failure(llm.BodyError(key, raw))
		}
		return llm.Failure(llm.ShapeError(key, raw))
	}

	msg, ok := choice["message"].(map[string]any)
	if !ok {
		return llm.Failure(llm.ShapeError(key, raw))
	}

	result := llm.Result{
		Success:      true,
		Content:      textContent(msg["content"]),
		Reasoning:    firstString(msg, "reasoning_content", "reasoning"),
		FinishReason: str(choice, "finish_reason"),
	}

	if result.Reasoning == "" && extract {
		result.Content, result.Reasoning = SplitThinking(result.Content)
	}

	result.WebSearchUsed = hasURLCitation(msg["annotations"]) || nonEmptyList(raw["citations"])

	if usage, ok := raw["usage"].(map[string]any); ok {
		result.Usage = MapTokenUsage(usage, OpenAITokenMapping)
	}

	if result.FinishReason == "length" {
		result.MarkTruncated()
	}

	return result
}

// decodeChatChunk handles one chat.completion.chunk stream event.
func decodeChatChunk(key llm.ProviderID, raw map[string]any) llm.Delta {
	if hasError(raw) {
		return llm.Delta{Err: llm.BodyError(key, raw)}
	}

	var d llm.Delta
	if choice, ok := firstChoice(raw); ok {
		if delta, ok := choice["delta"].(map[string]any); ok {
			d.Content = textContent(delta["content"])
			d.Reasoning = firstString(delta, "reasoning_content", "reasoning")
			d.WebSearchUsed = hasURLCitation(delta["annotations"])
		}
		d.FinishReason = str(choice, "finish_reason")
		d.Truncated = d.FinishReason == "length"
	}

	if nonEmptyList(raw["citations"]) {
		d.WebSearchUsed = true
	}
	if usage, ok := raw["usage"].(map[string]any); ok {
		u := MapTokenUsage(usage, OpenAITokenMapping)
		d.Usage = &u
	}

	return d
}

// hasError reports whether raw carries an error value. Some compatible
// servers send "error": null on success.
func hasError(raw map[string]any) bool {
	switch v := raw["error"].(type) {
	case nil:
		return false
	case string:
		return v != ""
	case bool:
		return v
	default:
		return true
	}
}

func firstChoice(raw map[string]any) (map[string]any, bool) {
	choices, ok := raw["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil, false
	}
	choice, ok := choices[0].(map[string]any)
	return choice, ok
}

// textContent accepts a plain string or an array of content parts.
func textContent(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case []any:
		var b strings.Builder
		for _, part := range c {
			switch p := part.(type) {
			case string:
				b.WriteString(p)
			case map[string]any:
				if t, ok := p["text"].(string); ok {
					b.WriteString(t)
				}
			}
		}
		return b.String()
	default:
		return ""
	}
}

func hasURLCitation(v any) bool {
	annotations, ok := v.([]any)
	if !ok {
		return false
	}
	for _, a := range annotations {
		if m, ok := a.(map[string]any); ok && str(m, "type") == "url_citation" {
			return true
		}
	}
	return false
}

func nonEmptyList(v any) bool {
	list, ok := v.([]any)
	return ok && len(list) > 0
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := str(m, k); s != "" {
			return s
		}
	}
	return ""
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
