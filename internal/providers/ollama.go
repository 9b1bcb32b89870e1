package providers

import (
	"strings"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

// OllamaHooks targets a local Ollama server through its native /api/chat
// endpoint. Streaming responses are NDJSON rather than SSE.
type OllamaHooks struct {
	Base
}

func NewOllamaHooks() *OllamaHooks {
	return &OllamaHooks{Base: NewBase(llm.ProviderOllama, "Ollama")}
}

func (h *OllamaHooks) KeepsSystemInline() bool {
	return true
}

// ValidateConfig accepts a missing key; local servers run without auth.
func (h *OllamaHooks) ValidateConfig(llm.Config) error {
	return nil
}

func (h *OllamaHooks) CustomizeRequestBody(body map[string]any, ctx *BuildContext) {
	options := map[string]any{}
	for _, field := range []string{"temperature", ctx.Plan.TokenFieldOr(ctx.Defaults.TokenField)} {
		if v, ok := body[field]; ok {
			options[field] = v
			delete(body, field)
		}
	}
	body["options"] = options

	// /api/chat streams unless told otherwise.
	body["stream"] = ctx.Streaming()

	if ctx.Plan.Reasoning != nil {
		body["think"] = true
	}
}

func (h *OllamaHooks) EnhanceErrorMessage(msg string, cfg llm.Config) string {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "not found") || strings.Contains(lower, "pull") {
		return msg + " (run `ollama pull " + cfg.Model + "` first)"
	}
	return msg
}

func (h *OllamaHooks) SupportsReasoningExtraction() bool {
	return true
}

func (h *OllamaHooks) DecodeResponse(raw map[string]any) llm.Result {
	if hasError(raw) {
		return llm.Failure(llm.BodyError(llm.ProviderOllama, raw))
	}

	msg, ok := raw["message"].(map[string]any)
	if !ok {
		return llm.Failure(llm.ShapeError(llm.ProviderOllama, raw))
	}

	result := llm.Result{
		Success:      true,
		Content:      str(msg, "content"),
		Reasoning:    str(msg, "thinking"),
		FinishReason: str(raw, "done_reason"),
		Usage:        MapTokenUsage(raw, OllamaTokenMapping),
	}
	if result.Reasoning == "" {
		result.Content, result.Reasoning = SplitThinking(result.Content)
	}
	if result.FinishReason == "length" {
		result.MarkTruncated()
	}
	return result
}

func (h *OllamaHooks) DecodeStreamEvent(raw map[string]any) llm.Delta {
	if hasError(raw) {
		return llm.Delta{Err: llm.BodyError(llm.ProviderOllama, raw)}
	}

	var d llm.Delta
	if msg, ok := raw["message"].(map[string]any); ok {
		d.Content = str(msg, "content")
		d.Reasoning = str(msg, "thinking")
	}
	if done, _ := raw["done"].(bool); done {
		d.FinishReason = str(raw, "done_reason")
		d.Truncated = d.FinishReason == "length"
		u := MapTokenUsage(raw, OllamaTokenMapping)
		d.Usage = &u
	}
	return d
}
