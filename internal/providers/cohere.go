package providers

import "github.com/mihaisavezi/llm-bridge/internal/llm"

// CohereHooks targets the v2 chat API. The request matches the template;
// responses use Cohere's own shape.
type CohereHooks struct {
	Base
}

func NewCohereHooks() *CohereHooks {
	return &CohereHooks{Base: NewBase(llm.ProviderCohere, "Cohere")}
}

func (h *CohereHooks) DecodeResponse(raw map[string]any) llm.Result {
	if hasError(raw) {
		return llm.Failure(llm.BodyError(llm.ProviderCohere, raw))
	}

	msg, ok := raw["message"].(map[string]any)
	if !ok {
		if _, isText := raw["message"].(string); isText {
			return llm.Failure(llm.BodyError(llm.ProviderCohere, raw))
		}
		return llm.Failure(llm.ShapeError(llm.ProviderCohere, raw))
	}

	result := llm.Result{
		Success:      true,
		FinishReason: str(raw, "finish_reason"),
		Usage:        cohereUsage(raw["usage"]),
	}

	if blocks, ok := msg["content"].([]any); ok {
		for _, b := range blocks {
			block, ok := b.(map[string]any)
			if !ok {
				continue
			}
			switch str(block, "type") {
			case "text":
				result.Content += str(block, "text")
			case "thinking":
				result.Reasoning += str(block, "thinking")
			}
		}
	}
	result.WebSearchUsed = nonEmptyList(msg["citations"])

	if result.FinishReason == "MAX_TOKENS" {
		result.MarkTruncated()
	}
	return result
}

func (h *CohereHooks) DecodeStreamEvent(raw map[string]any) llm.Delta {
	var d llm.Delta

	delta, _ := raw["delta"].(map[string]any)
	switch str(raw, "type") {
	case "content-delta":
		if msg, ok := delta["message"].(map[string]any); ok {
			if content, ok := msg["content"].(map[string]any); ok {
				d.Content = str(content, "text")
				d.Reasoning = str(content, "thinking")
			}
		}
	case "citation-start":
		d.WebSearchUsed = true
	case "message-end":
		d.FinishReason = str(delta, "finish_reason")
		d.Truncated = d.FinishReason == "MAX_TOKENS"
		u := cohereUsage(delta["usage"])
		d.Usage = &u
	default:
		if hasError(raw) {
			d.Err = llm.BodyError(llm.ProviderCohere, raw)
		}
	}

	return d
}

func cohereUsage(v any) llm.Usage {
	usage, ok := v.(map[string]any)
	if !ok {
		return llm.Usage{}
	}
	if billed, ok := usage["billed_units"].(map[string]any); ok {
		return MapTokenUsage(billed, AnthropicTokenMapping)
	}
	return MapTokenUsage(usage, AnthropicTokenMapping)
}
