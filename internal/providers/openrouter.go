package providers

import (
	"strings"

	"github.com/mihaisavezi/llm-bridge/internal/capabilities"
	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

const (
	openRouterReferer = "https://github.com/mihaisavezi/llm-bridge"
	openRouterTitle   = "llm-bridge"
	onlineSuffix      = ":online"
)

// OpenRouterHooks targets the OpenRouter aggregator, which normalizes
// reasoning and search across upstream models.
type OpenRouterHooks struct {
	Base
}

func NewOpenRouterHooks() *OpenRouterHooks {
	return &OpenRouterHooks{Base: NewBase(llm.ProviderOpenRouter, "OpenRouter")}
}

func (h *OpenRouterHooks) CustomizeHeaders(headers map[string]string, _ *BuildContext) {
	headers["HTTP-Referer"] = openRouterReferer
	headers["X-Title"] = openRouterTitle
}

func (h *OpenRouterHooks) CustomizeRequestBody(body map[string]any, ctx *BuildContext) {
	if ctx.Plan.WebSearch && !strings.HasSuffix(ctx.Model, onlineSuffix) {
		body["model"] = ctx.Model + onlineSuffix
	}

	// OpenRouter takes a reasoning object instead of reasoning_effort.
	if r := ctx.Plan.Reasoning; r != nil && r.Style == capabilities.ReasoningEffort {
		delete(body, "reasoning_effort")
		body["reasoning"] = map[string]any{"effort": r.Effort}
	}
}

func (h *OpenRouterHooks) EnhanceErrorMessage(msg string, cfg llm.Config) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "credits") || strings.Contains(lower, "insufficient"):
		return msg + " (add credits at https://openrouter.ai/settings/credits)"
	case strings.Contains(lower, "no endpoints found"):
		return msg + " (no upstream currently serves " + cfg.Model + "; try another model)"
	default:
		return msg
	}
}

func (h *OpenRouterHooks) SupportsReasoningExtraction() bool {
	return true
}
