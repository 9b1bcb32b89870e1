package providers

import (
	"strings"

	"github.com/mihaisavezi/llm-bridge/internal/capabilities"
	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

type OpenAIHooks struct {
	Base
}

func NewOpenAIHooks() *OpenAIHooks {
	return &OpenAIHooks{Base: NewBase(llm.ProviderOpenAI, "OpenAI")}
}

// CustomizeRequestBody enables search for the search-preview models. Those
// models reject sampling parameters, so temperature is removed.
func (h *OpenAIHooks) CustomizeRequestBody(body map[string]any, ctx *BuildContext) {
	if !ctx.Plan.Spec.Has(capabilities.WebSearch) {
		return
	}

	if ctx.Plan.WebSearch {
		body["web_search_options"] = map[string]any{}
	}
	if temp, ok := body["temperature"]; ok {
		delete(body, "temperature")
		ctx.Adjust("temperature_skipped", temp, nil, "%s does not accept temperature", ctx.Model)
	}
}

func (h *OpenAIHooks) EnhanceErrorMessage(msg string, cfg llm.Config) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "does not exist") || strings.Contains(lower, "model_not_found"):
		return msg + " (check the model name or your organization's access to " + cfg.Model + ")"
	case strings.Contains(lower, "incorrect api key"):
		return msg + " (set a valid OpenAI key in the provider config)"
	default:
		return msg
	}
}
