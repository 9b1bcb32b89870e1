package providers

import "github.com/mihaisavezi/llm-bridge/internal/llm"

type XAIHooks struct {
	Base
}

func NewXAIHooks() *XAIHooks {
	return &XAIHooks{Base: NewBase(llm.ProviderXAI, "xAI")}
}

// CustomizeRequestBody turns on Live Search with citations so usage can be
// detected in the response.
func (h *XAIHooks) CustomizeRequestBody(body map[string]any, ctx *BuildContext) {
	if ctx.Plan.WebSearch {
		body["search_parameters"] = map[string]any{
			"mode":             "on",
			"return_citations": true,
		}
	}
}
