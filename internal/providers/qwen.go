package providers

import "github.com/mihaisavezi/llm-bridge/internal/llm"

// QwenHooks targets DashScope's OpenAI-compatible mode.
type QwenHooks struct {
	Base
}

func NewQwenHooks() *QwenHooks {
	return &QwenHooks{Base: NewBase(llm.ProviderQwen, "Qwen")}
}

func (h *QwenHooks) CustomizeRequestBody(body map[string]any, ctx *BuildContext) {
	if ctx.Plan.Reasoning != nil {
		// DashScope only allows thinking on streamed calls.
		if ctx.Streaming() {
			body["enable_thinking"] = true
		} else {
			body["enable_thinking"] = false
			ctx.Adjust("thinking_skipped", true, nil, "%s only supports thinking when streaming", ctx.Model)
		}
	}

	if ctx.Plan.WebSearch {
		body["enable_search"] = true
	}
}

func (h *QwenHooks) SupportsReasoningExtraction() bool {
	return true
}
