package providers

import (
	"github.com/mihaisavezi/llm-bridge/internal/capabilities"
	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

// DoubaoHooks targets Volcengine Ark.
type DoubaoHooks struct {
	Base
}

func NewDoubaoHooks() *DoubaoHooks {
	return &DoubaoHooks{Base: NewBase(llm.ProviderDoubao, "Doubao")}
}

func (h *DoubaoHooks) CustomizeRequestBody(body map[string]any, ctx *BuildContext) {
	if !ctx.Plan.Spec.Has(capabilities.Reasoning) {
		return
	}
	mode := "disabled"
	if ctx.Plan.Reasoning != nil {
		mode = "enabled"
	}
	body["thinking"] = map[string]any{"type": mode}
}

func (h *DoubaoHooks) SupportsReasoningExtraction() bool {
	return true
}
