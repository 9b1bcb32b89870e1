package providers

import (
	"strings"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

// DeepSeekHooks returns reasoner output in reasoning_content, and older
// deployments inline it in <think> tags.
type DeepSeekHooks struct {
	Base
}

func NewDeepSeekHooks() *DeepSeekHooks {
	return &DeepSeekHooks{Base: NewBase(llm.ProviderDeepSeek, "DeepSeek")}
}

func (h *DeepSeekHooks) EnhanceErrorMessage(msg string, _ llm.Config) string {
	if strings.Contains(strings.ToLower(msg), "insufficient balance") {
		return msg + " (top up at https://platform.deepseek.com)"
	}
	return msg
}

func (h *DeepSeekHooks) SupportsReasoningExtraction() bool {
	return true
}
