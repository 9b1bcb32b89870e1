package providers

import (
	"errors"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

// PlainHooks serves providers that need nothing beyond the template.
type PlainHooks struct {
	Base
	extract bool
}

func NewPlainHooks(key llm.ProviderID, name string, extractThinking bool) *PlainHooks {
	return &PlainHooks{Base: NewBase(key, name), extract: extractThinking}
}

func (h *PlainHooks) SupportsReasoningExtraction() bool {
	return h.extract
}

// NvidiaHooks targets NVIDIA NIM, whose hosted reasoning models inline
// their thinking in <think> tags.
type NvidiaHooks struct {
	Base
}

func NewNvidiaHooks() *NvidiaHooks {
	return &NvidiaHooks{Base: NewBase(llm.ProviderNvidia, "NVIDIA NIM")}
}

func (h *NvidiaHooks) SupportsReasoningExtraction() bool {
	return true
}

// CustomHooks targets a user-defined OpenAI-compatible endpoint.
type CustomHooks struct {
	Base
}

func NewCustomHooks() *CustomHooks {
	return &CustomHooks{Base: NewBase(llm.ProviderCustom, "Custom endpoint")}
}

// ValidateConfig requires an endpoint; the key is optional for self-hosted
// servers.
func (h *CustomHooks) ValidateConfig(cfg llm.Config) error {
	if cfg.BaseURL == "" {
		return errors.New("base URL is required for a custom endpoint")
	}
	return nil
}

func (h *CustomHooks) SupportsReasoningExtraction() bool {
	return true
}
