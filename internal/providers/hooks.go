package providers

import (
	"errors"
	"fmt"

	"github.com/mihaisavezi/llm-bridge/internal/capabilities"
	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

// BuildContext carries the resolved request through the template hooks.
type BuildContext struct {
	Config      llm.Config
	Model       string
	Plan        capabilities.Plan
	Defaults    Defaults
	Adjustments []llm.Adjustment
}

// Adjust records a change made by a hook.
func (c *BuildContext) Adjust(field string, from, to any, reason string, args ...any) {
	c.Adjustments = append(c.Adjustments, llm.Adjustment{
		Field:  field,
		From:   from,
		To:     to,
		Reason: fmt.Sprintf(reason, args...),
	})
}

// Streaming reports whether the caller asked for a streamed response.
func (c *BuildContext) Streaming() bool {
	return c.Config.Features.Streaming
}

// Hooks are the override points of the OpenAI-compatible request template.
// Implementations embed Base and override only what differs.
type Hooks interface {
	ProviderName() string
	ProviderKey() llm.ProviderID
	CustomizeHeaders(headers map[string]string, ctx *BuildContext)
	CustomizeRequestBody(body map[string]any, ctx *BuildContext)
	CustomizeURL(url string, ctx *BuildContext) string
	ValidateConfig(cfg llm.Config) error
	EnhanceErrorMessage(msg string, cfg llm.Config) string
	SupportsReasoningExtraction() bool
}

// Optional hook extensions, checked with a type assertion.
type (
	// inlineSystem keeps system messages in place instead of relocating
	// them to the front of the list.
	inlineSystem interface {
		KeepsSystemInline() bool
	}

	responseDecoder interface {
		DecodeResponse(raw map[string]any) llm.Result
	}

	streamDecoder interface {
		DecodeStreamEvent(raw map[string]any) llm.Delta
	}
)

var errMissingAPIKey = errors.New("API key is required")

// Base provides the default hook behavior.
type Base struct {
	key  llm.ProviderID
	name string
}

func NewBase(key llm.ProviderID, name string) Base {
	return Base{key: key, name: name}
}

func (b Base) ProviderName() string {
	return b.name
}

func (b Base) ProviderKey() llm.ProviderID {
	return b.key
}

func (b Base) CustomizeHeaders(map[string]string, *BuildContext) {}

func (b Base) CustomizeRequestBody(map[string]any, *BuildContext) {}

func (b Base) CustomizeURL(url string, _ *BuildContext) string {
	return url
}

func (b Base) ValidateConfig(cfg llm.Config) error {
	if cfg.APIKey == "" {
		return errMissingAPIKey
	}
	return nil
}

func (b Base) EnhanceErrorMessage(msg string, _ llm.Config) string {
	return msg
}

func (b Base) SupportsReasoningExtraction() bool {
	return false
}
