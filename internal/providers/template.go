package providers

import (
	"cmp"
	"maps"

	"github.com/mihaisavezi/llm-bridge/internal/capabilities"
	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

// anthropicOnlyFields are stripped from structured content sent to
// OpenAI-compatible providers.
var anthropicOnlyFields = []string{"cache_control"}

// Compat is the shared request template for OpenAI-compatible providers.
// Provider differences live in its Hooks.
type Compat struct {
	hooks    Hooks
	defaults Defaults
	adjuster *capabilities.Adjuster
}

func NewCompat(h Hooks, d Defaults, adjuster *capabilities.Adjuster) *Compat {
	if adjuster == nil {
		adjuster = capabilities.NewAdjuster(nil)
	}
	return &Compat{hooks: h, defaults: d, adjuster: adjuster}
}

func (c *Compat) Key() llm.ProviderID {
	return c.hooks.ProviderKey()
}

func (c *Compat) Name() string {
	return c.hooks.ProviderName()
}

func (c *Compat) Defaults() Defaults {
	return c.defaults.clone()
}

func (c *Compat) Hooks() Hooks {
	return c.hooks
}

func (c *Compat) SupportsReasoningExtraction() bool {
	return c.hooks.SupportsReasoningExtraction()
}

// BuildRequestBody produces the JSON body for messages. Empty messages are
// dropped and system messages are folded into one leading system entry.
func (c *Compat) BuildRequestBody(messages []llm.Message, cfg llm.Config) (map[string]any, *BuildContext) {
	keepSystem := false
	if h, ok := c.hooks.(inlineSystem); ok {
		keepSystem = h.KeepsSystemInline()
	}

	req := prepare(c.defaults, c.adjuster, messages, cfg, keepSystem)
	ctx := &BuildContext{
		Config:      cfg,
		Model:       req.model,
		Plan:        req.plan,
		Defaults:    c.defaults,
		Adjustments: req.adjustments,
	}

	wire := make([]map[string]any, 0, len(req.messages)+1)
	if req.system != "" {
		wire = append(wire, map[string]any{"role": "system", "content": req.system})
	}
	for _, m := range req.messages {
		wire = append(wire, map[string]any{"role": compatRole(m.Role), "content": compatContent(m)})
	}

	body := map[string]any{
		"model":       req.model,
		"messages":    wire,
		"temperature": req.plan.Temperature,
	}
	body[req.plan.TokenFieldOr(c.defaults.TokenField)] = req.plan.MaxTokens

	if cfg.Features.Streaming {
		body["stream"] = true
	}
	if r := req.plan.Reasoning; r != nil && r.Style == capabilities.ReasoningEffort {
		body["reasoning_effort"] = r.Effort
	}

	c.hooks.CustomizeRequestBody(body, ctx)
	return body, ctx
}

// Build validates cfg and returns the complete envelope.
func (c *Compat) Build(messages []llm.Message, cfg llm.Config) (llm.Envelope, error) {
	key := c.Key()
	if err := c.hooks.ValidateConfig(cfg); err != nil {
		return llm.Envelope{}, wrapValidation(key, err, c.hooks, cfg)
	}
	if err := validateConversation(key, messages); err != nil {
		return llm.Envelope{}, err
	}

	body, ctx := c.BuildRequestBody(messages, cfg)

	headers := map[string]string{"Content-Type": "application/json"}
	maps.Copy(headers, c.defaults.Headers)
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}
	c.hooks.CustomizeHeaders(headers, ctx)

	url := c.hooks.CustomizeURL(cmp.Or(cfg.BaseURL, c.defaults.BaseURL), ctx)
	if url == "" {
		return llm.Envelope{}, llm.ConfigError(key, "base URL is required")
	}

	return llm.Envelope{
		URL:         url,
		Headers:     headers,
		Body:        body,
		Model:       ctx.Model,
		Provider:    key,
		Adjustments: ctx.Adjustments,
	}, nil
}

func (c *Compat) Parse(raw map[string]any) llm.Result {
	if d, ok := c.hooks.(responseDecoder); ok {
		return d.DecodeResponse(raw)
	}
	return decodeChatCompletion(c.Key(), raw, c.hooks.SupportsReasoningExtraction())
}

func (c *Compat) DecodeStreamEvent(raw map[string]any) llm.Delta {
	if d, ok := c.hooks.(streamDecoder); ok {
		return d.DecodeStreamEvent(raw)
	}
	return decodeChatChunk(c.Key(), raw)
}

func (c *Compat) EnhanceError(err *llm.Error, cfg llm.Config) *llm.Error {
	if err == nil {
		return nil
	}
	return enhance(err, c.hooks.EnhanceErrorMessage(err.Message, cfg))
}

// compatRole maps to the two roles the template forwards. System is kept
// for providers that leave system messages inline.
func compatRole(r llm.Role) string {
	switch r {
	case llm.RoleAssistant:
		return "assistant"
	case llm.RoleSystem:
		return "system"
	default:
		return "user"
	}
}

func compatContent(m llm.Message) any {
	if m.Structured == nil {
		return m.Content
	}
	return removeFields(m.Structured, anthropicOnlyFields)
}
