package providers

import (
	"cmp"
	"maps"

	"github.com/mihaisavezi/llm-bridge/internal/capabilities"
	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

const (
	AnthropicVersion   = "2023-06-01"
	anthropicSearchMax = 5
)

// Anthropic builds Messages API requests. System text is sent as typed
// blocks so a single block can carry the prompt-cache marker.
type Anthropic struct {
	Base
	defaults Defaults
	adjuster *capabilities.Adjuster
}

func NewAnthropic(d Defaults, adjuster *capabilities.Adjuster) *Anthropic {
	if adjuster == nil {
		adjuster = capabilities.NewAdjuster(nil)
	}
	return &Anthropic{
		Base:     NewBase(llm.ProviderAnthropic, "Anthropic"),
		defaults: d,
		adjuster: adjuster,
	}
}

func (p *Anthropic) Key() llm.ProviderID { return p.ProviderKey() }
func (p *Anthropic) Name() string        { return p.ProviderName() }
func (p *Anthropic) Defaults() Defaults  { return p.defaults.clone() }

func (p *Anthropic) Build(messages []llm.Message, cfg llm.Config) (llm.Envelope, error) {
	if err := p.ValidateConfig(cfg); err != nil {
		return llm.Envelope{}, wrapValidation(p.Key(), err, p, cfg)
	}
	if err := validateConversation(p.Key(), messages); err != nil {
		return llm.Envelope{}, err
	}

	req := prepare(p.defaults, p.adjuster, messages, cfg, false)

	wire := make([]map[string]any, 0, len(req.messages))
	for _, m := range req.messages {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "assistant"
		}
		wire = append(wire, map[string]any{"role": role, "content": m.Payload()})
	}

	body := map[string]any{
		"model":       req.model,
		"messages":    wire,
		"max_tokens":  req.plan.MaxTokens,
		"temperature": req.plan.Temperature,
	}

	if len(req.systemParts) > 0 {
		blocks := make([]map[string]any, 0, len(req.systemParts))
		for _, text := range req.systemParts {
			blocks = append(blocks, map[string]any{"type": "text", "text": text})
		}
		// The cache breakpoint covers everything up to and including the
		// marked block, so only the last one is marked.
		if req.plan.Caching {
			blocks[len(blocks)-1]["cache_control"] = map[string]any{"type": "ephemeral"}
		}
		body["system"] = blocks
	}

	if r := req.plan.Reasoning; r != nil && r.Style == capabilities.ReasoningBudget {
		body["thinking"] = map[string]any{
			"type":          "enabled",
			"budget_tokens": r.BudgetTokens,
		}
	}

	if req.plan.WebSearch {
		body["tools"] = []map[string]any{{
			"type":     "web_search_20250305",
			"name":     "web_search",
			"max_uses": anthropicSearchMax,
		}}
	}

	if cfg.Features.Streaming {
		body["stream"] = true
	}

	headers := map[string]string{
		"Content-Type":      "application/json",
		"x-api-key":         cfg.APIKey,
		"anthropic-version": AnthropicVersion,
	}
	maps.Copy(headers, p.defaults.Headers)

	url := cmp.Or(cfg.BaseURL, p.defaults.BaseURL)
	if url == "" {
		return llm.Envelope{}, llm.ConfigError(p.Key(), "base URL is required")
	}

	return llm.Envelope{
		URL:         url,
		Headers:     headers,
		Body:        body,
		Model:       req.model,
		Provider:    p.Key(),
		Adjustments: req.adjustments,
	}, nil
}

func (p *Anthropic) Parse(raw map[string]any) llm.Result {
	if hasError(raw) {
		return llm.Failure(llm.BodyError(p.Key(), raw))
	}

	blocks, ok := raw["content"].([]any)
	if !ok {
		return llm.Failure(llm.ShapeError(p.Key(), raw))
	}

	result := llm.Result{
		Success:      true,
		FinishReason: str(raw, "stop_reason"),
	}

	for _, b := range blocks {
		block, ok := b.(map[string]any)
		if !ok {
			continue
		}
		switch str(block, "type") {
		case "text":
			result.Content += str(block, "text")
			if nonEmptyList(block["citations"]) {
				result.WebSearchUsed = true
			}
		case "thinking":
			result.Reasoning += str(block, "thinking")
		case "web_search_tool_result":
			// a failed search returns an error object instead of results
			if nonEmptyList(block["content"]) {
				result.WebSearchUsed = true
			}
		}
	}

	if usage, ok := raw["usage"].(map[string]any); ok {
		result.Usage = MapTokenUsage(usage, AnthropicTokenMapping)
	}

	if result.FinishReason == "max_tokens" {
		result.MarkTruncated()
	}
	return result
}

func (p *Anthropic) DecodeStreamEvent(raw map[string]any) llm.Delta {
	var d llm.Delta

	switch str(raw, "type") {
	case "content_block_start":
		if block, ok := raw["content_block"].(map[string]any); ok {
			switch str(block, "type") {
			case "text":
				d.Content = str(block, "text")
			case "web_search_tool_result":
				d.WebSearchUsed = nonEmptyList(block["content"])
			}
		}
	case "content_block_delta":
		delta, _ := raw["delta"].(map[string]any)
		switch str(delta, "type") {
		case "text_delta":
			d.Content = str(delta, "text")
		case "thinking_delta":
			d.Reasoning = str(delta, "thinking")
		case "citations_delta":
			d.WebSearchUsed = true
		}
	case "message_start":
		if msg, ok := raw["message"].(map[string]any); ok {
			if usage, ok := msg["usage"].(map[string]any); ok {
				u := MapTokenUsage(usage, AnthropicTokenMapping)
				d.Usage = &u
			}
		}
	case "message_delta":
		if delta, ok := raw["delta"].(map[string]any); ok {
			d.FinishReason = str(delta, "stop_reason")
			d.Truncated = d.FinishReason == "max_tokens"
		}
		if usage, ok := raw["usage"].(map[string]any); ok {
			u := MapTokenUsage(usage, AnthropicTokenMapping)
			d.Usage = &u
		}
	case "error":
		d.Err = llm.BodyError(p.Key(), raw)
	}

	return d
}

func (p *Anthropic) EnhanceError(err *llm.Error, cfg llm.Config) *llm.Error {
	if err == nil {
		return nil
	}
	return enhance(err, p.EnhanceErrorMessage(err.Message, cfg))
}

func (p *Anthropic) EnhanceErrorMessage(msg string, _ llm.Config) string {
	if msg == "overloaded_error" || msg == "Overloaded" {
		return msg + " (Anthropic is temporarily overloaded; retry shortly)"
	}
	return msg
}
