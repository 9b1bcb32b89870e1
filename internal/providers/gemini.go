package providers

import (
	"cmp"
	"maps"
	"strings"

	"github.com/mihaisavezi/llm-bridge/internal/capabilities"
	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

// Gemini builds generateContent requests for the Gemini API.
type Gemini struct {
	Base
	defaults Defaults
	adjuster *capabilities.Adjuster
}

func NewGemini(d Defaults, adjuster *capabilities.Adjuster) *Gemini {
	if adjuster == nil {
		adjuster = capabilities.NewAdjuster(nil)
	}
	return &Gemini{
		Base:     NewBase(llm.ProviderGemini, "Google Gemini"),
		defaults: d,
		adjuster: adjuster,
	}
}

func (p *Gemini) Key() llm.ProviderID { return p.ProviderKey() }
func (p *Gemini) Name() string        { return p.ProviderName() }
func (p *Gemini) Defaults() Defaults  { return p.defaults.clone() }

func (p *Gemini) Build(messages []llm.Message, cfg llm.Config) (llm.Envelope, error) {
	if err := p.ValidateConfig(cfg); err != nil {
		return llm.Envelope{}, wrapValidation(p.Key(), err, p, cfg)
	}
	if err := validateConversation(p.Key(), messages); err != nil {
		return llm.Envelope{}, err
	}

	req := prepare(p.defaults, p.adjuster, messages, cfg, false)

	contents := make([]map[string]any, 0, len(req.messages))
	for _, m := range req.messages {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		parts, ok := geminiRequestParts(m)
		if !ok {
			req.adjustments = append(req.adjustments, llm.Adjustment{
				Field:  "structured_content_flattened",
				Reason: "gemini accepts text and inline base64 images; other parts were sent as text",
			})
			parts = []map[string]any{{"text": m.Text()}}
		}
		contents = append(contents, map[string]any{
			"role":  role,
			"parts": parts,
		})
	}

	generation := map[string]any{
		"temperature": req.plan.Temperature,
	}
	generation[req.plan.TokenFieldOr(p.defaults.TokenField)] = req.plan.MaxTokens

	if r := req.plan.Reasoning; r != nil {
		thinking := map[string]any{"includeThoughts": true}
		if r.BudgetTokens > 0 {
			thinking["thinkingBudget"] = r.BudgetTokens
		} else {
			thinking["thinkingLevel"] = r.Level
		}
		generation["thinkingConfig"] = thinking
	}

	body := map[string]any{
		"contents":         contents,
		"generationConfig": generation,
	}
	if req.system != "" {
		body["system_instruction"] = map[string]any{
			"parts": []map[string]any{{"text": req.system}},
		}
	}
	if req.plan.WebSearch {
		body["tools"] = []map[string]any{{"google_search": map[string]any{}}}
	}

	headers := map[string]string{
		"Content-Type":   "application/json",
		"x-goog-api-key": cfg.APIKey,
	}
	maps.Copy(headers, p.defaults.Headers)

	base := strings.TrimRight(cmp.Or(cfg.BaseURL, p.defaults.BaseURL), "/")
	if base == "" {
		return llm.Envelope{}, llm.ConfigError(p.Key(), "base URL is required")
	}
	url := base + "/" + req.model + ":generateContent"
	if cfg.Features.Streaming {
		url = base + "/" + req.model + ":streamGenerateContent?alt=sse"
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

// geminiRequestParts converts a message into Gemini parts. Text parts and
// base64 images in either the data URL or the Anthropic source form are
// carried over; ok is false when any other part is present.
func geminiRequestParts(m llm.Message) ([]map[string]any, bool) {
	if m.Structured == nil {
		return []map[string]any{{"text": m.Content}}, true
	}

	var items []any
	switch v := m.Structured.(type) {
	case []any:
		items = v
	case []map[string]any:
		for _, item := range v {
			items = append(items, item)
		}
	case map[string]any:
		items = []any{v}
	default:
		return nil, false
	}

	parts := make([]map[string]any, 0, len(items))
	for _, item := range items {
		part, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		switch str(part, "type") {
		case "text", "input_text":
			parts = append(parts, map[string]any{"text": str(part, "text")})
		case "image_url":
			url := str(part, "image_url")
			if nested, ok := part["image_url"].(map[string]any); ok {
				url = str(nested, "url")
			}
			mime, data, ok := parseDataURL(url)
			if !ok {
				return nil, false
			}
			parts = append(parts, inlineData(mime, data))
		case "image":
			source, _ := part["source"].(map[string]any)
			if str(source, "type") != "base64" || str(source, "data") == "" {
				return nil, false
			}
			parts = append(parts, inlineData(str(source, "media_type"), str(source, "data")))
		default:
			return nil, false
		}
	}
	if len(parts) == 0 {
		return nil, false
	}
	return parts, true
}

func inlineData(mime, data string) map[string]any {
	return map[string]any{"inline_data": map[string]any{"mime_type": mime, "data": data}}
}

// parseDataURL splits data:<mime>;base64,<data>.
func parseDataURL(url string) (mime, data string, ok bool) {
	rest, found := strings.CutPrefix(url, "data:")
	if !found {
		return "", "", false
	}
	meta, data, found := strings.Cut(rest, ",")
	if !found || data == "" {
		return "", "", false
	}
	mime, found = strings.CutSuffix(meta, ";base64")
	if !found || mime == "" {
		return "", "", false
	}
	return mime, data, true
}

func (p *Gemini) Parse(raw map[string]any) llm.Result {
	if hasError(raw) {
		return llm.Failure(llm.BodyError(p.Key(), raw))
	}

	candidates, _ := raw["candidates"].([]any)
	if len(candidates) == 0 {
		if reason := blockReason(raw); reason != "" {
			return llm.Failure(&llm.Error{Kind: llm.KindHTTPStatus, Provider: p.Key(), Message: "prompt blocked: " + reason})
		}
		return llm.Failure(llm.ShapeError(p.Key(), raw))
	}

	candidate, ok := candidates[0].(map[string]any)
	if !ok {
		return llm.Failure(llm.ShapeError(p.Key(), raw))
	}

	content, reasoning := geminiParts(candidate)
	result := llm.Result{
		Success:       true,
		Content:       content,
		Reasoning:     reasoning,
		FinishReason:  str(candidate, "finishReason"),
		WebSearchUsed: grounded(candidate),
	}
	if usage, ok := raw["usageMetadata"].(map[string]any); ok {
		result.Usage = MapTokenUsage(usage, GeminiTokenMapping)
	}

	if result.FinishReason == "MAX_TOKENS" {
		result.MarkTruncated()
	}
	return result
}

func (p *Gemini) DecodeStreamEvent(raw map[string]any) llm.Delta {
	if hasError(raw) {
		return llm.Delta{Err: llm.BodyError(p.Key(), raw)}
	}

	var d llm.Delta
	if candidates, _ := raw["candidates"].([]any); len(candidates) > 0 {
		if candidate, ok := candidates[0].(map[string]any); ok {
			d.Content, d.Reasoning = geminiParts(candidate)
			d.FinishReason = str(candidate, "finishReason")
			d.Truncated = d.FinishReason == "MAX_TOKENS"
			d.WebSearchUsed = grounded(candidate)
		}
	} else if reason := blockReason(raw); reason != "" {
		d.Err = &llm.Error{Kind: llm.KindHTTPStatus, Provider: p.Key(), Message: "prompt blocked: " + reason}
	}

	if usage, ok := raw["usageMetadata"].(map[string]any); ok {
		u := MapTokenUsage(usage, GeminiTokenMapping)
		d.Usage = &u
	}
	return d
}

func (p *Gemini) EnhanceError(err *llm.Error, cfg llm.Config) *llm.Error {
	if err == nil {
		return nil
	}
	return enhance(err, p.EnhanceErrorMessage(err.Message, cfg))
}

func (p *Gemini) EnhanceErrorMessage(msg string, _ llm.Config) string {
	if strings.Contains(msg, "API key not valid") {
		return msg + " (create a key at https://aistudio.google.com/apikey)"
	}
	return msg
}

func geminiParts(candidate map[string]any) (content, reasoning string) {
	c, ok := candidate["content"].(map[string]any)
	if !ok {
		return "", ""
	}
	parts, _ := c["parts"].([]any)

	var text, thought strings.Builder
	for _, p := range parts {
		part, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if isThought, _ := part["thought"].(bool); isThought {
			thought.WriteString(str(part, "text"))
			continue
		}
		text.WriteString(str(part, "text"))
	}
	return text.String(), thought.String()
}

// grounded reports whether search results were actually used, which the
// API signals with grounding chunks rather than the tool declaration.
func grounded(candidate map[string]any) bool {
	meta, ok := candidate["groundingMetadata"].(map[string]any)
	if !ok {
		return false
	}
	return nonEmptyList(meta["groundingChunks"])
}

func blockReason(raw map[string]any) string {
	feedback, ok := raw["promptFeedback"].(map[string]any)
	if !ok {
		return ""
	}
	return str(feedback, "blockReason")
}
