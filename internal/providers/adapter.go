package providers

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mihaisavezi/llm-bridge/internal/capabilities"
	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

// Adapter turns the unified request into one provider's wire format and
// decodes that provider's responses.
type Adapter interface {
	Key() llm.ProviderID
	Name() string
	Defaults() Defaults
	Build(messages []llm.Message, cfg llm.Config) (llm.Envelope, error)
	Parse(raw map[string]any) llm.Result
	DecodeStreamEvent(raw map[string]any) llm.Delta
	EnhanceError(err *llm.Error, cfg llm.Config) *llm.Error
	SupportsReasoningExtraction() bool
}

// Build runs a.Build and converts a panic inside the builder into a
// ConfigError so callers always get a value back.
func Build(a Adapter, messages []llm.Message, cfg llm.Config) (env llm.Envelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			env = llm.Envelope{}
			err = llm.ConfigError(a.Key(), "build request: %v", r)
		}
	}()

	return a.Build(messages, cfg)
}

// ParseResponse decodes a complete response body. It never panics: broken
// JSON becomes a DecodeError and an unknown shape a ShapeError.
func ParseResponse(a Adapter, body []byte) (result llm.Result) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return llm.Failure(llm.DecodeError(a.Key(), body, nil))
	}

	var raw map[string]any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return llm.Failure(llm.DecodeError(a.Key(), body, err))
	}
	if len(raw) == 0 {
		err := llm.DecodeError(a.Key(), nil, nil)
		err.Snippet = llm.Snippet(body)
		return llm.Failure(err)
	}

	defer func() {
		if r := recover(); r != nil {
			result = llm.Failure(llm.ShapeError(a.Key(), raw))
		}
	}()

	return a.Parse(raw)
}

// request is the provider-neutral state every builder starts from.
type request struct {
	model       string
	system      string
	systemParts []string
	messages    []llm.Message
	plan        capabilities.Plan
	adjustments []llm.Adjustment
}

// prepare resolves the model, relocates system messages, drops empty ones
// and runs the constraint adjuster.
func prepare(d Defaults, adjuster *capabilities.Adjuster, messages []llm.Message, cfg llm.Config, keepSystem bool) request {
	req := request{model: cmp.Or(cfg.Model, d.DefaultModel())}

	var system []string
	if s := strings.TrimSpace(cfg.System.Text); s != "" {
		system = append(system, s)
	}

	req.messages = make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		if m.IsEmpty() {
			continue
		}
		if m.IsSystem() && !keepSystem {
			system = append(system, strings.TrimSpace(m.Text()))
			continue
		}
		req.messages = append(req.messages, m)
	}
	req.systemParts = system
	req.system = strings.Join(system, "\n\n")

	draft := capabilities.Draft{
		Temperature:    llm.DefaultTemperature,
		MaxTokens:      llm.DefaultMaxTokens,
		Reasoning:      cfg.Params.Reasoning,
		WebSearch:      cfg.Features.WebSearchRequested(),
		Caching:        cfg.System.EnableCaching,
		TemperatureSet: cfg.Params.Temperature != nil,
	}
	switch {
	case cfg.Params.Temperature != nil:
		draft.Temperature = *cfg.Params.Temperature
	case d.Temperature != nil:
		draft.Temperature = *d.Temperature
	}
	switch {
	case cfg.Params.MaxTokens != nil:
		draft.MaxTokens = *cfg.Params.MaxTokens
	case d.MaxTokens != nil:
		draft.MaxTokens = *d.MaxTokens
	}

	req.plan, req.adjustments = adjuster.Apply(d.Provider, req.model, draft)
	return req
}

// validateConversation rejects lists with nothing but system messages.
func validateConversation(key llm.ProviderID, messages []llm.Message) error {
	if !llm.HasConversation(messages) {
		return llm.ConfigError(key, "at least one non-system message is required")
	}
	return nil
}

func enhance(err *llm.Error, msg string) *llm.Error {
	if err == nil || msg == err.Message {
		return err
	}
	out := *err
	out.Message = msg
	return &out
}

func wrapValidation(key llm.ProviderID, err error, h Hooks, cfg llm.Config) error {
	return llm.ConfigError(key, "%s", h.EnhanceErrorMessage(fmt.Sprint(err), cfg))
}
