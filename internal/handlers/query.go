package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/mihaisavezi/llm-bridge/internal/capabilities"
	"github.com/mihaisavezi/llm-bridge/internal/config"
	"github.com/mihaisavezi/llm-bridge/internal/llm"
	"github.com/mihaisavezi/llm-bridge/internal/middleware"
	"github.com/mihaisavezi/llm-bridge/internal/providers"
	"github.com/mihaisavezi/llm-bridge/internal/query"
)

const maxRequestBody = 8 << 20

// QueryRequest is the body accepted by the inspect, ask and stream routes.
// Unset fields fall back to the provider's configuration.
type QueryRequest struct {
	Provider      string         `json:"provider,omitempty"`
	Model         string         `json:"model,omitempty"`
	Messages      []llm.Message  `json:"messages"`
	System        *string        `json:"system,omitempty"`
	EnableCaching *bool          `json:"enable_caching,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	MaxTokens     *int           `json:"max_tokens,omitempty"`
	Reasoning     *llm.Reasoning `json:"reasoning,omitempty"`
	WebSearch     *bool          `json:"web_search,omitempty"`
}

// Apply layers the request fields over base.
func (q QueryRequest) Apply(base llm.Config) llm.Config {
	cfg := base
	if q.Model != "" {
		cfg.Model = q.Model
	}
	if q.System != nil {
		cfg.System.Text = *q.System
	}
	if q.EnableCaching != nil {
		cfg.System.EnableCaching = *q.EnableCaching
	}
	if q.Temperature != nil {
		cfg.Params.Temperature = q.Temperature
	}
	if q.MaxTokens != nil {
		cfg.Params.MaxTokens = q.MaxTokens
	}
	if q.Reasoning != nil {
		cfg.Params.Reasoning = *q.Reasoning
	}
	if q.WebSearch != nil {
		cfg.Features.WebSearchOverride = q.WebSearch
	}
	return cfg
}

// Backend is the part of the sidecar that can be swapped on config reload.
type Backend struct {
	Runner   *query.Runner
	Registry *providers.Registry
}

type QueryHandler struct {
	config  *config.Manager
	backend atomic.Pointer[Backend]
	logger  *slog.Logger
}

func NewQueryHandler(config *config.Manager, backend *Backend, logger *slog.Logger) *QueryHandler {
	h := &QueryHandler{config: config, logger: logger}
	h.backend.Store(backend)
	return h
}

// SetBackend replaces the runner and registry used by later requests.
func (h *QueryHandler) SetBackend(b *Backend) {
	h.backend.Store(b)
}

type askResponse struct {
	*query.Answer
	ErrorKind      llm.ErrorKind `json:"error_kind,omitempty"`
	UpstreamStatus int           `json:"upstream_status,omitempty"`
}

type inspectResponse struct {
	Envelope    llm.Envelope `json:"envelope"`
	Adjustments []string     `json:"adjustments,omitempty"`
	Streaming   bool         `json:"streaming"`
}

// Inspect returns the redacted request without calling the provider.
func (h *QueryHandler) Inspect(w http.ResponseWriter, r *http.Request) {
	req, cfg, ok := h.decode(w, r)
	if !ok {
		return
	}

	env, err := h.backend.Load().Runner.Inspect(req.Messages, cfg)
	if err != nil {
		h.writeLLMError(w, err)
		return
	}

	resp := inspectResponse{Envelope: env, Streaming: env.Streaming()}
	for _, a := range env.Adjustments {
		resp.Adjustments = append(resp.Adjustments, a.String())
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	req, cfg, ok := h.decode(w, r)
	if !ok {
		return
	}

	answer, err := h.backend.Load().Runner.Ask(r.Context(), req.Messages, cfg)
	if answer == nil {
		h.writeLLMError(w, err)
		return
	}

	resp := askResponse{Answer: answer}
	status := http.StatusOK
	if err != nil {
		var llmErr *llm.Error
		if errors.As(err, &llmErr) {
			resp.ErrorKind = llmErr.Kind
			resp.UpstreamStatus = llmErr.StatusCode
		}
		status = statusFor(err)
	}
	h.writeJSON(w, status, resp)
}

// Stream relays the provider's bytes as they arrive. Failures after the
// response has started are reported in-band with the X-NON-200-STATUS
// marker, so the HTTP status is always 200 once streaming begins.
func (h *QueryHandler) Stream(w http.ResponseWriter, r *http.Request) {
	req, cfg, ok := h.decode(w, r)
	if !ok {
		return
	}

	session, err := h.backend.Load().Runner.Stream(r.Context(), req.Messages, cfg)
	if err != nil {
		h.writeLLMError(w, err)
		return
	}
	defer session.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-LLMB-Provider", string(session.Envelope.Provider))
	w.Header().Set("X-LLMB-Model", session.Envelope.Model)
	w.Header().Set("X-LLMB-Adjustments", strconv.Itoa(len(session.Envelope.Adjustments)))
	w.WriteHeader(http.StatusOK)
	h.flushResponse(w)

	raw := session.Raw()
	buf := make([]byte, 32*1024)
	for {
		n, err := raw.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				h.logger.Debug("Stream client went away", "error", werr)
				return
			}
			h.flushResponse(w)
		}
		if err != nil {
			if err != io.EOF {
				h.logger.Debug("Stream ended", "error", err)
			}
			break
		}
	}

	h.logger.Info("Completed streaming response",
		"provider", session.Envelope.Provider,
		"model", session.Envelope.Model,
		"input_estimate", session.InputEstimate,
		"error", session.Err())
}

type providerInfo struct {
	ID           llm.ProviderID `json:"id"`
	Name         string         `json:"name"`
	BaseURL      string         `json:"base_url"`
	DefaultModel string         `json:"default_model,omitempty"`
	Models       []string       `json:"models,omitempty"`
	Configured   bool           `json:"configured"`
	Families     []modelFamily  `json:"families,omitempty"`
}

type modelFamily struct {
	Prefix       string                    `json:"prefix"`
	Reasoning    string                    `json:"reasoning"`
	Capabilities []capabilities.Capability `json:"capabilities,omitempty"`
}

// Providers lists every provider with its effective defaults.
func (h *QueryHandler) Providers(w http.ResponseWriter, r *http.Request) {
	cfg := h.config.Get()
	b := h.backend.Load()

	var out []providerInfo
	for _, id := range b.Registry.List() {
		d, _ := b.Registry.Catalog().Lookup(id)
		settings, _ := cfg.Provider(id)

		info := providerInfo{
			ID:           id,
			Name:         d.Name,
			BaseURL:      d.BaseURL,
			DefaultModel: d.DefaultModel(),
			Models:       settings.AllowedModels(d.Models),
			Configured:   cfg.RequestConfig(id).APIKey != "",
		}
		for _, spec := range b.Registry.Adjuster().Table().Entries(id) {
			if spec.Prefix == "" {
				continue
			}
			info.Families = append(info.Families, modelFamily{
				Prefix:       spec.Prefix,
				Reasoning:    spec.Reasoning.String(),
				Capabilities: spec.Capabilities,
			})
		}
		out = append(out, info)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}

func (h *QueryHandler) decode(w http.ResponseWriter, r *http.Request) (QueryRequest, llm.Config, bool) {
	var req QueryRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("read body: %v", err))
		return req, llm.Config{}, false
	}
	if err := json.Unmarshal(body, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid JSON: %v", err))
		return req, llm.Config{}, false
	}

	cfg := h.config.Get()
	id, err := cfg.ResolveProvider(req.Provider)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return req, llm.Config{}, false
	}

	callCfg := req.Apply(cfg.RequestConfig(id))
	if err := cfg.CheckModel(id, callCfg.Model); err != nil {
		h.writeLLMError(w, err)
		return req, llm.Config{}, false
	}

	return req, callCfg, true
}

func (h *QueryHandler) writeLLMError(w http.ResponseWriter, err error) {
	errType := "internal"
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		errType = string(llmErr.Kind)
	}
	middleware.WriteError(w, statusFor(err), errType, err.Error())
}

// statusFor maps an error kind onto the sidecar's HTTP status.
func statusFor(err error) int {
	var llmErr *llm.Error
	if !errors.As(err, &llmErr) {
		return http.StatusInternalServerError
	}

	switch llmErr.Kind {
	case llm.KindConfig:
		return http.StatusBadRequest
	case llm.KindHTTPStatus:
		if llmErr.StatusCode == http.StatusTooManyRequests {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

func (h *QueryHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to write response", "error", err)
	}
}

func (h *QueryHandler) flushResponse(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
