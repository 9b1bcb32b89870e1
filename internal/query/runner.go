package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
	"github.com/mihaisavezi/llm-bridge/internal/providers"
	"github.com/mihaisavezi/llm-bridge/internal/transport"
)

// Answer is the outcome of Ask. The envelope is always the redacted one.
type Answer struct {
	llm.Result
	Envelope      llm.Envelope `json:"envelope"`
	Cached        bool         `json:"cached,omitempty"`
	InputEstimate int          `json:"input_estimate,omitempty"`
}

// Outcome is delivered by AskAsync.
type Outcome struct {
	Answer *Answer
	Err    error
}

// Runner builds, sends and decodes provider requests. It is safe for
// concurrent use; nothing request-specific is stored on it.
type Runner struct {
	registry  *providers.Registry
	client    *transport.Client
	logger    *slog.Logger
	metrics   *Metrics
	cache     Cache
	retry     RetryPolicy
	estimator *TokenEstimator
}

type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithCache(c Cache) Option {
	return func(r *Runner) { r.cache = c }
}

func WithRetry(p RetryPolicy) Option {
	return func(r *Runner) { r.retry = p }
}

func WithEstimator(e *TokenEstimator) Option {
	return func(r *Runner) { r.estimator = e }
}

func NewRunner(registry *providers.Registry, client *transport.Client, opts ...Option) *Runner {
	r := &Runner{registry: registry, client: client}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.client == nil {
		r.client = transport.NewClient(r.logger)
	}
	if r.estimator == nil {
		r.estimator = NewTokenEstimator(r.logger)
	}
	return r
}

// Inspect builds the request without sending it.
func (r *Runner) Inspect(messages []llm.Message, cfg llm.Config) (llm.Envelope, error) {
	_, env, err := r.build(messages, cfg)
	if err != nil {
		return llm.Envelope{}, err
	}
	return env.Redacted(), nil
}

// Ask sends a non-streaming request and decodes the reply. Once the request
// has been built, a failure is reported both in the returned Answer and as
// the error.
func (r *Runner) Ask(ctx context.Context, messages []llm.Message, cfg llm.Config) (*Answer, error) {
	cfg.Features.Streaming = false

	adapter, env, err := r.build(messages, cfg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	answer := &Answer{
		Envelope:      env.Redacted(),
		InputEstimate: r.estimate(env.Provider, cfg, messages),
	}

	var key string
	if r.cache != nil {
		if key, err = CacheKey(env); err == nil {
			if cached, ok := r.cache.Get(ctx, key); ok {
				r.metrics.RecordCache(true)
				r.logger.Debug("Serving cached answer", "provider", env.Provider, "model", env.Model)
				answer.Result = cached
				answer.Cached = true
				return answer, nil
			}
			r.metrics.RecordCache(false)
		}
	}

	var result llm.Result
	resp, err := r.do(ctx, env)
	if err != nil {
		result = llm.Failure(asError(env.Provider, err))
	} else {
		result = providers.ParseResponse(adapter, resp.Body)
	}

	if !result.Success {
		result = llm.Failure(adapter.EnhanceError(resultError(env.Provider, result), cfg))
	}

	if key != "" && result.Cacheable() {
		r.cache.Set(ctx, key, result)
	}

	r.record(env, "sync", result, time.Since(start))
	answer.Result = result

	if !result.Success {
		return answer, result.Err
	}
	return answer, nil
}

// AskAsync runs Ask on a worker goroutine. The channel receives one outcome
// and is then closed.
func (r *Runner) AskAsync(ctx context.Context, messages []llm.Message, cfg llm.Config) <-chan Outcome {
	ch := make(chan Outcome, 1)

	go func() {
		defer close(ch)
		defer func() {
			if rec := recover(); rec != nil {
				ch <- Outcome{Err: llm.TransportError(cfg.Provider, fmt.Errorf("query worker panic: %v", rec))}
			}
		}()

		answer, err := r.Ask(ctx, messages, cfg)
		ch <- Outcome{Answer: answer, Err: err}
	}()

	return ch
}

func (r *Runner) build(messages []llm.Message, cfg llm.Config) (providers.Adapter, llm.Envelope, error) {
	if !llm.HasConversation(messages) {
		return nil, llm.Envelope{}, llm.ConfigError(cfg.Provider, "at least one non-empty user or assistant message is required")
	}

	adapter, ok := r.registry.Get(cfg.Provider)
	if !ok {
		return nil, llm.Envelope{}, llm.ConfigError(cfg.Provider, "unknown provider %q", cfg.Provider)
	}

	env, err := providers.Build(adapter, messages, cfg)
	if err != nil {
		return nil, llm.Envelope{}, err
	}

	r.metrics.RecordAdjustments(env)
	for _, a := range env.Adjustments {
		r.logger.Debug("Request adjusted", "provider", env.Provider, "model", env.Model, "adjustment", a.String())
	}

	return adapter, env, nil
}

func (r *Runner) estimate(provider llm.ProviderID, cfg llm.Config, messages []llm.Message) int {
	tokens := r.estimator.Messages(cfg.System.Text, messages)
	r.metrics.ObserveInputEstimate(provider, tokens)
	r.logger.Debug("Estimated input tokens", "provider", provider, "tokens", tokens)
	return tokens
}

func (r *Runner) record(env llm.Envelope, mode string, result llm.Result, elapsed time.Duration) {
	status := "success"
	if !result.Success {
		status = "error"
		if result.Err != nil {
			status = string(result.Err.Kind)
		}
	}

	r.metrics.RecordRequest(RequestLabels{
		Provider:   env.Provider,
		Model:      env.Model,
		Mode:       mode,
		Status:     status,
		DurationMs: float64(elapsed.Milliseconds()),
		Usage:      result.Usage,
		Truncated:  result.Truncated,
	})

	if result.Success {
		r.logger.Info("Request completed",
			"provider", env.Provider,
			"model", env.Model,
			"mode", mode,
			"duration", elapsed,
			"input_tokens", result.Usage.InputTokens,
			"output_tokens", result.Usage.OutputTokens,
			"truncated", result.Truncated)
		return
	}
	r.logger.Error("Request failed", "provider", env.Provider, "model", env.Model, "mode", mode, "error", result.Error)
}

func asError(provider llm.ProviderID, err error) *llm.Error {
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		return llmErr
	}
	return llm.TransportError(provider, err)
}

func resultError(provider llm.ProviderID, result llm.Result) *llm.Error {
	if result.Err != nil {
		return result.Err
	}
	return &llm.Error{Kind: llm.KindShape, Provider: provider, Message: result.Error}
}
