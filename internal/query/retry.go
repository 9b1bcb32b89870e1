package query

import (
	"context"
	"errors"
	"time"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
	"github.com/mihaisavezi/llm-bridge/internal/transport"
)

// RetryPolicy controls how Ask retries transport failures, 429s and 5xx
// responses. The zero value never retries.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	initial := p.InitialBackoff
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	limit := p.MaxBackoff
	if limit <= 0 {
		limit = 30 * time.Second
	}

	d := initial << attempt
	if d <= 0 || d > limit {
		return limit
	}
	return d
}

func retryable(err error) bool {
	var llmErr *llm.Error
	return errors.As(err, &llmErr) && llmErr.Retryable()
}

func (r *Runner) do(ctx context.Context, env llm.Envelope) (*transport.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := r.client.Do(ctx, env)
		if err == nil || attempt >= r.retry.MaxRetries || !retryable(err) {
			return resp, err
		}

		wait := r.retry.backoff(attempt)
		r.logger.Warn("Retrying provider request",
			"provider", env.Provider,
			"attempt", attempt+1,
			"wait", wait,
			"error", err)
		r.metrics.RecordRetry(env.Provider)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return resp, err
		case <-timer.C:
		}
	}
}
