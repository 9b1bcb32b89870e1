package query

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
	"github.com/mihaisavezi/llm-bridge/internal/providers"
	"github.com/mihaisavezi/llm-bridge/internal/transport"
)

// Session is one streaming request. Consumers either copy Raw to a byte
// sink or call Collect once to decode it; the two are exclusive.
type Session struct {
	Envelope      llm.Envelope
	InputEstimate int

	runner  *Runner
	adapter providers.Adapter
	stream  *transport.Stream
	cfg     llm.Config
	start   time.Time
}

// Stream starts a streaming request. Only building errors are returned
// here; provider and network failures surface through the session.
func (r *Runner) Stream(ctx context.Context, messages []llm.Message, cfg llm.Config) (*Session, error) {
	cfg.Features.Streaming = true

	adapter, env, err := r.build(messages, cfg)
	if err != nil {
		return nil, err
	}

	s := &Session{
		Envelope:      env.Redacted(),
		InputEstimate: r.estimate(env.Provider, cfg, messages),
		runner:        r,
		adapter:       adapter,
		cfg:           cfg,
		start:         time.Now(),
	}
	s.stream = r.client.Stream(ctx, env)
	return s, nil
}

// Raw returns the provider bytes, including a trailing marker on failure.
func (s *Session) Raw() io.Reader {
	return s.stream
}

func (s *Session) Cancel() {
	s.stream.Cancel()
}

func (s *Session) Done() <-chan struct{} {
	return s.stream.Done()
}

func (s *Session) Err() error {
	return s.stream.Err()
}

// Collect decodes the stream, calling fn (which may be nil) for every delta,
// and returns the assembled result. Failures carry the same error kinds as
// Ask, with FromMarker set when the error was read from the stream.
func (s *Session) Collect(fn func(llm.Delta)) (llm.Result, error) {
	mr := transport.NewMarkerReader(s.stream, s.Envelope.Provider)
	dec := newEventDecoder(s.adapter, s.runner.logger, fn)
	readErr := dec.run(mr)

	if failure := s.failure(mr, dec.eventErr, readErr); failure != nil {
		s.stream.Cancel()
		result := llm.Failure(s.adapter.EnhanceError(failure, s.cfg))
		s.runner.record(s.Envelope, "stream", result, time.Since(s.start))
		return result, result.Err
	}

	result := dec.finish()
	s.runner.record(s.Envelope, "stream", result, time.Since(s.start))
	return result, nil
}

// failure picks the error to report: a marker wins over an error event,
// which wins over cancellation and then a read error.
func (s *Session) failure(mr *transport.MarkerReader, eventErr *llm.Error, readErr error) *llm.Error {
	provider := s.Envelope.Provider

	switch {
	case mr.Err() != nil:
		return mr.Err()
	case eventErr != nil:
		return eventErr
	case s.stream.Cancelled():
		return llm.TransportError(provider, context.Canceled)
	case readErr != nil:
		return llm.TransportError(provider, fmt.Errorf("read stream: %w", readErr))
	}

	// The events ended cleanly. Any worker failure before this point would
	// have arrived as a marker, and a provider may keep the connection open
	// past its terminal event, so the worker is released, not awaited.
	s.stream.Finish()
	return nil
}

// DecodeStream decodes a stream that was relayed from elsewhere, such as the
// body of the sidecar's stream route. A trailing marker becomes the error.
func DecodeStream(r io.Reader, adapter providers.Adapter, logger *slog.Logger, fn func(llm.Delta)) (llm.Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mr := transport.NewMarkerReader(r, adapter.Key())
	dec := newEventDecoder(adapter, logger, fn)
	readErr := dec.run(mr)

	var failure *llm.Error
	switch {
	case mr.Err() != nil:
		failure = mr.Err()
	case dec.eventErr != nil:
		failure = dec.eventErr
	case readErr != nil:
		failure = llm.TransportError(adapter.Key(), fmt.Errorf("read stream: %w", readErr))
	}
	if failure != nil {
		result := llm.Failure(failure)
		return result, result.Err
	}
	return dec.finish(), nil
}

// eventDecoder folds provider stream events into one result.
type eventDecoder struct {
	adapter providers.Adapter
	logger  *slog.Logger
	fn      func(llm.Delta)

	content   strings.Builder
	reasoning strings.Builder
	result    llm.Result
	truncated bool
	eventErr  *llm.Error
}

func newEventDecoder(adapter providers.Adapter, logger *slog.Logger, fn func(llm.Delta)) *eventDecoder {
	return &eventDecoder{adapter: adapter, logger: logger, fn: fn, result: llm.Result{Success: true}}
}

func (d *eventDecoder) run(r io.Reader) error {
	return transport.ReadEvents(r, d.handle)
}

func (d *eventDecoder) handle(payload []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		d.logger.Debug("Skipping malformed stream event", "provider", d.adapter.Key(), "error", err)
		return nil
	}

	delta := d.decode(raw)
	if delta.Err != nil {
		d.eventErr = delta.Err
		return delta.Err
	}

	d.content.WriteString(delta.Content)
	d.reasoning.WriteString(delta.Reasoning)
	if delta.FinishReason != "" {
		d.result.FinishReason = delta.FinishReason
	}
	d.truncated = d.truncated || delta.Truncated
	d.result.WebSearchUsed = d.result.WebSearchUsed || delta.WebSearchUsed
	if delta.Usage != nil {
		mergeUsage(&d.result.Usage, *delta.Usage)
	}

	if d.fn != nil {
		d.fn(delta)
	}
	return nil
}

func (d *eventDecoder) decode(raw map[string]any) (delta llm.Delta) {
	defer func() {
		if r := recover(); r != nil {
			delta = llm.Delta{Err: llm.ShapeError(d.adapter.Key(), raw)}
		}
	}()
	return d.adapter.DecodeStreamEvent(raw)
}

func (d *eventDecoder) finish() llm.Result {
	result := d.result
	result.Content = d.content.String()
	result.Reasoning = d.reasoning.String()
	if d.adapter.SupportsReasoningExtraction() && result.Reasoning == "" {
		result.Content, result.Reasoning = providers.SplitThinking(result.Content)
	}
	if d.truncated {
		result.MarkTruncated()
	}
	return result
}

// mergeUsage keeps the latest non-zero count for each direction; providers
// report usage cumulatively and some split it across events.
func mergeUsage(dst *llm.Usage, src llm.Usage) {
	if src.InputTokens > 0 {
		dst.InputTokens = src.InputTokens
	}
	if src.OutputTokens > 0 {
		dst.OutputTokens = src.OutputTokens
	}
}
