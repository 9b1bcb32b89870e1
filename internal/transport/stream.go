package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

type State int32

const (
	StateIdle State = iota
	StateWarmup
	StateSpawned
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWarmup:
		return "warmup"
	case StateSpawned:
		return "spawned"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Stream is a raw provider byte stream fed by a worker goroutine. Reads
// return the provider's bytes as they arrive. When the request fails, the
// failure is recorded on the stream and also appended to the bytes as a
// marker (see FormatMarker) before the stream ends.
type Stream struct {
	provider llm.ProviderID
	logger   *slog.Logger

	reader *io.PipeReader
	writer *io.PipeWriter
	cancel context.CancelFunc

	state     atomic.Int32
	status    atomic.Int32
	cancelled atomic.Bool
	finished  atomic.Bool
	once      sync.Once
	done      chan struct{}

	mu  sync.Mutex
	err *llm.Error
}

// Stream starts env on a worker goroutine and returns immediately after a
// short connection warm-up. The worker always ends the stream, whether the
// request succeeds, fails, panics or is cancelled.
func (c *Client) Stream(ctx context.Context, env llm.Envelope) *Stream {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithTimeout(ctx, c.StreamTimeout)

	s := &Stream{
		provider: env.Provider,
		logger:   c.logger,
		reader:   pr,
		writer:   pw,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	s.setState(StateWarmup)
	c.warmup(ctx, env.URL)

	s.setState(StateSpawned)
	go s.run(ctx, c, env)

	return s
}

func (s *Stream) run(ctx context.Context, c *Client, env llm.Envelope) {
	defer close(s.done)
	defer s.setState(StateClosed)
	defer s.cancel()
	defer s.writer.Close()
	defer func() {
		if r := recover(); r != nil {
			s.fail(llm.TransportError(env.Provider, fmt.Errorf("stream worker panic: %v", r)))
		}
	}()

	req, err := c.newRequest(ctx, env)
	if err != nil {
		s.fail(llm.ConfigError(env.Provider, "%v", err))
		return
	}

	resp, err := c.http.Do(req)
	if err != nil {
		s.fail(llm.TransportError(env.Provider, err))
		return
	}
	defer resp.Body.Close()
	s.status.Store(int32(resp.StatusCode))

	reader, err := decompressReader(resp)
	if err != nil {
		s.fail(llm.TransportError(env.Provider, fmt.Errorf("decompression error: %w", err)))
		return
	}
	defer reader.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(reader, maxErrorBody))
		s.fail(llm.HTTPStatusError(env.Provider, resp.StatusCode, body))
		return
	}

	s.setState(StateStreaming)
	if _, err := io.Copy(s.writer, reader); err != nil {
		if s.cancelled.Load() || s.finished.Load() || errors.Is(err, io.ErrClosedPipe) {
			return
		}
		s.fail(llm.TransportError(env.Provider, err))
	}
}

// fail records err and writes its marker, unless the consumer already
// cancelled the stream. Failures after Finish are dropped.
func (s *Stream) fail(err *llm.Error) {
	if s.finished.Load() {
		return
	}

	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()

	if s.cancelled.Load() {
		return
	}

	s.logger.Warn("stream failed", "provider", s.provider, "error", err)
	if _, werr := io.WriteString(s.writer, FormatMarker(err)); werr != nil {
		s.logger.Debug("marker not delivered", "provider", s.provider, "error", werr)
	}
}

func (s *Stream) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

// Cancel aborts the request and closes the read side. Calling it more than
// once, or after the stream finished, is a no-op.
func (s *Stream) Cancel() {
	s.once.Do(func() {
		s.cancelled.Store(true)
		s.cancel()
		s.reader.Close()
	})
}

// Finish releases a stream whose consumer has read everything it needs,
// such as a terminal event. The request is aborted and any later bytes or
// failure are discarded, but the stream is not reported as cancelled.
func (s *Stream) Finish() {
	s.once.Do(func() {
		s.finished.Store(true)
		s.cancel()
		s.reader.Close()
	})
}

// Close is Cancel; it lets a Stream be used as an io.ReadCloser.
func (s *Stream) Close() error {
	s.Cancel()
	return nil
}

// Done is closed once the worker has exited.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the recorded failure, or nil.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		return nil
	}
	return s.err
}

func (s *Stream) Cancelled() bool {
	return s.cancelled.Load()
}

// StatusCode is the HTTP status of the provider response, or 0 before
// headers arrive.
func (s *Stream) StatusCode() int {
	return int(s.status.Load())
}

func (s *Stream) State() State {
	return State(s.state.Load())
}

func (s *Stream) Provider() llm.ProviderID {
	return s.provider
}

func (s *Stream) setState(state State) {
	s.state.Store(int32(state))
}
