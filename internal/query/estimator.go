package query

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

const encodingName = "cl100k_base"

// TokenEstimator approximates prompt size before a request is sent. The
// encoding is loaded on first use; when it cannot be loaded the estimate
// falls back to one token per four characters.
type TokenEstimator struct {
	logger *slog.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewTokenEstimator(logger *slog.Logger) *TokenEstimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenEstimator{logger: logger}
}

func (e *TokenEstimator) Count(text string) int {
	if text == "" {
		return 0
	}

	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err != nil {
			e.logger.Warn("Failed to get tiktoken encoding, using character estimate", "error", err)
			return
		}
		e.enc = enc
	})

	if e.enc == nil {
		return approxTokens(text)
	}
	return len(e.enc.Encode(text, nil, nil))
}

// Messages estimates the input tokens of a whole request.
func (e *TokenEstimator) Messages(system string, messages []llm.Message) int {
	total := e.Count(system)
	for _, m := range messages {
		total += e.Count(m.Text())
	}
	return total
}

func approxTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}
