package llm

import "strings"

type Usage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Result is the normalized outcome of one completion.
type Result struct {
	Success       bool   `json:"success"`
	Content       string `json:"content,omitempty"`
	Reasoning     string `json:"reasoning,omitempty"`
	WebSearchUsed bool   `json:"web_search_used,omitempty"`
	Truncated     bool   `json:"truncated,omitempty"`
	FinishReason  string `json:"finish_reason,omitempty"`
	Usage         Usage  `json:"usage"`
	Error         string `json:"error,omitempty"`

	Err *Error `json:"-"`
}

// Failure wraps err into an unsuccessful result.
func Failure(err *Error) Result {
	return Result{Success: false, Error: err.Error(), Err: err}
}

// MarkTruncated appends TruncationNotice once and flags the result.
func (r *Result) MarkTruncated() {
	r.Truncated = true
	if !strings.HasSuffix(r.Content, TruncationNotice) {
		r.Content += TruncationNotice
	}
}

// Cacheable reports whether the result is a complete, successful answer.
func (r Result) Cacheable() bool {
	return r.Success && !r.Truncated && !strings.HasSuffix(r.Content, TruncationNotice)
}

// Delta is the decoded content of a single stream event.
type Delta struct {
	Content       string
	Reasoning     string
	FinishReason  string
	Truncated     bool
	WebSearchUsed bool
	Usage         *Usage
	Err           *Error
}
