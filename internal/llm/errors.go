package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// SnippetLimit bounds how much of a raw payload is echoed back in errors.
const SnippetLimit = 500

type ErrorKind string

const (
	KindConfig     ErrorKind = "config"
	KindTransport  ErrorKind = "transport"
	KindHTTPStatus ErrorKind = "http_status"
	KindDecode     ErrorKind = "decode"
	KindShape      ErrorKind = "shape"
)

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrConfig     = &Error{Kind: KindConfig}
	ErrTransport  = &Error{Kind: KindTransport}
	ErrHTTPStatus = &Error{Kind: KindHTTPStatus}
	ErrDecode     = &Error{Kind: KindDecode}
	ErrShape      = &Error{Kind: KindShape}
)

// Error is the single error shape produced by builders, the transport and
// parsers. Errors decoded from an in-band stream marker carry FromMarker.
type Error struct {
	Kind       ErrorKind
	Provider   ProviderID
	StatusCode int
	Message    string
	Snippet    string
	FromMarker bool
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(string(e.Provider))
		b.WriteString(": ")
	}

	switch e.Kind {
	case KindHTTPStatus:
		if e.StatusCode > 0 {
			fmt.Fprintf(&b, "HTTP %d", e.StatusCode)
		} else {
			b.WriteString("provider error")
		}
		if e.Message != "" {
			b.WriteString(": ")
			b.WriteString(e.Message)
		}
	default:
		b.WriteString(string(e.Kind))
		b.WriteString(" error")
		if e.Message != "" {
			b.WriteString(": ")
			b.WriteString(e.Message)
		}
	}

	if e.Snippet != "" {
		b.WriteString(" (raw: ")
		b.WriteString(e.Snippet)
		b.WriteString(")")
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Provider == "" && t.StatusCode == 0 && t.Message == ""
}

// Retryable reports whether a caller-side retry could plausibly succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport:
		return true
	case KindHTTPStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	default:
		return false
	}
}

func ConfigError(provider ProviderID, format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

func TransportError(provider ProviderID, err error) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: KindTransport, Provider: provider, Message: msg, Err: err}
}

// HTTPStatusError builds an error for a non-2xx response, preferring the
// message from the provider's own error envelope.
func HTTPStatusError(provider ProviderID, status int, body []byte) *Error {
	msg := ""
	if len(body) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(body, &raw); err == nil {
			msg, _ = ErrorMessage(raw)
			if msg == "" {
				msg, _ = raw["message"].(string)
			}
		}
		if msg == "" {
			msg = Snippet(body)
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{Kind: KindHTTPStatus, Provider: provider, StatusCode: status, Message: msg}
}

// BodyError builds an error for an error envelope that arrived inside a
// response body (a 200 reply or a stream event). The status comes from a
// numeric error.code when the provider sends one.
func BodyError(provider ProviderID, raw map[string]any) *Error {
	msg, ok := ErrorMessage(raw)
	if !ok {
		msg, _ = raw["message"].(string)
	}
	status := 0
	if e, ok := raw["error"].(map[string]any); ok {
		if code, ok := e["code"].(float64); ok && code >= 400 && code < 600 {
			status = int(code)
		}
	}
	return &Error{Kind: KindHTTPStatus, Provider: provider, StatusCode: status, Message: msg}
}

func DecodeError(provider ProviderID, raw []byte, err error) *Error {
	msg := "empty response body"
	if len(strings.TrimSpace(string(raw))) > 0 {
		msg = "response is not valid JSON"
	}
	return &Error{Kind: KindDecode, Provider: provider, Message: msg, Snippet: Snippet(raw), Err: err}
}

func ShapeError(provider ProviderID, raw any) *Error {
	snippet := ""
	if data, err := json.Marshal(raw); err == nil {
		snippet = Snippet(data)
	} else {
		snippet = Snippet([]byte(fmt.Sprint(raw)))
	}
	return &Error{Kind: KindShape, Provider: provider, Message: "unexpected response format", Snippet: snippet}
}

// ErrorMessage extracts a human message from a provider error envelope,
// trying error.message, error.type, then a top-level message or error string.
func ErrorMessage(raw map[string]any) (string, bool) {
	switch e := raw["error"].(type) {
	case map[string]any:
		if msg, ok := e["message"].(string); ok && msg != "" {
			return msg, true
		}
		if typ, ok := e["type"].(string); ok && typ != "" {
			return typ, true
		}
		if status, ok := e["status"].(string); ok && status != "" {
			return status, true
		}
		return "unknown error", true
	case string:
		if e != "" {
			return e, true
		}
	}

	if typ, _ := raw["type"].(string); typ == "error" {
		if msg, ok := raw["message"].(string); ok && msg != "" {
			return msg, true
		}
	}

	return "", false
}

// Snippet returns at most SnippetLimit bytes of data without splitting a
// UTF-8 sequence.
func Snippet(data []byte) string {
	if len(data) <= SnippetLimit {
		return string(data)
	}
	cut := SnippetLimit
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	return string(data[:cut]) + "..."
}
