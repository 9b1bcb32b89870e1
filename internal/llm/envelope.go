package llm

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	// MarkerPrefix tags a transport failure written into a streamed body.
	MarkerPrefix = "X-NON-200-STATUS:"
	// MarkerSeparator always precedes MarkerPrefix on the wire.
	MarkerSeparator = "\r\n\r\n"
	// TruncationNotice is appended to content cut short by the output token
	// limit. Consumers compare against it byte for byte.
	TruncationNotice = "\n\n---\n*[Response truncated: max tokens limit reached]*"
)

var secretHeaders = map[string]bool{
	"authorization":  true,
	"x-api-key":      true,
	"x-goog-api-key": true,
	"api-key":        true,
}

// Adjustment records one value the constraint layer changed or dropped.
type Adjustment struct {
	Field  string `json:"field"`
	From   any    `json:"from,omitempty"`
	To     any    `json:"to,omitempty"`
	Reason string `json:"reason"`
}

func (a Adjustment) String() string {
	switch {
	case a.To == nil && a.From != nil:
		return fmt.Sprintf("%s: dropped %v (%s)", a.Field, a.From, a.Reason)
	case a.To == nil:
		return fmt.Sprintf("%s: %s", a.Field, a.Reason)
	default:
		return fmt.Sprintf("%s: %v -> %v (%s)", a.Field, a.From, a.To, a.Reason)
	}
}

// Skipped reports whether the adjustment records a dropped feature.
func (a Adjustment) Skipped() bool {
	return strings.HasSuffix(a.Field, "_skipped")
}

// Envelope is a fully built, wire-ready request.
type Envelope struct {
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers"`
	Body        map[string]any    `json:"body"`
	Model       string            `json:"model"`
	Provider    ProviderID        `json:"provider"`
	Adjustments []Adjustment      `json:"adjustments,omitempty"`
}

// Credentials returns the envelope's secret header values keyed by
// lower-cased header name.
func (e Envelope) Credentials() map[string]string {
	out := make(map[string]string)
	for k, v := range e.Headers {
		if name := strings.ToLower(k); secretHeaders[name] {
			out[name] = v
		}
	}
	return out
}

func (e Envelope) EncodeBody() ([]byte, error) {
	data, err := json.Marshal(e.Body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return data, nil
}

// Streaming reports whether the body asks for a streamed response.
func (e Envelope) Streaming() bool {
	if v, ok := e.Body["stream"].(bool); ok && v {
		return true
	}
	return strings.Contains(e.URL, ":streamGenerateContent")
}

// Redacted returns a copy that is safe to log or display. The body is shared
// with the receiver; builders never put credentials there.
func (e Envelope) Redacted() Envelope {
	out := e
	out.Headers = make(map[string]string, len(e.Headers))
	for k, v := range e.Headers {
		if secretHeaders[strings.ToLower(k)] {
			v = maskHeader(v)
		}
		out.Headers[k] = v
	}
	out.URL = redactURL(e.URL)
	out.Adjustments = append([]Adjustment(nil), e.Adjustments...)
	return out
}

func maskHeader(v string) string {
	if scheme, token, ok := strings.Cut(v, " "); ok && strings.EqualFold(scheme, "bearer") {
		return scheme + " " + MaskSecret(token)
	}
	return MaskSecret(v)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	q := u.Query()
	if q.Get("key") == "" {
		return raw
	}
	q.Set("key", MaskSecret(q.Get("key")))
	u.RawQuery = q.Encode()
	return u.String()
}

// MaskSecret keeps the first and last four characters of long secrets.
func MaskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
