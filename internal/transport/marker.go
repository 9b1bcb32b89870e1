package transport

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

var sentinel = []byte(llm.MarkerSeparator + llm.MarkerPrefix)

// FormatMarker renders err as the trailer written into a failed stream:
// "\r\n\r\nX-NON-200-STATUS:Error <code>: <message>" for HTTP failures and
// "\r\n\r\nX-NON-200-STATUS:Transport error: <message>" otherwise.
func FormatMarker(err *llm.Error) string {
	msg := strings.Join(strings.Fields(err.Message), " ")

	var text string
	if err.Kind == llm.KindHTTPStatus && err.StatusCode > 0 {
		text = "Error " + strconv.Itoa(err.StatusCode) + ": " + msg
	} else {
		text = "Transport error: " + msg
	}
	return string(sentinel) + text
}

// ParseMarker converts the text following MarkerPrefix back into an error.
func ParseMarker(provider llm.ProviderID, text string) *llm.Error {
	text = strings.TrimSpace(text)

	if rest, ok := strings.CutPrefix(text, "Error "); ok {
		codeText, msg, _ := strings.Cut(rest, ":")
		if code, err := strconv.Atoi(strings.TrimSpace(codeText)); err == nil {
			return &llm.Error{
				Kind:       llm.KindHTTPStatus,
				Provider:   provider,
				StatusCode: code,
				Message:    strings.TrimSpace(msg),
				FromMarker: true,
			}
		}
	}

	return &llm.Error{
		Kind:       llm.KindTransport,
		Provider:   provider,
		Message:    strings.TrimSpace(strings.TrimPrefix(text, "Transport error:")),
		FromMarker: true,
	}
}

// MarkerReader passes stream content through and strips a trailing marker.
// Bytes that could be the start of a marker are held back until enough input
// arrives to decide. Content that merely contains MarkerPrefix without the
// separator in front of it is passed through unchanged.
type MarkerReader struct {
	src      io.Reader
	provider llm.ProviderID

	buf      []byte
	out      []byte
	pending  []byte
	trailer  []byte
	inMarker bool

	done   bool
	srcErr error
	err    *llm.Error
}

func NewMarkerReader(src io.Reader, provider llm.ProviderID) *MarkerReader {
	return &MarkerReader{src: src, provider: provider, buf: make([]byte, 32*1024)}
}

func (m *MarkerReader) Read(p []byte) (int, error) {
	for len(m.out) == 0 {
		if m.done {
			if m.srcErr != nil {
				return 0, m.srcErr
			}
			return 0, io.EOF
		}

		n, err := m.src.Read(m.buf)
		if n > 0 {
			m.feed(m.buf[:n])
		}
		if err != nil {
			m.finish()
			if err != io.EOF {
				m.srcErr = err
			}
		}
	}

	n := copy(p, m.out)
	m.out = m.out[n:]
	return n, nil
}

// Err returns the error carried by the marker, or nil when the stream ended
// without one. It is only meaningful after Read has returned an error.
func (m *MarkerReader) Err() *llm.Error {
	return m.err
}

func (m *MarkerReader) feed(data []byte) {
	if m.inMarker {
		m.trailer = append(m.trailer, data...)
		return
	}

	joined := append(m.pending, data...)
	if i := bytes.Index(joined, sentinel); i >= 0 {
		m.out = append(m.out, joined[:i]...)
		m.trailer = append(m.trailer, joined[i+len(sentinel):]...)
		m.pending = nil
		m.inMarker = true
		return
	}

	keep := partialSuffix(joined, sentinel)
	m.out = append(m.out, joined[:len(joined)-keep]...)
	m.pending = append([]byte(nil), joined[len(joined)-keep:]...)
}

func (m *MarkerReader) finish() {
	m.done = true
	if m.inMarker {
		m.err = ParseMarker(m.provider, string(m.trailer))
		return
	}
	m.out = append(m.out, m.pending...)
	m.pending = nil
}

// partialSuffix returns the length of the longest suffix of data that is a
// proper prefix of pattern.
func partialSuffix(data, pattern []byte) int {
	k := len(pattern) - 1
	if len(data) < k {
		k = len(data)
	}
	for ; k > 0; k-- {
		if bytes.HasSuffix(data, pattern[:k]) {
			return k
		}
	}
	return 0
}
