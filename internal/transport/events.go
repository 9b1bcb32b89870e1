package transport

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

const (
	initialEventBuffer = 64 * 1024
	maxEventSize       = 1024 * 1024
)

var errDone = errors.New("stream done")

// ReadEvents splits a streamed body into event payloads and calls fn for
// each one. Server-sent events ("data:" lines, possibly spanning several
// lines) and newline-delimited JSON are both accepted. Comments, event
// names and the "[DONE]" terminator are consumed here. An error from fn
// stops the loop and is returned.
func ReadEvents(r io.Reader, fn func(payload []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialEventBuffer), maxEventSize)

	var data []string
	flush := func() error {
		if len(data) == 0 {
			return nil
		}
		payload := strings.Join(data, "\n")
		data = data[:0]
		if payload == "[DONE]" {
			return errDone
		}
		return fn([]byte(payload))
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		var err error
		switch {
		case line == "":
			err = flush()
		case strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "event:"), strings.HasPrefix(line, "id:"), strings.HasPrefix(line, "retry:"):
			continue
		case strings.HasPrefix(strings.TrimSpace(line), "{"):
			if err = flush(); err == nil {
				err = fn([]byte(strings.TrimSpace(line)))
			}
		}

		if errors.Is(err, errDone) {
			return nil
		}
		if err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	if err := flush(); err != nil && !errors.Is(err, errDone) {
		return err
	}
	return nil
}
