// Package sse decodes Server-Sent Event streams, the framing every
// OpenAI-compatible and Gemini streaming endpoint uses to deliver partial
// responses.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is one server-sent event: the optional event name and the data
// payload with multi-line data joined by newlines.
type Event struct {
	Name string
	Data string
}

// Decoder incrementally parses an SSE byte stream into events.
type Decoder struct {
	scanner *bufio.Scanner
	cur     Event
	err     error
}

// NewDecoder wraps the response body of a streaming request.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Decoder{scanner: scanner}
}

// Next advances to the next event, returning false at end of input or on a
// read error (see Err). Comment lines are skipped; an event is dispatched at
// each blank line that follows one or more data lines.
func (d *Decoder) Next() bool {
	if d.err != nil {
		return false
	}

	var name string
	var data strings.Builder
	haveData := false

	for d.scanner.Scan() {
		line := d.scanner.Text()
		line = strings.TrimSuffix(line, "\r")

		if line == "" {
			if haveData {
				d.cur = Event{Name: name, Data: data.String()}
				return true
			}
			name = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if value, ok := strings.CutPrefix(line, "event:"); ok {
			name = strings.TrimPrefix(value, " ")
			continue
		}
		if value, ok := strings.CutPrefix(line, "data:"); ok {
			if haveData {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(value, " "))
			haveData = true
		}
		// Unknown fields (id:, retry:) are ignored per the SSE spec.
	}

	if err := d.scanner.Err(); err != nil {
		d.err = err
		return false
	}
	if haveData {
		// Final event without a trailing blank line.
		d.cur = Event{Name: name, Data: data.String()}
		return true
	}
	return false
}

// Event returns the event produced by the last successful call to Next.
func (d *Decoder) Event() Event {
	return d.cur
}

// Err returns the first read error encountered, if any.
func (d *Decoder) Err() error {
	return d.err
}
