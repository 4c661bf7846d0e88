package sse

import (
	"bytes"
	"strings"
)

// Decoder incrementally turns arbitrarily sized chunks of an SSE byte stream
// into StreamEvents. Partial lines are buffered across Feed calls.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk to the internal buffer and returns the events for every
// line completed by it, in stream order.
func (d *Decoder) Feed(chunk []byte) []StreamEvent {
	d.buf = append(d.buf, chunk...)

	var events []StreamEvent
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}

		if ev, ok := parseLine(d.buf[:i]); ok {
			events = append(events, ev)
		}
		d.buf = d.buf[i+1:]
	}

	// Release the consumed prefix of the backing array.
	if len(d.buf) == 0 {
		d.buf = nil
	} else if cap(d.buf) > 4*len(d.buf) {
		d.buf = append([]byte(nil), d.buf...)
	}

	return events
}

// Flush decodes a trailing line that was never newline terminated. Call it
// once the source is exhausted.
func (d *Decoder) Flush() []StreamEvent {
	line := d.buf
	d.buf = nil

	if ev, ok := parseLine(line); ok {
		return []StreamEvent{ev}
	}
	return nil
}

// Buffered reports the number of bytes of an incomplete line held back.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// parseLine decodes a single line. Lines without the data prefix (comments,
// event/id/retry fields, blank lines) and empty payloads are not events.
func parseLine(line []byte) (StreamEvent, bool) {
	s := strings.TrimRight(string(line), "\r")

	payload, ok := strings.CutPrefix(s, DataPrefix)
	if !ok {
		return StreamEvent{}, false
	}

	payload = strings.TrimSpace(payload)
	switch payload {
	case "":
		return StreamEvent{}, false
	case Terminator:
		return StreamEvent{Terminator: true}, true
	default:
		return StreamEvent{Payload: payload}, true
	}
}
