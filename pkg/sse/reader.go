package sse

import (
	"errors"
	"io"
)

const readChunkSize = 32 * 1024

// TeeReader reads SSE events from a source io.Reader while simultaneously
// writing all raw bytes verbatim to a destination io.Writer.
// This effectively enables "tee" shaped reading where TeeReader.Next
// returns the StreamEvent for consumption while writing to a separate
// destination.
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐   ┌───────────────────────┐
// │ TeeReader.Next() │──▶│ destination io.Writer │
// └──────────────────┘   └───────────────────────┘
// │
// ▼
// ┌──────────────────┐
// │   StreamEvent    │
// └──────────────────┘
//
// An SSE client io.Writer receives the exact copy of the
// stream, while the caller can inspect decoded events.
type TeeReader struct {
	src     io.Reader
	dest    io.Writer
	decoder *Decoder
	buf     []byte

	// pending holds events decoded from the last chunk that have not been
	// returned by Next yet.
	pending []StreamEvent
	eof     bool
	err     error
}

// NewTeeReader returns a reader that decodes SSE events from src and writes
// all raw bytes through to dest. A nil dest discards the bytes.
// The dest writer typically backs an io.Pipe connected to the downstream HTTP
// response.
func NewTeeReader(src io.Reader, dest io.Writer) *TeeReader {
	if dest == nil {
		dest = io.Discard
	}

	return &TeeReader{
		src:     src,
		dest:    dest,
		decoder: NewDecoder(),
		buf:     make([]byte, readChunkSize),
	}
}

// Next returns the next decoded event. It blocks only while waiting for the
// next chunk from the source. Next returns nil, nil when the source is
// exhausted, and the read or write error once events decoded before the
// failure have been drained.
//
// Every chunk read is written to the destination before it is decoded so the
// downstream client never lags behind the events handed to the caller.
func (r *TeeReader) Next() (*StreamEvent, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return nil, r.err
		}
		if r.eof {
			return nil, nil
		}
		r.fill()
	}

	ev := r.pending[0]
	r.pending = r.pending[1:]
	return &ev, nil
}

// fill performs a single read from the source.
func (r *TeeReader) fill() {
	n, err := r.src.Read(r.buf)
	if n > 0 {
		if _, werr := r.dest.Write(r.buf[:n]); werr != nil {
			r.err = werr
			return
		}
		r.pending = append(r.pending, r.decoder.Feed(r.buf[:n])...)
	}

	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		r.eof = true
		r.pending = append(r.pending, r.decoder.Flush()...)
	default:
		r.err = err
	}
}
