package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/papercomputeco/yui/pkg/llm"
)

// errorFrame returns a one frame SSE stream carrying {"error": message}.
func errorFrame(message string) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(errorFrameBytes(message)))
}

func errorFrameBytes(message string) []byte {
	payload, _ := json.Marshal(llm.ErrorResponse{Error: message})
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	return append(frame, "\n\n"...)
}

// upstreamBody wraps an upstream SSE body. A failed read is reported to the
// client as an {"error": "HTTP error: ..."} frame before the error reaches
// the pipeline, which records the same message.
type upstreamBody struct {
	body   io.ReadCloser
	frames io.Writer

	err      error
	reported bool
	closed   atomic.Bool
}

func (u *upstreamBody) Read(b []byte) (int, error) {
	if u.err == nil {
		n, err := u.body.Read(b)
		if err == nil || errors.Is(err, io.EOF) {
			return n, err
		}
		u.err = err
		if n > 0 {
			return n, nil
		}
	}

	// A closed body means the relay was stopped, not that upstream failed.
	if !u.reported && u.frames != nil && !u.closed.Load() && !errors.Is(u.err, context.Canceled) {
		u.reported = true
		_, _ = u.frames.Write(errorFrameBytes(fmt.Sprintf("HTTP error: %v", u.err)))
	}
	return 0, u.err
}

func (u *upstreamBody) Close() error {
	u.closed.Store(true)
	return u.body.Close()
}
