// Package sse provides a minimal, purpose-built SSE (Server-Sent Events)
// decoder for chat completion streams. Only "data:" lines carry information
// for yui; every other SSE field, comment and keep-alive is skipped.
//
// The TeeReader additionally forwards the raw upstream bytes verbatim to a
// downstream writer so the proxy can relay a stream while inspecting it.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities.
//
// See the WHATWG server-sent events format:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

const (
	// DataPrefix is the field prefix of lines carrying an event payload.
	DataPrefix = "data:"

	// Terminator is the OpenAI end-of-stream sentinel payload.
	Terminator = "[DONE]"
)

// StreamEvent is one decoded data line from the wire.
type StreamEvent struct {
	// Payload is the data line with the prefix and surrounding whitespace
	// removed. Empty for terminator events.
	Payload string

	// Terminator is true for the explicit end-of-stream sentinel.
	Terminator bool
}
