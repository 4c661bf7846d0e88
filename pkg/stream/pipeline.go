// Package stream assembles assistant messages from SSE response streams.
//
// A Pipeline runs one message through the full chain:
//
//	io.Reader -> sse.TeeReader -> delta.Extractor -> reasoning.Splitter -> Sink
//
// sequentially on the calling goroutine. It suspends only while waiting for
// the next chunk from the source.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/papercomputeco/yui/pkg/llm/delta"
	"github.com/papercomputeco/yui/pkg/reasoning"
	"github.com/papercomputeco/yui/pkg/sse"
)

// Message identifies the assistant message a stream produces.
type Message struct {
	ID string

	// TagScanning enables inline <think> splitting; set it for reasoning
	// models (see reasoning.Detector).
	TagScanning bool
}

// Pipeline turns response streams into message snapshots.
type Pipeline struct {
	extractor *delta.Extractor
	logger    *zap.Logger
}

// NewPipeline creates a Pipeline. A nil logger discards diagnostics.
func NewPipeline(logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		extractor: delta.NewExtractor(logger),
		logger:    logger,
	}
}

// Run consumes src until the message ends and returns the final snapshot.
//
// The message ends on a Done or Error delta, on source EOF, on a read
// failure (surfaced as an error in the message content) or when ctx is
// cancelled, which is treated exactly like a "stopped" completion: the
// partial state is finalized as-is. sink.Finalize is always called once;
// its error is the only error Run returns.
//
// Cancellation interrupts a blocked read by closing src when it is an
// io.Closer. Other sources must return from Read on their own.
func (p *Pipeline) Run(ctx context.Context, msg Message, src io.Reader, sink Sink) (reasoning.Snapshot, error) {
	return p.RunTee(ctx, msg, src, nil, sink)
}

// RunTee is Run that also copies every raw byte read from src to dest
// before it is processed. A failing dest write ends the message as stopped.
func (p *Pipeline) RunTee(ctx context.Context, msg Message, src io.Reader, dest io.Writer, sink Sink) (reasoning.Snapshot, error) {
	if closer, ok := src.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stop()
	}

	tr := sse.NewTeeReader(src, dest)
	splitter := reasoning.NewSplitter(msg.TagScanning)

	apply := func(d delta.Delta) {
		snap, applied := splitter.Apply(d)
		if !applied {
			return
		}
		if err := sink.Update(ctx, msg.ID, snap); err != nil {
			p.logger.Warn("sink update failed",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}

	for !splitter.Finalized() {
		if ctx.Err() != nil {
			apply(delta.Stopped())
			break
		}

		ev, err := tr.Next()
		if err != nil {
			if aborted(ctx, err) {
				apply(delta.Stopped())
			} else {
				p.logger.Error("error reading response stream",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
				apply(delta.Error(fmt.Sprintf("HTTP error: %v", err)))
			}
			break
		}

		if ev == nil {
			// Source ended without a completion signal.
			apply(delta.Done(nil))
			break
		}

		deltas, _ := p.extractor.Extract(*ev)
		for _, d := range deltas {
			apply(d)
		}
	}

	snap := splitter.Snapshot()
	p.logger.Debug("message finalized",
		zap.String("message_id", msg.ID),
		zap.String("finish_reason", snap.FinishReason),
		zap.Int("content_len", len(snap.Content)),
		zap.Int("reasoning_len", len(snap.Reasoning)),
	)

	// Finalize must run even after cancellation.
	if err := sink.Finalize(context.WithoutCancel(ctx), msg.ID, snap); err != nil {
		return snap, fmt.Errorf("finalizing message %s: %w", msg.ID, err)
	}
	return snap, nil
}

// aborted reports whether a read failure was caused by the caller going
// away rather than by the transport.
func aborted(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, io.ErrClosedPipe)
}
