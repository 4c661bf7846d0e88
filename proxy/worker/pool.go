// Package worker provides an asynchronous worker pool for persisting
// finalized assistant messages with the provided storage.Driver and
// publishing them on the configured eventstream.Publisher.
//
// The pool decouples storage operations from the proxy's HTTP hot path so that the
// client-proxy-upstream interaction is fully transparent.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/yui/pkg/eventstream"
	"github.com/papercomputeco/yui/pkg/eventstream/nop"
	"github.com/papercomputeco/yui/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against: one
// finalized assistant message.
type Job struct {
	ConversationID string
	Message        *storage.Message

	// FinishReason and Error describe how the message stream ended.
	FinishReason string
	Error        string

	Source eventstream.EventSource
	Meta   eventstream.RequestMeta
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for persisting messages.
	Driver storage.Driver

	// Publisher receives a message finalized event after every stored
	// message. Defaults to a no-op publisher.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes storage jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, fmt.Errorf("storage driver is required")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Publisher == nil {
		c.Publisher = nop.NewPublisher()
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			zap.String("conversation_id", job.ConversationID),
			zap.String("message_id", job.Message.ID),
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			zap.String("conversation_id", job.ConversationID),
			zap.String("message_id", job.Message.ID),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the proxy HTTP server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("storage worker stopped", zap.Uint("worker_id", id))
}

// processJob stores the message, touches its conversation and publishes the
// finalized event. Publishing only happens for stored messages.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	if err := p.storeMessage(ctx, job); err != nil {
		p.logger.Error("async message storage failed",
			zap.String("conversation_id", job.ConversationID),
			zap.String("message_id", job.Message.ID),
			zap.Error(err),
		)
		return
	}

	p.logger.Info("message stored",
		zap.String("conversation_id", job.ConversationID),
		zap.String("message_id", job.Message.ID),
		zap.String("finish_reason", job.FinishReason),
	)

	if err := p.config.Publisher.PublishMessage(ctx, newEvent(job)); err != nil {
		p.logger.Warn("failed to publish message event",
			zap.String("message_id", job.Message.ID),
			zap.Error(err),
		)
	}
}

// storeMessage upserts the assistant message and bumps the conversation's
// updated time so it sorts first in the sidebar.
func (p *Pool) storeMessage(ctx context.Context, job Job) error {
	if _, err := p.config.Driver.PutMessage(ctx, job.ConversationID, job.Message); err != nil {
		return fmt.Errorf("storing message: %w", err)
	}

	now := storage.NowMillis()
	if _, err := p.config.Driver.UpdateConversation(ctx, job.ConversationID, storage.ConversationUpdate{UpdatedAt: &now}); err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}

	p.logger.Debug("stored message",
		zap.String("message_id", job.Message.ID),
		zap.Int("content_len", len(job.Message.Content)),
		zap.Int("reasoning_len", len(job.Message.ReasoningContent)),
	)
	return nil
}

func newEvent(job Job) *eventstream.MessageFinalizedEvent {
	meta := job.Meta
	if meta.CompletedAt.IsZero() {
		meta.CompletedAt = time.Now()
	}

	msg := eventstream.EventMessage{
		ID:               job.Message.ID,
		Content:          job.Message.Content,
		ReasoningContent: job.Message.ReasoningContent,
		Error:            job.Error,
	}
	if job.FinishReason != "" {
		reason := job.FinishReason
		msg.FinishReason = &reason
	}

	return eventstream.NewMessageFinalizedEvent(job.ConversationID, msg, job.Source, meta)
}
