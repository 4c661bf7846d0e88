package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/papercomputeco/yui/pkg/reasoning"
)

// ErrJobDropped is returned by Sink.Finalize when the pool queue is full.
var ErrJobDropped = errors.New("worker queue full, message dropped")

// Sink is a stream.Sink that records one assistant message. Live snapshots
// stay in memory; Finalize enqueues a single durable write on the pool.
type Sink struct {
	pool *Pool
	job  Job

	mu   sync.RWMutex
	last reasoning.Snapshot
	done bool
}

// NewSink returns a Sink that completes job with the final snapshot.
// job.Message must carry the message id, role and creation time.
func NewSink(pool *Pool, job Job) *Sink {
	return &Sink{pool: pool, job: job}
}

func (s *Sink) Update(_ context.Context, _ string, snap reasoning.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = snap
	return nil
}

func (s *Sink) Finalize(_ context.Context, messageID string, snap reasoning.Snapshot) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.last = snap
	s.done = true
	s.mu.Unlock()

	job := s.job
	msg := *job.Message
	msg.ID = messageID
	msg.Content = snap.Content
	msg.ReasoningContent = snap.Reasoning
	job.Message = &msg
	job.FinishReason = snap.FinishReason
	job.Error = snap.Error
	job.Meta.CompletedAt = time.Now()

	if !s.pool.Enqueue(job) {
		return ErrJobDropped
	}
	return nil
}

// Snapshot returns the latest snapshot seen by the sink.
func (s *Sink) Snapshot() reasoning.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}
