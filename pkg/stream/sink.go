package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/yui/pkg/reasoning"
)

// Sink receives the live state of assistant messages.
//
// Update is called after every processed delta with a snapshot that fully
// replaces the previous one for that message. Finalize is called exactly
// once per message when its stream ends, normally, by error, or by
// cancellation, so implementations can flush to durable storage once.
type Sink interface {
	Update(ctx context.Context, messageID string, snap reasoning.Snapshot) error
	Finalize(ctx context.Context, messageID string, snap reasoning.Snapshot) error
}

// MemorySink keeps the latest snapshot of every message in memory.
type MemorySink struct {
	mu        sync.RWMutex
	snapshots map[string]reasoning.Snapshot
	updates   map[string]int
	finalized map[string]int
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		snapshots: make(map[string]reasoning.Snapshot),
		updates:   make(map[string]int),
		finalized: make(map[string]int),
	}
}

func (s *MemorySink) Update(_ context.Context, messageID string, snap reasoning.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[messageID] = snap
	s.updates[messageID]++
	return nil
}

func (s *MemorySink) Finalize(_ context.Context, messageID string, snap reasoning.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[messageID] = snap
	s.finalized[messageID]++
	return nil
}

// Get returns the latest snapshot for messageID.
func (s *MemorySink) Get(messageID string) (reasoning.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[messageID]
	return snap, ok
}

// Updates returns how many times Update was called for messageID.
func (s *MemorySink) Updates(messageID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates[messageID]
}

// Finalizations returns how many times Finalize was called for messageID.
func (s *MemorySink) Finalizations(messageID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalized[messageID]
}

// FuncSink adapts plain functions to a Sink. Nil functions are no-ops.
type FuncSink struct {
	OnUpdate   func(ctx context.Context, messageID string, snap reasoning.Snapshot) error
	OnFinalize func(ctx context.Context, messageID string, snap reasoning.Snapshot) error
}

func (f FuncSink) Update(ctx context.Context, messageID string, snap reasoning.Snapshot) error {
	if f.OnUpdate == nil {
		return nil
	}
	return f.OnUpdate(ctx, messageID, snap)
}

func (f FuncSink) Finalize(ctx context.Context, messageID string, snap reasoning.Snapshot) error {
	if f.OnFinalize == nil {
		return nil
	}
	return f.OnFinalize(ctx, messageID, snap)
}

// MultiSink fans every call out to all of its sinks in order. Every sink is
// called even when an earlier one fails; the errors are joined.
type MultiSink []Sink

func (m MultiSink) Update(ctx context.Context, messageID string, snap reasoning.Snapshot) error {
	var errs []error
	for _, s := range m {
		if err := s.Update(ctx, messageID, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Finalize(ctx context.Context, messageID string, snap reasoning.Snapshot) error {
	var errs []error
	for _, s := range m {
		if err := s.Finalize(ctx, messageID, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
