// Package sched provides a single-goroutine timer keyed by absolute
// wall-clock deadlines. Deadlines are recomputed rather than
// interval-based, so day-boundary resets, allowance expiries, and
// report ticks stay correct across restarts and DST shifts.
package sched

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

type entry struct {
	key   string
	at    time.Time
	fn    func()
	index int
}

type entryHeap []*entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *entryHeap) Push(x any)        { e := x.(*entry); e.index = len(*h); *h = append(*h, e) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler dispatches callbacks at absolute deadlines. Callbacks run
// one at a time on the scheduler goroutine and always run to completion
// once due; only explicit Cancel removes a pending entry.
type Scheduler struct {
	mu     sync.Mutex
	heap   entryHeap
	byKey  map[string]*entry
	wake   chan struct{}
	logger *slog.Logger
}

// New creates an idle scheduler; call Run to start dispatching.
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		byKey:  make(map[string]*entry),
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
}

// At schedules fn to run at t, replacing any pending entry with the
// same key.
func (s *Scheduler) At(key string, t time.Time, fn func()) {
	s.mu.Lock()
	if old, ok := s.byKey[key]; ok {
		heap.Remove(&s.heap, old.index)
	}
	e := &entry{key: key, at: t, fn: fn}
	heap.Push(&s.heap, e)
	s.byKey[key] = e
	s.mu.Unlock()
	s.kick()
}

// Cancel removes a pending entry. It reports whether one existed.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	e, ok := s.byKey[key]
	if ok {
		heap.Remove(&s.heap, e.index)
		delete(s.byKey, key)
	}
	s.mu.Unlock()
	if ok {
		s.kick()
	}
	return ok
}

// Pending reports whether an entry with the given key is scheduled.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byKey[key]
	return ok
}

func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run dispatches entries until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.mu.Lock()
		var wait time.Duration = time.Hour
		now := time.Now()
		if len(s.heap) > 0 {
			next := s.heap[0]
			if !next.at.After(now) {
				heap.Pop(&s.heap)
				delete(s.byKey, next.key)
				s.mu.Unlock()
				s.logger.Debug("scheduler firing", "key", next.key, "deadline", next.at)
				next.fn()
				continue
			}
			wait = next.at.Sub(now)
		}
		s.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-timer.C:
		case <-s.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// NextMidnight returns the next local day boundary after t.
func NextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
