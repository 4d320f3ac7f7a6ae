package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// defaultMaxHistory bounds how many finished job histories are retained.
const defaultMaxHistory = 1024

// GocronScheduler implements Scheduler on top of go-co-op/gocron.
// gocron drives the recurring cadences; one-off jobs run on their own
// goroutines. gocron exposes no per-run lifecycle history, so the adapter
// records transitions itself in a bounded in-memory map.
type GocronScheduler struct {
	cron   *gocron.Scheduler
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	history    map[string][]HistoryEntry
	order      []string
	pending    map[string][]continuation
	maxHistory int
}

type continuation struct {
	handle string
	work   Work
}

// NewGocronScheduler creates a stopped scheduler; call Start before use.
func NewGocronScheduler(log *zap.Logger) *GocronScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &GocronScheduler{
		cron:       gocron.NewScheduler(time.UTC),
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		history:    make(map[string][]HistoryEntry),
		pending:    make(map[string][]continuation),
		maxHistory: defaultMaxHistory,
	}
}

// Start begins executing recurring jobs asynchronously.
func (s *GocronScheduler) Start() {
	s.cron.StartAsync()
}

// Stop halts recurring jobs and cancels the context passed to running work.
func (s *GocronScheduler) Stop() {
	s.cron.Stop()
	s.cancel()
}

// Enqueue runs work once in the background and returns its handle.
func (s *GocronScheduler) Enqueue(work Work) (string, error) {
	handle := uuid.NewString()
	s.record(handle, StateEnqueued)

	go s.run(handle, work)
	return handle, nil
}

// EnqueueContinuation schedules work to run after the parent job reaches a
// terminal state. If the parent is already terminal the work is enqueued
// immediately.
func (s *GocronScheduler) EnqueueContinuation(parent string, work Work) (string, error) {
	handle := uuid.NewString()

	s.mu.Lock()
	entries, ok := s.history[parent]
	if !ok {
		s.mu.Unlock()
		return "", ErrJobNotFound
	}
	if last := entries[len(entries)-1]; !last.State.Terminal() {
		s.recordLocked(handle, StateEnqueued)
		s.pending[parent] = append(s.pending[parent], continuation{handle: handle, work: work})
		s.mu.Unlock()
		return handle, nil
	}
	s.recordLocked(handle, StateEnqueued)
	s.mu.Unlock()

	go s.run(handle, work)
	return handle, nil
}

// RegisterRecurring registers (or replaces) a named recurring job with the
// given cron expression.
func (s *GocronScheduler) RegisterRecurring(id, expr string, work Work) error {
	// Replace any previous registration under the same id.
	if err := s.cron.RemoveByTag(id); err != nil && !errors.Is(err, gocron.ErrJobNotFoundWithTag) {
		return err
	}

	_, err := s.cron.Cron(expr).Tag(id).Do(func() {
		work(s.ctx)
	})
	if err != nil {
		return err
	}

	s.log.Debug("recurring job registered", zap.String("id", id), zap.String("cadence", expr))
	return nil
}

// RemoveRecurring unregisters a named recurring job. Removing an unknown id
// is a no-op.
func (s *GocronScheduler) RemoveRecurring(id string) error {
	if err := s.cron.RemoveByTag(id); err != nil && !errors.Is(err, gocron.ErrJobNotFoundWithTag) {
		return err
	}
	return nil
}

// History returns the ordered lifecycle history for a handle.
func (s *GocronScheduler) History(handle string) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.history[handle]
	if !ok {
		return nil, ErrJobNotFound
	}
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *GocronScheduler) run(handle string, work Work) {
	s.record(handle, StateProcessing)

	final := StateSucceeded
	func() {
		defer func() {
			if r := recover(); r != nil {
				final = StateFailed
				s.log.Error("background job panicked", zap.String("handle", handle), zap.Any("panic", r))
			}
		}()
		work(s.ctx)
	}()

	s.record(handle, final)
	s.fireContinuations(handle)
}

func (s *GocronScheduler) fireContinuations(parent string) {
	s.mu.Lock()
	conts := s.pending[parent]
	delete(s.pending, parent)
	s.mu.Unlock()

	for _, c := range conts {
		go s.run(c.handle, c.work)
	}
}

func (s *GocronScheduler) record(handle string, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked(handle, state)
}

func (s *GocronScheduler) recordLocked(handle string, state State) {
	if _, ok := s.history[handle]; !ok {
		s.order = append(s.order, handle)
	}
	s.history[handle] = append(s.history[handle], HistoryEntry{State: state, At: time.Now().UTC()})
	s.pruneLocked()
}

// pruneLocked evicts the oldest terminal histories once the retention cap is
// exceeded. Non-terminal histories are never evicted.
func (s *GocronScheduler) pruneLocked() {
	if len(s.order) <= s.maxHistory {
		return
	}

	kept := s.order[:0]
	excess := len(s.order) - s.maxHistory
	for _, handle := range s.order {
		entries := s.history[handle]
		if excess > 0 && len(entries) > 0 && entries[len(entries)-1].State.Terminal() {
			delete(s.history, handle)
			excess--
			continue
		}
		kept = append(kept, handle)
	}
	s.order = kept
}
