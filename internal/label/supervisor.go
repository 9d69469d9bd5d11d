package label

import (
	"context"
	"log"
	"sync"
)

// Ticket identifies one submitted rebuild. It is checked with Valid before
// the result is attached to anything.
type Ticket struct {
	Key string
	gen uint64
}

// Task is one label rebuild. Build may be slow (rasterizing); Apply attaches
// the result and is skipped when the ticket has gone stale.
type Task struct {
	Build func(ctx context.Context) any
	Apply func(t Ticket, result any)
}

type slot struct {
	gen     uint64
	busy    bool
	pending *queued
	cancel  context.CancelFunc
}

// queued is a task with the generation it was submitted under.
type queued struct {
	task Task
	gen  uint64
}

// Supervisor runs at most one rebuild per key. Submitting while a rebuild
// is running replaces the single pending slot; when the running rebuild
// finishes exactly one pending task is started. Cancel invalidates the
// running rebuild and drops the pending one.
type Supervisor struct {
	mu      sync.Mutex
	slots   map[string]*slot
	nextGen uint64
	ctx     context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewSupervisor creates a Supervisor.
func NewSupervisor() *Supervisor {
	ctx, stop := context.WithCancel(context.Background())
	return &Supervisor{
		slots: make(map[string]*slot),
		ctx:   ctx,
		stop:  stop,
	}
}

// Submit schedules task for key. The task is bound to the key's current
// generation, so a Cancel issued after Submit discards it even if it has not
// started yet.
func (s *Supervisor) Submit(key string, task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	sl := s.slots[key]
	if sl == nil {
		s.nextGen++
		sl = &slot{gen: s.nextGen}
		s.slots[key] = sl
	}
	q := queued{task: task, gen: sl.gen}
	if sl.busy {
		sl.pending = &q
		return
	}
	sl.busy = true
	s.wg.Add(1)
	go s.run(key, sl, q)
}

func (s *Supervisor) run(key string, sl *slot, q queued) {
	defer s.wg.Done()
	for {
		ticket := Ticket{Key: key, gen: q.gen}
		ctx, cancel := context.WithCancel(s.ctx)
		s.mu.Lock()
		stale := sl.gen != q.gen
		sl.cancel = cancel
		s.mu.Unlock()

		var result any
		if !stale {
			result = s.build(ctx, key, q.task)
		}
		cancel()

		if result != nil && q.task.Apply != nil && s.Valid(ticket) {
			q.task.Apply(ticket, result)
		}

		s.mu.Lock()
		sl.cancel = nil
		next := sl.pending
		sl.pending = nil
		if next == nil {
			sl.busy = false
			if s.slots[key] == sl {
				delete(s.slots, key)
			}
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		q = *next
	}
}

func (s *Supervisor) build(ctx context.Context, key string, task Task) (result any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Label] rebuild for %s panicked: %v", key, r)
			result = nil
		}
	}()
	if task.Build == nil {
		return nil
	}
	return task.Build(ctx)
}

// Valid reports whether t is still the current rebuild for its key.
func (s *Supervisor) Valid(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl := s.slots[t.Key]
	return sl != nil && sl.gen == t.gen
}

// Cancel discards any running or pending rebuild for key. Cancelling an
// unknown key is a no-op.
func (s *Supervisor) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl := s.slots[key]
	if sl == nil {
		return
	}
	s.nextGen++
	sl.gen = s.nextGen
	sl.pending = nil
	if sl.cancel != nil {
		sl.cancel()
	}
}

// CancelAll cancels every key.
func (s *Supervisor) CancelAll() {
	s.mu.Lock()
	keys := make([]string, 0, len(s.slots))
	for k := range s.slots {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	for _, k := range keys {
		s.Cancel(k)
	}
}

// Busy reports whether a rebuild for key is running.
func (s *Supervisor) Busy(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl := s.slots[key]
	return sl != nil && sl.busy
}

// Wait blocks until no rebuild is running.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Close cancels everything and waits for running rebuilds to return.
func (s *Supervisor) Close() {
	s.CancelAll()
	s.mu.Lock()
	s.stop()
	s.mu.Unlock()
	s.wg.Wait()
}
