// Debounced, coalescing save scheduling. Rapid mutations to one entity are
// batched and flushed as a single write after a short quiet period; a
// per-entity mutex guarantees two saves of the same entity never interleave
// their blob-then-metadata write sequences.

package store

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultSaveDelay is the quiet period before a scheduled save runs.
const DefaultSaveDelay = 500 * time.Millisecond

// Saver coalesces pending writes per entity. There is no cancellation: a
// superseding Schedule registers a fresh pending save instead of
// cancelling an in-flight write.
type Saver struct {
	delay time.Duration

	mu       sync.Mutex
	pending  map[string]*pendingSave
	entityMu map[string]*sync.Mutex
	closed   bool
	wg       sync.WaitGroup
}

type pendingSave struct {
	timer *time.Timer
	fn    func() error
}

// NewSaver returns a Saver with the given quiet period; delay <= 0 uses
// [DefaultSaveDelay].
func NewSaver(delay time.Duration) *Saver {
	if delay <= 0 {
		delay = DefaultSaveDelay
	}
	return &Saver{
		delay:    delay,
		pending:  make(map[string]*pendingSave),
		entityMu: make(map[string]*sync.Mutex),
	}
}

// Schedule queues a save for the entity, replacing any save already
// pending for it and restarting the quiet period. The latest function
// wins; earlier ones are superseded, not run.
//
// Every call arms a fresh timer. A superseded timer that already fired is
// never re-armed: its callback finds it no longer registered and returns.
// That keeps each wg.Add paired with exactly one wg.Done even when a
// Schedule races an expiry.
func (s *Saver) Schedule(entityID string, save func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if old, ok := s.pending[entityID]; ok {
		if old.timer.Stop() {
			s.wg.Done()
		}
	}
	p := &pendingSave{fn: save}
	s.pending[entityID] = p
	s.wg.Add(1)
	p.timer = time.AfterFunc(s.delay, func() {
		defer s.wg.Done()
		s.runPending(entityID, p)
	})
}

// runPending runs a fired save, but only while it is still the registered
// one: a save superseded or flushed between expiry and here is a no-op.
func (s *Saver) runPending(entityID string, p *pendingSave) {
	s.mu.Lock()
	if s.pending[entityID] != p {
		s.mu.Unlock()
		return
	}
	delete(s.pending, entityID)
	mu := s.lockFor(entityID)
	s.mu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	if err := p.fn(); err != nil {
		slog.Error("Failed to flush pending save", "entity", entityID, "err", err)
	}
}

// lockFor returns the per-entity write mutex, creating it on first use.
// Caller holds s.mu.
func (s *Saver) lockFor(entityID string) *sync.Mutex {
	mu, ok := s.entityMu[entityID]
	if !ok {
		mu = &sync.Mutex{}
		s.entityMu[entityID] = mu
	}
	return mu
}

// Flush runs every pending save immediately and returns the joined errors.
func (s *Saver) Flush() error {
	s.mu.Lock()
	type item struct {
		id string
		fn func() error
		mu *sync.Mutex
	}
	items := make([]item, 0, len(s.pending))
	for id, p := range s.pending {
		// Stop succeeding means the callback will never run and its
		// wg.Done falls to us. Stop failing means the callback is firing:
		// it finds the entry gone, skips the save and does its own Done.
		if p.timer.Stop() {
			s.wg.Done()
		}
		items = append(items, item{id: id, fn: p.fn, mu: s.lockFor(id)})
		delete(s.pending, id)
	}
	s.mu.Unlock()

	var errs []error
	for _, it := range items {
		it.mu.Lock()
		if err := it.fn(); err != nil {
			errs = append(errs, err)
		}
		it.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Close flushes pending saves, waits for in-flight timers and rejects any
// further scheduling.
func (s *Saver) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	err := s.Flush()
	s.wg.Wait()
	return err
}
