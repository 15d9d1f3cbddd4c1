// Package debounce coalesces bursts of sketch created/removed notifications
// into a single batch delivered after a quiet period.
package debounce

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultWindow is the quiescence window used when none is configured.
const DefaultWindow = 200 * time.Millisecond

// Batch is the aggregated content of one quiescence window.
type Batch struct {
	Created []string
	Removed []string
}

// Empty reports whether the batch carries no paths.
func (b Batch) Empty() bool {
	return len(b.Created) == 0 && len(b.Removed) == 0
}

// Buffer collects created and removed paths and hands them to fire once no
// new path has arrived for the window. Each Add rearms the timer. Paths keep
// their arrival order and duplicates within one list are dropped.
type Buffer struct {
	window time.Duration
	fire   func(Batch)
	logger *slog.Logger

	mu      sync.Mutex
	pending Batch
	seen    map[string]struct{}
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// New creates a buffer. A window <= 0 uses DefaultWindow.
func New(window time.Duration, fire func(Batch), logger *slog.Logger) *Buffer {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Buffer{
		window: window,
		fire:   fire,
		logger: logger.With("component", "debounce"),
		seen:   make(map[string]struct{}),
	}
}

// Created records created sketch paths.
func (b *Buffer) Created(paths ...string) {
	b.add(paths, nil)
}

// Removed records removed sketch paths.
func (b *Buffer) Removed(paths ...string) {
	b.add(nil, paths)
}

// Add records both lists at once.
func (b *Buffer) Add(created, removed []string) {
	b.add(created, removed)
}

func (b *Buffer) add(created, removed []string) {
	if len(created) == 0 && len(removed) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}

	for _, p := range created {
		if b.mark("c:" + p) {
			b.pending.Created = append(b.pending.Created, p)
		}
	}
	for _, p := range removed {
		if b.mark("r:" + p) {
			b.pending.Removed = append(b.pending.Removed, p)
		}
	}

	b.gen++
	gen := b.gen
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.window, func() { b.expire(gen) })
}

func (b *Buffer) mark(key string) bool {
	if _, ok := b.seen[key]; ok {
		return false
	}
	b.seen[key] = struct{}{}
	return true
}

// expire fires the pending batch unless a later add rearmed the timer.
func (b *Buffer) expire(gen uint64) {
	b.mu.Lock()
	if b.stopped || gen != b.gen {
		b.mu.Unlock()
		return
	}
	batch := b.take()
	b.mu.Unlock()

	b.deliver(batch)
}

// Flush fires whatever is pending immediately.
func (b *Buffer) Flush() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	batch := b.take()
	b.mu.Unlock()

	b.deliver(batch)
}

// Stop discards pending paths and disarms the timer. Later adds are ignored.
func (b *Buffer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	b.take()
}

// take must be called with mu held.
func (b *Buffer) take() Batch {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
	batch := b.pending
	b.pending = Batch{}
	b.seen = make(map[string]struct{})
	return batch
}

func (b *Buffer) deliver(batch Batch) {
	if batch.Empty() {
		return
	}
	b.logger.Debug("firing debounced batch", "created", len(batch.Created), "removed", len(batch.Removed))
	b.fire(batch)
}
