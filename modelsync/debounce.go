package modelsync

import (
	"sync"
	"time"
)

type debounceEntry[A any] struct {
	args       A
	timer      *time.Timer
	generation uint64
}

// Debouncer coalesces calls per key on the trailing edge. Only the latest
// args of a key are kept, and they fire once `interval` passes without another call.
type Debouncer[K comparable, A any] struct {
	interval time.Duration
	fire     func(key K, args A)

	stateLock  sync.Mutex
	entries    map[K]*debounceEntry[A]
	generation uint64
	closed     bool
}

func NewDebouncer[K comparable, A any](interval time.Duration, fire func(key K, args A)) *Debouncer[K, A] {
	return &Debouncer[K, A]{
		interval: interval,
		fire:     fire,
		entries:  map[K]*debounceEntry[A]{},
	}
}

func (self *Debouncer[K, A]) Call(key K, args A) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.closed {
		return
	}

	self.generation += 1
	generation := self.generation
	if entry, ok := self.entries[key]; ok {
		entry.timer.Stop()
	}
	self.entries[key] = &debounceEntry[A]{
		args:       args,
		generation: generation,
		timer: time.AfterFunc(self.interval, func() {
			self.fireIfCurrent(key, generation)
		}),
	}
}

func (self *Debouncer[K, A]) fireIfCurrent(key K, generation uint64) {
	entry, ok := func() (*debounceEntry[A], bool) {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		entry, ok := self.entries[key]
		if !ok || entry.generation != generation {
			return nil, false
		}
		delete(self.entries, key)
		return entry, true
	}()
	if ok {
		HandleError(func() {
			self.fire(key, entry.args)
		})
	}
}

// fires every pending call now, on the calling goroutine
func (self *Debouncer[K, A]) Flush() {
	entries := func() map[K]*debounceEntry[A] {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		entries := self.entries
		self.entries = map[K]*debounceEntry[A]{}
		return entries
	}()
	for key, entry := range entries {
		entry.timer.Stop()
		HandleError(func() {
			self.fire(key, entry.args)
		})
	}
}

func (self *Debouncer[K, A]) Pending() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return len(self.entries)
}

// drops pending calls without firing them
func (self *Debouncer[K, A]) Close() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.closed = true
	for _, entry := range self.entries {
		entry.timer.Stop()
	}
	clear(self.entries)
}
