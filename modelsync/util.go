package modelsync

import (
	"sync"
	"time"
)

type callbackEntry[T any] struct {
	callbackId Id
	callback   T
}

// makes a copy of the list on update
type CallbackList[T any] struct {
	mutex   sync.Mutex
	entries []callbackEntry[T]
}

func NewCallbackList[T any]() *CallbackList[T] {
	return &CallbackList[T]{
		entries: []callbackEntry[T]{},
	}
}

func (self *CallbackList[T]) Get() []T {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbacks := make([]T, len(self.entries))
	for i, entry := range self.entries {
		callbacks[i] = entry.callback
	}
	return callbacks
}

func (self *CallbackList[T]) Len() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return len(self.entries)
}

func (self *CallbackList[T]) Add(callback T) Id {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbackId := NewId()
	nextEntries := make([]callbackEntry[T], len(self.entries), len(self.entries)+1)
	copy(nextEntries, self.entries)
	nextEntries = append(nextEntries, callbackEntry[T]{
		callbackId: callbackId,
		callback:   callback,
	})
	self.entries = nextEntries
	return callbackId
}

func (self *CallbackList[T]) Remove(callbackId Id) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	nextEntries := make([]callbackEntry[T], 0, len(self.entries))
	for _, entry := range self.entries {
		if entry.callbackId != callbackId {
			nextEntries = append(nextEntries, entry)
		}
	}
	self.entries = nextEntries
}

func (self *CallbackList[T]) Clear() {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.entries = []callbackEntry[T]{}
}

// spaces connection attempts at least `timeout` apart
type Reconnect struct {
	timeout time.Duration
	start   time.Time
}

func NewReconnect(timeout time.Duration) *Reconnect {
	return &Reconnect{
		timeout: timeout,
		start:   time.Now(),
	}
}

func (self *Reconnect) After() <-chan time.Time {
	remaining := self.timeout - time.Since(self.start)
	if remaining <= 0 {
		c := make(chan time.Time, 1)
		c <- time.Now()
		return c
	}
	return time.After(remaining)
}
