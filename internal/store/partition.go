package store

import (
	"sync"
	"time"
)

// Partitions hands out one lock per ticket id so writes to the same ticket
// serialize while different tickets proceed independently.
type Partitions struct {
	mu    sync.Mutex
	locks map[string]*partitionLock
}

type partitionLock struct {
	mu   sync.Mutex
	refs int
}

func NewPartitions() *Partitions {
	return &Partitions{locks: make(map[string]*partitionLock)}
}

// Lock blocks until the partition for key is held and returns its release func.
func (p *Partitions) Lock(key string) func() {
	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &partitionLock{}
		p.locks[key] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}

// NextStamp returns a write timestamp for a ticket last touched at prev.
// Stamps are truncated to milliseconds and always move forward, so every
// write strictly increases the ticket's updatedAt.
func NextStamp(now time.Time, prev time.Time) time.Time {
	stamp := now.UTC().Truncate(time.Millisecond)
	if !stamp.After(prev) {
		stamp = prev.Add(time.Millisecond)
	}
	return stamp
}
