// Package lock provides the in-process and cross-process mutual exclusion
// primitives the cache uses to serialize operations on a given path.
package lock

import (
	"github.com/sasha-s/go-deadlock"
)

// RWMutex is a drop-in replacement for sync.RWMutex backed by go-deadlock,
// so that a lock-ordering mistake between a mirror path and one of its
// checkout paths is reported as a deadlock during tests instead of hanging
// silently in production.
type RWMutex struct {
	mu deadlock.RWMutex
}

func (l *RWMutex) Lock()    { l.mu.Lock() }
func (l *RWMutex) Unlock()  { l.mu.Unlock() }
func (l *RWMutex) RLock()   { l.mu.RLock() }
func (l *RWMutex) RUnlock() { l.mu.RUnlock() }
