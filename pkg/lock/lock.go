// Package lock provides advisory locks to serialize the structural mutations
// of a filespace. The locks are backed by redis when a client is configured,
// so that several stack processes can cooperate, and fall back on in-memory
// mutexes otherwise.
package lock

import (
	"github.com/redis/go-redis/v9"

	"github.com/gobii-ai/gobii-platform-sub000/pkg/prefixer"
)

// An ErrorLocker is a locker which can fail (returns an error)
type ErrorLocker interface {
	Lock() error
	Unlock()
}

// ErrorRWLocker is the interface for a RWLock as inspired by RWMutex
type ErrorRWLocker interface {
	ErrorLocker
	RLock() error
	RUnlock()
}

// Getter returns locks for a given tenant database and lock name.
type Getter interface {
	// ReadWrite returns the read/write lock for the given name.
	ReadWrite(db prefixer.Prefixer, name string) ErrorRWLocker
	// LongOperation returns a lock suitable for long operations. It will
	// refresh the lock to avoid its automatic expiration.
	LongOperation(db prefixer.Prefixer, name string) ErrorLocker
}

// New returns a lock getter for the given redis client. A nil client selects
// the in-memory implementation.
func New(client redis.UniversalClient) Getter {
	if client == nil {
		return newMemLockGetter()
	}
	return NewRedisLockGetter(client)
}
