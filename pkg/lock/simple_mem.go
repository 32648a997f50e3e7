package lock

import (
	"sync"

	"github.com/gobii-ai/gobii-platform-sub000/pkg/prefixer"
)

type memLock struct {
	sync.RWMutex
}

func (ml *memLock) Lock() error  { ml.RWMutex.Lock(); return nil }
func (ml *memLock) RLock() error { ml.RWMutex.RLock(); return nil }
func (ml *memLock) Unlock()      { ml.RWMutex.Unlock() }
func (ml *memLock) RUnlock()     { ml.RWMutex.RUnlock() }

type memLockGetter struct {
	locks sync.Map
}

func newMemLockGetter() *memLockGetter {
	return &memLockGetter{}
}

func (m *memLockGetter) ReadWrite(db prefixer.Prefixer, name string) ErrorRWLocker {
	ns := db.DBPrefix() + "/" + name
	l, _ := m.locks.LoadOrStore(ns, &memLock{})
	return l.(*memLock)
}

func (m *memLockGetter) LongOperation(db prefixer.Prefixer, name string) ErrorLocker {
	return m.ReadWrite(db, name)
}
