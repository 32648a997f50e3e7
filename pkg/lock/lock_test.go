package lock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobii-ai/gobii-platform-sub000/pkg/prefixer"
)

func TestMemLockGetterReturnsSameLock(t *testing.T) {
	getter := New(nil)
	db := prefixer.NewPrefixer("alice", "alice")
	other := prefixer.NewPrefixer("bob", "bob")

	l1 := getter.ReadWrite(db, "vfs")
	l2 := getter.ReadWrite(db, "vfs")
	l3 := getter.ReadWrite(other, "vfs")
	l4 := getter.ReadWrite(db, "filespaces")

	assert.Same(t, l1, l2)
	assert.NotSame(t, l1, l3)
	assert.NotSame(t, l1, l4)
}

func TestMemLockSerializesWriters(t *testing.T) {
	getter := New(nil)
	db := prefixer.NewPrefixer("alice", "alice")
	l := getter.ReadWrite(db, "vfs")

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Lock())
			counter++
			l.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestMemLockAllowsConcurrentReaders(t *testing.T) {
	getter := New(nil)
	db := prefixer.NewPrefixer("alice", "alice")
	l := getter.ReadWrite(db, "vfs")

	require.NoError(t, l.RLock())
	require.NoError(t, l.RLock())
	l.RUnlock()
	l.RUnlock()

	require.NoError(t, l.Lock())
	l.Unlock()
}
