package filespace_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobii-ai/gobii-platform-sub000/model/filespace"
	"github.com/gobii-ai/gobii-platform-sub000/model/vfs"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/config"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/consts"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/couchdb"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/utils"
)

var resetOnce sync.Once

// needCouch prepares the registry database. These tests need a real CouchDB.
func needCouch(t *testing.T) {
	if testing.Short() {
		t.Skip("a couchdb is required for this test: test skipped due to the use of --short flag")
	}
	config.UseTestFile()
	resetOnce.Do(func() {
		if err := couchdb.ResetDB(couchdb.GlobalDB, consts.FileSpaces); err != nil {
			t.Fatalf("could not reset the registry database: %s", err)
		}
		if err := filespace.InitRegistry(); err != nil {
			t.Fatalf("could not init the registry: %s", err)
		}
	})
}

func newOwner() string {
	return fmt.Sprintf("owner-%s.test", utils.RandomString(10))
}

func TestCreateAndLookup(t *testing.T) {
	needCouch(t)
	owner := newOwner()

	sp, err := filespace.Create(owner, "scratch")
	require.NoError(t, err)
	assert.Len(t, sp.DocID, 32)
	assert.Equal(t, owner, sp.Owner)

	found, err := filespace.ByName(owner, "scratch")
	require.NoError(t, err)
	assert.Equal(t, sp.DocID, found.DocID)

	byID, err := filespace.ByID(sp.DocID)
	require.NoError(t, err)
	assert.Equal(t, "scratch", byID.Name)

	_, err = filespace.ByName(owner, "no-such-space")
	assert.Equal(t, filespace.ErrNotFound, err)
}

func TestCreateValidations(t *testing.T) {
	needCouch(t)
	owner := newOwner()

	_, err := filespace.Create("", "scratch")
	assert.Equal(t, filespace.ErrInvalidOwner, err)

	_, err = filespace.Create(owner, "a/b")
	assert.Equal(t, vfs.ErrInvalidName, err)

	_, err = filespace.Create(owner, "scratch")
	require.NoError(t, err)
	_, err = filespace.Create(owner, "scratch")
	assert.Equal(t, filespace.ErrDuplicateName, err)

	// The same name is free for another owner.
	_, err = filespace.Create(newOwner(), "scratch")
	assert.NoError(t, err)
}

func TestProvisionDefaultIsIdempotent(t *testing.T) {
	needCouch(t)
	owner := newOwner()

	sp1, err := filespace.ProvisionDefault(owner)
	require.NoError(t, err)
	assert.Equal(t, consts.DefaultFileSpaceName, sp1.Name)

	sp2, err := filespace.ProvisionDefault(owner)
	require.NoError(t, err)
	assert.Equal(t, sp1.DocID, sp2.DocID)
}

func TestListIsOrderedByName(t *testing.T) {
	needCouch(t)
	owner := newOwner()

	for _, name := range []string{"zeta", "alpha", "medium"} {
		_, err := filespace.Create(owner, name)
		require.NoError(t, err)
	}

	spaces, err := filespace.List(owner)
	require.NoError(t, err)
	names := make([]string, len(spaces))
	for i, sp := range spaces {
		names[i] = sp.Name
	}
	assert.Equal(t, []string{"alpha", "medium", "zeta"}, names)
}

func TestRename(t *testing.T) {
	needCouch(t)
	owner := newOwner()

	sp, err := filespace.Create(owner, "before")
	require.NoError(t, err)
	_, err = filespace.Create(owner, "taken")
	require.NoError(t, err)

	_, err = filespace.Rename(sp, "taken")
	assert.Equal(t, filespace.ErrDuplicateName, err)

	renamed, err := filespace.Rename(sp, "after")
	require.NoError(t, err)
	assert.Equal(t, "after", renamed.Name)

	_, err = filespace.ByName(owner, "before")
	assert.Equal(t, filespace.ErrNotFound, err)
}

func TestVFSRoundTrip(t *testing.T) {
	needCouch(t)
	owner := newOwner()

	sp, err := filespace.ProvisionDefault(owner)
	require.NoError(t, err)
	fs, err := filespace.VFS(sp)
	require.NoError(t, err)

	dir, err := fs.CreateDir("", "notes")
	require.NoError(t, err)
	file, err := fs.CreateFile(dir.DocID, "todo.txt", []byte("ship it"), "")
	require.NoError(t, err)

	// A fresh handle on the same filespace sees the same tree and content.
	fs2, err := filespace.VFS(sp)
	require.NoError(t, err)
	found, err := fs2.NodeByPath("/notes/todo.txt")
	require.NoError(t, err)
	assert.Equal(t, file.DocID, found.DocID)
	content, err := fs2.Content(found)
	require.NoError(t, err)
	assert.Equal(t, []byte("ship it"), content)
}

func TestDestroy(t *testing.T) {
	needCouch(t)
	owner := newOwner()

	sp, err := filespace.Create(owner, "doomed")
	require.NoError(t, err)
	fs, err := filespace.VFS(sp)
	require.NoError(t, err)
	_, err = fs.CreateFile("", "data.bin", []byte{0x01}, "")
	require.NoError(t, err)

	require.NoError(t, filespace.Destroy(sp))

	_, err = filespace.ByID(sp.DocID)
	assert.Equal(t, filespace.ErrNotFound, err)
	_, err = fs.NodeByPath("/data.bin")
	assert.Equal(t, vfs.ErrNotFound, err)
}
