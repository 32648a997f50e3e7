package vfs_test

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobii-ai/gobii-platform-sub000/model/vfs"
	"github.com/gobii-ai/gobii-platform-sub000/model/vfs/vfsafero"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/config"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/consts"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/couchdb"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/prefixer"
)

var testDB = prefixer.NewPrefixer("vfs-test", "vfs-test")

var (
	resetOnce  sync.Once
	spaceCount int64
)

// needCouch prepares the test database. These tests need a real CouchDB.
func needCouch(t *testing.T) {
	if testing.Short() {
		t.Skip("a couchdb is required for this test: test skipped due to the use of --short flag")
	}
	config.UseTestFile()
	resetOnce.Do(func() {
		if err := couchdb.ResetDB(testDB, consts.FileNodes); err != nil {
			t.Fatalf("could not reset the test database: %s", err)
		}
	})
}

func newTestFS(t *testing.T) *vfs.FS {
	t.Helper()
	return newTestFSWithBlobs(t, vfsafero.NewWithFs(afero.NewMemMapFs()))
}

func newTestFSWithBlobs(t *testing.T, blobs vfs.BlobStore) *vfs.FS {
	t.Helper()
	spaceID := fmt.Sprintf("%032d", atomic.AddInt64(&spaceCount, 1))
	index := vfs.NewCouchdbIndexer(testDB)
	require.NoError(t, index.InitIndex())
	mu := config.Lock().ReadWrite(testDB, "vfs-"+spaceID)
	return vfs.New(testDB, spaceID, index, blobs, mu)
}

var errBlobDown = errors.New("blob store is down")

// failingBlobStore refuses every operation, to exercise the error paths of
// the content handling.
type failingBlobStore struct{}

func (failingBlobStore) Put(key string, content []byte) error { return errBlobDown }
func (failingBlobStore) Get(key string) ([]byte, error)       { return nil, errBlobDown }
func (failingBlobStore) Delete(key string) error              { return errBlobDown }
func (failingBlobStore) Purge(prefix string) error            { return errBlobDown }

func TestCreateKeepsPathCacheConsistent(t *testing.T) {
	needCouch(t)
	fs := newTestFS(t)

	docs, err := fs.CreateDir("", "docs")
	require.NoError(t, err)
	assert.Equal(t, "/docs", docs.Fullpath)

	reports, err := fs.CreateDir(docs.DocID, "reports")
	require.NoError(t, err)
	assert.Equal(t, "/docs/reports", reports.Fullpath)

	file, err := fs.CreateFile(reports.DocID, "q3.json", []byte(`{"q":3}`), "")
	require.NoError(t, err)
	assert.Equal(t, "/docs/reports/q3.json", file.Fullpath)
	assert.Equal(t, "application/json", file.Mime)
	assert.Equal(t, int64(7), file.ByteSize)
	assert.NotEmpty(t, file.MD5Sum)

	// Without a usable extension, the content type falls back to the
	// default, and an explicit one always wins.
	blob, err := fs.CreateFile(reports.DocID, "raw", []byte{0x00}, "")
	require.NoError(t, err)
	assert.Equal(t, vfs.DefaultMime, blob.Mime)
	given, err := fs.CreateFile(reports.DocID, "notes.md", nil, "text/markdown")
	require.NoError(t, err)
	assert.Equal(t, "text/markdown", given.Mime)

	found, err := fs.NodeByPath("/docs/reports/q3.json")
	require.NoError(t, err)
	assert.Equal(t, file.DocID, found.DocID)

	content, err := fs.Content(found)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"q":3}`), content)
}

func TestCreateValidations(t *testing.T) {
	needCouch(t)
	fs := newTestFS(t)

	_, err := fs.CreateDir("", "a/b")
	assert.Equal(t, vfs.ErrInvalidName, err)

	_, err = fs.CreateDir("no-such-parent", "child")
	assert.Equal(t, vfs.ErrInvalidParent, err)

	file, err := fs.CreateFile("", "note.txt", []byte("hi"), "")
	require.NoError(t, err)
	_, err = fs.CreateDir(file.DocID, "child")
	assert.Equal(t, vfs.ErrInvalidParent, err)

	dir, err := fs.CreateDir("", "tmp")
	require.NoError(t, err)
	_, err = fs.Trash(dir)
	require.NoError(t, err)
	_, err = fs.CreateFile(dir.DocID, "orphan.txt", nil, "")
	assert.Equal(t, vfs.ErrInvalidParent, err)
}

func TestLiveNameUniqueness(t *testing.T) {
	needCouch(t)
	fs := newTestFS(t)

	dir, err := fs.CreateDir("", "projects")
	require.NoError(t, err)

	_, err = fs.CreateFile(dir.DocID, "plan.md", nil, "")
	require.NoError(t, err)
	_, err = fs.CreateDir(dir.DocID, "plan.md")
	assert.Equal(t, vfs.ErrNameConflict, err)

	// Root-level names form their own uniqueness scope.
	_, err = fs.CreateDir("", "projects")
	assert.Equal(t, vfs.ErrNameConflict, err)

	// The same name can live under different parents.
	other, err := fs.CreateDir("", "archive")
	require.NoError(t, err)
	_, err = fs.CreateFile(other.DocID, "plan.md", nil, "")
	assert.NoError(t, err)

	// A trashed node frees its name.
	doomed, err := fs.CreateFile(dir.DocID, "draft.md", nil, "")
	require.NoError(t, err)
	_, err = fs.Trash(doomed)
	require.NoError(t, err)
	_, err = fs.CreateFile(dir.DocID, "draft.md", nil, "")
	assert.NoError(t, err)
}

func TestCrossFilespaceNamesDoNotConflict(t *testing.T) {
	needCouch(t)
	fs1 := newTestFS(t)
	fs2 := newTestFS(t)

	_, err := fs1.CreateDir("", "workspace")
	require.NoError(t, err)
	_, err = fs2.CreateDir("", "workspace")
	assert.NoError(t, err)
}

func TestRenameDirRewritesDescendantPaths(t *testing.T) {
	needCouch(t)
	fs := newTestFS(t)

	a, err := fs.CreateDir("", "a")
	require.NoError(t, err)
	b, err := fs.CreateDir(a.DocID, "b")
	require.NoError(t, err)
	c, err := fs.CreateFile(b.DocID, "c.txt", []byte("c"), "")
	require.NoError(t, err)
	d, err := fs.CreateFile(a.DocID, "d.txt", nil, "")
	require.NoError(t, err)

	renamed, err := fs.Rename(a, "z")
	require.NoError(t, err)
	assert.Equal(t, "/z", renamed.Fullpath)

	for id, want := range map[string]string{
		b.DocID: "/z/b",
		c.DocID: "/z/b/c.txt",
		d.DocID: "/z/d.txt",
	} {
		n, err := fs.NodeByID(id)
		require.NoError(t, err)
		assert.Equal(t, want, n.Fullpath)
	}

	_, err = fs.NodeByPath("/a/b/c.txt")
	assert.Equal(t, vfs.ErrNotFound, err)
	found, err := fs.NodeByPath("/z/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, c.DocID, found.DocID)
}

func TestMoveDirAndCyclePrevention(t *testing.T) {
	needCouch(t)
	fs := newTestFS(t)

	x, err := fs.CreateDir("", "x")
	require.NoError(t, err)
	sub, err := fs.CreateDir(x.DocID, "sub")
	require.NoError(t, err)
	leaf, err := fs.CreateFile(sub.DocID, "leaf.txt", nil, "")
	require.NoError(t, err)
	y, err := fs.CreateDir("", "y")
	require.NoError(t, err)

	// Moving a directory inside itself or inside its own subtree is refused,
	// and the tree is left untouched.
	_, err = fs.Move(x, x.DocID, nil)
	assert.Equal(t, vfs.ErrCycleDetected, err)
	_, err = fs.Move(x, sub.DocID, nil)
	assert.Equal(t, vfs.ErrCycleDetected, err)
	unchanged, err := fs.NodeByID(x.DocID)
	require.NoError(t, err)
	assert.Equal(t, "/x", unchanged.Fullpath)

	moved, err := fs.Move(sub, y.DocID, nil)
	require.NoError(t, err)
	assert.Equal(t, "/y/sub", moved.Fullpath)
	n, err := fs.NodeByID(leaf.DocID)
	require.NoError(t, err)
	assert.Equal(t, "/y/sub/leaf.txt", n.Fullpath)
}

func TestTrashAndRestoreCascade(t *testing.T) {
	needCouch(t)
	fs := newTestFS(t)

	root, err := fs.CreateDir("", "work")
	require.NoError(t, err)
	sub, err := fs.CreateDir(root.DocID, "sub")
	require.NoError(t, err)
	_, err = fs.CreateFile(sub.DocID, "one.txt", nil, "")
	require.NoError(t, err)
	_, err = fs.CreateFile(root.DocID, "two.txt", nil, "")
	require.NoError(t, err)

	affected, err := fs.Trash(root)
	require.NoError(t, err)
	assert.Equal(t, int64(4), affected)

	_, err = fs.NodeByPath("/work/sub/one.txt")
	assert.Equal(t, vfs.ErrNotFound, err)
	children, err := fs.RootChildren()
	require.NoError(t, err)
	assert.Empty(t, children)

	// Trashing again affects nothing more.
	trashedRoot, err := fs.NodeByID(root.DocID)
	require.NoError(t, err)
	affected, err = fs.Trash(trashedRoot)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)

	affected, err = fs.Restore(trashedRoot)
	require.NoError(t, err)
	assert.Equal(t, int64(4), affected)

	found, err := fs.NodeByPath("/work/sub/one.txt")
	require.NoError(t, err)
	assert.False(t, found.Trashed())
}

func TestRetrashReconcilesLiveStragglers(t *testing.T) {
	needCouch(t)
	fs := newTestFS(t)

	dir, err := fs.CreateDir("", "work")
	require.NoError(t, err)
	file, err := fs.CreateFile(dir.DocID, "left.txt", nil, "")
	require.NoError(t, err)

	affected, err := fs.Trash(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	// Resurrect the descendant behind the back of the VFS, as if a prior
	// cascade had been interrupted halfway.
	straggler, err := fs.NodeByID(file.DocID)
	require.NoError(t, err)
	require.True(t, straggler.Trashed())
	straggler.DeletedAt = nil
	require.NoError(t, couchdb.UpdateDoc(testDB, straggler))

	// Trashing the already trashed directory again re-marks the straggler
	// and counts only it.
	trashedDir, err := fs.NodeByID(dir.DocID)
	require.NoError(t, err)
	affected, err = fs.Trash(trashedDir)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	found, err := fs.NodeByID(file.DocID)
	require.NoError(t, err)
	assert.True(t, found.Trashed())
}

func TestRestoreUnderTrashedAncestor(t *testing.T) {
	needCouch(t)
	fs := newTestFS(t)

	dir, err := fs.CreateDir("", "vault")
	require.NoError(t, err)
	file, err := fs.CreateFile(dir.DocID, "keep.txt", nil, "")
	require.NoError(t, err)

	affected, err := fs.Trash(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	// Restoring only the child is permitted: it comes back live while its
	// parent stays trashed, so it remains invisible to traversal.
	trashedFile, err := fs.NodeByID(file.DocID)
	require.NoError(t, err)
	affected, err = fs.Restore(trashedFile)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	restored, err := fs.NodeByID(file.DocID)
	require.NoError(t, err)
	assert.False(t, restored.Trashed())
	parent, err := fs.NodeByID(dir.DocID)
	require.NoError(t, err)
	assert.True(t, parent.Trashed())
	children, err := fs.RootChildren()
	require.NoError(t, err)
	assert.Empty(t, children)

	// Restoring the parent affects only the parent and makes the subtree
	// reachable again.
	affected, err = fs.Restore(parent)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	children, err = fs.RootChildren()
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, dir.DocID, children[0].DocID)
}

func TestBlobFailureSurfacesAsStorageError(t *testing.T) {
	needCouch(t)
	fs := newTestFSWithBlobs(t, failingBlobStore{})

	_, err := fs.CreateFile("", "doomed.txt", []byte("x"), "")
	require.Error(t, err)
	serr, ok := vfs.IsStorageError(err)
	require.True(t, ok)
	assert.ErrorIs(t, serr.Err, errBlobDown)
	assert.NotEmpty(t, serr.Key)

	// The metadata must not have been committed.
	_, err = fs.NodeByPath("/doomed.txt")
	assert.Equal(t, vfs.ErrNotFound, err)

	// Without content the blob store is never touched.
	empty, err := fs.CreateFile("", "empty.txt", nil, "")
	require.NoError(t, err)
	assert.Empty(t, empty.ContentKey)
}

func TestRenameAndTrashInOnePatch(t *testing.T) {
	needCouch(t)
	fs := newTestFS(t)

	a, err := fs.CreateDir("", "a")
	require.NoError(t, err)
	b, err := fs.CreateDir(a.DocID, "b")
	require.NoError(t, err)
	c, err := fs.CreateFile(b.DocID, "c.txt", nil, "")
	require.NoError(t, err)

	// Renaming and trashing in the same patch: the descendants must end up
	// both trashed and under the new path.
	newName := "z"
	trashed := true
	patched, err := fs.ModifyNode(a, &vfs.DocPatch{Name: &newName, Trashed: &trashed})
	require.NoError(t, err)
	assert.Equal(t, "/z", patched.Fullpath)
	assert.True(t, patched.Trashed())

	for id, want := range map[string]string{
		b.DocID: "/z/b",
		c.DocID: "/z/b/c.txt",
	} {
		n, err := fs.NodeByID(id)
		require.NoError(t, err)
		assert.Equal(t, want, n.Fullpath)
		assert.True(t, n.Trashed())
	}

	_, err = fs.Restore(patched)
	require.NoError(t, err)
	found, err := fs.NodeByPath("/z/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, c.DocID, found.DocID)
}

func TestObjectKeyIsStableAcrossRenames(t *testing.T) {
	needCouch(t)
	fs := newTestFS(t)

	file, err := fs.CreateFile("", "original.txt", []byte("payload"), "")
	require.NoError(t, err)
	key := file.ContentKey
	require.NotEmpty(t, key)
	assert.Equal(t, vfs.ObjectKey(fs.SpaceID(), file.DocID, "original.txt"), key)

	renamed, err := fs.Rename(file, "renamed.txt")
	require.NoError(t, err)
	assert.Equal(t, key, renamed.ContentKey)

	dir, err := fs.CreateDir("", "elsewhere")
	require.NoError(t, err)
	moved, err := fs.Move(renamed, dir.DocID, nil)
	require.NoError(t, err)
	assert.Equal(t, key, moved.ContentKey)

	content, err := fs.Content(moved)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), content)
}

func TestChildrenOrdering(t *testing.T) {
	needCouch(t)
	fs := newTestFS(t)

	for _, name := range []string{"b.txt", "a.txt"} {
		_, err := fs.CreateFile("", name, nil, "")
		require.NoError(t, err)
	}
	for _, name := range []string{"zdir", "ydir"} {
		_, err := fs.CreateDir("", name)
		require.NoError(t, err)
	}

	children, err := fs.RootChildren()
	require.NoError(t, err)
	names := make([]string, len(children))
	for i, child := range children {
		names[i] = child.Name()
	}
	assert.Equal(t, []string{"ydir", "zdir", "a.txt", "b.txt"}, names)
}

func TestFsckReportsCorruptedPathCache(t *testing.T) {
	needCouch(t)
	fs := newTestFS(t)

	dir, err := fs.CreateDir("", "sane")
	require.NoError(t, err)
	file, err := fs.CreateFile(dir.DocID, "ok.txt", nil, "")
	require.NoError(t, err)

	issues, err := vfs.Fsck(testDB, fs.SpaceID())
	require.NoError(t, err)
	assert.Empty(t, issues)

	// Corrupt the cached path behind the back of the VFS.
	corrupted, err := fs.NodeByID(file.DocID)
	require.NoError(t, err)
	corrupted.Fullpath = "/somewhere/else.txt"
	require.NoError(t, couchdb.UpdateDoc(testDB, corrupted))

	issues, err = vfs.Fsck(testDB, fs.SpaceID())
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, vfs.IssueBadPathCache, issues[0].Type)
	assert.Equal(t, file.DocID, issues[0].NodeID)
}
