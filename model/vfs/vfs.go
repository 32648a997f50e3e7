// Package vfs is the agent virtual filesystem: a hierarchical namespace of
// directories and files that each agent uses as durable working storage. It
// maintains a denormalized path cache consistent with the parent-pointer
// tree, cascades soft-delete and restore over subtrees, prevents cycles, and
// enforces name uniqueness among live siblings and among live root-level
// nodes.
//
// The file contents themselves live in an external blob store; this layer
// only computes and validates the metadata around them.
package vfs

import (
	"crypto/md5"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/gobii-ai/gobii-platform-sub000/pkg/consts"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/lock"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/logger"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/metrics"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/prefixer"
)

// DefaultMime is the content type used when none can be derived from the
// file name.
const DefaultMime = "application/octet-stream"

// BlobStore is the interface of the external collaborator storing file
// contents. A failure on its side surfaces as a StorageError and never
// corrupts the node metadata.
type BlobStore interface {
	Put(key string, content []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	// Purge removes every object whose key starts with the given prefix. It
	// is used when a whole filespace is destroyed.
	Purge(prefix string) error
}

// Indexer is the interface providing a common set of methods for the
// indexing layer of the VFS.
//
// The indexer is responsible for storing the node metadata and keeping the
// denormalized path cache queryable: lookups, live-name uniqueness probes,
// and the set-oriented bulk passes used by moves and cascades.
type Indexer interface {
	InitIndex() error

	// CreateNode adds a new node document in the index.
	CreateNode(n *Node) error
	// UpdateNode saves the new version of a node document.
	UpdateNode(n *Node) error

	// NodeByID returns the node with the given identifier in the given
	// filespace, trashed or not.
	NodeByID(spaceID, id string) (*Node, error)
	// NodeByPath returns the live node with the given path.
	NodeByPath(spaceID, pth string) (*Node, error)
	// Children returns the live children of the given parent, directories
	// first, then ordered by name. An empty parentID selects the root level.
	Children(spaceID, parentID string) ([]*Node, error)

	// HasLiveChild returns whether a live node with this name exists under
	// the given directory.
	HasLiveChild(spaceID, parentID, name string) (bool, error)
	// HasLiveRoot returns whether a live root-level node with this name
	// exists in the filespace.
	HasLiveRoot(spaceID, name string) (bool, error)

	// RewriteDescendantPaths rewrites, in a set-oriented pass, the cached
	// path of every node under oldpath so that it starts with newpath. It
	// returns the number of rewritten rows.
	RewriteDescendantPaths(spaceID, oldpath, newpath string) (int64, error)
	// TrashDescendants marks deleted, with the given timestamp, every
	// currently live node under dirpath. It returns the number of rows it
	// affected.
	TrashDescendants(spaceID, dirpath string, when time.Time) (int64, error)
	// RestoreDescendants clears the deleted state of every trashed node
	// under dirpath. It returns the number of rows it affected.
	RestoreDescendants(spaceID, dirpath string) (int64, error)
}

// DocPatch contains the modifiable fields of a node. A single patch can
// rename, move, and change the trash state at once.
type DocPatch struct {
	Name     *string
	ParentID *string
	Trashed  *bool
}

// FS gives access to the nodes of one filespace. Every structural mutation
// runs under the per-filespace advisory write lock, so that path rewrites,
// cascades and uniqueness checks are observed as one indivisible unit.
type FS struct {
	Indexer
	db      prefixer.Prefixer
	spaceID string
	blobs   BlobStore
	mu      lock.ErrorRWLocker
	log     logger.Logger
}

// New returns a FS for the given filespace, indexer and blob store.
func New(db prefixer.Prefixer, spaceID string, index Indexer, blobs BlobStore, mu lock.ErrorRWLocker) *FS {
	return &FS{
		Indexer: index,
		db:      db,
		spaceID: spaceID,
		blobs:   blobs,
		mu:      mu,
		log:     logger.WithDomain(db.DomainName()).WithNamespace("vfs"),
	}
}

// SpaceID returns the identifier of the filespace this FS operates on.
func (fs *FS) SpaceID() string { return fs.spaceID }

// Blobs returns the blob store collaborator of this filespace.
func (fs *FS) Blobs() BlobStore { return fs.blobs }

// CreateDir creates a directory under the given parent. An empty parentID
// creates it at the root level.
func (fs *FS) CreateDir(parentID, name string) (*Node, error) {
	return fs.createNode(parentID, consts.DirKind, name, nil, "")
}

// CreateFile creates a file node under the given parent and, when content is
// not nil, stores it in the blob store under the derived object key.
func (fs *FS) CreateFile(parentID, name string, content []byte, mimeType string) (*Node, error) {
	return fs.createNode(parentID, consts.FileKind, name, content, mimeType)
}

// createNode validates and persists a new node. The validation order is:
// name validity, then parent, then uniqueness. Content fields attached to a
// directory are stripped.
func (fs *FS) createNode(parentID, kind, name string, content []byte, mimeType string) (*Node, error) {
	if lockerr := fs.mu.Lock(); lockerr != nil {
		return nil, lockerr
	}
	defer fs.mu.Unlock()

	if err := CheckName(name); err != nil {
		return nil, err
	}

	parentPath, err := fs.resolveParent(parentID)
	if err != nil {
		return nil, err
	}

	if err = fs.checkUniqueness(parentID, name); err != nil {
		return nil, err
	}

	var doc *Node
	if kind == consts.DirKind {
		// Directories never carry content.
		doc, err = NewDirNode(fs.spaceID, parentID, parentPath, name)
	} else {
		var sum []byte
		if content != nil {
			h := md5.Sum(content)
			sum = h[:]
		}
		doc, err = NewFileNode(fs.spaceID, parentID, parentPath, name,
			int64(len(content)), sum, detectMime(name, mimeType))
	}
	if err != nil {
		return nil, err
	}

	if !doc.IsDir() && content != nil {
		key := ObjectKey(fs.spaceID, doc.DocID, name)
		if err = fs.blobs.Put(key, content); err != nil {
			return nil, &StorageError{Key: key, Err: err}
		}
		doc.ContentKey = key
	}

	if err = fs.Indexer.CreateNode(doc); err != nil {
		return nil, err
	}
	metrics.VFSOpsCounter.WithLabelValues("create").Inc()
	fs.log.Debugf("created %s %s at %s", doc.Kind, doc.DocID, doc.Fullpath)
	return doc, nil
}

// Content returns the stored content of a file node.
func (fs *FS) Content(n *Node) ([]byte, error) {
	if n.IsDir() {
		return nil, ErrDirectoryContent
	}
	if n.ContentKey == "" {
		return nil, ErrNotFound
	}
	data, err := fs.blobs.Get(n.ContentKey)
	if err != nil {
		return nil, &StorageError{Key: n.ContentKey, Err: err}
	}
	return data, nil
}

// Rename changes the name of a node, leaving it under the same parent.
func (fs *FS) Rename(old *Node, newName string) (*Node, error) {
	return fs.ModifyNode(old, &DocPatch{Name: &newName})
}

// Move reparents a node, optionally renaming it at the same time.
func (fs *FS) Move(old *Node, newParentID string, newName *string) (*Node, error) {
	return fs.ModifyNode(old, &DocPatch{ParentID: &newParentID, Name: newName})
}

// ModifyNode applies a patch to a node: rename, move, trash or restore, in
// any combination. It re-runs the creation validations against the new
// location before committing.
//
// When a directory is renamed or moved, the cached path of every descendant
// is rewritten before any trash cascade requested by the same patch runs:
// the cascade locates descendants by their current cached path, so running
// it against stale paths would silently miss nodes. This ordering must never
// be reversed.
func (fs *FS) ModifyNode(old *Node, patch *DocPatch) (*Node, error) {
	if lockerr := fs.mu.Lock(); lockerr != nil {
		return nil, lockerr
	}
	defer fs.mu.Unlock()

	name := old.DocName
	if patch.Name != nil {
		name = *patch.Name
	}
	parentID := old.ParentID
	if patch.ParentID != nil {
		parentID = *patch.ParentID
	}
	wantTrashed := old.Trashed()
	if patch.Trashed != nil {
		wantTrashed = *patch.Trashed
	}

	if err := CheckName(name); err != nil {
		return nil, err
	}

	newpath := old.Fullpath
	if name != old.DocName || parentID != old.ParentID {
		parentPath, err := fs.resolveParent(parentID)
		if err != nil {
			return nil, err
		}
		if old.IsDir() && parentID != old.ParentID {
			if err = fs.checkNoCycle(old, parentID); err != nil {
				return nil, err
			}
		}
		if err = fs.checkUniqueness(parentID, name); err != nil {
			return nil, err
		}
		newpath = path.Join(parentPath, name)
	}

	now := time.Now()
	newdoc := old.Clone().(*Node)
	newdoc.DocName = name
	newdoc.ParentID = parentID
	newdoc.Fullpath = newpath
	newdoc.UpdatedAt = now

	trashing := wantTrashed && !old.Trashed()
	restoring := !wantTrashed && old.Trashed()
	if trashing {
		newdoc.DeletedAt = &now
	} else if restoring {
		newdoc.DeletedAt = nil
	}

	if err := fs.Indexer.UpdateNode(newdoc); err != nil {
		return nil, err
	}

	// The path rewrite runs first, the cascades below depend on it.
	if old.IsDir() && newpath != old.Fullpath {
		n, err := fs.Indexer.RewriteDescendantPaths(fs.spaceID, old.Fullpath, newpath)
		if err != nil {
			return nil, err
		}
		metrics.VFSCascadeRows.WithLabelValues("rewrite").Add(float64(n))
	}

	if old.IsDir() && trashing {
		n, err := fs.Indexer.TrashDescendants(fs.spaceID, newpath, now)
		if err != nil {
			return nil, err
		}
		metrics.VFSCascadeRows.WithLabelValues("trash").Add(float64(n))
	} else if old.IsDir() && restoring {
		n, err := fs.Indexer.RestoreDescendants(fs.spaceID, newpath)
		if err != nil {
			return nil, err
		}
		metrics.VFSCascadeRows.WithLabelValues("restore").Add(float64(n))
	}

	metrics.VFSOpsCounter.WithLabelValues("modify").Inc()
	fs.log.Debugf("modified %s %s: %s -> %s", newdoc.Kind, newdoc.DocID, old.Fullpath, newpath)
	return newdoc, nil
}

// Trash marks a node deleted and cascades to its live subtree. It returns
// the number of rows it affected. Trashing an already trashed node affects
// nothing further for that node but still reconciles any descendant left
// live by a partial prior operation.
func (fs *FS) Trash(old *Node) (int64, error) {
	if lockerr := fs.mu.Lock(); lockerr != nil {
		return 0, lockerr
	}
	defer fs.mu.Unlock()

	when := time.Now()
	var affected int64
	if !old.Trashed() {
		newdoc := old.Clone().(*Node)
		newdoc.DeletedAt = &when
		newdoc.UpdatedAt = when
		if err := fs.Indexer.UpdateNode(newdoc); err != nil {
			return 0, err
		}
		affected++
	}
	if old.IsDir() {
		n, err := fs.Indexer.TrashDescendants(fs.spaceID, old.Fullpath, when)
		if err != nil {
			return affected, err
		}
		affected += n
		metrics.VFSCascadeRows.WithLabelValues("trash").Add(float64(n))
	}
	metrics.VFSOpsCounter.WithLabelValues("trash").Inc()
	return affected, nil
}

// Restore clears the deleted state of a node and cascades to its trashed
// subtree. It returns the number of rows it affected. Restoring a node whose
// ancestor is still trashed is permitted, but the node stays unreachable
// through normal traversal until the ancestor is restored too.
func (fs *FS) Restore(old *Node) (int64, error) {
	if lockerr := fs.mu.Lock(); lockerr != nil {
		return 0, lockerr
	}
	defer fs.mu.Unlock()

	var affected int64
	if old.Trashed() {
		newdoc := old.Clone().(*Node)
		newdoc.DeletedAt = nil
		newdoc.UpdatedAt = time.Now()
		if err := fs.Indexer.UpdateNode(newdoc); err != nil {
			return 0, err
		}
		affected++
	}
	if old.IsDir() {
		n, err := fs.Indexer.RestoreDescendants(fs.spaceID, old.Fullpath)
		if err != nil {
			return affected, err
		}
		affected += n
		metrics.VFSCascadeRows.WithLabelValues("restore").Add(float64(n))
	}
	metrics.VFSOpsCounter.WithLabelValues("restore").Inc()
	return affected, nil
}

// NodeByID returns the node with the given identifier, trashed or not.
func (fs *FS) NodeByID(id string) (*Node, error) {
	if lockerr := fs.mu.RLock(); lockerr != nil {
		return nil, lockerr
	}
	defer fs.mu.RUnlock()
	return fs.Indexer.NodeByID(fs.spaceID, id)
}

// NodeByPath returns the live node with the given absolute path.
func (fs *FS) NodeByPath(pth string) (*Node, error) {
	if lockerr := fs.mu.RLock(); lockerr != nil {
		return nil, lockerr
	}
	defer fs.mu.RUnlock()
	return fs.Indexer.NodeByPath(fs.spaceID, pth)
}

// Children lists the live children of the given directory, directories
// first, then ordered by name.
func (fs *FS) Children(parent *Node) ([]*Node, error) {
	if lockerr := fs.mu.RLock(); lockerr != nil {
		return nil, lockerr
	}
	defer fs.mu.RUnlock()
	if !parent.IsDir() {
		return nil, ErrInvalidParent
	}
	return fs.Indexer.Children(fs.spaceID, parent.DocID)
}

// RootChildren lists the live root-level nodes of the filespace.
func (fs *FS) RootChildren() ([]*Node, error) {
	if lockerr := fs.mu.RLock(); lockerr != nil {
		return nil, lockerr
	}
	defer fs.mu.RUnlock()
	return fs.Indexer.Children(fs.spaceID, consts.RootParentID)
}

// resolveParent checks that the given parent can receive children and
// returns its path. An empty parentID designates the root level.
func (fs *FS) resolveParent(parentID string) (string, error) {
	if parentID == consts.RootParentID {
		return "/", nil
	}
	parent, err := fs.Indexer.NodeByID(fs.spaceID, parentID)
	if err != nil {
		if err == ErrNotFound {
			return "", ErrInvalidParent
		}
		return "", err
	}
	if !parent.IsDir() || parent.Trashed() {
		return "", ErrInvalidParent
	}
	return parent.Fullpath, nil
}

// checkNoCycle walks the ancestor chain of the proposed parent; if the node
// being moved appears in that chain, including as the parent itself, the
// move would create a cycle.
func (fs *FS) checkNoCycle(node *Node, parentID string) error {
	cur := parentID
	for depth := 0; cur != consts.RootParentID; depth++ {
		if depth >= maxTreeDepth {
			return ErrIllegalPath
		}
		if cur == node.DocID {
			return ErrCycleDetected
		}
		ancestor, err := fs.Indexer.NodeByID(fs.spaceID, cur)
		if err != nil {
			if err == ErrNotFound {
				return ErrInvalidParent
			}
			return err
		}
		cur = ancestor.ParentID
	}
	return nil
}

// checkUniqueness verifies the two live-name uniqueness scopes: among the
// children of a directory, or among the root-level nodes when parentID is
// empty. The two constraints are independent of each other.
func (fs *FS) checkUniqueness(parentID, name string) error {
	var exists bool
	var err error
	if parentID == consts.RootParentID {
		exists, err = fs.Indexer.HasLiveRoot(fs.spaceID, name)
	} else {
		exists, err = fs.Indexer.HasLiveChild(fs.spaceID, parentID, name)
	}
	if err != nil {
		return err
	}
	if exists {
		return ErrNameConflict
	}
	return nil
}

func detectMime(name, given string) string {
	if given != "" {
		return given
	}
	if byExt := mime.TypeByExtension(path.Ext(name)); byExt != "" {
		if i := strings.Index(byExt, ";"); i >= 0 {
			byExt = strings.TrimSpace(byExt[:i])
		}
		return byExt
	}
	return DefaultMime
}
