package vfs

import (
	"path"
	"strings"
	"time"

	"github.com/gobii-ai/gobii-platform-sub000/pkg/consts"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/couchdb"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/couchdb/mango"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/prefixer"
)

// bulkBatchSize is the number of rows fetched and updated per _bulk_docs
// round-trip during set-oriented passes.
const bulkBatchSize = 256

// maxBulkIterations bounds the number of bulk rounds of a single pass, to
// avoid infinite loops on pathological collation cases.
const maxBulkIterations = 128

var nodeIndexes = []*mango.Index{
	mango.IndexOnFields(consts.FileNodes, "nodes-by-path", []string{"filespace_id", "path"}),
	mango.IndexOnFields(consts.FileNodes, "nodes-by-parent", []string{"filespace_id", "parent_id", "type", "name"}),
}

var childrenSort = mango.MakeSortsFromFields([]string{"filespace_id", "parent_id", "type", "name"})

type couchdbIndexer struct {
	db prefixer.Prefixer
}

// NewCouchdbIndexer returns an Indexer backed by the nodes database of the
// given tenant.
func NewCouchdbIndexer(db prefixer.Prefixer) Indexer {
	return &couchdbIndexer{db: db}
}

func (c *couchdbIndexer) InitIndex() error {
	if err := couchdb.CreateDB(c.db, consts.FileNodes); err != nil && !couchdb.IsFileExists(err) {
		return err
	}
	return couchdb.DefineIndexes(c.db, nodeIndexes)
}

func (c *couchdbIndexer) CreateNode(n *Node) error {
	return normalizeError(couchdb.CreateNamedDocWithDB(c.db, n))
}

func (c *couchdbIndexer) UpdateNode(n *Node) error {
	return normalizeError(couchdb.UpdateDoc(c.db, n))
}

func (c *couchdbIndexer) NodeByID(spaceID, id string) (*Node, error) {
	doc := &Node{}
	if err := couchdb.GetDoc(c.db, consts.FileNodes, id, doc); err != nil {
		return nil, normalizeError(err)
	}
	// Documents from another filespace are invisible, the two trees only
	// share a database.
	if doc.FileSpaceID != spaceID {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (c *couchdbIndexer) NodeByPath(spaceID, pth string) (*Node, error) {
	if !path.IsAbs(pth) {
		return nil, ErrNotFound
	}
	var docs []*Node
	req := &couchdb.FindRequest{
		UseIndex: "nodes-by-path",
		Selector: mango.And(
			mango.Equal("filespace_id", spaceID),
			mango.Equal("path", path.Clean(pth)),
			mango.NotExists("deleted_at"),
		),
		Limit: 1,
	}
	if err := couchdb.FindDocs(c.db, consts.FileNodes, req, &docs); err != nil {
		return nil, normalizeError(err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

func (c *couchdbIndexer) Children(spaceID, parentID string) ([]*Node, error) {
	// The index collation puts "directory" before "file", so a single sorted
	// scan returns directories first, each group ordered by name.
	var out []*Node
	skip := 0
	for {
		var docs []*Node
		req := &couchdb.FindRequest{
			UseIndex: "nodes-by-parent",
			Selector: mango.And(
				mango.Equal("filespace_id", spaceID),
				mango.Equal("parent_id", parentID),
				mango.NotExists("deleted_at"),
			),
			Sort:  childrenSort,
			Limit: bulkBatchSize,
			Skip:  skip,
		}
		if err := couchdb.FindDocs(c.db, consts.FileNodes, req, &docs); err != nil {
			return nil, normalizeError(err)
		}
		out = append(out, docs...)
		if len(docs) < bulkBatchSize {
			return out, nil
		}
		skip += len(docs)
	}
}

func (c *couchdbIndexer) HasLiveChild(spaceID, parentID, name string) (bool, error) {
	return c.hasLiveNamed(mango.And(
		mango.Equal("filespace_id", spaceID),
		mango.Equal("parent_id", parentID),
		mango.Equal("name", name),
		mango.NotExists("deleted_at"),
	))
}

func (c *couchdbIndexer) HasLiveRoot(spaceID, name string) (bool, error) {
	return c.hasLiveNamed(mango.And(
		mango.Equal("filespace_id", spaceID),
		mango.Equal("parent_id", consts.RootParentID),
		mango.Equal("name", name),
		mango.NotExists("deleted_at"),
	))
}

func (c *couchdbIndexer) hasLiveNamed(sel mango.Filter) (bool, error) {
	var docs []*Node
	req := &couchdb.FindRequest{
		UseIndex: "nodes-by-parent",
		Selector: sel,
		Limit:    1,
		Fields:   []string{"_id"},
	}
	if err := couchdb.FindDocs(c.db, consts.FileNodes, req, &docs); err != nil {
		if couchdb.IsNoDatabaseError(err) {
			return false, nil
		}
		return false, normalizeError(err)
	}
	return len(docs) > 0, nil
}

// RewriteDescendantPaths walks the path range under oldpath in batches and
// rewrites each cached path to start with newpath. The range scan can return
// rows that are not real descendants because of the CouchDB string collation
// (/work/ < /WORK/aaa < /work/bbb < /work0), so each row is re-checked
// against the raw prefix before being touched.
func (c *couchdbIndexer) RewriteDescendantPaths(spaceID, oldpath, newpath string) (int64, error) {
	if oldpath == newpath {
		return 0, nil
	}

	var count int64
	docs := make([]interface{}, 0, bulkBatchSize)

	start := oldpath + "/"
	stop := oldpath + "0" // 0 is the next ascii character after /
	for i := 0; i < maxBulkIterations; i++ {
		var children []*Node
		req := &couchdb.FindRequest{
			UseIndex: "nodes-by-path",
			Selector: mango.And(
				mango.Equal("filespace_id", spaceID),
				mango.Gt("path", start),
				mango.Lt("path", stop),
			),
			Limit: bulkBatchSize,
		}
		if err := couchdb.FindDocs(c.db, consts.FileNodes, req, &children); err != nil {
			return count, normalizeError(err)
		}
		if len(children) == 0 {
			break
		}
		start = children[len(children)-1].Fullpath
		for _, child := range children {
			if !strings.HasPrefix(child.Fullpath, oldpath+"/") {
				continue
			}
			child.Fullpath = path.Join(newpath, child.Fullpath[len(oldpath)+1:])
			child.UpdatedAt = time.Now()
			docs = append(docs, child)
		}
		if err := couchdb.BulkUpdateDocs(c.db, consts.FileNodes, docs); err != nil {
			return count, normalizeError(err)
		}
		count += int64(len(docs))
		if len(children) < bulkBatchSize {
			break
		}
		docs = docs[:0]
	}

	return count, nil
}

func (c *couchdbIndexer) TrashDescendants(spaceID, dirpath string, when time.Time) (int64, error) {
	return c.cascadeDescendants(spaceID, dirpath, mango.NotExists("deleted_at"), func(n *Node) {
		n.DeletedAt = &when
		n.UpdatedAt = when
	})
}

func (c *couchdbIndexer) RestoreDescendants(spaceID, dirpath string) (int64, error) {
	now := time.Now()
	return c.cascadeDescendants(spaceID, dirpath, mango.Exists("deleted_at"), func(n *Node) {
		n.DeletedAt = nil
		n.UpdatedAt = now
	})
}

// cascadeDescendants applies change to every node under dirpath matching the
// state filter, in the same batched range scan as RewriteDescendantPaths.
func (c *couchdbIndexer) cascadeDescendants(spaceID, dirpath string, state mango.Filter, change func(n *Node)) (int64, error) {
	var count int64
	docs := make([]interface{}, 0, bulkBatchSize)

	start := dirpath + "/"
	stop := dirpath + "0"
	for i := 0; i < maxBulkIterations; i++ {
		var children []*Node
		req := &couchdb.FindRequest{
			UseIndex: "nodes-by-path",
			Selector: mango.And(
				mango.Equal("filespace_id", spaceID),
				mango.Gt("path", start),
				mango.Lt("path", stop),
				state,
			),
			Limit: bulkBatchSize,
		}
		if err := couchdb.FindDocs(c.db, consts.FileNodes, req, &children); err != nil {
			return count, normalizeError(err)
		}
		if len(children) == 0 {
			break
		}
		start = children[len(children)-1].Fullpath
		for _, child := range children {
			if !strings.HasPrefix(child.Fullpath, dirpath+"/") {
				continue
			}
			change(child)
			docs = append(docs, child)
		}
		if err := couchdb.BulkUpdateDocs(c.db, consts.FileNodes, docs); err != nil {
			return count, normalizeError(err)
		}
		count += int64(len(docs))
		if len(children) < bulkBatchSize {
			break
		}
		docs = docs[:0]
	}

	return count, nil
}

// EraseSpace permanently removes every node document of a filespace. It is
// only called when the filespace itself is destroyed, the normal deletion
// path is the soft-delete cascade.
func EraseSpace(db prefixer.Prefixer, spaceID string) (int64, error) {
	var count int64
	for i := 0; i < maxBulkIterations; i++ {
		var nodes []*Node
		req := &couchdb.FindRequest{
			UseIndex: "nodes-by-path",
			Selector: mango.And(
				mango.Equal("filespace_id", spaceID),
				mango.Gt("path", ""),
			),
			Limit: bulkBatchSize,
		}
		if err := couchdb.FindDocs(db, consts.FileNodes, req, &nodes); err != nil {
			if couchdb.IsNoDatabaseError(err) {
				return count, nil
			}
			return count, normalizeError(err)
		}
		if len(nodes) == 0 {
			break
		}
		docs := make([]couchdb.Doc, len(nodes))
		for j, n := range nodes {
			docs[j] = n
		}
		if err := couchdb.BulkDeleteDocs(db, consts.FileNodes, docs); err != nil {
			return count, normalizeError(err)
		}
		count += int64(len(docs))
		if len(nodes) < bulkBatchSize {
			break
		}
	}
	return count, nil
}

// normalizeError maps the couchdb transport errors on the VFS error values.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	if couchdb.IsNotFoundError(err) {
		return ErrNotFound
	}
	if couchdb.IsConflictError(err) {
		return ErrConcurrentUpdate
	}
	return err
}

var _ Indexer = &couchdbIndexer{}
