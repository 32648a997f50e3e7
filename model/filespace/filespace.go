// Package filespace implements the registry of filespaces. A filespace is an
// isolated virtual filesystem attached to an agent; the registry tracks
// which filespaces exist, to whom they belong, and builds the VFS handle
// used to operate on their nodes.
package filespace

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/gobii-ai/gobii-platform-sub000/model/vfs"
	"github.com/gobii-ai/gobii-platform-sub000/model/vfs/vfsafero"
	"github.com/gobii-ai/gobii-platform-sub000/model/vfs/vfsswift"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/config"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/consts"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/couchdb"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/couchdb/mango"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/lock"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/prefixer"
)

var (
	// ErrNotFound is used when no filespace matches the request
	ErrNotFound = errors.New("filespace not found")
	// ErrDuplicateName is used when the owner already has a filespace with
	// this name
	ErrDuplicateName = errors.New("a filespace with this name already exists for this owner")
	// ErrInvalidOwner is used when the owner identifier is empty
	ErrInvalidOwner = errors.New("invalid owner identifier")
)

var registryIndexes = []*mango.Index{
	mango.IndexOnFields(consts.FileSpaces, "filespaces-by-owner", []string{"owner", "name"}),
}

var listSort = mango.MakeSortsFromFields([]string{"owner", "name"})

// FileSpace is the registry document of one filespace. It implements the
// couchdb.Doc interface and lives in the stack-scoped registry database.
type FileSpace struct {
	DocID     string    `json:"_id,omitempty"`
	DocRev    string    `json:"_rev,omitempty"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ID returns the filespace identifier
func (sp *FileSpace) ID() string { return sp.DocID }

// Rev returns the filespace revision
func (sp *FileSpace) Rev() string { return sp.DocRev }

// DocType returns the filespace document type
func (sp *FileSpace) DocType() string { return consts.FileSpaces }

// SetID changes the filespace identifier
func (sp *FileSpace) SetID(id string) { sp.DocID = id }

// SetRev changes the filespace revision
func (sp *FileSpace) SetRev(rev string) { sp.DocRev = rev }

// Clone implements couchdb.Doc
func (sp *FileSpace) Clone() couchdb.Doc {
	cloned := *sp
	return &cloned
}

// Prefixer returns the tenant database handle of the filespace owner. All
// the filespaces of an owner share the same nodes database, the rows are
// told apart by their filespace_id field.
func (sp *FileSpace) Prefixer() prefixer.Prefixer {
	return prefixer.NewPrefixer(sp.Owner, sp.Owner)
}

func newFileSpaceID() string {
	return hex.EncodeToString(uuid.Must(uuid.NewV4()).Bytes())
}

func registryLock() lock.ErrorRWLocker {
	return config.Lock().ReadWrite(prefixer.GlobalPrefixer(), "filespaces")
}

// InitRegistry prepares the registry database and its indexes.
func InitRegistry() error {
	if err := couchdb.CreateDB(couchdb.GlobalDB, consts.FileSpaces); err != nil && !couchdb.IsFileExists(err) {
		return err
	}
	return couchdb.DefineIndexes(couchdb.GlobalDB, registryIndexes)
}

// Create registers a new filespace for the given owner. The name must be
// unique among the owner's filespaces. It also prepares the owner's nodes
// database, so the filespace is usable as soon as it is returned.
func Create(owner, name string) (*FileSpace, error) {
	if owner == "" {
		return nil, ErrInvalidOwner
	}
	if err := vfs.CheckName(name); err != nil {
		return nil, err
	}

	mu := registryLock()
	if lockerr := mu.Lock(); lockerr != nil {
		return nil, lockerr
	}
	defer mu.Unlock()

	_, err := byName(owner, name)
	if err == nil {
		return nil, ErrDuplicateName
	}
	if err != ErrNotFound {
		return nil, err
	}

	now := time.Now()
	sp := &FileSpace{
		DocID:     newFileSpaceID(),
		Owner:     owner,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = couchdb.CreateNamedDocWithDB(couchdb.GlobalDB, sp); err != nil {
		return nil, err
	}
	if err = vfs.NewCouchdbIndexer(sp.Prefixer()).InitIndex(); err != nil {
		return nil, err
	}
	return sp, nil
}

// ProvisionDefault creates the default filespace of a new agent. It is
// idempotent: when the default filespace already exists, it is returned
// as is.
func ProvisionDefault(owner string) (*FileSpace, error) {
	sp, err := Create(owner, consts.DefaultFileSpaceName)
	if err == ErrDuplicateName {
		return ByName(owner, consts.DefaultFileSpaceName)
	}
	return sp, err
}

// ByID returns the filespace with the given identifier.
func ByID(id string) (*FileSpace, error) {
	sp := &FileSpace{}
	if err := couchdb.GetDoc(couchdb.GlobalDB, consts.FileSpaces, id, sp); err != nil {
		if couchdb.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sp, nil
}

// ByName returns the filespace of the given owner with the given name.
func ByName(owner, name string) (*FileSpace, error) {
	mu := registryLock()
	if lockerr := mu.RLock(); lockerr != nil {
		return nil, lockerr
	}
	defer mu.RUnlock()
	return byName(owner, name)
}

func byName(owner, name string) (*FileSpace, error) {
	var docs []*FileSpace
	req := &couchdb.FindRequest{
		UseIndex: "filespaces-by-owner",
		Selector: mango.And(
			mango.Equal("owner", owner),
			mango.Equal("name", name),
		),
		Limit: 1,
	}
	err := couchdb.FindDocs(couchdb.GlobalDB, consts.FileSpaces, req, &docs)
	if err != nil {
		if couchdb.IsNoDatabaseError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

// List returns the filespaces of the given owner, ordered by name.
func List(owner string) ([]*FileSpace, error) {
	var out []*FileSpace
	skip := 0
	limit := 100
	for {
		var docs []*FileSpace
		req := &couchdb.FindRequest{
			UseIndex: "filespaces-by-owner",
			Selector: mango.Equal("owner", owner),
			Sort:     listSort,
			Limit:    limit,
			Skip:     skip,
		}
		err := couchdb.FindDocs(couchdb.GlobalDB, consts.FileSpaces, req, &docs)
		if err != nil {
			if couchdb.IsNoDatabaseError(err) {
				return nil, nil
			}
			return nil, err
		}
		out = append(out, docs...)
		if len(docs) < limit {
			return out, nil
		}
		skip += len(docs)
	}
}

// Rename changes the name of a filespace. The new name must be unique among
// the owner's filespaces.
func Rename(sp *FileSpace, newName string) (*FileSpace, error) {
	if err := vfs.CheckName(newName); err != nil {
		return nil, err
	}

	mu := registryLock()
	if lockerr := mu.Lock(); lockerr != nil {
		return nil, lockerr
	}
	defer mu.Unlock()

	if newName == sp.Name {
		return sp, nil
	}
	_, err := byName(sp.Owner, newName)
	if err == nil {
		return nil, ErrDuplicateName
	}
	if err != ErrNotFound {
		return nil, err
	}

	cloned := sp.Clone().(*FileSpace)
	cloned.Name = newName
	cloned.UpdatedAt = time.Now()
	if err = couchdb.UpdateDoc(couchdb.GlobalDB, cloned); err != nil {
		return nil, err
	}
	return cloned, nil
}

// Destroy permanently removes a filespace: its node documents, its blobs,
// and its registry entry. This is not the soft-delete used inside the tree,
// there is no way back.
func Destroy(sp *FileSpace) error {
	blobs, err := blobStore(sp.Prefixer())
	if err != nil {
		return err
	}

	// Take the same lock as the VFS operations, in its long-operation
	// flavor: erasing a big filespace can outlive the lock expiration.
	mu := config.Lock().LongOperation(sp.Prefixer(), "vfs-"+sp.DocID)
	if lockerr := mu.Lock(); lockerr != nil {
		return lockerr
	}
	defer mu.Unlock()

	if _, err = vfs.EraseSpace(sp.Prefixer(), sp.DocID); err != nil {
		return err
	}
	if err = blobs.Purge(sp.DocID + "/"); err != nil {
		return err
	}
	return couchdb.DeleteDoc(couchdb.GlobalDB, sp)
}

// VFS builds the virtual filesystem handle of the given filespace, wired on
// the configured indexer, blob store and advisory locks.
func VFS(sp *FileSpace) (*vfs.FS, error) {
	db := sp.Prefixer()
	blobs, err := blobStore(db)
	if err != nil {
		return nil, err
	}
	index := vfs.NewCouchdbIndexer(db)
	mu := config.Lock().ReadWrite(db, "vfs-"+sp.DocID)
	return vfs.New(db, sp.DocID, index, blobs, mu), nil
}

func blobStore(db prefixer.Prefixer) (vfs.BlobStore, error) {
	fsURL := config.FsURL()
	switch fsURL.Scheme {
	case "file", "mem":
		return vfsafero.New(fsURL)
	case "swift":
		conn := config.GetSwiftConnection()
		return vfsswift.New(context.Background(), conn, "gobii-"+db.DBPrefix())
	}
	return nil, fmt.Errorf("filespace: unknown storage provider %q", fsURL.Scheme)
}
