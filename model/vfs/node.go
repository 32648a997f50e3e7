package vfs

import (
	"encoding/hex"
	"path"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/gobii-ai/gobii-platform-sub000/pkg/consts"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/couchdb"
)

// ForbiddenNameChars is the list of forbidden characters in a node name.
const ForbiddenNameChars = "/\x00\n\r"

// maxTreeDepth is the maximum number of levels allowed when walking an
// ancestor chain.
const maxTreeDepth = 512

// Node is a struct containing all the informations about a file or a
// directory inside a filespace. It implements the couchdb.Doc interface.
type Node struct {
	// Kind of node, directory or file. Stored as "type" to (de)serialize and
	// filter the data from couch.
	Kind string `json:"type"`
	// Qualified node identifier
	DocID string `json:"_id,omitempty"`
	// Node revision
	DocRev string `json:"_rev,omitempty"`
	// The filespace this node belongs to
	FileSpaceID string `json:"filespace_id"`
	// Parent directory identifier, empty for root-level nodes
	ParentID string `json:"parent_id"`
	// Node name
	DocName string `json:"name"`
	// Cached absolute path inside the filespace. It always equals the
	// "/"-joined sequence of ancestor names from the root to this node.
	Fullpath string `json:"path"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// DeletedAt is nil for a live node, and holds the trash timestamp for a
	// soft-deleted one. A single field keeps the two states mutually
	// exclusive.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Content fields, for files only
	ContentKey string `json:"content_key,omitempty"`
	ByteSize   int64  `json:"size,string,omitempty"` // Serialized in JSON as a string, because JS has some issues with big numbers
	MD5Sum     []byte `json:"md5sum,omitempty"`
	Mime       string `json:"mime,omitempty"`
}

// ID returns the node qualified identifier
func (n *Node) ID() string { return n.DocID }

// Rev returns the node revision
func (n *Node) Rev() string { return n.DocRev }

// DocType returns the node document type
func (n *Node) DocType() string { return consts.FileNodes }

// SetID changes the node qualified identifier
func (n *Node) SetID(id string) { n.DocID = id }

// SetRev changes the node revision
func (n *Node) SetRev(rev string) { n.DocRev = rev }

// Clone implements couchdb.Doc
func (n *Node) Clone() couchdb.Doc {
	cloned := *n
	cloned.MD5Sum = make([]byte, len(n.MD5Sum))
	copy(cloned.MD5Sum, n.MD5Sum)
	if n.DeletedAt != nil {
		tmp := *n.DeletedAt
		cloned.DeletedAt = &tmp
	}
	return &cloned
}

// Name returns the base name of the node
func (n *Node) Name() string { return n.DocName }

// IsDir returns whether or not the node is a directory
func (n *Node) IsDir() bool { return n.Kind == consts.DirKind }

// Trashed returns whether or not the node is soft-deleted
func (n *Node) Trashed() bool { return n.DeletedAt != nil }

// IsRootLevel returns whether or not the node lives at the root of its
// filespace
func (n *Node) IsRootLevel() bool { return n.ParentID == consts.RootParentID }

// newNodeID returns a fresh 32 hex characters node identifier. The object
// keys derived from it keep a bounded fan-out in the blob store, see
// ObjectKey.
func newNodeID() string {
	return hex.EncodeToString(uuid.Must(uuid.NewV4()).Bytes())
}

// NewDirNode is the directory Node constructor. The given name is validated.
func NewDirNode(spaceID, parentID, parentPath, name string) (*Node, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}

	now := time.Now()
	return &Node{
		Kind:        consts.DirKind,
		DocID:       newNodeID(),
		FileSpaceID: spaceID,
		ParentID:    parentID,
		DocName:     name,
		Fullpath:    path.Join(parentPath, name),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// NewFileNode is the file Node constructor. The given name is validated.
func NewFileNode(spaceID, parentID, parentPath, name string, size int64, md5Sum []byte, mime string) (*Node, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}

	now := time.Now()
	return &Node{
		Kind:        consts.FileKind,
		DocID:       newNodeID(),
		FileSpaceID: spaceID,
		ParentID:    parentID,
		DocName:     name,
		Fullpath:    path.Join(parentPath, name),
		CreatedAt:   now,
		UpdatedAt:   now,
		ByteSize:    size,
		MD5Sum:      md5Sum,
		Mime:        mime,
	}, nil
}

// CheckName returns an error if the given name cannot be used for a node.
// The "." and ".." names are refused, they would be collapsed by the path
// cache computation.
func CheckName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, ForbiddenNameChars) {
		return ErrInvalidName
	}
	return nil
}

var _ couchdb.Doc = &Node{}
