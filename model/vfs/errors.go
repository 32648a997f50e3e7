package vfs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidName is used when the given name is empty or contains an
	// illegal character
	ErrInvalidName = errors.New("invalid name: empty or contains an illegal character")
	// ErrInvalidParent is used when the designated parent does not exist,
	// is not a directory, is trashed, or belongs to another filespace
	ErrInvalidParent = errors.New("invalid parent: not a live directory in the same filespace")
	// ErrCycleDetected is used when moving a directory inside itself or one
	// of its own descendants
	ErrCycleDetected = errors.New("cycle detected: cannot move a directory inside its own subtree")
	// ErrNameConflict is used when a live node with the same name already
	// exists at the destination level
	ErrNameConflict = errors.New("name conflict: a live node with this name already exists at this level")
	// ErrNotFound is used when the file or directory does not exist
	ErrNotFound = errors.New("file or directory not found")
	// ErrIllegalPath is used when the ancestor chain has too many levels
	ErrIllegalPath = errors.New("invalid path: too many levels")
	// ErrConcurrentUpdate is used when the document revision has changed
	// under our feet
	ErrConcurrentUpdate = errors.New("concurrent update of the same node")
	// ErrDirectoryContent is used when content is attached to a directory
	ErrDirectoryContent = errors.New("directories cannot carry content")
)

// StorageError is returned when the blob-store collaborator fails. The node
// metadata is left untouched, so the two sides stay independently
// recoverable.
type StorageError struct {
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("blob storage error on %q: %s", e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError returns the StorageError if the given error is one.
func IsStorageError(err error) (*StorageError, bool) {
	var serr *StorageError
	if errors.As(err, &serr) {
		return serr, true
	}
	return nil, false
}
