// Package vfsafero implements the blob store on top of an abstract afero
// filesystem. It serves the file:// and mem:// schemes of the fs.url
// configuration, the latter being mostly useful in tests.
package vfsafero

import (
	"fmt"
	"net/url"
	gopath "path"
	"strings"

	"github.com/spf13/afero"

	"github.com/gobii-ai/gobii-platform-sub000/model/vfs"
)

type aferoBlobStore struct {
	fs afero.Fs
}

// The mem scheme shares a single in-memory filesystem, so that the store
// built for a filespace sees the objects written by a previous one.
var memFS = afero.NewMemMapFs()

// New returns a BlobStore for the given storage URL. The file scheme selects
// the OS filesystem rooted at the URL path, the mem scheme an in-memory
// filesystem.
func New(fsURL *url.URL) (vfs.BlobStore, error) {
	switch fsURL.Scheme {
	case "file":
		return &aferoBlobStore{
			fs: afero.NewBasePathFs(afero.NewOsFs(), fsURL.Path),
		}, nil
	case "mem":
		return &aferoBlobStore{fs: memFS}, nil
	}
	return nil, fmt.Errorf("vfsafero: unknown storage provider %q", fsURL.Scheme)
}

// NewWithFs returns a BlobStore on the given afero filesystem.
func NewWithFs(fs afero.Fs) vfs.BlobStore {
	return &aferoBlobStore{fs: fs}
}

func (a *aferoBlobStore) Put(key string, content []byte) error {
	if err := a.fs.MkdirAll(gopath.Dir(key), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(a.fs, key, content, 0o644)
}

func (a *aferoBlobStore) Get(key string) ([]byte, error) {
	return afero.ReadFile(a.fs, key)
}

func (a *aferoBlobStore) Delete(key string) error {
	return a.fs.Remove(key)
}

func (a *aferoBlobStore) Purge(prefix string) error {
	return a.fs.RemoveAll(strings.TrimSuffix(prefix, "/"))
}

var _ vfs.BlobStore = &aferoBlobStore{}
