// Package vfsswift implements the blob store on OpenStack Object Storage.
// Each tenant gets its own container, and the object keys keep the virtual
// subfolder layout computed by the vfs package.
package vfsswift

import (
	"context"
	"errors"

	"github.com/ncw/swift/v2"
	"golang.org/x/sync/errgroup"

	"github.com/gobii-ai/gobii-platform-sub000/model/vfs"
)

// maxParallelDeletes bounds the concurrency of a Purge.
const maxParallelDeletes = 8

type swiftBlobStore struct {
	c         *swift.Connection
	container string
	ctx       context.Context
}

// New returns a BlobStore putting its objects in the given swift container.
// The container is created if it does not exist yet.
func New(ctx context.Context, conn *swift.Connection, container string) (vfs.BlobStore, error) {
	if err := conn.ContainerCreate(ctx, container, nil); err != nil {
		return nil, err
	}
	return &swiftBlobStore{c: conn, container: container, ctx: ctx}, nil
}

func (s *swiftBlobStore) Put(key string, content []byte) error {
	return s.c.ObjectPutBytes(s.ctx, s.container, key, content, "")
}

func (s *swiftBlobStore) Get(key string) ([]byte, error) {
	return s.c.ObjectGetBytes(s.ctx, s.container, key)
}

func (s *swiftBlobStore) Delete(key string) error {
	err := s.c.ObjectDelete(s.ctx, s.container, key)
	if errors.Is(err, swift.ObjectNotFound) {
		return nil
	}
	return err
}

// Purge deletes in parallel every object under the given key prefix.
func (s *swiftBlobStore) Purge(prefix string) error {
	names, err := s.c.ObjectNames(s.ctx, s.container, &swift.ObjectsOpts{Prefix: prefix})
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(s.ctx)
	g.SetLimit(maxParallelDeletes)
	for _, name := range names {
		name := name
		g.Go(func() error {
			err := s.c.ObjectDelete(ctx, s.container, name)
			if errors.Is(err, swift.ObjectNotFound) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

var _ vfs.BlobStore = &swiftBlobStore{}
