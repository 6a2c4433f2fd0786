package lfs

import (
	"context"
	"io"
)

// Storage stores LFS objects content-addressed per namespace. Objects
// from all repos in a namespace share one pool, matching the on-disk
// layout lfs/<namespace-id>/<oid[0:2]>/<oid[2:4]>/<oid>.
type Storage interface {
	Exists(ctx context.Context, namespaceID, oid string) (bool, error)
	Get(ctx context.Context, namespaceID, oid string) (io.ReadCloser, int64, error)
	Put(ctx context.Context, namespaceID, oid string, content io.Reader, size int64) error
	Delete(ctx context.Context, namespaceID, oid string) error
	Size(ctx context.Context, namespaceID, oid string) (int64, error)
}
