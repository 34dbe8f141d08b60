package storage

import (
	"context"
	"time"
)

// Object describes a stored object.
type Object struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// ObjectStore is the contract the pipeline consumes. Implementations must
// be safe for concurrent use by multiple workers.
type ObjectStore interface {
	// Get returns the object bytes, or ErrObjectNotFound if the key does
	// not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores the bytes under key, overwriting any existing object,
	// and returns the stored object's metadata.
	Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error)

	// Head returns object metadata without fetching the body, or
	// ErrObjectNotFound.
	Head(ctx context.Context, key string) (*Object, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns metadata for every object whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]Object, error)

	// PublicURL returns the URL under which the object is served.
	PublicURL(key string) string

	// SignedUploadURL returns a pre-authorized upload URL for key. Stores
	// without signing support return ErrSigningUnsupported.
	SignedUploadURL(ctx context.Context, key string, ttl time.Duration, contentType string) (string, error)
}
