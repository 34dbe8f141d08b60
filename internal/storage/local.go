package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"photo-ingest/internal/logging"
	"photo-ingest/internal/mediatypes"
)

// ErrObjectNotFound is returned by Get/Head when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ErrSigningUnsupported is returned by stores without signed-URL support.
var ErrSigningUnsupported = errors.New("signed upload URLs not supported")

// LocalStore is an ObjectStore backed by a directory on the local
// filesystem. Keys map to paths under the base directory; the content type
// is derived from the key extension on read.
type LocalStore struct {
	baseDir string
	baseURL string
	mu      sync.RWMutex
}

// NewLocalStore creates a LocalStore rooted at baseDir, creating the
// directory if needed. baseURL is the public prefix under which objects
// are served, e.g. "/storage" or "https://cdn.example.com/photos".
func NewLocalStore(baseDir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	logging.Info("Local object store at %s (public base %s)", baseDir, baseURL)
	return &LocalStore{
		baseDir: baseDir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// keyPath maps a logical key to a filesystem path, rejecting traversal.
func (s *LocalStore) keyPath(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}

// Get returns the object bytes for key.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

// Put stores data under key.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create object dir for %s: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write object %s: %w", key, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat written object %s: %w", key, err)
	}
	if contentType == "" {
		contentType = mediatypes.GetMimeType(key)
	}

	logging.Debug("Stored object %s (%d bytes, %s)", key, info.Size(), contentType)
	return &Object{
		Key:          key,
		Size:         info.Size(),
		ContentType:  contentType,
		LastModified: info.ModTime(),
	}, nil
}

// Head returns metadata for key.
func (s *LocalStore) Head(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to stat object %s: %w", key, err)
	}
	return &Object{
		Key:          key,
		Size:         info.Size(),
		ContentType:  mediatypes.GetMimeType(key),
		LastModified: info.ModTime(),
	}, nil
}

// Delete removes the object for key. Missing keys are ignored.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// List returns every object whose key starts with prefix.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var objects []Object
	err := filepath.Walk(s.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			logging.Warn("Error walking storage dir at %s: %v", path, err)
			return nil
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		objects = append(objects, Object{
			Key:          key,
			Size:         info.Size(),
			ContentType:  mediatypes.GetMimeType(key),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	return objects, nil
}

// PublicURL returns the serving URL for key.
func (s *LocalStore) PublicURL(key string) string {
	escaped := (&url.URL{Path: "/" + strings.TrimPrefix(key, "/")}).EscapedPath()
	return s.baseURL + escaped
}

// SignedUploadURL is not supported by the local store.
func (s *LocalStore) SignedUploadURL(ctx context.Context, key string, ttl time.Duration, contentType string) (string, error) {
	return "", ErrSigningUnsupported
}
