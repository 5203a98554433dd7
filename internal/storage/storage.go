// Package storage defines the Storage interface shared by the asset backends
// (local, s3, azure, gcs) and the helpers that name organization assets.
//
// Backends register themselves with the factory from an init() function in their own
// package; cmd/server blank-imports each one:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (Storage, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidKey is returned for keys that are empty or escape the backend's root.
	ErrInvalidKey = errors.New("invalid object key")
)

// Storage is an object store for uploaded assets. Objects are addressed by
// slash-separated keys and served from a stable public URL.
type Storage interface {
	// Upload stores the content of reader under key, replacing any existing object.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (*UploadResult, error)

	// Download opens the object stored under key. Missing objects yield ErrNotFound.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes key. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// PublicURL returns the URL browsers load key from. It does not check existence.
	PublicURL(key string) string
}

// Provisioner is implemented by backends that can create their bucket or container.
// Provision must succeed when the bucket already exists.
type Provisioner interface {
	Provision(ctx context.Context) error
}

// UploadResult describes a stored object.
type UploadResult struct {
	Key string
	// Size is the object size in bytes.
	Size int64
	// Checksum is the hex SHA256 of the content.
	Checksum string
	URL      string
}

// LogoKey returns a fresh key for an organization logo: <org_id>/logo/<uuid><ext>.
// Each upload gets a new key so browsers and CDNs never serve a stale image.
func LogoKey(orgID, ext string) string {
	return path.Join(orgID, "logo", uuid.New().String()+ext)
}

// KeyFromURL recovers the key behind a URL produced by s.PublicURL. It reports false
// for URLs that point somewhere else, such as a logo set before a backend migration.
func KeyFromURL(s Storage, url string) (string, bool) {
	prefix := s.PublicURL("")
	if url == "" || !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if key == "" {
		return "", false
	}
	return key, true
}

// CleanKey normalizes key and rejects keys that are empty or climb out of the root.
func CleanKey(key string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
