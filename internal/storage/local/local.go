// Package local stores assets on the local filesystem. It suits development and
// single-node deployments; several API replicas would need a shared volume.
// Objects are served back by the API under /api/files/.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/config"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/storage"
)

// FilesRoute is the API path prefix local objects are served from.
const FilesRoute = "/api/files/"

func init() {
	storage.Register("local", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Local, cfg.Server.GetPublicURL())
	})
}

// LocalStorage implements storage.Storage on a directory tree.
type LocalStorage struct {
	basePath string
	baseURL  string
}

// New creates the base directory if needed. baseURL is the API's public URL; it may
// be empty, in which case object URLs are root-relative.
func New(cfg *config.LocalStorageConfig, baseURL string) (*LocalStorage, error) {
	if cfg.BasePath == "" {
		return nil, errors.New("local storage base_path is required")
	}
	abs, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: abs,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

// resolve maps key to a path under basePath.
func (s *LocalStorage) resolve(key string) (string, error) {
	cleaned, err := storage.CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(cleaned)), nil
}

// Upload writes the object through a temporary file so readers never see a partial one.
func (s *LocalStorage) Upload(_ context.Context, key string, reader io.Reader, _ int64, _ string) (*storage.UploadResult, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), reader)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	cleaned, _ := storage.CleanKey(key)
	return &storage.UploadResult{
		Key:      cleaned,
		Size:     written,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
		URL:      s.PublicURL(cleaned),
	}, nil
}

// Download opens the stored file.
func (s *LocalStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	if info, err := file.Stat(); err == nil && info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}

	return file, nil
}

// Delete removes the file and any parent directories it leaves empty.
func (s *LocalStorage) Delete(_ context.Context, key string) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	for dir := filepath.Dir(fullPath); dir != s.basePath && strings.HasPrefix(dir, s.basePath); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break
		}
	}

	return nil
}

// Exists checks if a file exists at the specified key.
func (s *LocalStorage) Exists(_ context.Context, key string) (bool, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}

	return !info.IsDir(), nil
}

// PublicURL returns <baseURL>/api/files/<key>.
func (s *LocalStorage) PublicURL(key string) string {
	return s.baseURL + FilesRoute + key
}
