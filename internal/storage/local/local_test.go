package local

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/config"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/storage"
)

// newTestStorage creates a LocalStorage backed by a temporary directory.
func newTestStorage(t *testing.T, baseURL string) *LocalStorage {
	t.Helper()
	s, err := New(&config.LocalStorageConfig{BasePath: t.TempDir(), ServeDirectly: true}, baseURL)
	if err != nil {
		t.Fatal("New:", err)
	}
	return s
}

func upload(t *testing.T, s *LocalStorage, key string, data []byte) *storage.UploadResult {
	t.Helper()
	res, err := s.Upload(context.Background(), key, bytes.NewReader(data), int64(len(data)), "image/png")
	if err != nil {
		t.Fatalf("Upload(%q): %v", key, err)
	}
	return res
}

// ---------------------------------------------------------------------------
// New
// ---------------------------------------------------------------------------

func TestNew_CreatesDirectory(t *testing.T) {
	subDir := filepath.Join(t.TempDir(), "a", "b", "c")
	if _, err := New(&config.LocalStorageConfig{BasePath: subDir}, "http://localhost"); err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := os.Stat(subDir); os.IsNotExist(err) {
		t.Error("New() did not create base directory")
	}
}

func TestNew_RequiresBasePath(t *testing.T) {
	if _, err := New(&config.LocalStorageConfig{}, ""); err == nil {
		t.Error("New() with empty base path = nil error")
	}
}

// ---------------------------------------------------------------------------
// Upload / Download
// ---------------------------------------------------------------------------

func TestUpload(t *testing.T) {
	s := newTestStorage(t, "https://api.example.com/")
	data := []byte("\x89PNG fake logo")

	res := upload(t, s, "org-1/logo/a.png", data)

	sum := sha256.Sum256(data)
	if res.Checksum != hex.EncodeToString(sum[:]) {
		t.Errorf("Checksum = %q", res.Checksum)
	}
	if res.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", res.Size, len(data))
	}
	if res.Key != "org-1/logo/a.png" {
		t.Errorf("Key = %q", res.Key)
	}
	if res.URL != "https://api.example.com/api/files/org-1/logo/a.png" {
		t.Errorf("URL = %q", res.URL)
	}

	onDisk, err := os.ReadFile(filepath.Join(s.basePath, "org-1", "logo", "a.png"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(onDisk, data) {
		t.Error("stored content differs from upload")
	}
}

func TestUpload_ReplacesExisting(t *testing.T) {
	s := newTestStorage(t, "")
	upload(t, s, "k.png", []byte("old"))
	upload(t, s, "k.png", []byte("new"))

	rc, err := s.Download(context.Background(), "k.png")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "new" {
		t.Errorf("content = %q, want new", got)
	}

	entries, _ := os.ReadDir(s.basePath)
	if len(entries) != 1 {
		t.Errorf("base dir has %d entries, want 1 (temp files left behind?)", len(entries))
	}
}

func TestUpload_RejectsTraversal(t *testing.T) {
	s := newTestStorage(t, "")
	_, err := s.Upload(context.Background(), "../escape.png", bytes.NewReader([]byte("x")), 1, "image/png")
	if !errors.Is(err, storage.ErrInvalidKey) {
		t.Errorf("Upload(../escape.png) error = %v, want ErrInvalidKey", err)
	}
}

func TestDownload_NotFound(t *testing.T) {
	s := newTestStorage(t, "")
	_, err := s.Download(context.Background(), "missing.png")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Download(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDownload_DirectoryIsNotFound(t *testing.T) {
	s := newTestStorage(t, "")
	upload(t, s, "org-1/logo/a.png", []byte("x"))
	_, err := s.Download(context.Background(), "org-1/logo")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Download(dir) error = %v, want ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// Delete / Exists
// ---------------------------------------------------------------------------

func TestDelete_CleansUpEmptyParentDirs(t *testing.T) {
	s := newTestStorage(t, "")
	upload(t, s, "org-1/logo/a.png", []byte("x"))

	if err := s.Delete(context.Background(), "org-1/logo/a.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.basePath, "org-1")); !os.IsNotExist(err) {
		t.Error("empty parent directories were not removed")
	}
	if _, err := os.Stat(s.basePath); err != nil {
		t.Errorf("base directory removed: %v", err)
	}
}

func TestDelete_NonExistentFile(t *testing.T) {
	s := newTestStorage(t, "")
	if err := s.Delete(context.Background(), "never/was.png"); err != nil {
		t.Errorf("Delete(missing) = %v, want nil", err)
	}
}

func TestExists(t *testing.T) {
	s := newTestStorage(t, "")
	ctx := context.Background()

	if ok, err := s.Exists(ctx, "a.png"); err != nil || ok {
		t.Errorf("Exists before upload = %v, %v", ok, err)
	}
	upload(t, s, "a.png", []byte("x"))
	if ok, err := s.Exists(ctx, "a.png"); err != nil || !ok {
		t.Errorf("Exists after upload = %v, %v", ok, err)
	}
}

func TestPublicURL_RelativeWithoutBaseURL(t *testing.T) {
	s := newTestStorage(t, "")
	if got := s.PublicURL("org-1/logo/a.png"); got != "/api/files/org-1/logo/a.png" {
		t.Errorf("PublicURL = %q", got)
	}
	key, ok := storage.KeyFromURL(s, "/api/files/org-1/logo/a.png")
	if !ok || key != "org-1/logo/a.png" {
		t.Errorf("KeyFromURL = %q, %v", key, ok)
	}
}
