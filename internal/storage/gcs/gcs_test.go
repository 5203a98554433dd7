package gcs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	appconfig "github.com/cesarg777/marketing-ai-engine-sub001/internal/config"
	appstorage "github.com/cesarg777/marketing-ai-engine-sub001/internal/storage"
)

// ---------------------------------------------------------------------------
// New(): constructor validation (no GCS connection required)
// ---------------------------------------------------------------------------

func TestNew_MissingBucket(t *testing.T) {
	cfg := &appconfig.GCSStorageConfig{
		Bucket: "",
	}
	_, err := New(cfg)
	if err == nil {
		t.Error("New() = nil error, want error for missing bucket")
	}
}

func TestNew_ServiceAccountNoCredentials(t *testing.T) {
	cfg := &appconfig.GCSStorageConfig{
		Bucket:          "my-bucket",
		AuthMethod:      "service_account",
		CredentialsFile: "",
		CredentialsJSON: "",
	}
	_, err := New(cfg)
	if err == nil {
		t.Error("New() = nil error, want error for service_account without credentials")
	}
}

func TestNew_ServiceAccountWithCredentialsJSON(t *testing.T) {
	cfg := &appconfig.GCSStorageConfig{
		Bucket:          "my-bucket",
		AuthMethod:      "service_account",
		CredentialsJSON: `{"type":"service_account"}`,
	}
	// May fail on the credentials; must not panic.
	_, _ = New(cfg)
}

func TestNew_UnsupportedAuthMethod(t *testing.T) {
	cfg := &appconfig.GCSStorageConfig{
		Bucket:     "my-bucket",
		AuthMethod: "not-a-valid-method",
	}
	_, err := New(cfg)
	if err == nil {
		t.Error("New() = nil error, want error for unsupported auth_method")
	}
}

// ---------------------------------------------------------------------------
// Object operations against a JSON API stub
// ---------------------------------------------------------------------------

// newStubStorage serves object metadata and deletes for the names in objects.
func newStubStorage(t *testing.T, objects map[string]bool) *GCSStorage {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "/storage/v1/b/test-bucket/o/"
		if !strings.HasPrefix(r.URL.Path, prefix) {
			http.NotFound(w, r)
			return
		}
		name := strings.TrimPrefix(r.URL.Path, prefix)
		if !objects[name] {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"No such object"}}`))
			return
		}
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"bucket":"test-bucket","name":"` + name + `","size":"3"}`))
		case http.MethodDelete:
			delete(objects, name)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("storage.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return newWithClient(client, "test-bucket", srv.URL+"/storage/v1/")
}

func TestExists(t *testing.T) {
	s := newStubStorage(t, map[string]bool{"logo.png": true})

	ok, err := s.Exists(context.Background(), "logo.png")
	if err != nil || !ok {
		t.Fatalf("Exists(logo.png) = %v, %v; want true", ok, err)
	}
	ok, err = s.Exists(context.Background(), "missing.png")
	if err != nil || ok {
		t.Fatalf("Exists(missing.png) = %v, %v; want false", ok, err)
	}
}

func TestDelete_ToleratesMissingObject(t *testing.T) {
	objects := map[string]bool{"logo.png": true}
	s := newStubStorage(t, objects)

	if err := s.Delete(context.Background(), "logo.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if objects["logo.png"] {
		t.Error("object still present after Delete")
	}
	if err := s.Delete(context.Background(), "logo.png"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestUpload_RejectsTraversalKey(t *testing.T) {
	s := &GCSStorage{bucket: "test-bucket", publicHost: defaultPublicHost}
	_, err := s.Upload(context.Background(), "../escape.png", strings.NewReader("x"), 1, "image/png")
	if !errors.Is(err, appstorage.ErrInvalidKey) {
		t.Fatalf("Upload error = %v, want ErrInvalidKey", err)
	}
}

func TestPublicURL(t *testing.T) {
	s := newWithClient(nil, "assets", "")
	if got := s.PublicURL("org-1/logo/a.png"); got != "https://storage.googleapis.com/assets/org-1/logo/a.png" {
		t.Errorf("PublicURL = %q", got)
	}

	emu := newWithClient(nil, "assets", "http://localhost:4443/storage/v1/")
	if got := emu.PublicURL("a.png"); got != "http://localhost:4443/assets/a.png" {
		t.Errorf("emulator PublicURL = %q", got)
	}
}
