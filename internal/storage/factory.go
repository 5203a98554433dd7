// factory.go maps backend names (local, s3, azure, gcs) to constructors and builds
// the configured backend.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/config"
)

// FactoryFunc creates a storage backend from configuration.
type FactoryFunc func(*config.Config) (Storage, error)

var factories = make(map[string]FactoryFunc)

const provisionTimeout = 30 * time.Second

// Register registers a storage backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// NewStorage creates the backend named by storage.default_backend. An empty name
// selects the local filesystem. With storage.provision set, backends that implement
// Provisioner create their bucket first. When storage.public_base_url is set, object URLs are
// rooted there instead of at the backend's own endpoint.
func NewStorage(cfg *config.Config) (Storage, error) {
	name := cfg.Storage.DefaultBackend
	if name == "" {
		name = "local"
		slog.Warn("no storage backend configured, using the local filesystem", "base_path", cfg.Storage.Local.BasePath)
	}

	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %s (must be 'local', 'azure', 's3', or 'gcs')", name)
	}

	backend, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage: %w", name, err)
	}

	if p, ok := backend.(Provisioner); ok && cfg.Storage.Provision {
		ctx, cancel := context.WithTimeout(context.Background(), provisionTimeout)
		defer cancel()
		if err := p.Provision(ctx); err != nil {
			return nil, fmt.Errorf("failed to provision %s storage: %w", name, err)
		}
		slog.Info("storage provisioned", "backend", name)
	}

	if base := strings.TrimRight(cfg.Storage.PublicBaseURL, "/"); base != "" {
		return &publicURLOverride{Storage: backend, base: base}, nil
	}
	return backend, nil
}

type publicURLOverride struct {
	Storage
	base string
}

func (o *publicURLOverride) PublicURL(key string) string {
	return o.base + "/" + key
}

func (o *publicURLOverride) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (*UploadResult, error) {
	result, err := o.Storage.Upload(ctx, key, reader, size, contentType)
	if err != nil {
		return nil, err
	}
	result.URL = o.PublicURL(result.Key)
	return result, nil
}
