// Package gcs stores assets in Google Cloud Storage. Objects are addressed by their
// public storage.googleapis.com URL, so the bucket must grant allUsers read access
// or be fronted by storage.public_base_url. Supports Application Default
// Credentials, service account JSON keys, and Workload Identity Federation.
package gcs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	appconfig "github.com/cesarg777/marketing-ai-engine-sub001/internal/config"
	appstorage "github.com/cesarg777/marketing-ai-engine-sub001/internal/storage"
)

const defaultPublicHost = "https://storage.googleapis.com"

func init() {
	appstorage.Register("gcs", func(cfg *appconfig.Config) (appstorage.Storage, error) {
		return New(&cfg.Storage.GCS)
	})
}

// GCSStorage implements appstorage.Storage for Google Cloud Storage.
type GCSStorage struct {
	client     *storage.Client
	bucket     string
	projectID  string
	publicHost string
}

// New creates a new Google Cloud Storage backend
//
// Authentication methods:
//   - "default" or empty: Application Default Credentials (GOOGLE_APPLICATION_CREDENTIALS,
//     the GCE/GKE metadata service, gcloud auth application-default login)
//   - "service_account": a service account key file or inline JSON
//   - "workload_identity": Workload Identity Federation, resolved through ADC
func New(cfg *appconfig.GCSStorageConfig) (*GCSStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}

	var opts []option.ClientOption

	// Custom endpoint for GCS emulators or compatible services
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	authMethod := cfg.AuthMethod
	if authMethod == "" {
		if cfg.CredentialsFile != "" || cfg.CredentialsJSON != "" {
			authMethod = "service_account"
		} else {
			authMethod = "default"
		}
	}

	switch authMethod {
	case "service_account":
		if cfg.CredentialsJSON != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		} else if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		} else {
			return nil, fmt.Errorf("credentials_file or credentials_json is required for service_account auth")
		}

	case "workload_identity", "default":
		// ADC; nothing to add

	default:
		return nil, fmt.Errorf("unsupported auth_method: %s (must be 'default', 'service_account', or 'workload_identity')", authMethod)
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	s := newWithClient(client, cfg.Bucket, cfg.Endpoint)
	s.projectID = cfg.ProjectID
	return s, nil
}

func newWithClient(client *storage.Client, bucket, endpoint string) *GCSStorage {
	host := defaultPublicHost
	if endpoint != "" {
		host = strings.TrimSuffix(strings.TrimRight(endpoint, "/"), "/storage/v1")
	}
	return &GCSStorage{client: client, bucket: bucket, publicHost: host}
}

// Close closes the GCS client
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

// Upload stores an object with its content type and a sha256 metadata entry.
func (s *GCSStorage) Upload(ctx context.Context, key string, reader io.Reader, _ int64, contentType string) (*appstorage.UploadResult, error) {
	key, err := appstorage.CleanKey(key)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	writer.Metadata = map[string]string{"sha256": checksum}

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close GCS writer: %w", err)
	}

	return &appstorage.UploadResult{
		Key:      key,
		Size:     int64(len(data)),
		Checksum: checksum,
		URL:      s.PublicURL(key),
	}, nil
}

// Download retrieves an object from GCS
func (s *GCSStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", appstorage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read from GCS: %w", err)
	}
	return reader, nil
}

// Delete removes an object. Missing objects are not an error.
func (s *GCSStorage) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}
	return nil
}

// Exists reports whether the object is present.
func (s *GCSStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get object attributes: %w", err)
	}
	return true, nil
}

// PublicURL returns the object's URL on the public storage host.
func (s *GCSStorage) PublicURL(key string) string {
	return s.publicHost + "/" + s.bucket + "/" + key
}

// Provision creates the bucket in the configured project if it doesn't exist.
func (s *GCSStorage) Provision(ctx context.Context) error {
	bucket := s.client.Bucket(s.bucket)

	_, err := bucket.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if s.projectID == "" {
		return fmt.Errorf("project_id is required to create a bucket")
	}
	if err := bucket.Create(ctx, s.projectID, nil); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}
