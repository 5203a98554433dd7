// Package azure stores assets in Azure Blob Storage. The container must allow
// anonymous blob reads, or sit behind a CDN configured as storage.azure.cdn_url.
package azure

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/config"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/storage"
)

func init() {
	storage.Register("azure", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Azure)
	})
}

// AzureStorage implements storage.Storage for Azure Blob Storage.
type AzureStorage struct {
	client        *azblob.Client
	serviceURL    string
	containerName string
	cdnURL        string
}

// New creates an Azure Blob Storage backend authenticated with the account key.
func New(cfg *config.AzureStorageConfig) (*AzureStorage, error) {
	if cfg.AccountName == "" {
		return nil, fmt.Errorf("azure storage account name is required")
	}
	if cfg.AccountKey == "" {
		return nil, fmt.Errorf("azure storage account key is required")
	}
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("azure storage container name is required")
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}

	return &AzureStorage{
		client:        client,
		serviceURL:    serviceURL,
		containerName: cfg.ContainerName,
		cdnURL:        strings.TrimRight(cfg.CDNURL, "/"),
	}, nil
}

func (s *AzureStorage) blobClient(key string) *blob.Client {
	return s.client.ServiceClient().NewContainerClient(s.containerName).NewBlobClient(key)
}

// Upload stores a block blob with its content type and SHA256 in the blob metadata.
func (s *AzureStorage) Upload(ctx context.Context, key string, reader io.Reader, _ int64, contentType string) (*storage.UploadResult, error) {
	key, err := storage.CleanKey(key)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	opts := &blockblob.UploadOptions{
		Metadata: map[string]*string{"sha256": &checksum},
	}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &contentType}
	}

	blockBlob := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlockBlobClient(key)
	if _, err := blockBlob.Upload(ctx, streaming.NopCloser(bytes.NewReader(data)), opts); err != nil {
		return nil, fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}

	return &storage.UploadResult{
		Key:      key,
		Size:     int64(len(data)),
		Checksum: checksum,
		URL:      s.PublicURL(key),
	}, nil
}

// Download retrieves a blob.
func (s *AzureStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.blobClient(key).DownloadStream(ctx, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to download from Azure Blob: %w", err)
	}
	return resp.Body, nil
}

// Delete removes a blob. Missing blobs are not an error.
func (s *AzureStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.blobClient(key).Delete(ctx, nil); err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete from Azure Blob: %w", err)
	}
	return nil
}

// Exists reads the blob properties.
func (s *AzureStorage) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := s.blobClient(key).GetProperties(ctx, nil); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get blob properties: %w", err)
	}
	return true, nil
}

// PublicURL prefers the CDN URL over the blob endpoint.
func (s *AzureStorage) PublicURL(key string) string {
	if s.cdnURL != "" {
		return s.cdnURL + "/" + key
	}
	return strings.TrimRight(s.serviceURL, "/") + "/" + s.containerName + "/" + key
}

// Provision creates the container if it doesn't exist.
func (s *AzureStorage) Provision(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.containerName, nil)
	var respErr *azcore.ResponseError
	if err != nil && !(errors.As(err, &respErr) && respErr.StatusCode == http.StatusConflict) {
		return fmt.Errorf("failed to create container: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
