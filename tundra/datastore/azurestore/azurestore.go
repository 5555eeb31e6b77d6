// Package azurestore is a tundra.Datastore backed by Azure Blob
// Storage, grounded on
// _examples/sa6mwa-lockd/internal/storage/azure/azure.go's client
// construction and upload/download-stream calls.
package azurestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// Config controls connectivity to an Azure Blob Storage container.
type Config struct {
	Account    string
	AccountKey string
	Endpoint   string
	Container  string
	Prefix     string
}

// Store implements tundra.Datastore against an Azure Blob container.
type Store struct {
	client    *azblob.Client
	container string
	prefix    string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Account == "" || cfg.AccountKey == "" {
		return nil, fmt.Errorf("azurestore: account and account key are required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.Account)
	}
	cred, err := azblob.NewSharedKeyCredential(cfg.Account, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("azurestore: build credentials: %w", err)
	}
	clientOpts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: 3},
		},
	}
	client, err := azblob.NewClientWithSharedKeyCredential(endpoint, cred, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("azurestore: create client: %w", err)
	}
	if _, err := client.CreateContainer(ctx, cfg.Container, nil); err != nil {
		// container-already-exists is the expected case once a
		// deployment has run once; Put/Fetch don't depend on this call
		// having freshly succeeded, so any error here is logged, not
		// propagated.
		slog.Default().Debug("azurestore: create container", "container", cfg.Container, "error", err)
	}
	return &Store{client: client, container: cfg.Container, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (s *Store) blobName(key string) string {
	return path.Join(s.prefix, key)
}

func (s *Store) Put(ctx context.Context, key string, blob []byte) error {
	_, err := s.client.UploadStream(ctx, s.container, s.blobName(key), bytes.NewReader(blob), nil)
	if err != nil {
		return fmt.Errorf("azurestore: upload %s: %w", key, err)
	}
	return nil
}

func (s *Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, s.blobName(key), nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("azurestore: key %q not found", key)
		}
		return nil, fmt.Errorf("azurestore: download %s: %w", key, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("azurestore: read %s: %w", key, err)
	}
	return data, nil
}
