package storage

import (
	"bytes"
	"context"
	"io"
	"log/slog"

	"ddupbak/internal/logging"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"golang.org/x/time/rate"
)

// Azure is a Backend backed by Azure Blob Storage.
type Azure struct {
	client    *azblob.Client
	container string
	prefix    string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// AzureConfig configures an Azure backend.
type AzureConfig struct {
	Client        *azblob.Client
	Container     string
	Prefix        string
	RatePerSecond float64
	Logger        *slog.Logger
}

// NewAzure returns an Azure backend from cfg.
func NewAzure(cfg AzureConfig) *Azure {
	return &Azure{
		client:    cfg.Client,
		container: cfg.Container,
		prefix:    cfg.Prefix,
		limiter:   newLimiter(cfg.RatePerSecond),
		logger:    logging.Default(cfg.Logger).With("component", "chunk-storage-azure"),
	}
}

func (a *Azure) key(hash Hash) string {
	k := Key(hash)
	if a.prefix == "" {
		return k
	}
	return a.prefix + "/" + k
}

// Read implements Backend.
func (a *Azure) Read(ctx context.Context, hash Hash) (io.ReadCloser, error) {
	if err := waitLimiter(ctx, a.limiter); err != nil {
		return nil, err
	}

	resp, err := a.client.DownloadStream(ctx, a.container, a.key(hash), nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Write implements Backend.
func (a *Azure) Write(ctx context.Context, hash Hash, r io.Reader) error {
	if err := waitLimiter(ctx, a.limiter); err != nil {
		return err
	}

	buf, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	_, err = a.client.UploadBuffer(ctx, a.container, a.key(hash), buf, nil)
	return err
}

// Delete implements Backend.
func (a *Azure) Delete(ctx context.Context, hash Hash) error {
	if err := waitLimiter(ctx, a.limiter); err != nil {
		return err
	}

	_, err := a.client.DeleteBlob(ctx, a.container, a.key(hash), nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil
	}
	return err
}
