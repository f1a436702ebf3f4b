package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"ddupbak/internal/logging"

	gcs "cloud.google.com/go/storage"
	"golang.org/x/time/rate"
)

// GCS is a Backend backed by Google Cloud Storage.
type GCS struct {
	client  *gcs.Client
	bucket  string
	prefix  string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// GCSConfig configures a GCS backend.
type GCSConfig struct {
	Client        *gcs.Client
	Bucket        string
	Prefix        string
	RatePerSecond float64
	Logger        *slog.Logger
}

// NewGCS returns a GCS backend from cfg.
func NewGCS(cfg GCSConfig) *GCS {
	return &GCS{
		client:  cfg.Client,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		limiter: newLimiter(cfg.RatePerSecond),
		logger:  logging.Default(cfg.Logger).With("component", "chunk-storage-gcs"),
	}
}

func (g *GCS) key(hash Hash) string {
	k := Key(hash)
	if g.prefix == "" {
		return k
	}
	return g.prefix + "/" + k
}

// Read implements Backend.
func (g *GCS) Read(ctx context.Context, hash Hash) (io.ReadCloser, error) {
	if err := waitLimiter(ctx, g.limiter); err != nil {
		return nil, err
	}

	r, err := g.client.Bucket(g.bucket).Object(g.key(hash)).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Write implements Backend.
func (g *GCS) Write(ctx context.Context, hash Hash, r io.Reader) error {
	if err := waitLimiter(ctx, g.limiter); err != nil {
		return err
	}

	w := g.client.Bucket(g.bucket).Object(g.key(hash)).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Delete implements Backend.
func (g *GCS) Delete(ctx context.Context, hash Hash) error {
	if err := waitLimiter(ctx, g.limiter); err != nil {
		return err
	}

	err := g.client.Bucket(g.bucket).Object(g.key(hash)).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}
