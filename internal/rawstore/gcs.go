package rawstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/JonMunkholm/equipment-analytics/internal/config"
	"google.golang.org/api/option"
)

const defaultGCSTimeout = 30 * time.Second

// GCS stores raw uploads as objects in a Cloud Storage bucket.
type GCS struct {
	client  *storage.Client
	bucket  string
	prefix  string
	timeout time.Duration
}

// NewGCS creates a storage client. With an emulator host configured the
// client talks to the emulator without credentials.
func NewGCS(ctx context.Context, cfg config.StorageConfig) (*GCS, error) {
	if strings.TrimSpace(cfg.GCSBucket) == "" {
		return nil, errors.New("missing RAW_STORAGE_GCS_BUCKET")
	}

	var opts []option.ClientOption
	if host := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"); host != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", host)
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGCSTimeout
	}

	slog.Info("raw storage initialized",
		"backend", BackendGCS,
		"bucket", cfg.GCSBucket,
		"prefix", cfg.GCSPrefix,
		"emulator_host", cfg.EmulatorHost,
	)
	return &GCS{
		client:  client,
		bucket:  cfg.GCSBucket,
		prefix:  strings.Trim(cfg.GCSPrefix, "/"),
		timeout: timeout,
	}, nil
}

func (g *GCS) objectName(ref string) string {
	if g.prefix == "" {
		return ref
	}
	return g.prefix + "/" + ref
}

// Save uploads data and returns the object name relative to the prefix.
func (g *GCS) Save(ctx context.Context, pathHint string, data []byte) (string, error) {
	ref, err := uniqueName(pathHint)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(g.objectName(ref)).NewWriter(ctx)
	w.ContentType = "text/csv"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return ref, nil
}

// Delete removes an object. A missing object is not an error.
func (g *GCS) Delete(ctx context.Context, ref string) error {
	cleaned, err := cleanRef(ref)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	name := g.objectName(cleaned)
	err = g.client.Bucket(g.bucket).Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", name, g.bucket, err)
	}
	return nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}
