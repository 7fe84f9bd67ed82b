//go:build gcp

package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSConfig configures a Google Cloud Storage backend.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// GCSBackend stores objects in one GCS bucket under an optional prefix.
type GCSBackend struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSBackend creates a client using application default credentials.
func NewGCSBackend(ctx context.Context, cfg GCSConfig) (*GCSBackend, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSBackend{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (b *GCSBackend) Name() string {
	return "gcs"
}

func (b *GCSBackend) PutObject(ctx context.Context, key string, data []byte) error {
	w := b.client.Bucket(b.bucket).Object(b.prefix + key).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %s: %w", key, err)
	}
	return nil
}

func (b *GCSBackend) GetObject(ctx context.Context, key string) ([]byte, error) {
	r, err := b.client.Bucket(b.bucket).Object(b.prefix + key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("gcs get %s: %w", key, err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func (b *GCSBackend) DeleteObject(ctx context.Context, key string) error {
	err := b.client.Bucket(b.bucket).Object(b.prefix + key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete %s: %w", key, err)
	}
	return nil
}

func (b *GCSBackend) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: b.prefix + prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs list %s: %w", prefix, err)
		}
		keys = append(keys, strings.TrimPrefix(attrs.Name, b.prefix))
	}
	return keys, nil
}

func (b *GCSBackend) ListChildren(ctx context.Context, prefix, after string, limit int) ([]string, error) {
	base := b.prefix + prefix
	query := &storage.Query{Prefix: base, Delimiter: "/"}
	if after != "" {
		query.StartOffset = base + after + "/"
	}

	names := make([]string, 0)
	pager := iterator.NewPager(b.client.Bucket(b.bucket).Objects(ctx, query), 1000, "")
	for {
		var page []*storage.ObjectAttrs
		next, err := pager.NextPage(&page)
		if err != nil {
			return nil, fmt.Errorf("gcs list %s: %w", prefix, err)
		}
		for _, attrs := range page {
			if attrs.Prefix != "" {
				names = appendChild(names, strings.TrimSuffix(strings.TrimPrefix(attrs.Prefix, base), "/"), after)
				continue
			}
			names = appendChild(names, strings.TrimPrefix(attrs.Name, base), after)
		}
		if next == "" || (limit > 0 && len(names) >= limit) {
			break
		}
	}
	return sortedChildren(names, limit), nil
}

// Close releases the underlying client.
func (b *GCSBackend) Close() error {
	return b.client.Close()
}
