//go:build gcp

package blobstore

import "context"

func newGCSBackend(ctx context.Context, opts GCSOptions) (ObjectBackend, error) {
	return NewGCSBackend(ctx, GCSConfig{Bucket: opts.Bucket, Prefix: opts.Prefix})
}
