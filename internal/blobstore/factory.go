package blobstore

import (
	"context"
	"fmt"
	"strings"
)

// StoreType names an object backend.
type StoreType string

const (
	StoreTypeLocal StoreType = "local"
	StoreTypeS3    StoreType = "s3"
	StoreTypeGCS   StoreType = "gcs"
)

// BackendOptions carries per-backend settings. Only the section matching
// Type is read.
type BackendOptions struct {
	Type      StoreType
	LocalRoot string
	S3        S3Config
	GCS       GCSOptions
}

// GCSOptions mirrors GCSConfig so callers need no build tag.
type GCSOptions struct {
	Bucket string
	Prefix string
}

// NewBackend constructs the object backend selected by opts.Type.
func NewBackend(ctx context.Context, opts BackendOptions) (ObjectBackend, error) {
	switch StoreType(strings.ToLower(strings.TrimSpace(string(opts.Type)))) {
	case StoreTypeLocal:
		return NewLocalBackend(opts.LocalRoot)
	case StoreTypeS3:
		return NewS3Backend(ctx, opts.S3)
	case StoreTypeGCS:
		return newGCSBackend(ctx, opts.GCS)
	default:
		return nil, fmt.Errorf("unsupported object backend %q (supported: local, s3, gcs)", opts.Type)
	}
}
