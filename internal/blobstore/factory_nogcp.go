//go:build !gcp

package blobstore

import (
	"context"
	"fmt"
)

func newGCSBackend(_ context.Context, _ GCSOptions) (ObjectBackend, error) {
	return nil, fmt.Errorf("GCS storage is not enabled in this build (use -tags gcp)")
}
