package blobstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"filebox/internal/models"
)

// ChunkStore persists byte streams as ordered chunks plus one metadata record.
//
// Blobs become visible to Stat and OpenRead only after Commit. Implementations
// must tolerate concurrent sessions on different blobs.
type ChunkStore interface {
	BeginWrite(ctx context.Context, blob models.NewBlob) (WriteHandle, error)
	OpenRead(ctx context.Context, blobID string) (ReadHandle, error)
	Stat(ctx context.Context, blobID string) (models.BlobMetadata, error)
	Delete(ctx context.Context, blobID string) error
	ListBlobs(ctx context.Context, query ListQuery) ([]models.BlobMetadata, error)
}

// WriteHandle is one write session. It is not safe for concurrent use.
type WriteHandle interface {
	ID() string
	// WriteChunk durably appends p as the next chunk before returning.
	// p is not retained after the call.
	WriteChunk(ctx context.Context, p []byte) error
	Commit(ctx context.Context) (models.BlobMetadata, error)
	// Abort discards everything written so far. It is a no-op after Commit.
	Abort(ctx context.Context) error
}

// ReadHandle yields a committed blob's chunks in sequence order.
type ReadHandle interface {
	Metadata() models.BlobMetadata
	// Next returns the next chunk, or io.EOF after the last one.
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// ListQuery pages through stored blobs ordered by id.
type ListQuery struct {
	AfterID        string
	Limit          int
	IncludePending bool
	// CreatedBefore, when set, skips blobs created at or after this instant.
	CreatedBefore time.Time
}

// Matches reports whether meta passes the query filters other than paging.
func (q ListQuery) Matches(meta models.BlobMetadata) bool {
	if !q.IncludePending && !meta.Committed() {
		return false
	}
	if !q.CreatedBefore.IsZero() && !meta.CreatedAt.Before(q.CreatedBefore) {
		return false
	}
	return true
}

// NewBlobID allocates a fresh blob identifier.
func NewBlobID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("allocate blob id: %w: %w", models.ErrStoreUnavailable, err)
	}
	return id.String(), nil
}

// ValidBlobID reports whether id has the canonical blob id form.
func ValidBlobID(id string) bool {
	if len(id) != 36 {
		return false
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return parsed.String() == id
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
}

func notFound(blobID string) error {
	return fmt.Errorf("blob %s: %w", blobID, models.ErrNotFound)
}
