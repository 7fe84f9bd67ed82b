package models

import "time"

// NewBlob carries the metadata supplied when a write session begins.
type NewBlob struct {
	Filename    string
	ContentType string
	Owner       Identity
	Tags        map[string]string
	// AllowEmpty permits committing a blob with zero chunks.
	AllowEmpty bool
}

// BlobMetadata describes a stored blob.
type BlobMetadata struct {
	ID          string            `json:"id"`
	Filename    string            `json:"filename"`
	Length      int64             `json:"length"`
	ContentType string            `json:"content_type"`
	Owner       Identity          `json:"owner"`
	Tags        map[string]string `json:"tags,omitempty"`
	ChunkCount  int               `json:"chunk_count"`
	Digest      string            `json:"digest,omitempty"`
	State       BlobState         `json:"state"`
	CreatedAt   time.Time         `json:"created_at"`
	CommittedAt *time.Time        `json:"committed_at,omitempty"`
}

// Committed reports whether the blob is visible to readers.
func (b BlobMetadata) Committed() bool {
	return b.State == BlobStateCommitted
}
