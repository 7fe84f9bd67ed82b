package models

import (
	"fmt"
	"strings"
)

// FileKind distinguishes plain uploads from multi-file bundles.
type FileKind string

const (
	FileKindPlain  FileKind = "plain"
	FileKindBundle FileKind = "bundle"
)

// BlobState tracks whether a blob has been committed by its writer.
type BlobState string

const (
	BlobStatePending   BlobState = "pending"
	BlobStateCommitted BlobState = "committed"
)

const (
	// DefaultChunkSize is the fixed chunk size used when nothing else is configured.
	DefaultChunkSize = 255 * 1024

	// DefaultMaxUploadBytes caps the logical size of one uploaded blob (50 MiB).
	DefaultMaxUploadBytes int64 = 50 * 1024 * 1024

	// FallbackContentType is served when a blob carries no content type.
	FallbackContentType = "application/octet-stream"
)

var validFileKinds = map[FileKind]struct{}{
	FileKindPlain:  {},
	FileKindBundle: {},
}

var validBlobStates = map[BlobState]struct{}{
	BlobStatePending:   {},
	BlobStateCommitted: {},
}

// ParseFileKind normalizes and validates a file kind.
func ParseFileKind(value string) (FileKind, error) {
	normalized := FileKind(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := validFileKinds[normalized]; !ok {
		return "", fmt.Errorf("invalid file kind: %s", value)
	}
	return normalized, nil
}

// ParseBlobState normalizes and validates a blob state.
func ParseBlobState(value string) (BlobState, error) {
	normalized := BlobState(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := validBlobStates[normalized]; !ok {
		return "", fmt.Errorf("invalid blob state: %s", value)
	}
	return normalized, nil
}

// ValidateConstituents checks that a bundle lists at least one named, sized member.
func ValidateConstituents(constituents []Constituent) error {
	if len(constituents) == 0 {
		return fmt.Errorf("bundle requires at least one constituent")
	}
	for i, c := range constituents {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("constituent %d: name is required", i)
		}
		if c.Size < 0 {
			return fmt.Errorf("constituent %d: size must be >= 0", i)
		}
	}
	return nil
}
