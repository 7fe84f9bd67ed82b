package models

import "time"

// Identity is the opaque user identifier produced by credential verification.
type Identity string

// String returns the identity as a plain string.
func (i Identity) String() string {
	return string(i)
}

// Constituent describes one original file inside a bundle.
type Constituent struct {
	Name         string `json:"name"`
	OriginalName string `json:"originalName,omitempty"`
	Size         int64  `json:"size"`
}

// FileReference is a registry entry pointing at one committed blob.
type FileReference struct {
	BlobID       string        `json:"fileId"`
	Owner        Identity      `json:"-"`
	DisplayName  string        `json:"name"`
	OriginalName string        `json:"originalName"`
	Size         int64         `json:"size"`
	UploadedAt   time.Time     `json:"uploadDate"`
	Kind         FileKind      `json:"kind"`
	Constituents []Constituent `json:"originalFiles,omitempty"`
}

// IsBundle reports whether the reference points at a bundle.
func (r FileReference) IsBundle() bool {
	return r.Kind == FileKindBundle
}

// FileListing groups one owner's references by kind, each in insertion order.
type FileListing struct {
	Files   []FileReference `json:"files"`
	Bundles []FileReference `json:"zippedFiles"`
}
