package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/fxamacker/cbor/v2"

	"filebox/internal/models"
)

// ErrObjectNotFound is returned by an ObjectBackend for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectBackend is a flat key/value object namespace such as a directory,
// an S3 bucket or a GCS bucket. Overwriting a key must be atomic.
type ObjectBackend interface {
	Name() string
	PutObject(ctx context.Context, key string, data []byte) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	// DeleteObject removes key. Missing keys are not an error.
	DeleteObject(ctx context.Context, key string) error
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	// ListChildren returns the distinct names directly below prefix that sort
	// after after, ascending, at most limit of them when limit > 0.
	ListChildren(ctx context.Context, prefix, after string, limit int) ([]string, error)
}

const (
	objectBlobsPrefix = "blobs/"
	listPageSize      = 256
)

var (
	objectEncMode cbor.EncMode
	objectDecMode cbor.DecMode
)

func init() {
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	var err error
	objectEncMode, err = encOptions.EncMode()
	if err != nil {
		panic("blobstore: CBOR encoder initialization failed: " + err.Error())
	}
	objectDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("blobstore: CBOR decoder initialization failed: " + err.Error())
	}
}

// objectManifest is the per-blob metadata object. Its state flips from
// pending to committed in a single overwrite.
type objectManifest struct {
	ID          string            `cbor:"id"`
	Filename    string            `cbor:"filename"`
	ContentType string            `cbor:"content_type"`
	Owner       string            `cbor:"owner"`
	Tags        map[string]string `cbor:"tags,omitempty"`
	State       string            `cbor:"state"`
	Length      int64             `cbor:"length"`
	ChunkCount  int               `cbor:"chunk_count"`
	Digest      string            `cbor:"digest,omitempty"`
	CreatedAt   time.Time         `cbor:"created_at"`
	CommittedAt *time.Time        `cbor:"committed_at,omitempty"`
}

func (m objectManifest) metadata() models.BlobMetadata {
	return models.BlobMetadata{
		ID:          m.ID,
		Filename:    m.Filename,
		Length:      m.Length,
		ContentType: m.ContentType,
		Owner:       models.Identity(m.Owner),
		Tags:        m.Tags,
		ChunkCount:  m.ChunkCount,
		Digest:      m.Digest,
		State:       models.BlobState(m.State),
		CreatedAt:   m.CreatedAt,
		CommittedAt: m.CommittedAt,
	}
}

// ObjectStore implements ChunkStore on top of an ObjectBackend.
//
// Layout per blob: blobs/<id>/manifest and blobs/<id>/chunks/<seq>.
type ObjectStore struct {
	backend     ObjectBackend
	compression Compression
	now         func() time.Time
}

// NewObjectStore builds a ChunkStore over backend.
func NewObjectStore(backend ObjectBackend, compression Compression) (*ObjectStore, error) {
	if backend == nil {
		return nil, fmt.Errorf("object backend is required")
	}
	return &ObjectStore{backend: backend, compression: compression, now: time.Now}, nil
}

// Backend returns the backend name.
func (s *ObjectStore) Backend() string {
	return s.backend.Name()
}

func manifestKey(id string) string {
	return objectBlobsPrefix + id + "/manifest"
}

func chunkKey(id string, seq int) string {
	return fmt.Sprintf("%s%s/chunks/%08d", objectBlobsPrefix, id, seq)
}

// BeginWrite allocates a blob id and records a pending manifest.
func (s *ObjectStore) BeginWrite(ctx context.Context, blob models.NewBlob) (WriteHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := NewBlobID()
	if err != nil {
		return nil, err
	}
	manifest := objectManifest{
		ID:          id,
		Filename:    blob.Filename,
		ContentType: blob.ContentType,
		Owner:       blob.Owner.String(),
		Tags:        blob.Tags,
		State:       string(models.BlobStatePending),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.putManifest(ctx, manifest); err != nil {
		return nil, err
	}
	return &objectWriteHandle{
		store:      s,
		manifest:   manifest,
		allowEmpty: blob.AllowEmpty,
		digest:     NewDigest(),
	}, nil
}

// OpenRead opens a committed blob for sequential chunk reads.
func (s *ObjectStore) OpenRead(ctx context.Context, blobID string) (ReadHandle, error) {
	manifest, err := s.committedManifest(ctx, blobID)
	if err != nil {
		return nil, err
	}
	return &objectReadHandle{store: s, manifest: manifest}, nil
}

// Stat returns metadata for a committed blob.
func (s *ObjectStore) Stat(ctx context.Context, blobID string) (models.BlobMetadata, error) {
	manifest, err := s.committedManifest(ctx, blobID)
	if err != nil {
		return models.BlobMetadata{}, err
	}
	return manifest.metadata(), nil
}

// Delete removes the manifest first so the blob disappears from readers,
// then its chunks.
func (s *ObjectStore) Delete(ctx context.Context, blobID string) error {
	if !ValidBlobID(blobID) {
		return nil
	}
	if err := s.backend.DeleteObject(ctx, manifestKey(blobID)); err != nil {
		return unavailable("delete manifest", err)
	}
	keys, err := s.backend.ListObjects(ctx, objectBlobsPrefix+blobID+"/")
	if err != nil {
		return unavailable("list chunks", err)
	}
	for _, key := range keys {
		if err := s.backend.DeleteObject(ctx, key); err != nil {
			return unavailable("delete chunk", err)
		}
	}
	return nil
}

// ListBlobs pages through blobs ordered by id. Chunks left behind without a
// manifest are reported as pending blobs with a zero creation time.
func (s *ObjectStore) ListBlobs(ctx context.Context, query ListQuery) ([]models.BlobMetadata, error) {
	out := make([]models.BlobMetadata, 0)
	cursor := query.AfterID
	for {
		ids, err := s.backend.ListChildren(ctx, objectBlobsPrefix, cursor, listPageSize)
		if err != nil {
			return nil, unavailable("list blobs", err)
		}
		for _, id := range ids {
			cursor = id
			if !ValidBlobID(id) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			manifest, err := s.loadManifest(ctx, id)
			switch {
			case errors.Is(err, models.ErrNotFound):
				manifest = objectManifest{ID: id, State: string(models.BlobStatePending)}
			case err != nil:
				return nil, err
			}
			meta := manifest.metadata()
			if !query.Matches(meta) {
				continue
			}
			out = append(out, meta)
			if query.Limit > 0 && len(out) >= query.Limit {
				return out, nil
			}
		}
		if len(ids) < listPageSize {
			return out, nil
		}
	}
}

func appendChild(names []string, name, after string) []string {
	if name == "" || name <= after {
		return names
	}
	return append(names, name)
}

func sortedChildren(names []string, limit int) []string {
	slices.Sort(names)
	names = slices.Compact(names)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names
}

func (s *ObjectStore) committedManifest(ctx context.Context, blobID string) (objectManifest, error) {
	if err := ctx.Err(); err != nil {
		return objectManifest{}, err
	}
	if !ValidBlobID(blobID) {
		return objectManifest{}, notFound(blobID)
	}
	manifest, err := s.loadManifest(ctx, blobID)
	if err != nil {
		return objectManifest{}, err
	}
	if manifest.State != string(models.BlobStateCommitted) {
		return objectManifest{}, notFound(blobID)
	}
	return manifest, nil
}

func (s *ObjectStore) loadManifest(ctx context.Context, blobID string) (objectManifest, error) {
	data, err := s.backend.GetObject(ctx, manifestKey(blobID))
	if errors.Is(err, ErrObjectNotFound) {
		return objectManifest{}, notFound(blobID)
	}
	if err != nil {
		return objectManifest{}, unavailable("read manifest", err)
	}
	var manifest objectManifest
	if err := objectDecMode.Unmarshal(data, &manifest); err != nil {
		return objectManifest{}, unavailable("decode manifest", err)
	}
	return manifest, nil
}

func (s *ObjectStore) putManifest(ctx context.Context, manifest objectManifest) error {
	data, err := objectEncMode.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := s.backend.PutObject(ctx, manifestKey(manifest.ID), data); err != nil {
		return unavailable("write manifest", err)
	}
	return nil
}

type handleState int

const (
	handleOpen handleState = iota
	handleCommitted
	handleAborted
)

type objectWriteHandle struct {
	store      *ObjectStore
	manifest   objectManifest
	allowEmpty bool
	digest     *Digest
	seq        int
	state      handleState
}

func (h *objectWriteHandle) ID() string {
	return h.manifest.ID
}

func (h *objectWriteHandle) WriteChunk(ctx context.Context, p []byte) error {
	if h.state != handleOpen {
		return fmt.Errorf("write to closed blob %s", h.manifest.ID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	encoded, err := EncodeChunk(p, h.store.compression)
	if err != nil {
		return err
	}
	data, err := objectEncMode.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("encode chunk: %w", err)
	}
	if err := h.store.backend.PutObject(ctx, chunkKey(h.manifest.ID, h.seq), data); err != nil {
		return unavailable(fmt.Sprintf("write chunk %d", h.seq), err)
	}
	h.seq++
	h.manifest.Length += int64(len(p))
	h.digest.Add(p)
	return nil
}

func (h *objectWriteHandle) Commit(ctx context.Context) (models.BlobMetadata, error) {
	if h.state != handleOpen {
		return models.BlobMetadata{}, fmt.Errorf("commit of closed blob %s", h.manifest.ID)
	}
	if h.seq == 0 && !h.allowEmpty {
		return models.BlobMetadata{}, fmt.Errorf("blob %s has no chunks: %w", h.manifest.ID, models.ErrIncompleteWrite)
	}
	committedAt := h.store.now().UTC()
	manifest := h.manifest
	manifest.State = string(models.BlobStateCommitted)
	manifest.ChunkCount = h.seq
	manifest.Digest = h.digest.Hex()
	manifest.CommittedAt = &committedAt
	if err := h.store.putManifest(ctx, manifest); err != nil {
		return models.BlobMetadata{}, err
	}
	h.manifest = manifest
	h.state = handleCommitted
	return manifest.metadata(), nil
}

func (h *objectWriteHandle) Abort(ctx context.Context) error {
	if h.state != handleOpen {
		return nil
	}
	h.state = handleAborted
	return h.store.Delete(ctx, h.manifest.ID)
}

type objectReadHandle struct {
	store    *ObjectStore
	manifest objectManifest
	next     int
	closed   bool
}

func (h *objectReadHandle) Metadata() models.BlobMetadata {
	return h.manifest.metadata()
}

func (h *objectReadHandle) Next(ctx context.Context) ([]byte, error) {
	if h.closed {
		return nil, fmt.Errorf("read from closed blob %s", h.manifest.ID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.next >= h.manifest.ChunkCount {
		return nil, io.EOF
	}
	raw, err := h.store.backend.GetObject(ctx, chunkKey(h.manifest.ID, h.next))
	if errors.Is(err, ErrObjectNotFound) {
		return nil, unavailable(fmt.Sprintf("read chunk %d", h.next), fmt.Errorf("chunk missing"))
	}
	if err != nil {
		return nil, unavailable(fmt.Sprintf("read chunk %d", h.next), err)
	}
	var encoded EncodedChunk
	if err := objectDecMode.Unmarshal(raw, &encoded); err != nil {
		return nil, unavailable(fmt.Sprintf("decode chunk %d", h.next), err)
	}
	data, err := DecodeChunk(encoded)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("verify chunk %d", h.next), err)
	}
	h.next++
	return data, nil
}

func (h *objectReadHandle) Close() error {
	h.closed = true
	return nil
}
