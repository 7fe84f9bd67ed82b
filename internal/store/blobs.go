package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"filebox/internal/blobstore"
	"filebox/internal/models"
)

const blobColumns = `id, filename, content_type, owner, tags, state, length, chunk_count, digest, created_at, committed_at`

// BlobStore is the SQLite Chunk Store: one blobs row per blob plus one
// blob_chunks row per chunk.
type BlobStore struct {
	db          *sql.DB
	compression blobstore.Compression
	now         func() time.Time
}

var _ blobstore.ChunkStore = (*BlobStore)(nil)

// Blobs returns a Chunk Store sharing this database.
func (s *Store) Blobs(compression blobstore.Compression) *BlobStore {
	return &BlobStore{db: s.db, compression: compression, now: s.now}
}

// BeginWrite checks the database is reachable and allocates a blob id.
// The blob row is written together with the first chunk.
func (b *BlobStore) BeginWrite(ctx context.Context, blob models.NewBlob) (blobstore.WriteHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.db.PingContext(ctx); err != nil {
		return nil, unavailable("begin write", err)
	}
	id, err := blobstore.NewBlobID()
	if err != nil {
		return nil, err
	}
	tags, err := encodeTags(blob.Tags)
	if err != nil {
		return nil, err
	}
	return &sqliteWriteHandle{
		store:     b,
		id:        id,
		blob:      blob,
		tags:      tags,
		createdAt: b.now().UTC(),
		digest:    blobstore.NewDigest(),
	}, nil
}

func (b *BlobStore) OpenRead(ctx context.Context, blobID string) (blobstore.ReadHandle, error) {
	meta, err := b.Stat(ctx, blobID)
	if err != nil {
		return nil, err
	}
	return &sqliteReadHandle{store: b, meta: meta}, nil
}

func (b *BlobStore) Stat(ctx context.Context, blobID string) (models.BlobMetadata, error) {
	if err := ctx.Err(); err != nil {
		return models.BlobMetadata{}, err
	}
	if !blobstore.ValidBlobID(blobID) {
		return models.BlobMetadata{}, blobNotFound(blobID)
	}
	row := b.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE id = ? AND state = ?`,
		blobID, string(models.BlobStateCommitted))
	meta, err := scanBlob(row)
	if err != nil {
		return models.BlobMetadata{}, unavailable("stat blob", err)
	}
	if meta == nil {
		return models.BlobMetadata{}, blobNotFound(blobID)
	}
	return *meta, nil
}

// Delete removes chunks then the blob row in one transaction.
func (b *BlobStore) Delete(ctx context.Context, blobID string) error {
	if !blobstore.ValidBlobID(blobID) {
		return nil
	}
	return b.deleteBlob(ctx, blobID)
}

func (b *BlobStore) deleteBlob(ctx context.Context, blobID string) (err error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("delete blob", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM blob_chunks WHERE blob_id = ?", blobID); err != nil {
		return unavailable("delete chunks", err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM blobs WHERE id = ?", blobID); err != nil {
		return unavailable("delete blob", err)
	}
	if err = tx.Commit(); err != nil {
		return unavailable("delete blob", err)
	}
	return nil
}

func (b *BlobStore) ListBlobs(ctx context.Context, query blobstore.ListQuery) ([]models.BlobMetadata, error) {
	conditions := []string{"id > ?"}
	args := []any{query.AfterID}
	if !query.IncludePending {
		conditions = append(conditions, "state = ?")
		args = append(args, string(models.BlobStateCommitted))
	}
	if !query.CreatedBefore.IsZero() {
		conditions = append(conditions, "created_at < ?")
		args = append(args, dbFormatTime(query.CreatedBefore))
	}
	stmt := `SELECT ` + blobColumns + ` FROM blobs WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY id ASC`
	if query.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := b.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, unavailable("list blobs", err)
	}
	defer rows.Close()

	out := make([]models.BlobMetadata, 0)
	for rows.Next() {
		meta, err := scanBlob(rows)
		if err != nil {
			return nil, unavailable("scan blob", err)
		}
		if meta != nil {
			out = append(out, *meta)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list blobs", err)
	}
	return out, nil
}

type sqliteWriteHandle struct {
	store     *BlobStore
	id        string
	blob      models.NewBlob
	tags      sql.NullString
	createdAt time.Time
	digest    *blobstore.Digest
	seq       int
	length    int64
	inserted  bool
	done      bool
}

func (h *sqliteWriteHandle) ID() string {
	return h.id
}

func (h *sqliteWriteHandle) WriteChunk(ctx context.Context, p []byte) (err error) {
	if h.done {
		return fmt.Errorf("write to closed blob %s", h.id)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	encoded, err := blobstore.EncodeChunk(p, h.store.compression)
	if err != nil {
		return err
	}

	tx, err := h.store.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(fmt.Sprintf("write chunk %d", h.seq), err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if !h.inserted {
		if err = h.insertRow(ctx, tx, models.BlobStatePending, nil); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO blob_chunks (blob_id, seq, size, codec, checksum, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`, h.id, h.seq, encoded.Size, int(encoded.Compression), encoded.Checksum, encoded.Payload)
	if err != nil {
		return unavailable(fmt.Sprintf("write chunk %d", h.seq), err)
	}
	if err = tx.Commit(); err != nil {
		return unavailable(fmt.Sprintf("write chunk %d", h.seq), err)
	}

	h.inserted = true
	h.seq++
	h.length += int64(len(p))
	h.digest.Add(p)
	return nil
}

func (h *sqliteWriteHandle) insertRow(ctx context.Context, tx *sql.Tx, state models.BlobState, committedAt *time.Time) error {
	var committed sql.NullString
	if committedAt != nil {
		committed = sql.NullString{String: dbFormatTime(*committedAt), Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO blobs (`+blobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.id, h.blob.Filename, h.blob.ContentType, h.blob.Owner.String(), h.tags, string(state),
		h.length, h.seq, sql.NullString{String: h.digest.Hex(), Valid: committedAt != nil},
		dbFormatTime(h.createdAt), committed)
	if err != nil {
		return unavailable("insert blob", err)
	}
	return nil
}

func (h *sqliteWriteHandle) Commit(ctx context.Context) (_ models.BlobMetadata, err error) {
	if h.done {
		return models.BlobMetadata{}, fmt.Errorf("commit of closed blob %s", h.id)
	}
	if h.seq == 0 && !h.blob.AllowEmpty {
		return models.BlobMetadata{}, fmt.Errorf("blob %s has no chunks: %w", h.id, models.ErrIncompleteWrite)
	}
	committedAt := h.store.now().UTC()

	tx, err := h.store.db.BeginTx(ctx, nil)
	if err != nil {
		return models.BlobMetadata{}, unavailable("commit blob", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if !h.inserted {
		if err = h.insertRow(ctx, tx, models.BlobStateCommitted, &committedAt); err != nil {
			return models.BlobMetadata{}, err
		}
	} else {
		result, execErr := tx.ExecContext(ctx, `
			UPDATE blobs
			SET state = ?, length = ?, chunk_count = ?, digest = ?, committed_at = ?
			WHERE id = ? AND state = ?
		`, string(models.BlobStateCommitted), h.length, h.seq, h.digest.Hex(), dbFormatTime(committedAt),
			h.id, string(models.BlobStatePending))
		if execErr != nil {
			err = unavailable("commit blob", execErr)
			return models.BlobMetadata{}, err
		}
		affected, affErr := result.RowsAffected()
		if affErr != nil {
			err = unavailable("commit blob", affErr)
			return models.BlobMetadata{}, err
		}
		if affected != 1 {
			err = fmt.Errorf("blob %s disappeared before commit: %w", h.id, models.ErrIncompleteWrite)
			return models.BlobMetadata{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return models.BlobMetadata{}, unavailable("commit blob", err)
	}

	h.done = true
	return models.BlobMetadata{
		ID:          h.id,
		Filename:    h.blob.Filename,
		Length:      h.length,
		ContentType: h.blob.ContentType,
		Owner:       h.blob.Owner,
		Tags:        h.blob.Tags,
		ChunkCount:  h.seq,
		Digest:      h.digest.Hex(),
		State:       models.BlobStateCommitted,
		CreatedAt:   h.createdAt,
		CommittedAt: &committedAt,
	}, nil
}

func (h *sqliteWriteHandle) Abort(ctx context.Context) error {
	if h.done {
		return nil
	}
	h.done = true
	if !h.inserted {
		return nil
	}
	return h.store.deleteBlob(ctx, h.id)
}

type sqliteReadHandle struct {
	store  *BlobStore
	meta   models.BlobMetadata
	next   int
	closed bool
}

func (h *sqliteReadHandle) Metadata() models.BlobMetadata {
	return h.meta
}

// Next loads exactly one chunk row per call.
func (h *sqliteReadHandle) Next(ctx context.Context) ([]byte, error) {
	if h.closed {
		return nil, fmt.Errorf("read from closed blob %s", h.meta.ID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.next >= h.meta.ChunkCount {
		return nil, io.EOF
	}

	var encoded blobstore.EncodedChunk
	var codec int
	err := h.store.db.QueryRowContext(ctx, `
		SELECT size, codec, checksum, data
		FROM blob_chunks
		WHERE blob_id = ? AND seq = ?
	`, h.meta.ID, h.next).Scan(&encoded.Size, &codec, &encoded.Checksum, &encoded.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, unavailable(fmt.Sprintf("read chunk %d of blob %s", h.next, h.meta.ID), fmt.Errorf("chunk missing"))
	}
	if err != nil {
		return nil, unavailable(fmt.Sprintf("read chunk %d of blob %s", h.next, h.meta.ID), err)
	}
	encoded.Compression = blobstore.Compression(codec)

	data, err := blobstore.DecodeChunk(encoded)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("verify chunk %d of blob %s", h.next, h.meta.ID), err)
	}
	h.next++
	return data, nil
}

func (h *sqliteReadHandle) Close() error {
	h.closed = true
	return nil
}

func scanBlob(scanner interface {
	Scan(dest ...any) error
}) (*models.BlobMetadata, error) {
	var meta models.BlobMetadata
	var owner, state, createdAt string
	var tags, digest, committedAt sql.NullString
	err := scanner.Scan(&meta.ID, &meta.Filename, &meta.ContentType, &owner, &tags, &state,
		&meta.Length, &meta.ChunkCount, &digest, &createdAt, &committedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	meta.Owner = models.Identity(owner)
	meta.Digest = digest.String
	if meta.State, err = models.ParseBlobState(state); err != nil {
		return nil, err
	}
	if meta.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	if meta.CommittedAt, err = dbParseNullTime(committedAt); err != nil {
		return nil, err
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &meta.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	return &meta, nil
}

func encodeTags(tags map[string]string) (sql.NullString, error) {
	if len(tags) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode tags: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func blobNotFound(blobID string) error {
	return fmt.Errorf("blob %s: %w", blobID, models.ErrNotFound)
}
