package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"filebox/internal/models"
)

const referencedBlobsBatch = 500

// RegisterPlainFile appends a plain file reference for owner.
func (s *Store) RegisterPlainFile(ctx context.Context, owner models.Identity, blobID, displayName string, size int64) (models.FileReference, error) {
	ref := models.FileReference{
		BlobID:       blobID,
		Owner:        owner,
		DisplayName:  displayName,
		OriginalName: displayName,
		Size:         size,
		UploadedAt:   s.now().UTC(),
		Kind:         models.FileKindPlain,
	}
	if err := s.insertFileRef(ctx, &ref); err != nil {
		return models.FileReference{}, err
	}
	return ref, nil
}

// RegisterBundle appends a bundle reference and its constituents in one transaction.
func (s *Store) RegisterBundle(ctx context.Context, owner models.Identity, blobID, displayName string, size int64, constituents []models.Constituent) (models.FileReference, error) {
	if err := models.ValidateConstituents(constituents); err != nil {
		return models.FileReference{}, err
	}
	ref := models.FileReference{
		BlobID:       blobID,
		Owner:        owner,
		DisplayName:  displayName,
		OriginalName: displayName,
		Size:         size,
		UploadedAt:   s.now().UTC(),
		Kind:         models.FileKindBundle,
		Constituents: append([]models.Constituent(nil), constituents...),
	}
	if err := s.insertFileRef(ctx, &ref); err != nil {
		return models.FileReference{}, err
	}
	return ref, nil
}

func (s *Store) insertFileRef(ctx context.Context, ref *models.FileReference) (err error) {
	if strings.TrimSpace(ref.Owner.String()) == "" {
		return fmt.Errorf("owner is required")
	}
	if strings.TrimSpace(ref.BlobID) == "" {
		return fmt.Errorf("blob id is required")
	}
	if ref.Size < 0 {
		return fmt.Errorf("size must be >= 0")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("register file", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO file_refs (blob_id, owner, display_name, original_name, size, kind, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ref.BlobID, ref.Owner.String(), ref.DisplayName, ref.OriginalName, ref.Size, string(ref.Kind), dbFormatTime(ref.UploadedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("file %s already registered: %w", ref.BlobID, models.ErrConflict)
		}
		return unavailable("register file", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return unavailable("register file", err)
	}

	for i, c := range ref.Constituents {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO file_constituents (file_seq, position, name, original_name, size)
			VALUES (?, ?, ?, ?, ?)
		`, seq, i, c.Name, c.OriginalName, c.Size)
		if err != nil {
			return unavailable("register constituent", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return unavailable("register file", err)
	}
	return nil
}

// ListFiles returns owner's plain files and bundles, each in upload order.
func (s *Store) ListFiles(ctx context.Context, owner models.Identity) (plain, bundles []models.FileReference, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, blob_id, owner, display_name, original_name, size, kind, uploaded_at
		FROM file_refs
		WHERE owner = ?
		ORDER BY seq ASC
	`, owner.String())
	if err != nil {
		return nil, nil, unavailable("list files", err)
	}
	defer rows.Close()

	plain = make([]models.FileReference, 0)
	bundles = make([]models.FileReference, 0)
	bundleSeqs := make([]int64, 0)
	for rows.Next() {
		seq, ref, err := scanFileRef(rows)
		if err != nil {
			return nil, nil, unavailable("scan file", err)
		}
		if ref.IsBundle() {
			bundles = append(bundles, ref)
			bundleSeqs = append(bundleSeqs, seq)
			continue
		}
		plain = append(plain, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, unavailable("list files", err)
	}
	if err := rows.Close(); err != nil {
		return nil, nil, unavailable("list files", err)
	}

	if len(bundleSeqs) == 0 {
		return plain, bundles, nil
	}
	constituents, err := s.constituentsFor(ctx, bundleSeqs)
	if err != nil {
		return nil, nil, err
	}
	for i := range bundles {
		bundles[i].Constituents = constituents[bundleSeqs[i]]
	}
	return plain, bundles, nil
}

// ResolveOwned returns the reference for blobID when owner holds it.
// Unknown ids are models.ErrNotFound; another owner's id is models.ErrForbidden.
func (s *Store) ResolveOwned(ctx context.Context, owner models.Identity, blobID string) (models.FileReference, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, blob_id, owner, display_name, original_name, size, kind, uploaded_at
		FROM file_refs
		WHERE blob_id = ?
		LIMIT 1
	`, blobID)
	seq, ref, err := scanFileRef(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FileReference{}, fmt.Errorf("file %s: %w", blobID, models.ErrNotFound)
	}
	if err != nil {
		return models.FileReference{}, unavailable("resolve file", err)
	}
	if ref.Owner != owner {
		return models.FileReference{}, fmt.Errorf("file %s: %w", blobID, models.ErrForbidden)
	}
	if ref.IsBundle() {
		constituents, err := s.constituentsFor(ctx, []int64{seq})
		if err != nil {
			return models.FileReference{}, err
		}
		ref.Constituents = constituents[seq]
	}
	return ref, nil
}

// ReferencedBlobs reports which of blobIDs have a registry entry.
func (s *Store) ReferencedBlobs(ctx context.Context, blobIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(blobIDs))
	for start := 0; start < len(blobIDs); start += referencedBlobsBatch {
		end := min(start+referencedBlobsBatch, len(blobIDs))
		batch := blobIDs[start:end]

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		rows, err := s.db.QueryContext(ctx,
			"SELECT blob_id FROM file_refs WHERE blob_id IN ("+placeholders(len(batch))+")", args...)
		if err != nil {
			return nil, unavailable("referenced blobs", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return nil, unavailable("referenced blobs", err)
			}
			out[id] = true
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, unavailable("referenced blobs", err)
		}
		_ = rows.Close()
	}
	return out, nil
}

func (s *Store) constituentsFor(ctx context.Context, seqs []int64) (map[int64][]models.Constituent, error) {
	args := make([]any, len(seqs))
	for i, seq := range seqs {
		args[i] = seq
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_seq, name, original_name, size
		FROM file_constituents
		WHERE file_seq IN (`+placeholders(len(seqs))+`)
		ORDER BY file_seq ASC, position ASC
	`, args...)
	if err != nil {
		return nil, unavailable("list constituents", err)
	}
	defer rows.Close()

	out := make(map[int64][]models.Constituent, len(seqs))
	for rows.Next() {
		var seq int64
		var c models.Constituent
		if err := rows.Scan(&seq, &c.Name, &c.OriginalName, &c.Size); err != nil {
			return nil, unavailable("scan constituent", err)
		}
		out[seq] = append(out[seq], c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list constituents", err)
	}
	return out, nil
}

func scanFileRef(scanner interface {
	Scan(dest ...any) error
}) (int64, models.FileReference, error) {
	var seq int64
	var ref models.FileReference
	var owner, kind, uploadedAt string
	if err := scanner.Scan(&seq, &ref.BlobID, &owner, &ref.DisplayName, &ref.OriginalName, &ref.Size, &kind, &uploadedAt); err != nil {
		return 0, models.FileReference{}, err
	}
	ref.Owner = models.Identity(owner)
	parsedKind, err := models.ParseFileKind(kind)
	if err != nil {
		return 0, models.FileReference{}, err
	}
	ref.Kind = parsedKind
	if ref.UploadedAt, err = dbParseTime(uploadedAt); err != nil {
		return 0, models.FileReference{}, err
	}
	return seq, ref, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
