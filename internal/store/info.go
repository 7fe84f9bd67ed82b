package store

import "context"

// StoreInfo summarizes database contents for the admin info command.
type StoreInfo struct {
	SchemaVersion  int   `json:"schema_version"`
	Users          int   `json:"users"`
	Files          int   `json:"files"`
	Bundles        int   `json:"bundles"`
	CommittedBlobs int   `json:"committed_blobs"`
	PendingBlobs   int   `json:"pending_blobs"`
	StoredBytes    int64 `json:"stored_bytes"`
	ChunkCount     int64 `json:"chunk_count"`
}

// StoreInfo returns row counts and stored byte totals.
func (s *Store) StoreInfo(ctx context.Context) (*StoreInfo, error) {
	info := &StoreInfo{}

	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&info.SchemaVersion); err != nil {
		return nil, unavailable("schema version", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&info.Users); err != nil {
		return nil, unavailable("count users", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN kind = 'plain' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'bundle' THEN 1 ELSE 0 END), 0)
		FROM file_refs
	`).Scan(&info.Files, &info.Bundles); err != nil {
		return nil, unavailable("count files", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN state = 'committed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'pending' THEN 1 ELSE 0 END), 0)
		FROM blobs
	`).Scan(&info.CommittedBlobs, &info.PendingBlobs); err != nil {
		return nil, unavailable("count blobs", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(SUM(LENGTH(data)), 0) FROM blob_chunks").Scan(&info.ChunkCount, &info.StoredBytes); err != nil {
		return nil, unavailable("count chunks", err)
	}
	return info, nil
}
