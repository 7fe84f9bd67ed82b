package store

import (
	"context"
	"time"

	"filebox/internal/models"
)

// FileRegistry records which blobs each identity owns.
type FileRegistry interface {
	RegisterPlainFile(ctx context.Context, owner models.Identity, blobID, displayName string, size int64) (models.FileReference, error)
	RegisterBundle(ctx context.Context, owner models.Identity, blobID, displayName string, size int64, constituents []models.Constituent) (models.FileReference, error)
	ListFiles(ctx context.Context, owner models.Identity) (plain, bundles []models.FileReference, err error)
	ResolveOwned(ctx context.Context, owner models.Identity, blobID string) (models.FileReference, error)
	ReferencedBlobs(ctx context.Context, blobIDs []string) (map[string]bool, error)
}

// UserStore persists registered accounts.
type UserStore interface {
	CreateUser(ctx context.Context, email, name, passwordHash string, now time.Time) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

var (
	_ FileRegistry = (*Store)(nil)
	_ UserStore    = (*Store)(nil)
)
