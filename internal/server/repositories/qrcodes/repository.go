// Package qrcodes declares the storage contract for QR login credential
// records and implements it for PostgreSQL and SQLite.
package qrcodes

import (
	"context"
	"time"

	"github.com/atiera/qrlogin/internal/server/models"
)

// Repository stores QR login credential records. Records are never deleted;
// every update that ends a record's life is guarded by
// "is_active AND revoked_at IS NULL" so a revoked record stays terminal.
type Repository interface {
	// LockOwner serialises credential changes of ownerID until the
	// surrounding transaction ends. Outside a transaction it is a no-op.
	LockOwner(ctx context.Context, ownerID string) error

	// Create inserts code as the owner's active record.
	Create(ctx context.Context, code *models.QRCode) error

	// RevokeActive marks every active record of ownerID revoked at the given
	// time and returns how many records changed.
	RevokeActive(ctx context.Context, ownerID string, at time.Time) (int64, error)

	// FindActiveByOwner returns the newest active record of ownerID or
	// common.ErrorNotFound.
	FindActiveByOwner(ctx context.Context, ownerID string) (*models.QRCode, error)

	// FindActiveByHash returns the active record with the given token hash
	// joined to its owner, or common.ErrorNotFound.
	FindActiveByHash(ctx context.Context, tokenHash string) (*models.VerifiedQRCode, error)

	// MarkUsed records a successful use. The stored timestamp never moves
	// backwards. Unknown ids yield common.ErrorNotFound.
	MarkUsed(ctx context.Context, id string, at time.Time, ip, userAgent string) error
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
