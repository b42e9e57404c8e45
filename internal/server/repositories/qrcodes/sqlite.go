package qrcodes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atiera/qrlogin/internal/common"
	"github.com/atiera/qrlogin/internal/dbx"
	"github.com/atiera/qrlogin/internal/server/models"
)

// SQLiteRepository implements Repository for the SQLite schema, where
// timestamps are stored as unix nanoseconds and booleans as integers.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository constructs a repository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// LockOwner is a no-op: the SQLite store runs on a single connection, so
// transactions are already serialised.
func (r *SQLiteRepository) LockOwner(ctx context.Context, ownerID string) error {
	return nil
}

func (r *SQLiteRepository) Create(ctx context.Context, code *models.QRCode) error {
	query := `
		INSERT INTO user_qr_codes (id, user_id, token_hash, token_cipher, token_iv, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
	`
	if _, err := r.db.ExecContext(ctx, query,
		code.ID, code.OwnerID, code.TokenHash, code.TokenCipher, code.TokenIV, code.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	code.IsActive = true
	return nil
}

func (r *SQLiteRepository) RevokeActive(ctx context.Context, ownerID string, at time.Time) (int64, error) {
	query := `
		UPDATE user_qr_codes
		SET is_active = 0, revoked_at = ?
		WHERE user_id = ? AND is_active = 1 AND revoked_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, at.UnixNano(), ownerID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) FindActiveByOwner(ctx context.Context, ownerID string) (*models.QRCode, error) {
	query := `
		SELECT id, user_id, token_hash, token_cipher, token_iv, is_active,
			created_at, revoked_at, last_used_at, last_used_ip, last_used_user_agent
		FROM user_qr_codes
		WHERE user_id = ? AND is_active = 1 AND revoked_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`
	code := &models.QRCode{}
	if err := scanSQLiteCode(r.db.QueryRowContext(ctx, query, ownerID), code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return code, nil
}

func (r *SQLiteRepository) FindActiveByHash(ctx context.Context, tokenHash string) (*models.VerifiedQRCode, error) {
	query := `
		SELECT qc.id, qc.user_id, qc.token_hash, qc.token_cipher, qc.token_iv, qc.is_active,
			qc.created_at, qc.revoked_at, qc.last_used_at, qc.last_used_ip, qc.last_used_user_agent,
			u.id, u.username, u.full_name, u.role, u.status
		FROM user_qr_codes qc
		JOIN users u ON u.id = qc.user_id
		WHERE qc.token_hash = ? AND qc.is_active = 1 AND qc.revoked_at IS NULL
		LIMIT 1
	`
	v := &models.VerifiedQRCode{}
	owner := []any{&v.Owner.ID, &v.Owner.UserName, &v.Owner.FullName, &v.Owner.Role, &v.Owner.Status}
	if err := scanSQLiteCode(r.db.QueryRowContext(ctx, query, tokenHash), &v.Code, owner...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *SQLiteRepository) MarkUsed(ctx context.Context, id string, at time.Time, ip, userAgent string) error {
	query := `
		UPDATE user_qr_codes
		SET last_used_at = MAX(COALESCE(last_used_at, ?), ?),
			last_used_ip = ?,
			last_used_user_agent = ?
		WHERE id = ?
	`
	ts := at.UnixNano()
	res, err := r.db.ExecContext(ctx, query, ts, ts, ip, userAgent, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func scanSQLiteCode(row scanner, code *models.QRCode, extra ...any) error {
	var (
		active                int64
		createdAt             int64
		revokedAt, lastUsedAt sql.NullInt64
		lastIP, lastUA        sql.NullString
	)
	dest := append([]any{
		&code.ID, &code.OwnerID, &code.TokenHash, &code.TokenCipher, &code.TokenIV, &active,
		&createdAt, &revokedAt, &lastUsedAt, &lastIP, &lastUA,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	code.IsActive = active != 0
	code.CreatedAt = time.Unix(0, createdAt).UTC()
	code.RevokedAt = nanosToTime(revokedAt)
	code.LastUsedAt = nanosToTime(lastUsedAt)
	code.LastUsedIP = nullString(lastIP)
	code.LastUsedUserAgent = nullString(lastUA)
	return nil
}

func nanosToTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}
