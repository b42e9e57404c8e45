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

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const pgCodeColumns = `id, user_id, token_hash, token_cipher, token_iv, is_active,
		created_at, revoked_at, last_used_at, last_used_ip, last_used_user_agent`

// LockOwner takes a transaction-scoped advisory lock keyed by the owner id.
func (r *PostgresRepository) LockOwner(ctx context.Context, ownerID string) error {
	query := `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`
	if _, err := r.db.ExecContext(ctx, query, ownerID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, code *models.QRCode) error {
	query := `
		INSERT INTO user_qr_codes (id, user_id, token_hash, token_cipher, token_iv, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
	`
	if _, err := r.db.ExecContext(ctx, query,
		code.ID, code.OwnerID, code.TokenHash, code.TokenCipher, code.TokenIV, code.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	code.IsActive = true
	return nil
}

func (r *PostgresRepository) RevokeActive(ctx context.Context, ownerID string, at time.Time) (int64, error) {
	query := `
		UPDATE user_qr_codes
		SET is_active = FALSE, revoked_at = $2
		WHERE user_id = $1 AND is_active AND revoked_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, ownerID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) FindActiveByOwner(ctx context.Context, ownerID string) (*models.QRCode, error) {
	query := `
		SELECT ` + pgCodeColumns + `
		FROM user_qr_codes
		WHERE user_id = $1 AND is_active AND revoked_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`
	code := &models.QRCode{}
	if err := scanPostgresCode(r.db.QueryRowContext(ctx, query, ownerID), code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return code, nil
}

func (r *PostgresRepository) FindActiveByHash(ctx context.Context, tokenHash string) (*models.VerifiedQRCode, error) {
	query := `
		SELECT qc.id, qc.user_id, qc.token_hash, qc.token_cipher, qc.token_iv, qc.is_active,
			qc.created_at, qc.revoked_at, qc.last_used_at, qc.last_used_ip, qc.last_used_user_agent,
			u.id, u.username, u.full_name, u.role, u.status
		FROM user_qr_codes qc
		JOIN users u ON u.id = qc.user_id
		WHERE qc.token_hash = $1 AND qc.is_active AND qc.revoked_at IS NULL
		LIMIT 1
	`
	v := &models.VerifiedQRCode{}
	owner := []any{&v.Owner.ID, &v.Owner.UserName, &v.Owner.FullName, &v.Owner.Role, &v.Owner.Status}
	if err := scanPostgresCode(r.db.QueryRowContext(ctx, query, tokenHash), &v.Code, owner...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, id string, at time.Time, ip, userAgent string) error {
	query := `
		UPDATE user_qr_codes
		SET last_used_at = GREATEST(COALESCE(last_used_at, $2), $2),
			last_used_ip = $3,
			last_used_user_agent = $4
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, at, ip, userAgent)
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

func scanPostgresCode(row scanner, code *models.QRCode, extra ...any) error {
	var (
		revokedAt, lastUsedAt sql.NullTime
		lastIP, lastUA        sql.NullString
	)
	dest := append([]any{
		&code.ID, &code.OwnerID, &code.TokenHash, &code.TokenCipher, &code.TokenIV, &code.IsActive,
		&code.CreatedAt, &revokedAt, &lastUsedAt, &lastIP, &lastUA,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	code.RevokedAt = nullTime(revokedAt)
	code.LastUsedAt = nullTime(lastUsedAt)
	code.LastUsedIP = nullString(lastIP)
	code.LastUsedUserAgent = nullString(lastUA)
	return nil
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
