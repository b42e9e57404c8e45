// Package services contains server-side business logic. This file implements
// QRCodeService, which issues, verifies, tracks and revokes QR login codes.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/atiera/qrlogin/internal/common"
	"github.com/atiera/qrlogin/internal/cryptox"
	"github.com/atiera/qrlogin/internal/dbx"
	"github.com/atiera/qrlogin/internal/logging"
	"github.com/atiera/qrlogin/internal/server/audit"
	"github.com/atiera/qrlogin/internal/server/config"
	"github.com/atiera/qrlogin/internal/server/models"
	"github.com/atiera/qrlogin/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// unknownOrigin is stored when the caller's address is not known.
const unknownOrigin = "unknown"

// IssuedCode is returned once, right after issuance. RawToken is the only
// plaintext copy of the token outside the encrypted column.
type IssuedCode struct {
	RawToken string
	RecordID string
	LoginURL string
}

// ActiveCode is the owner's current code, decrypted for re-display.
type ActiveCode struct {
	RecordID   string
	RawToken   string
	LoginURL   string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// QRCodeService owns the lifecycle of QR login credential records.
type QRCodeService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cipher      *cryptox.TokenCipher
	sink        audit.Sink
	logger      logging.Logger
	appURL      string
	now         func() time.Time
}

// NewQRCodeService constructs a QRCodeService. The cipher must be built from
// the same application key for the whole lifetime of the store.
func NewQRCodeService(db *sql.DB, m repomanager.RepositoryManager, cipher *cryptox.TokenCipher,
	sink audit.Sink, logger logging.Logger, cfg *config.Config) *QRCodeService {
	return &QRCodeService{
		db:          db,
		repomanager: m,
		cipher:      cipher,
		sink:        sink,
		logger:      logger.With("module", "qrcodes"),
		appURL:      strings.TrimRight(cfg.AppURL, "/"),
		now:         time.Now,
	}
}

// LoginURL is the address encoded into the printed QR code.
func (s *QRCodeService) LoginURL(rawToken string) string {
	return s.appURL + "/qr-login?t=" + url.QueryEscape(rawToken)
}

// Issue creates a new active code for ownerID. With rotate every active code
// of the owner is revoked in the same transaction; without it an existing
// active code yields common.ErrActiveCodeExists.
func (s *QRCodeService) Issue(ctx context.Context, ownerID string, rotate bool) (*IssuedCode, error) {
	owner, err := s.repomanager.Users(s.db).GetByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, persistenceError("load owner", err)
	}
	if owner.Status != common.StatusActive {
		return nil, common.ErrAccountInactive
	}
	if !canHoldCode(owner.Role) {
		return nil, common.ErrQRLoginNotAllowed
	}

	raw, err := cryptox.NewRawToken()
	if err != nil {
		return nil, fmt.Errorf("%w: generate token: %w", common.ErrorInternal, err)
	}
	ciphertext, iv, err := s.cipher.Encrypt(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: encrypt token: %w", common.ErrorInternal, err)
	}

	now := s.now().UTC()
	code := &models.QRCode{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		TokenHash:   cryptox.HashToken(raw),
		TokenCipher: ciphertext,
		TokenIV:     iv,
		CreatedAt:   now,
	}

	var revoked int64
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.QRCodes(tx)
		if err := repo.LockOwner(ctx, ownerID); err != nil {
			return err
		}
		if rotate {
			n, err := repo.RevokeActive(ctx, ownerID, now)
			if err != nil {
				return err
			}
			revoked = n
		} else {
			_, err := repo.FindActiveByOwner(ctx, ownerID)
			if err == nil {
				return common.ErrActiveCodeExists
			}
			if !errors.Is(err, common.ErrorNotFound) {
				return err
			}
		}
		return repo.Create(ctx, code)
	})
	if err != nil {
		if errors.Is(err, common.ErrActiveCodeExists) {
			return nil, err
		}
		return nil, persistenceError("issue qr code", err)
	}

	action := audit.ActionCodeGenerated
	if rotate {
		action = audit.ActionCodeRenewed
	}
	s.record(ctx, models.AuditEvent{
		Action:      action,
		SubjectType: audit.SubjectQRCodes,
		SubjectID:   code.ID,
		ActorID:     ownerID,
		After:       map[string]any{"user_id": ownerID},
	})
	s.logger.Info(ctx, "qr code issued", "owner_id", ownerID, "record_id", code.ID, "rotated", rotate, "revoked", revoked)

	return &IssuedCode{RawToken: raw, RecordID: code.ID, LoginURL: s.LoginURL(raw)}, nil
}

// Verify looks up the active code matching rawToken. A miss, including any
// malformed token, is reported as found == false with a nil error.
func (s *QRCodeService) Verify(ctx context.Context, rawToken string) (*models.VerifiedQRCode, bool, error) {
	v, err := s.repomanager.QRCodes(s.db).FindActiveByHash(ctx, cryptox.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, false, nil
		}
		return nil, false, persistenceError("verify qr code", err)
	}
	return v, true, nil
}

// MarkUsed records a successful login with the given record. An empty
// originIP is stored as "unknown".
func (s *QRCodeService) MarkUsed(ctx context.Context, recordID, originIP, originAgent string) error {
	if strings.TrimSpace(originIP) == "" {
		originIP = unknownOrigin
	}
	err := s.repomanager.QRCodes(s.db).MarkUsed(ctx, recordID, s.now().UTC(), originIP, originAgent)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return err
		}
		return persistenceError("mark qr code used", err)
	}
	return nil
}

// Revoke ends every active code of ownerID and reports how many there were.
func (s *QRCodeService) Revoke(ctx context.Context, ownerID string) (int, error) {
	now := s.now().UTC()

	var revoked int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.QRCodes(tx)
		if err := repo.LockOwner(ctx, ownerID); err != nil {
			return err
		}
		n, err := repo.RevokeActive(ctx, ownerID, now)
		revoked = n
		return err
	})
	if err != nil {
		return 0, persistenceError("revoke qr code", err)
	}

	if revoked > 0 {
		s.record(ctx, models.AuditEvent{
			Action:      audit.ActionCodeRevoked,
			SubjectType: audit.SubjectQRCodes,
			ActorID:     ownerID,
			Before:      map[string]any{"user_id": ownerID},
			After:       map[string]any{"revoked": revoked},
		})
		s.logger.Info(ctx, "qr codes revoked", "owner_id", ownerID, "revoked", revoked)
	}
	return int(revoked), nil
}

// ActiveCode returns the owner's active code with its token decrypted. When
// the stored token cannot be decrypted, e.g. after an app key change, the
// code is reported as not found and the owner has to renew it. CBC carries
// no authentication, so the plaintext must also match the stored hash.
func (s *QRCodeService) ActiveCode(ctx context.Context, ownerID string) (*ActiveCode, bool, error) {
	code, err := s.repomanager.QRCodes(s.db).FindActiveByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, false, nil
		}
		return nil, false, persistenceError("load active qr code", err)
	}

	raw, ok := s.cipher.Decrypt(code.TokenCipher, code.TokenIV)
	if ok {
		ok = cryptox.MatchesHash(raw, code.TokenHash)
	}
	if !ok {
		s.logger.Warn(ctx, "stored qr token cannot be decrypted", "owner_id", ownerID, "record_id", code.ID)
		return nil, false, nil
	}

	return &ActiveCode{
		RecordID:   code.ID,
		RawToken:   raw,
		LoginURL:   s.LoginURL(raw),
		CreatedAt:  code.CreatedAt,
		LastUsedAt: code.LastUsedAt,
	}, true, nil
}

// record writes an audit event after the state change has committed. A
// failing sink is logged and otherwise ignored.
func (s *QRCodeService) record(ctx context.Context, event models.AuditEvent) {
	if err := s.sink.Record(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn(ctx, "audit write failed", "action", event.Action, "error", err)
	}
}

func canHoldCode(role string) bool {
	return strings.EqualFold(role, common.RoleAdmin) || strings.EqualFold(role, common.RoleStaff)
}

// persistenceError marks a store failure as retryable and flags lost races.
func persistenceError(op string, err error) error {
	if dbx.IsConflict(err) {
		return fmt.Errorf("%s: %w: %w: %w", op, common.ErrPersistence, common.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w: %w", op, common.ErrPersistence, err)
}
