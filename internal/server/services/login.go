package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atiera/qrlogin/internal/common"
	"github.com/atiera/qrlogin/internal/logging"
	"github.com/atiera/qrlogin/internal/server/audit"
	"github.com/atiera/qrlogin/internal/server/auth"
	"github.com/atiera/qrlogin/internal/server/config"
	"github.com/atiera/qrlogin/internal/server/models"
)

// Origin describes where a login attempt came from.
type Origin struct {
	IP        string
	UserAgent string
}

// Session is the result of a successful QR login.
type Session struct {
	AccessToken string
	UserID      string
	Role        string
	Redirect    string
}

// LoginService turns a scanned QR token into a signed-in session.
type LoginService struct {
	codes      *QRCodeService
	sink       audit.Sink
	logger     logging.Logger
	signingKey []byte
	validity   time.Duration
}

func NewLoginService(codes *QRCodeService, sink audit.Sink, logger logging.Logger, signingKey []byte, cfg *config.Config) *LoginService {
	return &LoginService{
		codes:      codes,
		sink:       sink,
		logger:     logger.With("module", "login"),
		signingKey: signingKey,
		validity:   cfg.SessionTokenValidityDuration,
	}
}

// Login verifies rawToken, records the use and mints a session token.
func (s *LoginService) Login(ctx context.Context, rawToken string, origin Origin) (*Session, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, common.ErrMissingQRToken
	}

	v, found, err := s.codes.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	if !found {
		s.logger.Info(ctx, "qr login rejected", "reason", "unknown token", "ip", origin.IP)
		return nil, common.ErrInvalidQRToken
	}

	owner := v.Owner
	if owner.Status != common.StatusActive {
		s.logger.Info(ctx, "qr login rejected", "reason", "inactive account", "user_id", owner.ID)
		return nil, common.ErrAccountInactive
	}
	if strings.EqualFold(owner.Role, common.RoleSuperAdmin) {
		s.logger.Info(ctx, "qr login rejected", "reason", "role", "user_id", owner.ID)
		return nil, common.ErrQRLoginNotAllowed
	}

	if err := s.codes.MarkUsed(ctx, v.Code.ID, origin.IP, origin.UserAgent); err != nil {
		return nil, err
	}

	token, err := auth.GenerateToken(owner.ID, owner.Role, s.signingKey, s.validity)
	if err != nil {
		return nil, fmt.Errorf("%w: sign session: %w", common.ErrorInternal, err)
	}

	if err := s.sink.Record(context.WithoutCancel(ctx), models.AuditEvent{
		Action:      audit.ActionLogin,
		SubjectType: audit.SubjectLoginSessions,
		SubjectID:   v.Code.ID,
		ActorID:     owner.ID,
		After:       map[string]any{"login_method": "qr", "user_agent": origin.UserAgent},
	}); err != nil {
		s.logger.Warn(ctx, "audit write failed", "action", audit.ActionLogin, "error", err)
	}
	s.logger.Info(ctx, "qr login", "user_id", owner.ID, "record_id", v.Code.ID)

	return &Session{
		AccessToken: token,
		UserID:      owner.ID,
		Role:        owner.Role,
		Redirect:    redirectFor(owner.Role),
	}, nil
}

func redirectFor(role string) string {
	if strings.EqualFold(role, common.RoleAdmin) {
		return "/admin/"
	}
	return "/staff/"
}
