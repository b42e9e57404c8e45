// Package audit records security relevant actions in an append-only log.
//
// Two backends exist: the audit_logs table of the credential store and an
// S3 bucket that receives one JSON object per event. Callers treat Record
// failures as non-fatal.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sc "github.com/atiera/qrlogin/internal/server/config"
	"github.com/atiera/qrlogin/internal/server/models"
	"github.com/atiera/qrlogin/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Actions written by the QR login flow.
const (
	ActionCodeGenerated = "QR Code Generated"
	ActionCodeRenewed   = "QR Code Renewed"
	ActionCodeRevoked   = "QR Code Revoked"
	ActionLogin         = "QR Login"
)

// Subject types.
const (
	SubjectQRCodes       = "user_qr_codes"
	SubjectLoginSessions = "login_sessions"
)

// Sink appends one event to the audit log.
type Sink interface {
	Record(ctx context.Context, event models.AuditEvent) error
}

// New returns the sink selected by cfg.AuditBackend.
func New(ctx context.Context, cfg *sc.Config, db *sql.DB, rm repomanager.RepositoryManager) (Sink, error) {
	switch cfg.AuditBackend {
	case sc.AuditBackendDB:
		return NewDBSink(db, rm), nil
	case sc.AuditBackendS3:
		return NewS3Sink(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown audit backend %q", cfg.AuditBackend)
}

// stamp assigns an id and creation time to events that lack them.
func stamp(event *models.AuditEvent, now func() time.Time) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now().UTC()
	}
}

// DBSink writes events to the audit_logs table.
type DBSink struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	now         func() time.Time
}

func NewDBSink(db *sql.DB, repomanager repomanager.RepositoryManager) *DBSink {
	return &DBSink{db: db, repomanager: repomanager, now: time.Now}
}

func (s *DBSink) Record(ctx context.Context, event models.AuditEvent) error {
	stamp(&event, s.now)
	return s.repomanager.AuditLog(s.db).Insert(ctx, &event)
}
