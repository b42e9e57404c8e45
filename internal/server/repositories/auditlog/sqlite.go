package auditlog

import (
	"context"
	"fmt"

	"github.com/atiera/qrlogin/internal/dbx"
	"github.com/atiera/qrlogin/internal/server/models"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, event *models.AuditEvent) error {
	before, err := encodeValues(event.Before)
	if err != nil {
		return err
	}
	after, err := encodeValues(event.After)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_logs (id, user_id, action, table_name, record_id, old_values, new_values, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query,
		event.ID, nullableActor(event.ActorID), event.Action, event.SubjectType, event.SubjectID,
		before, after, event.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
