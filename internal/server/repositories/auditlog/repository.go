// Package auditlog persists audit events into the audit_logs table.
package auditlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/atiera/qrlogin/internal/server/models"
)

// Repository appends audit events. There is no update or delete.
type Repository interface {
	Insert(ctx context.Context, event *models.AuditEvent) error
}

// encodeValues renders a before/after payload as JSON text, nil for no payload.
func encodeValues(v map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode audit values: %w", err)
	}
	return string(b), nil
}

func nullableActor(id string) any {
	if id == "" {
		return nil
	}
	return id
}
