package users

import (
	"context"

	"github.com/atiera/qrlogin/internal/server/models"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}
