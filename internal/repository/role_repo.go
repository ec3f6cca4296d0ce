package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/learnbridge/tutoring-backend/internal/models"
)

type RoleRepository struct {
	db DBTX
}

func NewRoleRepository(db DBTX) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) HasRole(ctx context.Context, userID uuid.UUID, role models.Role) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2
		)
	`, userID, string(role)).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
