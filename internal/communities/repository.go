// Package communities exposes the community-membership lookups the session
// subsystem needs. The wider platform owns community CRUD; only reads live here.
package communities

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsehq/backend/internal/models"
	"github.com/pulsehq/backend/pkg/apperr"
)

// Repository handles community membership lookups.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a communities repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a community by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Community, error) {
	const q = `SELECT id, name, owner_id, created_at FROM communities WHERE id = $1`
	var cm models.Community
	err := r.pool.QueryRow(ctx, q, id).Scan(&cm.ID, &cm.Name, &cm.OwnerID, &cm.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("community not found")
		}
		return nil, err
	}
	return &cm, nil
}

// IsMember reports whether the user belongs to the community.
func (r *Repository) IsMember(ctx context.Context, userID, communityID uuid.UUID) (bool, error) {
	const q = `SELECT 1 FROM community_members WHERE community_id = $1 AND user_id = $2`
	var one int
	err := r.pool.QueryRow(ctx, q, communityID, userID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MemberRole returns the user's role within the community, or NotFound.
func (r *Repository) MemberRole(ctx context.Context, userID, communityID uuid.UUID) (models.CommunityRole, error) {
	const q = `SELECT role FROM community_members WHERE community_id = $1 AND user_id = $2`
	var role models.CommunityRole
	err := r.pool.QueryRow(ctx, q, communityID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.NotFound("not a community member")
		}
		return "", err
	}
	return role, nil
}
