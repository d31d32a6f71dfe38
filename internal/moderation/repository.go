package moderation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsehq/backend/internal/models"
	"github.com/pulsehq/backend/pkg/apperr"
)

const requestColumns = `id, session_id, user_id, request_video, request_audio,
	COALESCE(message, ''), status, reviewed_by, reviewed_at, COALESCE(review_message, ''),
	expires_at, is_active, created_at`

// Repository handles moderation_requests persistence. A review is a
// conditional update guarded on pending status and the expiry window, so at
// most one review ever lands per request.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a moderation requests repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRequest(row pgx.Row) (*models.ModerationRequest, error) {
	var m models.ModerationRequest
	err := row.Scan(
		&m.ID, &m.SessionID, &m.UserID, &m.Requested.Video, &m.Requested.Audio,
		&m.Message, &m.Status, &m.ReviewedBy, &m.ReviewedAt, &m.ReviewMessage,
		&m.ExpiresAt, &m.IsActive, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts a pending request with a fixed expiry window, unless the
// user already has an outstanding pending-and-unexpired request for the
// session. The guard is evaluated in the insert itself.
func (r *Repository) Create(ctx context.Context, sessionID, userID uuid.UUID, req models.RequestedPermissions, message string) (*models.ModerationRequest, error) {
	const q = `INSERT INTO moderation_requests
		(id, session_id, user_id, request_video, request_audio, message, status, expires_at, is_active)
		SELECT gen_random_uuid(), $1, $2, $3, $4, $5, 'pending', NOW() + $6::interval, TRUE
		WHERE NOT EXISTS (
			SELECT 1 FROM moderation_requests
			WHERE session_id = $1 AND user_id = $2 AND status = 'pending' AND expires_at > NOW()
		)
		RETURNING ` + requestColumns
	m, err := scanRequest(r.pool.QueryRow(ctx, q, sessionID, userID,
		req.Video, req.Audio, message, models.ModerationRequestTTL.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Conflict("a moderation request is already pending")
		}
		return nil, err
	}
	return m, nil
}

// GetByID returns a request by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.ModerationRequest, error) {
	const q = `SELECT ` + requestColumns + ` FROM moderation_requests WHERE id = $1`
	m, err := scanRequest(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("moderation request not found")
		}
		return nil, err
	}
	return m, nil
}

// ListPending returns the session's pending, unexpired requests, oldest first.
func (r *Repository) ListPending(ctx context.Context, sessionID uuid.UUID) ([]models.ModerationRequest, error) {
	const q = `SELECT ` + requestColumns + ` FROM moderation_requests
		WHERE session_id = $1 AND status = 'pending' AND expires_at > NOW() AND is_active
		ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.ModerationRequest
	for rows.Next() {
		m, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *m)
	}
	return list, rows.Err()
}

// Review resolves a pending request exactly once. The update matches only a
// request that is still pending and unexpired; anything else is reported as
// an invalid state (already reviewed, or past its window).
func (r *Repository) Review(ctx context.Context, id uuid.UUID, status models.ModerationStatus, reviewerID uuid.UUID, reviewMessage string) (*models.ModerationRequest, error) {
	const q = `UPDATE moderation_requests SET
		status = $2, reviewed_by = $3, reviewed_at = NOW(), review_message = $4
		WHERE id = $1 AND status = 'pending' AND expires_at > NOW()
		RETURNING ` + requestColumns
	m, err := scanRequest(r.pool.QueryRow(ctx, q, id, status, reviewerID, reviewMessage))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.reviewError(ctx, id)
		}
		return nil, err
	}
	return m, nil
}

func (r *Repository) reviewError(ctx context.Context, id uuid.UUID) error {
	m, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if m.Status == models.ModerationPending && m.Expired(time.Now()) {
		return apperr.InvalidState("moderation request has expired")
	}
	return apperr.InvalidState("moderation request is already %s", m.Status)
}

// DeactivateExpired reclaims pending requests past their window. The sweep is
// storage hygiene only; expiry is already enforced at every read.
func (r *Repository) DeactivateExpired(ctx context.Context) (int64, error) {
	const q = `UPDATE moderation_requests SET is_active = FALSE
		WHERE status = 'pending' AND expires_at <= NOW() AND is_active`
	tag, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
