package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsehq/backend/internal/models"
	"github.com/pulsehq/backend/pkg/apperr"
	"github.com/pulsehq/backend/pkg/cursor"
)

const sessionColumns = `id, community_id, owner_id, title, description, status,
	scheduled_start_time, actual_start_time, end_time,
	max_participants, current_participants,
	allow_reactions, allow_chat, moderation_required, record_session,
	stream_key, COALESCE(stream_url, ''),
	total_views, peak_viewers, total_reactions, average_watch_time,
	is_active, created_at, updated_at`

const uniqueViolation = "23505"

// Repository handles live_sessions persistence. Lifecycle transitions are
// conditional updates guarded on the expected prior status, so concurrent
// transitions cannot both land.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(
		&s.ID, &s.CommunityID, &s.OwnerID, &s.Title, &s.Description, &s.Status,
		&s.ScheduledStartTime, &s.ActualStartTime, &s.EndTime,
		&s.MaxParticipants, &s.CurrentParticipants,
		&s.Settings.AllowReactions, &s.Settings.AllowChat, &s.Settings.ModerationRequired, &s.Settings.RecordSession,
		&s.StreamKey, &s.StreamURL,
		&s.Stats.TotalViews, &s.Stats.PeakViewers, &s.Stats.TotalReactions, &s.Stats.AverageWatchTime,
		&s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new scheduled session.
func (r *Repository) Create(ctx context.Context, s *models.Session) error {
	const q = `INSERT INTO live_sessions
		(id, community_id, owner_id, title, description, status, scheduled_start_time,
		 max_participants, allow_reactions, allow_chat, moderation_required, record_session, stream_key)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, 'scheduled', $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + sessionColumns
	created, err := scanSession(r.pool.QueryRow(ctx, q,
		s.CommunityID, s.OwnerID, s.Title, s.Description, s.ScheduledStartTime,
		s.MaxParticipants, s.Settings.AllowReactions, s.Settings.AllowChat,
		s.Settings.ModerationRequired, s.Settings.RecordSession, s.StreamKey))
	if err != nil {
		return err
	}
	*s = *created
	return nil
}

// GetByID returns a session by ID, excluding soft-deleted ones.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM live_sessions WHERE id = $1 AND is_active`
	s, err := scanSession(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("session not found")
		}
		return nil, err
	}
	return s, nil
}

// GetLiveByCommunity returns the community's live session, or nil if none.
func (r *Repository) GetLiveByCommunity(ctx context.Context, communityID uuid.UUID) (*models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM live_sessions
		WHERE community_id = $1 AND status = 'live' AND is_active`
	s, err := scanSession(r.pool.QueryRow(ctx, q, communityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListByOwner returns a reverse-chronological page of the owner's sessions.
// Returns up to limit items plus a has-more flag.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID, cur *cursor.Cursor, limit int) ([]models.Session, bool, error) {
	return r.list(ctx, "owner_id", ownerID, cur, limit)
}

// ListByCommunity returns a reverse-chronological page of a community's sessions.
func (r *Repository) ListByCommunity(ctx context.Context, communityID uuid.UUID, cur *cursor.Cursor, limit int) ([]models.Session, bool, error) {
	return r.list(ctx, "community_id", communityID, cur, limit)
}

// ListAll returns a reverse-chronological page across every community.
func (r *Repository) ListAll(ctx context.Context, cur *cursor.Cursor, limit int) ([]models.Session, bool, error) {
	q := `SELECT ` + sessionColumns + ` FROM live_sessions WHERE is_active`
	args := []interface{}{}
	if cur != nil {
		q += ` AND (created_at, id) < ($1, $2)`
		args = append(args, cur.CreatedAt, cur.ID)
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, limit+1)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var list []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, false, err
		}
		list = append(list, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	hasMore := len(list) > limit
	if hasMore {
		list = list[:limit]
	}
	return list, hasMore, nil
}

func (r *Repository) list(ctx context.Context, field string, id uuid.UUID, cur *cursor.Cursor, limit int) ([]models.Session, bool, error) {
	q := `SELECT ` + sessionColumns + ` FROM live_sessions WHERE ` + field + ` = $1 AND is_active`
	args := []interface{}{id}
	if cur != nil {
		q += ` AND (created_at, id) < ($2, $3)`
		args = append(args, cur.CreatedAt, cur.ID)
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, limit+1)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var list []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, false, err
		}
		list = append(list, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	hasMore := len(list) > limit
	if hasMore {
		list = list[:limit]
	}
	return list, hasMore, nil
}

// SessionPatch is the patch applied by UpdateDetails; nil fields are untouched.
type SessionPatch struct {
	Title              *string
	Description        *string
	ScheduledStartTime *time.Time
	MaxParticipants    *int
	AllowReactions     *bool
	AllowChat          *bool
	ModerationRequired *bool
	RecordSession      *bool
}

// UpdateDetails patches title/description/schedule/capacity/settings. The
// update is guarded so a session that went live or ended concurrently is not
// touched.
func (r *Repository) UpdateDetails(ctx context.Context, id uuid.UUID, patch SessionPatch) (*models.Session, error) {
	const q = `UPDATE live_sessions SET
		title = COALESCE($2, title),
		description = COALESCE($3, description),
		scheduled_start_time = COALESCE($4, scheduled_start_time),
		max_participants = COALESCE($5, max_participants),
		allow_reactions = COALESCE($6, allow_reactions),
		allow_chat = COALESCE($7, allow_chat),
		moderation_required = COALESCE($8, moderation_required),
		record_session = COALESCE($9, record_session),
		updated_at = NOW()
		WHERE id = $1 AND is_active AND status NOT IN ('live', 'ended')
		RETURNING ` + sessionColumns
	s, err := scanSession(r.pool.QueryRow(ctx, q, id,
		patch.Title, patch.Description, patch.ScheduledStartTime, patch.MaxParticipants,
		patch.AllowReactions, patch.AllowChat, patch.ModerationRequired, patch.RecordSession))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.stateError(ctx, id, "session cannot be updated while %s")
		}
		return nil, err
	}
	return s, nil
}

// Start transitions scheduled -> live and registers the owner as an admin
// participant, in one transaction. The partial unique index on
// (community_id) WHERE status = 'live' enforces one live session per
// community; a violation surfaces as a conflict.
func (r *Repository) Start(ctx context.Context, sessionID, ownerID uuid.UUID, streamURL string) (*models.Session, error) {
	var started *models.Session
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `UPDATE live_sessions SET
			status = 'live', actual_start_time = NOW(), stream_url = $2,
			current_participants = 1, peak_viewers = GREATEST(peak_viewers, 1),
			total_views = total_views + 1, updated_at = NOW()
			WHERE id = $1 AND is_active AND status = 'scheduled'
			RETURNING ` + sessionColumns
		s, err := scanSession(tx.QueryRow(ctx, q, sessionID, streamURL))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.stateError(ctx, sessionID, "session cannot start while %s")
			}
			return err
		}

		const up = `INSERT INTO session_participants
			(id, session_id, user_id, role, can_stream, can_moderate, can_react, can_chat, joined_at, is_active)
			VALUES (gen_random_uuid(), $1, $2, 'admin', TRUE, TRUE, TRUE, TRUE, NOW(), TRUE)
			ON CONFLICT (session_id, user_id) DO UPDATE SET
				role = 'admin', can_stream = TRUE, can_moderate = TRUE, can_react = TRUE, can_chat = TRUE,
				is_active = TRUE, joined_at = NOW(), left_at = NULL, updated_at = NOW()`
		if _, err := tx.Exec(ctx, up, sessionID, ownerID); err != nil {
			return err
		}
		started = s
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, apperr.Conflict("another session is already live in this community")
		}
		return nil, err
	}
	return started, nil
}

// End transitions live -> ended, zeroes the participant counter and
// deactivates every participant record, in one transaction.
func (r *Repository) End(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	var ended *models.Session
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `UPDATE live_sessions SET
			status = 'ended', end_time = NOW(), current_participants = 0, updated_at = NOW()
			WHERE id = $1 AND is_active AND status = 'live'
			RETURNING ` + sessionColumns
		s, err := scanSession(tx.QueryRow(ctx, q, sessionID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.stateError(ctx, sessionID, "session cannot end while %s")
			}
			return err
		}

		const deact = `UPDATE session_participants SET
			is_active = FALSE, left_at = NOW(),
			watch_seconds = watch_seconds + GREATEST(0, EXTRACT(EPOCH FROM (NOW() - joined_at))::BIGINT),
			updated_at = NOW()
			WHERE session_id = $1 AND is_active`
		if _, err := tx.Exec(ctx, deact, sessionID); err != nil {
			return err
		}
		ended = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ended, nil
}

// SoftDelete marks the session inactive. Live sessions must be ended first.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE live_sessions SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND is_active AND status <> 'live'`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.stateError(ctx, id, "session cannot be deleted while %s")
	}
	return nil
}

// FinalizeStats recomputes total views and average watch time from the
// session's participant records. Run by the worker after a session ends.
func (r *Repository) FinalizeStats(ctx context.Context, sessionID uuid.UUID) error {
	const q = `UPDATE live_sessions SET
		average_watch_time = COALESCE((SELECT AVG(watch_seconds)::BIGINT FROM session_participants WHERE session_id = $1), 0),
		total_views = GREATEST(total_views, (SELECT COUNT(*) FROM session_participants WHERE session_id = $1)),
		updated_at = NOW()
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, sessionID)
	return err
}

// stateError distinguishes a missing session from an illegal lifecycle state
// after a guarded update matched no rows.
func (r *Repository) stateError(ctx context.Context, id uuid.UUID, format string) error {
	s, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return apperr.InvalidState(format, s.Status)
}
