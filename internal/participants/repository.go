package participants

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsehq/backend/internal/models"
	"github.com/pulsehq/backend/pkg/apperr"
	"github.com/pulsehq/backend/pkg/cursor"
)

const participantColumns = `id, session_id, user_id, role,
	can_stream, can_moderate, can_react, can_chat,
	has_video, has_audio, is_muted, is_video_off,
	COALESCE(connection_quality, ''), joined_at, left_at, is_active,
	watch_seconds, reactions_count, created_at, updated_at`

const uniqueViolation = "23505"

// Repository handles session_participants persistence. Admission runs a
// single transaction with an increment guarded by the capacity bound, so
// concurrent joins can never push a session past max_participants.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a participants repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	err := row.Scan(
		&p.ID, &p.SessionID, &p.UserID, &p.Role,
		&p.Permissions.CanStream, &p.Permissions.CanModerate, &p.Permissions.CanReact, &p.Permissions.CanChat,
		&p.StreamState.HasVideo, &p.StreamState.HasAudio, &p.StreamState.IsMuted, &p.StreamState.IsVideoOff,
		&p.ConnectionQuality, &p.JoinedAt, &p.LeftAt, &p.IsActive,
		&p.WatchSeconds, &p.ReactionsCount, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID returns a participant record by its ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	const q = `SELECT ` + participantColumns + ` FROM session_participants WHERE id = $1`
	p, err := scanParticipant(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("participant not found")
		}
		return nil, err
	}
	return p, nil
}

// GetBySessionAndUser returns the (session, user) participant record.
func (r *Repository) GetBySessionAndUser(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	const q = `SELECT ` + participantColumns + ` FROM session_participants
		WHERE session_id = $1 AND user_id = $2`
	p, err := scanParticipant(r.pool.QueryRow(ctx, q, sessionID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("participant not found")
		}
		return nil, err
	}
	return p, nil
}

// ActiveCount returns the number of active participants for a session.
func (r *Repository) ActiveCount(ctx context.Context, sessionID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM session_participants WHERE session_id = $1 AND is_active`
	var n int
	if err := r.pool.QueryRow(ctx, q, sessionID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Join admits a user into a live session. In one transaction it:
//  1. locks the (session, user) record if it exists; an already-active
//     participant short-circuits with no mutation (idempotent join),
//  2. increments current_participants guarded by the capacity bound and
//     live status (never read-compare-write),
//  3. reactivates the existing record or inserts a fresh viewer record,
//  4. advances the peak-viewer high-water mark.
//
// Returns the participant and whether the caller was already admitted.
func (r *Repository) Join(ctx context.Context, sessionID, userID uuid.UUID, quality string, perms models.Permissions) (*models.Participant, bool, error) {
	var joined *models.Participant
	var already bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const lock = `SELECT ` + participantColumns + ` FROM session_participants
			WHERE session_id = $1 AND user_id = $2 FOR UPDATE`
		existing, err := scanParticipant(tx.QueryRow(ctx, lock, sessionID, userID))
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		if existing != nil && existing.IsActive {
			joined, already = existing, true
			return nil
		}

		const admit = `UPDATE live_sessions SET
			current_participants = current_participants + 1,
			peak_viewers = GREATEST(peak_viewers, current_participants + 1),
			total_views = total_views + 1,
			updated_at = NOW()
			WHERE id = $1 AND is_active AND status = 'live'
			AND current_participants < max_participants`
		tag, err := tx.Exec(ctx, admit, sessionID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return r.admissionError(ctx, tx, sessionID)
		}

		if existing != nil {
			// Rejoin keeps the previously earned role and permissions.
			const reactivate = `UPDATE session_participants SET
				is_active = TRUE, joined_at = NOW(), left_at = NULL,
				connection_quality = $3, updated_at = NOW()
				WHERE id = $1 AND session_id = $2
				RETURNING ` + participantColumns
			joined, err = scanParticipant(tx.QueryRow(ctx, reactivate, existing.ID, sessionID, quality))
			return err
		}

		const insert = `INSERT INTO session_participants
			(id, session_id, user_id, role, can_stream, can_moderate, can_react, can_chat,
			 connection_quality, joined_at, is_active)
			VALUES (gen_random_uuid(), $1, $2, 'viewer', $3, $4, $5, $6, $7, NOW(), TRUE)
			RETURNING ` + participantColumns
		joined, err = scanParticipant(tx.QueryRow(ctx, insert, sessionID, userID,
			perms.CanStream, perms.CanModerate, perms.CanReact, perms.CanChat, quality))
		return admitRaceError(err)
	})
	if err != nil {
		return nil, false, err
	}
	return joined, already, nil
}

// admitRaceError maps the unique violation raised when two first-joins by
// the same user race past the row probe. The loser's transaction rolls
// back, so its counter increment never lands; the caller just retries.
func admitRaceError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperr.Conflict("join already in progress, retry")
	}
	return err
}

// admissionError distinguishes why the guarded admission matched no rows.
func (r *Repository) admissionError(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID) error {
	const q = `SELECT status, current_participants, max_participants FROM live_sessions
		WHERE id = $1 AND is_active`
	var status models.SessionStatus
	var current, capacity int
	err := tx.QueryRow(ctx, q, sessionID).Scan(&status, &current, &capacity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("session not found")
		}
		return err
	}
	if status != models.SessionLive {
		return apperr.InvalidState("session is not live")
	}
	return apperr.Conflict("session is full (%d/%d)", current, capacity)
}

// Leave deactivates the caller's participant record and decrements the
// session counter. Leaving when not active is a successful no-op.
func (r *Repository) Leave(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, bool, error) {
	var left *models.Participant
	var changed bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const deact = `UPDATE session_participants SET
			is_active = FALSE, left_at = NOW(),
			watch_seconds = watch_seconds + GREATEST(0, EXTRACT(EPOCH FROM (NOW() - joined_at))::BIGINT),
			updated_at = NOW()
			WHERE session_id = $1 AND user_id = $2 AND is_active
			RETURNING ` + participantColumns
		p, err := scanParticipant(tx.QueryRow(ctx, deact, sessionID, userID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}

		const dec = `UPDATE live_sessions SET
			current_participants = GREATEST(current_participants - 1, 0), updated_at = NOW()
			WHERE id = $1`
		if _, err := tx.Exec(ctx, dec, sessionID); err != nil {
			return err
		}
		left, changed = p, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return left, changed, nil
}

// List returns a page of a session's participants, most recent joiners first.
func (r *Repository) List(ctx context.Context, sessionID uuid.UUID, activeOnly bool, cur *cursor.Cursor, limit int) ([]models.Participant, bool, error) {
	q := `SELECT ` + participantColumns + ` FROM session_participants WHERE session_id = $1`
	args := []interface{}{sessionID}
	if activeOnly {
		q += ` AND is_active`
	}
	if cur != nil {
		q += fmt.Sprintf(` AND (created_at, id) < ($%d, $%d)`, len(args)+1, len(args)+2)
		args = append(args, cur.CreatedAt, cur.ID)
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, limit+1)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var list []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, false, err
		}
		list = append(list, *p)
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

// UpdateStreamState patches the caller's own publishing state. Only active
// participants can be patched.
func (r *Repository) UpdateStreamState(ctx context.Context, sessionID, userID uuid.UUID, patch StreamStatePatch) (*models.Participant, error) {
	const q = `UPDATE session_participants SET
		has_video = COALESCE($3, has_video),
		has_audio = COALESCE($4, has_audio),
		is_muted = COALESCE($5, is_muted),
		is_video_off = COALESCE($6, is_video_off),
		updated_at = NOW()
		WHERE session_id = $1 AND user_id = $2 AND is_active
		RETURNING ` + participantColumns
	p, err := scanParticipant(r.pool.QueryRow(ctx, q, sessionID, userID,
		patch.HasVideo, patch.HasAudio, patch.IsMuted, patch.IsVideoOff))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Forbidden("not an active participant of this session")
		}
		return nil, err
	}
	return p, nil
}

// Elevate overwrites a participant's role and permission set in one update.
func (r *Repository) Elevate(ctx context.Context, sessionID, userID uuid.UUID, role models.ParticipantRole, perms models.Permissions) (*models.Participant, error) {
	const q = `UPDATE session_participants SET
		role = $3, can_stream = $4, can_moderate = $5, can_react = $6, can_chat = $7,
		updated_at = NOW()
		WHERE session_id = $1 AND user_id = $2 AND is_active
		RETURNING ` + participantColumns
	p, err := scanParticipant(r.pool.QueryRow(ctx, q, sessionID, userID,
		role, perms.CanStream, perms.CanModerate, perms.CanReact, perms.CanChat))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.InvalidState("participant is no longer active")
		}
		return nil, err
	}
	return p, nil
}
