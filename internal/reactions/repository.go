package reactions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsehq/backend/internal/models"
	"github.com/pulsehq/backend/pkg/apperr"
	"github.com/pulsehq/backend/pkg/cursor"
)

const reactionColumns = `id, session_id, user_id, emoji, is_active, created_at`

// Repository handles session_reactions persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a reactions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanReaction(row pgx.Row) (*models.Reaction, error) {
	var re models.Reaction
	err := row.Scan(&re.ID, &re.SessionID, &re.UserID, &re.Emoji, &re.IsActive, &re.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &re, nil
}

// Add appends a reaction event and bumps the participant and session
// counters in one transaction.
func (r *Repository) Add(ctx context.Context, sessionID, userID uuid.UUID, emoji string) (*models.Reaction, error) {
	var added *models.Reaction
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const ins = `INSERT INTO session_reactions (id, session_id, user_id, emoji, is_active)
			VALUES (gen_random_uuid(), $1, $2, $3, TRUE)
			RETURNING ` + reactionColumns
		re, err := scanReaction(tx.QueryRow(ctx, ins, sessionID, userID, emoji))
		if err != nil {
			return err
		}

		const bumpParticipant = `UPDATE session_participants SET
			reactions_count = reactions_count + 1, updated_at = NOW()
			WHERE session_id = $1 AND user_id = $2`
		if _, err := tx.Exec(ctx, bumpParticipant, sessionID, userID); err != nil {
			return err
		}

		const bumpSession = `UPDATE live_sessions SET
			total_reactions = total_reactions + 1, updated_at = NOW()
			WHERE id = $1`
		if _, err := tx.Exec(ctx, bumpSession, sessionID); err != nil {
			return err
		}
		added = re
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// Summary counts active reactions per emoji, most frequent first; ties break
// on the emoji value so the ordering is deterministic.
func (r *Repository) Summary(ctx context.Context, sessionID uuid.UUID) ([]models.ReactionCount, error) {
	const q = `SELECT emoji, COUNT(*) FROM session_reactions
		WHERE session_id = $1 AND is_active
		GROUP BY emoji
		ORDER BY COUNT(*) DESC, emoji ASC`
	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.ReactionCount
	for rows.Next() {
		var rc models.ReactionCount
		if err := rows.Scan(&rc.Emoji, &rc.Count); err != nil {
			return nil, err
		}
		list = append(list, rc)
	}
	return list, rows.Err()
}

// List returns a reverse-chronological page of active reaction events.
// Append-only feed semantics: pages are not a consistent snapshot.
func (r *Repository) List(ctx context.Context, sessionID uuid.UUID, cur *cursor.Cursor, limit int) ([]models.Reaction, bool, error) {
	q := `SELECT ` + reactionColumns + ` FROM session_reactions WHERE session_id = $1 AND is_active`
	args := []interface{}{sessionID}
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

	var list []models.Reaction
	for rows.Next() {
		re, err := scanReaction(rows)
		if err != nil {
			return nil, false, err
		}
		list = append(list, *re)
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

// SoftDelete removes a reaction from view (moderation takedown). Events are
// immutable otherwise.
func (r *Repository) SoftDelete(ctx context.Context, sessionID, id uuid.UUID) (*models.Reaction, error) {
	const q = `UPDATE session_reactions SET is_active = FALSE
		WHERE id = $1 AND session_id = $2 AND is_active
		RETURNING ` + reactionColumns
	re, err := scanReaction(r.pool.QueryRow(ctx, q, id, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("reaction not found")
		}
		return nil, err
	}
	return re, nil
}
