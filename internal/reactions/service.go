package reactions

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsehq/backend/internal/models"
	"github.com/pulsehq/backend/pkg/apperr"
	"github.com/pulsehq/backend/pkg/cursor"
)

// Store is the reaction persistence the aggregator needs.
type Store interface {
	Add(ctx context.Context, sessionID, userID uuid.UUID, emoji string) (*models.Reaction, error)
	Summary(ctx context.Context, sessionID uuid.UUID) ([]models.ReactionCount, error)
	List(ctx context.Context, sessionID uuid.UUID, cur *cursor.Cursor, limit int) ([]models.Reaction, bool, error)
	SoftDelete(ctx context.Context, sessionID, id uuid.UUID) (*models.Reaction, error)
}

// SessionStore is the session lookup used for liveness and settings checks.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// ParticipantStore resolves the caller's participant record and permissions.
type ParticipantStore interface {
	GetBySessionAndUser(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error)
}

// Service validates reaction eligibility and records/aggregates events.
type Service struct {
	store        Store
	sessions     SessionStore
	participants ParticipantStore
	logger       *zap.Logger
}

// NewService creates a reaction aggregator.
func NewService(store Store, sessions SessionStore, participants ParticipantStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, sessions: sessions, participants: participants, logger: logger}
}

// React appends an emoji event for an active participant of a live session.
// The emoji must belong to the fixed palette and the session must allow
// reactions.
func (s *Service) React(ctx context.Context, userID, sessionID uuid.UUID, emoji string) (*models.Reaction, error) {
	if !models.ValidEmoji(emoji) {
		return nil, apperr.Invalid("emoji is not in the reaction palette")
	}
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionLive {
		return nil, apperr.InvalidState("session is not live")
	}
	if !session.Settings.AllowReactions {
		return nil, apperr.Forbidden("reactions are disabled for this session")
	}
	p, err := s.participants.GetBySessionAndUser(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, apperr.Forbidden("caller is not an active participant")
	}
	if !p.Permissions.CanReact {
		return nil, apperr.Forbidden("caller may not react in this session")
	}
	return s.store.Add(ctx, sessionID, userID, emoji)
}

// Summarize returns the emoji -> count aggregation over active reactions,
// sorted by count descending with ties broken by emoji value.
func (s *Service) Summarize(ctx context.Context, sessionID uuid.UUID) ([]models.ReactionCount, error) {
	if _, err := s.sessions.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.Summary(ctx, sessionID)
}

// List pages through the session's reaction feed, newest first.
func (s *Service) List(ctx context.Context, sessionID uuid.UUID, cur *cursor.Cursor, limit int) ([]models.Reaction, bool, error) {
	if _, err := s.sessions.GetByID(ctx, sessionID); err != nil {
		return nil, false, err
	}
	return s.store.List(ctx, sessionID, cur, cursor.ClampLimit(limit))
}

// Remove soft-deletes a reaction. Allowed for the session owner and for
// participants holding moderation permission.
func (s *Service) Remove(ctx context.Context, callerID, sessionID, reactionID uuid.UUID) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.OwnerID != callerID {
		p, err := s.participants.GetBySessionAndUser(ctx, sessionID, callerID)
		if err != nil {
			return apperr.Forbidden("caller may not remove reactions")
		}
		if !p.IsActive || !p.Permissions.CanModerate {
			return apperr.Forbidden("caller may not remove reactions")
		}
	}
	if _, err := s.store.SoftDelete(ctx, sessionID, reactionID); err != nil {
		return err
	}
	s.logger.Info("reaction removed",
		zap.String("session_id", sessionID.String()),
		zap.String("reaction_id", reactionID.String()))
	return nil
}
