package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsehq/backend/internal/models"
	"github.com/pulsehq/backend/pkg/apperr"
	"github.com/pulsehq/backend/pkg/cursor"
)

// Store is the session persistence the lifecycle manager needs.
type Store interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetLiveByCommunity(ctx context.Context, communityID uuid.UUID) (*models.Session, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, cur *cursor.Cursor, limit int) ([]models.Session, bool, error)
	ListByCommunity(ctx context.Context, communityID uuid.UUID, cur *cursor.Cursor, limit int) ([]models.Session, bool, error)
	ListAll(ctx context.Context, cur *cursor.Cursor, limit int) ([]models.Session, bool, error)
	UpdateDetails(ctx context.Context, id uuid.UUID, patch SessionPatch) (*models.Session, error)
	Start(ctx context.Context, sessionID, ownerID uuid.UUID, streamURL string) (*models.Session, error)
	End(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// StreamProvider mints stream credentials and derives playback URLs.
type StreamProvider interface {
	NewStreamKey() (string, error)
	PlaybackURL(streamKey string) string
}

// Members is the community-membership collaborator.
type Members interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Community, error)
	MemberRole(ctx context.Context, userID, communityID uuid.UUID) (models.CommunityRole, error)
}

// StatsEnqueuer hands finished sessions to the background stats worker.
type StatsEnqueuer interface {
	EnqueueSessionStats(ctx context.Context, sessionID uuid.UUID) error
}

// Service owns the session state machine: create/update/start/end/delete.
type Service struct {
	store   Store
	streams StreamProvider
	members Members
	stats   StatsEnqueuer // optional
	logger  *zap.Logger
}

// NewService creates a session lifecycle service. stats may be nil.
func NewService(store Store, streams StreamProvider, members Members, stats StatsEnqueuer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, streams: streams, members: members, stats: stats, logger: logger}
}

// CreateInput is the spec for a new session.
type CreateInput struct {
	CommunityID        uuid.UUID
	Title              string
	Description        string
	ScheduledStartTime *time.Time
	MaxParticipants    int
	Settings           models.SessionSettings
}

// Create makes a new scheduled session owned by ownerID. Only a community
// admin may create one, and it fails with a conflict if the community
// already has a live session.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (*models.Session, error) {
	if in.Title == "" {
		return nil, apperr.Invalid("title is required")
	}
	if in.MaxParticipants == 0 {
		in.MaxParticipants = models.MaxSessionParticipants
	}
	if in.MaxParticipants < models.MinSessionParticipants || in.MaxParticipants > models.MaxSessionParticipants {
		return nil, apperr.Invalid("max_participants must be between %d and %d",
			models.MinSessionParticipants, models.MaxSessionParticipants)
	}

	role, err := s.members.MemberRole(ctx, ownerID, in.CommunityID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.Forbidden("not a member of this community")
		}
		return nil, err
	}
	if role != models.CommunityAdmin {
		return nil, apperr.Forbidden("only a community admin can create sessions")
	}

	live, err := s.store.GetLiveByCommunity(ctx, in.CommunityID)
	if err != nil {
		return nil, err
	}
	if live != nil {
		return nil, apperr.Conflict("a session is already live in this community")
	}

	key, err := s.streams.NewStreamKey()
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		CommunityID:        in.CommunityID,
		OwnerID:            ownerID,
		Title:              in.Title,
		Description:        in.Description,
		ScheduledStartTime: in.ScheduledStartTime,
		MaxParticipants:    in.MaxParticipants,
		Settings:           in.Settings,
		StreamKey:          key,
	}
	if err := s.store.Create(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("session created",
		zap.String("session_id", session.ID.String()),
		zap.String("community_id", session.CommunityID.String()))
	return session, nil
}

// Get returns one session.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return s.store.GetByID(ctx, id)
}

// ListByOwner pages through the caller's sessions, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID, cur *cursor.Cursor, limit int) ([]models.Session, bool, error) {
	return s.store.ListByOwner(ctx, ownerID, cur, cursor.ClampLimit(limit))
}

// ListByCommunity pages through a community's sessions, newest first. An
// unknown community is a not-found, not an empty page.
func (s *Service) ListByCommunity(ctx context.Context, communityID uuid.UUID, cur *cursor.Cursor, limit int) ([]models.Session, bool, error) {
	if _, err := s.members.GetByID(ctx, communityID); err != nil {
		return nil, false, err
	}
	return s.store.ListByCommunity(ctx, communityID, cur, cursor.ClampLimit(limit))
}

// ListAll pages through every community's sessions, newest first. Platform
// operator surface; route-level role enforcement.
func (s *Service) ListAll(ctx context.Context, cur *cursor.Cursor, limit int) ([]models.Session, bool, error) {
	return s.store.ListAll(ctx, cur, cursor.ClampLimit(limit))
}

// Update patches a scheduled session. Only the owner may update, and not
// once the session is live or ended.
func (s *Service) Update(ctx context.Context, ownerID, sessionID uuid.UUID, patch SessionPatch) (*models.Session, error) {
	if patch.MaxParticipants != nil &&
		(*patch.MaxParticipants < models.MinSessionParticipants || *patch.MaxParticipants > models.MaxSessionParticipants) {
		return nil, apperr.Invalid("max_participants must be between %d and %d",
			models.MinSessionParticipants, models.MaxSessionParticipants)
	}
	if err := s.requireOwner(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}
	return s.store.UpdateDetails(ctx, sessionID, patch)
}

// Start transitions scheduled -> live, derives the playback URL from the
// stream credential and registers the owner as an admin participant.
func (s *Service) Start(ctx context.Context, ownerID, sessionID uuid.UUID) (*models.Session, error) {
	session, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != ownerID {
		return nil, apperr.Forbidden("only the session owner can start it")
	}
	started, err := s.store.Start(ctx, sessionID, ownerID, s.streams.PlaybackURL(session.StreamKey))
	if err != nil {
		return nil, err
	}
	s.logger.Info("session started", zap.String("session_id", sessionID.String()))
	return started, nil
}

// End transitions live -> ended and deactivates all participants. The
// cumulative stats recompute is queued for the worker; a queue failure is
// logged but never fails the end itself.
func (s *Service) End(ctx context.Context, ownerID, sessionID uuid.UUID) (*models.Session, error) {
	if err := s.requireOwner(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}
	ended, err := s.store.End(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.stats != nil {
		if err := s.stats.EnqueueSessionStats(ctx, sessionID); err != nil {
			s.logger.Warn("stats job enqueue failed", zap.String("session_id", sessionID.String()), zap.Error(err))
		}
	}
	s.logger.Info("session ended", zap.String("session_id", sessionID.String()))
	return ended, nil
}

// Delete soft-deletes a session. A live session must be ended first.
func (s *Service) Delete(ctx context.Context, ownerID, sessionID uuid.UUID) error {
	if err := s.requireOwner(ctx, ownerID, sessionID); err != nil {
		return err
	}
	return s.store.SoftDelete(ctx, sessionID)
}

func (s *Service) requireOwner(ctx context.Context, ownerID, sessionID uuid.UUID) error {
	session, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.OwnerID != ownerID {
		return apperr.Forbidden("caller does not own this session")
	}
	return nil
}
