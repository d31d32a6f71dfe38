package participants

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsehq/backend/internal/models"
	"github.com/pulsehq/backend/pkg/apperr"
	"github.com/pulsehq/backend/pkg/cursor"
)

// Store is the participant persistence the admission controller needs.
// Join and Leave carry the atomic capacity accounting.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	GetBySessionAndUser(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error)
	Join(ctx context.Context, sessionID, userID uuid.UUID, quality string, perms models.Permissions) (*models.Participant, bool, error)
	Leave(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, bool, error)
	List(ctx context.Context, sessionID uuid.UUID, activeOnly bool, cur *cursor.Cursor, limit int) ([]models.Participant, bool, error)
	UpdateStreamState(ctx context.Context, sessionID, userID uuid.UUID, patch StreamStatePatch) (*models.Participant, error)
	Elevate(ctx context.Context, sessionID, userID uuid.UUID, role models.ParticipantRole, perms models.Permissions) (*models.Participant, error)
}

// SessionStore is the session lookup the controller consults for liveness.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// Members is the community-membership collaborator.
type Members interface {
	IsMember(ctx context.Context, userID, communityID uuid.UUID) (bool, error)
}

// StreamStatePatch is a partial update of a participant's publishing state.
type StreamStatePatch struct {
	HasVideo   *bool `json:"has_video"`
	HasAudio   *bool `json:"has_audio"`
	IsMuted    *bool `json:"is_muted"`
	IsVideoOff *bool `json:"is_video_off"`
}

// CanJoinResult is the outcome of the read-only admission probe.
type CanJoinResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Service enforces join/leave rules, capacity limits and role-derived
// permissions for session participants.
type Service struct {
	store    Store
	sessions SessionStore
	members  Members
	logger   *zap.Logger
}

// NewService creates an admission controller.
func NewService(store Store, sessions SessionStore, members Members, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, sessions: sessions, members: members, logger: logger}
}

// CanJoin is a read-only probe: live session, community membership and a free
// slot. The verdict can go stale immediately; Join re-validates atomically.
func (s *Service) CanJoin(ctx context.Context, userID, sessionID uuid.UUID) (CanJoinResult, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return CanJoinResult{}, err
	}
	if session.Status != models.SessionLive {
		return CanJoinResult{Reason: "session is not live"}, nil
	}
	member, err := s.members.IsMember(ctx, userID, session.CommunityID)
	if err != nil {
		return CanJoinResult{}, err
	}
	if !member {
		return CanJoinResult{Reason: "not a member of this community"}, nil
	}
	if session.CurrentParticipants >= session.MaxParticipants {
		return CanJoinResult{Reason: "session is full"}, nil
	}
	return CanJoinResult{Allowed: true}, nil
}

// Join admits the caller. A new participant starts as a viewer with
// permissions derived from the session settings; a rejoin reactivates the
// stored record. Joining while already admitted is a success with no effect.
func (s *Service) Join(ctx context.Context, userID, sessionID uuid.UUID, quality string) (*models.Participant, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionLive {
		return nil, apperr.InvalidState("session is not live")
	}
	member, err := s.members.IsMember(ctx, userID, session.CommunityID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.Forbidden("not a member of this community")
	}

	p, already, err := s.store.Join(ctx, sessionID, userID, quality, models.ViewerPermissions(session.Settings))
	if err != nil {
		return nil, err
	}
	if !already {
		s.logger.Info("participant joined",
			zap.String("session_id", sessionID.String()),
			zap.String("user_id", userID.String()))
	}
	return p, nil
}

// Leave deactivates the caller's participation. Not being an active
// participant is a successful no-op.
func (s *Service) Leave(ctx context.Context, userID, sessionID uuid.UUID) error {
	_, changed, err := s.store.Leave(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if changed {
		s.logger.Info("participant left",
			zap.String("session_id", sessionID.String()),
			zap.String("user_id", userID.String()))
	}
	return nil
}

// List pages through a session's participants. activeOnly restricts the page
// to currently admitted participants.
func (s *Service) List(ctx context.Context, sessionID uuid.UUID, activeOnly bool, cur *cursor.Cursor, limit int) ([]models.Participant, bool, error) {
	if _, err := s.sessions.GetByID(ctx, sessionID); err != nil {
		return nil, false, err
	}
	return s.store.List(ctx, sessionID, activeOnly, cur, cursor.ClampLimit(limit))
}

// Get returns the caller's participant record for a session.
func (s *Service) Get(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	return s.store.GetBySessionAndUser(ctx, sessionID, userID)
}

// UpdateStreamState patches only the caller's own publishing state.
func (s *Service) UpdateStreamState(ctx context.Context, userID, sessionID uuid.UUID, patch StreamStatePatch) (*models.Participant, error) {
	return s.store.UpdateStreamState(ctx, sessionID, userID, patch)
}

// Remove kicks a participant out of the session. Owner-only; the session
// admin record itself cannot be removed.
func (s *Service) Remove(ctx context.Context, ownerID, sessionID, participantID uuid.UUID, reason string) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.OwnerID != ownerID {
		return apperr.Forbidden("only the session owner can remove participants")
	}
	target, err := s.store.GetByID(ctx, participantID)
	if err != nil {
		return err
	}
	if target.SessionID != sessionID {
		return apperr.NotFound("participant not found in this session")
	}
	if target.Role == models.ParticipantAdmin {
		return apperr.Forbidden("the session admin cannot be removed")
	}
	_, _, err = s.store.Leave(ctx, sessionID, target.UserID)
	if err != nil {
		return err
	}
	s.logger.Info("participant removed",
		zap.String("session_id", sessionID.String()),
		zap.String("participant_id", participantID.String()),
		zap.String("reason", reason))
	return nil
}

// Elevate overwrites a participant's role and permission set. Invoked by the
// moderation workflow on approval.
func (s *Service) Elevate(ctx context.Context, sessionID, userID uuid.UUID, role models.ParticipantRole, perms models.Permissions) (*models.Participant, error) {
	p, err := s.store.Elevate(ctx, sessionID, userID, role, perms)
	if err != nil {
		return nil, err
	}
	s.logger.Info("participant elevated",
		zap.String("session_id", sessionID.String()),
		zap.String("user_id", userID.String()),
		zap.String("role", string(role)))
	return p, nil
}
