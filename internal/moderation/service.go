package moderation

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsehq/backend/internal/models"
	"github.com/pulsehq/backend/pkg/apperr"
)

// Store is the moderation-request persistence the workflow needs.
type Store interface {
	Create(ctx context.Context, sessionID, userID uuid.UUID, req models.RequestedPermissions, message string) (*models.ModerationRequest, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ModerationRequest, error)
	ListPending(ctx context.Context, sessionID uuid.UUID) ([]models.ModerationRequest, error)
	Review(ctx context.Context, id uuid.UUID, status models.ModerationStatus, reviewerID uuid.UUID, reviewMessage string) (*models.ModerationRequest, error)
}

// SessionStore is the session lookup used for liveness and ownership checks.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// Admissions is the slice of the admission controller the workflow drives:
// participant lookup plus the atomic elevation applied on approval.
type Admissions interface {
	Get(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error)
	Elevate(ctx context.Context, sessionID, userID uuid.UUID, role models.ParticipantRole, perms models.Permissions) (*models.Participant, error)
}

// Service runs the elevation request/review workflow.
type Service struct {
	store      Store
	sessions   SessionStore
	admissions Admissions
	logger     *zap.Logger
}

// NewService creates a moderation workflow service.
func NewService(store Store, sessions SessionStore, admissions Admissions, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, sessions: sessions, admissions: admissions, logger: logger}
}

// Request files an elevation request for an active viewer of a live session.
// At most one pending, unexpired request per (session, user) may exist.
func (s *Service) Request(ctx context.Context, userID, sessionID uuid.UUID, req models.RequestedPermissions, message string) (*models.ModerationRequest, error) {
	if !req.Video && !req.Audio {
		return nil, apperr.Invalid("at least one of video or audio must be requested")
	}
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionLive {
		return nil, apperr.InvalidState("session is not live")
	}
	p, err := s.admissions.Get(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, apperr.Forbidden("caller is not an active participant")
	}
	if p.Role != models.ParticipantViewer {
		return nil, apperr.InvalidState("only viewers can request elevation")
	}

	m, err := s.store.Create(ctx, sessionID, userID, req, message)
	if err != nil {
		return nil, err
	}
	s.logger.Info("moderation requested",
		zap.String("session_id", sessionID.String()),
		zap.String("user_id", userID.String()))
	return m, nil
}

// ListPending returns the session's actionable requests. Owner-only.
func (s *Service) ListPending(ctx context.Context, ownerID, sessionID uuid.UUID) ([]models.ModerationRequest, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != ownerID {
		return nil, apperr.Forbidden("only the session owner can list moderation requests")
	}
	return s.store.ListPending(ctx, sessionID)
}

// Review resolves a request exactly once. On approval the participant is
// elevated to moderator with permissions derived from the ask. The sequence
// is retry-safe: if a prior attempt by the same reviewer recorded the
// decision but crashed before elevating, re-reviewing with the same decision
// re-applies the elevation (an idempotent overwrite) instead of failing. A
// second review by anyone else still fails as already reviewed.
func (s *Service) Review(ctx context.Context, reviewerID, requestID uuid.UUID, decision models.ModerationStatus, reviewMessage string) (*models.ModerationRequest, error) {
	if decision != models.ModerationApproved && decision != models.ModerationRejected {
		return nil, apperr.Invalid("decision must be approved or rejected")
	}
	request, err := s.store.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.GetByID(ctx, request.SessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != reviewerID {
		return nil, apperr.Forbidden("only the session owner can review moderation requests")
	}

	reviewed, err := s.store.Review(ctx, requestID, decision, reviewerID, reviewMessage)
	if err != nil {
		if apperr.IsKind(err, apperr.KindInvalidState) &&
			request.Status == decision && decision == models.ModerationApproved &&
			request.ReviewedBy != nil && *request.ReviewedBy == reviewerID {
			// Same reviewer re-applying their own recorded approval; fall
			// through to redo the elevation. Anyone else's late approval is
			// still an invalid state.
			reviewed = request
		} else {
			return nil, err
		}
	}

	if decision == models.ModerationApproved {
		perms := reviewed.Requested.ApprovedPermissions()
		if _, err := s.admissions.Elevate(ctx, reviewed.SessionID, reviewed.UserID, models.ParticipantModerator, perms); err != nil {
			return nil, err
		}
	}

	s.logger.Info("moderation reviewed",
		zap.String("request_id", requestID.String()),
		zap.String("decision", string(decision)))
	return reviewed, nil
}
