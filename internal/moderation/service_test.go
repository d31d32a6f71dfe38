package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/pulsehq/backend/internal/models"
	"github.com/pulsehq/backend/pkg/apperr"
)

type fakeStore struct {
	byID      map[uuid.UUID]*models.ModerationRequest
	createErr error
	reviewErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: make(map[uuid.UUID]*models.ModerationRequest)}
}

func (f *fakeStore) Create(_ context.Context, sessionID, userID uuid.UUID, req models.RequestedPermissions, message string) (*models.ModerationRequest, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	m := &models.ModerationRequest{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserID:    userID,
		Requested: req,
		Message:   message,
		Status:    models.ModerationPending,
		ExpiresAt: time.Now().Add(models.ModerationRequestTTL),
		IsActive:  true,
	}
	f.byID[m.ID] = m
	return m, nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.ModerationRequest, error) {
	m, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound("moderation request not found")
	}
	return m, nil
}

func (f *fakeStore) ListPending(_ context.Context, sessionID uuid.UUID) ([]models.ModerationRequest, error) {
	var out []models.ModerationRequest
	for _, m := range f.byID {
		if m.SessionID == sessionID && m.Status == models.ModerationPending {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeStore) Review(_ context.Context, id uuid.UUID, status models.ModerationStatus, reviewerID uuid.UUID, reviewMessage string) (*models.ModerationRequest, error) {
	if f.reviewErr != nil {
		return nil, f.reviewErr
	}
	m := f.byID[id]
	if m.Status != models.ModerationPending {
		return nil, apperr.InvalidState("moderation request already %s", m.Status)
	}
	now := time.Now()
	m.Status = status
	m.ReviewedBy = &reviewerID
	m.ReviewedAt = &now
	m.ReviewMessage = reviewMessage
	return m, nil
}

type fakeSessions map[uuid.UUID]*models.Session

func (f fakeSessions) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s, ok := f[id]
	if !ok {
		return nil, apperr.NotFound("session not found")
	}
	return s, nil
}

type fakeAdmissions struct {
	participants map[uuid.UUID]*models.Participant // by user
	elevated     []models.ParticipantRole
	lastPerms    models.Permissions
}

func (f *fakeAdmissions) Get(_ context.Context, _, userID uuid.UUID) (*models.Participant, error) {
	p, ok := f.participants[userID]
	if !ok {
		return nil, apperr.NotFound("participant not found")
	}
	return p, nil
}

func (f *fakeAdmissions) Elevate(_ context.Context, _, userID uuid.UUID, role models.ParticipantRole, perms models.Permissions) (*models.Participant, error) {
	p, ok := f.participants[userID]
	if !ok {
		return nil, apperr.InvalidState("participant is no longer active")
	}
	p.Role = role
	p.Permissions = perms
	f.elevated = append(f.elevated, role)
	f.lastPerms = perms
	return p, nil
}

type fixture struct {
	store      *fakeStore
	sessions   fakeSessions
	admissions *fakeAdmissions
	svc        *Service
	session    *models.Session
	viewer     *models.Participant
}

func newFixture() *fixture {
	owner := uuid.New()
	session := &models.Session{
		ID:          uuid.New(),
		CommunityID: uuid.New(),
		OwnerID:     owner,
		Status:      models.SessionLive,
	}
	viewer := &models.Participant{
		ID:        uuid.New(),
		SessionID: session.ID,
		UserID:    uuid.New(),
		Role:      models.ParticipantViewer,
		IsActive:  true,
	}
	store := newFakeStore()
	sessions := fakeSessions{session.ID: session}
	admissions := &fakeAdmissions{participants: map[uuid.UUID]*models.Participant{viewer.UserID: viewer}}
	return &fixture{
		store:      store,
		sessions:   sessions,
		admissions: admissions,
		svc:        NewService(store, sessions, admissions, nil),
		session:    session,
		viewer:     viewer,
	}
}

func TestRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("viewer files a request", func(t *testing.T) {
		f := newFixture()

		m, err := f.svc.Request(ctx, f.viewer.UserID, f.session.ID,
			models.RequestedPermissions{Video: true}, "let me present")

		assert.Nil(t, err)
		assert.Equal(t, models.ModerationPending, m.Status)
		assert.True(t, m.ExpiresAt.After(time.Now()))
	})

	t.Run("must ask for something", func(t *testing.T) {
		f := newFixture()

		_, err := f.svc.Request(ctx, f.viewer.UserID, f.session.ID, models.RequestedPermissions{}, "")

		assert.True(t, apperr.IsKind(err, apperr.KindInvalid))
	})

	t.Run("session must be live", func(t *testing.T) {
		f := newFixture()
		f.session.Status = models.SessionEnded

		_, err := f.svc.Request(ctx, f.viewer.UserID, f.session.ID, models.RequestedPermissions{Audio: true}, "")

		assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
	})

	t.Run("only viewers may request", func(t *testing.T) {
		f := newFixture()
		f.viewer.Role = models.ParticipantModerator

		_, err := f.svc.Request(ctx, f.viewer.UserID, f.session.ID, models.RequestedPermissions{Audio: true}, "")

		assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
	})

	t.Run("duplicate pending conflicts", func(t *testing.T) {
		f := newFixture()
		f.store.createErr = apperr.Conflict("a moderation request is already pending")

		_, err := f.svc.Request(ctx, f.viewer.UserID, f.session.ID, models.RequestedPermissions{Audio: true}, "")

		assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	})
}

func TestListPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, err := f.svc.Request(ctx, f.viewer.UserID, f.session.ID, models.RequestedPermissions{Video: true}, "")
	assert.Nil(t, err)

	t.Run("owner sees the queue", func(t *testing.T) {
		list, err := f.svc.ListPending(ctx, f.session.OwnerID, f.session.ID)
		assert.Nil(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("non-owner forbidden", func(t *testing.T) {
		_, err := f.svc.ListPending(ctx, uuid.New(), f.session.ID)
		assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	})
}

func TestReview(t *testing.T) {
	ctx := context.Background()

	file := func(f *fixture, req models.RequestedPermissions) *models.ModerationRequest {
		m, err := f.svc.Request(ctx, f.viewer.UserID, f.session.ID, req, "")
		if err != nil {
			panic(err)
		}
		return m
	}

	t.Run("approval elevates to moderator", func(t *testing.T) {
		f := newFixture()
		m := file(f, models.RequestedPermissions{Video: true, Audio: true})

		reviewed, err := f.svc.Review(ctx, f.session.OwnerID, m.ID, models.ModerationApproved, "welcome")

		assert.Nil(t, err)
		assert.Equal(t, models.ModerationApproved, reviewed.Status)
		assert.Equal(t, []models.ParticipantRole{models.ParticipantModerator}, f.admissions.elevated)
		assert.True(t, f.admissions.lastPerms.CanStream)
		assert.True(t, f.admissions.lastPerms.CanModerate)
	})

	t.Run("rejection does not elevate", func(t *testing.T) {
		f := newFixture()
		m := file(f, models.RequestedPermissions{Video: true})

		reviewed, err := f.svc.Review(ctx, f.session.OwnerID, m.ID, models.ModerationRejected, "not now")

		assert.Nil(t, err)
		assert.Equal(t, models.ModerationRejected, reviewed.Status)
		assert.Empty(t, f.admissions.elevated)
	})

	t.Run("decision must be terminal", func(t *testing.T) {
		f := newFixture()
		m := file(f, models.RequestedPermissions{Video: true})

		_, err := f.svc.Review(ctx, f.session.OwnerID, m.ID, models.ModerationPending, "")

		assert.True(t, apperr.IsKind(err, apperr.KindInvalid))
	})

	t.Run("only the session owner reviews", func(t *testing.T) {
		f := newFixture()
		m := file(f, models.RequestedPermissions{Video: true})

		_, err := f.svc.Review(ctx, uuid.New(), m.ID, models.ModerationApproved, "")

		assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	})

	t.Run("second review of a resolved request fails", func(t *testing.T) {
		f := newFixture()
		m := file(f, models.RequestedPermissions{Video: true})

		_, err := f.svc.Review(ctx, f.session.OwnerID, m.ID, models.ModerationRejected, "")
		assert.Nil(t, err)

		_, err = f.svc.Review(ctx, f.session.OwnerID, m.ID, models.ModerationApproved, "")
		assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
	})

	t.Run("same reviewer re-applying their approval redoes the elevation", func(t *testing.T) {
		// Models a crash between recording the decision and elevating: the
		// stored status is approved, so the guarded update rejects the retry,
		// and the workflow re-applies the idempotent elevation instead.
		f := newFixture()
		m := file(f, models.RequestedPermissions{Video: true})
		m.Status = models.ModerationApproved
		m.ReviewedBy = &f.session.OwnerID
		f.store.reviewErr = apperr.InvalidState("moderation request already approved")

		reviewed, err := f.svc.Review(ctx, f.session.OwnerID, m.ID, models.ModerationApproved, "")

		assert.Nil(t, err)
		assert.Equal(t, models.ModerationApproved, reviewed.Status)
		assert.Equal(t, []models.ParticipantRole{models.ParticipantModerator}, f.admissions.elevated)
	})

	t.Run("approval recorded by someone else is not re-appliable", func(t *testing.T) {
		f := newFixture()
		m := file(f, models.RequestedPermissions{Video: true})
		m.Status = models.ModerationApproved
		previous := uuid.New()
		m.ReviewedBy = &previous
		f.store.reviewErr = apperr.InvalidState("moderation request already approved")

		_, err := f.svc.Review(ctx, f.session.OwnerID, m.ID, models.ModerationApproved, "")

		assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
		assert.Empty(t, f.admissions.elevated)
	})

	t.Run("expired request is not reviewable", func(t *testing.T) {
		f := newFixture()
		m := file(f, models.RequestedPermissions{Video: true})
		f.store.reviewErr = apperr.InvalidState("moderation request has expired")

		_, err := f.svc.Review(ctx, f.session.OwnerID, m.ID, models.ModerationApproved, "")

		assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
		assert.Empty(t, f.admissions.elevated)
	})
}
