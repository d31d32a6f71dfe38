package participants

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/pulsehq/backend/internal/models"
	"github.com/pulsehq/backend/pkg/apperr"
	"github.com/pulsehq/backend/pkg/cursor"
)

type fakeStore struct {
	byID       map[uuid.UUID]*models.Participant
	bySession  map[uuid.UUID]map[uuid.UUID]*models.Participant // session -> user
	joinErr    error
	joinPerms  models.Permissions
	leftUsers  []uuid.UUID
	elevations int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byID:      make(map[uuid.UUID]*models.Participant),
		bySession: make(map[uuid.UUID]map[uuid.UUID]*models.Participant),
	}
}

func (f *fakeStore) add(p *models.Participant) {
	f.byID[p.ID] = p
	if f.bySession[p.SessionID] == nil {
		f.bySession[p.SessionID] = make(map[uuid.UUID]*models.Participant)
	}
	f.bySession[p.SessionID][p.UserID] = p
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Participant, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound("participant not found")
	}
	return p, nil
}

func (f *fakeStore) GetBySessionAndUser(_ context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	p, ok := f.bySession[sessionID][userID]
	if !ok {
		return nil, apperr.NotFound("participant not found")
	}
	return p, nil
}

func (f *fakeStore) Join(_ context.Context, sessionID, userID uuid.UUID, quality string, perms models.Permissions) (*models.Participant, bool, error) {
	if f.joinErr != nil {
		return nil, false, f.joinErr
	}
	if p, ok := f.bySession[sessionID][userID]; ok && p.IsActive {
		return p, true, nil
	}
	f.joinPerms = perms
	p := &models.Participant{
		ID:                uuid.New(),
		SessionID:         sessionID,
		UserID:            userID,
		Role:              models.ParticipantViewer,
		Permissions:       perms,
		ConnectionQuality: quality,
		IsActive:          true,
	}
	f.add(p)
	return p, false, nil
}

func (f *fakeStore) Leave(_ context.Context, sessionID, userID uuid.UUID) (*models.Participant, bool, error) {
	p, ok := f.bySession[sessionID][userID]
	if !ok || !p.IsActive {
		return nil, false, nil
	}
	p.IsActive = false
	f.leftUsers = append(f.leftUsers, userID)
	return p, true, nil
}

func (f *fakeStore) List(_ context.Context, _ uuid.UUID, _ bool, _ *cursor.Cursor, _ int) ([]models.Participant, bool, error) {
	return nil, false, nil
}

func (f *fakeStore) UpdateStreamState(_ context.Context, sessionID, userID uuid.UUID, _ StreamStatePatch) (*models.Participant, error) {
	return f.GetBySessionAndUser(context.Background(), sessionID, userID)
}

func (f *fakeStore) Elevate(_ context.Context, sessionID, userID uuid.UUID, role models.ParticipantRole, perms models.Permissions) (*models.Participant, error) {
	p, ok := f.bySession[sessionID][userID]
	if !ok {
		return nil, apperr.NotFound("participant not found")
	}
	p.Role = role
	p.Permissions = perms
	f.elevations++
	return p, nil
}

type fakeSessions struct {
	byID map[uuid.UUID]*models.Session
}

func (f fakeSessions) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound("session not found")
	}
	return s, nil
}

type fakeMembers map[uuid.UUID]bool

func (f fakeMembers) IsMember(_ context.Context, userID, _ uuid.UUID) (bool, error) {
	return f[userID], nil
}

func liveSession(owner uuid.UUID) *models.Session {
	return &models.Session{
		ID:              uuid.New(),
		CommunityID:     uuid.New(),
		OwnerID:         owner,
		Status:          models.SessionLive,
		MaxParticipants: 10,
		Settings:        models.SessionSettings{AllowReactions: true, AllowChat: true},
	}
}

func TestCanJoin(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	user := uuid.New()

	t.Run("not live", func(t *testing.T) {
		s := liveSession(owner)
		s.Status = models.SessionScheduled
		svc := NewService(newFakeStore(), fakeSessions{byID: map[uuid.UUID]*models.Session{s.ID: s}},
			fakeMembers{user: true}, nil)

		res, err := svc.CanJoin(ctx, user, s.ID)

		assert.Nil(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, "session is not live", res.Reason)
	})

	t.Run("not a member", func(t *testing.T) {
		s := liveSession(owner)
		svc := NewService(newFakeStore(), fakeSessions{byID: map[uuid.UUID]*models.Session{s.ID: s}},
			fakeMembers{}, nil)

		res, err := svc.CanJoin(ctx, user, s.ID)

		assert.Nil(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, "not a member of this community", res.Reason)
	})

	t.Run("full", func(t *testing.T) {
		s := liveSession(owner)
		s.CurrentParticipants = s.MaxParticipants
		svc := NewService(newFakeStore(), fakeSessions{byID: map[uuid.UUID]*models.Session{s.ID: s}},
			fakeMembers{user: true}, nil)

		res, err := svc.CanJoin(ctx, user, s.ID)

		assert.Nil(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, "session is full", res.Reason)
	})

	t.Run("allowed", func(t *testing.T) {
		s := liveSession(owner)
		svc := NewService(newFakeStore(), fakeSessions{byID: map[uuid.UUID]*models.Session{s.ID: s}},
			fakeMembers{user: true}, nil)

		res, err := svc.CanJoin(ctx, user, s.ID)

		assert.Nil(t, err)
		assert.True(t, res.Allowed)
		assert.Empty(t, res.Reason)
	})
}

func TestJoin(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	user := uuid.New()

	t.Run("derives viewer permissions from settings", func(t *testing.T) {
		s := liveSession(owner)
		s.Settings.AllowReactions = false
		store := newFakeStore()
		svc := NewService(store, fakeSessions{byID: map[uuid.UUID]*models.Session{s.ID: s}},
			fakeMembers{user: true}, nil)

		p, err := svc.Join(ctx, user, s.ID, "good")

		assert.Nil(t, err)
		assert.Equal(t, models.ParticipantViewer, p.Role)
		assert.False(t, store.joinPerms.CanReact)
		assert.True(t, store.joinPerms.CanChat)
		assert.False(t, store.joinPerms.CanStream)
	})

	t.Run("joining twice is a no-op success", func(t *testing.T) {
		s := liveSession(owner)
		store := newFakeStore()
		svc := NewService(store, fakeSessions{byID: map[uuid.UUID]*models.Session{s.ID: s}},
			fakeMembers{user: true}, nil)

		first, err := svc.Join(ctx, user, s.ID, "")
		assert.Nil(t, err)
		second, err := svc.Join(ctx, user, s.ID, "")
		assert.Nil(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("not live", func(t *testing.T) {
		s := liveSession(owner)
		s.Status = models.SessionEnded
		svc := NewService(newFakeStore(), fakeSessions{byID: map[uuid.UUID]*models.Session{s.ID: s}},
			fakeMembers{user: true}, nil)

		_, err := svc.Join(ctx, user, s.ID, "")

		assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
	})

	t.Run("non-member forbidden", func(t *testing.T) {
		s := liveSession(owner)
		svc := NewService(newFakeStore(), fakeSessions{byID: map[uuid.UUID]*models.Session{s.ID: s}},
			fakeMembers{}, nil)

		_, err := svc.Join(ctx, user, s.ID, "")

		assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	})

	t.Run("capacity conflict propagates", func(t *testing.T) {
		s := liveSession(owner)
		store := newFakeStore()
		store.joinErr = apperr.Conflict("session is full (10/10)")
		svc := NewService(store, fakeSessions{byID: map[uuid.UUID]*models.Session{s.ID: s}},
			fakeMembers{user: true}, nil)

		_, err := svc.Join(ctx, user, s.ID, "")

		assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	})
}

func TestLeave(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeStore(), fakeSessions{byID: map[uuid.UUID]*models.Session{}}, fakeMembers{}, nil)

	t.Run("leaving when not admitted succeeds", func(t *testing.T) {
		err := svc.Leave(ctx, uuid.New(), uuid.New())
		assert.Nil(t, err)
	})
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()

	setup := func() (*fakeStore, *models.Session, *models.Participant, *Service) {
		s := liveSession(owner)
		store := newFakeStore()
		viewer := &models.Participant{
			ID: uuid.New(), SessionID: s.ID, UserID: uuid.New(),
			Role: models.ParticipantViewer, IsActive: true,
		}
		store.add(viewer)
		svc := NewService(store, fakeSessions{byID: map[uuid.UUID]*models.Session{s.ID: s}}, fakeMembers{}, nil)
		return store, s, viewer, svc
	}

	t.Run("owner removes a viewer", func(t *testing.T) {
		store, s, viewer, svc := setup()

		err := svc.Remove(ctx, owner, s.ID, viewer.ID, "spam")

		assert.Nil(t, err)
		assert.Equal(t, []uuid.UUID{viewer.UserID}, store.leftUsers)
	})

	t.Run("non-owner forbidden", func(t *testing.T) {
		_, s, viewer, svc := setup()

		err := svc.Remove(ctx, uuid.New(), s.ID, viewer.ID, "")

		assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	})

	t.Run("session admin cannot be removed", func(t *testing.T) {
		store, s, _, svc := setup()
		admin := &models.Participant{
			ID: uuid.New(), SessionID: s.ID, UserID: owner,
			Role: models.ParticipantAdmin, IsActive: true,
		}
		store.add(admin)

		err := svc.Remove(ctx, owner, s.ID, admin.ID, "")

		assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	})

	t.Run("participant of another session", func(t *testing.T) {
		_, s, _, svc := setup()
		other := liveSession(owner)
		stray := &models.Participant{ID: uuid.New(), SessionID: other.ID, UserID: uuid.New(), IsActive: true}
		// stray is not in the target session's store either way
		err := svc.Remove(ctx, owner, s.ID, stray.ID, "")
		assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	})
}
