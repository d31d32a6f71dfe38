//go:build integration

package participants

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsehq/backend/internal/models"
	"github.com/pulsehq/backend/pkg/apperr"
	"github.com/pulsehq/backend/pkg/database"
)

// Run with: go test -tags integration ./internal/participants/ with
// TEST_DATABASE_URL pointing at a disposable Postgres.
func integrationPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(context.Background(), pool))
	return pool
}

func seedUser(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO users (id, email, password_hash, display_name) VALUES ($1, $2, 'x', 'load tester')`,
		id, fmt.Sprintf("%s@test.local", id))
	require.NoError(t, err)
	return id
}

func seedLiveSession(t *testing.T, pool *pgxpool.Pool, ownerID uuid.UUID, capacity int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	communityID := uuid.New()
	_, err := pool.Exec(ctx,
		`INSERT INTO communities (id, name, owner_id) VALUES ($1, 'admission test', $2)`,
		communityID, ownerID)
	require.NoError(t, err)

	sessionID := uuid.New()
	_, err = pool.Exec(ctx,
		`INSERT INTO live_sessions (id, community_id, owner_id, title, status, max_participants, stream_key)
		 VALUES ($1, $2, $3, 'full house', 'live', $4, 'itestkey')`,
		sessionID, communityID, ownerID, capacity)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM live_sessions WHERE id = $1`, sessionID)
		_, _ = pool.Exec(ctx, `DELETE FROM communities WHERE id = $1`, communityID)
	})
	return sessionID
}

// Exactly capacity concurrent joins may succeed; the rest must see the
// capacity conflict and the counter must land exactly at the bound.
func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	pool := integrationPool(t)
	ctx := context.Background()

	const capacity = 3
	const joiners = 8

	owner := seedUser(t, pool)
	sessionID := seedLiveSession(t, pool, owner, capacity)

	users := make([]uuid.UUID, joiners)
	for i := range users {
		users[i] = seedUser(t, pool)
	}

	repo := NewRepository(pool)
	perms := models.Permissions{CanReact: true, CanChat: true}

	errs := make([]error, joiners)
	var wg sync.WaitGroup
	for i, userID := range users {
		wg.Add(1)
		go func(i int, userID uuid.UUID) {
			defer wg.Done()
			_, _, errs[i] = repo.Join(ctx, sessionID, userID, "good", perms)
		}(i, userID)
	}
	wg.Wait()

	var admitted, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			admitted++
		case apperr.IsKind(err, apperr.KindConflict):
			rejected++
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	assert.Equal(t, capacity, admitted)
	assert.Equal(t, joiners-capacity, rejected)

	var current int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT current_participants FROM live_sessions WHERE id = $1`, sessionID).Scan(&current))
	assert.Equal(t, capacity, current)

	active, err := repo.ActiveCount(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, capacity, active)
}
