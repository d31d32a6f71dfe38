package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/pulsehq/backend/pkg/queue"
)

type fakeStats struct {
	finalized []uuid.UUID
}

func (f *fakeStats) FinalizeStats(_ context.Context, sessionID uuid.UUID) error {
	f.finalized = append(f.finalized, sessionID)
	return nil
}

type fakeSweep struct{}

func (fakeSweep) DeactivateExpired(context.Context) (int64, error) { return 0, nil }

func TestProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("finalizes the session from the payload", func(t *testing.T) {
		stats := &fakeStats{}
		p := NewProcessor(stats, fakeSweep{}, nil, 0, nil)

		sessionID := uuid.New()
		payload, _ := json.Marshal(queue.SessionStatsPayload{SessionID: sessionID})
		job := &queue.Job{ID: "j1", Type: queue.JobTypeSessionStats, Payload: payload}

		err := p.Process(ctx, job)

		assert.Nil(t, err)
		assert.Equal(t, []uuid.UUID{sessionID}, stats.finalized)
	})

	t.Run("rejects unknown job types", func(t *testing.T) {
		p := NewProcessor(&fakeStats{}, fakeSweep{}, nil, 0, nil)

		err := p.Process(ctx, &queue.Job{ID: "j2", Type: "mystery"})

		assert.NotNil(t, err)
	})

	t.Run("rejects malformed payloads", func(t *testing.T) {
		p := NewProcessor(&fakeStats{}, fakeSweep{}, nil, 0, nil)

		err := p.Process(ctx, &queue.Job{ID: "j3", Type: queue.JobTypeSessionStats, Payload: []byte("{")})

		assert.NotNil(t, err)
	})
}
