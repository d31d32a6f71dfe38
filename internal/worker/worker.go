// Package worker runs the background maintenance for the session subsystem:
// stats finalization after a session ends, and reclamation of expired
// moderation requests. Expiry itself is enforced at read time; the sweep only
// keeps the table tidy.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsehq/backend/pkg/queue"
)

// SessionStats finalizes cumulative statistics for an ended session.
type SessionStats interface {
	FinalizeStats(ctx context.Context, sessionID uuid.UUID) error
}

// ModerationSweep reclaims expired pending moderation requests.
type ModerationSweep interface {
	DeactivateExpired(ctx context.Context) (int64, error)
}

// Processor consumes stats jobs and runs the periodic moderation sweep.
type Processor struct {
	stats         SessionStats
	moderation    ModerationSweep
	queue         *queue.Queue
	sweepInterval time.Duration
	logger        *zap.Logger
}

// NewProcessor creates a background processor.
func NewProcessor(stats SessionStats, moderation ModerationSweep, q *queue.Queue, sweepInterval time.Duration, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &Processor{stats: stats, moderation: moderation, queue: q, sweepInterval: sweepInterval, logger: logger}
}

// Process executes one stats finalization job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeSessionStats {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.SessionStatsPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := p.stats.FinalizeStats(ctx, payload.SessionID); err != nil {
		return fmt.Errorf("finalize stats: %w", err)
	}
	p.logger.Info("session stats finalized", zap.String("session_id", payload.SessionID.String()))
	return nil
}

// Run starts the job loop and the sweep ticker, until ctx is done.
func (p *Processor) Run(ctx context.Context) {
	go p.runSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}

func (p *Processor) runSweep(ctx context.Context) {
	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.moderation.DeactivateExpired(ctx)
			if err != nil {
				p.logger.Warn("moderation sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				p.logger.Info("expired moderation requests reclaimed", zap.Int64("count", n))
			}
		}
	}
}
