package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bsocio/campaign-service/internal/model"
	"github.com/bsocio/campaign-service/internal/repository"
	"github.com/bsocio/campaign-service/internal/util"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Scheduler promotes due scheduled campaigns into dispatch jobs. Claims use
// SKIP LOCKED, so several scheduler processes can run side by side without
// double-enqueueing.
type Scheduler struct {
	DB        *sqlx.DB
	Campaigns repository.CampaignsRepository
	Jobs      repository.DispatchJobsRepository
	Outbox    repository.OutboxRepository
	Topic     string
	Interval  time.Duration
	Logger    *zap.Logger
}

const defaultSchedulerInterval = 30 * time.Second

// Run polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Interval <= 0 {
		s.Interval = defaultSchedulerInterval
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, err := s.Tick(ctx, time.Now()); err != nil {
				s.Logger.Error("scheduler tick failed", zap.Error(err))
			} else if n > 0 {
				s.Logger.Info("scheduled campaigns enqueued", zap.Int("count", n))
			}
		}
	}
}

// Tick claims due campaigns and enqueues a dispatch job for each, all within
// a single transaction so a crash never leaves a claimed-but-unqueued row.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (int, error) {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	due, err := s.Campaigns.ClaimDueScheduled(ctx, tx, now, 10)
	if err != nil {
		return 0, fmt.Errorf("claim due campaigns: %w", err)
	}
	if len(due) == 0 {
		return 0, tx.Commit()
	}

	for _, c := range due {
		jobID := util.New()
		if err := s.Jobs.Insert(ctx, tx, model.DispatchJob{ID: jobID, CampaignID: c.ID}); err != nil {
			return 0, fmt.Errorf("insert job for campaign %d: %w", c.ID, err)
		}

		payload, err := json.Marshal(model.Envelope{JobID: jobID, CampaignID: c.ID})
		if err != nil {
			return 0, fmt.Errorf("marshal envelope: %w", err)
		}
		if err := s.Outbox.Insert(ctx, tx, "dispatch_job", jobID, s.Topic, payload); err != nil {
			return 0, fmt.Errorf("insert outbox for campaign %d: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(due), nil
}
