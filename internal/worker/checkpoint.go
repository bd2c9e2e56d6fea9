package worker

import (
	"context"

	"github.com/bsocio/campaign-service/internal/model"
	"github.com/bsocio/campaign-service/internal/repository"
	"github.com/jmoiron/sqlx"
)

// Checkpointer persists page progress for a running dispatch job.
type Checkpointer interface {
	// Checkpoint records the page boundary: the job cursor moves to the last
	// id of the page and the campaign's total_sent grows by the page's
	// fetched row count. Both writes commit atomically.
	Checkpoint(ctx context.Context, jobID string, campaignID int64, cursor int64, pageLen int) error
	// Complete finishes the job and flips the campaign to sent.
	Complete(ctx context.Context, jobID string, campaignID int64) error
}

// CheckpointWriter is the sqlx-backed Checkpointer.
type CheckpointWriter struct {
	DB        *sqlx.DB
	Jobs      repository.DispatchJobsRepository
	Campaigns repository.CampaignsRepository
}

var _ Checkpointer = (*CheckpointWriter)(nil)

func (w *CheckpointWriter) Checkpoint(ctx context.Context, jobID string, campaignID int64, cursor int64, pageLen int) error {
	tx, err := w.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := w.Jobs.Checkpoint(ctx, tx, jobID, cursor); err != nil {
		return err
	}
	if err := w.Campaigns.IncrementTotalSent(ctx, tx, campaignID, pageLen); err != nil {
		return err
	}
	return tx.Commit()
}

func (w *CheckpointWriter) Complete(ctx context.Context, jobID string, campaignID int64) error {
	tx, err := w.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := w.Jobs.MarkDone(ctx, tx, jobID); err != nil {
		return err
	}
	if err := w.Campaigns.UpdateStatus(ctx, tx, campaignID, model.CampaignSent); err != nil {
		return err
	}
	return tx.Commit()
}
