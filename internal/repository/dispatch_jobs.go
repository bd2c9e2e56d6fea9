package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bsocio/campaign-service/internal/model"
	"github.com/jmoiron/sqlx"
)

// DispatchJobsRepository persists dispatch job rows. The cursor column is the
// resume checkpoint: a job picked up again after a crash continues strictly
// after it.
type DispatchJobsRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, j model.DispatchJob) error
	GetByID(ctx context.Context, id string) (*model.DispatchJob, error)
	// MarkRunning bumps attempts and stamps the job running.
	MarkRunning(ctx context.Context, id string) error
	// Checkpoint persists the page boundary within the caller's transaction.
	Checkpoint(ctx context.Context, tx *sqlx.Tx, id string, cursor int64) error
	MarkDone(ctx context.Context, tx *sqlx.Tx, id string) error
	MarkFailed(ctx context.Context, id string, cause string) error
	// ExistsForCampaign reports whether an unfinished job already exists for
	// the campaign (guards against double enqueue).
	ExistsForCampaign(ctx context.Context, campaignID int64) (bool, error)
}

type DispatchJobsRepositoryImpl struct {
	db *sqlx.DB
}

func NewDispatchJobsRepository(db *sqlx.DB) *DispatchJobsRepositoryImpl {
	return &DispatchJobsRepositoryImpl{db: db}
}

var _ DispatchJobsRepository = (*DispatchJobsRepositoryImpl)(nil)

func (r *DispatchJobsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

func (r *DispatchJobsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, j model.DispatchJob) error {
	const q = `
		INSERT INTO dispatch_jobs (id, campaign_id, cursor, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', 0, NOW(), NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, j.ID, j.CampaignID, j.Cursor)
		return err
	})
}

func (r *DispatchJobsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.DispatchJob, error) {
	var j model.DispatchJob
	err := r.db.GetContext(ctx, &j, `
		SELECT id, campaign_id, cursor, status, attempts, last_error, created_at, updated_at
		  FROM dispatch_jobs
		 WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *DispatchJobsRepositoryImpl) MarkRunning(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_jobs
		   SET status = 'running', attempts = attempts + 1, updated_at = NOW()
		 WHERE id = $1
	`, id)
	return err
}

func (r *DispatchJobsRepositoryImpl) Checkpoint(ctx context.Context, tx *sqlx.Tx, id string, cursor int64) error {
	const q = `UPDATE dispatch_jobs SET cursor = $1, updated_at = NOW() WHERE id = $2`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, cursor, id)
		return err
	})
}

func (r *DispatchJobsRepositoryImpl) MarkDone(ctx context.Context, tx *sqlx.Tx, id string) error {
	const q = `UPDATE dispatch_jobs SET status = 'done', last_error = NULL, updated_at = NOW() WHERE id = $1`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, id)
		return err
	})
}

func (r *DispatchJobsRepositoryImpl) MarkFailed(ctx context.Context, id string, cause string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_jobs SET status = 'failed', last_error = $1, updated_at = NOW() WHERE id = $2
	`, cause, id)
	return err
}

func (r *DispatchJobsRepositoryImpl) ExistsForCampaign(ctx context.Context, campaignID int64) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM dispatch_jobs
		 WHERE campaign_id = $1 AND status IN ('pending', 'running')
	`, campaignID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
