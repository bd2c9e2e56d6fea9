package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bsocio/campaign-service/internal/model"
	"github.com/jmoiron/sqlx"
)

// ErrCampaignNotFound is returned for lookups of ids that do not exist.
var ErrCampaignNotFound = errors.New("campaign not found")

// CampaignsRepository defines persistence for the campaigns table.
type CampaignsRepository interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	List(ctx context.Context, status model.CampaignStatus, limit, offset int) ([]model.Campaign, int64, error)
	Update(ctx context.Context, c *model.Campaign) error
	Delete(ctx context.Context, id int64) error
	UpdateStatus(ctx context.Context, tx *sqlx.Tx, id int64, status model.CampaignStatus) error
	// IncrementTotalSent adds n to the campaign's running counter. Called by
	// the checkpoint writer once per page.
	IncrementTotalSent(ctx context.Context, tx *sqlx.Tx, id int64, n int) error
	// ClaimDueScheduled locks and returns up to limit scheduled campaigns
	// whose scheduled_at has passed, using SKIP LOCKED so concurrent
	// schedulers never claim the same row. Must run inside tx.
	ClaimDueScheduled(ctx context.Context, tx *sqlx.Tx, now time.Time, limit int) ([]model.Campaign, error)
}

type CampaignsRepositoryImpl struct {
	db *sqlx.DB
}

func NewCampaignsRepository(db *sqlx.DB) *CampaignsRepositoryImpl {
	return &CampaignsRepositoryImpl{db: db}
}

var _ CampaignsRepository = (*CampaignsRepositoryImpl)(nil)

func (r *CampaignsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
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

func (r *CampaignsRepositoryImpl) Create(ctx context.Context, c *model.Campaign) error {
	const q = `
		INSERT INTO campaigns
		    (subject, content, audience, filters, target_user_ids, send_type, scheduled_at, status, total_sent, created_at, updated_at)
		VALUES
		    ($1, $2, $3, $4, $5, $6, $7, $8, 0, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowxContext(ctx, q,
		c.Subject, c.Content, c.Audience.String(), c.Filters, c.TargetUserIDs,
		c.SendType.String(), c.ScheduledAt, c.Status.String(),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *CampaignsRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	var c model.Campaign
	err := r.db.GetContext(ctx, &c, `
		SELECT id, subject, content, audience, filters, target_user_ids,
		       send_type, scheduled_at, status, total_sent, created_at, updated_at
		  FROM campaigns
		 WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignsRepositoryImpl) List(ctx context.Context, status model.CampaignStatus, limit, offset int) ([]model.Campaign, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, subject, content, audience, filters, target_user_ids,
		       send_type, scheduled_at, status, total_sent, created_at, updated_at
		  FROM campaigns
	`
	countQ := `SELECT COUNT(*) FROM campaigns`
	args := []any{}

	if status != "" {
		q += ` WHERE status = $1`
		countQ += ` WHERE status = $1`
		args = append(args, status.String())
	}
	q += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)

	rows := []model.Campaign{}
	if err := r.db.SelectContext(ctx, &rows, q, append(args, limit, offset)...); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, countQ, args...); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Update rewrites the editable fields. Callers enforce the drafts-only rule.
func (r *CampaignsRepositoryImpl) Update(ctx context.Context, c *model.Campaign) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		   SET subject = $1, content = $2, audience = $3, filters = $4,
		       target_user_ids = $5, send_type = $6, scheduled_at = $7,
		       status = $8, updated_at = NOW()
		 WHERE id = $9
	`, c.Subject, c.Content, c.Audience.String(), c.Filters, c.TargetUserIDs,
		c.SendType.String(), c.ScheduledAt, c.Status.String(), c.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

func (r *CampaignsRepositoryImpl) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

func (r *CampaignsRepositoryImpl) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id int64, status model.CampaignStatus) error {
	const q = `UPDATE campaigns SET status = $1, updated_at = NOW() WHERE id = $2`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, status.String(), id)
		return err
	})
}

func (r *CampaignsRepositoryImpl) IncrementTotalSent(ctx context.Context, tx *sqlx.Tx, id int64, n int) error {
	const q = `UPDATE campaigns SET total_sent = total_sent + $1, updated_at = NOW() WHERE id = $2`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, n, id)
		return err
	})
}

func (r *CampaignsRepositoryImpl) ClaimDueScheduled(ctx context.Context, tx *sqlx.Tx, now time.Time, limit int) ([]model.Campaign, error) {
	if limit <= 0 {
		limit = 10
	}
	rows := []model.Campaign{}
	err := tx.SelectContext(ctx, &rows, `
		SELECT id, subject, content, audience, filters, target_user_ids,
		       send_type, scheduled_at, status, total_sent, created_at, updated_at
		  FROM campaigns
		 WHERE status = 'scheduled' AND scheduled_at <= $1
		   AND NOT EXISTS (
		       SELECT 1 FROM dispatch_jobs j
		        WHERE j.campaign_id = campaigns.id AND j.status IN ('pending', 'running')
		   )
		 ORDER BY scheduled_at ASC
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
