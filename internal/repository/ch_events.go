package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/bsocio/campaign-service/internal/model"
	"github.com/jmoiron/sqlx"
)

// CHEventsRepository stores and lists per-recipient delivery attempts in
// ClickHouse. Writes happen in per-page batches from the dispatch worker.
type CHEventsRepository interface {
	InsertBatch(ctx context.Context, events []model.EmailEvent) error
	ListByCampaign(ctx context.Context, campaignID int64, status model.EventStatus, limit, offset int) ([]model.EmailEvent, error)
	CountByStatus(ctx context.Context, campaignID int64) (map[string]int64, error)
}

type chEventsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHEventsRepository(ch *sqlx.DB) CHEventsRepository {
	return &chEventsRepository{ch: ch}
}

func (r *chEventsRepository) InsertBatch(ctx context.Context, events []model.EmailEvent) error {
	if len(events) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO bsocio.email_events
		    (event_id, campaign_id, job_id, user_id, email, status, error, created_at)
		VALUES `)
	args := make([]any, 0, len(events)*8)
	for i, e := range events {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, e.EventID, e.CampaignID, e.JobID, e.UserID, e.Email, e.Status.String(), e.Error, e.CreatedAt)
	}

	_, err := r.ch.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("clickhouse insert events: %w", err)
	}
	return nil
}

func (r *chEventsRepository) ListByCampaign(ctx context.Context, campaignID int64, status model.EventStatus, limit, offset int) ([]model.EmailEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT event_id, campaign_id, job_id, user_id, email, status, error, created_at
		FROM bsocio.email_events
		WHERE campaign_id = ?
	`
	args := []any{campaignID}

	if status != "" {
		q += " AND status = ?"
		args = append(args, status.String())
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.EmailEvent
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *chEventsRepository) CountByStatus(ctx context.Context, campaignID int64) (map[string]int64, error) {
	rows, err := r.ch.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM bsocio.email_events WHERE campaign_id = ? GROUP BY status
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int64{"sent": 0, "failed": 0}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats[status] = n
	}
	return stats, rows.Err()
}
