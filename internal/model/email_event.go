package model

import "time"

type EventStatus string

const (
	EventSent   EventStatus = "sent"
	EventFailed EventStatus = "failed"
)

func (s EventStatus) String() string { return string(s) }

func (s EventStatus) Valid() bool { return s == EventSent || s == EventFailed }

// EmailEvent is one per-recipient delivery attempt, written to ClickHouse in
// per-page batches and read back by the reports endpoint.
type EmailEvent struct {
	EventID    string      `db:"event_id" json:"event_id"`
	CampaignID int64       `db:"campaign_id" json:"campaign_id"`
	JobID      string      `db:"job_id" json:"job_id"`
	UserID     int64       `db:"user_id" json:"user_id"`
	Email      string      `db:"email" json:"email"`
	Status     EventStatus `db:"status" json:"status"`
	Error      string      `db:"error" json:"error,omitempty"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}
