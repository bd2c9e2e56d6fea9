package model

import "time"

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

func (s JobStatus) String() string { return string(s) }

func (s JobStatus) Valid() bool {
	return s == JobPending || s == JobRunning || s == JobDone || s == JobFailed
}

// DispatchJob is one queued "dispatch this campaign" unit of work. The cursor
// is the id of the last recipient whose page completed; nil means start of
// the set. A redelivered job resumes strictly after the cursor.
type DispatchJob struct {
	ID         string    `db:"id"` // ULID
	CampaignID int64     `db:"campaign_id"`
	Cursor     *int64    `db:"cursor"`
	Status     JobStatus `db:"status"`
	Attempts   int       `db:"attempts"`
	LastError  *string   `db:"last_error"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}
