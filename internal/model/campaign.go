package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

type Audience string

const (
	AudienceAll       Audience = "all_users"
	AudienceSegmented Audience = "segmented_users"
	AudienceManual    Audience = "manual_selection"
)

func (a Audience) String() string { return string(a) }

func (a Audience) Valid() bool {
	return a == AudienceAll || a == AudienceSegmented || a == AudienceManual
}

// ParseAudience normalizes input; empty => all_users.
// Returns (value, true) if valid; otherwise (all_users, false).
func ParseAudience(s string) (Audience, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all_users":
		return AudienceAll, true
	case "segmented_users":
		return AudienceSegmented, true
	case "manual_selection":
		return AudienceManual, true
	default:
		return AudienceAll, false
	}
}

type SendType string

const (
	SendNow       SendType = "now"
	SendScheduled SendType = "scheduled"
)

func (t SendType) String() string { return string(t) }

func (t SendType) Valid() bool { return t == SendNow || t == SendScheduled }

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSent      CampaignStatus = "sent"
)

func (s CampaignStatus) String() string { return string(s) }

func (s CampaignStatus) Valid() bool {
	return s == CampaignDraft || s == CampaignScheduled || s == CampaignSent
}

// AudienceFilters is the structured predicate of a segmented campaign.
// Nil/zero fields impose no constraint. Stored as JSONB.
type AudienceFilters struct {
	Role            string     `json:"role,omitempty"`
	OAuthProvider   string     `json:"oauth_provider,omitempty"`
	IsPhoneVerified *bool      `json:"is_phone_verified,omitempty"`
	Gender          string     `json:"gender,omitempty"`
	JoinedAfter     *time.Time `json:"joined_after,omitempty"`
	JoinedBefore    *time.Time `json:"joined_before,omitempty"`
}

func (f AudienceFilters) Value() (driver.Value, error) {
	return json.Marshal(f)
}

func (f *AudienceFilters) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f = AudienceFilters{}
		return nil
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("cannot scan %T into AudienceFilters", src)
	}
}

// Campaign is the DB entity persisted in the campaigns table.
// Status and TotalSent are mutated only by the dispatch worker once a
// campaign leaves draft.
type Campaign struct {
	ID            int64            `db:"id" json:"id"`
	Subject       string           `db:"subject" json:"subject"`
	Content       string           `db:"content" json:"content"` // HTML body
	Audience      Audience         `db:"audience" json:"audience"`
	Filters       *AudienceFilters `db:"filters" json:"filters,omitempty"`
	TargetUserIDs pq.Int64Array    `db:"target_user_ids" json:"target_user_ids,omitempty"`
	SendType      SendType         `db:"send_type" json:"send_type"`
	ScheduledAt   *time.Time       `db:"scheduled_at" json:"scheduled_at,omitempty"`
	Status        CampaignStatus   `db:"status" json:"status"`
	TotalSent     int64            `db:"total_sent" json:"total_sent"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}
