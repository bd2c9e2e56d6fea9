// Package campaigns holds the admin-facing campaign lifecycle: create and
// edit drafts, schedule, and hand a campaign to the dispatch queue.
package campaigns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsocio/campaign-service/internal/audience"
	"github.com/bsocio/campaign-service/internal/model"
	"github.com/bsocio/campaign-service/internal/repository"
	"github.com/bsocio/campaign-service/internal/util"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	// ErrValidation wraps request-shape problems; handlers map it to 400.
	ErrValidation = errors.New("invalid campaign")
	// ErrNotDraft guards edits and deletes of campaigns already handed off.
	ErrNotDraft = errors.New("campaign is not a draft")
	// ErrAlreadySent rejects dispatching a campaign twice.
	ErrAlreadySent = errors.New("campaign already sent")
	// ErrDispatchInFlight rejects enqueueing while a job is pending/running.
	ErrDispatchInFlight = errors.New("campaign dispatch already in flight")
)

// Service coordinates campaign persistence with the dispatch queue. Job row
// and outbox event commit in one transaction, so an enqueued campaign is
// never lost between DB and broker.
type Service struct {
	db        *sqlx.DB
	campaigns repository.CampaignsRepository
	users     repository.UsersRepository
	jobs      repository.DispatchJobsRepository
	outbox    repository.OutboxRepository
	events    repository.CHEventsRepository
	topic     string
}

func New(
	db *sqlx.DB,
	campaignsRepo repository.CampaignsRepository,
	usersRepo repository.UsersRepository,
	jobsRepo repository.DispatchJobsRepository,
	outboxRepo repository.OutboxRepository,
	eventsRepo repository.CHEventsRepository,
	topic string,
) *Service {
	return &Service{
		db:        db,
		campaigns: campaignsRepo,
		users:     usersRepo,
		jobs:      jobsRepo,
		outbox:    outboxRepo,
		events:    eventsRepo,
		topic:     topic,
	}
}

// CreateInput carries the admin's campaign draft.
type CreateInput struct {
	Subject       string
	Content       string
	Audience      string
	Filters       *model.AudienceFilters
	TargetUserIDs []int64
	SendType      string
	ScheduledAt   *time.Time
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Campaign, error) {
	c, err := buildCampaign(in)
	if err != nil {
		return nil, err
	}
	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	return c, nil
}

func buildCampaign(in CreateInput) (*model.Campaign, error) {
	if in.Subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if in.Content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrValidation)
	}

	aud, ok := model.ParseAudience(in.Audience)
	if !ok {
		return nil, fmt.Errorf("%w: unknown audience %q", ErrValidation, in.Audience)
	}

	sendType := model.SendNow
	if in.SendType != "" {
		sendType = model.SendType(in.SendType)
		if !sendType.Valid() {
			return nil, fmt.Errorf("%w: unknown send_type %q", ErrValidation, in.SendType)
		}
	}

	status := model.CampaignDraft
	if sendType == model.SendScheduled {
		if in.ScheduledAt == nil {
			return nil, fmt.Errorf("%w: scheduled send requires scheduled_at", ErrValidation)
		}
		if !in.ScheduledAt.After(time.Now()) {
			return nil, fmt.Errorf("%w: scheduled_at must be in the future", ErrValidation)
		}
		status = model.CampaignScheduled
	}

	c := &model.Campaign{
		Subject:     in.Subject,
		Content:     in.Content,
		Audience:    aud,
		SendType:    sendType,
		ScheduledAt: in.ScheduledAt,
		Status:      status,
	}
	switch aud {
	case model.AudienceSegmented:
		c.Filters = in.Filters
	case model.AudienceManual:
		// an empty list is valid; the dispatch loop treats it as a no-op
		c.TargetUserIDs = pq.Int64Array(in.TargetUserIDs)
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*model.Campaign, error) {
	return s.campaigns.GetByID(ctx, id)
}

// Stats are the delivery counters surfaced next to a campaign.
type Stats struct {
	TotalSent int64 `json:"total_sent"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
}

func (s *Service) GetWithStats(ctx context.Context, id int64) (*model.Campaign, *Stats, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	st := &Stats{TotalSent: c.TotalSent}
	if s.events != nil {
		counts, err := s.events.CountByStatus(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("event counts: %w", err)
		}
		st.Delivered = counts["sent"]
		st.Failed = counts["failed"]
	}
	return c, st, nil
}

func (s *Service) List(ctx context.Context, status model.CampaignStatus, limit, offset int) ([]model.Campaign, int64, error) {
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	return s.campaigns.List(ctx, status, limit, offset)
}

// Update rewrites a draft. Campaigns past draft are immutable to admins.
func (s *Service) Update(ctx context.Context, id int64, in CreateInput) (*model.Campaign, error) {
	existing, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != model.CampaignDraft {
		return nil, ErrNotDraft
	}

	c, err := buildCampaign(in)
	if err != nil {
		return nil, err
	}
	c.ID = id
	c.TotalSent = existing.TotalSent
	if err := s.campaigns.Update(ctx, c); err != nil {
		return nil, err
	}
	return s.campaigns.GetByID(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	existing, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status != model.CampaignDraft {
		return ErrNotDraft
	}
	return s.campaigns.Delete(ctx, id)
}

// Schedule moves a draft to scheduled at the given time.
func (s *Service) Schedule(ctx context.Context, id int64, at time.Time) (*model.Campaign, error) {
	existing, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != model.CampaignDraft {
		return nil, ErrNotDraft
	}
	if !at.After(time.Now()) {
		return nil, fmt.Errorf("%w: scheduled_at must be in the future", ErrValidation)
	}

	existing.SendType = model.SendScheduled
	existing.ScheduledAt = &at
	existing.Status = model.CampaignScheduled
	if err := s.campaigns.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Send enqueues an immediate dispatch: the job row and its queue event commit
// atomically; the outbox relay carries the event to Kafka afterwards.
// Returns the new job id.
func (s *Service) Send(ctx context.Context, id int64) (string, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if c.Status == model.CampaignSent {
		return "", ErrAlreadySent
	}

	inFlight, err := s.jobs.ExistsForCampaign(ctx, id)
	if err != nil {
		return "", fmt.Errorf("check in-flight jobs: %w", err)
	}
	if inFlight {
		return "", ErrDispatchInFlight
	}

	jobID := util.New()
	payload, err := json.Marshal(model.Envelope{JobID: jobID, CampaignID: id})
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.jobs.Insert(ctx, tx, model.DispatchJob{ID: jobID, CampaignID: id}); err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	if err := s.outbox.Insert(ctx, tx, "dispatch_job", jobID, s.topic, payload); err != nil {
		return "", fmt.Errorf("insert outbox: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return jobID, nil
}

// RecipientPreview is the audience dry-run for the admin UI.
type RecipientPreview struct {
	Total int64        `json:"total"`
	Users []model.User `json:"users"`
}

func (s *Service) PreviewRecipients(ctx context.Context, id int64, limit int) (*RecipientPreview, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	filter, err := audience.Resolve(c)
	if err != nil {
		if errors.Is(err, audience.ErrNoRecipients) {
			return &RecipientPreview{Total: 0, Users: []model.User{}}, nil
		}
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	total, err := s.users.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count recipients: %w", err)
	}
	page, err := s.users.PageAfter(ctx, filter, 0, limit)
	if err != nil {
		return nil, fmt.Errorf("preview recipients: %w", err)
	}
	return &RecipientPreview{Total: total, Users: page}, nil
}
