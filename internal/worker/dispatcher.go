package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsocio/campaign-service/internal/audience"
	"github.com/bsocio/campaign-service/internal/kafka"
	"github.com/bsocio/campaign-service/internal/mailer"
	"github.com/bsocio/campaign-service/internal/metrics"
	"github.com/bsocio/campaign-service/internal/model"
	"github.com/bsocio/campaign-service/internal/repository"
	"github.com/bsocio/campaign-service/internal/util"
	"go.uber.org/zap"
)

// Dispatcher drains campaign dispatch jobs one at a time:
// - resolves the campaign's audience to a recipient filter,
// - pages recipients by ascending id with a cursor seek,
// - sends one email per recipient with a fixed inter-message delay,
// - checkpoints the cursor and total_sent after every page.
//
// It holds no internal retry beyond per-recipient failure tolerance; a job
// that dies mid-run is redelivered by the queue and resumes after the last
// checkpointed page.
type Dispatcher struct {
	Consumer    *kafka.Consumer
	Jobs        repository.DispatchJobsRepository
	Campaigns   repository.CampaignsRepository
	Users       repository.UsersRepository
	Events      repository.CHEventsRepository
	Checkpoints Checkpointer
	Mailer      mailer.Mailer
	Logger      *zap.Logger

	PageSize  int
	SendDelay time.Duration
}

const (
	defaultPageSize  = 50
	defaultSendDelay = 500 * time.Millisecond
)

// Run blocks until ctx is cancelled, processing one job at a time.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.PageSize <= 0 {
		d.PageSize = defaultPageSize
	}
	if d.SendDelay <= 0 {
		d.SendDelay = defaultSendDelay
	}

	for {
		m, err := d.Consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.Logger.Warn("kafka fetch failed", zap.Error(err))
			time.Sleep(200 * time.Millisecond)
			continue
		}

		var env model.Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil || env.JobID == "" {
			// poison payload: commit and skip
			d.Logger.Warn("bad dispatch envelope", zap.Error(err))
			_ = d.Consumer.Commit(ctx, m)
			continue
		}

		if err := d.RunJob(ctx, env); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// leave the message uncommitted; the queue's own retry policy
			// redelivers it and RunJob resumes from the checkpoint
			d.Logger.Error("dispatch job failed",
				zap.String("job_id", env.JobID),
				zap.Int64("campaign_id", env.CampaignID),
				zap.Error(err),
			)
			_ = d.Jobs.MarkFailed(ctx, env.JobID, err.Error())
			metrics.CampaignsTotal.WithLabelValues("failed").Inc()
			continue
		}

		if err := d.Consumer.Commit(ctx, m); err != nil {
			d.Logger.Warn("kafka commit failed", zap.Error(err))
		}
	}
}

// RunJob executes one dispatch job to completion. Safe to call again for the
// same job after a partial run: pages before the persisted cursor are never
// revisited.
func (d *Dispatcher) RunJob(ctx context.Context, env model.Envelope) error {
	log := d.Logger.With(zap.String("job_id", env.JobID), zap.Int64("campaign_id", env.CampaignID))

	job, err := d.Jobs.GetByID(ctx, env.JobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		log.Warn("dispatch job not found, skipping")
		return nil
	}
	if job.Status == model.JobDone {
		log.Info("dispatch job already completed, skipping")
		return nil
	}

	campaign, err := d.Campaigns.GetByID(ctx, job.CampaignID)
	if err != nil {
		if errors.Is(err, repository.ErrCampaignNotFound) {
			log.Warn("campaign gone, completing job with no work")
			return d.Checkpoints.Complete(ctx, job.ID, job.CampaignID)
		}
		return fmt.Errorf("load campaign: %w", err)
	}

	if err := d.Jobs.MarkRunning(ctx, job.ID); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}

	filter, err := audience.Resolve(campaign)
	if err != nil {
		if errors.Is(err, audience.ErrNoRecipients) {
			log.Info("manual campaign with empty recipient list, nothing to send")
			metrics.CampaignsTotal.WithLabelValues("completed").Inc()
			return d.Checkpoints.Complete(ctx, job.ID, campaign.ID)
		}
		return fmt.Errorf("resolve audience: %w", err)
	}

	var cursor int64
	if job.Cursor != nil {
		cursor = *job.Cursor
	}

	var sent, failed int
	for {
		page, err := d.Users.PageAfter(ctx, filter, cursor, d.PageSize)
		if err != nil {
			return fmt.Errorf("fetch recipients after id %d: %w", cursor, err)
		}
		if len(page) == 0 {
			break
		}

		pageSent, pageFailed := d.sendPage(ctx, job.ID, campaign, page)
		sent += pageSent
		failed += pageFailed
		if ctx.Err() != nil {
			return ctx.Err()
		}

		cursor = page[len(page)-1].ID
		if err := d.Checkpoints.Checkpoint(ctx, job.ID, campaign.ID, cursor, len(page)); err != nil {
			return fmt.Errorf("checkpoint at id %d: %w", cursor, err)
		}
		metrics.DispatchPagesTotal.Inc()

		if len(page) < d.PageSize {
			break
		}
	}

	if err := d.Checkpoints.Complete(ctx, job.ID, campaign.ID); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	metrics.CampaignsTotal.WithLabelValues("completed").Inc()
	log.Info("campaign dispatched",
		zap.Int("sent", sent),
		zap.Int("failed", failed),
		zap.Int64("final_cursor", cursor),
	)
	return nil
}

// sendPage attempts delivery to every recipient of one page, in id order.
// A failed send is logged and counted; the rest of the page still gets its
// attempt.
func (d *Dispatcher) sendPage(ctx context.Context, jobID string, campaign *model.Campaign, page []model.User) (sent, failed int) {
	events := make([]model.EmailEvent, 0, len(page))

	for _, u := range page {
		select {
		case <-ctx.Done():
			return sent, failed
		case <-time.After(d.SendDelay):
		}

		ev := model.EmailEvent{
			EventID:    util.New(),
			CampaignID: campaign.ID,
			JobID:      jobID,
			UserID:     u.ID,
			Email:      u.Email,
			Status:     model.EventSent,
			CreatedAt:  time.Now().UTC(),
		}

		err := d.Mailer.Send(ctx, mailer.Email{
			To:      u.Email,
			Subject: campaign.Subject,
			HTML:    campaign.Content,
		})
		if err != nil {
			failed++
			ev.Status = model.EventFailed
			ev.Error = err.Error()
			metrics.EmailsTotal.WithLabelValues("failed").Inc()
			d.Logger.Warn("send failed",
				zap.Int64("campaign_id", campaign.ID),
				zap.Int64("user_id", u.ID),
				zap.Error(err),
			)
		} else {
			sent++
			metrics.EmailsTotal.WithLabelValues("sent").Inc()
		}
		events = append(events, ev)
	}

	// reporting is best-effort; a ClickHouse hiccup must not fail the page
	if d.Events != nil {
		if err := d.Events.InsertBatch(ctx, events); err != nil {
			d.Logger.Warn("event batch insert failed", zap.Error(err))
		}
	}
	return sent, failed
}
