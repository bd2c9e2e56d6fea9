package worker

import (
	"context"
	"time"

	"github.com/bsocio/campaign-service/internal/repository"
	"go.uber.org/zap"
)

// Publisher publishes one event to the broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Relay drains the transactional outbox into Kafka. Publishing is
// at-least-once: a crash between publish and MarkPublished re-emits the rows,
// and the dispatcher tolerates redelivered envelopes.
type Relay struct {
	Outbox    repository.OutboxRepository
	Producer  Publisher
	Interval  time.Duration
	BatchSize int
	Logger    *zap.Logger
}

const (
	defaultRelayInterval  = 2 * time.Second
	defaultRelayBatchSize = 100
)

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	if r.Interval <= 0 {
		r.Interval = defaultRelayInterval
	}
	if r.BatchSize <= 0 {
		r.BatchSize = defaultRelayBatchSize
	}

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				r.Logger.Error("outbox relay tick failed", zap.Error(err))
			}
		}
	}
}

// Tick publishes one batch of unpublished rows in insertion order. On a
// publish failure the row and everything after it stay unpublished for the
// next tick, preserving ordering per aggregate.
func (r *Relay) Tick(ctx context.Context) error {
	rows, err := r.Outbox.FetchUnpublished(ctx, r.BatchSize)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	published := make([]int64, 0, len(rows))
	for _, row := range rows {
		if err := r.Producer.Publish(ctx, row.Topic, []byte(row.AggregateID), row.Payload); err != nil {
			r.Logger.Warn("publish failed, will retry",
				zap.Int64("outbox_id", row.ID),
				zap.String("topic", row.Topic),
				zap.Error(err),
			)
			break
		}
		published = append(published, row.ID)
	}

	if len(published) == 0 {
		return nil
	}
	return r.Outbox.MarkPublished(ctx, published)
}
