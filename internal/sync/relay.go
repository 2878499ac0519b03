package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/datacite/registry-search/internal/registry"
	"github.com/datacite/registry-search/pkg/config"
	"github.com/datacite/registry-search/pkg/kafka"
	"github.com/datacite/registry-search/pkg/metrics"
	"github.com/datacite/registry-search/pkg/resilience"
)

// Publisher is the broker side of the relay.
type Publisher interface {
	PublishBatch(ctx context.Context, msgs []kafka.Message) error
}

// OutboxSource is the store side of the relay.
type OutboxSource interface {
	FetchPending(ctx context.Context, limit int) ([]registry.OutboxRow, error)
	MarkPublished(ctx context.Context, ids []int64) error
	PendingCount(ctx context.Context) (int, error)
}

// Relay polls the outbox and publishes pending rows to Kafka. Rows are
// marked published only after the broker acknowledges, so a crash between
// publish and mark replays the batch: delivery is at-least-once and the
// consumer deduplicates.
type Relay struct {
	source    OutboxSource
	publisher Publisher
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewRelay(source OutboxSource, publisher Publisher, m *metrics.Metrics, cfg config.WorkerConfig) *Relay {
	return &Relay{
		source:    source,
		publisher: publisher,
		metrics:   m,
		interval:  cfg.OutboxPollInterval,
		batchSize: cfg.OutboxBatchSize,
		logger:    slog.Default().With("component", "outbox-relay"),
	}
}

// Run polls until ctx is cancelled. One failed drain cycle is logged and
// retried on the next tick rather than stopping the relay.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("relay started", "interval", r.interval, "batch_size", r.batchSize)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if err := r.drain(ctx); err != nil {
				r.logger.Error("drain cycle failed", "error", err)
			}
			if pending, err := r.source.PendingCount(ctx); err == nil {
				r.metrics.OutboxPending.Set(float64(pending))
			}
		}
	}
}

// drain publishes one batch of pending rows and marks them published.
func (r *Relay) drain(ctx context.Context) error {
	rows, err := r.source.FetchPending(ctx, r.batchSize)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		msg := FromOutbox(row)
		msgs = append(msgs, kafka.Message{
			Key:   PartitionKey(msg.EntityType, msg.EntityKey),
			Value: msg,
		})
		ids = append(ids, row.ID)
	}

	err = resilience.Retry(ctx, "outbox-publish", resilience.RetryConfig{}, func() error {
		return r.publisher.PublishBatch(ctx, msgs)
	})
	if err != nil {
		r.metrics.OutboxPublishedTotal.WithLabelValues("failure").Add(float64(len(msgs)))
		return err
	}
	r.metrics.OutboxPublishedTotal.WithLabelValues("success").Add(float64(len(msgs)))

	if err := r.source.MarkPublished(ctx, ids); err != nil {
		// Already on the broker; the rows replay next cycle and the
		// consumer's version guard absorbs the duplicates.
		return err
	}
	r.logger.Debug("batch relayed", "count", len(rows), "last_id", ids[len(ids)-1])
	return nil
}
