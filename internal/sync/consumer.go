package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/datacite/registry-search/internal/registry"
	"github.com/datacite/registry-search/internal/search"
	"github.com/datacite/registry-search/pkg/kafka"
	"github.com/datacite/registry-search/pkg/metrics"
)

// ExistenceChecker answers whether an entity is still live in the system of
// record. Implemented by the registry store.
type ExistenceChecker interface {
	Exists(ctx context.Context, entityType, uid string) (bool, error)
}

// Invalidator drops cached query responses for one entity type after an
// index write. Implemented by the query cache; may be nil.
type Invalidator interface {
	Invalidate(ctx context.Context, entityType string) error
}

// Consumer applies index-sync messages to the search gateway. Every apply
// path is idempotent, so at-least-once delivery and outbox replays converge
// on the correct index state:
//
//   - deletes remove the document, and removing a missing key is a no-op;
//   - upserts for entities no longer live in the registry become deletes
//     (read-repair for deliveries that arrive after the delete);
//   - upserts older than the indexed document's version are skipped.
type Consumer struct {
	gateway  search.Gateway
	registry ExistenceChecker
	cache    Invalidator
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewConsumer(gateway search.Gateway, reg ExistenceChecker, cache Invalidator, m *metrics.Metrics) *Consumer {
	return &Consumer{
		gateway:  gateway,
		registry: reg,
		cache:    cache,
		metrics:  m,
		logger:   slog.Default().With("component", "sync-consumer"),
	}
}

// Handle is the kafka.MessageHandler for the index-sync topic. A returned
// error leaves the offset uncommitted so the message redelivers.
func (c *Consumer) Handle(ctx context.Context, key, value []byte) error {
	msg, err := kafka.DecodeJSON[Message](value)
	if err != nil {
		// A malformed message never becomes valid; log and commit past it.
		c.logger.Error("dropping undecodable message", "key", string(key), "error", err)
		c.metrics.SyncMessagesTotal.WithLabelValues("unknown", "failed").Inc()
		return nil
	}

	outcome, err := c.apply(ctx, msg)
	if err != nil {
		c.metrics.SyncMessagesTotal.WithLabelValues(msg.Action, "failed").Inc()
		return err
	}
	c.metrics.SyncMessagesTotal.WithLabelValues(msg.Action, outcome).Inc()

	if outcome != "skipped_stale" {
		c.invalidate(ctx, msg.EntityType)
	}
	c.observeIndexSize(msg.EntityType)
	return nil
}

func (c *Consumer) apply(ctx context.Context, msg Message) (string, error) {
	if msg.Action == registry.ActionDelete {
		if err := c.gateway.DeleteDocument(ctx, msg.EntityType, msg.EntityKey); err != nil {
			return "", fmt.Errorf("deleting %s/%s from index: %w", msg.EntityType, msg.EntityKey, err)
		}
		return "applied", nil
	}

	doc, err := kafka.DecodeJSON[search.Document](msg.Payload)
	if err != nil {
		c.logger.Error("dropping upsert with undecodable payload",
			"entity_type", msg.EntityType, "entity_key", msg.EntityKey, "error", err)
		return "failed", nil
	}

	live, err := c.registry.Exists(ctx, msg.EntityType, msg.EntityKey)
	if err != nil {
		return "", fmt.Errorf("checking %s/%s in registry: %w", msg.EntityType, msg.EntityKey, err)
	}
	if !live {
		// The entity was deleted after this change was enqueued; indexing it
		// would resurrect a ghost document.
		if err := c.gateway.DeleteDocument(ctx, msg.EntityType, msg.EntityKey); err != nil {
			return "", fmt.Errorf("repairing %s/%s in index: %w", msg.EntityType, msg.EntityKey, err)
		}
		c.logger.Info("repaired stale upsert for deleted entity",
			"entity_type", msg.EntityType, "entity_key", msg.EntityKey, "version", msg.Version)
		return "skipped_missing", nil
	}

	if current, ok := c.gateway.GetDocument(ctx, msg.EntityType, msg.EntityKey); ok && current.Version >= doc.Version {
		return "skipped_stale", nil
	}

	if err := c.gateway.IndexDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("indexing %s/%s: %w", msg.EntityType, msg.EntityKey, err)
	}
	return "applied", nil
}

func (c *Consumer) invalidate(ctx context.Context, entityType string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx, entityType); err != nil {
		c.logger.Error("cache invalidation failed", "entity_type", entityType, "error", err)
	}
}

func (c *Consumer) observeIndexSize(entityType string) {
	if counter, ok := c.gateway.(interface{ DocCount(string) int }); ok {
		c.metrics.IndexDocuments.WithLabelValues(entityType).Set(float64(counter.DocCount(entityType)))
	}
}
