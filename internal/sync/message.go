// Package sync moves committed registry changes into the search index: the
// relay drains the transactional outbox into Kafka, and the consumer applies
// each change idempotently with a version guard and read-repair against the
// system of record.
package sync

import (
	"encoding/json"
	"time"

	"github.com/datacite/registry-search/internal/registry"
)

// Message is the wire format of one index-sync change. Messages for the same
// entity key share a partition key, so the broker preserves their submission
// order; across keys no ordering is assumed.
type Message struct {
	ID         int64           `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityKey  string          `json:"entity_key"`
	Action     string          `json:"action"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Version    int64           `json:"version"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// PartitionKey returns the Kafka message key for an entity.
func PartitionKey(entityType, entityKey string) string {
	return entityType + ":" + entityKey
}

// FromOutbox converts a stored outbox row into its wire message.
func FromOutbox(r registry.OutboxRow) Message {
	msg := Message{
		ID:         r.ID,
		EntityType: r.EntityType,
		EntityKey:  r.EntityKey,
		Action:     r.Action,
		Version:    r.Version,
		EnqueuedAt: r.EnqueuedAt,
	}
	if r.Action != registry.ActionDelete && len(r.Payload) > 0 {
		msg.Payload = json.RawMessage(r.Payload)
	}
	return msg
}
