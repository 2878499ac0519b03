package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/datacite/registry-search/internal/search"
	apperrors "github.com/datacite/registry-search/pkg/errors"
	"github.com/datacite/registry-search/pkg/postgres"
)

// Outbox actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	id          BIGSERIAL PRIMARY KEY,
	entity_type TEXT        NOT NULL,
	uid         TEXT        NOT NULL,
	attributes  JSONB       NOT NULL DEFAULT '{}',
	version     BIGINT      NOT NULL DEFAULT 1,
	created     TIMESTAMPTZ NOT NULL,
	updated     TIMESTAMPTZ NOT NULL,
	deleted_at  TIMESTAMPTZ,
	UNIQUE (entity_type, uid)
);

CREATE TABLE IF NOT EXISTS outbox (
	id           BIGSERIAL PRIMARY KEY,
	entity_type  TEXT        NOT NULL,
	entity_key   TEXT        NOT NULL,
	action       TEXT        NOT NULL,
	payload      JSONB,
	version      BIGINT      NOT NULL,
	enqueued_at  TIMESTAMPTZ NOT NULL,
	published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (id) WHERE published_at IS NULL;
`

// OutboxRow is one pending index-sync change, written in the same
// transaction as the entity change it describes.
type OutboxRow struct {
	ID         int64
	EntityType string
	EntityKey  string
	Action     string
	Payload    []byte
	Version    int64
	EnqueuedAt time.Time
}

// Store persists registry entities in PostgreSQL. Every mutation writes the
// entity row and its outbox row in one transaction, so a committed change is
// always eventually indexed.
type Store struct {
	client *postgres.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewStore(client *postgres.Client) *Store {
	return &Store{
		client: client,
		logger: slog.Default().With("component", "registry-store"),
		now:    time.Now,
	}
}

// Migrate creates the entity and outbox tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.client.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying registry schema: %w", err)
	}
	return nil
}

// Create validates and stores a new entity. A live entity with the same key
// is a conflict; a soft-deleted one is resurrected under a new version.
func (s *Store) Create(ctx context.Context, e *Entity) (*Entity, error) {
	e.UID = NormalizeKey(e.Type, e.UID)
	if err := e.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		var deletedAt sql.NullTime
		var version int64
		row := tx.QueryRowContext(ctx,
			`SELECT version, deleted_at FROM entities WHERE entity_type = $1 AND uid = $2 FOR UPDATE`,
			e.Type, e.UID)
		switch err := row.Scan(&version, &deletedAt); {
		case err == sql.ErrNoRows:
			e.Version = 1
			e.Created = now
			e.Updated = now
			attrs, mErr := json.Marshal(e.Attributes)
			if mErr != nil {
				return fmt.Errorf("encoding attributes: %w", mErr)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO entities (entity_type, uid, attributes, version, created, updated)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				e.Type, e.UID, attrs, e.Version, e.Created, e.Updated); err != nil {
				return fmt.Errorf("inserting entity: %w", err)
			}
		case err != nil:
			return fmt.Errorf("checking existing entity: %w", err)
		case !deletedAt.Valid:
			return apperrors.Newf(apperrors.ErrConflict, 409,
				"%s %q already exists", singular(e.Type), e.UID)
		default:
			// Re-creating a deleted key resurrects the record so the version
			// sequence stays monotonic for the sync consumer.
			e.Version = version + 1
			e.Created = now
			e.Updated = now
			attrs, mErr := json.Marshal(e.Attributes)
			if mErr != nil {
				return fmt.Errorf("encoding attributes: %w", mErr)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE entities SET attributes = $3, version = $4, created = $5, updated = $5, deleted_at = NULL
				 WHERE entity_type = $1 AND uid = $2`,
				e.Type, e.UID, attrs, e.Version, now); err != nil {
				return fmt.Errorf("resurrecting entity: %w", err)
			}
		}
		return s.enqueue(ctx, tx, e, ActionCreate)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Update replaces the entity's attributes and bumps its version.
func (s *Store) Update(ctx context.Context, e *Entity) (*Entity, error) {
	e.UID = NormalizeKey(e.Type, e.UID)
	if err := e.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT version, created FROM entities
			 WHERE entity_type = $1 AND uid = $2 AND deleted_at IS NULL FOR UPDATE`,
			e.Type, e.UID)
		var version int64
		var created time.Time
		if err := row.Scan(&version, &created); err != nil {
			if err == sql.ErrNoRows {
				return notFound(e.Type, e.UID)
			}
			return fmt.Errorf("loading entity for update: %w", err)
		}

		e.Version = version + 1
		e.Created = created
		e.Updated = now
		attrs, err := json.Marshal(e.Attributes)
		if err != nil {
			return fmt.Errorf("encoding attributes: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE entities SET attributes = $3, version = $4, updated = $5
			 WHERE entity_type = $1 AND uid = $2`,
			e.Type, e.UID, attrs, e.Version, now); err != nil {
			return fmt.Errorf("updating entity: %w", err)
		}
		return s.enqueue(ctx, tx, e, ActionUpdate)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Delete soft-deletes the entity and enqueues its removal from the index.
// Clients with registered works and providers with live clients cannot be
// deleted.
func (s *Store) Delete(ctx context.Context, entityType, uid string) error {
	uid = NormalizeKey(entityType, uid)
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		if err := s.checkDeletable(ctx, tx, entityType, uid); err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx,
			`SELECT version FROM entities
			 WHERE entity_type = $1 AND uid = $2 AND deleted_at IS NULL FOR UPDATE`,
			entityType, uid)
		var version int64
		if err := row.Scan(&version); err != nil {
			if err == sql.ErrNoRows {
				return notFound(entityType, uid)
			}
			return fmt.Errorf("loading entity for delete: %w", err)
		}

		now := s.now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE entities SET version = $3, updated = $4, deleted_at = $4
			 WHERE entity_type = $1 AND uid = $2`,
			entityType, uid, version+1, now); err != nil {
			return fmt.Errorf("deleting entity: %w", err)
		}
		e := &Entity{Type: entityType, UID: uid, Version: version + 1, Updated: now}
		return s.enqueue(ctx, tx, e, ActionDelete)
	})
}

func (s *Store) checkDeletable(ctx context.Context, tx *sql.Tx, entityType, uid string) error {
	var childType, childField string
	switch entityType {
	case search.TypeClients:
		childType, childField = search.TypeWorks, "client_id"
	case search.TypeProviders:
		childType, childField = search.TypeClients, "provider_id"
	default:
		return nil
	}

	var n int
	row := tx.QueryRowContext(ctx,
		`SELECT count(*) FROM entities
		 WHERE entity_type = $1 AND attributes->>$2 = $3 AND deleted_at IS NULL`,
		childType, childField, uid)
	if err := row.Scan(&n); err != nil {
		return fmt.Errorf("counting dependents: %w", err)
	}
	if n > 0 {
		return apperrors.Newf(apperrors.ErrValidation, 422,
			"Can't delete %s %q with %d %s", singular(entityType), uid, n, childType)
	}
	return nil
}

// Get loads one live entity.
func (s *Store) Get(ctx context.Context, entityType, uid string) (*Entity, error) {
	uid = NormalizeKey(entityType, uid)
	row := s.client.DB.QueryRowContext(ctx,
		`SELECT uid, attributes, version, created, updated FROM entities
		 WHERE entity_type = $1 AND uid = $2 AND deleted_at IS NULL`,
		entityType, uid)
	e, err := scanEntity(row, entityType)
	if err == sql.ErrNoRows {
		return nil, notFound(entityType, uid)
	}
	return e, err
}

// Exists reports whether a live entity with the key is stored. The sync
// consumer uses it to repair deliveries that arrive after a delete.
func (s *Store) Exists(ctx context.Context, entityType, uid string) (bool, error) {
	var n int
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM entities
		 WHERE entity_type = $1 AND uid = $2 AND deleted_at IS NULL`,
		entityType, NormalizeKey(entityType, uid)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking entity existence: %w", err)
	}
	return n > 0, nil
}

// List pages through live entities of one type in insertion order, for
// reindex backfills.
func (s *Store) List(ctx context.Context, entityType string, limit, offset int) ([]*Entity, error) {
	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT uid, attributes, version, created, updated FROM entities
		 WHERE entity_type = $1 AND deleted_at IS NULL
		 ORDER BY id LIMIT $2 OFFSET $3`,
		entityType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close()

	var entities []*Entity
	for rows.Next() {
		e, err := scanEntity(rows, entityType)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (s *Store) enqueue(ctx context.Context, tx *sql.Tx, e *Entity, action string) error {
	var payload []byte
	if action != ActionDelete {
		doc := ProjectDocument(e)
		var err error
		if payload, err = json.Marshal(doc); err != nil {
			return fmt.Errorf("encoding outbox payload: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO outbox (entity_type, entity_key, action, payload, version, enqueued_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.Type, e.UID, action, payload, e.Version, s.now().UTC()); err != nil {
		return fmt.Errorf("enqueueing outbox row: %w", err)
	}
	return nil
}

// FetchPending returns up to limit unpublished outbox rows in id order.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]OutboxRow, error) {
	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT id, entity_type, entity_key, action, COALESCE(payload, 'null'), version, enqueued_at
		 FROM outbox WHERE published_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching pending outbox rows: %w", err)
	}
	defer rows.Close()

	var pending []OutboxRow
	for rows.Next() {
		var r OutboxRow
		if err := rows.Scan(&r.ID, &r.EntityType, &r.EntityKey, &r.Action, &r.Payload, &r.Version, &r.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("scanning outbox row: %w", err)
		}
		pending = append(pending, r)
	}
	return pending, rows.Err()
}

// MarkPublished stamps the given outbox rows as delivered to the broker.
func (s *Store) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.client.DB.ExecContext(ctx,
		`UPDATE outbox SET published_at = $2 WHERE id = ANY($1)`,
		pq.Array(ids), s.now().UTC())
	if err != nil {
		return fmt.Errorf("marking outbox rows published: %w", err)
	}
	return nil
}

// PendingCount returns the outbox backlog size, for the backlog gauge.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM outbox WHERE published_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting pending outbox rows: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner, entityType string) (*Entity, error) {
	e := &Entity{Type: entityType}
	var attrs []byte
	if err := row.Scan(&e.UID, &attrs, &e.Version, &e.Created, &e.Updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning entity: %w", err)
	}
	if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
		return nil, fmt.Errorf("decoding attributes: %w", err)
	}
	return e, nil
}

func notFound(entityType, uid string) error {
	return apperrors.Newf(apperrors.ErrNotFound, 404,
		"The resource you are looking for doesn't exist: %s/%s", entityType, uid)
}

// singular maps a plural type name to its singular form for messages.
func singular(entityType string) string {
	switch entityType {
	case search.TypeWorks:
		return "work"
	case search.TypeClients:
		return "client"
	case search.TypeProviders:
		return "provider"
	case search.TypePrefixes:
		return "prefix"
	case search.TypeClientPrefixes:
		return "client-prefix"
	case search.TypeProviderPrefixes:
		return "provider-prefix"
	case search.TypeEvents:
		return "event"
	default:
		return entityType
	}
}
