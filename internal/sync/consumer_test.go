package sync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/datacite/registry-search/internal/index"
	"github.com/datacite/registry-search/internal/registry"
	"github.com/datacite/registry-search/internal/search"
	"github.com/datacite/registry-search/pkg/metrics"
)

// Prometheus collectors register globally, once per test binary.
var testMetrics = metrics.New()

type fakeRegistry struct {
	live map[string]bool
	err  error
}

func (f *fakeRegistry) Exists(ctx context.Context, entityType, uid string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.live[entityType+"/"+uid], nil
}

type fakeInvalidator struct {
	calls []string
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, entityType string) error {
	f.calls = append(f.calls, entityType)
	return nil
}

func upsertMessage(t *testing.T, uid string, version int64) []byte {
	t.Helper()
	doc := search.Document{
		Type:    search.TypeClients,
		UID:     uid,
		Fields:  map[string][]string{"name": {"Test Client"}},
		Version: version,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(Message{
		ID:         1,
		EntityType: search.TypeClients,
		EntityKey:  uid,
		Action:     registry.ActionUpdate,
		Payload:    payload,
		Version:    version,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func deleteMessage(t *testing.T, uid string, version int64) []byte {
	t.Helper()
	raw, err := json.Marshal(Message{
		EntityType: search.TypeClients,
		EntityKey:  uid,
		Action:     registry.ActionDelete,
		Version:    version,
	})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestHandleUpsertThenDuplicate(t *testing.T) {
	engine := index.New(time.Minute)
	reg := &fakeRegistry{live: map[string]bool{"clients/AAAA.ONE": true}}
	inv := &fakeInvalidator{}
	consumer := NewConsumer(engine, reg, inv, testMetrics)
	ctx := context.Background()

	msg := upsertMessage(t, "AAAA.ONE", 1)
	for i := 0; i < 3; i++ {
		if err := consumer.Handle(ctx, []byte("clients:AAAA.ONE"), msg); err != nil {
			t.Fatalf("Handle #%d: %v", i, err)
		}
	}

	if n := engine.DocCount(search.TypeClients); n != 1 {
		t.Errorf("DocCount = %d, want 1 after redelivery", n)
	}
	doc, ok := engine.GetDocument(ctx, search.TypeClients, "AAAA.ONE")
	if !ok || doc.Version != 1 {
		t.Errorf("indexed doc = %+v", doc)
	}
	if len(inv.calls) == 0 {
		t.Error("cache never invalidated")
	}
}

func TestHandleSkipsStaleVersion(t *testing.T) {
	engine := index.New(time.Minute)
	reg := &fakeRegistry{live: map[string]bool{"clients/AAAA.TWO": true}}
	consumer := NewConsumer(engine, reg, nil, testMetrics)
	ctx := context.Background()

	if err := consumer.Handle(ctx, nil, upsertMessage(t, "AAAA.TWO", 5)); err != nil {
		t.Fatalf("Handle v5: %v", err)
	}
	// An older change delivered late must not clobber the newer document.
	if err := consumer.Handle(ctx, nil, upsertMessage(t, "AAAA.TWO", 3)); err != nil {
		t.Fatalf("Handle v3: %v", err)
	}

	doc, _ := engine.GetDocument(ctx, search.TypeClients, "AAAA.TWO")
	if doc.Version != 5 {
		t.Errorf("indexed version = %d, want 5", doc.Version)
	}
}

func TestHandleRepairsUpsertForDeletedEntity(t *testing.T) {
	engine := index.New(time.Minute)
	ctx := context.Background()

	// Document already in the index, but the registry no longer has it.
	if err := engine.IndexDocument(ctx, search.Document{
		Type: search.TypeClients, UID: "AAAA.GONE", Version: 1,
		Fields: map[string][]string{},
	}); err != nil {
		t.Fatal(err)
	}
	reg := &fakeRegistry{live: map[string]bool{}}
	consumer := NewConsumer(engine, reg, nil, testMetrics)

	if err := consumer.Handle(ctx, nil, upsertMessage(t, "AAAA.GONE", 2)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if _, ok := engine.GetDocument(ctx, search.TypeClients, "AAAA.GONE"); ok {
		t.Error("ghost document survived read-repair")
	}
}

func TestHandleDeleteIdempotent(t *testing.T) {
	engine := index.New(time.Minute)
	ctx := context.Background()
	if err := engine.IndexDocument(ctx, search.Document{
		Type: search.TypeClients, UID: "AAAA.DEL", Version: 1,
		Fields: map[string][]string{},
	}); err != nil {
		t.Fatal(err)
	}
	consumer := NewConsumer(engine, &fakeRegistry{}, nil, testMetrics)

	for i := 0; i < 2; i++ {
		if err := consumer.Handle(ctx, nil, deleteMessage(t, "AAAA.DEL", 2)); err != nil {
			t.Fatalf("Handle delete #%d: %v", i, err)
		}
	}
	if _, ok := engine.GetDocument(ctx, search.TypeClients, "AAAA.DEL"); ok {
		t.Error("document still indexed after delete")
	}
}

func TestHandleRegistryErrorRedelivers(t *testing.T) {
	engine := index.New(time.Minute)
	reg := &fakeRegistry{err: errors.New("connection refused")}
	consumer := NewConsumer(engine, reg, nil, testMetrics)

	if err := consumer.Handle(context.Background(), nil, upsertMessage(t, "AAAA.ERR", 1)); err == nil {
		t.Error("expected an error so the offset stays uncommitted")
	}
}

func TestHandleMalformedMessageCommits(t *testing.T) {
	consumer := NewConsumer(index.New(time.Minute), &fakeRegistry{}, nil, testMetrics)
	if err := consumer.Handle(context.Background(), nil, []byte("{not json")); err != nil {
		t.Errorf("malformed message should be dropped, got %v", err)
	}
}
