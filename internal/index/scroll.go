package index

import (
	"sync"
	"time"

	apperrors "github.com/datacite/registry-search/pkg/errors"
	"github.com/google/uuid"
)

// scrollContext is a server-held snapshot of one scan: the ordered UIDs that
// matched when the scroll was opened, the total at that time, and a cursor
// into the snapshot.
type scrollContext struct {
	entityType string
	uids       []string
	total      int
	pos        int
	expires    time.Time
}

// scrollTable tracks open scroll contexts and expires them after their TTL.
type scrollTable struct {
	mu  sync.Mutex
	m   map[string]*scrollContext
	ttl time.Duration
}

func newScrollTable(ttl time.Duration) *scrollTable {
	return &scrollTable{
		m:   make(map[string]*scrollContext),
		ttl: ttl,
	}
}

// open registers a new scroll over the given UID snapshot and returns its
// id. served is the number of leading UIDs already delivered with the
// opening response; the cursor starts past them so the first continuation
// picks up where that response left off.
func (t *scrollTable) open(entityType string, uids []string, served int) string {
	if served > len(uids) {
		served = len(uids)
	}
	id := uuid.NewString()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[id] = &scrollContext{
		entityType: entityType,
		uids:       uids,
		total:      len(uids),
		pos:        served,
		expires:    time.Now().Add(t.ttl),
	}
	return id
}

// next returns the next batch of UIDs for an open scroll, with the entity
// type of the snapshot, and refreshes its TTL. An unknown or expired id
// surfaces as a scroll-expired error, which the caller reports to the
// client rather than retrying. An exhausted snapshot lingers until TTL so
// repeated requests get empty pages instead of errors.
func (t *scrollTable) next(id string, size int) ([]string, string, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ctx, ok := t.m[id]
	if !ok {
		return nil, "", 0, apperrors.New(apperrors.ErrScrollExpired, 410, "scroll context expired or unknown")
	}
	if time.Now().After(ctx.expires) {
		delete(t.m, id)
		return nil, "", 0, apperrors.New(apperrors.ErrScrollExpired, 410, "scroll context expired")
	}

	end := ctx.pos + size
	if size <= 0 || end > len(ctx.uids) {
		end = len(ctx.uids)
	}
	batch := ctx.uids[ctx.pos:end]
	ctx.pos = end
	ctx.expires = time.Now().Add(t.ttl)

	return batch, ctx.entityType, ctx.total, nil
}

// sweep drops expired contexts. Called opportunistically from the engine.
func (t *scrollTable) sweep() {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, ctx := range t.m {
		if now.After(ctx.expires) {
			delete(t.m, id)
		}
	}
}
