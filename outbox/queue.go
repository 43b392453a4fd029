package outbox

import (
	"sort"
	"sync"
	"time"

	"github.com/mmdatafocus/pos_sync/models"
	"github.com/mmdatafocus/pos_sync/store"
)

// Storage base keys, one durable queue per domain. All four route through
// the scoped store; that is the sole isolation boundary between tenants.
const (
	KeySalesQueue     = "offline_sales_queue"
	KeyExpensesQueue  = "expenses_queue"
	KeyInventoryQueue = "inventory_queue"
	KeyBookingsQueue  = "bookings_queue"
)

// Item is one pending mutation. ID is unique within its queue (for entity
// queues it is the entity id; for sales it is the receipt id). Gen is bumped
// on every enqueue of the id; an acknowledgement only removes the item when
// the generation still matches the one the drain snapshotted, so an edit that
// raced the remote call survives for the next pass.
type Item[T any] struct {
	ID         string                `json:"id"`
	Op         models.QueueOperation `json:"operation"`
	Payload    T                     `json:"payload"`
	Gen        uint64                `json:"gen"`
	EnqueuedAt time.Time             `json:"enqueued_at"`
	LastError  string                `json:"last_error,omitempty"`
}

// Queue is an insertion-ordered map persisted as a JSON list under the
// scoped store. Order is preserved for draining (oldest first); lookup by id
// is O(1) on the in-memory index built per operation. Length only grows via
// Enqueue and only shrinks after a remote acknowledgement.
type Queue[T any] struct {
	store   *store.Store
	baseKey string

	mu       sync.Mutex
	onChange func()
}

func NewQueue[T any](st *store.Store, baseKey string) *Queue[T] {
	return &Queue[T]{store: st, baseKey: baseKey}
}

// SetOnChange registers the queue-changed notification, fired on every
// enqueue. The orchestrator owns the registration; there is no ambient
// event bus.
func (q *Queue[T]) SetOnChange(fn func()) {
	q.mu.Lock()
	q.onChange = fn
	q.mu.Unlock()
}

func (q *Queue[T]) load(scope store.TenantScope) []Item[T] {
	var items []Item[T]
	store.ReadJSON(q.store, scope, q.baseKey, &items)
	// Stored order is authoritative; the sort is a repair step for blobs
	// written by older builds that kept an unordered map.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].EnqueuedAt.Before(items[j].EnqueuedAt)
	})
	return items
}

func (q *Queue[T]) save(scope store.TenantScope, items []Item[T]) {
	if items == nil {
		items = []Item[T]{}
	}
	_ = store.WriteJSON(q.store, scope, q.baseKey, items)
}

func nextGen[T any](items []Item[T]) uint64 {
	var max uint64
	for _, it := range items {
		if it.Gen > max {
			max = it.Gen
		}
	}
	return max + 1
}

// Enqueue adds a pending mutation. Re-enqueueing an existing id replaces its
// operation and payload in place, keeping its queue position, enqueue time
// and any recorded error, and bumps its generation so an in-flight drain
// cannot acknowledge the new payload away.
func (q *Queue[T]) Enqueue(scope store.TenantScope, id string, op models.QueueOperation, payload T, diagnostic string) error {
	if scope.IsZero() {
		return store.ErrNoTenantScope
	}

	q.mu.Lock()
	items := q.load(scope)
	gen := nextGen(items)
	found := false
	for i := range items {
		if items[i].ID == id {
			items[i].Op = op
			items[i].Payload = payload
			items[i].Gen = gen
			if diagnostic != "" {
				items[i].LastError = diagnostic
			}
			found = true
			break
		}
	}
	if !found {
		items = append(items, Item[T]{
			ID:         id,
			Op:         op,
			Payload:    payload,
			Gen:        gen,
			EnqueuedAt: time.Now().UTC(),
			LastError:  diagnostic,
		})
	}
	q.save(scope, items)
	notify := q.onChange
	q.mu.Unlock()

	if notify != nil {
		notify()
	}
	return nil
}

// Items returns a copy in drain order (oldest enqueued first).
func (q *Queue[T]) Items(scope store.TenantScope) []Item[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.load(scope)
	out := make([]Item[T], len(items))
	copy(out, items)
	return out
}

func (q *Queue[T]) Len(scope store.TenantScope) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.load(scope))
}

// Has reports whether id is pending. Used by the pull guard to keep a remote
// read from clobbering a not-yet-pushed local edit.
func (q *Queue[T]) Has(scope store.TenantScope, id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.load(scope) {
		if it.ID == id {
			return true
		}
	}
	return false
}

// Ack removes id after a remote acknowledgement, but only when its
// generation still matches the one observed at snapshot time. Returns false
// (and keeps the item) when the id was re-enqueued during the remote call;
// the newer payload drains on the next pass.
func (q *Queue[T]) Ack(scope store.TenantScope, id string, gen uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.load(scope)
	kept := items[:0]
	acked := false
	for _, it := range items {
		if it.ID == id && it.Gen == gen {
			acked = true
			continue
		}
		kept = append(kept, it)
	}
	if acked {
		q.save(scope, kept)
	}
	return acked
}

// AttachErrorLatest overwrites the item's diagnostic with the newest failure.
func (q *Queue[T]) AttachErrorLatest(scope store.TenantScope, id string, msg string) {
	q.setError(scope, id, msg, false)
}

// AttachErrorKeepFirst records the diagnostic only if the item does not
// already carry one, preserving the earliest failure for operator triage.
// The expenses drain uses this; the sales drain overwrites. The divergence
// is deliberate.
func (q *Queue[T]) AttachErrorKeepFirst(scope store.TenantScope, id string, msg string) {
	q.setError(scope, id, msg, true)
}

func (q *Queue[T]) setError(scope store.TenantScope, id string, msg string, keepFirst bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.load(scope)
	for i := range items {
		if items[i].ID != id {
			continue
		}
		if keepFirst && items[i].LastError != "" {
			break
		}
		items[i].LastError = msg
		break
	}
	q.save(scope, items)
}
