package readmodel

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/pos_sync/models"
	"github.com/mmdatafocus/pos_sync/store"
)

// KeyHeldSales stores parked carts. A held sale is a draft, not a checkout:
// it never touches the outbox and gets its receipt id only when resumed and
// submitted.
const KeyHeldSales = "held_sales"

type HeldSale struct {
	ID     string                `json:"id"`
	Label  string                `json:"label"`
	Draft  models.NewOfflineSale `json:"draft"`
	HeldAt time.Time             `json:"held_at"`
}

func readHeld(st *store.Store, scope store.TenantScope) map[string]HeldSale {
	all := map[string]HeldSale{}
	store.ReadJSON(st, scope, KeyHeldSales, &all)
	return all
}

func writeHeld(st *store.Store, scope store.TenantScope, all map[string]HeldSale) error {
	return store.WriteJSON(st, scope, KeyHeldSales, all)
}

// Hold parks a draft cart and returns its hold id.
func Hold(st *store.Store, scope store.TenantScope, label string, draft models.NewOfflineSale) (string, error) {
	if scope.IsZero() {
		return "", store.ErrNoTenantScope
	}
	held := HeldSale{
		ID:     uuid.NewString(),
		Label:  label,
		Draft:  draft,
		HeldAt: time.Now().UTC(),
	}
	all := readHeld(st, scope)
	all[held.ID] = held
	return held.ID, writeHeld(st, scope, all)
}

// Resume removes and returns a held cart. ok is false when the id is unknown.
func Resume(st *store.Store, scope store.TenantScope, id string) (HeldSale, bool) {
	all := readHeld(st, scope)
	held, ok := all[id]
	if !ok {
		return HeldSale{}, false
	}
	delete(all, id)
	_ = writeHeld(st, scope, all)
	return held, true
}

// ListHeld returns parked carts oldest first.
func ListHeld(st *store.Store, scope store.TenantScope) []HeldSale {
	all := readHeld(st, scope)
	out := make([]HeldSale, 0, len(all))
	for _, h := range all {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HeldAt.Before(out[j].HeldAt) })
	return out
}

// DiscardHeld drops a parked cart without submitting it.
func DiscardHeld(st *store.Store, scope store.TenantScope, id string) {
	all := readHeld(st, scope)
	delete(all, id)
	_ = writeHeld(st, scope, all)
}
