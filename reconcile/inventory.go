package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/mmdatafocus/pos_sync/models"
	"github.com/mmdatafocus/pos_sync/outbox"
	"github.com/mmdatafocus/pos_sync/remote"
	"github.com/mmdatafocus/pos_sync/store"
	"github.com/sirupsen/logrus"
)

// KeyInventory is the scoped read-model blob: product id -> latest mutation.
const KeyInventory = "inventory"

// InventoryReconciler pushes product mutations. The product id is the
// server-side reconciliation key, so repeated drains converge. Inventory
// counts are not strongly consistent; races are reconciled after the fact.
type InventoryReconciler struct {
	Remote remote.InventoryService
	Store  *store.Store
	Queue  *outbox.Queue[models.InventoryMutation]
	Logger *logrus.Logger
}

func (r *InventoryReconciler) readAll(scope store.TenantScope) map[string]models.InventoryMutation {
	all := map[string]models.InventoryMutation{}
	store.ReadJSON(r.Store, scope, KeyInventory, &all)
	return all
}

func (r *InventoryReconciler) writeAll(scope store.TenantScope, all map[string]models.InventoryMutation) {
	_ = store.WriteJSON(r.Store, scope, KeyInventory, all)
}

func (r *InventoryReconciler) List(scope store.TenantScope) []models.InventoryMutation {
	all := r.readAll(scope)
	out := make([]models.InventoryMutation, 0, len(all))
	for _, m := range all {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *InventoryReconciler) Save(ctx context.Context, scope store.TenantScope, mutation *models.InventoryMutation) error {
	if scope.IsZero() {
		return store.ErrNoTenantScope
	}

	all := r.readAll(scope)
	all[mutation.ProductID] = *mutation
	r.writeAll(scope, all)

	return r.Queue.Enqueue(scope, mutation.ProductID, models.QueueOperationUpsert, *mutation, "")
}

func (r *InventoryReconciler) Delete(ctx context.Context, scope store.TenantScope, productID string) error {
	if scope.IsZero() {
		return store.ErrNoTenantScope
	}

	all := r.readAll(scope)
	delete(all, productID)
	r.writeAll(scope, all)

	return r.Queue.Enqueue(scope, productID, models.QueueOperationDelete, models.InventoryMutation{ProductID: productID}, "")
}

// Drain pushes pending mutations oldest-first; failures keep the item with
// the latest error attached.
func (r *InventoryReconciler) Drain(ctx context.Context, scope store.TenantScope) error {
	if scope.IsZero() {
		return store.ErrNoTenantScope
	}

	items := r.Queue.Items(scope)
	failures := 0
	var lastErr error
	for _, item := range items {
		var err error
		switch item.Op {
		case models.QueueOperationDelete:
			err = r.Remote.DeleteInventory(ctx, item.ID)
		default:
			mutation := item.Payload
			err = r.Remote.UpsertInventory(ctx, &mutation)
		}
		if err != nil {
			r.Queue.AttachErrorLatest(scope, item.ID, err.Error())
			failures++
			lastErr = err
			continue
		}
		r.Queue.Ack(scope, item.ID, item.Gen)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d queued inventory mutations still failing: %w", failures, len(items), lastErr)
	}
	return nil
}
