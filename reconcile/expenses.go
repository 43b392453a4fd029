package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mmdatafocus/pos_sync/config"
	"github.com/mmdatafocus/pos_sync/models"
	"github.com/mmdatafocus/pos_sync/outbox"
	"github.com/mmdatafocus/pos_sync/remote"
	"github.com/mmdatafocus/pos_sync/store"
	"github.com/mmdatafocus/pos_sync/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KeyExpenses is the scoped read-model blob: an id-keyed map of expenses.
const KeyExpenses = "expenses"

// pullWindow bounds the "changed since" pull of remote rows.
const pullWindow = 30 * 24 * time.Hour

// ExpenseReconciler owns the expense read model and its outbox. Expenses are
// stored twice locally: the scoped blob is authoritative; the expense_records
// table is a best-effort secondary tolerant of absence.
type ExpenseReconciler struct {
	Remote remote.ExpenseService
	Store  *store.Store
	Queue  *outbox.Queue[models.Expense]
	DB     *gorm.DB
	Logger *logrus.Logger
}

func (r *ExpenseReconciler) readAll(scope store.TenantScope) map[string]models.Expense {
	all := map[string]models.Expense{}
	store.ReadJSON(r.Store, scope, KeyExpenses, &all)
	return all
}

func (r *ExpenseReconciler) writeAll(scope store.TenantScope, all map[string]models.Expense) {
	_ = store.WriteJSON(r.Store, scope, KeyExpenses, all)
}

// List returns the local read model, newest occurrence first.
func (r *ExpenseReconciler) List(scope store.TenantScope) []models.Expense {
	all := r.readAll(scope)
	out := make([]models.Expense, 0, len(all))
	for _, e := range all {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	return out
}

// Save applies an add/update: the local read model is updated synchronously
// (optimistic UI), then an upsert keyed by the entity id is enqueued.
func (r *ExpenseReconciler) Save(ctx context.Context, scope store.TenantScope, expense *models.Expense) error {
	if scope.IsZero() {
		return store.ErrNoTenantScope
	}

	all := r.readAll(scope)
	all[expense.ID] = *expense
	r.writeAll(scope, all)
	r.persistRecord(ctx, scope, expense)

	return r.Queue.Enqueue(scope, expense.ID, models.QueueOperationUpsert, *expense, "")
}

// Delete removes locally and enqueues a remote delete by id.
func (r *ExpenseReconciler) Delete(ctx context.Context, scope store.TenantScope, id string) error {
	if scope.IsZero() {
		return store.ErrNoTenantScope
	}

	all := r.readAll(scope)
	delete(all, id)
	r.writeAll(scope, all)
	r.deleteRecord(ctx, scope, id)

	return r.Queue.Enqueue(scope, id, models.QueueOperationDelete, models.Expense{ID: id}, "")
}

// Drain pushes pending mutations oldest-first. Success acknowledges the item
// against its snapshotted generation, so an edit saved while its old payload
// was in flight stays queued; failure re-attaches an error WITHOUT discarding
// a previously recorded one (keep-first policy — the earliest diagnostic is
// the useful one for triage).
func (r *ExpenseReconciler) Drain(ctx context.Context, scope store.TenantScope) error {
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
			err = r.Remote.DeleteExpense(ctx, item.ID)
		default:
			expense := item.Payload
			err = r.Remote.UpsertExpense(ctx, &expense)
		}
		if err != nil {
			r.Queue.AttachErrorKeepFirst(scope, item.ID, err.Error())
			failures++
			lastErr = err
			continue
		}
		if r.Queue.Ack(scope, item.ID, item.Gen) && item.Op == models.QueueOperationUpsert {
			r.markSynced(ctx, scope, item.ID)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d queued expenses still failing: %w", failures, len(items), lastErr)
	}
	return nil
}

// Pull merges recently changed remote rows into the read model, skipping any
// id still present in the pending queue so a remote read never clobbers an
// edit that has not been pushed yet. Called only after a successful (or
// empty) drain.
func (r *ExpenseReconciler) Pull(ctx context.Context, scope store.TenantScope) error {
	if scope.IsZero() {
		return store.ErrNoTenantScope
	}

	rows, err := r.Remote.ListExpensesChangedSince(ctx, time.Now().Add(-pullWindow))
	if err != nil {
		return err
	}

	all := r.readAll(scope)
	for _, row := range rows {
		if r.Queue.Has(scope, row.ID) {
			continue
		}
		all[row.ID] = row
		row := row
		r.persistRecord(ctx, scope, &row)
	}
	r.writeAll(scope, all)
	return nil
}

func (r *ExpenseReconciler) markSynced(ctx context.Context, scope store.TenantScope, id string) {
	now := time.Now().UTC()
	all := r.readAll(scope)
	if e, ok := all[id]; ok {
		e.SyncedAt = &now
		all[id] = e
		r.writeAll(scope, all)
		r.persistRecord(ctx, scope, &e)
	}
}

// persistRecord writes the secondary durable copy. Failures are logged and
// ignored; the scoped blob stays authoritative.
func (r *ExpenseReconciler) persistRecord(ctx context.Context, scope store.TenantScope, expense *models.Expense) {
	if r.DB == nil {
		return
	}
	record := models.ExpenseRecord{
		ID:         expense.ID,
		BusinessId: scope.BusinessID,
		UserId:     scope.UserID,
		Amount:     expense.Amount,
		Category:   expense.Category,
		OccurredAt: expense.OccurredAt,
		Kind:       expense.Kind,
		SyncedAt:   expense.SyncedAt,
	}
	ctx = utils.SetBusinessIdInContext(ctx, scope.BusinessID)
	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).Error
	if err != nil {
		config.LogError(r.Logger, "reconcile", "persistRecord", "writing expense_records", map[string]any{
			"expense_id": expense.ID,
		}, err)
	}
}

func (r *ExpenseReconciler) deleteRecord(ctx context.Context, scope store.TenantScope, id string) {
	if r.DB == nil {
		return
	}
	ctx = utils.SetBusinessIdInContext(ctx, scope.BusinessID)
	err := r.DB.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.ExpenseRecord{}).Error
	if err != nil {
		config.LogError(r.Logger, "reconcile", "deleteRecord", "deleting expense_records row", map[string]any{
			"expense_id": id,
		}, err)
	}
}
