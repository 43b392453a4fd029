package reconcile

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/mmdatafocus/pos_sync/config"
	"github.com/mmdatafocus/pos_sync/models"
	"github.com/mmdatafocus/pos_sync/outbox"
	"github.com/mmdatafocus/pos_sync/remote"
	"github.com/mmdatafocus/pos_sync/session"
	"github.com/mmdatafocus/pos_sync/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// KeyLastSaleType stores the most recently accepted non-service sale-type
// label per tenant; it seeds the candidate probe list on later inserts.
const KeyLastSaleType = "last_sale_type"

// SalesReconciler turns checkouts and queued sales into remote rows using
// idempotent lookup-or-insert keyed by the client-generated receipt id.
type SalesReconciler struct {
	Remote  remote.SalesService
	Session *session.Manager
	Store   *store.Store
	Queue   *outbox.Queue[models.OfflineSale]
	Logger  *logrus.Logger

	draining atomic.Bool
}

// SubmitSale is the checkout entry point. The optimistic online path is
// attempted first; every failure degrades to the outbox — checkout never
// fails for the cashier. The only error returned is a missing tenant scope.
func (r *SalesReconciler) SubmitSale(ctx context.Context, scope store.TenantScope, sale *models.OfflineSale) error {
	if scope.IsZero() {
		return store.ErrNoTenantScope
	}

	if !config.DirectSubmit() {
		return r.Queue.Enqueue(scope, sale.Meta.ReceiptID, models.QueueOperationUpsert, *sale, "")
	}

	err := r.submitOnce(ctx, scope, sale)
	if err == nil {
		return nil
	}

	if remote.IsInsufficientStock(err) {
		// Surfaced for manual reconciliation; never silently dropped and
		// never allowed to fail the checkout.
		return r.Queue.Enqueue(scope, sale.Meta.ReceiptID, models.QueueOperationUpsert, *sale, err.Error())
	}

	if remote.IsAuthError(err) && r.Session != nil {
		if refreshErr := r.Session.Refresh(ctx); refreshErr == nil {
			if err = r.submitOnce(ctx, scope, sale); err == nil {
				return nil
			}
		}
	}

	config.LogError(r.Logger, "reconcile", "SubmitSale", "direct submit failed, queueing", map[string]any{
		"receipt_id": sale.Meta.ReceiptID,
	}, err)
	return r.Queue.Enqueue(scope, sale.Meta.ReceiptID, models.QueueOperationUpsert, *sale, err.Error())
}

// submitOnce performs one full remote attempt: stock validation for tracked
// lines, natural-key lookup, insert with sale-type probing, then stock
// decrements.
func (r *SalesReconciler) submitOnce(ctx context.Context, scope store.TenantScope, sale *models.OfflineSale) error {
	if err := r.validateStock(ctx, sale); err != nil {
		return err
	}

	// Lookup-or-insert: a crash between remote write and local
	// acknowledgement makes the retry find the existing row here.
	existing, err := r.Remote.LookupSaleByReceipt(ctx, sale.Meta.ReceiptID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	candidates := r.saleTypeCandidates(scope, sale.Meta.SaleType)
	var lastErr error
	for _, candidate := range candidates {
		_, insertErr := r.Remote.InsertSale(ctx, sale, candidate)
		if insertErr == nil {
			r.recordSaleType(scope, candidate)
			r.decrementStocks(ctx, sale)
			return nil
		}
		if remote.IsConstraintViolation(insertErr) {
			// Schema variance: this tenant's enum does not accept the
			// label. Try the next candidate.
			lastErr = insertErr
			continue
		}
		return insertErr
	}
	return lastErr
}

func (r *SalesReconciler) validateStock(ctx context.Context, sale *models.OfflineSale) error {
	requested := map[string]decimal.Decimal{}
	var ids []string
	for _, item := range sale.Items {
		if !item.Tracked {
			// Service lines carry no stock.
			continue
		}
		if _, seen := requested[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		requested[item.ProductID] = requested[item.ProductID].Add(item.Quantity)
	}
	if len(ids) == 0 {
		return nil
	}

	available, err := r.Remote.StockQuantities(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if requested[id].GreaterThan(available[id]) {
			return &remote.InsufficientStockError{
				ProductID: id,
				Requested: requested[id],
				Available: available[id],
			}
		}
	}
	return nil
}

// saleTypeCandidates builds the ordered probe list: the tenant's most
// recently accepted non-service label, then the fixed defaults. Service
// sales are never probed.
func (r *SalesReconciler) saleTypeCandidates(scope store.TenantScope, requested string) []string {
	if requested == models.SaleTypeService {
		return []string{models.SaleTypeService}
	}

	var ordered []string
	var last string
	if store.ReadJSON(r.Store, scope, KeyLastSaleType, &last) && last != "" {
		ordered = append(ordered, last)
	} else if requested != "" {
		ordered = append(ordered, requested)
	}
	ordered = append(ordered, models.DefaultSaleTypeCandidates...)

	seen := map[string]bool{}
	var out []string
	for _, c := range ordered {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func (r *SalesReconciler) recordSaleType(scope store.TenantScope, saleType string) {
	if saleType == models.SaleTypeService {
		return
	}
	_ = store.WriteJSON(r.Store, scope, KeyLastSaleType, saleType)
}

// decrementStocks runs after a successful insert. Failures are logged, not
// surfaced: inventory counts are reconciled after the fact, and failing the
// sale here would duplicate it on retry.
func (r *SalesReconciler) decrementStocks(ctx context.Context, sale *models.OfflineSale) {
	for _, item := range sale.Items {
		if !item.Tracked {
			continue
		}
		if err := r.Remote.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			config.LogError(r.Logger, "reconcile", "decrementStocks", "decrementing "+item.ProductID, map[string]any{
				"receipt_id": sale.Meta.ReceiptID,
			}, err)
		}
	}
}

// Drain processes the sales outbox oldest-first. Successes are acknowledged
// per item against the snapshotted generation, so a sale enqueued (or
// re-enqueued) while a remote call is in flight survives to the next pass.
// Each failing entry's diagnostic is overwritten with the latest error every
// pass (the expenses drain keeps the first; the asymmetry is deliberate).
func (r *SalesReconciler) Drain(ctx context.Context, scope store.TenantScope) error {
	if scope.IsZero() {
		return store.ErrNoTenantScope
	}
	// A concurrent drain request is coalesced into a no-op.
	if !r.draining.CompareAndSwap(false, true) {
		return nil
	}
	defer r.draining.Store(false)

	items := r.Queue.Items(scope)
	if len(items) == 0 {
		return nil
	}

	failing := 0
	var lastErr error
	for _, item := range items {
		sale := item.Payload
		if err := r.submitOnce(ctx, scope, &sale); err != nil {
			r.Queue.AttachErrorLatest(scope, item.ID, err.Error())
			failing++
			lastErr = err
			continue
		}
		r.Queue.Ack(scope, item.ID, item.Gen)
	}

	if r.Logger != nil {
		r.Logger.WithFields(logrus.Fields{
			"module":   "reconcile",
			"domain":   "sales",
			"drained":  len(items) - failing,
			"failing":  failing,
			"business": scope.BusinessID,
		}).Info("sales outbox drained")
	}
	if failing > 0 {
		return fmt.Errorf("%d of %d queued sales still failing: %w", failing, len(items), lastErr)
	}
	return nil
}
