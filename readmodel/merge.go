package readmodel

import (
	"sort"

	"github.com/mmdatafocus/pos_sync/config"
	"github.com/mmdatafocus/pos_sync/models"
	"github.com/mmdatafocus/pos_sync/outbox"
	"github.com/mmdatafocus/pos_sync/remote"
	"github.com/mmdatafocus/pos_sync/store"
)

// KeyOrdersCache is the scoped blob holding the last known remote sales rows,
// so reports keep working through an outage.
const KeyOrdersCache = "orders_cache"

// ProjectQueueAsRows maps pending outbox sales into the remote row shape with
// the Pending flag set, so reports render unsynced transactions alongside
// synced ones.
func ProjectQueueAsRows(items []outbox.Item[models.OfflineSale]) []remote.SaleRow {
	rows := make([]remote.SaleRow, 0, len(items))
	for _, item := range items {
		sale := item.Payload
		rows = append(rows, remote.SaleRow{
			ReceiptID:     sale.Meta.ReceiptID,
			ReceiptNumber: sale.Meta.ReceiptNumber,
			CashierID:     sale.CashierID,
			CustomerName:  sale.CustomerName,
			Total:         sale.Total,
			SaleType:      sale.Meta.SaleType,
			BookingID:     sale.Meta.BookingID,
			CreatedAt:     sale.Meta.Timestamp,
			Pending:       true,
		})
	}
	return rows
}

// MergeRows combines row sources into one report slice. Later sources win on
// a duplicate receipt id (pending projections passed last override a stale
// remote copy of the same receipt). Rows without a receipt id cannot be
// deduplicated and are kept as-is. The result is ordered oldest first.
func MergeRows(sources ...[]remote.SaleRow) []remote.SaleRow {
	byReceipt := map[string]int{}
	var out []remote.SaleRow
	for _, rows := range sources {
		for _, row := range rows {
			if row.ReceiptID == "" {
				out = append(out, row)
				continue
			}
			if i, ok := byReceipt[row.ReceiptID]; ok {
				out[i] = row
				continue
			}
			byReceipt[row.ReceiptID] = len(out)
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// UpsertCache stores the newest rows for offline reporting, capped to the
// configured limit (most recent kept).
func UpsertCache(st *store.Store, scope store.TenantScope, rows []remote.SaleRow) {
	cached := CachedOrders(st, scope)
	merged := MergeRows(cached, rows)

	limit := config.OrdersCacheLimit()
	if limit > 0 && len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	_ = store.WriteJSON(st, scope, KeyOrdersCache, merged)
}

// CachedOrders returns the locally cached report rows, oldest first.
func CachedOrders(st *store.Store, scope store.TenantScope) []remote.SaleRow {
	var rows []remote.SaleRow
	store.ReadJSON(st, scope, KeyOrdersCache, &rows)
	return rows
}
