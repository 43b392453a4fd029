package readmodel

import (
	"strconv"
	"testing"
	"time"

	"github.com/mmdatafocus/pos_sync/config"
	"github.com/mmdatafocus/pos_sync/models"
	"github.com/mmdatafocus/pos_sync/outbox"
	"github.com/mmdatafocus/pos_sync/remote"
	"github.com/mmdatafocus/pos_sync/store"
	"github.com/shopspring/decimal"
)

func row(receiptID string, createdAt time.Time) remote.SaleRow {
	return remote.SaleRow{ReceiptID: receiptID, CreatedAt: createdAt}
}

func TestProjectQueueAsRowsMarksPending(t *testing.T) {
	now := time.Now().UTC()
	items := []outbox.Item[models.OfflineSale]{
		{
			ID: "rcpt-1",
			Payload: models.OfflineSale{
				CashierID:    "cashier-1",
				CustomerName: "Daw Mya",
				Total:        decimal.NewFromInt(500),
				Meta: models.SaleMeta{
					ReceiptID:     "rcpt-1",
					ReceiptNumber: "R-0001",
					Timestamp:     now,
					SaleType:      "retail",
				},
			},
		},
	}

	rows := ProjectQueueAsRows(items)
	if len(rows) != 1 {
		t.Fatalf("len = %d", len(rows))
	}
	got := rows[0]
	if !got.Pending {
		t.Fatal("projected row must be marked pending")
	}
	if got.ReceiptID != "rcpt-1" || got.ReceiptNumber != "R-0001" || got.CashierID != "cashier-1" {
		t.Fatalf("row = %+v", got)
	}
	if !got.Total.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("total = %s", got.Total)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("created at = %s", got.CreatedAt)
	}
}

func TestMergeRowsLaterSourceWins(t *testing.T) {
	now := time.Now().UTC()
	remoteRows := []remote.SaleRow{row("rcpt-1", now)}
	pending := []remote.SaleRow{{ReceiptID: "rcpt-1", CreatedAt: now, Pending: true}}

	merged := MergeRows(remoteRows, pending)
	if len(merged) != 1 {
		t.Fatalf("len = %d", len(merged))
	}
	if !merged[0].Pending {
		t.Fatal("pending projection must override the remote copy")
	}
}

func TestMergeRowsKeepsIDLessRows(t *testing.T) {
	now := time.Now().UTC()
	merged := MergeRows(
		[]remote.SaleRow{{CreatedAt: now}, {CreatedAt: now}},
		[]remote.SaleRow{row("rcpt-1", now)},
	)
	if len(merged) != 3 {
		t.Fatalf("id-less rows deduplicated: len = %d", len(merged))
	}
}

func TestMergeRowsSortsOldestFirst(t *testing.T) {
	now := time.Now().UTC()
	merged := MergeRows([]remote.SaleRow{
		row("b", now),
		row("a", now.Add(-time.Hour)),
		row("c", now.Add(time.Hour)),
	})
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if merged[i].ReceiptID != id {
			t.Fatalf("order = %v", merged)
		}
	}
}

func TestUpsertCacheCapsAtLimit(t *testing.T) {
	t.Setenv("ORDERS_CACHE_LIMIT", "5")
	st := store.NewStore(nil, config.GetLogger())
	scope := store.TenantScope{BusinessID: "biz", UserID: "u1"}

	base := time.Now().UTC().Add(-time.Hour)
	var rows []remote.SaleRow
	for i := 0; i < 8; i++ {
		rows = append(rows, row("rcpt-"+strconv.Itoa(i), base.Add(time.Duration(i)*time.Minute)))
	}
	UpsertCache(st, scope, rows)

	cached := CachedOrders(st, scope)
	if len(cached) != 5 {
		t.Fatalf("cache len = %d", len(cached))
	}
	// Most recent survive.
	if cached[0].ReceiptID != "rcpt-3" || cached[4].ReceiptID != "rcpt-7" {
		t.Fatalf("cache window = %v", cached)
	}
}

func TestUpsertCacheMergesWithExisting(t *testing.T) {
	st := store.NewStore(nil, config.GetLogger())
	scope := store.TenantScope{BusinessID: "biz", UserID: "u1"}
	now := time.Now().UTC()

	UpsertCache(st, scope, []remote.SaleRow{row("rcpt-1", now)})
	updated := row("rcpt-1", now)
	updated.CustomerName = "updated"
	UpsertCache(st, scope, []remote.SaleRow{updated, row("rcpt-2", now.Add(time.Minute))})

	cached := CachedOrders(st, scope)
	if len(cached) != 2 {
		t.Fatalf("cache len = %d", len(cached))
	}
	if cached[0].CustomerName != "updated" {
		t.Fatalf("existing row not replaced: %+v", cached[0])
	}
}

func TestHoldResumeRoundTrip(t *testing.T) {
	st := store.NewStore(nil, config.GetLogger())
	scope := store.TenantScope{BusinessID: "biz", UserID: "u1"}

	draft := models.NewOfflineSale{CashierID: "cashier-1", Total: decimal.NewFromInt(70)}
	id, err := Hold(st, scope, "table 4", draft)
	if err != nil {
		t.Fatal(err)
	}

	held := ListHeld(st, scope)
	if len(held) != 1 || held[0].Label != "table 4" {
		t.Fatalf("held = %+v", held)
	}

	resumed, ok := Resume(st, scope, id)
	if !ok {
		t.Fatal("resume missed the held sale")
	}
	if resumed.Draft.CashierID != "cashier-1" {
		t.Fatalf("draft = %+v", resumed.Draft)
	}
	if len(ListHeld(st, scope)) != 0 {
		t.Fatal("resumed sale still held")
	}

	if _, ok := Resume(st, scope, id); ok {
		t.Fatal("double resume must miss")
	}
}

func TestHoldRequiresScope(t *testing.T) {
	st := store.NewStore(nil, config.GetLogger())
	if _, err := Hold(st, store.TenantScope{}, "x", models.NewOfflineSale{}); err != store.ErrNoTenantScope {
		t.Fatalf("err = %v", err)
	}
}

func TestDiscardHeld(t *testing.T) {
	st := store.NewStore(nil, config.GetLogger())
	scope := store.TenantScope{BusinessID: "biz", UserID: "u1"}

	id, _ := Hold(st, scope, "x", models.NewOfflineSale{})
	DiscardHeld(st, scope, id)
	if len(ListHeld(st, scope)) != 0 {
		t.Fatal("discarded sale still held")
	}
}
