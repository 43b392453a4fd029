package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/pos_sync/config"
	"github.com/mmdatafocus/pos_sync/models"
	"github.com/mmdatafocus/pos_sync/outbox"
	"github.com/mmdatafocus/pos_sync/store"
	"github.com/shopspring/decimal"
)

type fakeExpenses struct {
	upserted  []string
	payloads  []models.Expense
	deleted   []string
	remote    []models.Expense
	upsertErr error
	deleteErr error
	listErr   error

	// onUpsert runs at the start of UpsertExpense; tests use it to interleave
	// local writes with an in-flight remote call.
	onUpsert func()
}

func (f *fakeExpenses) UpsertExpense(ctx context.Context, expense *models.Expense) error {
	if f.onUpsert != nil {
		f.onUpsert()
	}
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, expense.ID)
	f.payloads = append(f.payloads, *expense)
	return nil
}

func (f *fakeExpenses) DeleteExpense(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeExpenses) ListExpensesChangedSince(ctx context.Context, since time.Time) ([]models.Expense, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.remote, nil
}

func newExpenseReconciler(t *testing.T, fake *fakeExpenses) (*ExpenseReconciler, store.TenantScope) {
	t.Helper()
	st := store.NewStore(nil, config.GetLogger())
	return &ExpenseReconciler{
		Remote: fake,
		Store:  st,
		Queue:  outbox.NewQueue[models.Expense](st, outbox.KeyExpensesQueue),
		Logger: config.GetLogger(),
	}, store.TenantScope{BusinessID: "biz", UserID: "u1"}
}

func testExpense(id string) *models.Expense {
	return &models.Expense{
		ID:         id,
		Amount:     decimal.NewFromInt(25),
		Category:   "supplies",
		OccurredAt: time.Now().UTC(),
		Kind:       models.ExpenseKindExpense,
		UpdatedAt:  time.Now().UTC(),
	}
}

func TestExpenseSaveIsOptimistic(t *testing.T) {
	fake := &fakeExpenses{}
	r, scope := newExpenseReconciler(t, fake)

	if err := r.Save(context.Background(), scope, testExpense("e1")); err != nil {
		t.Fatal(err)
	}
	// Visible locally before any remote call happened.
	if len(fake.upserted) != 0 {
		t.Fatal("save must not call the remote")
	}
	list := r.List(scope)
	if len(list) != 1 || list[0].ID != "e1" {
		t.Fatalf("List = %+v", list)
	}
	if r.Queue.Len(scope) != 1 {
		t.Fatalf("queue len = %d", r.Queue.Len(scope))
	}
}

func TestExpenseDeleteRemovesLocallyAndQueues(t *testing.T) {
	fake := &fakeExpenses{}
	r, scope := newExpenseReconciler(t, fake)

	r.Save(context.Background(), scope, testExpense("e1"))
	if err := r.Delete(context.Background(), scope, "e1"); err != nil {
		t.Fatal(err)
	}
	if len(r.List(scope)) != 0 {
		t.Fatal("deleted expense still listed")
	}

	items := r.Queue.Items(scope)
	if len(items) != 1 || items[0].Op != models.QueueOperationDelete {
		t.Fatalf("queue = %+v", items)
	}
}

func TestExpenseDrainRemovesPerItem(t *testing.T) {
	fake := &fakeExpenses{}
	r, scope := newExpenseReconciler(t, fake)

	r.Save(context.Background(), scope, testExpense("e1"))
	r.Save(context.Background(), scope, testExpense("e2"))

	if err := r.Drain(context.Background(), scope); err != nil {
		t.Fatal(err)
	}
	if r.Queue.Len(scope) != 0 {
		t.Fatalf("queue len = %d", r.Queue.Len(scope))
	}
	if len(fake.upserted) != 2 {
		t.Fatalf("upserted = %v", fake.upserted)
	}
	for _, e := range r.List(scope) {
		if e.SyncedAt == nil {
			t.Fatalf("expense %s not marked synced", e.ID)
		}
	}
}

func TestExpenseDrainKeepsEditSavedDuringRemoteCall(t *testing.T) {
	fake := &fakeExpenses{}
	r, scope := newExpenseReconciler(t, fake)

	r.Save(context.Background(), scope, testExpense("e1"))

	// The expense is amended while its old payload is in flight. The remote
	// acknowledgement of the old amount must not drop the new one.
	edited := testExpense("e1")
	edited.Amount = decimal.NewFromInt(99)
	fake.onUpsert = func() {
		fake.onUpsert = nil
		r.Save(context.Background(), scope, edited)
	}

	if err := r.Drain(context.Background(), scope); err != nil {
		t.Fatal(err)
	}
	items := r.Queue.Items(scope)
	if len(items) != 1 || !items[0].Payload.Amount.Equal(decimal.NewFromInt(99)) {
		t.Fatalf("queue after drain = %+v", items)
	}
	// The amendment is still pending, so it must not read as synced.
	for _, e := range r.List(scope) {
		if e.SyncedAt != nil {
			t.Fatalf("pending amendment marked synced: %+v", e)
		}
	}

	// The next pass pushes the amended amount and converges.
	if err := r.Drain(context.Background(), scope); err != nil {
		t.Fatal(err)
	}
	if r.Queue.Len(scope) != 0 {
		t.Fatalf("queue len = %d after second pass", r.Queue.Len(scope))
	}
	if len(fake.payloads) != 2 || !fake.payloads[1].Amount.Equal(decimal.NewFromInt(99)) {
		t.Fatalf("remote payloads = %+v", fake.payloads)
	}
}

func TestExpenseDrainKeepsFirstError(t *testing.T) {
	fake := &fakeExpenses{upsertErr: errors.New("first failure")}
	r, scope := newExpenseReconciler(t, fake)

	r.Save(context.Background(), scope, testExpense("e1"))
	if err := r.Drain(context.Background(), scope); err == nil {
		t.Fatal("drain must report the failure")
	}

	fake.upsertErr = errors.New("second failure")
	r.Drain(context.Background(), scope)

	items := r.Queue.Items(scope)
	if items[0].LastError != "first failure" {
		t.Fatalf("keep-first policy broken: %q", items[0].LastError)
	}
}

func TestExpenseDrainPartialFailure(t *testing.T) {
	fake := &fakeExpenses{deleteErr: errors.New("delete rejected")}
	r, scope := newExpenseReconciler(t, fake)

	r.Save(context.Background(), scope, testExpense("e1"))
	r.Save(context.Background(), scope, testExpense("e2"))
	r.Delete(context.Background(), scope, "e2")

	if err := r.Drain(context.Background(), scope); err == nil {
		t.Fatal("drain must report the failing delete")
	}

	items := r.Queue.Items(scope)
	if len(items) != 1 || items[0].ID != "e2" {
		t.Fatalf("queue after drain = %+v", items)
	}
	if len(fake.upserted) != 1 || fake.upserted[0] != "e1" {
		t.Fatalf("upserted = %v", fake.upserted)
	}
}

func TestExpensePullSkipsPendingIDs(t *testing.T) {
	fake := &fakeExpenses{}
	r, scope := newExpenseReconciler(t, fake)

	local := testExpense("e1")
	local.Category = "local edit"
	r.Save(context.Background(), scope, local)

	remoteCopy := *testExpense("e1")
	remoteCopy.Category = "stale remote"
	fresh := *testExpense("e2")
	fake.remote = []models.Expense{remoteCopy, fresh}

	if err := r.Pull(context.Background(), scope); err != nil {
		t.Fatal(err)
	}

	byID := map[string]models.Expense{}
	for _, e := range r.List(scope) {
		byID[e.ID] = e
	}
	if byID["e1"].Category != "local edit" {
		t.Fatalf("pending edit clobbered: %q", byID["e1"].Category)
	}
	if _, ok := byID["e2"]; !ok {
		t.Fatal("new remote row not merged")
	}
}

func TestExpensePullErrorPropagates(t *testing.T) {
	fake := &fakeExpenses{listErr: errors.New("offline")}
	r, scope := newExpenseReconciler(t, fake)
	if err := r.Pull(context.Background(), scope); err == nil {
		t.Fatal("pull must surface the remote error")
	}
}
