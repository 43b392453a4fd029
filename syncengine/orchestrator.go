package syncengine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mmdatafocus/pos_sync/config"
	"github.com/mmdatafocus/pos_sync/models"
	"github.com/mmdatafocus/pos_sync/outbox"
	"github.com/mmdatafocus/pos_sync/reconcile"
	"github.com/mmdatafocus/pos_sync/remote"
	"github.com/mmdatafocus/pos_sync/session"
	"github.com/mmdatafocus/pos_sync/store"
	"github.com/sirupsen/logrus"
)

// sessionWarnInterval rate-limits the advisory session warning so a long
// offline stretch does not flood the log every pass.
const sessionWarnInterval = time.Minute

// Queues bundles the four domain outboxes for pending-count aggregation and
// queue-changed wiring.
type Queues struct {
	Sales     *outbox.Queue[models.OfflineSale]
	Expenses  *outbox.Queue[models.Expense]
	Inventory *outbox.Queue[models.InventoryMutation]
	Bookings  *outbox.Queue[models.ServiceBooking]
}

func (q Queues) pending(scope store.TenantScope) int {
	if scope.IsZero() {
		return 0
	}
	return q.Sales.Len(scope) + q.Expenses.Len(scope) + q.Inventory.Len(scope) + q.Bookings.Len(scope)
}

// Orchestrator is the single owner of sync passes. Every trigger source
// funnels into Trigger; a pass already in flight absorbs concurrent triggers
// (dropped, not queued — the running pass drains whatever is pending anyway).
type Orchestrator struct {
	Sales     *reconcile.SalesReconciler
	Expenses  *reconcile.ExpenseReconciler
	Inventory *reconcile.InventoryReconciler
	Bookings  *reconcile.BookingReconciler
	Session   *session.Manager
	Remote    remote.Pinger
	Queues    Queues
	Logger    *logrus.Logger

	inFlight atomic.Bool

	mu              sync.Mutex
	scope           store.TenantScope
	status          models.SyncStatus
	statusHandlers  []func(models.SyncStatus)
	lastSessionWarn time.Time
	online          bool
}

func NewOrchestrator(
	sales *reconcile.SalesReconciler,
	expenses *reconcile.ExpenseReconciler,
	inventory *reconcile.InventoryReconciler,
	bookings *reconcile.BookingReconciler,
	sess *session.Manager,
	pinger remote.Pinger,
	queues Queues,
	logger *logrus.Logger,
) *Orchestrator {
	o := &Orchestrator{
		Sales:     sales,
		Expenses:  expenses,
		Inventory: inventory,
		Bookings:  bookings,
		Session:   sess,
		Remote:    pinger,
		Queues:    queues,
		Logger:    logger,
		status:    models.SyncStatusOffline,
	}

	queues.Sales.SetOnChange(o.Trigger)
	queues.Expenses.SetOnChange(o.Trigger)
	queues.Inventory.SetOnChange(o.Trigger)
	queues.Bookings.SetOnChange(o.Trigger)

	if sess != nil {
		sess.OnChange(func(ev session.Event) {
			if ev == session.EventSignedOut {
				return
			}
			o.Trigger()
		})
	}
	return o
}

// SetActiveScope switches the tenant all subsequent passes run for.
func (o *Orchestrator) SetActiveScope(scope store.TenantScope) {
	o.mu.Lock()
	o.scope = scope
	o.mu.Unlock()
}

func (o *Orchestrator) ActiveScope() store.TenantScope {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.scope
}

func (o *Orchestrator) Status() models.SyncStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// PendingCount sums the four outboxes for the active scope.
func (o *Orchestrator) PendingCount() int {
	return o.Queues.pending(o.ActiveScope())
}

// OnStatusChange registers a listener fired on every status transition.
func (o *Orchestrator) OnStatusChange(fn func(models.SyncStatus)) {
	o.mu.Lock()
	o.statusHandlers = append(o.statusHandlers, fn)
	o.mu.Unlock()
}

func (o *Orchestrator) setStatus(s models.SyncStatus) {
	o.mu.Lock()
	if o.status == s {
		o.mu.Unlock()
		return
	}
	o.status = s
	handlers := make([]func(models.SyncStatus), len(o.statusHandlers))
	copy(handlers, o.statusHandlers)
	o.mu.Unlock()
	for _, fn := range handlers {
		fn(s)
	}
}

// Trigger requests a sync pass without blocking the caller. Safe from any
// goroutine, including queue-changed notifications.
func (o *Orchestrator) Trigger() {
	go o.Sync(context.Background())
}

// Foreground is the app-resume trigger.
func (o *Orchestrator) Foreground() {
	o.Trigger()
}

// Sync runs one full pass: connectivity probe, advisory session check, the
// five drain/pull steps in fixed order, then status derivation. A pass
// already in flight makes this call a no-op.
func (o *Orchestrator) Sync(ctx context.Context) {
	if !o.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer o.inFlight.Store(false)

	scope := o.ActiveScope()
	if scope.IsZero() {
		return
	}

	if err := o.Remote.Ping(ctx); err != nil {
		o.setStatus(models.SyncStatusOffline)
		return
	}

	o.setStatus(models.SyncStatusSyncing)
	if o.Queues.pending(scope) > 0 {
		o.checkSession(ctx)
	}

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"sales", func(ctx context.Context) error { return o.Sales.Drain(ctx, scope) }},
		{"inventory", func(ctx context.Context) error { return o.Inventory.Drain(ctx, scope) }},
		{"expenses", o.drainAndPullExpenses(scope)},
		{"bookings_push", func(ctx context.Context) error { return o.Bookings.Drain(ctx, scope) }},
		{"bookings_pull", func(ctx context.Context) error { return o.Bookings.Pull(ctx, scope) }},
	}

	failed := false
	for _, step := range steps {
		if err := o.runStep(ctx, step.name, step.run); err != nil {
			failed = true
		}
	}

	if failed || o.Queues.pending(scope) > 0 {
		o.setStatus(models.SyncStatusError)
		return
	}
	o.setStatus(models.SyncStatusOnline)
}

func (o *Orchestrator) drainAndPullExpenses(scope store.TenantScope) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := o.Expenses.Drain(ctx, scope); err != nil {
			return err
		}
		return o.Expenses.Pull(ctx, scope)
	}
}

// runStep isolates one drain step: an error or panic in one domain never
// blocks the remaining domains from draining in the same pass.
func (o *Orchestrator) runStep(ctx context.Context, name string, run func(context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("sync step %s panicked: %v", name, rec)
			config.LogError(o.Logger, "syncengine", "runStep", "recovered panic in "+name, nil, err)
		}
	}()

	if err = run(ctx); err != nil {
		config.LogError(o.Logger, "syncengine", "runStep", "step "+name, nil, err)
	}
	return err
}

// checkSession is advisory: an expired or missing session is warned about
// (rate-limited) and the pass continues, letting the remote reject writes
// individually.
func (o *Orchestrator) checkSession(ctx context.Context) {
	if o.Session == nil {
		return
	}
	err := o.Session.EnsureValidSession(ctx)
	if err == nil {
		return
	}

	o.mu.Lock()
	warn := time.Since(o.lastSessionWarn) >= sessionWarnInterval
	if warn {
		o.lastSessionWarn = time.Now()
	}
	o.mu.Unlock()

	if warn && o.Logger != nil {
		o.Logger.WithFields(logrus.Fields{
			"module": "syncengine",
			"error":  err.Error(),
		}).Warn("session check failed, continuing pass")
	}
}

// Run drives the background triggers until ctx is cancelled: a connectivity
// watcher that fires a pass on the offline-to-online edge, and a fallback
// ticker armed only while pending work exists.
func (o *Orchestrator) Run(ctx context.Context) {
	connectivity := time.NewTicker(config.ConnectivityPollInterval())
	defer connectivity.Stop()
	fallback := time.NewTicker(config.SyncFallbackInterval())
	defer fallback.Stop()

	o.pollConnectivity(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-connectivity.C:
			o.pollConnectivity(ctx)
		case <-fallback.C:
			if o.PendingCount() > 0 {
				o.Trigger()
			}
		}
	}
}

// pollConnectivity pings the remote and fires a sync pass when the device
// transitions from offline to online.
func (o *Orchestrator) pollConnectivity(ctx context.Context) {
	err := o.Remote.Ping(ctx)

	o.mu.Lock()
	wasOnline := o.online
	o.online = err == nil
	o.mu.Unlock()

	if err != nil {
		o.setStatus(models.SyncStatusOffline)
		return
	}
	if !wasOnline {
		o.Trigger()
	}
}
