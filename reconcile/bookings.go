package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mmdatafocus/pos_sync/models"
	"github.com/mmdatafocus/pos_sync/outbox"
	"github.com/mmdatafocus/pos_sync/remote"
	"github.com/mmdatafocus/pos_sync/store"
	"github.com/sirupsen/logrus"
)

// KeyBookings is the scoped read-model blob: booking id -> booking.
const KeyBookings = "bookings"

// BookingReconciler pushes service-booking mutations and pulls recent remote
// changes. Push and pull run as distinct orchestrator steps.
type BookingReconciler struct {
	Remote remote.BookingService
	Store  *store.Store
	Queue  *outbox.Queue[models.ServiceBooking]
	Logger *logrus.Logger
}

func (r *BookingReconciler) readAll(scope store.TenantScope) map[string]models.ServiceBooking {
	all := map[string]models.ServiceBooking{}
	store.ReadJSON(r.Store, scope, KeyBookings, &all)
	return all
}

func (r *BookingReconciler) writeAll(scope store.TenantScope, all map[string]models.ServiceBooking) {
	_ = store.WriteJSON(r.Store, scope, KeyBookings, all)
}

func (r *BookingReconciler) List(scope store.TenantScope) []models.ServiceBooking {
	all := r.readAll(scope)
	out := make([]models.ServiceBooking, 0, len(all))
	for _, b := range all {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out
}

func (r *BookingReconciler) Save(ctx context.Context, scope store.TenantScope, booking *models.ServiceBooking) error {
	if scope.IsZero() {
		return store.ErrNoTenantScope
	}

	all := r.readAll(scope)
	all[booking.ID] = *booking
	r.writeAll(scope, all)

	return r.Queue.Enqueue(scope, booking.ID, models.QueueOperationUpsert, *booking, "")
}

func (r *BookingReconciler) Delete(ctx context.Context, scope store.TenantScope, id string) error {
	if scope.IsZero() {
		return store.ErrNoTenantScope
	}

	all := r.readAll(scope)
	delete(all, id)
	r.writeAll(scope, all)

	return r.Queue.Enqueue(scope, id, models.QueueOperationDelete, models.ServiceBooking{ID: id}, "")
}

// Drain pushes pending booking mutations oldest-first.
func (r *BookingReconciler) Drain(ctx context.Context, scope store.TenantScope) error {
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
			err = r.Remote.DeleteBooking(ctx, item.ID)
		default:
			booking := item.Payload
			err = r.Remote.UpsertBooking(ctx, &booking)
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
		return fmt.Errorf("%d of %d queued bookings still failing: %w", failures, len(items), lastErr)
	}
	return nil
}

// Pull merges recently changed remote bookings, skipping ids still pending
// locally so an unsynced edit is never clobbered.
func (r *BookingReconciler) Pull(ctx context.Context, scope store.TenantScope) error {
	if scope.IsZero() {
		return store.ErrNoTenantScope
	}

	rows, err := r.Remote.ListBookingsChangedSince(ctx, time.Now().Add(-pullWindow))
	if err != nil {
		return err
	}

	all := r.readAll(scope)
	for _, row := range rows {
		if r.Queue.Has(scope, row.ID) {
			continue
		}
		all[row.ID] = row
	}
	r.writeAll(scope, all)
	return nil
}
