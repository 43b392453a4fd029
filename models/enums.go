package models

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// SyncStatus is derived after every orchestrator pass; it is never stored.
type SyncStatus string

const (
	SyncStatusOnline  SyncStatus = "online"
	SyncStatusOffline SyncStatus = "offline"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusError   SyncStatus = "error"
)

type QueueOperation string

const (
	QueueOperationUpsert QueueOperation = "upsert"
	QueueOperationDelete QueueOperation = "delete"
)

type ExpenseKind string

const (
	ExpenseKindExpense      ExpenseKind = "expense"
	ExpenseKindOwnerDrawing ExpenseKind = "owner_drawing"
)

type BookingStatus string

const (
	BookingStatusBooked    BookingStatus = "booked"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// SaleTypeService marks service (non-goods) sales; service lines skip stock
// validation and service sale types are never recorded as probe candidates.
const SaleTypeService = "service"

// DefaultSaleTypeCandidates is the fixed tail of the sale-type probe list.
// Remote tenants migrated from older builds accept different labels for the
// same enum; candidates are tried in order until one passes the remote
// constraint.
var DefaultSaleTypeCandidates = []string{"retail", "pos", "walk_in"}
