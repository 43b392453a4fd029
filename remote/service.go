package remote

import (
	"context"
	"time"

	"github.com/mmdatafocus/pos_sync/models"
	"github.com/shopspring/decimal"
)

// SaleRow is the remote query-result shape for one sale. Queued-but-unsynced
// sales are projected into the same shape so reports can show pending
// transactions next to synced ones.
type SaleRow struct {
	ID            string          `json:"id"`
	ReceiptID     string          `json:"receipt_id"`
	ReceiptNumber string          `json:"receipt_number"`
	CashierID     string          `json:"cashier_id"`
	CustomerName  string          `json:"customer_name"`
	Total         decimal.Decimal `json:"total"`
	SaleType      string          `json:"sale_type"`
	BookingID     string          `json:"booking_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Pending       bool            `json:"pending,omitempty"`
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type SalesService interface {
	// LookupSaleByReceipt returns (nil, nil) when no row exists for the
	// natural key. Reconcilers call this before every insert.
	LookupSaleByReceipt(ctx context.Context, receiptID string) (*SaleRow, error)
	InsertSale(ctx context.Context, sale *models.OfflineSale, saleType string) (*SaleRow, error)
	StockQuantities(ctx context.Context, productIDs []string) (map[string]decimal.Decimal, error)
	DecrementStock(ctx context.Context, productID string, qty decimal.Decimal) error
	ListSales(ctx context.Context, since time.Time) ([]SaleRow, error)
}

type ExpenseService interface {
	UpsertExpense(ctx context.Context, expense *models.Expense) error
	DeleteExpense(ctx context.Context, id string) error
	ListExpensesChangedSince(ctx context.Context, since time.Time) ([]models.Expense, error)
}

type InventoryService interface {
	UpsertInventory(ctx context.Context, mutation *models.InventoryMutation) error
	DeleteInventory(ctx context.Context, productID string) error
}

type BookingService interface {
	UpsertBooking(ctx context.Context, booking *models.ServiceBooking) error
	DeleteBooking(ctx context.Context, id string) error
	ListBookingsChangedSince(ctx context.Context, since time.Time) ([]models.ServiceBooking, error)
}

// Service is the full remote data-service surface the engine reconciles
// against. Reconcilers depend on the narrow per-domain interfaces.
type Service interface {
	Pinger
	SalesService
	ExpenseService
	InventoryService
	BookingService
}
