package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/pos_sync/utils"
	"github.com/shopspring/decimal"
)

// SaleMeta carries the client-side identity of a checkout. ReceiptID is a
// UUID generated on the device and is the natural key for deduplication:
// a retried remote insert for the same ReceiptID must reuse the existing row.
type SaleMeta struct {
	ReceiptID     string    `json:"receipt_id"`
	ReceiptNumber string    `json:"receipt_number"`
	Timestamp     time.Time `json:"timestamp"`
	SaleType      string    `json:"sale_type"`
	BookingID     string    `json:"booking_id,omitempty"`
}

type SaleItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	// Tracked goods are validated against remote stock; service lines are not.
	Tracked bool `json:"tracked"`
}

type SalePayment struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

type OfflineSale struct {
	CashierID    string          `json:"cashier_id"`
	CustomerName string          `json:"customer_name"`
	Total        decimal.Decimal `json:"total"`
	Payments     []SalePayment   `json:"payments"`
	Items        []SaleItem      `json:"items"`
	Meta         SaleMeta        `json:"meta"`
}

type NewSaleItem struct {
	ProductID string          `json:"product_id" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Tracked   bool            `json:"tracked"`
}

type NewSalePayment struct {
	Method string          `json:"method" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

type NewOfflineSale struct {
	CashierID     string           `json:"cashier_id" validate:"required"`
	CustomerName  string           `json:"customer_name"`
	Total         decimal.Decimal  `json:"total"`
	Payments      []NewSalePayment `json:"payments" validate:"dive"`
	Items         []NewSaleItem    `json:"items" validate:"required,min=1,dive"`
	SaleType      string           `json:"sale_type"`
	ReceiptNumber string           `json:"receipt_number"`
	BookingID     string           `json:"booking_id"`
}

// Validate is the single ingestion boundary for checkouts. Everything past
// this point operates on a fully validated OfflineSale with normalized
// amounts and a generated receipt id.
func (input *NewOfflineSale) Validate() (*OfflineSale, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if input.Total.IsNegative() {
		return nil, errors.New("sale total must not be negative")
	}
	for _, item := range input.Items {
		if item.Quantity.LessThanOrEqual(decimal.Zero) {
			return nil, errors.New("sale item quantity must be positive")
		}
	}

	sale := &OfflineSale{
		CashierID:    input.CashierID,
		CustomerName: input.CustomerName,
		Total:        utils.NormalizeAmount(input.Total),
	}
	for _, p := range input.Payments {
		sale.Payments = append(sale.Payments, SalePayment{
			Method: p.Method,
			Amount: utils.NormalizeAmount(p.Amount),
		})
	}
	for _, it := range input.Items {
		sale.Items = append(sale.Items, SaleItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: utils.NormalizeAmount(it.UnitPrice),
			Tracked:   it.Tracked,
		})
	}
	sale.Meta = SaleMeta{
		ReceiptID:     uuid.NewString(),
		ReceiptNumber: input.ReceiptNumber,
		Timestamp:     time.Now().UTC(),
		SaleType:      input.SaleType,
		BookingID:     input.BookingID,
	}
	return sale, nil
}
