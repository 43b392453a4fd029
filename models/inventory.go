package models

import (
	"errors"
	"strings"
	"time"

	"github.com/mmdatafocus/pos_sync/utils"
	"github.com/shopspring/decimal"
)

// InventoryMutation is the full product state pushed remotely on drain.
// The product id doubles as the server-side reconciliation key, so repeated
// drains of the same id converge instead of duplicating.
type InventoryMutation struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	Sku          string          `json:"sku"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Quantity     decimal.Decimal `json:"quantity"`
	Tracked      bool            `json:"tracked"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type NewInventoryMutation struct {
	ProductID    string          `json:"product_id" validate:"required"`
	Name         string          `json:"name" validate:"required"`
	Sku          string          `json:"sku"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Quantity     decimal.Decimal `json:"quantity"`
	Tracked      bool            `json:"tracked"`
}

func (input *NewInventoryMutation) Validate() (*InventoryMutation, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if input.SellingPrice.IsNegative() {
		return nil, errors.New("selling price must not be negative")
	}

	return &InventoryMutation{
		ProductID:    strings.TrimSpace(input.ProductID),
		Name:         strings.TrimSpace(input.Name),
		Sku:          strings.TrimSpace(input.Sku),
		SellingPrice: utils.NormalizeAmount(input.SellingPrice),
		Quantity:     input.Quantity,
		Tracked:      input.Tracked,
		UpdatedAt:    time.Now().UTC(),
	}, nil
}
