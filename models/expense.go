package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/pos_sync/utils"
	"github.com/shopspring/decimal"
)

// Expense is the in-engine read-model shape. It is stored twice locally:
// always in the scoped key/value blob, and best-effort as an ExpenseRecord
// row in the durable store.
type Expense struct {
	ID         string          `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Category   string          `json:"category"`
	OccurredAt time.Time       `json:"occurred_at"`
	Kind       ExpenseKind     `json:"kind"`
	SyncedAt   *time.Time      `json:"synced_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ExpenseRecord is the secondary durable copy. Absence of the table (store
// file unavailable) is tolerated; the scoped blob stays authoritative.
type ExpenseRecord struct {
	ID         string          `gorm:"primaryKey;size:64" json:"id"`
	BusinessId string          `gorm:"index;not null" json:"business_id"`
	UserId     string          `gorm:"index;not null" json:"user_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,2)" json:"amount"`
	Category   string          `gorm:"size:255" json:"category"`
	OccurredAt time.Time       `json:"occurred_at"`
	Kind       ExpenseKind     `gorm:"size:32" json:"kind"`
	SyncedAt   *time.Time      `json:"synced_at"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewExpense struct {
	ID         string          `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Category   string          `json:"category" validate:"required"`
	OccurredAt time.Time       `json:"occurred_at"`
	Kind       ExpenseKind     `json:"kind"`
}

// Validate is the ingestion boundary for expense mutations. An empty id
// means create; updates carry the existing id.
func (input *NewExpense) Validate() (*Expense, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("expense amount must be positive")
	}

	kind := input.Kind
	switch kind {
	case "":
		kind = ExpenseKindExpense
	case ExpenseKindExpense, ExpenseKindOwnerDrawing:
	default:
		return nil, errors.New("unknown expense kind")
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = uuid.NewString()
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return &Expense{
		ID:         id,
		Amount:     utils.NormalizeAmount(input.Amount),
		Category:   strings.TrimSpace(input.Category),
		OccurredAt: occurredAt,
		Kind:       kind,
		UpdatedAt:  time.Now().UTC(),
	}, nil
}
