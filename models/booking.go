package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ServiceBooking struct {
	ID           string        `json:"id"`
	CustomerName string        `json:"customer_name"`
	Service      string        `json:"service"`
	StartsAt     time.Time     `json:"starts_at"`
	Notes        string        `json:"notes"`
	Status       BookingStatus `json:"status"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type NewServiceBooking struct {
	ID           string        `json:"id"`
	CustomerName string        `json:"customer_name" validate:"required"`
	Service      string        `json:"service" validate:"required"`
	StartsAt     time.Time     `json:"starts_at"`
	Notes        string        `json:"notes"`
	Status       BookingStatus `json:"status"`
}

func (input *NewServiceBooking) Validate() (*ServiceBooking, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	status := input.Status
	switch status {
	case "":
		status = BookingStatusBooked
	case BookingStatusBooked, BookingStatusCompleted, BookingStatusCancelled:
	default:
		return nil, errors.New("unknown booking status")
	}
	if input.StartsAt.IsZero() {
		return nil, errors.New("booking start time is required")
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = uuid.NewString()
	}

	return &ServiceBooking{
		ID:           id,
		CustomerName: strings.TrimSpace(input.CustomerName),
		Service:      strings.TrimSpace(input.Service),
		StartsAt:     input.StartsAt,
		Notes:        input.Notes,
		Status:       status,
		UpdatedAt:    time.Now().UTC(),
	}, nil
}
