package remote

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// APIError is a classified response from the remote data service. Anything
// that is not an APIError (dial failures, timeouts) is treated as transient.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("remote api error %d: %s", e.StatusCode, e.Message)
}

// InsufficientStockError is a domain-level failure: the cart requested more
// of a tracked good than the remote has. It is queued for manual
// reconciliation, never silently dropped.
type InsufficientStockError struct {
	ProductID string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %s, available %s",
		e.ProductID, e.Requested.String(), e.Available.String())
}

// IsConstraintViolation reports whether the remote rejected a write on a
// schema constraint (e.g. an enum label the tenant's schema does not
// accept). These advance candidate probing; they are never retried as-is.
func IsConstraintViolation(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == 409 {
		return true
	}
	switch apiErr.Code {
	case "23505", "23514", "constraint_violation":
		return true
	}
	return false
}

func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == 401 || apiErr.StatusCode == 403
}

// IsTransient covers network failures and server-side errors that the next
// pass retries with no special handling.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	return apiErr.StatusCode >= 500 || apiErr.StatusCode == 429
}

func IsInsufficientStock(err error) bool {
	var stockErr *InsufficientStockError
	return errors.As(err, &stockErr)
}
