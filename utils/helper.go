package utils

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// NormalizeAmount rounds a currency amount to 2-decimal units. Every amount
// entering the engine passes through here exactly once, at the validating
// constructor.
func NormalizeAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		errorResponse["error"] = err.Error()
		return errorResponse
	}

	for _, e := range validationErrors {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			errorResponse[field] = field + " is required"
		case "gt":
			errorResponse[field] = field + " must be greater than " + e.Param()
		case "gte":
			errorResponse[field] = field + " must be at least " + e.Param()
		case "oneof":
			errorResponse[field] = field + " must be one of: " + e.Param()
		default:
			errorResponse[field] = field + " is invalid"
		}
	}
	return errorResponse
}
