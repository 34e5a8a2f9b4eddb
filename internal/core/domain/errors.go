package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrRuleNotFound        = errors.New("classification rule not found")
	ErrQueueNotFound       = errors.New("routing queue not found")
	ErrDeliveryNotFound    = errors.New("webhook delivery not found")
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrQuotaExceeded       = errors.New("tenant quota exceeded")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrTemporary           = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

func invalidInput(operation, format string, args ...any) error {
	return WrapError(ErrInvalidInput, operation, fmt.Errorf(format, args...))
}

func invalidTransition(operation string, from any, expected string) error {
	return WrapError(ErrInvalidTransition, operation, fmt.Errorf("status %v, expected %s", from, expected))
}
