package services

import (
	"errors"
	"fmt"

	"github.com/Ananth-NQI/chatdesk-backend/internal/storage"
)

// Error classes surfaced to operators and the admin API
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrUpstream     = errors.New("upstream failure")
	ErrValidation   = errors.New("validation error")
)

// storeErr maps storage errors onto the service error classes
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, storage.ErrConflict):
		return fmt.Errorf("%s changed concurrently: %w", what, ErrInvalidState)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
