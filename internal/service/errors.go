package service

import (
	"errors"
	"fmt"

	"mail-market/internal/inventory"
	"mail-market/internal/repository"
)

var (
	// ErrInvalidRequest marks input the caller can correct.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInsufficientFunds means the balance does not cover the purchase.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrOutOfStock means the upstream reported fewer items than requested.
	ErrOutOfStock = errors.New("out of stock")
	// ErrAllocationFailed means the upstream did not deliver the full quantity.
	ErrAllocationFailed = inventory.ErrAllocationFailed
	ErrUserNotFound     = errors.New("user not found")
	ErrDepositNotFound  = errors.New("deposit not found")
	// ErrStorageFailure hides infrastructure faults from callers.
	ErrStorageFailure = errors.New("storage failure")
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserAlreadyExists is returned when attempting to register with an existing username.
	ErrUserAlreadyExists = errors.New("user already exists")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// storageError maps known repository sentinels onto service errors and
// collapses everything else into ErrStorageFailure.
func storageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrInsufficientFunds):
		return ErrInsufficientFunds
	case errors.Is(err, repository.ErrDepositNotFound):
		return fmt.Errorf("%w: not found", ErrDepositNotFound)
	case errors.Is(err, repository.ErrDepositProcessed):
		return fmt.Errorf("%w: already processed", ErrDepositNotFound)
	case errors.Is(err, repository.ErrUserExists):
		return ErrUserAlreadyExists
	}
	return ErrStorageFailure
}
