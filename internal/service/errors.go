// Package service provides the economy engines: accounts and daily rewards,
// transfers, protection windows and leaderboards.
package service

import (
	"errors"
	"fmt"

	"discord-economy-bot/internal/repository"
)

// ErrStorageUnavailable marks failures of the backing store. Every engine
// returns it (wrapped) instead of guessing at default data.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Errors that pass through from the store unchanged.
var (
	ErrInsufficientFunds = repository.ErrInsufficientFunds
	ErrInvalidLevel      = repository.ErrInvalidLevel
)

// StorageError wraps err for op. Domain sentinels from the store keep their
// identity; anything else is also marked ErrStorageUnavailable.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrInsufficientFunds) ||
		errors.Is(err, repository.ErrInvalidLevel) ||
		errors.Is(err, repository.ErrNotLocked) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
