// Package repository provides the account store: accounts, daily state,
// theft cooldowns, protection windows and the audit trail.
package repository

import (
	"context"
	"errors"
	"time"

	"discord-economy-bot/internal/model"
)

// Common errors for repository operations.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
	ErrNotLocked         = errors.New("account not locked by this unit of work")
	ErrInvalidLevel      = errors.New("level must be at least 1")
)

// Store is the single source of truth for economy state. Accounts are created
// lazily with default values the first time any operation names them.
type Store interface {
	// GetOrCreate returns the account, creating it with defaults if absent.
	// created reports whether this call created it.
	GetOrCreate(ctx context.Context, userID string) (acc *model.Account, created bool, err error)
	// AdjustBalance atomically adds delta to the balance. It fails with
	// ErrInsufficientFunds instead of driving the balance negative.
	AdjustBalance(ctx context.Context, userID string, delta int64) (*model.Account, error)
	SetDailyState(ctx context.Context, userID string, lastClaim *time.Time, streak int) (*model.Account, error)
	SetLevel(ctx context.Context, userID string, level int) (*model.Account, error)

	TheftCooldown(ctx context.Context, userID string) (*model.TheftCooldown, error)
	Protection(ctx context.Context, userID string) (*model.ProtectionWindow, error)

	TopAccounts(ctx context.Context, limit int) ([]*model.Account, error)
	RecentTransactions(ctx context.Context, userID string, limit int) ([]*model.TransactionRecord, error)

	// Atomic locks every named account in sorted id order, creating missing
	// ones, and runs fn. All writes made through tx commit together when fn
	// returns nil; any error rolls every write back.
	Atomic(ctx context.Context, userIDs []string, fn func(ctx context.Context, tx Tx) error) error

	// PurgeExpired deletes protection windows and theft cooldowns that are no
	// longer active at now and returns how many rows went.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close()
}

// Tx is a unit of work over a fixed set of locked accounts. Every method
// taking a user id returns ErrNotLocked for ids the unit of work did not lock.
type Tx interface {
	Account(userID string) (*model.Account, error)
	AdjustBalance(ctx context.Context, userID string, delta int64) (*model.Account, error)
	SetDailyState(ctx context.Context, userID string, lastClaim *time.Time, streak int) (*model.Account, error)

	TheftCooldown(ctx context.Context, userID string) (*model.TheftCooldown, error)
	SetTheftCooldown(ctx context.Context, userID string, nextAttemptAt time.Time) error

	Protection(ctx context.Context, userID string) (*model.ProtectionWindow, error)
	SetProtection(ctx context.Context, userID string, expiresAt time.Time) (*model.ProtectionWindow, error)

	AppendTransaction(ctx context.Context, rec *model.TransactionRecord) error
}
