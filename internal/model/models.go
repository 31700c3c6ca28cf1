// Package model defines the data models for the economy bot.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Account is a user's economy record. Balance is never negative after a
// committed operation.
type Account struct {
	UserID    string    `db:"user_id"`
	Balance   int64     `db:"balance"`
	Level     int       `db:"level"`
	Daily     DailyState
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// DailyState tracks daily-reward claims.
type DailyState struct {
	LastClaim *time.Time `db:"last_daily_claim"` // nil until the first claim
	Streak    int        `db:"daily_streak"`
}

// NewAccount returns the default record for a user seen for the first time.
func NewAccount(userID string, initialBalance int64, now time.Time) *Account {
	return &Account{
		UserID:    userID,
		Balance:   initialBalance,
		Level:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	c := *a
	if a.Daily.LastClaim != nil {
		t := *a.Daily.LastClaim
		c.Daily.LastClaim = &t
	}
	return &c
}

// ProtectionWindow is a time-boxed immunity from theft.
type ProtectionWindow struct {
	UserID    string    `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Active reports whether the window still protects at now.
func (p *ProtectionWindow) Active(now time.Time) bool {
	return p != nil && now.Before(p.ExpiresAt)
}

// Remaining returns the protection left at now, or 0.
func (p *ProtectionWindow) Remaining(now time.Time) time.Duration {
	if !p.Active(now) {
		return 0
	}
	return p.ExpiresAt.Sub(now)
}

// TheftCooldown is the earliest time an attacker may attempt another theft.
type TheftCooldown struct {
	UserID        string    `db:"user_id"`
	NextAttemptAt time.Time `db:"next_attempt_at"`
}

// Active reports whether the cooldown still blocks at now.
func (c *TheftCooldown) Active(now time.Time) bool {
	return c != nil && now.Before(c.NextAttemptAt)
}

// Remaining returns the cooldown left at now, or 0.
func (c *TheftCooldown) Remaining(now time.Time) time.Duration {
	if !c.Active(now) {
		return 0
	}
	return c.NextAttemptAt.Sub(now)
}

// Origin is the guild/channel a command came from. Both may be empty for
// commands issued outside a guild or from tooling.
type Origin struct {
	GuildID   string `db:"guild_id"`
	ChannelID string `db:"channel_id"`
}

// TransactionRecord is an append-only audit entry. Engines never read it back.
type TransactionRecord struct {
	ID             uuid.UUID `db:"id"`
	Type           string    `db:"type"`
	UserID         string    `db:"user_id"`         // initiator
	CounterpartyID *string   `db:"counterparty_id"` // other party, if any
	Amount         int64     `db:"amount"`
	Outcome        string    `db:"outcome"`
	Origin         Origin
	Description    *string   `db:"description"`
	CreatedAt      time.Time `db:"created_at"`
}

// NewTransactionRecord fills in the id and timestamp of a record.
func NewTransactionRecord(txType, userID string, amount int64, origin Origin, at time.Time) *TransactionRecord {
	return &TransactionRecord{
		ID:        uuid.New(),
		Type:      txType,
		UserID:    userID,
		Amount:    amount,
		Origin:    origin,
		CreatedAt: at,
	}
}

// WithCounterparty sets the other party of the record.
func (r *TransactionRecord) WithCounterparty(userID string) *TransactionRecord {
	r.CounterpartyID = &userID
	return r
}

// WithOutcome sets the record outcome.
func (r *TransactionRecord) WithOutcome(outcome string) *TransactionRecord {
	r.Outcome = outcome
	return r
}

// WithDescription sets a human-readable description.
func (r *TransactionRecord) WithDescription(desc string) *TransactionRecord {
	r.Description = &desc
	return r
}

// Transaction types for categorizing audit records.
const (
	TxTypeTransfer            = "transfer"             // User-to-user transfer
	TxTypeTheft               = "theft"                // Theft attempt (success or failure)
	TxTypeProtection          = "protection"           // Protection window purchase
	TxTypeProtectionExtension = "protection_extension" // Protection window extension
	TxTypeDaily               = "daily"                // Daily reward claim
	TxTypeAdminAdjust         = "admin_adjust"         // Admin balance adjustment
)

// Theft outcomes recorded on theft records.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
