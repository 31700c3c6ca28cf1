package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"discord-economy-bot/internal/model"
	"discord-economy-bot/internal/pkg/clock"
	"discord-economy-bot/internal/pkg/lock"
)

// MemoryStore is the detached-mode Store: process-local state for local runs
// and tests. Accounts are serialized by per-user locks; mu only guards the maps.
// A unit of work mutates copies and writes them back when it succeeds.
type MemoryStore struct {
	locks          *lock.UserLock
	clock          clock.Clock
	initialBalance int64

	mu          sync.RWMutex
	accounts    map[string]*model.Account
	cooldowns   map[string]model.TheftCooldown
	protections map[string]model.ProtectionWindow
	records     []*model.TransactionRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(clk clock.Clock, initialBalance int64) *MemoryStore {
	return &MemoryStore{
		locks:          lock.NewUserLock(),
		clock:          clk,
		initialBalance: initialBalance,
		accounts:       make(map[string]*model.Account),
		cooldowns:      make(map[string]model.TheftCooldown),
		protections:    make(map[string]model.ProtectionWindow),
	}
}

// GetOrCreate retrieves an account, creating it with defaults if it doesn't exist.
func (s *MemoryStore) GetOrCreate(ctx context.Context, userID string) (*model.Account, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[userID]; ok {
		return acc.Clone(), false, nil
	}
	acc := model.NewAccount(userID, s.initialBalance, s.clock.Now())
	s.accounts[userID] = acc
	return acc.Clone(), true, nil
}

// AdjustBalance adds delta to the balance, refusing to go negative.
func (s *MemoryStore) AdjustBalance(ctx context.Context, userID string, delta int64) (*model.Account, error) {
	var out *model.Account
	err := s.Atomic(ctx, []string{userID}, func(ctx context.Context, tx Tx) error {
		acc, err := tx.AdjustBalance(ctx, userID, delta)
		out = acc
		return err
	})
	return out, err
}

// SetDailyState overwrites the daily claim state.
func (s *MemoryStore) SetDailyState(ctx context.Context, userID string, lastClaim *time.Time, streak int) (*model.Account, error) {
	var out *model.Account
	err := s.Atomic(ctx, []string{userID}, func(ctx context.Context, tx Tx) error {
		acc, err := tx.SetDailyState(ctx, userID, lastClaim, streak)
		out = acc
		return err
	})
	return out, err
}

// SetLevel sets the account level.
func (s *MemoryStore) SetLevel(ctx context.Context, userID string, level int) (*model.Account, error) {
	if level < 1 {
		return nil, ErrInvalidLevel
	}
	var out *model.Account
	err := s.Atomic(ctx, []string{userID}, func(ctx context.Context, tx Tx) error {
		mtx := tx.(*memTx)
		acc := mtx.accounts[userID]
		acc.Level = level
		acc.UpdatedAt = s.clock.Now()
		out = acc.Clone()
		return nil
	})
	return out, err
}

// TheftCooldown returns the user's cooldown, or nil if none exists.
func (s *MemoryStore) TheftCooldown(ctx context.Context, userID string) (*model.TheftCooldown, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.cooldowns[userID]; ok {
		return &c, nil
	}
	return nil, nil
}

// Protection returns the user's protection window, or nil if none exists.
func (s *MemoryStore) Protection(ctx context.Context, userID string) (*model.ProtectionWindow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.protections[userID]; ok {
		return &p, nil
	}
	return nil, nil
}

// TopAccounts returns the top N accounts by balance, ties broken by user id.
func (s *MemoryStore) TopAccounts(ctx context.Context, limit int) ([]*model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	accounts := make([]*model.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		accounts = append(accounts, acc.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Balance != accounts[j].Balance {
			return accounts[i].Balance > accounts[j].Balance
		}
		return accounts[i].UserID < accounts[j].UserID
	})
	if limit >= 0 && len(accounts) > limit {
		accounts = accounts[:limit]
	}
	return accounts, nil
}

// RecentTransactions returns records where the user is either party, newest first.
func (s *MemoryStore) RecentTransactions(ctx context.Context, userID string, limit int) ([]*model.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.TransactionRecord
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.records[i]
		if r.UserID == userID || (r.CounterpartyID != nil && *r.CounterpartyID == userID) {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

// Atomic locks the named accounts in sorted order and runs fn against
// copies of their state. The copies replace the stored state only if fn
// succeeds.
func (s *MemoryStore) Atomic(ctx context.Context, userIDs []string, fn func(ctx context.Context, tx Tx) error) error {
	ids := lock.SortedUnique(userIDs)
	return s.locks.WithLocks(ctx, ids, func() error {
		return s.commit(ctx, ids, fn)
	})
}

// commit runs fn on copied state and publishes the copies on success.
// The caller holds the locks of every id.
func (s *MemoryStore) commit(ctx context.Context, ids []string, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{
		now:         s.clock.Now,
		accounts:    make(map[string]*model.Account, len(ids)),
		cooldowns:   make(map[string]*model.TheftCooldown),
		protections: make(map[string]*model.ProtectionWindow),
	}
	s.mu.RLock()
	for _, id := range ids {
		if acc, ok := s.accounts[id]; ok {
			tx.accounts[id] = acc.Clone()
		} else {
			tx.accounts[id] = model.NewAccount(id, s.initialBalance, s.clock.Now())
		}
		if c, ok := s.cooldowns[id]; ok {
			tx.cooldowns[id] = &c
		}
		if p, ok := s.protections[id]; ok {
			tx.protections[id] = &p
		}
	}
	s.mu.RUnlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, acc := range tx.accounts {
		s.accounts[id] = acc
	}
	for id := range tx.dirtyCooldowns {
		s.cooldowns[id] = *tx.cooldowns[id]
	}
	for id := range tx.dirtyProtections {
		s.protections[id] = *tx.protections[id]
	}
	s.records = append(s.records, tx.records...)
	return nil
}

// PurgeExpired removes inactive protection windows and cooldowns.
func (s *MemoryStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for id, p := range s.protections {
		if !p.Active(now) {
			delete(s.protections, id)
			purged++
		}
	}
	for id, c := range s.cooldowns {
		if !c.Active(now) {
			delete(s.cooldowns, id)
			purged++
		}
	}
	return purged, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

// memTx is the Tx of a MemoryStore unit of work.
type memTx struct {
	now         func() time.Time
	accounts    map[string]*model.Account
	cooldowns   map[string]*model.TheftCooldown
	protections map[string]*model.ProtectionWindow
	records     []*model.TransactionRecord

	dirtyCooldowns   map[string]struct{}
	dirtyProtections map[string]struct{}
}

func (t *memTx) account(userID string) (*model.Account, error) {
	acc, ok := t.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLocked, userID)
	}
	return acc, nil
}

func (t *memTx) Account(userID string) (*model.Account, error) {
	acc, err := t.account(userID)
	if err != nil {
		return nil, err
	}
	return acc.Clone(), nil
}

func (t *memTx) AdjustBalance(_ context.Context, userID string, delta int64) (*model.Account, error) {
	acc, err := t.account(userID)
	if err != nil {
		return nil, err
	}
	if acc.Balance+delta < 0 {
		return nil, ErrInsufficientFunds
	}
	acc.Balance += delta
	acc.UpdatedAt = t.now()
	return acc.Clone(), nil
}

func (t *memTx) SetDailyState(_ context.Context, userID string, lastClaim *time.Time, streak int) (*model.Account, error) {
	acc, err := t.account(userID)
	if err != nil {
		return nil, err
	}
	if lastClaim != nil {
		lc := lastClaim.UTC()
		acc.Daily.LastClaim = &lc
	} else {
		acc.Daily.LastClaim = nil
	}
	acc.Daily.Streak = streak
	acc.UpdatedAt = t.now()
	return acc.Clone(), nil
}

func (t *memTx) TheftCooldown(_ context.Context, userID string) (*model.TheftCooldown, error) {
	if _, err := t.account(userID); err != nil {
		return nil, err
	}
	if c, ok := t.cooldowns[userID]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (t *memTx) SetTheftCooldown(_ context.Context, userID string, nextAttemptAt time.Time) error {
	if _, err := t.account(userID); err != nil {
		return err
	}
	t.cooldowns[userID] = &model.TheftCooldown{UserID: userID, NextAttemptAt: nextAttemptAt.UTC()}
	if t.dirtyCooldowns == nil {
		t.dirtyCooldowns = make(map[string]struct{})
	}
	t.dirtyCooldowns[userID] = struct{}{}
	return nil
}

func (t *memTx) Protection(_ context.Context, userID string) (*model.ProtectionWindow, error) {
	if _, err := t.account(userID); err != nil {
		return nil, err
	}
	if p, ok := t.protections[userID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (t *memTx) SetProtection(_ context.Context, userID string, expiresAt time.Time) (*model.ProtectionWindow, error) {
	if _, err := t.account(userID); err != nil {
		return nil, err
	}
	p := &model.ProtectionWindow{UserID: userID, ExpiresAt: expiresAt.UTC(), UpdatedAt: t.now()}
	t.protections[userID] = p
	if t.dirtyProtections == nil {
		t.dirtyProtections = make(map[string]struct{})
	}
	t.dirtyProtections[userID] = struct{}{}
	cp := *p
	return &cp, nil
}

func (t *memTx) AppendTransaction(_ context.Context, rec *model.TransactionRecord) error {
	c := *rec
	t.records = append(t.records, &c)
	return nil
}
