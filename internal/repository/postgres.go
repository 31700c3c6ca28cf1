package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"discord-economy-bot/internal/model"
	"discord-economy-bot/internal/pkg/clock"
	"discord-economy-bot/internal/pkg/lock"
)

const accountColumns = `user_id, balance, level, last_daily_claim, daily_streak, created_at, updated_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on PostgreSQL. Balance changes are
// conditional updates and multi-account work runs in one transaction holding
// row locks.
type PostgresStore struct {
	pool           *pgxpool.Pool
	clock          clock.Clock
	initialBalance int64
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(pool *pgxpool.Pool, clk clock.Clock, initialBalance int64) *PostgresStore {
	return &PostgresStore{pool: pool, clock: clk, initialBalance: initialBalance}
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.UserID,
		&a.Balance,
		&a.Level,
		&a.Daily.LastClaim,
		&a.Daily.Streak,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	if a.Daily.LastClaim != nil {
		t := a.Daily.LastClaim.UTC()
		a.Daily.LastClaim = &t
	}
	return &a, nil
}

// ensureAccount inserts the default account if absent and reports whether it did.
func (s *PostgresStore) ensureAccount(ctx context.Context, q querier, userID string) (bool, error) {
	const query = `
		INSERT INTO accounts (user_id, balance, level, daily_streak, created_at, updated_at)
		VALUES ($1, $2, 1, 0, $3, $3)
		ON CONFLICT (user_id) DO NOTHING
	`
	tag, err := q.Exec(ctx, query, userID, s.initialBalance, s.clock.Now())
	if err != nil {
		return false, fmt.Errorf("failed to create account: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func getAccount(ctx context.Context, q querier, userID string, forUpdate bool) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	acc, err := scanAccount(q.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

func adjustBalance(ctx context.Context, q querier, userID string, delta int64, now time.Time) (*model.Account, error) {
	query := `
		UPDATE accounts
		SET balance = balance + $2, updated_at = $3
		WHERE user_id = $1 AND balance + $2 >= 0
		RETURNING ` + accountColumns
	acc, err := scanAccount(q.QueryRow(ctx, query, userID, delta, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsufficientFunds
		}
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	return acc, nil
}

func setDailyState(ctx context.Context, q querier, userID string, lastClaim *time.Time, streak int, now time.Time) (*model.Account, error) {
	query := `
		UPDATE accounts
		SET last_daily_claim = $2, daily_streak = $3, updated_at = $4
		WHERE user_id = $1
		RETURNING ` + accountColumns
	acc, err := scanAccount(q.QueryRow(ctx, query, userID, lastClaim, streak, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to update daily state: %w", err)
	}
	return acc, nil
}

func getTheftCooldown(ctx context.Context, q querier, userID string) (*model.TheftCooldown, error) {
	const query = `SELECT user_id, next_attempt_at FROM theft_cooldowns WHERE user_id = $1`
	var c model.TheftCooldown
	err := q.QueryRow(ctx, query, userID).Scan(&c.UserID, &c.NextAttemptAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get theft cooldown: %w", err)
	}
	c.NextAttemptAt = c.NextAttemptAt.UTC()
	return &c, nil
}

func getProtection(ctx context.Context, q querier, userID string) (*model.ProtectionWindow, error) {
	const query = `SELECT user_id, expires_at, updated_at FROM protection_windows WHERE user_id = $1`
	var p model.ProtectionWindow
	err := q.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.ExpiresAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get protection window: %w", err)
	}
	p.ExpiresAt = p.ExpiresAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// GetOrCreate retrieves an account, creating it with defaults if it doesn't exist.
func (s *PostgresStore) GetOrCreate(ctx context.Context, userID string) (*model.Account, bool, error) {
	created, err := s.ensureAccount(ctx, s.pool, userID)
	if err != nil {
		return nil, false, err
	}
	acc, err := getAccount(ctx, s.pool, userID, false)
	if err != nil {
		return nil, false, err
	}
	return acc, created, nil
}

// AdjustBalance adds delta to the balance with a single conditional update.
func (s *PostgresStore) AdjustBalance(ctx context.Context, userID string, delta int64) (*model.Account, error) {
	if _, err := s.ensureAccount(ctx, s.pool, userID); err != nil {
		return nil, err
	}
	return adjustBalance(ctx, s.pool, userID, delta, s.clock.Now())
}

// SetDailyState overwrites the daily claim state.
func (s *PostgresStore) SetDailyState(ctx context.Context, userID string, lastClaim *time.Time, streak int) (*model.Account, error) {
	if _, err := s.ensureAccount(ctx, s.pool, userID); err != nil {
		return nil, err
	}
	return setDailyState(ctx, s.pool, userID, lastClaim, streak, s.clock.Now())
}

// SetLevel sets the account level.
func (s *PostgresStore) SetLevel(ctx context.Context, userID string, level int) (*model.Account, error) {
	if level < 1 {
		return nil, ErrInvalidLevel
	}
	if _, err := s.ensureAccount(ctx, s.pool, userID); err != nil {
		return nil, err
	}
	query := `
		UPDATE accounts
		SET level = $2, updated_at = $3
		WHERE user_id = $1
		RETURNING ` + accountColumns
	acc, err := scanAccount(s.pool.QueryRow(ctx, query, userID, level, s.clock.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to set level: %w", err)
	}
	return acc, nil
}

// TheftCooldown returns the user's cooldown row, or nil if none exists.
func (s *PostgresStore) TheftCooldown(ctx context.Context, userID string) (*model.TheftCooldown, error) {
	return getTheftCooldown(ctx, s.pool, userID)
}

// Protection returns the user's protection window, or nil if none exists.
func (s *PostgresStore) Protection(ctx context.Context, userID string) (*model.ProtectionWindow, error) {
	return getProtection(ctx, s.pool, userID)
}

// TopAccounts retrieves the top N accounts by balance.
func (s *PostgresStore) TopAccounts(ctx context.Context, limit int) ([]*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY balance DESC, user_id ASC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// RecentTransactions retrieves records where the user is either party, newest first.
func (s *PostgresStore) RecentTransactions(ctx context.Context, userID string, limit int) ([]*model.TransactionRecord, error) {
	const query = `
		SELECT id, type, user_id, counterparty_id, amount, outcome, guild_id, channel_id, description, created_at
		FROM transactions
		WHERE user_id = $1 OR counterparty_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var records []*model.TransactionRecord
	for rows.Next() {
		var r model.TransactionRecord
		err := rows.Scan(
			&r.ID,
			&r.Type,
			&r.UserID,
			&r.CounterpartyID,
			&r.Amount,
			&r.Outcome,
			&r.Origin.GuildID,
			&r.Origin.ChannelID,
			&r.Description,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return records, nil
}

// Atomic runs fn in one database transaction after locking every named
// account row in sorted order.
func (s *PostgresStore) Atomic(ctx context.Context, userIDs []string, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ptx := &pgTx{tx: tx, now: s.clock.Now, accounts: make(map[string]*model.Account, len(userIDs))}
	for _, id := range lock.SortedUnique(userIDs) {
		if _, err := s.ensureAccount(ctx, tx, id); err != nil {
			return err
		}
		acc, err := getAccount(ctx, tx, id, true)
		if err != nil {
			return err
		}
		ptx.accounts[id] = acc
	}

	if err := fn(ctx, ptx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// PurgeExpired removes inactive protection windows and cooldowns.
func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var purged int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM protection_windows WHERE expires_at <= $1`, now)
		if err != nil {
			return fmt.Errorf("failed to purge protection windows: %w", err)
		}
		purged += tag.RowsAffected()

		tag, err = tx.Exec(ctx, `DELETE FROM theft_cooldowns WHERE next_attempt_at <= $1`, now)
		if err != nil {
			return fmt.Errorf("failed to purge theft cooldowns: %w", err)
		}
		purged += tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// pgTx is the Tx of a PostgresStore unit of work. accounts caches the locked
// rows and is refreshed from every RETURNING clause.
type pgTx struct {
	tx       pgx.Tx
	now      func() time.Time
	accounts map[string]*model.Account
}

func (t *pgTx) locked(userID string) error {
	if _, ok := t.accounts[userID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotLocked, userID)
	}
	return nil
}

func (t *pgTx) Account(userID string) (*model.Account, error) {
	acc, ok := t.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLocked, userID)
	}
	return acc.Clone(), nil
}

func (t *pgTx) AdjustBalance(ctx context.Context, userID string, delta int64) (*model.Account, error) {
	if err := t.locked(userID); err != nil {
		return nil, err
	}
	acc, err := adjustBalance(ctx, t.tx, userID, delta, t.now())
	if err != nil {
		return nil, err
	}
	t.accounts[userID] = acc
	return acc.Clone(), nil
}

func (t *pgTx) SetDailyState(ctx context.Context, userID string, lastClaim *time.Time, streak int) (*model.Account, error) {
	if err := t.locked(userID); err != nil {
		return nil, err
	}
	acc, err := setDailyState(ctx, t.tx, userID, lastClaim, streak, t.now())
	if err != nil {
		return nil, err
	}
	t.accounts[userID] = acc
	return acc.Clone(), nil
}

func (t *pgTx) TheftCooldown(ctx context.Context, userID string) (*model.TheftCooldown, error) {
	if err := t.locked(userID); err != nil {
		return nil, err
	}
	return getTheftCooldown(ctx, t.tx, userID)
}

func (t *pgTx) SetTheftCooldown(ctx context.Context, userID string, nextAttemptAt time.Time) error {
	if err := t.locked(userID); err != nil {
		return err
	}
	const query = `
		INSERT INTO theft_cooldowns (user_id, next_attempt_at)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET next_attempt_at = EXCLUDED.next_attempt_at
	`
	if _, err := t.tx.Exec(ctx, query, userID, nextAttemptAt); err != nil {
		return fmt.Errorf("failed to set theft cooldown: %w", err)
	}
	return nil
}

func (t *pgTx) Protection(ctx context.Context, userID string) (*model.ProtectionWindow, error) {
	if err := t.locked(userID); err != nil {
		return nil, err
	}
	return getProtection(ctx, t.tx, userID)
}

func (t *pgTx) SetProtection(ctx context.Context, userID string, expiresAt time.Time) (*model.ProtectionWindow, error) {
	if err := t.locked(userID); err != nil {
		return nil, err
	}
	const query = `
		INSERT INTO protection_windows (user_id, expires_at, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at
		RETURNING user_id, expires_at, updated_at
	`
	var p model.ProtectionWindow
	err := t.tx.QueryRow(ctx, query, userID, expiresAt, t.now()).Scan(&p.UserID, &p.ExpiresAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to set protection window: %w", err)
	}
	p.ExpiresAt = p.ExpiresAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (t *pgTx) AppendTransaction(ctx context.Context, rec *model.TransactionRecord) error {
	const query = `
		INSERT INTO transactions (id, type, user_id, counterparty_id, amount, outcome, guild_id, channel_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := t.tx.Exec(ctx, query,
		rec.ID,
		rec.Type,
		rec.UserID,
		rec.CounterpartyID,
		rec.Amount,
		rec.Outcome,
		rec.Origin.GuildID,
		rec.Origin.ChannelID,
		rec.Description,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}
