package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type migration struct {
	name string
	sql  string
}

// migrations are applied in order; append only, never edit an applied entry.
var migrations = []migration{
	{
		name: "create accounts",
		sql: `
			CREATE TABLE IF NOT EXISTS accounts (
				user_id          TEXT PRIMARY KEY,
				balance          BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
				level            INTEGER NOT NULL DEFAULT 1 CHECK (level >= 1),
				last_daily_claim TIMESTAMPTZ,
				daily_streak     INTEGER NOT NULL DEFAULT 0 CHECK (daily_streak >= 0),
				created_at       TIMESTAMPTZ NOT NULL,
				updated_at       TIMESTAMPTZ NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_accounts_balance ON accounts (balance DESC);
		`,
	},
	{
		name: "create transactions",
		sql: `
			CREATE TABLE IF NOT EXISTS transactions (
				id              UUID PRIMARY KEY,
				type            VARCHAR(32) NOT NULL,
				user_id         TEXT NOT NULL,
				counterparty_id TEXT,
				amount          BIGINT NOT NULL,
				outcome         VARCHAR(16) NOT NULL DEFAULT '',
				guild_id        TEXT NOT NULL DEFAULT '',
				channel_id      TEXT NOT NULL DEFAULT '',
				description     TEXT,
				created_at      TIMESTAMPTZ NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions (user_id, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_transactions_counterparty ON transactions (counterparty_id, created_at DESC);
		`,
	},
	{
		name: "create protection windows",
		sql: `
			CREATE TABLE IF NOT EXISTS protection_windows (
				user_id    TEXT PRIMARY KEY REFERENCES accounts(user_id),
				expires_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_protection_expires ON protection_windows (expires_at);
		`,
	},
	{
		name: "create theft cooldowns",
		sql: `
			CREATE TABLE IF NOT EXISTS theft_cooldowns (
				user_id         TEXT PRIMARY KEY REFERENCES accounts(user_id),
				next_attempt_at TIMESTAMPTZ NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_theft_cooldowns_next ON theft_cooldowns (next_attempt_at);
		`,
	},
}

// Migrate applies every pending migration. Each migration and its
// schema_migrations row commit together.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for i, m := range migrations {
		version := i + 1
		var exists bool
		if err := pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %d: %w", version, err)
		}
		if exists {
			continue
		}

		log.Info().Int("version", version).Str("name", m.name).Msg("Running migration")
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", version, m.name, err)
		}
	}

	return nil
}
