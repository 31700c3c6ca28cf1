package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discord-economy-bot/internal/model"
	"discord-economy-bot/internal/pkg/clock"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// storeFactory returns an empty store whose clock is clk and whose initial
// balance is 1000.
type storeFactory func(t *testing.T, clk clock.Clock) Store

// runStoreContract exercises the behaviour every Store implementation must share.
func runStoreContract(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("GetOrCreate", func(t *testing.T) {
		s := newStore(t, clock.NewManual(t0))

		acc, created, err := s.GetOrCreate(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "alice", acc.UserID)
		assert.Equal(t, int64(1000), acc.Balance)
		assert.Equal(t, 1, acc.Level)
		assert.Equal(t, 0, acc.Daily.Streak)
		assert.Nil(t, acc.Daily.LastClaim)
		assert.WithinDuration(t, t0, acc.CreatedAt, time.Millisecond)

		again, created, err := s.GetOrCreate(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, acc.Balance, again.Balance)
	})

	t.Run("AdjustBalance", func(t *testing.T) {
		s := newStore(t, clock.NewManual(t0))

		acc, err := s.AdjustBalance(ctx, "bob", 250)
		require.NoError(t, err)
		assert.Equal(t, int64(1250), acc.Balance, "created lazily, then credited")

		acc, err = s.AdjustBalance(ctx, "bob", -1250)
		require.NoError(t, err)
		assert.Equal(t, int64(0), acc.Balance)

		_, err = s.AdjustBalance(ctx, "bob", -1)
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		acc, _, err = s.GetOrCreate(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, int64(0), acc.Balance, "failed debit must not clamp")
	})

	t.Run("ConcurrentDebitsNeverOverdraw", func(t *testing.T) {
		s := newStore(t, clock.NewManual(t0))
		_, _, err := s.GetOrCreate(ctx, "carol")
		require.NoError(t, err)

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.AdjustBalance(ctx, "carol", -100); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		acc, _, err := s.GetOrCreate(ctx, "carol")
		require.NoError(t, err)
		assert.Equal(t, 10, succeeded)
		assert.Equal(t, int64(0), acc.Balance)
	})

	t.Run("DailyStateAndLevel", func(t *testing.T) {
		s := newStore(t, clock.NewManual(t0))

		claim := t0.Add(time.Hour)
		acc, err := s.SetDailyState(ctx, "dave", &claim, 3)
		require.NoError(t, err)
		require.NotNil(t, acc.Daily.LastClaim)
		assert.WithinDuration(t, claim, *acc.Daily.LastClaim, time.Millisecond)
		assert.Equal(t, 3, acc.Daily.Streak)

		acc, err = s.SetLevel(ctx, "dave", 7)
		require.NoError(t, err)
		assert.Equal(t, 7, acc.Level)
		assert.Equal(t, 3, acc.Daily.Streak)

		_, err = s.SetLevel(ctx, "dave", 0)
		assert.ErrorIs(t, err, ErrInvalidLevel)
	})

	t.Run("AtomicCommitsAllWrites", func(t *testing.T) {
		s := newStore(t, clock.NewManual(t0))

		err := s.Atomic(ctx, []string{"zed", "amy"}, func(ctx context.Context, tx Tx) error {
			if _, err := tx.AdjustBalance(ctx, "zed", -300); err != nil {
				return err
			}
			if _, err := tx.AdjustBalance(ctx, "amy", 300); err != nil {
				return err
			}
			if err := tx.SetTheftCooldown(ctx, "zed", t0.Add(2*time.Hour)); err != nil {
				return err
			}
			if _, err := tx.SetProtection(ctx, "amy", t0.Add(3*time.Hour)); err != nil {
				return err
			}
			rec := model.NewTransactionRecord(model.TxTypeTransfer, "zed", 300, model.Origin{GuildID: "g"}, t0).
				WithCounterparty("amy")
			return tx.AppendTransaction(ctx, rec)
		})
		require.NoError(t, err)

		zed, _, _ := s.GetOrCreate(ctx, "zed")
		amy, _, _ := s.GetOrCreate(ctx, "amy")
		assert.Equal(t, int64(700), zed.Balance)
		assert.Equal(t, int64(1300), amy.Balance)

		cd, err := s.TheftCooldown(ctx, "zed")
		require.NoError(t, err)
		require.NotNil(t, cd)
		assert.WithinDuration(t, t0.Add(2*time.Hour), cd.NextAttemptAt, time.Millisecond)

		pw, err := s.Protection(ctx, "amy")
		require.NoError(t, err)
		require.NotNil(t, pw)
		assert.WithinDuration(t, t0.Add(3*time.Hour), pw.ExpiresAt, time.Millisecond)

		recs, err := s.RecentTransactions(ctx, "amy", 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, model.TxTypeTransfer, recs[0].Type)
		assert.Equal(t, "zed", recs[0].UserID)
		assert.Equal(t, "g", recs[0].Origin.GuildID)
	})

	t.Run("AtomicRollsBackOnError", func(t *testing.T) {
		s := newStore(t, clock.NewManual(t0))
		_, _, err := s.GetOrCreate(ctx, "eve")
		require.NoError(t, err)

		boom := errors.New("boom")
		err = s.Atomic(ctx, []string{"eve", "frank"}, func(ctx context.Context, tx Tx) error {
			if _, err := tx.AdjustBalance(ctx, "eve", -500); err != nil {
				return err
			}
			if err := tx.SetTheftCooldown(ctx, "eve", t0.Add(time.Hour)); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		eve, _, _ := s.GetOrCreate(ctx, "eve")
		assert.Equal(t, int64(1000), eve.Balance)
		cd, err := s.TheftCooldown(ctx, "eve")
		require.NoError(t, err)
		assert.Nil(t, cd)

		frank, created, err := s.GetOrCreate(ctx, "frank")
		require.NoError(t, err)
		assert.True(t, created, "lazy creation rolls back with the unit of work")
		assert.Equal(t, int64(1000), frank.Balance)
	})

	t.Run("AtomicRejectsUnlockedIDs", func(t *testing.T) {
		s := newStore(t, clock.NewManual(t0))

		err := s.Atomic(ctx, []string{"gina"}, func(ctx context.Context, tx Tx) error {
			_, err := tx.AdjustBalance(ctx, "henry", 10)
			return err
		})
		assert.ErrorIs(t, err, ErrNotLocked)
	})

	t.Run("AtomicSeesOwnWrites", func(t *testing.T) {
		s := newStore(t, clock.NewManual(t0))

		err := s.Atomic(ctx, []string{"ivy"}, func(ctx context.Context, tx Tx) error {
			if _, err := tx.AdjustBalance(ctx, "ivy", -400); err != nil {
				return err
			}
			acc, err := tx.Account("ivy")
			if err != nil {
				return err
			}
			assert.Equal(t, int64(600), acc.Balance)
			_, err = tx.AdjustBalance(ctx, "ivy", -601)
			assert.ErrorIs(t, err, ErrInsufficientFunds)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("ConcurrentTwoWayTransfersConserveTotal", func(t *testing.T) {
		s := newStore(t, clock.NewManual(t0))
		ids := []string{"p1", "p2", "p3"}

		var wg sync.WaitGroup
		for i := 0; i < 30; i++ {
			from, to := ids[i%3], ids[(i+1)%3]
			if i%2 == 0 {
				from, to = to, from
			}
			wg.Add(1)
			go func(from, to string) {
				defer wg.Done()
				_ = s.Atomic(ctx, []string{from, to}, func(ctx context.Context, tx Tx) error {
					if _, err := tx.AdjustBalance(ctx, from, -150); err != nil {
						return err
					}
					_, err := tx.AdjustBalance(ctx, to, 150)
					return err
				})
			}(from, to)
		}
		wg.Wait()

		var total int64
		for _, id := range ids {
			acc, _, err := s.GetOrCreate(ctx, id)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, acc.Balance, int64(0))
			total += acc.Balance
		}
		assert.Equal(t, int64(3000), total)
	})

	t.Run("TopAccounts", func(t *testing.T) {
		s := newStore(t, clock.NewManual(t0))
		for id, delta := range map[string]int64{"a": 10, "b": 500, "c": -200, "d": 500} {
			_, err := s.AdjustBalance(ctx, id, delta)
			require.NoError(t, err)
		}

		top, err := s.TopAccounts(ctx, 3)
		require.NoError(t, err)
		require.Len(t, top, 3)
		assert.Equal(t, []string{"b", "d", "a"}, []string{top[0].UserID, top[1].UserID, top[2].UserID})
	})

	t.Run("PurgeExpired", func(t *testing.T) {
		s := newStore(t, clock.NewManual(t0))
		err := s.Atomic(ctx, []string{"old", "new"}, func(ctx context.Context, tx Tx) error {
			if _, err := tx.SetProtection(ctx, "old", t0.Add(time.Hour)); err != nil {
				return err
			}
			if _, err := tx.SetProtection(ctx, "new", t0.Add(5*time.Hour)); err != nil {
				return err
			}
			return tx.SetTheftCooldown(ctx, "old", t0.Add(30*time.Minute))
		})
		require.NoError(t, err)

		purged, err := s.PurgeExpired(ctx, t0.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(2), purged)

		pw, err := s.Protection(ctx, "old")
		require.NoError(t, err)
		assert.Nil(t, pw)
		pw, err = s.Protection(ctx, "new")
		require.NoError(t, err)
		assert.NotNil(t, pw)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t, clock.NewManual(t0))
		assert.NoError(t, s.Ping(ctx))
	})
}
