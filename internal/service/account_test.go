package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"discord-economy-bot/internal/config"
	"discord-economy-bot/internal/model"
	"discord-economy-bot/internal/pkg/clock"
	"discord-economy-bot/internal/pkg/rng"
)

func TestClaimDailyFirstClaimThenTooSoon(t *testing.T) {
	env := newTestEnv(t, rng.Fixed{Int: 37})
	ctx := context.Background()

	res, err := env.accounts.ClaimDaily(ctx, "alice", origin)
	require.NoError(t, err)
	assert.Equal(t, ClaimClaimed, res.Status)
	assert.Equal(t, int64(200), res.Amount)
	assert.Equal(t, int64(37), res.Bonus)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, int64(1237), res.Account.Balance)

	env.clock.Advance(time.Hour)
	res, err = env.accounts.ClaimDaily(ctx, "alice", origin)
	require.NoError(t, err)
	assert.Equal(t, ClaimTooSoon, res.Status)
	assert.Equal(t, 23*time.Hour, res.Remaining)
	assert.Equal(t, int64(1237), env.balance(t, "alice"), "too soon must not mutate")

	remaining, err := env.accounts.TimeUntilDaily(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 23*time.Hour, remaining)
}

func TestClaimDailyFirstClaimBonusRangeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		env := newTestEnv(t, rng.NewSeeded(rapid.Int64().Draw(t, "seed")))

		res, err := env.accounts.ClaimDaily(context.Background(), "u", origin)
		if err != nil {
			t.Fatal(err)
		}
		if res.Status != ClaimClaimed || res.Streak != 1 {
			t.Fatalf("first claim: status %v streak %d", res.Status, res.Streak)
		}
		if res.Bonus < 0 || res.Bonus > 100 {
			t.Fatalf("bonus %d outside [0, 100]", res.Bonus)
		}
		if res.Account.Balance != 1000+200+res.Bonus {
			t.Fatalf("balance %d, bonus %d", res.Account.Balance, res.Bonus)
		}
	})
}

// TestClaimDailyIdempotentWithinCooldownProperty: any number of claims inside
// the cooldown after a successful one are all TooSoon.
func TestClaimDailyIdempotentWithinCooldownProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		env := newTestEnv(t, rng.NewSeeded(1))
		ctx := context.Background()

		first, err := env.accounts.ClaimDaily(ctx, "u", origin)
		if err != nil || first.Status != ClaimClaimed {
			t.Fatalf("first claim failed: %v %v", first, err)
		}
		balance := first.Account.Balance

		offsets := rapid.SliceOfN(rapid.Int64Range(0, int64(24*time.Hour/time.Second)-1), 1, 10).Draw(t, "offsets")
		for _, off := range offsets {
			env.clock.Set(t0.Add(time.Duration(off) * time.Second))
			res, err := env.accounts.ClaimDaily(ctx, "u", origin)
			if err != nil {
				t.Fatal(err)
			}
			if res.Status != ClaimTooSoon {
				t.Fatalf("claim at +%ds was %v", off, res.Status)
			}
			if res.Remaining <= 0 || res.Remaining > 24*time.Hour {
				t.Fatalf("remaining %v", res.Remaining)
			}
		}
		if got := env.balance(t, "u"); got != balance {
			t.Fatalf("balance moved from %d to %d", balance, got)
		}
	})
}

func TestClaimDailyStreak(t *testing.T) {
	env := newTestEnv(t, rng.Fixed{Int: 0})
	ctx := context.Background()

	res, err := env.accounts.ClaimDaily(ctx, "s", origin)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, int64(0), res.Bonus)

	// exactly at the cooldown boundary: eligible, and inside the 30h window
	env.clock.Advance(24 * time.Hour)
	res, err = env.accounts.ClaimDaily(ctx, "s", origin)
	require.NoError(t, err)
	require.Equal(t, ClaimClaimed, res.Status)
	assert.Equal(t, 2, res.Streak)
	assert.Equal(t, int64(20), res.Bonus, "one banked day is worth 10% of 200")

	env.clock.Advance(29*time.Hour + 59*time.Minute)
	res, err = env.accounts.ClaimDaily(ctx, "s", origin)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Streak)
	assert.Equal(t, int64(40), res.Bonus)

	// exactly 30h later the streak restarts
	env.clock.Advance(30 * time.Hour)
	res, err = env.accounts.ClaimDaily(ctx, "s", origin)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, int64(0), res.Bonus)
}

func TestStreakBonusCaps(t *testing.T) {
	assert.Equal(t, int64(0), StreakBonus(200, 0, 10, 100))
	assert.Equal(t, int64(100), StreakBonus(200, 5, 10, 100))
	assert.Equal(t, int64(200), StreakBonus(200, 10, 10, 100))
	assert.Equal(t, int64(200), StreakBonus(200, 400, 10, 100))
	assert.Equal(t, int64(10), StreakBonus(35, 3, 10, 100), "floor(35 * 0.3)")
}

func TestNextStreak(t *testing.T) {
	last := t0
	assert.Equal(t, 1, NextStreak(nil, 0, t0, 30*time.Hour))
	assert.Equal(t, 5, NextStreak(&last, 4, t0.Add(30*time.Hour-time.Nanosecond), 30*time.Hour))
	assert.Equal(t, 1, NextStreak(&last, 4, t0.Add(30*time.Hour), 30*time.Hour))
}

func TestClaimDailyConcurrentClaimsGrantOnce(t *testing.T) {
	env := newTestEnv(t, rng.NewSeeded(7))
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*ClaimResult, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.accounts.ClaimDaily(ctx, "racer", origin)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	claimed := 0
	var total int64
	for _, r := range results {
		require.NotNil(t, r)
		if r.Status == ClaimClaimed {
			claimed++
			total = r.Total()
		}
	}
	assert.Equal(t, 1, claimed)
	assert.Equal(t, 1000+total, env.balance(t, "racer"))
}

func TestClaimDailyRecordsAudit(t *testing.T) {
	env := newTestEnv(t, rng.Fixed{Int: 5})
	ctx := context.Background()

	_, err := env.accounts.ClaimDaily(ctx, "audited", origin)
	require.NoError(t, err)

	recs, err := env.ranking.History(ctx, "audited", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.TxTypeDaily, recs[0].Type)
	assert.Equal(t, int64(205), recs[0].Amount)
	assert.Equal(t, origin, recs[0].Origin)
}

func TestAdminAdjust(t *testing.T) {
	env := newTestEnv(t, rng.Fixed{})
	ctx := context.Background()

	acc, err := env.accounts.AdminAdjust(ctx, "admin", "u", 500, origin)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), acc.Balance)

	_, err = env.accounts.AdminAdjust(ctx, "admin", "u", -2000, origin)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(1500), env.balance(t, "u"))

	_, err = env.accounts.SetLevel(ctx, "u", 0)
	assert.ErrorIs(t, err, ErrInvalidLevel)
	acc, err = env.accounts.SetLevel(ctx, "u", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, acc.Level)
}

func TestResetDailyStartsNewStreak(t *testing.T) {
	env := newTestEnv(t, rng.Fixed{})
	ctx := context.Background()

	_, err := env.accounts.ClaimDaily(ctx, "r", origin)
	require.NoError(t, err)
	_, err = env.accounts.ResetDaily(ctx, "r")
	require.NoError(t, err)

	res, err := env.accounts.ClaimDaily(ctx, "r", origin)
	require.NoError(t, err)
	assert.Equal(t, ClaimClaimed, res.Status)
	assert.Equal(t, 1, res.Streak)
}

func TestAccountServiceSurfacesStorageErrors(t *testing.T) {
	cfg := config.Default()
	svc := NewAccountService(downStore{}, clock.NewManual(t0), rng.Fixed{}, DailyPolicyFromConfig(cfg.Daily), nil)
	ctx := context.Background()

	_, err := svc.ClaimDaily(ctx, "u", origin)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, errDown)

	_, err = svc.Balance(ctx, "u")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}
