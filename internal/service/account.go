package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"discord-economy-bot/internal/config"
	"discord-economy-bot/internal/model"
	"discord-economy-bot/internal/pkg/clock"
	"discord-economy-bot/internal/pkg/metrics"
	"discord-economy-bot/internal/pkg/rng"
	"discord-economy-bot/internal/repository"
)

// DailyPolicy is the daily-reward configuration.
type DailyPolicy struct {
	Reward            int64
	Cooldown          time.Duration
	StreakWindow      time.Duration // a claim within this long of the last one continues the streak
	MaxRandomBonus    int64
	StreakStepPercent int64 // bonus percent of Reward per banked streak day
	StreakCapPercent  int64
}

// DailyPolicyFromConfig converts the daily config section.
func DailyPolicyFromConfig(cfg config.DailyConfig) DailyPolicy {
	return DailyPolicy{
		Reward:            cfg.Reward,
		Cooldown:          cfg.Cooldown(),
		StreakWindow:      cfg.StreakWindow(),
		MaxRandomBonus:    cfg.MaxRandomBonus,
		StreakStepPercent: cfg.StreakStepPercent,
		StreakCapPercent:  cfg.StreakCapPercent,
	}
}

// NextStreak returns the streak after a claim at now. The streak continues
// only if now is strictly within window of the last claim; the first claim of
// a new streak is day 1.
func NextStreak(lastClaim *time.Time, streak int, now time.Time, window time.Duration) int {
	if lastClaim == nil || now.Sub(*lastClaim) >= window {
		return 1
	}
	return streak + 1
}

// StreakBonus returns floor(reward * min(prior*step, cap) / 100), where prior
// is the number of streak days banked before today's claim.
func StreakBonus(reward int64, prior int, stepPercent, capPercent int64) int64 {
	if prior <= 0 {
		return 0
	}
	pct := min(int64(prior)*stepPercent, capPercent)
	return reward * pct / 100
}

// ClaimStatus is the outcome of a daily claim.
type ClaimStatus int

const (
	ClaimClaimed ClaimStatus = iota
	ClaimTooSoon
)

func (s ClaimStatus) String() string {
	switch s {
	case ClaimClaimed:
		return "claimed"
	case ClaimTooSoon:
		return "too_soon"
	}
	return "unknown"
}

// ClaimResult is the result of ClaimDaily.
type ClaimResult struct {
	Status      ClaimStatus
	Amount      int64 // base reward
	Bonus       int64 // random plus streak bonus
	Streak      int
	Remaining   time.Duration // TooSoon only
	NextClaimAt time.Time
	Account     *model.Account
}

// Total returns the amount credited by the claim.
func (r *ClaimResult) Total() int64 {
	return r.Amount + r.Bonus
}

// AccountService is the account facade and daily reward scheduler.
type AccountService struct {
	store   repository.Store
	clock   clock.Clock
	rng     rng.Source
	daily   DailyPolicy
	metrics *metrics.Metrics
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	store repository.Store,
	clk clock.Clock,
	src rng.Source,
	daily DailyPolicy,
	m *metrics.Metrics,
) *AccountService {
	return &AccountService{
		store:   store,
		clock:   clk,
		rng:     src,
		daily:   daily,
		metrics: m,
	}
}

// GetOrCreate returns the user's account, creating it on first sight.
func (s *AccountService) GetOrCreate(ctx context.Context, userID string) (*model.Account, bool, error) {
	acc, created, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, false, StorageError("get account", err)
	}
	if created {
		log.Info().Str("user_id", userID).Int64("balance", acc.Balance).Msg("Account created")
	}
	return acc, created, nil
}

// Balance returns the user's current account.
func (s *AccountService) Balance(ctx context.Context, userID string) (*model.Account, error) {
	acc, _, err := s.GetOrCreate(ctx, userID)
	return acc, err
}

// ClaimDaily grants the daily reward if the cooldown since the last claim has
// passed. Eligibility, streak and payout are decided on the locked account.
func (s *AccountService) ClaimDaily(ctx context.Context, userID string, origin model.Origin) (*ClaimResult, error) {
	now := s.clock.Now()
	p := s.daily

	var res *ClaimResult
	err := s.store.Atomic(ctx, []string{userID}, func(ctx context.Context, tx repository.Tx) error {
		acc, err := tx.Account(userID)
		if err != nil {
			return err
		}

		if last := acc.Daily.LastClaim; last != nil {
			next := last.Add(p.Cooldown)
			if now.Before(next) {
				res = &ClaimResult{
					Status:      ClaimTooSoon,
					Remaining:   next.Sub(now),
					NextClaimAt: next,
					Streak:      acc.Daily.Streak,
					Account:     acc,
				}
				return nil
			}
		}

		streak := NextStreak(acc.Daily.LastClaim, acc.Daily.Streak, now, p.StreakWindow)
		// The streak bonus counts the days banked before today, so day 1
		// earns none and day 2 earns one step.
		bonus := s.rng.IntRange(0, p.MaxRandomBonus) +
			StreakBonus(p.Reward, streak-1, p.StreakStepPercent, p.StreakCapPercent)
		total := p.Reward + bonus

		if _, err := tx.AdjustBalance(ctx, userID, total); err != nil {
			return err
		}
		acc, err = tx.SetDailyState(ctx, userID, &now, streak)
		if err != nil {
			return err
		}

		rec := model.NewTransactionRecord(model.TxTypeDaily, userID, total, origin, now).
			WithDescription(fmt.Sprintf("daily reward, streak day %d", streak))
		if err := tx.AppendTransaction(ctx, rec); err != nil {
			return err
		}

		res = &ClaimResult{
			Status:      ClaimClaimed,
			Amount:      p.Reward,
			Bonus:       bonus,
			Streak:      streak,
			NextClaimAt: now.Add(p.Cooldown),
			Account:     acc,
		}
		return nil
	})
	if err != nil {
		s.metrics.Operation("daily", "error")
		return nil, StorageError("claim daily", err)
	}

	s.metrics.Operation("daily", res.Status.String())
	if res.Status == ClaimClaimed {
		s.metrics.CoinsMoved("daily", res.Total())
		log.Info().
			Str("op", "daily").
			Str("user_id", userID).
			Str("guild_id", origin.GuildID).
			Int64("amount", res.Total()).
			Int("streak", res.Streak).
			Msg("Daily reward claimed")
	} else {
		log.Debug().Str("op", "daily").Str("user_id", userID).Dur("remaining", res.Remaining).Msg("Daily claim too soon")
	}
	return res, nil
}

// TimeUntilDaily returns how long until the user may claim again, or 0.
func (s *AccountService) TimeUntilDaily(ctx context.Context, userID string) (time.Duration, error) {
	acc, _, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}
	if acc.Daily.LastClaim == nil {
		return 0, nil
	}
	remaining := acc.Daily.LastClaim.Add(s.daily.Cooldown).Sub(s.clock.Now())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// AdminAdjust adds delta to a balance on behalf of an admin and records it.
// It fails with ErrInsufficientFunds rather than driving the balance negative.
func (s *AccountService) AdminAdjust(ctx context.Context, adminID, userID string, delta int64, origin model.Origin) (*model.Account, error) {
	if delta == 0 {
		return s.Balance(ctx, userID)
	}
	now := s.clock.Now()

	var out *model.Account
	err := s.store.Atomic(ctx, []string{userID}, func(ctx context.Context, tx repository.Tx) error {
		acc, err := tx.AdjustBalance(ctx, userID, delta)
		if err != nil {
			return err
		}
		out = acc
		rec := model.NewTransactionRecord(model.TxTypeAdminAdjust, adminID, delta, origin, now).
			WithCounterparty(userID)
		return tx.AppendTransaction(ctx, rec)
	})
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return nil, ErrInsufficientFunds
		}
		return nil, StorageError("admin adjust", err)
	}

	log.Info().
		Str("op", "admin_adjust").
		Str("admin_id", adminID).
		Str("user_id", userID).
		Int64("amount", delta).
		Int64("balance", out.Balance).
		Msg("Balance adjusted by admin")
	return out, nil
}

// SetLevel sets the user's level, which biases theft odds.
func (s *AccountService) SetLevel(ctx context.Context, userID string, level int) (*model.Account, error) {
	acc, err := s.store.SetLevel(ctx, userID, level)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidLevel) {
			return nil, ErrInvalidLevel
		}
		return nil, StorageError("set level", err)
	}
	log.Info().Str("user_id", userID).Int("level", level).Msg("Level set")
	return acc, nil
}

// ResetDaily clears the user's daily state so the next claim starts a new streak.
func (s *AccountService) ResetDaily(ctx context.Context, userID string) (*model.Account, error) {
	acc, err := s.store.SetDailyState(ctx, userID, nil, 0)
	if err != nil {
		return nil, StorageError("reset daily", err)
	}
	return acc, nil
}
