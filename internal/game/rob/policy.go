package rob

import (
	"math"
	"time"

	"discord-economy-bot/internal/config"
	"discord-economy-bot/internal/pkg/rng"
)

// Policy holds the theft odds, payout and cooldown rules. All randomness
// comes from the Source passed to each method.
type Policy struct {
	MinAttackerBalance int64
	MinTargetBalance   int64

	BaseChanceMin  int64
	BaseChanceMax  int64
	LevelBonusStep int64
	LevelBonusCap  int64
	LevelMalusStep int64
	LevelMalusCap  int64
	ChanceFloor    int64
	ChanceCeiling  int64

	StealMinPercent float64
	StealMaxPercent float64
	MaxTheftPercent float64
	FineMinPercent  float64
	FineMaxPercent  float64
	FineCap         int64
	FallbackMax     int64

	SuccessCooldownMin time.Duration
	SuccessCooldownMax time.Duration
	FailureCooldownMin time.Duration
	FailureCooldownMax time.Duration
}

// NewPolicy converts the theft config section.
func NewPolicy(cfg config.TheftConfig) Policy {
	return Policy{
		MinAttackerBalance: cfg.MinAttackerBalance,
		MinTargetBalance:   cfg.MinTargetBalance,
		BaseChanceMin:      cfg.BaseChanceMin,
		BaseChanceMax:      cfg.BaseChanceMax,
		LevelBonusStep:     cfg.LevelBonusStep,
		LevelBonusCap:      cfg.LevelBonusCap,
		LevelMalusStep:     cfg.LevelMalusStep,
		LevelMalusCap:      cfg.LevelMalusCap,
		ChanceFloor:        cfg.ChanceFloor,
		ChanceCeiling:      cfg.ChanceCeiling,
		StealMinPercent:    cfg.StealMinPercent,
		StealMaxPercent:    cfg.StealMaxPercent,
		MaxTheftPercent:    cfg.MaxTheftPercent,
		FineMinPercent:     cfg.FineMinPercent,
		FineMaxPercent:     cfg.FineMaxPercent,
		FineCap:            cfg.FineCap,
		FallbackMax:        cfg.FallbackMax,
		SuccessCooldownMin: cfg.SuccessCooldownMin,
		SuccessCooldownMax: cfg.SuccessCooldownMax,
		FailureCooldownMin: cfg.FailureCooldownMin,
		FailureCooldownMax: cfg.FailureCooldownMax,
	}
}

// SuccessChance returns the success percentage for an attempt: a random base
// shifted by the level gap, clamped to [ChanceFloor, ChanceCeiling].
func (p Policy) SuccessChance(src rng.Source, attackerLevel, targetLevel int) int64 {
	chance := src.IntRange(p.BaseChanceMin, p.BaseChanceMax)

	gap := int64(attackerLevel - targetLevel)
	switch {
	case gap > 0:
		chance += min(gap*p.LevelBonusStep, p.LevelBonusCap)
	case gap < 0:
		chance -= min(-gap*p.LevelMalusStep, p.LevelMalusCap)
	}
	return max(p.ChanceFloor, min(chance, p.ChanceCeiling))
}

// Roll reports success iff a uniform draw from [1, 100] is <= chance.
func (p Policy) Roll(src rng.Source, chance int64) bool {
	return src.IntRange(1, 100) <= chance
}

// StolenAmount returns what a successful theft takes from a target holding
// targetBalance. The result lies in [1, floor(targetBalance*MaxTheftPercent)]
// whenever that upper bound is positive.
func (p Policy) StolenAmount(src rng.Source, targetBalance int64) int64 {
	if targetBalance <= 0 {
		return 0
	}
	stolen := percentOf(targetBalance, src.Float64Range(p.StealMinPercent, p.StealMaxPercent))
	if stolen <= 0 {
		stolen = src.IntRange(1, min(p.FallbackMax, targetBalance))
	}
	return min(stolen, percentOf(targetBalance, p.MaxTheftPercent))
}

// FineAmount returns what a failed theft costs an attacker holding
// attackerBalance. The result lies in [1, min(FineCap, attackerBalance)].
func (p Policy) FineAmount(src rng.Source, attackerBalance int64) int64 {
	if attackerBalance <= 0 {
		return 0
	}
	fine := min(percentOf(attackerBalance, src.Float64Range(p.FineMinPercent, p.FineMaxPercent)), p.FineCap)
	if fine <= 0 {
		fine = src.IntRange(1, min(p.FallbackMax, attackerBalance))
	}
	return min(fine, attackerBalance)
}

// CooldownFor returns how long the attacker waits before the next attempt.
func (p Policy) CooldownFor(src rng.Source, success bool) time.Duration {
	if success {
		return rng.DurationRange(src, p.SuccessCooldownMin, p.SuccessCooldownMax)
	}
	return rng.DurationRange(src, p.FailureCooldownMin, p.FailureCooldownMax)
}

func percentOf(balance int64, pct float64) int64 {
	return int64(math.Floor(float64(balance) * pct))
}
