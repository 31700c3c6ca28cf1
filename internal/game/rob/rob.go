// Package rob implements the theft game: one player tries to steal coins
// from another, gated by cooldowns, protection windows and balance floors.
package rob

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"discord-economy-bot/internal/model"
	"discord-economy-bot/internal/pkg/clock"
	"discord-economy-bot/internal/pkg/metrics"
	"discord-economy-bot/internal/pkg/rng"
	"discord-economy-bot/internal/repository"
	"discord-economy-bot/internal/service"
)

// TheftStatus is the outcome class of an attempt.
type TheftStatus int

const (
	TheftBlocked TheftStatus = iota // Attempt refused, nothing changed
	TheftSuccess                    // Attacker took coins from the target
	TheftFailure                    // Attacker paid a fine
)

func (s TheftStatus) String() string {
	switch s {
	case TheftBlocked:
		return "blocked"
	case TheftSuccess:
		return "success"
	case TheftFailure:
		return "failure"
	}
	return "unknown"
}

// BlockReason says why a TheftBlocked attempt was refused.
type BlockReason int

const (
	BlockNone BlockReason = iota
	BlockSelfTarget
	BlockInvalidTarget
	BlockCooldown
	BlockTargetProtected
	BlockAttackerTooPoor
	BlockTargetTooPoor
)

func (r BlockReason) String() string {
	switch r {
	case BlockNone:
		return "none"
	case BlockSelfTarget:
		return "self_target"
	case BlockInvalidTarget:
		return "invalid_target"
	case BlockCooldown:
		return "cooldown"
	case BlockTargetProtected:
		return "target_protected"
	case BlockAttackerTooPoor:
		return "attacker_too_poor"
	case BlockTargetTooPoor:
		return "target_too_poor"
	}
	return "unknown"
}

// TheftRequest is one attempt by AttackerID against TargetID.
type TheftRequest struct {
	AttackerID  string
	TargetID    string
	TargetIsBot bool
	Origin      model.Origin
}

// TheftResult contains the result of a theft attempt.
type TheftResult struct {
	Status    TheftStatus
	Reason    BlockReason
	Remaining time.Duration // Cooldown or TargetProtected: time until the gate opens

	Chance        int64 // success percentage rolled against
	Amount        int64 // stolen on success, fine on failure
	Cooldown      time.Duration
	NextAttemptAt time.Time

	// Committed accounts, set on success and failure.
	Attacker *model.Account
	Target   *model.Account
}

// Label returns the metric label for the result.
func (r *TheftResult) Label() string {
	if r.Status == TheftBlocked {
		return r.Reason.String()
	}
	return r.Status.String()
}

// RobGame manages theft attempts.
type RobGame struct {
	store    repository.Store
	clock    clock.Clock
	src      rng.Source
	policy   Policy
	services map[string]struct{}
	metrics  *metrics.Metrics
}

// NewRobGame creates a new RobGame instance. serviceAccounts are user ids
// that can never be targeted.
func NewRobGame(
	store repository.Store,
	clk clock.Clock,
	src rng.Source,
	policy Policy,
	serviceAccounts []string,
	m *metrics.Metrics,
) *RobGame {
	services := make(map[string]struct{}, len(serviceAccounts))
	for _, id := range serviceAccounts {
		services[id] = struct{}{}
	}
	return &RobGame{
		store:    store,
		clock:    clk,
		src:      src,
		policy:   policy,
		services: services,
		metrics:  m,
	}
}

// Policy returns the rules in effect.
func (g *RobGame) Policy() Policy {
	return g.policy
}

// Attempt runs one theft attempt. Gates are checked in order and the first
// that fails blocks the attempt without changing any state. Checks that
// depend on account state run on the locked rows, so two attempts racing on
// the same attacker cannot both pass the cooldown gate.
func (g *RobGame) Attempt(ctx context.Context, req TheftRequest) (*TheftResult, error) {
	res := &TheftResult{Status: TheftBlocked}
	switch {
	case req.AttackerID == req.TargetID:
		res.Reason = BlockSelfTarget
	case req.TargetIsBot || g.isServiceAccount(req.TargetID):
		res.Reason = BlockInvalidTarget
	}
	if res.Reason != BlockNone {
		g.report(req, res)
		return res, nil
	}

	now := g.clock.Now()
	err := g.store.Atomic(ctx, []string{req.AttackerID, req.TargetID}, func(ctx context.Context, tx repository.Tx) error {
		blocked, err := g.checkGates(ctx, tx, req, now, res)
		if err != nil || blocked {
			return err
		}
		return g.resolve(ctx, tx, req, now, res)
	})
	if err != nil {
		g.metrics.Operation("theft", "error")
		return nil, service.StorageError("theft", err)
	}

	g.report(req, res)
	return res, nil
}

func (g *RobGame) checkGates(ctx context.Context, tx repository.Tx, req TheftRequest, now time.Time, res *TheftResult) (bool, error) {
	cooldown, err := tx.TheftCooldown(ctx, req.AttackerID)
	if err != nil {
		return false, err
	}
	if cooldown.Active(now) {
		res.Reason = BlockCooldown
		res.Remaining = cooldown.Remaining(now)
		res.NextAttemptAt = cooldown.NextAttemptAt
		return true, nil
	}

	protection, err := tx.Protection(ctx, req.TargetID)
	if err != nil {
		return false, err
	}
	if protection.Active(now) {
		res.Reason = BlockTargetProtected
		res.Remaining = protection.Remaining(now)
		return true, nil
	}

	attacker, err := tx.Account(req.AttackerID)
	if err != nil {
		return false, err
	}
	if attacker.Balance < g.policy.MinAttackerBalance {
		res.Reason = BlockAttackerTooPoor
		return true, nil
	}

	target, err := tx.Account(req.TargetID)
	if err != nil {
		return false, err
	}
	if target.Balance <= g.policy.MinTargetBalance {
		res.Reason = BlockTargetTooPoor
		return true, nil
	}
	return false, nil
}

func (g *RobGame) resolve(ctx context.Context, tx repository.Tx, req TheftRequest, now time.Time, res *TheftResult) error {
	attacker, err := tx.Account(req.AttackerID)
	if err != nil {
		return err
	}
	target, err := tx.Account(req.TargetID)
	if err != nil {
		return err
	}

	res.Chance = g.policy.SuccessChance(g.src, attacker.Level, target.Level)
	success := g.policy.Roll(g.src, res.Chance)

	var rec *model.TransactionRecord
	if success {
		res.Status = TheftSuccess
		res.Amount = g.policy.StolenAmount(g.src, target.Balance)
		if res.Target, err = tx.AdjustBalance(ctx, req.TargetID, -res.Amount); err != nil {
			return err
		}
		if res.Attacker, err = tx.AdjustBalance(ctx, req.AttackerID, res.Amount); err != nil {
			return err
		}
		rec = model.NewTransactionRecord(model.TxTypeTheft, req.AttackerID, res.Amount, req.Origin, now).
			WithOutcome(model.OutcomeSuccess)
	} else {
		// The fine is not credited to anyone.
		res.Status = TheftFailure
		res.Amount = g.policy.FineAmount(g.src, attacker.Balance)
		if res.Attacker, err = tx.AdjustBalance(ctx, req.AttackerID, -res.Amount); err != nil {
			return err
		}
		res.Target = target
		rec = model.NewTransactionRecord(model.TxTypeTheft, req.AttackerID, res.Amount, req.Origin, now).
			WithOutcome(model.OutcomeFailure).
			WithDescription(fmt.Sprintf("fined %d at %d%% odds", res.Amount, res.Chance))
	}

	res.Cooldown = g.policy.CooldownFor(g.src, success)
	res.NextAttemptAt = now.Add(res.Cooldown)
	if err := tx.SetTheftCooldown(ctx, req.AttackerID, res.NextAttemptAt); err != nil {
		return err
	}
	return tx.AppendTransaction(ctx, rec.WithCounterparty(req.TargetID))
}

// Cooldown returns how long until the user may attempt another theft.
func (g *RobGame) Cooldown(ctx context.Context, userID string) (time.Duration, error) {
	cd, err := g.store.TheftCooldown(ctx, userID)
	if err != nil {
		return 0, service.StorageError("theft cooldown", err)
	}
	return cd.Remaining(g.clock.Now()), nil
}

func (g *RobGame) isServiceAccount(userID string) bool {
	_, ok := g.services[userID]
	return ok
}

func (g *RobGame) report(req TheftRequest, res *TheftResult) {
	g.metrics.Operation("theft", res.Label())
	if res.Status == TheftBlocked {
		log.Debug().
			Str("op", "theft").
			Str("user_id", req.AttackerID).
			Str("target_id", req.TargetID).
			Str("outcome", res.Label()).
			Dur("remaining", res.Remaining).
			Msg("Theft blocked")
		return
	}
	g.metrics.CoinsMoved("theft_"+res.Status.String(), res.Amount)
	log.Info().
		Str("op", "theft").
		Str("user_id", req.AttackerID).
		Str("target_id", req.TargetID).
		Str("guild_id", req.Origin.GuildID).
		Str("outcome", res.Status.String()).
		Int64("amount", res.Amount).
		Int64("chance", res.Chance).
		Time("next_attempt_at", res.NextAttemptAt).
		Msg("Theft resolved")
}
