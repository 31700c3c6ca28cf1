package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"discord-economy-bot/internal/model"
	"discord-economy-bot/internal/pkg/clock"
	"discord-economy-bot/internal/pkg/metrics"
	"discord-economy-bot/internal/repository"
	"discord-economy-bot/internal/shop"
)

// ProtectionStatus is the outcome of a purchase or extension.
type ProtectionStatus int

const (
	ProtectionOK ProtectionStatus = iota
	ProtectionAlreadyProtected
	ProtectionNotProtected
	ProtectionInsufficientFunds
	ProtectionInvalidTier
)

func (s ProtectionStatus) String() string {
	switch s {
	case ProtectionOK:
		return "ok"
	case ProtectionAlreadyProtected:
		return "already_protected"
	case ProtectionNotProtected:
		return "not_protected"
	case ProtectionInsufficientFunds:
		return "insufficient_funds"
	case ProtectionInvalidTier:
		return "invalid_tier"
	}
	return "unknown"
}

// ProtectionResult is the result of Purchase or Extend.
type ProtectionResult struct {
	Status    ProtectionStatus
	Tier      shop.Tier
	ExpiresAt time.Time     // new expiry on OK
	Remaining time.Duration // AlreadyProtected: time left on the existing window
	Account   *model.Account
}

// ProtectionState is a point-in-time view of a user's immunity.
type ProtectionState struct {
	Protected bool
	ExpiresAt time.Time
	Remaining time.Duration
}

// ProtectionService sells and extends protection windows.
type ProtectionService struct {
	store   repository.Store
	clock   clock.Clock
	catalog *shop.Catalog
	metrics *metrics.Metrics
}

// NewProtectionService creates a new ProtectionService instance.
func NewProtectionService(store repository.Store, clk clock.Clock, catalog *shop.Catalog, m *metrics.Metrics) *ProtectionService {
	return &ProtectionService{
		store:   store,
		clock:   clk,
		catalog: catalog,
		metrics: m,
	}
}

// Catalog returns the tier table.
func (s *ProtectionService) Catalog() *shop.Catalog {
	return s.catalog
}

// Purchase starts a new window. It fails if one is already active; use Extend.
func (s *ProtectionService) Purchase(ctx context.Context, userID, tierKey string, origin model.Origin) (*ProtectionResult, error) {
	return s.buy(ctx, "protection", userID, tierKey, origin)
}

// Extend adds a tier's duration to the active window's expiry.
func (s *ProtectionService) Extend(ctx context.Context, userID, tierKey string, origin model.Origin) (*ProtectionResult, error) {
	return s.buy(ctx, "protection_extension", userID, tierKey, origin)
}

func (s *ProtectionService) buy(ctx context.Context, op, userID, tierKey string, origin model.Origin) (*ProtectionResult, error) {
	tier, err := s.catalog.Lookup(tierKey)
	if err != nil {
		s.metrics.Operation(op, ProtectionInvalidTier.String())
		return &ProtectionResult{Status: ProtectionInvalidTier}, nil
	}

	extend := op == "protection_extension"
	now := s.clock.Now()
	res := &ProtectionResult{Tier: tier}

	err = s.store.Atomic(ctx, []string{userID}, func(ctx context.Context, tx repository.Tx) error {
		current, err := tx.Protection(ctx, userID)
		if err != nil {
			return err
		}

		var expiry time.Time
		switch active := current.Active(now); {
		case !extend && active:
			res.Status = ProtectionAlreadyProtected
			res.Remaining = current.Remaining(now)
			res.ExpiresAt = current.ExpiresAt
			return nil
		case extend && !active:
			res.Status = ProtectionNotProtected
			return nil
		case extend:
			expiry = current.ExpiresAt.Add(tier.Duration)
		default:
			expiry = now.Add(tier.Duration)
		}

		acc, err := tx.AdjustBalance(ctx, userID, -tier.Price)
		if errors.Is(err, repository.ErrInsufficientFunds) {
			res.Status = ProtectionInsufficientFunds
			res.Account, _ = tx.Account(userID)
			return nil
		}
		if err != nil {
			return err
		}

		window, err := tx.SetProtection(ctx, userID, expiry)
		if err != nil {
			return err
		}

		txType := model.TxTypeProtection
		if extend {
			txType = model.TxTypeProtectionExtension
		}
		rec := model.NewTransactionRecord(txType, userID, tier.Price, origin, now).
			WithDescription(fmt.Sprintf("tier %s until %s", tier.Key, window.ExpiresAt.Format(time.RFC3339)))
		if err := tx.AppendTransaction(ctx, rec); err != nil {
			return err
		}

		res.Status = ProtectionOK
		res.ExpiresAt = window.ExpiresAt
		res.Remaining = window.ExpiresAt.Sub(now)
		res.Account = acc
		return nil
	})
	if err != nil {
		s.metrics.Operation(op, "error")
		return nil, StorageError(op, err)
	}

	s.metrics.Operation(op, res.Status.String())
	if res.Status == ProtectionOK {
		s.metrics.CoinsMoved(op, tier.Price)
		log.Info().
			Str("op", op).
			Str("user_id", userID).
			Str("tier", tier.Key).
			Int64("amount", tier.Price).
			Time("expires_at", res.ExpiresAt).
			Msg("Protection bought")
	} else {
		log.Debug().Str("op", op).Str("user_id", userID).Str("outcome", res.Status.String()).Msg("Protection rejected")
	}
	return res, nil
}

// Status reports whether the user is protected at the current time.
func (s *ProtectionService) Status(ctx context.Context, userID string) (*ProtectionState, error) {
	window, err := s.store.Protection(ctx, userID)
	if err != nil {
		return nil, StorageError("protection status", err)
	}
	now := s.clock.Now()
	if !window.Active(now) {
		return &ProtectionState{}, nil
	}
	return &ProtectionState{
		Protected: true,
		ExpiresAt: window.ExpiresAt,
		Remaining: window.Remaining(now),
	}, nil
}
