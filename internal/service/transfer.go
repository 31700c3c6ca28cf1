package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"discord-economy-bot/internal/model"
	"discord-economy-bot/internal/pkg/clock"
	"discord-economy-bot/internal/pkg/metrics"
	"discord-economy-bot/internal/repository"
)

// TransferStatus is the outcome of a transfer.
type TransferStatus int

const (
	TransferOK TransferStatus = iota
	TransferSelf
	TransferInvalidAmount
	TransferBelowMinimum
	TransferInsufficientFunds
)

func (s TransferStatus) String() string {
	switch s {
	case TransferOK:
		return "ok"
	case TransferSelf:
		return "self_transfer"
	case TransferInvalidAmount:
		return "invalid_amount"
	case TransferBelowMinimum:
		return "below_minimum"
	case TransferInsufficientFunds:
		return "insufficient_funds"
	}
	return "unknown"
}

// TransferRequest moves Amount from SenderID to RecipientID.
type TransferRequest struct {
	SenderID    string
	RecipientID string
	Amount      int64
	Origin      model.Origin
}

// TransferResult is the result of a transfer. Sender and Recipient are the
// committed accounts and are only set on TransferOK.
type TransferResult struct {
	Status      TransferStatus
	Amount      int64
	MinTransfer int64
	Balance     int64 // sender balance seen at check time, for InsufficientFunds
	Sender      *model.Account
	Recipient   *model.Account
}

// TransferService handles user-to-user transfers.
type TransferService struct {
	store       repository.Store
	clock       clock.Clock
	minTransfer int64
	metrics     *metrics.Metrics
}

// NewTransferService creates a new TransferService instance.
func NewTransferService(store repository.Store, clk clock.Clock, minTransfer int64, m *metrics.Metrics) *TransferService {
	return &TransferService{
		store:       store,
		clock:       clk,
		minTransfer: minTransfer,
		metrics:     m,
	}
}

// Validate runs the checks that need no account state, in order.
func (s *TransferService) Validate(req TransferRequest) TransferStatus {
	switch {
	case req.SenderID == req.RecipientID:
		return TransferSelf
	case req.Amount <= 0:
		return TransferInvalidAmount
	case req.Amount < s.minTransfer:
		return TransferBelowMinimum
	}
	return TransferOK
}

// Transfer debits the sender and credits the recipient in one unit of work
// and records the transfer.
func (s *TransferService) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	res := &TransferResult{Amount: req.Amount, MinTransfer: s.minTransfer}
	if res.Status = s.Validate(req); res.Status != TransferOK {
		s.report(req, res)
		return res, nil
	}

	now := s.clock.Now()
	err := s.store.Atomic(ctx, []string{req.SenderID, req.RecipientID}, func(ctx context.Context, tx repository.Tx) error {
		sender, err := tx.Account(req.SenderID)
		if err != nil {
			return err
		}
		if sender.Balance < req.Amount {
			res.Status = TransferInsufficientFunds
			res.Balance = sender.Balance
			return nil
		}

		if res.Sender, err = tx.AdjustBalance(ctx, req.SenderID, -req.Amount); err != nil {
			return err
		}
		if res.Recipient, err = tx.AdjustBalance(ctx, req.RecipientID, req.Amount); err != nil {
			return err
		}

		rec := model.NewTransactionRecord(model.TxTypeTransfer, req.SenderID, req.Amount, req.Origin, now).
			WithCounterparty(req.RecipientID)
		return tx.AppendTransaction(ctx, rec)
	})
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			res.Status = TransferInsufficientFunds
			res.Sender, res.Recipient = nil, nil
			s.report(req, res)
			return res, nil
		}
		s.metrics.Operation("transfer", "error")
		return nil, StorageError("transfer", err)
	}

	s.report(req, res)
	return res, nil
}

// TransferAll sends the sender's entire current balance. A zero balance
// yields TransferInvalidAmount.
func (s *TransferService) TransferAll(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.SenderID == req.RecipientID {
		return s.Transfer(ctx, req)
	}
	sender, _, err := s.store.GetOrCreate(ctx, req.SenderID)
	if err != nil {
		return nil, StorageError("transfer all", err)
	}
	req.Amount = sender.Balance
	return s.Transfer(ctx, req)
}

func (s *TransferService) report(req TransferRequest, res *TransferResult) {
	s.metrics.Operation("transfer", res.Status.String())
	if res.Status != TransferOK {
		log.Debug().
			Str("op", "transfer").
			Str("user_id", req.SenderID).
			Str("target_id", req.RecipientID).
			Int64("amount", req.Amount).
			Str("outcome", res.Status.String()).
			Msg("Transfer rejected")
		return
	}
	s.metrics.CoinsMoved("transfer", req.Amount)
	log.Info().
		Str("op", "transfer").
		Str("user_id", req.SenderID).
		Str("target_id", req.RecipientID).
		Str("guild_id", req.Origin.GuildID).
		Int64("amount", req.Amount).
		Msg("Transfer completed")
}
