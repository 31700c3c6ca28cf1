package service

import (
	"context"

	"discord-economy-bot/internal/model"
	"discord-economy-bot/internal/repository"
)

// RankEntry is one leaderboard line.
type RankEntry struct {
	Rank    int
	UserID  string
	Balance int64
	Level   int
}

// RankingService handles leaderboard and audit reads.
type RankingService struct {
	store repository.Store
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(store repository.Store) *RankingService {
	return &RankingService{store: store}
}

// Top returns the richest accounts, ranked from 1.
func (s *RankingService) Top(ctx context.Context, limit int) ([]RankEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	accounts, err := s.store.TopAccounts(ctx, limit)
	if err != nil {
		return nil, StorageError("top accounts", err)
	}
	entries := make([]RankEntry, 0, len(accounts))
	for i, acc := range accounts {
		entries = append(entries, RankEntry{
			Rank:    i + 1,
			UserID:  acc.UserID,
			Balance: acc.Balance,
			Level:   acc.Level,
		})
	}
	return entries, nil
}

// History returns the user's most recent audit records, newest first.
func (s *RankingService) History(ctx context.Context, userID string, limit int) ([]*model.TransactionRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	records, err := s.store.RecentTransactions(ctx, userID, limit)
	if err != nil {
		return nil, StorageError("transaction history", err)
	}
	return records, nil
}
