package service

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/require"

	"discord-economy-bot/internal/config"
	"discord-economy-bot/internal/model"
	"discord-economy-bot/internal/pkg/clock"
	"discord-economy-bot/internal/pkg/rng"
	"discord-economy-bot/internal/repository"
	"discord-economy-bot/internal/shop"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var origin = model.Origin{GuildID: "guild", ChannelID: "channel"}

// testingT is satisfied by *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

type testEnv struct {
	store      *repository.MemoryStore
	clock      *clock.Manual
	accounts   *AccountService
	transfers  *TransferService
	protection *ProtectionService
	ranking    *RankingService
}

func newTestEnv(t testingT, src rng.Source) *testEnv {
	t.Helper()
	cfg := config.Default()
	clk := clock.NewManual(t0)
	store := repository.NewMemoryStore(clk, cfg.Economy.InitialBalance)
	catalog, err := shop.NewCatalog(shop.DefaultTiers)
	require.NoError(t, err)

	return &testEnv{
		store:      store,
		clock:      clk,
		accounts:   NewAccountService(store, clk, src, DailyPolicyFromConfig(cfg.Daily), nil),
		transfers:  NewTransferService(store, clk, cfg.Economy.MinTransfer, nil),
		protection: NewProtectionService(store, clk, catalog, nil),
		ranking:    NewRankingService(store),
	}
}

func (e *testEnv) balance(t testingT, userID string) int64 {
	t.Helper()
	acc, _, err := e.store.GetOrCreate(context.Background(), userID)
	require.NoError(t, err)
	return acc.Balance
}

func (e *testEnv) setBalance(t testingT, userID string, balance int64) {
	t.Helper()
	delta := balance - e.balance(t, userID)
	_, err := e.store.AdjustBalance(context.Background(), userID, delta)
	require.NoError(t, err)
}

var errDown = errors.New("connection refused")

// downStore fails every call the way an unreachable database would.
type downStore struct {
	repository.Store
}

func (downStore) GetOrCreate(context.Context, string) (*model.Account, bool, error) {
	return nil, false, errDown
}

func (downStore) Atomic(context.Context, []string, func(context.Context, repository.Tx) error) error {
	return errDown
}

func (downStore) Protection(context.Context, string) (*model.ProtectionWindow, error) {
	return nil, errDown
}

func (downStore) TopAccounts(context.Context, int) ([]*model.Account, error) {
	return nil, errDown
}

func (downStore) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, errDown
}
