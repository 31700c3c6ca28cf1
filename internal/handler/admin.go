package handler

import (
	"context"
	"errors"

	"discord-economy-bot/internal/service"
)

// AdminHandler handles admin-only commands. Access is enforced by the
// router's admin middleware.
type AdminHandler struct {
	accounts *service.AccountService
	ranking  *RankingHandler
	currency Currency
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(accounts *service.AccountService, ranking *RankingHandler, currency Currency) *AdminHandler {
	return &AdminHandler{accounts: accounts, ranking: ranking, currency: currency}
}

// HandleGive handles !give @user <amount>.
func (h *AdminHandler) HandleGive(ctx context.Context, c *Context) error {
	return h.adjust(ctx, c, 1, "give")
}

// HandleTake handles !take @user <amount>.
func (h *AdminHandler) HandleTake(ctx context.Context, c *Context) error {
	return h.adjust(ctx, c, -1, "take")
}

func (h *AdminHandler) adjust(ctx context.Context, c *Context, sign int64, name string) error {
	userID, amount, ok := targetAndNumber(c)
	if !ok || amount <= 0 {
		return c.Replyf("❌ Usage: `%s @user <amount>`", name)
	}

	acc, err := h.accounts.AdminAdjust(ctx, c.Author.ID, userID, sign*amount, c.Origin())
	if errors.Is(err, service.ErrInsufficientFunds) {
		return c.Replyf("❌ %s does not have %s.", mention(userID), h.currency.Format(amount))
	}
	if err != nil {
		return replyError(c, name, err)
	}
	return c.Replyf("✅ %s now has %s.", mention(userID), h.currency.Format(acc.Balance))
}

// HandleSetLevel handles !setlevel @user <level>.
func (h *AdminHandler) HandleSetLevel(ctx context.Context, c *Context) error {
	userID, level, ok := targetAndNumber(c)
	if !ok {
		return c.Reply("❌ Usage: `setlevel @user <level>`")
	}

	acc, err := h.accounts.SetLevel(ctx, userID, int(level))
	if errors.Is(err, service.ErrInvalidLevel) {
		return c.Reply("❌ Level must be at least 1.")
	}
	if err != nil {
		return replyError(c, "setlevel", err)
	}
	return c.Replyf("✅ %s is now level %d.", mention(userID), acc.Level)
}

// HandleResetDaily handles !resetdaily @user.
func (h *AdminHandler) HandleResetDaily(ctx context.Context, c *Context) error {
	if len(c.Args) < 1 {
		return c.Reply("❌ Usage: `resetdaily @user`")
	}
	userID, err := ParseMention(c.Args[0])
	if err != nil {
		return c.Reply("❌ Usage: `resetdaily @user`")
	}
	if _, err := h.accounts.ResetDaily(ctx, userID); err != nil {
		return replyError(c, "resetdaily", err)
	}
	return c.Replyf("✅ %s can claim their daily reward again.", mention(userID))
}

// HandleInspect handles !inspect @user: another user's recent activity.
func (h *AdminHandler) HandleInspect(ctx context.Context, c *Context) error {
	if len(c.Args) < 1 {
		return c.Reply("❌ Usage: `inspect @user`")
	}
	userID, err := ParseMention(c.Args[0])
	if err != nil {
		return c.Reply("❌ Usage: `inspect @user`")
	}
	return h.ranking.replyHistory(ctx, c, userID)
}

func targetAndNumber(c *Context) (string, int64, bool) {
	if len(c.Args) < 2 {
		return "", 0, false
	}
	userID, err := ParseMention(c.Args[0])
	if err != nil {
		return "", 0, false
	}
	n, err := ParseAmount(c.Args[1])
	if err != nil {
		return "", 0, false
	}
	return userID, n, true
}
