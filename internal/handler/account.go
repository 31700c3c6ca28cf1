package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"discord-economy-bot/internal/service"
)

// AccountHandler handles balance and daily commands.
type AccountHandler struct {
	accounts *service.AccountService
	currency Currency
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *service.AccountService, currency Currency) *AccountHandler {
	return &AccountHandler{accounts: accounts, currency: currency}
}

// HandleBalance handles !balance [@user].
func (h *AccountHandler) HandleBalance(ctx context.Context, c *Context) error {
	targetID := c.Author.ID
	if len(c.Args) > 0 {
		id, err := ParseMention(c.Args[0])
		if err != nil {
			return c.Reply("❌ Usage: `balance [@user]`")
		}
		targetID = id
	}

	acc, err := h.accounts.Balance(ctx, targetID)
	if err != nil {
		return replyError(c, "balance", err)
	}
	text := "💰 " + mention(targetID) + " has **" + h.currency.Format(acc.Balance) + "** (level " + strconv.Itoa(acc.Level) + ")"
	if targetID != c.Author.ID {
		return c.Reply(text)
	}

	wait, err := h.accounts.TimeUntilDaily(ctx, targetID)
	if err != nil {
		return replyError(c, "balance", err)
	}
	if wait > 0 {
		return c.Reply(text + "\n⏳ Next daily in " + FormatDuration(wait))
	}
	return c.Reply(text + "\n🎁 Your daily reward is ready")
}

// HandleDaily handles !daily.
func (h *AccountHandler) HandleDaily(ctx context.Context, c *Context) error {
	res, err := h.accounts.ClaimDaily(ctx, c.Author.ID, c.Origin())
	if err != nil {
		return replyError(c, "daily", err)
	}

	if res.Status == service.ClaimTooSoon {
		return c.Replyf("⏳ You already claimed today. Come back in **%s**.", FormatDuration(res.Remaining))
	}

	var b strings.Builder
	b.WriteString("✅ Daily reward claimed!\n\n")
	b.WriteString("🎁 Reward: " + h.currency.Format(res.Amount) + "\n")
	if res.Bonus > 0 {
		b.WriteString("✨ Bonus: " + h.currency.Format(res.Bonus) + "\n")
	}
	if res.Streak > 1 {
		b.WriteString("🔥 Streak: day " + strconv.Itoa(res.Streak) + "\n")
	}
	b.WriteString("💰 Balance: " + h.currency.Format(res.Account.Balance))
	return c.Reply(b.String())
}

// replyError logs a failed command and tells the user to retry.
func replyError(c *Context, op string, err error) error {
	log.Error().Err(err).Str("op", op).Str("user_id", c.Author.ID).Str("guild_id", c.GuildID).Msg("Command failed")
	if errors.Is(err, service.ErrStorageUnavailable) {
		return c.Reply("❌ The bank is unavailable right now, please try again later.")
	}
	return c.Reply("❌ Something went wrong, please try again later.")
}
