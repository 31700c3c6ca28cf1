package handler

import (
	"context"
	"fmt"
	"strings"

	"discord-economy-bot/internal/service"
)

// ProtectionHandler handles the protect command.
type ProtectionHandler struct {
	protection *service.ProtectionService
	currency   Currency
}

// NewProtectionHandler creates a new ProtectionHandler.
func NewProtectionHandler(protection *service.ProtectionService, currency Currency) *ProtectionHandler {
	return &ProtectionHandler{protection: protection, currency: currency}
}

// HandleProtect handles:
//
//	!protect             status
//	!protect tiers       price list
//	!protect <tier>      buy, same as !protect buy <tier>
//	!protect extend <tier>
func (h *ProtectionHandler) HandleProtect(ctx context.Context, c *Context) error {
	if len(c.Args) == 0 {
		return h.status(ctx, c)
	}

	sub := strings.ToLower(c.Args[0])
	switch sub {
	case "status":
		return h.status(ctx, c)
	case "tiers", "list", "prices":
		return c.Reply(h.tierList())
	case "buy", "extend":
		if len(c.Args) < 2 {
			return c.Replyf("❌ Usage: `protect %s <tier>`\n%s", sub, h.tierList())
		}
		return h.buy(ctx, c, sub == "extend", c.Args[1])
	default:
		return h.buy(ctx, c, false, sub)
	}
}

func (h *ProtectionHandler) status(ctx context.Context, c *Context) error {
	state, err := h.protection.Status(ctx, c.Author.ID)
	if err != nil {
		return replyError(c, "protect", err)
	}
	if !state.Protected {
		return c.Replyf("🔓 You are not protected.\n%s", h.tierList())
	}
	return c.Replyf("🛡️ You are protected for another **%s** (until <t:%d:f>).",
		FormatDuration(state.Remaining), state.ExpiresAt.Unix())
}

func (h *ProtectionHandler) buy(ctx context.Context, c *Context, extend bool, tierKey string) error {
	var (
		res *service.ProtectionResult
		err error
	)
	if extend {
		res, err = h.protection.Extend(ctx, c.Author.ID, tierKey, c.Origin())
	} else {
		res, err = h.protection.Purchase(ctx, c.Author.ID, tierKey, c.Origin())
	}
	if err != nil {
		return replyError(c, "protect", err)
	}

	switch res.Status {
	case service.ProtectionInvalidTier:
		return c.Replyf("❌ Unknown tier `%s`.\n%s", tierKey, h.tierList())
	case service.ProtectionAlreadyProtected:
		return c.Replyf("🛡️ You are already protected for **%s**. Use `protect extend <tier>` to add time.",
			FormatDuration(res.Remaining))
	case service.ProtectionNotProtected:
		return c.Reply("❌ You have no active protection to extend. Buy one with `protect <tier>`.")
	case service.ProtectionInsufficientFunds:
		balance := int64(0)
		if res.Account != nil {
			balance = res.Account.Balance
		}
		return c.Replyf("❌ The %s tier costs %s. You have %s.",
			res.Tier.Key, h.currency.Format(res.Tier.Price), h.currency.Format(balance))
	}

	verb := "Protection bought"
	if extend {
		verb = "Protection extended"
	}
	return c.Replyf("✅ %s for %s.\n🛡️ Protected for **%s** (until <t:%d:f>)\n💰 Balance: %s",
		verb, h.currency.Format(res.Tier.Price), FormatDuration(res.Remaining), res.ExpiresAt.Unix(),
		h.currency.Format(res.Account.Balance))
}

func (h *ProtectionHandler) tierList() string {
	var b strings.Builder
	b.WriteString("🏷️ Protection tiers:")
	for _, t := range h.protection.Catalog().Tiers() {
		fmt.Fprintf(&b, "\n• `%s`: %s", t.Key, h.currency.Format(t.Price))
	}
	return b.String()
}
