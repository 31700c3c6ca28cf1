package handler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"discord-economy-bot/internal/game/rob"
)

// RobHandler handles the rob command.
type RobHandler struct {
	game     *rob.RobGame
	currency Currency
}

// NewRobHandler creates a new RobHandler.
func NewRobHandler(game *rob.RobGame, currency Currency) *RobHandler {
	return &RobHandler{game: game, currency: currency}
}

// HandleRob handles !rob @user. The victim is told by DM how it went.
func (h *RobHandler) HandleRob(ctx context.Context, c *Context) error {
	if len(c.Args) < 1 {
		return h.replyCooldown(ctx, c)
	}
	targetID, err := ParseMention(c.Args[0])
	if err != nil {
		return c.Reply("❌ Usage: `rob @user`")
	}

	res, err := h.game.Attempt(ctx, rob.TheftRequest{
		AttackerID:  c.Author.ID,
		TargetID:    targetID,
		TargetIsBot: c.IsBotUser(targetID),
		Origin:      c.Origin(),
	})
	if err != nil {
		return replyError(c, "rob", err)
	}

	switch res.Status {
	case rob.TheftBlocked:
		return c.Reply(h.blockedMessage(res))

	case rob.TheftSuccess:
		h.notifyVictim(c, targetID, fmt.Sprintf("🚨 %s robbed you in <#%s> and got away with **%s**. Buy protection with `protect 3h`.",
			mention(c.Author.ID), c.ChannelID, h.currency.Format(res.Amount)))
		return c.Replyf("🦹 Success! You stole **%s** from %s (%d%% odds).\n💰 Your balance: %s\n⏳ Next attempt in %s",
			h.currency.Format(res.Amount), mention(targetID), res.Chance,
			h.currency.Format(res.Attacker.Balance), FormatDuration(res.Cooldown))

	default:
		h.notifyVictim(c, targetID, fmt.Sprintf("🛡️ %s tried to rob you in <#%s> and got caught.",
			mention(c.Author.ID), c.ChannelID))
		return c.Replyf("🚔 Caught! %s spotted you and you paid a fine of **%s**.\n💰 Your balance: %s\n⏳ Next attempt in %s",
			mention(targetID), h.currency.Format(res.Amount),
			h.currency.Format(res.Attacker.Balance), FormatDuration(res.Cooldown))
	}
}

func (h *RobHandler) replyCooldown(ctx context.Context, c *Context) error {
	remaining, err := h.game.Cooldown(ctx, c.Author.ID)
	if err != nil {
		return replyError(c, "rob", err)
	}
	if remaining > 0 {
		return c.Replyf("⏳ You can rob again in **%s**.\nUsage: `rob @user`", FormatDuration(remaining))
	}
	return c.Reply("🦹 You're ready. Usage: `rob @user`")
}

func (h *RobHandler) blockedMessage(res *rob.TheftResult) string {
	p := h.game.Policy()
	switch res.Reason {
	case rob.BlockSelfTarget:
		return "❌ You can't rob yourself."
	case rob.BlockInvalidTarget:
		return "❌ That account can't be robbed."
	case rob.BlockCooldown:
		return fmt.Sprintf("⏳ Lay low for a while. You can rob again in **%s**.", FormatDuration(res.Remaining))
	case rob.BlockTargetProtected:
		return fmt.Sprintf("🛡️ That user is protected for another **%s**.", FormatDuration(res.Remaining))
	case rob.BlockAttackerTooPoor:
		return fmt.Sprintf("❌ You need at least %s to attempt a robbery.", h.currency.Format(p.MinAttackerBalance))
	case rob.BlockTargetTooPoor:
		return fmt.Sprintf("❌ That user has %s or less. Not worth it.", h.currency.Format(p.MinTargetBalance))
	}
	return "❌ You can't rob that user right now."
}

func (h *RobHandler) notifyVictim(c *Context, victimID, text string) {
	if err := c.SendDM(victimID, text); err != nil {
		log.Warn().Err(err).Str("user_id", victimID).Msg("Failed to notify theft victim")
	}
}
