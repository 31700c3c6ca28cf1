package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"discord-economy-bot/internal/model"
	"discord-economy-bot/internal/service"
)

const maxTopLimit = 25

// RankingHandler handles leaderboard and history commands.
type RankingHandler struct {
	ranking  *service.RankingService
	currency Currency
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(ranking *service.RankingService, currency Currency) *RankingHandler {
	return &RankingHandler{ranking: ranking, currency: currency}
}

// HandleTop handles !top [n].
func (h *RankingHandler) HandleTop(ctx context.Context, c *Context) error {
	limit := 10
	if len(c.Args) > 0 {
		n, err := strconv.Atoi(c.Args[0])
		if err != nil || n < 1 {
			return c.Reply("❌ Usage: `top [count]`")
		}
		limit = min(n, maxTopLimit)
	}

	entries, err := h.ranking.Top(ctx, limit)
	if err != nil {
		return replyError(c, "top", err)
	}
	if len(entries) == 0 {
		return c.Reply("🏆 Nobody is on the leaderboard yet.")
	}

	var b strings.Builder
	b.WriteString("🏆 **Richest players**\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%s %s: %s", medal(e.Rank), mention(e.UserID), h.currency.Format(e.Balance))
	}
	return c.Reply(b.String())
}

// HandleHistory handles !history: the author's recent activity.
func (h *RankingHandler) HandleHistory(ctx context.Context, c *Context) error {
	return h.replyHistory(ctx, c, c.Author.ID)
}

func (h *RankingHandler) replyHistory(ctx context.Context, c *Context, userID string) error {
	records, err := h.ranking.History(ctx, userID, 10)
	if err != nil {
		return replyError(c, "history", err)
	}
	if len(records) == 0 {
		return c.Replyf("📜 No activity for %s yet.", mention(userID))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📜 Recent activity for %s\n", mention(userID))
	for _, r := range records {
		fmt.Fprintf(&b, "\n<t:%d:R> %s", r.CreatedAt.Unix(), h.describe(r, userID))
	}
	return c.Reply(b.String())
}

// describe renders a record from userID's point of view.
func (h *RankingHandler) describe(r *model.TransactionRecord, userID string) string {
	amount := h.currency.Format(r.Amount)
	other := ""
	if r.CounterpartyID != nil {
		other = *r.CounterpartyID
	}
	incoming := other == userID && r.UserID != userID

	switch r.Type {
	case model.TxTypeTransfer:
		if incoming {
			return fmt.Sprintf("received %s from %s", amount, mention(r.UserID))
		}
		return fmt.Sprintf("sent %s to %s", amount, mention(other))
	case model.TxTypeTheft:
		switch {
		case incoming && r.Outcome == model.OutcomeSuccess:
			return fmt.Sprintf("robbed of %s by %s", amount, mention(r.UserID))
		case incoming:
			return fmt.Sprintf("fended off %s", mention(r.UserID))
		case r.Outcome == model.OutcomeSuccess:
			return fmt.Sprintf("stole %s from %s", amount, mention(other))
		}
		return fmt.Sprintf("fined %s robbing %s", amount, mention(other))
	case model.TxTypeDaily:
		return "daily reward " + amount
	case model.TxTypeProtection:
		return "bought protection for " + amount
	case model.TxTypeProtectionExtension:
		return "extended protection for " + amount
	case model.TxTypeAdminAdjust:
		if incoming {
			return fmt.Sprintf("adjusted by admin %s (%+d)", mention(r.UserID), r.Amount)
		}
		return fmt.Sprintf("adjusted %s (%+d)", mention(other), r.Amount)
	}
	return r.Type + " " + amount
}

func medal(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	}
	return "#" + strconv.Itoa(rank)
}
