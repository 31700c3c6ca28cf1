package handler

import (
	"context"
	"strings"

	"discord-economy-bot/internal/service"
)

// TransferHandler handles the pay command.
type TransferHandler struct {
	transfers *service.TransferService
	currency  Currency
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(transfers *service.TransferService, currency Currency) *TransferHandler {
	return &TransferHandler{transfers: transfers, currency: currency}
}

// HandlePay handles !pay @user <amount|all>.
func (h *TransferHandler) HandlePay(ctx context.Context, c *Context) error {
	const usage = "❌ Usage: `pay @user <amount|all>`"
	if len(c.Args) < 2 {
		return c.Reply(usage)
	}
	recipientID, err := ParseMention(c.Args[0])
	if err != nil {
		return c.Reply(usage)
	}
	if c.IsBotUser(recipientID) {
		return c.Reply("❌ Bots don't need your money.")
	}

	req := service.TransferRequest{
		SenderID:    c.Author.ID,
		RecipientID: recipientID,
		Origin:      c.Origin(),
	}

	var res *service.TransferResult
	if strings.EqualFold(c.Args[1], "all") {
		res, err = h.transfers.TransferAll(ctx, req)
	} else {
		if req.Amount, err = ParseAmount(c.Args[1]); err != nil {
			return c.Reply("❌ Amount must be a whole number, e.g. `250` or `1.5k`.")
		}
		res, err = h.transfers.Transfer(ctx, req)
	}
	if err != nil {
		return replyError(c, "pay", err)
	}

	switch res.Status {
	case service.TransferSelf:
		return c.Reply("❌ You can't pay yourself.")
	case service.TransferInvalidAmount:
		return c.Reply("❌ Amount must be greater than 0.")
	case service.TransferBelowMinimum:
		return c.Replyf("❌ The minimum transfer is %s.", h.currency.Format(res.MinTransfer))
	case service.TransferInsufficientFunds:
		return c.Replyf("❌ Not enough funds. You have %s.", h.currency.Format(res.Balance))
	}

	return c.Replyf("✅ Sent **%s** to %s\n💰 Your balance: %s",
		h.currency.Format(res.Amount), mention(recipientID), h.currency.Format(res.Sender.Balance))
}
