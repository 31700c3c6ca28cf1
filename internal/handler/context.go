// Package handler provides the Discord command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"discord-economy-bot/internal/model"
)

// Messenger delivers replies. The bot package implements it over a Discord session.
type Messenger interface {
	Send(channelID, content string) error
	SendDM(userID, content string) error
}

// User is a message author or mentioned user.
type User struct {
	ID       string
	Username string
	Bot      bool
}

// Context is one incoming command.
type Context struct {
	Messenger

	GuildID   string
	ChannelID string
	Author    User
	Mentions  []User
	SelfID    string // the bot's own user id

	Command string   // lower-cased, without prefix
	Args    []string // words after the command
}

// HandlerFunc handles one command.
type HandlerFunc func(ctx context.Context, c *Context) error

// Reply sends text to the command's channel.
func (c *Context) Reply(text string) error {
	return c.Send(c.ChannelID, text)
}

// Replyf formats and sends text to the command's channel.
func (c *Context) Replyf(format string, args ...any) error {
	return c.Send(c.ChannelID, fmt.Sprintf(format, args...))
}

// Origin returns where the command was issued, for audit records.
func (c *Context) Origin() model.Origin {
	return model.Origin{GuildID: c.GuildID, ChannelID: c.ChannelID}
}

// Mentioned returns the mentioned user with id, if Discord resolved it.
func (c *Context) Mentioned(id string) (User, bool) {
	for _, u := range c.Mentions {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

// IsBotUser reports whether id belongs to a bot account, the bot itself included.
func (c *Context) IsBotUser(id string) bool {
	if id == c.SelfID {
		return true
	}
	u, ok := c.Mentioned(id)
	return ok && u.Bot
}

var (
	errBadMention = errors.New("invalid mention")
	errBadAmount  = errors.New("invalid amount")
)

// ParseMention extracts a user id from <@id> or <@!id>. A bare snowflake is
// accepted too.
func ParseMention(s string) (string, error) {
	id := s
	if strings.HasPrefix(s, "<@") && strings.HasSuffix(s, ">") {
		id = strings.TrimPrefix(strings.TrimSuffix(s, ">"), "<@")
		id = strings.TrimPrefix(id, "!")
	}
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return "", errBadMention
	}
	return id, nil
}

// ParseAmount parses a whole-coin amount. Thousands separators and a k suffix
// (1.5k) are accepted. Zero and negative values parse; callers validate them.
func ParseAmount(s string) (int64, error) {
	s = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), ",", "")
	if s == "" {
		return 0, errBadAmount
	}
	if strings.HasSuffix(s, "k") {
		f, err := strconv.ParseFloat(strings.TrimSuffix(s, "k"), 64)
		if err != nil || math.IsNaN(f) || math.Abs(f) > 1e15 {
			return 0, errBadAmount
		}
		return int64(f * 1000), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errBadAmount
	}
	return n, nil
}

// FormatDuration renders d as "2h 5m", "45m 10s" or "12s".
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	h := int64(d / time.Hour)
	m := int64(d % time.Hour / time.Minute)
	s := int64(d % time.Minute / time.Second)
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	case m > 0 && s > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%ds", s)
}

// Currency formats amounts for display.
type Currency struct {
	Name   string
	Symbol string
}

// Format renders n as "1,250 🪙".
func (c Currency) Format(n int64) string {
	sym := c.Symbol
	if sym == "" {
		sym = c.Name
	}
	return groupDigits(n) + " " + sym
}

func groupDigits(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 && !(neg && b.Len() == 1) {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func mention(id string) string {
	return "<@" + id + ">"
}
