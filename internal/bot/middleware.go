// Package bot provides middleware for the Discord bot.
package bot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"discord-economy-bot/internal/config"
	"discord-economy-bot/internal/handler"
	"discord-economy-bot/internal/pkg/metrics"
	"discord-economy-bot/internal/pkg/ratelimit"
)

// MiddlewareFunc wraps a command handler.
type MiddlewareFunc func(next handler.HandlerFunc) handler.HandlerFunc

// Chain applies middleware so the first one listed runs first.
func Chain(h handler.HandlerFunc, mws ...MiddlewareFunc) handler.HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// dmUsers tracks users who have used the bot in a whitelisted guild.
// Only they may use it by direct message while a whitelist is set.
type dmUsers struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

func newDMUsers() *dmUsers {
	return &dmUsers{users: make(map[string]struct{})}
}

func (d *dmUsers) allow(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[userID] = struct{}{}
}

func (d *dmUsers) allowed(userID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[userID]
	return ok
}

// WhitelistMiddleware drops commands from guilds outside the whitelist.
// Direct messages follow the dmUsers rule.
func WhitelistMiddleware(cfg *config.Config, dms *dmUsers) MiddlewareFunc {
	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(ctx context.Context, c *handler.Context) error {
			if c.GuildID == "" {
				if len(cfg.Whitelist.Guilds) == 0 || dms.allowed(c.Author.ID) {
					return next(ctx, c)
				}
				log.Debug().Str("user_id", c.Author.ID).Msg("Ignoring direct message from unknown user")
				return nil
			}

			if !cfg.IsGuildAllowed(c.GuildID) {
				log.Debug().Str("guild_id", c.GuildID).Msg("Ignoring command from non-whitelisted guild")
				return nil
			}

			dms.allow(c.Author.ID)
			return next(ctx, c)
		}
	}
}

// AdminMiddleware rejects commands from users outside admin.ids.
func AdminMiddleware(cfg *config.Config) MiddlewareFunc {
	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(ctx context.Context, c *handler.Context) error {
			if !cfg.IsAdmin(c.Author.ID) {
				log.Warn().
					Str("user_id", c.Author.ID).
					Str("command", c.Command).
					Msg("Non-admin attempted admin command")
				return c.Reply("❌ This command is for admins only.")
			}
			return next(ctx, c)
		}
	}
}

// RateLimitMiddleware bounds how often one user may run commands.
func RateLimitMiddleware(limiter ratelimit.Limiter, m *metrics.Metrics) MiddlewareFunc {
	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(ctx context.Context, c *handler.Context) error {
			if !limiter.Allow(ctx, c.Author.ID) {
				m.RateLimited(c.Command)
				log.Debug().Str("user_id", c.Author.ID).Str("command", c.Command).Msg("Command rate limited")
				return c.Reply("⏳ Slow down a little and try again in a few seconds.")
			}
			return next(ctx, c)
		}
	}
}

// LoggingMiddleware logs every command and records its latency.
func LoggingMiddleware(m *metrics.Metrics) MiddlewareFunc {
	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(ctx context.Context, c *handler.Context) error {
			start := time.Now()
			err := next(ctx, c)
			took := time.Since(start)

			status := "ok"
			if err != nil {
				status = "error"
			}
			m.Command(c.Command, status, took)

			log.Debug().
				Str("user_id", c.Author.ID).
				Str("username", c.Author.Username).
				Str("guild_id", c.GuildID).
				Str("channel_id", c.ChannelID).
				Str("command", c.Command).
				Strs("args", c.Args).
				Str("status", status).
				Dur("took", took).
				Msg("Handled command")
			return err
		}
	}
}

// RecoveryMiddleware turns a handler panic into an error reply.
func RecoveryMiddleware() MiddlewareFunc {
	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(ctx context.Context, c *handler.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("command", c.Command).
						Msg("Recovered from panic in handler")
					err = c.Reply("❌ Something went wrong, please try again later.")
				}
			}()
			return next(ctx, c)
		}
	}
}
