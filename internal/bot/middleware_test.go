package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"discord-economy-bot/internal/config"
	"discord-economy-bot/internal/handler"
	"discord-economy-bot/internal/pkg/metrics"
	"discord-economy-bot/internal/pkg/ratelimit"
)

type recorder struct {
	replies []string
}

func (r *recorder) Send(_, content string) error {
	r.replies = append(r.replies, content)
	return nil
}

func (r *recorder) SendDM(_, content string) error {
	r.replies = append(r.replies, content)
	return nil
}

func newContext(rec *recorder, guildID, userID, command string) *handler.Context {
	return &handler.Context{
		Messenger: rec,
		GuildID:   guildID,
		ChannelID: "chan",
		Author:    handler.User{ID: userID, Username: "u" + userID},
		Command:   command,
	}
}

// counting returns a handler that counts its calls.
func counting(calls *int) handler.HandlerFunc {
	return func(context.Context, *handler.Context) error {
		*calls++
		return nil
	}
}

func snowflakes(t *rapid.T, label string) []string {
	n := rapid.IntRange(1, 10).Draw(t, label+"Count")
	ids := make([]string, n)
	for i := range ids {
		ids[i] = strconv.FormatInt(rapid.Int64Range(1, 1_000_000).Draw(t, label), 10)
	}
	return ids
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Admin commands run if and only if the author is in admin.ids.
func TestAdminMiddlewareProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		admins := snowflakes(t, "adminID")
		cfg := &config.Config{Admin: config.AdminConfig{IDs: admins}}
		userID := strconv.FormatInt(rapid.Int64Range(1, 1_000_000).Draw(t, "userID"), 10)

		var calls int
		rec := &recorder{}
		err := AdminMiddleware(cfg)(counting(&calls))(context.Background(), newContext(rec, "g", userID, "addcoins"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if want := contains(admins, userID); (calls == 1) != want {
			t.Fatalf("admin check mismatch: user=%s admins=%v ran=%v", userID, admins, calls == 1)
		}
		if calls == 0 && (len(rec.replies) != 1 || !strings.Contains(rec.replies[0], "admins only")) {
			t.Fatalf("non-admin got replies %v", rec.replies)
		}
	})
}

// Guild commands run if and only if the guild is whitelisted, or the whitelist is empty.
func TestWhitelistMiddlewareProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var guilds []string
		if rapid.Bool().Draw(t, "restricted") {
			guilds = snowflakes(t, "guildID")
		}
		cfg := &config.Config{Whitelist: config.WhitelistConfig{Guilds: guilds}}
		guildID := strconv.FormatInt(rapid.Int64Range(1, 1_000_000).Draw(t, "testGuild"), 10)

		var calls int
		rec := &recorder{}
		mw := WhitelistMiddleware(cfg, newDMUsers())
		if err := mw(counting(&calls))(context.Background(), newContext(rec, guildID, "1", "daily")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := len(guilds) == 0 || contains(guilds, guildID)
		if (calls == 1) != want {
			t.Fatalf("whitelist mismatch: guild=%s whitelist=%v ran=%v", guildID, guilds, calls == 1)
		}
		if len(rec.replies) != 0 {
			t.Fatalf("dropped commands must be silent, got %v", rec.replies)
		}
	})
}

func TestWhitelistDirectMessages(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	var calls int

	open := WhitelistMiddleware(&config.Config{}, newDMUsers())(counting(&calls))
	require.NoError(t, open(ctx, newContext(rec, "", "7", "balance")))
	assert.Equal(t, 1, calls, "an empty whitelist allows direct messages")

	calls = 0
	cfg := &config.Config{Whitelist: config.WhitelistConfig{Guilds: []string{"42"}}}
	h := WhitelistMiddleware(cfg, newDMUsers())(counting(&calls))

	require.NoError(t, h(ctx, newContext(rec, "", "7", "balance")))
	assert.Equal(t, 0, calls, "unknown users may not DM the bot")

	require.NoError(t, h(ctx, newContext(rec, "42", "7", "balance")))
	require.NoError(t, h(ctx, newContext(rec, "", "7", "balance")))
	assert.Equal(t, 2, calls, "a user seen in a whitelisted guild may DM the bot")

	require.NoError(t, h(ctx, newContext(rec, "", "8", "balance")))
	assert.Equal(t, 2, calls)
}

func TestRateLimitMiddleware(t *testing.T) {
	m := metrics.New()
	limiter := ratelimit.NewLocalLimiter(2, time.Minute)
	var calls int
	rec := &recorder{}
	h := RateLimitMiddleware(limiter, m)(counting(&calls))

	for range 3 {
		require.NoError(t, h(context.Background(), newContext(rec, "g", "1", "daily")))
	}
	require.NoError(t, h(context.Background(), newContext(rec, "g", "2", "daily")))

	assert.Equal(t, 3, calls, "the third command from user 1 is blocked")
	require.Len(t, rec.replies, 1)
	assert.Contains(t, rec.replies[0], "Slow down")

	expected := `
# HELP rate_limiter_blocked_total Commands blocked by the rate limiter
# TYPE rate_limiter_blocked_total counter
rate_limiter_blocked_total{command="daily"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "rate_limiter_blocked_total"))
}

func TestLoggingMiddlewareRecordsStatus(t *testing.T) {
	m := metrics.New()
	rec := &recorder{}
	failing := func(context.Context, *handler.Context) error { return errors.New("send failed") }
	ok := func(context.Context, *handler.Context) error { return nil }

	err := LoggingMiddleware(m)(failing)(context.Background(), newContext(rec, "g", "1", "pay"))
	require.Error(t, err)
	require.NoError(t, LoggingMiddleware(m)(ok)(context.Background(), newContext(rec, "g", "1", "pay")))

	expected := `
# HELP bot_commands_total Bot commands handled by command and status
# TYPE bot_commands_total counter
bot_commands_total{command="pay",status="error"} 1
bot_commands_total{command="pay",status="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "bot_commands_total"))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var calls int
	h := Chain(counting(&calls), LoggingMiddleware(nil), RateLimitMiddleware(ratelimit.NewLocalLimiter(1, time.Minute), nil))
	rec := &recorder{}
	require.NoError(t, h(context.Background(), newContext(rec, "g", "1", "top")))
	require.NoError(t, h(context.Background(), newContext(rec, "g", "1", "top")))
	assert.Equal(t, 1, calls)
}

func TestRecoveryMiddleware(t *testing.T) {
	rec := &recorder{}
	panicking := func(context.Context, *handler.Context) error { panic("boom") }

	err := RecoveryMiddleware()(panicking)(context.Background(), newContext(rec, "g", "1", "rob"))
	require.NoError(t, err)
	require.Len(t, rec.replies, 1)
	assert.Contains(t, rec.replies[0], "Something went wrong")
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) MiddlewareFunc {
		return func(next handler.HandlerFunc) handler.HandlerFunc {
			return func(ctx context.Context, c *handler.Context) error {
				order = append(order, name)
				return next(ctx, c)
			}
		}
	}
	h := Chain(func(context.Context, *handler.Context) error {
		order = append(order, "handler")
		return nil
	}, tag("a"), tag("b"), tag("c"))

	require.NoError(t, h(context.Background(), newContext(&recorder{}, "g", "1", "x")))
	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)
}
