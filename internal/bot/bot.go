// Package bot provides the Discord session setup and command registration.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"discord-economy-bot/internal/config"
	"discord-economy-bot/internal/game/rob"
	"discord-economy-bot/internal/handler"
	"discord-economy-bot/internal/pkg/metrics"
	"discord-economy-bot/internal/pkg/ratelimit"
	"discord-economy-bot/internal/service"
)

const commandTimeout = 10 * time.Second

// Dependencies holds everything the command handlers need.
type Dependencies struct {
	Config     *config.Config
	Accounts   *service.AccountService
	Transfers  *service.TransferService
	Ranking    *service.RankingService
	Protection *service.ProtectionService
	RobGame    *rob.RobGame
	Limiter    ratelimit.Limiter
	Metrics    *metrics.Metrics
}

// Bot wraps the Discord session with the command router.
type Bot struct {
	session *discordgo.Session
	cfg     *config.Config
	router  *Router
}

// New creates the Discord session and registers every command.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Discord.Token == "" {
		return nil, errors.New("discord token is required")
	}

	session, err := discordgo.New("Bot " + deps.Config.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	b := &Bot{
		session: session,
		cfg:     deps.Config,
		router:  NewRouter(deps.Config.Discord.Prefix),
	}
	registerCommands(b.router, deps)

	session.AddHandler(b.ready)
	session.AddHandler(b.messageCreate)
	return b, nil
}

// registerCommands wires the handlers into r. Split from New so tests can
// drive the router without a session.
func registerCommands(r *Router, deps *Dependencies) {
	cfg := deps.Config
	currency := handler.Currency{Name: cfg.Economy.CurrencyName, Symbol: cfg.Economy.CurrencySymbol}

	accounts := handler.NewAccountHandler(deps.Accounts, currency)
	transfers := handler.NewTransferHandler(deps.Transfers, currency)
	robs := handler.NewRobHandler(deps.RobGame, currency)
	protection := handler.NewProtectionHandler(deps.Protection, currency)
	ranking := handler.NewRankingHandler(deps.Ranking, currency)
	admin := handler.NewAdminHandler(deps.Accounts, ranking, currency)

	base := []MiddlewareFunc{
		RecoveryMiddleware(),
		WhitelistMiddleware(cfg, newDMUsers()),
		LoggingMiddleware(deps.Metrics),
		RateLimitMiddleware(deps.Limiter, deps.Metrics),
	}
	admins := append(base[:len(base):len(base)], AdminMiddleware(cfg))

	r.Register(Command{Name: "balance", Aliases: []string{"bal"}, Usage: "balance [@user]", Help: "show a balance", Handler: accounts.HandleBalance}, base...)
	r.Register(Command{Name: "daily", Usage: "daily", Help: "claim the daily reward", Handler: accounts.HandleDaily}, base...)
	r.Register(Command{Name: "pay", Aliases: []string{"give"}, Usage: "pay @user <amount|all>", Help: "send coins", Handler: transfers.HandlePay}, base...)
	r.Register(Command{Name: "rob", Aliases: []string{"steal"}, Usage: "rob @user", Help: "try to steal from someone", Handler: robs.HandleRob}, base...)
	r.Register(Command{Name: "protect", Aliases: []string{"shield"}, Usage: "protect [tier|extend <tier>]", Help: "buy theft protection", Handler: protection.HandleProtect}, base...)
	r.Register(Command{Name: "top", Aliases: []string{"leaderboard", "lb"}, Usage: "top [count]", Help: "richest players", Handler: ranking.HandleTop}, base...)
	r.Register(Command{Name: "history", Usage: "history", Help: "your recent activity", Handler: ranking.HandleHistory}, base...)

	r.Register(Command{Name: "addcoins", Usage: "addcoins @user <amount>", Help: "credit a user", Admin: true, Handler: admin.HandleGive}, admins...)
	r.Register(Command{Name: "takecoins", Usage: "takecoins @user <amount>", Help: "debit a user", Admin: true, Handler: admin.HandleTake}, admins...)
	r.Register(Command{Name: "setlevel", Usage: "setlevel @user <level>", Help: "set a level", Admin: true, Handler: admin.HandleSetLevel}, admins...)
	r.Register(Command{Name: "resetdaily", Usage: "resetdaily @user", Help: "clear a daily cooldown", Admin: true, Handler: admin.HandleResetDaily}, admins...)
	r.Register(Command{Name: "inspect", Usage: "inspect @user", Help: "another user's activity", Admin: true, Handler: admin.HandleInspect}, admins...)

	r.Register(Command{Name: "help", Usage: "help", Help: "this list", Handler: func(ctx context.Context, c *handler.Context) error {
		return c.Reply(r.HelpText(cfg.IsAdmin(c.Author.ID)))
	}}, base...)
}

// Start opens the gateway connection.
func (b *Bot) Start() error {
	log.Info().Msg("Starting bot...")
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	if err := b.session.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close discord session")
	}
}

func (b *Bot) ready(_ *discordgo.Session, r *discordgo.Ready) {
	log.Info().
		Str("user", r.User.Username).
		Int("guilds", len(r.Guilds)).
		Msg("Connected to Discord")
}

func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	command, args, ok := b.router.Parse(m.Content)
	if !ok {
		return
	}

	c := &handler.Context{
		Messenger: sessionMessenger{s},
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Author:    userFrom(m.Author),
		Command:   command,
		Args:      args,
	}
	if s.State != nil && s.State.User != nil {
		c.SelfID = s.State.User.ID
	}
	for _, u := range m.Mentions {
		c.Mentions = append(c.Mentions, userFrom(u))
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := b.router.Dispatch(ctx, c); err != nil {
		log.Error().Err(err).Str("command", command).Str("channel_id", m.ChannelID).Msg("Failed to reply")
	}
}

func userFrom(u *discordgo.User) handler.User {
	return handler.User{ID: u.ID, Username: u.Username, Bot: u.Bot}
}

// sessionMessenger sends replies over the Discord REST API.
type sessionMessenger struct {
	s *discordgo.Session
}

func (m sessionMessenger) Send(channelID, content string) error {
	_, err := m.s.ChannelMessageSend(channelID, content)
	return err
}

func (m sessionMessenger) SendDM(userID, content string) error {
	ch, err := m.s.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	_, err = m.s.ChannelMessageSend(ch.ID, content)
	return err
}
