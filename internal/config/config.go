// Package config provides configuration management using viper.
// It supports loading from YAML files, a .env file and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Discord    DiscordConfig    `mapstructure:"discord"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Redis      RedisConfig      `mapstructure:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Whitelist  WhitelistConfig  `mapstructure:"whitelist"`
	Economy    EconomyConfig    `mapstructure:"economy"`
	Daily      DailyConfig      `mapstructure:"daily"`
	Theft      TheftConfig      `mapstructure:"theft"`
	Protection ProtectionConfig `mapstructure:"protection"`
	Janitor    JanitorConfig    `mapstructure:"janitor"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        LogConfig        `mapstructure:"log"`
}

// DiscordConfig holds Discord bot configuration.
type DiscordConfig struct {
	Token  string `mapstructure:"token"`
	Prefix string `mapstructure:"prefix"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory" // detached mode, local testing only
)

// StorageConfig selects the account store.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// RedisConfig holds the rate limiter's redis connection. An empty Addr
// selects the in-process limiter.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RateLimitConfig bounds commands per user per window.
type RateLimitConfig struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []string `mapstructure:"ids"`
}

// WhitelistConfig holds guild whitelist configuration.
type WhitelistConfig struct {
	Guilds []string `mapstructure:"guilds"`
}

// EconomyConfig holds account and transfer settings.
type EconomyConfig struct {
	InitialBalance  int64    `mapstructure:"initial_balance"`
	MinTransfer     int64    `mapstructure:"min_transfer"`
	CurrencyName    string   `mapstructure:"currency_name"`
	CurrencySymbol  string   `mapstructure:"currency_symbol"`
	ServiceAccounts []string `mapstructure:"service_accounts"`
}

// DailyConfig holds daily reward configuration.
type DailyConfig struct {
	Reward              int64 `mapstructure:"reward"`
	CooldownSeconds     int64 `mapstructure:"cooldown_seconds"`
	StreakWindowSeconds int64 `mapstructure:"streak_window_seconds"`
	MaxRandomBonus      int64 `mapstructure:"max_random_bonus"`
	StreakStepPercent   int64 `mapstructure:"streak_step_percent"`
	StreakCapPercent    int64 `mapstructure:"streak_cap_percent"`
}

// Cooldown returns the claim cooldown.
func (d DailyConfig) Cooldown() time.Duration {
	return time.Duration(d.CooldownSeconds) * time.Second
}

// StreakWindow returns the window within which a claim continues a streak.
func (d DailyConfig) StreakWindow() time.Duration {
	return time.Duration(d.StreakWindowSeconds) * time.Second
}

// TheftConfig holds theft odds, payout and cooldown settings.
type TheftConfig struct {
	MinAttackerBalance int64 `mapstructure:"min_attacker_balance"`
	MinTargetBalance   int64 `mapstructure:"min_target_balance"` // target must hold strictly more

	BaseChanceMin  int64 `mapstructure:"base_chance_min"`
	BaseChanceMax  int64 `mapstructure:"base_chance_max"`
	LevelBonusStep int64 `mapstructure:"level_bonus_step"`
	LevelBonusCap  int64 `mapstructure:"level_bonus_cap"`
	LevelMalusStep int64 `mapstructure:"level_malus_step"`
	LevelMalusCap  int64 `mapstructure:"level_malus_cap"`
	ChanceFloor    int64 `mapstructure:"chance_floor"`
	ChanceCeiling  int64 `mapstructure:"chance_ceiling"`

	StealMinPercent float64 `mapstructure:"steal_min_percent"`
	StealMaxPercent float64 `mapstructure:"steal_max_percent"`
	MaxTheftPercent float64 `mapstructure:"max_theft_percent"`
	FineMinPercent  float64 `mapstructure:"fine_min_percent"`
	FineMaxPercent  float64 `mapstructure:"fine_max_percent"`
	FineCap         int64   `mapstructure:"fine_cap"`
	FallbackMax     int64   `mapstructure:"fallback_max"`

	SuccessCooldownMin time.Duration `mapstructure:"success_cooldown_min"`
	SuccessCooldownMax time.Duration `mapstructure:"success_cooldown_max"`
	FailureCooldownMin time.Duration `mapstructure:"failure_cooldown_min"`
	FailureCooldownMax time.Duration `mapstructure:"failure_cooldown_max"`
}

// TierConfig is one priced protection duration.
type TierConfig struct {
	Key      string        `mapstructure:"key"`
	Duration time.Duration `mapstructure:"duration"`
	Price    int64         `mapstructure:"price"`
}

// ProtectionConfig holds the protection tier table.
type ProtectionConfig struct {
	Tiers []TierConfig `mapstructure:"tiers"`
}

// JanitorConfig controls the expired-row cleanup loop.
type JanitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// HTTPConfig holds the ops server address. Empty disables it.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in configPath, the working directory and ./config.
// A .env file in the working directory is loaded first when present.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. DISCORD_TOKEN, DATABASE_HOST, STORAGE_DRIVER
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration with every default applied and no file
// or environment input. Tests build on it.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: defaults do not unmarshal: %v", err))
	}
	return &cfg
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Keys without a default are invisible to AutomaticEnv, so secrets and
	// lists get empty defaults to stay settable from the environment.
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.prefix", "!")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "economy")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "economy")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("storage.driver", DriverPostgres)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("ratelimit.max", 5)
	v.SetDefault("ratelimit.window", "10s")

	v.SetDefault("admin.ids", []string{})
	v.SetDefault("whitelist.guilds", []string{})

	// Economy defaults
	v.SetDefault("economy.initial_balance", 1000)
	v.SetDefault("economy.min_transfer", 10)
	v.SetDefault("economy.currency_name", "coins")
	v.SetDefault("economy.currency_symbol", "🪙")
	v.SetDefault("economy.service_accounts", []string{})

	// Daily reward defaults
	v.SetDefault("daily.reward", 200)
	v.SetDefault("daily.cooldown_seconds", 86400)
	v.SetDefault("daily.streak_window_seconds", 108000)
	v.SetDefault("daily.max_random_bonus", 100)
	v.SetDefault("daily.streak_step_percent", 10)
	v.SetDefault("daily.streak_cap_percent", 100)

	// Theft defaults
	v.SetDefault("theft.min_attacker_balance", 1000)
	v.SetDefault("theft.min_target_balance", 100)
	v.SetDefault("theft.base_chance_min", 40)
	v.SetDefault("theft.base_chance_max", 75)
	v.SetDefault("theft.level_bonus_step", 5)
	v.SetDefault("theft.level_bonus_cap", 20)
	v.SetDefault("theft.level_malus_step", 3)
	v.SetDefault("theft.level_malus_cap", 15)
	v.SetDefault("theft.chance_floor", 30)
	v.SetDefault("theft.chance_ceiling", 90)
	v.SetDefault("theft.steal_min_percent", 0.10)
	v.SetDefault("theft.steal_max_percent", 0.35)
	v.SetDefault("theft.max_theft_percent", 0.75)
	v.SetDefault("theft.fine_min_percent", 0.05)
	v.SetDefault("theft.fine_max_percent", 0.15)
	v.SetDefault("theft.fine_cap", 5000)
	v.SetDefault("theft.fallback_max", 100)
	v.SetDefault("theft.success_cooldown_min", "1h")
	v.SetDefault("theft.success_cooldown_max", "3h")
	v.SetDefault("theft.failure_cooldown_min", "1h")
	v.SetDefault("theft.failure_cooldown_max", "2h")

	v.SetDefault("protection.tiers", []map[string]any{
		{"key": "3h", "duration": "3h", "price": 2500},
		{"key": "8h", "duration": "8h", "price": 5000},
		{"key": "24h", "duration": "24h", "price": 15000},
	})

	v.SetDefault("janitor.interval", "10m")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
}

// Validate rejects inconsistent values.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Storage.Driver == DriverPostgres || c.Storage.Driver == DriverMemory,
		"storage.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Storage.Driver)
	check(c.Economy.InitialBalance >= 0, "economy.initial_balance must be >= 0")
	check(c.Economy.MinTransfer > 0, "economy.min_transfer must be > 0")

	d := c.Daily
	check(d.Reward >= 0, "daily.reward must be >= 0")
	check(d.CooldownSeconds > 0, "daily.cooldown_seconds must be > 0")
	check(d.StreakWindowSeconds >= d.CooldownSeconds, "daily.streak_window_seconds must be >= daily.cooldown_seconds")
	check(d.MaxRandomBonus >= 0, "daily.max_random_bonus must be >= 0")
	check(d.StreakStepPercent >= 0 && d.StreakCapPercent >= 0, "daily streak percents must be >= 0")

	t := c.Theft
	check(t.BaseChanceMin <= t.BaseChanceMax, "theft.base_chance_min must be <= theft.base_chance_max")
	check(t.ChanceFloor <= t.ChanceCeiling, "theft.chance_floor must be <= theft.chance_ceiling")
	check(t.ChanceFloor >= 0 && t.ChanceCeiling <= 100, "theft chance bounds must lie in [0, 100]")
	check(t.StealMinPercent > 0 && t.StealMinPercent <= t.StealMaxPercent, "theft steal percents must satisfy 0 < min <= max")
	check(t.MaxTheftPercent > 0 && t.MaxTheftPercent <= 1, "theft.max_theft_percent must lie in (0, 1]")
	check(t.FineMinPercent > 0 && t.FineMinPercent <= t.FineMaxPercent, "theft fine percents must satisfy 0 < min <= max")
	check(t.FineCap > 0, "theft.fine_cap must be > 0")
	check(t.FallbackMax >= 1, "theft.fallback_max must be >= 1")
	check(t.SuccessCooldownMin > 0 && t.SuccessCooldownMin <= t.SuccessCooldownMax, "theft success cooldown range is invalid")
	check(t.FailureCooldownMin > 0 && t.FailureCooldownMin <= t.FailureCooldownMax, "theft failure cooldown range is invalid")

	check(len(c.Protection.Tiers) > 0, "protection.tiers must not be empty")
	seen := make(map[string]bool, len(c.Protection.Tiers))
	for _, tier := range c.Protection.Tiers {
		check(tier.Key != "", "protection tier key must not be empty")
		check(!seen[tier.Key], "protection tier %q is duplicated", tier.Key)
		check(tier.Duration > 0, "protection tier %q duration must be > 0", tier.Key)
		check(tier.Price > 0, "protection tier %q price must be > 0", tier.Key)
		seen[tier.Key] = true
	}

	check(c.RateLimit.Max > 0 && c.RateLimit.Window > 0, "ratelimit max and window must be > 0")
	check(c.Janitor.Interval > 0, "janitor.interval must be > 0")

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsGuildAllowed checks if a guild ID is in the whitelist.
func (c *Config) IsGuildAllowed(guildID string) bool {
	// Empty whitelist means all guilds are allowed
	if len(c.Whitelist.Guilds) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Guilds {
		if id == guildID {
			return true
		}
	}
	return false
}

// IsServiceAccount reports whether userID is a configured non-player account.
func (c *Config) IsServiceAccount(userID string) bool {
	for _, id := range c.Economy.ServiceAccounts {
		if id == userID {
			return true
		}
	}
	return false
}
