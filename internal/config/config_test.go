package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, int64(1000), cfg.Economy.InitialBalance)
	assert.Equal(t, int64(10), cfg.Economy.MinTransfer)
	assert.Equal(t, int64(200), cfg.Daily.Reward)
	assert.Equal(t, 24*time.Hour, cfg.Daily.Cooldown())
	assert.Equal(t, 30*time.Hour, cfg.Daily.StreakWindow())
	assert.Equal(t, int64(1000), cfg.Theft.MinAttackerBalance)
	assert.Equal(t, 3*time.Hour, cfg.Theft.SuccessCooldownMax)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)

	require.Len(t, cfg.Protection.Tiers, 3)
	assert.Equal(t, TierConfig{Key: "8h", Duration: 8 * time.Hour, Price: 5000}, cfg.Protection.Tiers[1])

	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
storage:
  driver: memory
economy:
  min_transfer: 25
admin:
  ids: ["111", "222"]
protection:
  tiers:
    - key: 1h
      duration: 1h
      price: 900
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("DAILY_REWARD", "350")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, int64(25), cfg.Economy.MinTransfer)
	assert.Equal(t, int64(350), cfg.Daily.Reward)
	assert.True(t, cfg.IsAdmin("222"))
	assert.False(t, cfg.IsAdmin("333"))
	require.Len(t, cfg.Protection.Tiers, 1)
	assert.Equal(t, time.Hour, cfg.Protection.Tiers[0].Duration)
}

func TestLoadFromEnvOnly(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "tok123")
	t.Setenv("DATABASE_PASSWORD", "pw")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("ADMIN_IDS", "111,222")
	t.Setenv("WHITELIST_GUILDS", "g1")
	t.Setenv("ECONOMY_SERVICE_ACCOUNTS", "treasury")
	t.Setenv("DAILY_REWARD", "999")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "tok123", cfg.Discord.Token)
	assert.Equal(t, "pw", cfg.Database.Password)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, []string{"111", "222"}, cfg.Admin.IDs)
	assert.True(t, cfg.IsGuildAllowed("g1"))
	assert.False(t, cfg.IsGuildAllowed("g2"))
	assert.True(t, cfg.IsServiceAccount("treasury"))
	assert.Equal(t, int64(999), cfg.Daily.Reward)
}

func TestValidateRejectsInconsistentValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }},
		{"zero cooldown", func(c *Config) { c.Daily.CooldownSeconds = 0 }},
		{"streak window shorter than cooldown", func(c *Config) { c.Daily.StreakWindowSeconds = 3600 }},
		{"inverted base chance", func(c *Config) { c.Theft.BaseChanceMin = 80 }},
		{"inverted steal range", func(c *Config) { c.Theft.StealMinPercent = 0.5 }},
		{"inverted cooldown", func(c *Config) { c.Theft.FailureCooldownMin = 5 * time.Hour }},
		{"no tiers", func(c *Config) { c.Protection.Tiers = nil }},
		{"duplicate tier", func(c *Config) {
			c.Protection.Tiers = append(c.Protection.Tiers, c.Protection.Tiers[0])
		}},
		{"zero min transfer", func(c *Config) { c.Economy.MinTransfer = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestIsGuildAllowed(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.IsGuildAllowed("anything"), "empty whitelist allows all")

	cfg.Whitelist.Guilds = []string{"g1"}
	assert.True(t, cfg.IsGuildAllowed("g1"))
	assert.False(t, cfg.IsGuildAllowed("g2"))
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5433, Name: "eco", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5433/eco?sslmode=disable", d.DSN())
}
