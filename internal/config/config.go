package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	Env      string `env:"ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	BotToken      string        `env:"BOT_TOKEN"`
	NotifyWinners bool          `env:"NOTIFY_WINNERS" envDefault:"false"`
	InitDataTTL   time.Duration `env:"INIT_DATA_TTL" envDefault:"24h"`
	JWTSecret     string        `env:"JWT_SECRET"`
	JWTTTL        time.Duration `env:"JWT_TTL" envDefault:"24h"`

	RedisURL  string `env:"REDIS_URL" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	NATSURL           string `env:"NATS_URL"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"contest.events"`

	RoundDuration     time.Duration `env:"ROUND_DURATION" envDefault:"60s"`
	CountdownDuration time.Duration `env:"COUNTDOWN_DURATION" envDefault:"30s"`
	SettlementWindow  time.Duration `env:"SETTLEMENT_WINDOW" envDefault:"5s"`
	TickInterval      time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`
	DefaultTier       string        `env:"DEFAULT_TIER" envDefault:"rookie"`
	StartingBalance   string        `env:"STARTING_BALANCE" envDefault:"0.05"`
	MaxTopUp          string        `env:"MAX_TOPUP" envDefault:"1"`
	SnapshotFile      string        `env:"SNAPSHOT_FILE" envDefault:"/tmp/contest-state.json"`
	DemoFill          bool          `env:"DEMO_FILL" envDefault:"false"`
	JoinRateLimit     int           `env:"JOIN_RATE_LIMIT" envDefault:"10"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RoundDuration <= c.SettlementWindow {
		return fmt.Errorf("ROUND_DURATION (%s) must exceed SETTLEMENT_WINDOW (%s)", c.RoundDuration, c.SettlementWindow)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive")
	}
	if _, err := c.StartingBalanceAmount(); err != nil {
		return err
	}
	if _, err := c.MaxTopUpAmount(); err != nil {
		return err
	}
	if c.Env == "production" && (c.JWTSecret == "" || c.BotToken == "") {
		return fmt.Errorf("JWT_SECRET and BOT_TOKEN are required in production")
	}
	return nil
}

func (c *Config) StartingBalanceAmount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.StartingBalance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("STARTING_BALANCE: %w", err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("STARTING_BALANCE must not be negative")
	}
	return d, nil
}

func (c *Config) MaxTopUpAmount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.MaxTopUp)
	if err != nil {
		return decimal.Zero, fmt.Errorf("MAX_TOPUP: %w", err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("MAX_TOPUP must be positive")
	}
	return d, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
