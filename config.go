package paidquiz

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the process configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Session  SessionConfig  `mapstructure:"session"`
	Reward   RewardConfig   `mapstructure:"reward"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Verbose  bool           `mapstructure:"verbose"`
	DevMode  bool           `mapstructure:"dev_mode"`
}

// DatabaseConfig selects the durable store
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	DSN             string `mapstructure:"dsn"`
	ConnectAttempts int    `mapstructure:"connect_attempts"`
}

// CacheConfig configures both cache tiers
type CacheConfig struct {
	BadgerDir  string        `mapstructure:"badger_dir"`
	InMemory   bool          `mapstructure:"in_memory"`
	FastTTL    time.Duration `mapstructure:"fast_ttl"`
	DurableTTL time.Duration `mapstructure:"durable_ttl"`
}

// OpenAIConfig configures the generation service
type OpenAIConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Model         string        `mapstructure:"model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	TranscriptDir string        `mapstructure:"transcript_dir"`
}

// SessionConfig configures quiz sessions
type SessionConfig struct {
	QuestionCount int           `mapstructure:"question_count"`
	MaxAge        time.Duration `mapstructure:"max_age"`
	EntryFee      string        `mapstructure:"entry_fee"`
}

// RewardConfig holds the reward formula parameters. Money values are
// decimal strings.
type RewardConfig struct {
	UnitValue             string        `mapstructure:"unit_value"`
	AvgSecondsPerQuestion int           `mapstructure:"avg_seconds_per_question"`
	PerMinuteRate         string        `mapstructure:"per_minute_rate"`
	PerWinBonus           string        `mapstructure:"per_win_bonus"`
	WinAccuracy           string        `mapstructure:"win_accuracy"`
	StreakWindow          time.Duration `mapstructure:"streak_window"`
}

// SweepConfig configures the background sweeper
type SweepConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "paidquiz.db")
	v.SetDefault("database.connect_attempts", 10)

	v.SetDefault("cache.badger_dir", "fastcache")
	v.SetDefault("cache.in_memory", false)
	v.SetDefault("cache.fast_ttl", defaultFastTTL)
	v.SetDefault("cache.durable_ttl", defaultDurableTTL)

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.timeout", defaultGenerationTimeout)
	v.SetDefault("openai.transcript_dir", "")

	v.SetDefault("session.question_count", defaultSessionQuestions)
	v.SetDefault("session.max_age", defaultSessionMaxAge)
	v.SetDefault("session.entry_fee", "1.00")

	v.SetDefault("reward.unit_value", "2.00")
	v.SetDefault("reward.avg_seconds_per_question", 30)
	v.SetDefault("reward.per_minute_rate", "0.50")
	v.SetDefault("reward.per_win_bonus", "0.50")
	v.SetDefault("reward.win_accuracy", "0.70")
	v.SetDefault("reward.streak_window", 24*time.Hour)

	v.SetDefault("sweep.interval", defaultSweepInterval)

	v.SetDefault("verbose", false)
	v.SetDefault("dev_mode", false)
}

// LoadConfig reads defaults, then the config file at path if one is given,
// then PAIDQUIZ_* environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PAIDQUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Cache.FastTTL <= 0 || c.Cache.DurableTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.Cache.FastTTL >= c.Cache.DurableTTL {
		return fmt.Errorf("cache.fast_ttl (%s) must be shorter than cache.durable_ttl (%s)", c.Cache.FastTTL, c.Cache.DurableTTL)
	}
	if !c.Cache.InMemory && c.Cache.BadgerDir == "" {
		return fmt.Errorf("cache.badger_dir is required unless cache.in_memory is set")
	}
	if c.Session.QuestionCount < 1 || c.Session.QuestionCount > MaxQuestionsPerSet {
		return fmt.Errorf("session.question_count must be between 1 and %d", MaxQuestionsPerSet)
	}
	if _, err := c.EntryFee(); err != nil {
		return err
	}
	if _, err := c.RewardPolicy(); err != nil {
		return err
	}
	return nil
}

// EntryFee returns the session entry fee
func (c *Config) EntryFee() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(c.Session.EntryFee)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid session.entry_fee: %w", err)
	}
	if fee.IsNegative() {
		return decimal.Zero, fmt.Errorf("session.entry_fee cannot be negative")
	}
	if !isWholeCents(fee) {
		return decimal.Zero, fmt.Errorf("session.entry_fee must have at most two decimal places")
	}
	return fee, nil
}

// RewardPolicy converts the reward section into a policy
func (c *Config) RewardPolicy() (RewardPolicy, error) {
	policy := RewardPolicy{
		AvgSecondsPerQuestion: c.Reward.AvgSecondsPerQuestion,
		StreakWindow:          c.Reward.StreakWindow,
	}
	fields := []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"reward.unit_value", c.Reward.UnitValue, &policy.UnitValue},
		{"reward.per_minute_rate", c.Reward.PerMinuteRate, &policy.PerMinuteRate},
		{"reward.per_win_bonus", c.Reward.PerWinBonus, &policy.PerWinBonus},
		{"reward.win_accuracy", c.Reward.WinAccuracy, &policy.WinAccuracy},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.value)
		if err != nil {
			return RewardPolicy{}, fmt.Errorf("invalid %s: %w", f.name, err)
		}
		if d.IsNegative() {
			return RewardPolicy{}, fmt.Errorf("%s cannot be negative", f.name)
		}
		*f.dst = d
	}
	if policy.AvgSecondsPerQuestion < 0 {
		return RewardPolicy{}, fmt.Errorf("reward.avg_seconds_per_question cannot be negative")
	}
	if policy.StreakWindow <= 0 {
		return RewardPolicy{}, fmt.Errorf("reward.streak_window must be positive")
	}
	return policy, nil
}
