// Package config defines all configuration for the mock exchange daemon.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via MOCKX_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Store     StoreConfig     `mapstructure:"store"`
	API       APIConfig       `mapstructure:"api"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ExchangeConfig tunes the matching/portfolio engine (spec §6 Configuration).
//
//   - CommissionRate: fee fraction applied to every fill.
//   - CashAsset: recorded on every order as its cash_asset snapshot;
//     reservation and fee math use the quote asset of the order's symbol.
//   - StaleAfterSeconds: ticker-age threshold for the StaleTicker policy;
//     0 disables it.
//   - MinTimeAnswerOrderMarket/MaxTimeAnswerOrderMarket: uniform latency
//     bounds, in seconds, for market order execution (§4.6).
//   - SigmaFillMarketOrder: stddev of the truncated-normal fill-ratio
//     sampler (§4.6).
type ExchangeConfig struct {
	CommissionRate           float64 `mapstructure:"commission_rate"`
	CashAsset                string  `mapstructure:"cash_asset"`
	StaleAfterSeconds        int     `mapstructure:"stale_after_seconds"`
	MinTimeAnswerOrderMarket float64 `mapstructure:"min_time_answer_order_market"`
	MaxTimeAnswerOrderMarket float64 `mapstructure:"max_time_answer_order_market"`
	SigmaFillMarketOrder     float64 `mapstructure:"sigma_fill_market_order"`
}

// FeeRate returns CommissionRate as a decimal.Decimal, for use in fee math
// that must not touch float64.
func (e ExchangeConfig) FeeRate() decimal.Decimal {
	return decimal.NewFromFloat(e.CommissionRate)
}

// SchedulerConfig controls the tick loop (§4.7) and the prune loop (§4.8).
type SchedulerConfig struct {
	TickLoopSec   int `mapstructure:"tick_loop_sec"`
	PruneEveryMin int `mapstructure:"prune_every_min"` // 0 disables the prune loop
	StaleAfterH   int `mapstructure:"stale_after_h"`
	ExpireAfterH  int `mapstructure:"expire_after_h"`
}

func (s SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(s.TickLoopSec) * time.Second
}

func (s SchedulerConfig) PruneInterval() time.Duration {
	return time.Duration(s.PruneEveryMin) * time.Minute
}

func (s SchedulerConfig) StaleAfter() time.Duration {
	return time.Duration(s.StaleAfterH) * time.Hour
}

func (s SchedulerConfig) ExpireAfter() time.Duration {
	return time.Duration(s.ExpireAfterH) * time.Hour
}

// StoreConfig points at the Redis-protocol server backing the whole service.
type StoreConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// APIConfig controls the HTTP/WS adapter.
type APIConfig struct {
	Addr           string   `mapstructure:"addr"`
	APIKey         string   `mapstructure:"api_key"`
	DisableAuth    bool     `mapstructure:"disable_auth"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst float64  `mapstructure:"rate_limit_burst"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the spec's documented defaults (§6 Configuration).
func Default() Config {
	return Config{
		Exchange: ExchangeConfig{
			CommissionRate:           0.00075,
			CashAsset:                "USDT",
			StaleAfterSeconds:        0,
			MinTimeAnswerOrderMarket: 3,
			MaxTimeAnswerOrderMarket: 5,
			SigmaFillMarketOrder:     0.1,
		},
		Scheduler: SchedulerConfig{
			TickLoopSec:   30,
			PruneEveryMin: 60,
			StaleAfterH:   24,
			ExpireAfterH:  24,
		},
		Store: StoreConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		API: APIConfig{
			Addr:           ":8080",
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads config from a YAML file with env var overrides.
// Sensitive/operational fields use env vars: MOCKX_STORE_ADDR,
// MOCKX_STORE_PASSWORD, MOCKX_API_KEY.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MOCKX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if addr := os.Getenv("MOCKX_STORE_ADDR"); addr != "" {
		cfg.Store.Addr = addr
	}
	if pw := os.Getenv("MOCKX_STORE_PASSWORD"); pw != "" {
		cfg.Store.Password = pw
	}
	if key := os.Getenv("MOCKX_API_KEY"); key != "" {
		cfg.API.APIKey = key
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Exchange.CommissionRate < 0 {
		return fmt.Errorf("exchange.commission_rate must be >= 0")
	}
	if c.Exchange.CashAsset == "" {
		return fmt.Errorf("exchange.cash_asset is required")
	}
	if c.Exchange.MinTimeAnswerOrderMarket <= 0 || c.Exchange.MaxTimeAnswerOrderMarket < c.Exchange.MinTimeAnswerOrderMarket {
		return fmt.Errorf("exchange.min/max_time_answer_order_market must satisfy 0 < min <= max")
	}
	if c.Exchange.SigmaFillMarketOrder < 0 {
		return fmt.Errorf("exchange.sigma_fill_market_order must be >= 0")
	}
	if c.Exchange.StaleAfterSeconds < 0 {
		return fmt.Errorf("exchange.stale_after_seconds must be >= 0")
	}
	if c.Scheduler.TickLoopSec <= 0 {
		return fmt.Errorf("scheduler.tick_loop_sec must be > 0")
	}
	if c.Scheduler.PruneEveryMin < 0 {
		return fmt.Errorf("scheduler.prune_every_min must be >= 0")
	}
	if c.Scheduler.StaleAfterH <= 0 || c.Scheduler.ExpireAfterH <= 0 {
		return fmt.Errorf("scheduler.stale_after_h and expire_after_h must be > 0")
	}
	if c.Store.Addr == "" {
		return fmt.Errorf("store.addr is required")
	}
	if !c.API.DisableAuth && c.API.APIKey == "" {
		return fmt.Errorf("api.api_key is required unless api.disable_auth is set")
	}
	return nil
}
