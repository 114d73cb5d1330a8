// Package config loads service configuration from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"staking-ledger/internal/reward"
)

// EnvPrefix prefixes every environment variable, e.g. STAKING_POSTGRES_DSN.
const EnvPrefix = "STAKING"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config is the typed service configuration.
type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Clickhouse ClickhouseConfig `mapstructure:"clickhouse"`
	Owner      string           `mapstructure:"owner"`
	Custody    CustodyConfig    `mapstructure:"custody"`
	Reward     RewardConfig     `mapstructure:"reward"`
	Refund     RefundConfig     `mapstructure:"refund"`
	Log        LogConfig        `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ClickhouseConfig configures event history. An empty DSN keeps events in memory.
type ClickhouseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type CustodyConfig struct {
	Address string `mapstructure:"address"`
}

type RewardConfig struct {
	AnnualRateBps uint64 `mapstructure:"annual_rate_bps"`
}

type RefundConfig struct {
	PenaltyBps uint64 `mapstructure:"penalty_bps"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OwnerAddress returns the parsed owner address.
func (c *Config) OwnerAddress() common.Address {
	return common.HexToAddress(c.Owner)
}

// CustodyAddress returns the parsed custody address.
func (c *Config) CustodyAddress() common.Address {
	return common.HexToAddress(c.Custody.Address)
}

// SetDefaults registers default values on v. Every key needs a default so
// that AutomaticEnv can override it during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 0)
	v.SetDefault("clickhouse.dsn", "")
	v.SetDefault("owner", "")
	v.SetDefault("custody.address", "0x000000000000000000000000000000000000c0de")
	v.SetDefault("reward.annual_rate_bps", reward.DefaultAnnualRateBps)
	v.SetDefault("refund.penalty_bps", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file into v and returns the validated config.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	var errs []error

	if !common.IsHexAddress(c.Owner) || c.OwnerAddress() == (common.Address{}) {
		errs = append(errs, fmt.Errorf("owner: %q is not a non-zero hex address", c.Owner))
	}
	if !common.IsHexAddress(c.Custody.Address) || c.CustodyAddress() == (common.Address{}) {
		errs = append(errs, fmt.Errorf("custody.address: %q is not a non-zero hex address", c.Custody.Address))
	}
	if c.Custody.Address != "" && c.CustodyAddress() == c.OwnerAddress() {
		errs = append(errs, errors.New("custody.address must differ from owner"))
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend))
	}

	if c.Reward.AnnualRateBps == 0 {
		errs = append(errs, errors.New("reward.annual_rate_bps must be positive"))
	}
	if c.Refund.PenaltyBps > reward.BasisPoints {
		errs = append(errs, fmt.Errorf("refund.penalty_bps: %d exceeds %d", c.Refund.PenaltyBps, reward.BasisPoints))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
