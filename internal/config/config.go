// Package config handles YAML configuration loading with environment
// variable substitution. Configuration files support ${VAR} syntax.
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration for an engine instance.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Data       DataConfig       `yaml:"data"`
	Accounts   AccountsConfig   `yaml:"accounts"`
	Simulation SimulationConfig `yaml:"simulation"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DataConfig holds file persistence settings. Dir is where the JSON
// snapshots live when no database is configured.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// AccountsConfig holds account-creation settings. Monetary values are
// decimal strings so they survive YAML parsing without float rounding.
type AccountsConfig struct {
	InitialBalance string `yaml:"initial_balance"`
}

// SimulationConfig holds price movement settings. MaxMove is the largest
// fractional move per tick ("0.05" = ±5%), Floor the lowest price a tick
// may produce. Seed 0 means seed from the clock. Interval 0 disables the
// background ticker; movement then only happens on demand.
type SimulationConfig struct {
	MaxMove  string        `yaml:"max_move"`
	Floor    string        `yaml:"floor"`
	Seed     int64         `yaml:"seed"`
	Interval time.Duration `yaml:"interval"`
}

// DatabaseConfig holds the optional Postgres connection. An empty URL
// selects file persistence instead.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the optional read-through cache. An empty URL disables
// caching.
type RedisConfig struct {
	URL string        `yaml:"url"`
	TTL time.Duration `yaml:"ttl"`
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Data.Dir == "" {
		c.Data.Dir = "data"
	}
	if c.Accounts.InitialBalance == "" {
		c.Accounts.InitialBalance = "10000"
	}
	if c.Simulation.MaxMove == "" {
		c.Simulation.MaxMove = "0.05"
	}
	if c.Simulation.Floor == "" {
		c.Simulation.Floor = "1"
	}
	if c.Redis.URL != "" && c.Redis.TTL == 0 {
		c.Redis.TTL = 5 * time.Minute
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if _, err := c.InitialBalance(); err != nil {
		return fmt.Errorf("accounts.initial_balance: %w", err)
	}
	maxMove, err := c.MaxMove()
	if err != nil {
		return fmt.Errorf("simulation.max_move: %w", err)
	}
	if maxMove.Sign() <= 0 || maxMove.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("simulation.max_move must be in (0, 1], got %s", maxMove)
	}
	floor, err := c.Floor()
	if err != nil {
		return fmt.Errorf("simulation.floor: %w", err)
	}
	if floor.Sign() <= 0 {
		return fmt.Errorf("simulation.floor must be positive, got %s", floor)
	}
	return nil
}

// InitialBalance parses the configured default opening balance.
func (c *Config) InitialBalance() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Accounts.InitialBalance)
}

// MaxMove parses the configured per-tick movement bound.
func (c *Config) MaxMove() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Simulation.MaxMove)
}

// Floor parses the configured price floor.
func (c *Config) Floor() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Simulation.Floor)
}
