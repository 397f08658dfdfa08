package config

import (
	"github.com/vietanh/walletledger/internal/core/domain"
	redisclient "github.com/vietanh/walletledger/internal/infra/redis"
	"github.com/vietanh/walletledger/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Networks []NetworkConfig    `yaml:"networks"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// NetworkConfig holds per-network overrides. Networks absent from the
// config fall back to the built-in defaults.
type NetworkConfig struct {
	Name              domain.Network `yaml:"name"`
	ChainID           uint64         `yaml:"chain_id"`
	NativeSymbol      string         `yaml:"native_symbol"`
	NativeDecimals    int            `yaml:"native_decimals"`
	ConfirmationDepth uint64         `yaml:"confirmation_depth"`
}
