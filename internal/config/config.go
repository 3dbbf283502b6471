package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all server configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	JWT     JWTConfig     `yaml:"jwt"`
	Redis   RedisConfig   `yaml:"redis"`
	Session SessionConfig `yaml:"session"`
	Economy EconomyConfig `yaml:"economy"`
	Storage StorageConfig `yaml:"storage"`
	Audit   AuditConfig   `yaml:"audit"`
	Catalog CatalogConfig `yaml:"catalog"`
}

// ServerConfig holds server-specific settings
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TickRate int    `yaml:"tick_rate"` // Hz
}

// JWTConfig holds JWT authentication settings
type JWTConfig struct {
	Issuer              string `yaml:"issuer"`
	PublicKeyURL        string `yaml:"public_key_url"`
	PublicKeyRefreshHrs int    `yaml:"public_key_refresh_hours"`
	// PublicKeyFile pins a PEM key on disk; the URL and Redis are then unused.
	PublicKeyFile string `yaml:"public_key_file"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address         string `yaml:"address"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	BlacklistPrefix string `yaml:"blacklist_prefix"`
}

// SessionConfig holds game session settings
type SessionConfig struct {
	MaxPlayers int `yaml:"max_players"`
}

// EconomyConfig holds balance constants and new-agent defaults.
type EconomyConfig struct {
	BuyPrice         int64  `yaml:"buy_price"`
	SellReward       int64  `yaml:"sell_reward"`
	UseCatalogPrices bool   `yaml:"use_catalog_prices"`
	MaxCurrency      int64  `yaml:"max_currency"`
	StartingCurrency int64  `yaml:"starting_currency"`
	GeneralSlots     int    `yaml:"general_slots"`
	CombineOutput    string `yaml:"combine_output"` // catalog item key
	VendorCapacity   int    `yaml:"vendor_capacity"`
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// AuditConfig holds outcome log settings
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// CatalogConfig points at the item/recipe/station catalog
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if not provided
	if cfg.Server.TickRate == 0 {
		cfg.Server.TickRate = 20
	}
	if cfg.JWT.PublicKeyRefreshHrs == 0 {
		cfg.JWT.PublicKeyRefreshHrs = 24
	}
	if cfg.Session.MaxPlayers == 0 {
		cfg.Session.MaxPlayers = 100
	}
	if cfg.Economy.BuyPrice == 0 {
		cfg.Economy.BuyPrice = 10
	}
	if cfg.Economy.SellReward == 0 {
		cfg.Economy.SellReward = 3
	}
	if cfg.Economy.MaxCurrency == 0 {
		cfg.Economy.MaxCurrency = 999_999_999
	}
	if cfg.Economy.GeneralSlots == 0 {
		cfg.Economy.GeneralSlots = 24
	}
	if cfg.Economy.VendorCapacity == 0 {
		cfg.Economy.VendorCapacity = 16
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "./data/stationhost.db"
	}
	if cfg.Audit.Dir == "" {
		cfg.Audit.Dir = "./data/audit"
	}
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = "./configs/catalog.yaml"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.TickRate < 0 {
		return fmt.Errorf("server.tick_rate must be positive")
	}
	if c.Economy.BuyPrice < 0 || c.Economy.SellReward < 0 || c.Economy.StartingCurrency < 0 {
		return fmt.Errorf("economy amounts must not be negative")
	}
	if c.Economy.StartingCurrency > c.Economy.MaxCurrency {
		return fmt.Errorf("economy.starting_currency exceeds max_currency")
	}
	if c.Economy.GeneralSlots < 0 || c.Economy.VendorCapacity < 0 {
		return fmt.Errorf("economy slot counts must not be negative")
	}
	return nil
}
