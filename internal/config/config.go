// internal/config/config.go
//
// 由環境變數（可選 .env 檔）載入程式設定。遊戲參數另由 YAML 規則檔提供。

// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration.
type Config struct {
	DataDir      string   `env:"ECONOMY_DATA_DIR" envDefault:"data"`
	Store        string   `env:"ECONOMY_STORE" envDefault:"json"`
	RulesFile    string   `env:"ECONOMY_RULES_FILE"`
	AdminIDs     []string `env:"ECONOMY_ADMIN_IDS" envSeparator:","`
	Addr         string   `env:"ECONOMY_ADDR" envDefault:":8080"`
	Debug        bool     `env:"ECONOMY_DEBUG" envDefault:"false"`
	OTelEndpoint string   `env:"ECONOMY_OTEL_ENDPOINT"`
}

var validStores = []string{"json", "bolt", "sqlite"}

// Load 讀取設定。指定 envPath 時該檔必須存在；未指定則嘗試載入目前目錄的 .env。
// 已存在的環境變數不會被 .env 覆寫。
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	// storage.Open 不分大小寫；此處統一正規化，Validate 與日誌看到同一個值。
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("ECONOMY_DATA_DIR is required"))
	}
	if !slices.Contains(validStores, c.Store) {
		errs = append(errs, fmt.Errorf("ECONOMY_STORE must be one of %v, got %q", validStores, c.Store))
	}
	return errors.Join(errs...)
}
