package config

import (
	"fmt"
	"os"
	"path/filepath"

	"cointipd/internal/models"

	"gopkg.in/yaml.v2"
)

// LoadBotConfig reads and validates the YAML bot configuration (coins,
// fiats, keyword amounts, platform settings).
func LoadBotConfig(configFile string) (*models.BotConfig, error) {
	var configPath string
	if filepath.IsAbs(configFile) {
		configPath = configFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		configPath = filepath.Join(wd, configFile)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", configFile, err)
	}

	var cfg models.BotConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", configFile, err)
	}

	if err := validateBotConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validateBotConfig(cfg *models.BotConfig) error {
	enabled := 0
	for key, cc := range cfg.Coins {
		if !cc.Enabled {
			continue
		}
		enabled++
		if cc.Unit == "" {
			return fmt.Errorf("coin %q missing unit", key)
		}
		if cc.AddressRegex == "" {
			return fmt.Errorf("coin %q missing address-regex", key)
		}
		if cc.UnitRegex == "" {
			return fmt.Errorf("coin %q missing unit-regex", key)
		}
		if cc.MinConf.Tip <= 0 || cc.MinConf.Withdraw <= 0 {
			return fmt.Errorf("coin %q needs positive minconf values", key)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one coin must be enabled")
	}

	for key, f := range cfg.Fiats {
		if f.Enabled && f.SymbolRegex == "" {
			return fmt.Errorf("fiat %q missing symbol-regex", key)
		}
	}

	if cfg.Platform.BotUser == "" {
		return fmt.Errorf("platform bot-user must be set")
	}
	if cfg.Platform.BatchLimit <= 0 {
		cfg.Platform.BatchLimit = 10
	}

	applyCommandDefaults(&cfg.Commands)

	return nil
}

func applyCommandDefaults(c *models.CommandsConfig) {
	if c.Register == "" {
		c.Register = "register"
	}
	if c.Accept == "" {
		c.Accept = "accept"
	}
	if c.Decline == "" {
		c.Decline = "decline"
	}
	if c.History == "" {
		c.History = "history"
	}
	if c.Info == "" {
		c.Info = "info"
	}
	if c.Withdraw == "" {
		c.Withdraw = "withdraw"
	}
	if c.Tip == "" {
		c.Tip = "tip"
	}
}
