package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
coins:
  btc:
    name: Bitcoin
    unit: btc
    enabled: true
    minconf:
      tip: 1
      withdraw: 6
    txmin:
      tip: 0.001
      withdraw: 0.01
    txfee: 0.0001
    address-regex: "[13][a-km-zA-HJ-NP-Z1-9]{25,34}"
    unit-regex: "btc|bitcoins?"
    rpc:
      host: 127.0.0.1:8332
      user: u
      pass: p
fiat:
  usd:
    unit: usd
    enabled: true
    symbol: "$"
    symbol-regex: '\$'
keywords:
  beer: "0.05"
platform:
  bot-user: tipbot
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadBotConfig(t *testing.T) {
	cfg, err := LoadBotConfig(writeConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}

	coins := cfg.EnabledCoins()
	if len(coins) != 1 || coins[0].Unit != "btc" {
		t.Fatalf("got coins %+v, want btc", coins)
	}
	if coins[0].MinConf.Withdraw != 6 {
		t.Errorf("got withdraw minconf %d, want 6", coins[0].MinConf.Withdraw)
	}
	if cfg.Keywords["beer"] != "0.05" {
		t.Errorf("keyword table not loaded: %v", cfg.Keywords)
	}

	// Command verbs and batch limit default when omitted.
	if cfg.Commands.Tip != "tip" || cfg.Commands.Register != "register" {
		t.Errorf("command defaults not applied: %+v", cfg.Commands)
	}
	if cfg.Platform.BatchLimit != 10 {
		t.Errorf("got batch limit %d, want default 10", cfg.Platform.BatchLimit)
	}
}

func TestLoadBotConfigRejectsNoEnabledCoin(t *testing.T) {
	yaml := `
coins:
  btc:
    unit: btc
    enabled: false
platform:
  bot-user: tipbot
`
	if _, err := LoadBotConfig(writeConfig(t, yaml)); err == nil {
		t.Fatal("expected error when no coin is enabled")
	}
}

func TestLoadBotConfigRejectsMissingBotUser(t *testing.T) {
	yaml := `
coins:
  btc:
    unit: btc
    enabled: true
    minconf:
      tip: 1
      withdraw: 6
    address-regex: "x+"
    unit-regex: "btc"
`
	if _, err := LoadBotConfig(writeConfig(t, yaml)); err == nil {
		t.Fatal("expected error when bot-user is missing")
	}
}

func TestLoadBotConfigRejectsMissingAddressRegex(t *testing.T) {
	yaml := `
coins:
  btc:
    unit: btc
    enabled: true
    minconf:
      tip: 1
      withdraw: 6
    unit-regex: "btc"
platform:
  bot-user: tipbot
`
	if _, err := LoadBotConfig(writeConfig(t, yaml)); err == nil {
		t.Fatal("expected error when address-regex is missing")
	}
}
