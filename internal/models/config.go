package models

import (
	"sort"
	"strings"
	"time"
)

// Config represents the application runtime configuration (env-driven).
type Config struct {
	Database DatabaseConfig
	Bot      RuntimeConfig
	Reddit   RedditConfig
}

// RedditConfig holds the script-app credentials and endpoints.
type RedditConfig struct {
	ClientId     string
	ClientSecret string
	Username     string
	Password     string
	BaseURL      string
	AuthURL      string
}

// DatabaseConfig holds ledger database connection settings.
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// RuntimeConfig holds polling-loop settings.
type RuntimeConfig struct {
	ConfigFile    string
	PollInterval  time.Duration
	PendingTipTTL time.Duration
	FeedBaseURL   string
}

// BotConfig is the YAML bot configuration: enabled coins and fiats, the
// keyword-amount table and platform settings.
type BotConfig struct {
	Coins    map[string]CoinConfig `yaml:"coins"`
	Fiats    map[string]FiatConfig `yaml:"fiat"`
	Keywords map[string]string     `yaml:"keywords"`
	Commands CommandsConfig        `yaml:"commands"`
	Platform PlatformConfig        `yaml:"platform"`
}

// CommandsConfig holds the configured command verb spellings, so deployments
// can localize them.
type CommandsConfig struct {
	Register string `yaml:"register"`
	Accept   string `yaml:"accept"`
	Decline  string `yaml:"decline"`
	History  string `yaml:"history"`
	Info     string `yaml:"info"`
	Withdraw string `yaml:"withdraw"`
	Tip      string `yaml:"tip"`
}

// CoinConfig describes one cryptocurrency known to the bot.
type CoinConfig struct {
	Name         string        `yaml:"name"`
	Unit         string        `yaml:"unit"`
	Enabled      bool          `yaml:"enabled"`
	MinConf      MinConfConfig `yaml:"minconf"`
	TxMin        TxMinConfig   `yaml:"txmin"`
	TxFee        float64       `yaml:"txfee"`
	AddressRegex string        `yaml:"address-regex"`
	UnitRegex    string        `yaml:"unit-regex"`
	RPC          RPCConfig     `yaml:"rpc"`
}

// MinConfConfig is the confirmations a deposit needs before it counts
// toward each operation's balance.
type MinConfConfig struct {
	Tip      int `yaml:"tip"`
	Withdraw int `yaml:"withdraw"`
}

// TxMinConfig is the minimum transaction size per operation.
type TxMinConfig struct {
	Tip      float64 `yaml:"tip"`
	Withdraw float64 `yaml:"withdraw"`
}

// RPCConfig is a coin daemon JSON-RPC endpoint.
type RPCConfig struct {
	Host string `yaml:"host"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

// FiatConfig describes one fiat currency.
type FiatConfig struct {
	Unit        string `yaml:"unit"`
	Enabled     bool   `yaml:"enabled"`
	Symbol      string `yaml:"symbol"`
	SymbolRegex string `yaml:"symbol-regex"`
}

// PlatformConfig holds social-platform settings.
type PlatformConfig struct {
	BotUser     string   `yaml:"bot-user"`
	UserAgent   string   `yaml:"user-agent"`
	Subreddits  []string `yaml:"subreddits"`
	BannedUsers []string `yaml:"banned-users"`
	BatchLimit  int      `yaml:"batch-limit"`
}

// EnabledCoins returns enabled coins sorted alphabetically by unit. The
// order is load-bearing: fiat-denominated tips auto-select the first coin
// with sufficient balance in this order.
func (c *BotConfig) EnabledCoins() []CoinConfig {
	coins := make([]CoinConfig, 0, len(c.Coins))
	for _, cc := range c.Coins {
		if cc.Enabled {
			coins = append(coins, cc)
		}
	}
	sort.Slice(coins, func(i, j int) bool { return coins[i].Unit < coins[j].Unit })
	return coins
}

// EnabledFiats returns enabled fiats sorted alphabetically by unit.
func (c *BotConfig) EnabledFiats() []FiatConfig {
	fiats := make([]FiatConfig, 0, len(c.Fiats))
	for _, f := range c.Fiats {
		if f.Enabled {
			fiats = append(fiats, f)
		}
	}
	sort.Slice(fiats, func(i, j int) bool { return fiats[i].Unit < fiats[j].Unit })
	return fiats
}

// Coin looks up an enabled coin by unit.
func (c *BotConfig) Coin(unit string) (CoinConfig, bool) {
	for _, cc := range c.Coins {
		if cc.Enabled && cc.Unit == unit {
			return cc, true
		}
	}
	return CoinConfig{}, false
}

// IsBanned reports whether the username appears on the static ban list.
func (p PlatformConfig) IsBanned(username string) bool {
	for _, banned := range p.BannedUsers {
		if strings.EqualFold(banned, username) {
			return true
		}
	}
	return false
}
