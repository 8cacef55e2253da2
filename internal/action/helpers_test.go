package action

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cointipd/internal/coin"
	"cointipd/internal/database"
	"cointipd/internal/models"
	"cointipd/internal/resolve"
	"cointipd/internal/store"
)

// fakeAccount is an in-memory wallet with per-user balances. Move and
// SendFrom mutate balances so tests can assert conservation.
type fakeAccount struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	txfee    decimal.Decimal
	valid    map[string]bool
	sends    []string
	sendConf []int
	addrSeq  int
}

func newFakeAccount() *fakeAccount {
	return &fakeAccount{
		balances: make(map[string]decimal.Decimal),
		valid:    make(map[string]bool),
	}
}

func (f *fakeAccount) setBalance(user string, amount string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[user] = decimal.RequireFromString(amount)
}

func (f *fakeAccount) balanceOf(user string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[user]
}

func (f *fakeAccount) Balance(ctx context.Context, user string, minconf int) (decimal.Decimal, error) {
	return f.balanceOf(user), nil
}

func (f *fakeAccount) Move(ctx context.Context, from, to string, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[from] = f.balances[from].Sub(amount)
	f.balances[to] = f.balances[to].Add(amount)
	return nil
}

func (f *fakeAccount) SendFrom(ctx context.Context, user, address string, amount decimal.Decimal, minconf int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[user] = f.balances[user].Sub(amount).Sub(f.txfee)
	f.sends = append(f.sends, address)
	f.sendConf = append(f.sendConf, minconf)
	return fmt.Sprintf("tx-%d", len(f.sends)), nil
}

func (f *fakeAccount) NewAddress(ctx context.Context, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addrSeq++
	return fmt.Sprintf("addr-%s-%d", user, f.addrSeq), nil
}

func (f *fakeAccount) ValidateAddress(ctx context.Context, address string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	valid, ok := f.valid[address]
	if !ok {
		return true, nil
	}
	return valid, nil
}

type fakeAccounts map[string]*fakeAccount

func (f fakeAccounts) Get(unit string) (coin.Account, error) {
	account, ok := f[unit]
	if !ok {
		return nil, fmt.Errorf("no daemon for %q", unit)
	}
	return account, nil
}

type notification struct {
	To   string
	Text string
}

type fakeNotifier struct {
	mu      sync.Mutex
	replies []notification
	dms     []notification
}

func (f *fakeNotifier) Reply(ctx context.Context, origin models.OriginRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, notification{To: origin.MessageId, Text: text})
	return nil
}

func (f *fakeNotifier) DirectMessage(ctx context.Context, user, subject, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms = append(f.dms, notification{To: user, Text: text})
	return nil
}

func (f *fakeNotifier) dmCount(user string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, dm := range f.dms {
		if dm.To == user {
			n++
		}
	}
	return n
}

type fakeRates map[string]decimal.Decimal

func (f fakeRates) Rate(base, quote string) (decimal.Decimal, bool) {
	d, ok := f[base+"_"+quote]
	return d, ok
}

// pipeline wires a full stack over an in-memory ledger and fake wallets.
type pipeline struct {
	cfg      *models.BotConfig
	ledger   store.ActionLedger
	accounts fakeAccounts
	notifier *fakeNotifier
	resolver *resolve.Resolver
	executor *Executor
	factory  *Factory
}

func pipelineConfig() *models.BotConfig {
	return &models.BotConfig{
		Coins: map[string]models.CoinConfig{
			"btc": {
				Unit:    "btc",
				Enabled: true,
				MinConf: models.MinConfConfig{Tip: 1, Withdraw: 6},
				TxMin:   models.TxMinConfig{Tip: 0.001, Withdraw: 0.01},
				TxFee:   0.0001,
			},
			"ltc": {
				Unit:    "ltc",
				Enabled: true,
				MinConf: models.MinConfConfig{Tip: 2, Withdraw: 6},
				TxMin:   models.TxMinConfig{Tip: 0.01, Withdraw: 0.1},
				TxFee:   0.001,
			},
		},
		Fiats: map[string]models.FiatConfig{
			"usd": {Unit: "usd", Enabled: true, Symbol: "$", SymbolRegex: `\$`},
		},
		Keywords: map[string]string{"beer": "0.05"},
		Commands: models.CommandsConfig{
			Register: "register", Accept: "accept", Decline: "decline",
			History: "history", Info: "info", Withdraw: "withdraw", Tip: "tip",
		},
		Platform: models.PlatformConfig{BotUser: "tipbot", BatchLimit: 10},
	}
}

func newPipeline(t *testing.T, rates fakeRates) *pipeline {
	t.Helper()

	ledger, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ledger.Close)

	cfg := pipelineConfig()
	accounts := fakeAccounts{"btc": newFakeAccount(), "ltc": newFakeAccount()}
	accounts["btc"].txfee = decimal.RequireFromString("0.0001")
	accounts["ltc"].txfee = decimal.RequireFromString("0.001")
	notifier := &fakeNotifier{}

	resolver := resolve.NewResolver(cfg, rates, func(ctx context.Context, coinUnit, user string, minconf int) (decimal.Decimal, error) {
		account, err := accounts.Get(coinUnit)
		if err != nil {
			return decimal.Zero, err
		}
		return account.Balance(ctx, user, minconf)
	})

	validator := NewValidator(cfg, ledger, accounts, resolver, notifier)
	executor := NewExecutor(cfg, ledger, accounts, validator, notifier)

	return &pipeline{
		cfg:      cfg,
		ledger:   ledger,
		accounts: accounts,
		notifier: notifier,
		resolver: resolver,
		executor: executor,
		factory:  NewFactory(cfg, resolver),
	}
}

// registerUser seeds a fully registered user without going through the
// executor.
func (p *pipeline) registerUser(t *testing.T, username string) {
	t.Helper()
	ctx := context.Background()
	if err := p.ledger.CreateUser(ctx, username); err != nil {
		t.Fatal(err)
	}
	for unit := range p.accounts {
		if err := p.ledger.StoreAddress(ctx, username, unit, "addr-"+username+"-"+unit); err != nil {
			t.Fatal(err)
		}
	}
}

var msgSeq int

// tipAction builds a user-destined tip with a fresh origin reference.
func tipAction(from, to, coinUnit, amount string) *models.Action {
	msgSeq++
	return &models.Action{
		Kind:       models.KindGiveTip,
		FromUser:   from,
		Dest:       models.ToUser(to),
		Coin:       coinUnit,
		CoinAmount: decimal.RequireFromString(amount),
		Origin: models.OriginRef{
			MessageId: fmt.Sprintf("t1_%s_%d", from, msgSeq),
			Permalink: fmt.Sprintf("/r/test/%d", msgSeq),
		},
		CreatedAt: time.Now().UTC(),
	}
}

func simpleAction(kind models.ActionKind, from string) *models.Action {
	msgSeq++
	return &models.Action{
		Kind:     kind,
		FromUser: from,
		Origin:   models.OriginRef{MessageId: fmt.Sprintf("t4_%s_%d", from, msgSeq)},
	}
}

func actionsByMessage(id string) store.ActionFilter {
	return store.ActionFilter{MessageId: id}
}

func (p *pipeline) actionState(t *testing.T, origin models.OriginRef, kind models.ActionKind) models.ActionState {
	t.Helper()
	actions, err := p.ledger.GetActions(context.Background(), store.ActionFilter{
		Kind:      kind,
		MessageId: origin.MessageId,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 {
		t.Fatalf("got %d actions for %s/%s, want 1", len(actions), origin.MessageId, kind)
	}
	return actions[0].State
}
