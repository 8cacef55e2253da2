package action

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cointipd/internal/coin"
	"cointipd/internal/models"
	"cointipd/internal/store"
)

func TestRegisterCreatesUserAndAddresses(t *testing.T) {
	p := newPipeline(t, fakeRates{})
	ctx := context.Background()

	a := simpleAction(models.KindRegister, "alice")
	if err := p.executor.Process(ctx, a); err != nil {
		t.Fatal(err)
	}

	if got := p.actionState(t, a.Origin, models.KindRegister); got != models.StateCompleted {
		t.Errorf("got state %q, want completed", got)
	}
	if _, err := p.ledger.GetUser(ctx, "alice"); err != nil {
		t.Errorf("user row missing: %v", err)
	}
	count, err := p.ledger.CountAddresses(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("got %d address rows, want one per enabled coin (2)", count)
	}
}

func TestRegisterTwiceIsHarmless(t *testing.T) {
	p := newPipeline(t, fakeRates{})
	ctx := context.Background()

	if err := p.executor.Process(ctx, simpleAction(models.KindRegister, "alice")); err != nil {
		t.Fatal(err)
	}
	a := simpleAction(models.KindRegister, "alice")
	if err := p.executor.Process(ctx, a); err != nil {
		t.Fatal(err)
	}
	if got := p.actionState(t, a.Origin, models.KindRegister); got != models.StateCompleted {
		t.Errorf("got state %q, want completed", got)
	}
}

func TestTipBetweenRegisteredUsers(t *testing.T) {
	p := newPipeline(t, fakeRates{})
	ctx := context.Background()
	p.registerUser(t, "alice")
	p.registerUser(t, "bob")
	p.accounts["btc"].setBalance("alice", "1")

	a := tipAction("alice", "bob", "btc", "0.25")
	if err := p.executor.Process(ctx, a); err != nil {
		t.Fatal(err)
	}

	if got := p.actionState(t, a.Origin, models.KindGiveTip); got != models.StateCompleted {
		t.Errorf("got state %q, want completed", got)
	}
	if got := p.accounts["btc"].balanceOf("alice"); !got.Equal(decimal.RequireFromString("0.75")) {
		t.Errorf("sender balance %s, want 0.75", got)
	}
	if got := p.accounts["btc"].balanceOf("bob"); !got.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("recipient balance %s, want 0.25", got)
	}
	if p.notifier.dmCount("bob") != 1 {
		t.Errorf("recipient should get exactly one notification, got %d", p.notifier.dmCount("bob"))
	}
}

// Submitting the same origin twice must produce exactly one persisted
// action and one fund movement.
func TestIdempotenceOnDuplicateOrigin(t *testing.T) {
	p := newPipeline(t, fakeRates{})
	ctx := context.Background()
	p.registerUser(t, "alice")
	p.registerUser(t, "bob")
	p.accounts["btc"].setBalance("alice", "1")

	a := tipAction("alice", "bob", "btc", "0.25")
	if err := p.executor.Process(ctx, a); err != nil {
		t.Fatal(err)
	}

	replay := *a // same origin, fresh struct
	if err := p.executor.Process(ctx, &replay); err != nil {
		t.Fatal(err)
	}

	if got := p.accounts["btc"].balanceOf("bob"); !got.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("replay moved funds twice: recipient has %s, want 0.25", got)
	}
	actions, err := p.ledger.GetActions(ctx, store.ActionFilter{MessageId: a.Origin.MessageId})
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 {
		t.Errorf("got %d persisted actions, want 1", len(actions))
	}
}

// Escrow conservation: the sender's balance drops by exactly the tip
// amount, holding gains it, and the recipient sees nothing until accept.
func TestEscrowConservation(t *testing.T) {
	p := newPipeline(t, fakeRates{})
	ctx := context.Background()
	p.registerUser(t, "alice")
	p.accounts["btc"].setBalance("alice", "1")

	a := tipAction("alice", "carol", "btc", "0.3")
	if err := p.executor.Process(ctx, a); err != nil {
		t.Fatal(err)
	}

	if got := p.actionState(t, a.Origin, models.KindGiveTip); got != models.StatePending {
		t.Fatalf("got state %q, want pending", got)
	}
	if got := p.accounts["btc"].balanceOf("alice"); !got.Equal(decimal.RequireFromString("0.7")) {
		t.Errorf("sender balance %s, want 0.7", got)
	}
	if got := p.accounts["btc"].balanceOf("tipbot"); !got.Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("holding balance %s, want 0.3", got)
	}
	if got := p.accounts["btc"].balanceOf("carol"); !got.IsZero() {
		t.Errorf("recipient balance %s before accept, want 0", got)
	}
	if p.notifier.dmCount("carol") != 1 {
		t.Errorf("recipient should be told about the pending tip")
	}

	// Accept registers carol and releases the escrow.
	accept := simpleAction(models.KindAccept, "carol")
	if err := p.executor.Process(ctx, accept); err != nil {
		t.Fatal(err)
	}

	if got := p.actionState(t, a.Origin, models.KindGiveTip); got != models.StateCompleted {
		t.Errorf("got state %q after accept, want completed", got)
	}
	if got := p.accounts["btc"].balanceOf("carol"); !got.Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("recipient balance %s after accept, want 0.3", got)
	}
	if got := p.accounts["btc"].balanceOf("tipbot"); !got.IsZero() {
		t.Errorf("holding balance %s after accept, want 0", got)
	}
	registered, err := registered(ctx, p.ledger, p.cfg, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if !registered {
		t.Error("accept should have registered the recipient")
	}
}

func TestDeclineRefundsSender(t *testing.T) {
	p := newPipeline(t, fakeRates{})
	ctx := context.Background()
	p.registerUser(t, "alice")
	p.accounts["btc"].setBalance("alice", "1")

	a := tipAction("alice", "carol", "btc", "0.3")
	if err := p.executor.Process(ctx, a); err != nil {
		t.Fatal(err)
	}

	if err := p.executor.Process(ctx, simpleAction(models.KindDecline, "carol")); err != nil {
		t.Fatal(err)
	}

	if got := p.actionState(t, a.Origin, models.KindGiveTip); got != models.StateDeclined {
		t.Errorf("got state %q, want declined", got)
	}
	if got := p.accounts["btc"].balanceOf("alice"); !got.Equal(decimal.RequireFromString("1")) {
		t.Errorf("sender balance %s after decline, want 1 (restored exactly)", got)
	}
	if got := p.accounts["btc"].balanceOf("tipbot"); !got.IsZero() {
		t.Errorf("holding balance %s after decline, want 0", got)
	}
}

func TestExpireRefundsSender(t *testing.T) {
	p := newPipeline(t, fakeRates{})
	ctx := context.Background()
	p.registerUser(t, "alice")
	p.accounts["btc"].setBalance("alice", "1")

	a := tipAction("alice", "carol", "btc", "0.3")
	a.CreatedAt = time.Now().Add(-48 * time.Hour).UTC()
	if err := p.executor.Process(ctx, a); err != nil {
		t.Fatal(err)
	}

	expired, err := p.executor.ExpireOlderThan(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if expired != 1 {
		t.Fatalf("got %d expired, want 1", expired)
	}

	if got := p.actionState(t, a.Origin, models.KindGiveTip); got != models.StateExpired {
		t.Errorf("got state %q, want expired", got)
	}
	if got := p.accounts["btc"].balanceOf("alice"); !got.Equal(decimal.RequireFromString("1")) {
		t.Errorf("sender balance %s after expiry, want 1", got)
	}

	// A later sweep finds nothing.
	expired, err = p.executor.ExpireOlderThan(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if expired != 0 {
		t.Errorf("second sweep expired %d tips, want 0", expired)
	}
}

// An accept racing the expiry sweep on the same pending tip must release
// the escrow exactly once, never paying the recipient and refunding the
// sender both.
func TestConcurrentAcceptAndExpirySettleOnce(t *testing.T) {
	p := newPipeline(t, fakeRates{})
	ctx := context.Background()
	p.registerUser(t, "alice")
	p.accounts["btc"].setBalance("alice", "1")

	a := tipAction("alice", "carol", "btc", "0.3")
	if err := p.executor.Process(ctx, a); err != nil {
		t.Fatal(err)
	}
	if got := p.accounts["btc"].balanceOf("tipbot"); !got.Equal(decimal.RequireFromString("0.3")) {
		t.Fatalf("holding balance %s before the race, want 0.3", got)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- p.executor.Process(ctx, simpleAction(models.KindAccept, "carol"))
	}()
	go func() {
		defer wg.Done()
		_, err := p.executor.ExpireOlderThan(ctx, time.Now().Add(time.Minute))
		errs <- err
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	// Whichever side won, the held funds moved once.
	if got := p.accounts["btc"].balanceOf("tipbot"); !got.IsZero() {
		t.Errorf("holding balance %s after the race, want 0", got)
	}
	total := p.accounts["btc"].balanceOf("alice").Add(p.accounts["btc"].balanceOf("carol"))
	if !total.Equal(decimal.RequireFromString("1")) {
		t.Errorf("alice+carol hold %s, want 1", total)
	}
	state := p.actionState(t, a.Origin, models.KindGiveTip)
	if state != models.StateCompleted && state != models.StateExpired {
		t.Errorf("got state %q, want completed or expired", state)
	}
	if got := p.notifier.dmCount("alice"); got != 1 {
		t.Errorf("sender got %d outcome notices, want 1", got)
	}
}

// stolenClaim wraps an Accounts and fires a hook on the first wallet
// lookup, after a settler has read the tip as pending but before it
// claims the row.
type stolenClaim struct {
	inner Accounts
	once  sync.Once
	hook  func()
}

func (s *stolenClaim) Get(unit string) (coin.Account, error) {
	s.once.Do(s.hook)
	return s.inner.Get(unit)
}

// A settler that read a tip as pending but lost the claim must skip it
// without touching the held funds.
func TestSettleOfAlreadySettledTipIsNoOp(t *testing.T) {
	p := newPipeline(t, fakeRates{})
	ctx := context.Background()
	p.registerUser(t, "alice")
	p.accounts["btc"].setBalance("alice", "1")

	a := tipAction("alice", "carol", "btc", "0.3")
	if err := p.executor.Process(ctx, a); err != nil {
		t.Fatal(err)
	}

	// The sweep reads the tip as pending; a rival decline then claims
	// the row before the sweep does.
	rival := &stolenClaim{inner: p.accounts, hook: func() {
		claimed, err := p.ledger.ClaimAction(ctx, a.Origin, models.KindGiveTip, models.StateDeclined)
		if err != nil {
			t.Error(err)
		}
		if !claimed {
			t.Error("rival claim should win")
		}
	}}
	sweep := NewExecutor(p.cfg, p.ledger, rival, nil, p.notifier)

	expired, err := sweep.ExpireOlderThan(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if expired != 0 {
		t.Errorf("sweep expired %d tips, want 0", expired)
	}
	if got := p.accounts["btc"].balanceOf("tipbot"); !got.Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("holding balance %s, want 0.3 (no double release)", got)
	}
	if got := p.actionState(t, a.Origin, models.KindGiveTip); got != models.StateDeclined {
		t.Errorf("got state %q, want declined", got)
	}
}

func TestAcceptWithNothingPending(t *testing.T) {
	p := newPipeline(t, fakeRates{})
	ctx := context.Background()
	p.registerUser(t, "bob")

	a := simpleAction(models.KindAccept, "bob")
	if err := p.executor.Process(ctx, a); err != nil {
		t.Fatal(err)
	}
	if got := p.actionState(t, a.Origin, models.KindAccept); got != models.StateCompleted {
		t.Errorf("got state %q, want completed", got)
	}
	if p.notifier.dmCount("bob") != 1 {
		t.Errorf("bob should be told there is nothing to accept")
	}
}

func TestWithdrawSendsOnChain(t *testing.T) {
	p := newPipeline(t, fakeRates{})
	ctx := context.Background()
	p.registerUser(t, "alice")
	p.accounts["btc"].setBalance("alice", "1")

	msgSeq++
	a := &models.Action{
		Kind:       models.KindWithdraw,
		FromUser:   "alice",
		Dest:       models.ToAddress("1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"),
		Coin:       "btc",
		CoinAmount: decimal.RequireFromString("0.5"),
		Origin:     models.OriginRef{MessageId: "t4_withdraw_1"},
	}
	if err := p.executor.Process(ctx, a); err != nil {
		t.Fatal(err)
	}

	actions, err := p.ledger.GetActions(ctx, store.ActionFilter{MessageId: a.Origin.MessageId})
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 || actions[0].State != models.StateCompleted {
		t.Fatalf("expected one completed action, got %+v", actions)
	}
	if actions[0].TxId == "" {
		t.Error("completed withdraw should carry a txid")
	}
	if len(p.accounts["btc"].sends) != 1 {
		t.Errorf("got %d on-chain sends, want 1", len(p.accounts["btc"].sends))
	}
	if conf := p.accounts["btc"].sendConf; len(conf) != 1 || conf[0] != 6 {
		t.Errorf("send used minconf %v, want the configured withdraw minimum 6", conf)
	}
}

func TestInfoRepliesWithBalances(t *testing.T) {
	p := newPipeline(t, fakeRates{})
	ctx := context.Background()
	p.registerUser(t, "alice")
	p.accounts["btc"].setBalance("alice", "0.5")

	a := simpleAction(models.KindInfo, "alice")
	if err := p.executor.Process(ctx, a); err != nil {
		t.Fatal(err)
	}
	if got := p.actionState(t, a.Origin, models.KindInfo); got != models.StateCompleted {
		t.Errorf("got state %q, want completed", got)
	}
	if p.notifier.dmCount("alice") != 1 {
		t.Fatalf("alice should get an info reply")
	}
	if !strings.Contains(p.notifier.dms[0].Text, "0.5") {
		t.Errorf("info reply should include the balance, got %q", p.notifier.dms[0].Text)
	}
}

func TestInfoRequiresRegistration(t *testing.T) {
	p := newPipeline(t, fakeRates{})
	ctx := context.Background()

	a := simpleAction(models.KindInfo, "nobody")
	if err := p.executor.Process(ctx, a); err != nil {
		t.Fatal(err)
	}
	if got := p.actionState(t, a.Origin, models.KindInfo); got != models.StateFailed {
		t.Errorf("got state %q, want failed", got)
	}
}

func TestHistoryListsRecentActions(t *testing.T) {
	p := newPipeline(t, fakeRates{})
	ctx := context.Background()
	p.registerUser(t, "alice")
	p.registerUser(t, "bob")
	p.accounts["btc"].setBalance("alice", "1")

	tip := tipAction("alice", "bob", "btc", "0.1")
	if err := p.executor.Process(ctx, tip); err != nil {
		t.Fatal(err)
	}

	a := simpleAction(models.KindHistory, "bob")
	if err := p.executor.Process(ctx, a); err != nil {
		t.Fatal(err)
	}
	if p.notifier.dmCount("bob") == 0 {
		t.Fatal("bob should get a history reply")
	}
	last := p.notifier.dms[len(p.notifier.dms)-1]
	if !strings.Contains(last.Text, "givetip") {
		t.Errorf("history should list the received tip, got %q", last.Text)
	}
}
