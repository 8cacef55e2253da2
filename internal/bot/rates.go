package bot

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"cointipd/internal/action"
	"cointipd/internal/models"
	"cointipd/internal/pricefeed"
)

// snapshotHolder carries the price snapshot for the current iteration.
// The bot swaps it exactly once per pass, before any message is
// processed, so both legs of a bridged conversion read the same snapshot.
type snapshotHolder struct {
	mu   sync.RWMutex
	snap pricefeed.Snapshot
}

func (h *snapshotHolder) update(snap pricefeed.Snapshot) {
	h.mu.Lock()
	h.snap = snap
	h.mu.Unlock()
}

func (h *snapshotHolder) Rate(base, quote string) (decimal.Decimal, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.snap == nil {
		return decimal.Zero, false
	}
	return h.snap.Rate(base, quote)
}

// balanceFunc adapts the per-coin wallet registry to the resolver's
// balance lookup.
func balanceFunc(accounts action.Accounts) func(ctx context.Context, coinUnit, user string, minconf int) (decimal.Decimal, error) {
	return func(ctx context.Context, coinUnit, user string, minconf int) (decimal.Decimal, error) {
		account, err := accounts.Get(coinUnit)
		if err != nil {
			return decimal.Zero, err
		}
		return account.Balance(ctx, user, minconf)
	}
}

// platformNotifier adapts the platform client to the executor's notifier.
type platformNotifier struct {
	platform Platform
}

func (n platformNotifier) Reply(ctx context.Context, origin models.OriginRef, text string) error {
	return n.platform.Reply(ctx, origin.MessageId, text)
}

func (n platformNotifier) DirectMessage(ctx context.Context, user, subject, text string) error {
	return n.platform.DirectMessage(ctx, user, subject, text)
}
