/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package action

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"cointipd/internal/models"
	"cointipd/internal/store"
)

// Executor drives actions through their lifecycle. Funds never move
// without a prior validator verdict, and every side effect is preceded by
// the duplicate guard on (origin, kind).
type Executor struct {
	cfg       *models.BotConfig
	ledger    store.ActionLedger
	accounts  Accounts
	validator *Validator
	notify    Notifier
	holding   string

	mu      sync.Mutex
	senders map[string]*sync.Mutex
}

func NewExecutor(cfg *models.BotConfig, ledger store.ActionLedger, accounts Accounts, validator *Validator, notify Notifier) *Executor {
	return &Executor{
		cfg:       cfg,
		ledger:    ledger,
		accounts:  accounts,
		validator: validator,
		notify:    notify,
		holding:   holdingAccount(cfg),
		senders:   make(map[string]*sync.Mutex),
	}
}

// senderLock serializes fund movements per sender account so concurrent
// processing cannot double-spend a balance check.
func (e *Executor) senderLock(user string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.senders[user]
	if !ok {
		lock = &sync.Mutex{}
		e.senders[user] = lock
	}
	return lock
}

// Process executes one action end to end. A nil action (factory declined
// to build one) is a no-op.
func (e *Executor) Process(ctx context.Context, a *models.Action) error {
	if a == nil {
		return nil
	}

	seen, err := e.ledger.HasAction(ctx, store.ActionFilter{
		Kind:      a.Kind,
		MessageId: a.Origin.MessageId,
	})
	if err != nil {
		return err
	}
	if seen {
		zap.L().Warn("skipping already processed action",
			zap.String("msg_id", a.Origin.MessageId),
			zap.String("kind", string(a.Kind)))
		return nil
	}

	switch a.Kind {
	case models.KindRegister:
		return e.register(ctx, a)
	case models.KindAccept:
		return e.accept(ctx, a)
	case models.KindDecline:
		return e.decline(ctx, a)
	case models.KindInfo:
		return e.info(ctx, a)
	case models.KindHistory:
		return e.history(ctx, a)
	case models.KindGiveTip, models.KindWithdraw:
		lock := e.senderLock(a.FromUser)
		lock.Lock()
		defer lock.Unlock()

		ok, err := e.validator.Validate(ctx, a)
		if err != nil || !ok {
			return err
		}
		return e.transfer(ctx, a)
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

// transfer performs the validated fund movement: an intra-wallet move for
// user-destined tips, an on-chain send for addresses. A failed movement is
// recorded as failed and never retried, the outcome of an ambiguous send
// is for an operator to resolve.
func (e *Executor) transfer(ctx context.Context, a *models.Action) error {
	account, err := e.accounts.Get(a.Coin)
	if err != nil {
		return err
	}
	cc, ok := e.cfg.Coin(a.Coin)
	if !ok {
		return fmt.Errorf("action references unknown coin %q", a.Coin)
	}

	if a.Dest.IsUser() {
		if err := account.Move(ctx, a.FromUser, a.Dest.User, a.CoinAmount); err != nil {
			return e.recordTransferFailure(ctx, a, err)
		}
	} else {
		txid, err := account.SendFrom(ctx, a.FromUser, a.Dest.Address, a.CoinAmount, cc.MinConf.Withdraw)
		if err != nil {
			return e.recordTransferFailure(ctx, a, err)
		}
		a.TxId = txid
	}

	if err := e.ledger.InsertAction(ctx, a, models.StateCompleted); err != nil {
		return fmt.Errorf("transferred funds but failed to persist action %s: %w",
			a.Origin.MessageId, err)
	}

	notifyOrigin(ctx, e.notify, a, msgTransferCompleted(a))
	if a.Dest.IsUser() {
		if err := e.notify.DirectMessage(ctx, a.Dest.User, notifySubject, msgTipReceived(a)); err != nil {
			zap.L().Warn("unable to notify tip recipient",
				zap.String("to", a.Dest.User),
				zap.Error(err))
		}
	}

	zap.L().Info("action completed",
		zap.String("kind", string(a.Kind)),
		zap.String("from", a.FromUser),
		zap.String("coin", a.Coin),
		zap.String("amount", a.CoinAmount.String()))
	return nil
}

func (e *Executor) recordTransferFailure(ctx context.Context, a *models.Action, cause error) error {
	if err := e.ledger.InsertAction(ctx, a, models.StateFailed); err != nil {
		zap.L().Error("unable to record failed transfer",
			zap.String("msg_id", a.Origin.MessageId),
			zap.Error(err))
	}
	notifyOrigin(ctx, e.notify, a, msgTransferFailed(a))
	return fmt.Errorf("fund movement for %s: %w", a.Origin.MessageId, cause)
}

// register creates the user row plus one deposit address per enabled coin.
// A partial failure rolls the whole registration back so the registered
// predicate never observes a half-created account.
func (e *Executor) register(ctx context.Context, a *models.Action) error {
	already, err := registered(ctx, e.ledger, e.cfg, a.FromUser)
	if err != nil {
		return err
	}
	if already {
		if err := e.ledger.InsertAction(ctx, a, models.StateCompleted); err != nil {
			return err
		}
		notifyOrigin(ctx, e.notify, a, msgAlreadyRegistered(a))
		return nil
	}

	if err := e.createAccount(ctx, a.FromUser); err != nil {
		if insertErr := e.ledger.InsertAction(ctx, a, models.StateFailed); insertErr != nil {
			zap.L().Error("unable to record failed registration", zap.Error(insertErr))
		}
		notifyOrigin(ctx, e.notify, a, msgRegistrationFailed())
		return err
	}

	if err := e.ledger.InsertAction(ctx, a, models.StateCompleted); err != nil {
		return err
	}

	pending, err := e.ledger.GetActions(ctx, store.ActionFilter{
		Kind:   models.KindGiveTip,
		State:  models.StatePending,
		ToUser: a.FromUser,
	})
	if err != nil {
		return err
	}
	notifyOrigin(ctx, e.notify, a, msgRegistered(a, e.cfg, len(pending)))
	return nil
}

func (e *Executor) createAccount(ctx context.Context, username string) error {
	if err := e.ledger.CreateUser(ctx, username); err != nil && !errors.Is(err, store.ErrUserExists) {
		return err
	}

	for _, cc := range e.cfg.EnabledCoins() {
		existing, err := e.ledger.GetAddress(ctx, username, cc.Unit)
		if err == nil && existing != "" {
			continue
		}

		account, err := e.accounts.Get(cc.Unit)
		if err != nil {
			e.rollbackAccount(ctx, username)
			return err
		}
		address, err := account.NewAddress(ctx, username)
		if err != nil {
			e.rollbackAccount(ctx, username)
			return fmt.Errorf("generating %s address for %s: %w", cc.Unit, username, err)
		}
		if err := e.ledger.StoreAddress(ctx, username, cc.Unit, address); err != nil {
			e.rollbackAccount(ctx, username)
			return err
		}
	}
	return nil
}

func (e *Executor) rollbackAccount(ctx context.Context, username string) {
	if err := e.ledger.DeleteUser(ctx, username); err != nil {
		zap.L().Error("unable to roll back registration",
			zap.String("username", username),
			zap.Error(err))
	}
}

// accept settles every pending tip addressed to the caller, registering
// them first if needed.
func (e *Executor) accept(ctx context.Context, a *models.Action) error {
	isRegistered, err := registered(ctx, e.ledger, e.cfg, a.FromUser)
	if err != nil {
		return err
	}
	if !isRegistered {
		if err := e.createAccount(ctx, a.FromUser); err != nil {
			if insertErr := e.ledger.InsertAction(ctx, a, models.StateFailed); insertErr != nil {
				zap.L().Error("unable to record failed accept", zap.Error(insertErr))
			}
			notifyOrigin(ctx, e.notify, a, msgRegistrationFailed())
			return err
		}
	}

	settled, err := e.settlePending(ctx, a.FromUser, models.StateCompleted)
	if err != nil {
		return err
	}

	if err := e.ledger.InsertAction(ctx, a, models.StateCompleted); err != nil {
		return err
	}
	if len(settled) == 0 {
		notifyOrigin(ctx, e.notify, a, msgNothingPending(a))
		return nil
	}
	notifyOrigin(ctx, e.notify, a, msgAccepted(settled))
	return nil
}

// decline refunds every pending tip addressed to the caller back to its
// sender.
func (e *Executor) decline(ctx context.Context, a *models.Action) error {
	settled, err := e.settlePending(ctx, a.FromUser, models.StateDeclined)
	if err != nil {
		return err
	}

	if err := e.ledger.InsertAction(ctx, a, models.StateCompleted); err != nil {
		return err
	}
	if len(settled) == 0 {
		notifyOrigin(ctx, e.notify, a, msgNothingPending(a))
		return nil
	}
	notifyOrigin(ctx, e.notify, a, msgDeclined(settled))
	return nil
}

// settlePending resolves all pending tips addressed to user: completed
// releases holding funds to the recipient, declined returns them to the
// sender. Each tip's original sender is told the outcome.
func (e *Executor) settlePending(ctx context.Context, user string, outcome models.ActionState) ([]models.Action, error) {
	pending, err := e.ledger.GetActions(ctx, store.ActionFilter{
		Kind:   models.KindGiveTip,
		State:  models.StatePending,
		ToUser: user,
	})
	if err != nil {
		return nil, err
	}

	settled := make([]models.Action, 0, len(pending))
	for _, tip := range pending {
		target := tip.Dest.User
		if outcome == models.StateDeclined {
			target = tip.FromUser
		}
		released, err := e.releaseEscrow(ctx, &tip, outcome, target)
		if err != nil {
			return settled, err
		}
		if !released {
			continue
		}

		if err := e.notify.DirectMessage(ctx, tip.FromUser, notifySubject, msgPendingResolved(&tip, outcome)); err != nil {
			zap.L().Warn("unable to notify tip sender",
				zap.String("to", tip.FromUser),
				zap.Error(err))
		}
		settled = append(settled, tip)
	}
	return settled, nil
}

// releaseEscrow claims the pending tip row, then moves the held funds to
// the target. Claiming first means a concurrent settle or expiry sweep
// finds the row taken and skips it, so the holding account pays out each
// tip once. The tip sender's lock serializes the release against any
// in-flight transfer of theirs.
func (e *Executor) releaseEscrow(ctx context.Context, tip *models.Action, outcome models.ActionState, target string) (bool, error) {
	account, err := e.accounts.Get(tip.Coin)
	if err != nil {
		return false, err
	}

	lock := e.senderLock(tip.FromUser)
	lock.Lock()
	defer lock.Unlock()

	claimed, err := e.ledger.ClaimAction(ctx, tip.Origin, models.KindGiveTip, outcome)
	if err != nil {
		return false, err
	}
	if !claimed {
		zap.L().Warn("pending tip already settled, skipping",
			zap.String("msg_id", tip.Origin.MessageId),
			zap.String("outcome", string(outcome)))
		return false, nil
	}

	if err := account.Move(ctx, e.holding, target, tip.CoinAmount); err != nil {
		return false, fmt.Errorf("escrow claimed as %s but release failed for %s: %w",
			outcome, tip.Origin.MessageId, err)
	}
	return true, nil
}

// ExpireOlderThan refunds pending tips created before the cutoff and marks
// them expired. Returns the number of tips expired.
func (e *Executor) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	pending, err := e.ledger.GetPendingTipsOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, tip := range pending {
		released, err := e.releaseEscrow(ctx, &tip, models.StateExpired, tip.FromUser)
		if err != nil {
			return expired, err
		}
		if !released {
			continue
		}

		if err := e.notify.DirectMessage(ctx, tip.FromUser, notifySubject, msgPendingResolved(&tip, models.StateExpired)); err != nil {
			zap.L().Warn("unable to notify sender of expiry",
				zap.String("to", tip.FromUser),
				zap.Error(err))
		}
		expired++

		zap.L().Info("pending tip expired",
			zap.String("msg_id", tip.Origin.MessageId),
			zap.String("from", tip.FromUser),
			zap.String("coin", tip.Coin))
	}
	return expired, nil
}

// info replies with the caller's deposit addresses and balances.
func (e *Executor) info(ctx context.Context, a *models.Action) error {
	isRegistered, err := registered(ctx, e.ledger, e.cfg, a.FromUser)
	if err != nil {
		return err
	}
	if !isRegistered {
		if err := e.ledger.InsertAction(ctx, a, models.StateFailed); err != nil {
			return err
		}
		notifyOrigin(ctx, e.notify, a, msgNotRegistered(e.cfg))
		return nil
	}

	lines := make([]infoLine, 0, len(e.cfg.EnabledCoins()))
	for _, cc := range e.cfg.EnabledCoins() {
		address, err := e.ledger.GetAddress(ctx, a.FromUser, cc.Unit)
		if err != nil {
			return err
		}
		account, err := e.accounts.Get(cc.Unit)
		if err != nil {
			return err
		}
		balance, err := account.Balance(ctx, a.FromUser, cc.MinConf.Tip)
		if err != nil {
			return err
		}
		lines = append(lines, infoLine{Coin: cc.Unit, Address: address, Balance: balance})
	}

	if err := e.ledger.InsertAction(ctx, a, models.StateCompleted); err != nil {
		return err
	}
	notifyOrigin(ctx, e.notify, a, msgInfo(a, lines))
	return nil
}

// history replies with the caller's most recent actions, sent and
// received.
func (e *Executor) history(ctx context.Context, a *models.Action) error {
	sent, err := e.ledger.GetActions(ctx, store.ActionFilter{FromUser: a.FromUser})
	if err != nil {
		return err
	}
	received, err := e.ledger.GetActions(ctx, store.ActionFilter{ToUser: a.FromUser})
	if err != nil {
		return err
	}

	entries := append(sent, received...)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if len(entries) > historyLimit {
		entries = entries[:historyLimit]
	}

	if err := e.ledger.InsertAction(ctx, a, models.StateCompleted); err != nil {
		return err
	}
	notifyOrigin(ctx, e.notify, a, msgHistory(a, entries))
	return nil
}

const historyLimit = 10
