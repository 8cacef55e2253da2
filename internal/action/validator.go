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

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cointipd/internal/coin"
	"cointipd/internal/models"
	"cointipd/internal/resolve"
	"cointipd/internal/store"
)

// Accounts provides the per-coin wallet backends.
type Accounts interface {
	Get(unit string) (coin.Account, error)
}

// Notifier delivers user-facing outcomes: public replies under the
// originating comment and private direct messages.
type Notifier interface {
	Reply(ctx context.Context, origin models.OriginRef, text string) error
	DirectMessage(ctx context.Context, user, subject, text string) error
}

// Validator gates value-bearing actions with an ordered sequence of
// business checks. A rejected action is fully handled here: persisted as
// failed, sender notified. The executor trusts a positive verdict and does
// not re-check.
type Validator struct {
	cfg      *models.BotConfig
	ledger   store.ActionLedger
	accounts Accounts
	resolver *resolve.Resolver
	notify   Notifier
	holding  string
}

func NewValidator(cfg *models.BotConfig, ledger store.ActionLedger, accounts Accounts, resolver *resolve.Resolver, notify Notifier) *Validator {
	return &Validator{
		cfg:      cfg,
		ledger:   ledger,
		accounts: accounts,
		resolver: resolver,
		notify:   notify,
		holding:  holdingAccount(cfg),
	}
}

// Validate runs the checks in a fixed order. A false return with nil error
// means the action was rejected or diverted to escrow and needs no further
// handling. A non-nil error is a fault: ledger or daemon trouble outside
// the expected-negative paths.
func (v *Validator) Validate(ctx context.Context, a *models.Action) (bool, error) {
	if !a.Kind.ValueBearing() {
		return true, nil
	}

	// 1. Sender must be registered.
	senderRegistered, err := registered(ctx, v.ledger, v.cfg, a.FromUser)
	if err != nil {
		return false, err
	}
	if !senderRegistered {
		return v.reject(ctx, a, msgNotRegistered(v.cfg))
	}

	// 2. Coin must be determined. A fiat-only tip picks one here, now
	// that the sender is known to have balances to check.
	if a.Coin == "" {
		unit, coinAmount, err := v.resolver.SelectCoin(ctx, a.FromUser, a.Fiat, a.FiatAmount)
		if err != nil {
			zap.L().Debug("coin auto-selection failed",
				zap.String("from", a.FromUser),
				zap.Error(err))
			return v.reject(ctx, a, msgNoCoinForFiat(a))
		}
		a.Coin = unit
		a.CoinAmount = coinAmount
	}
	cc, ok := v.cfg.Coin(a.Coin)
	if !ok {
		return false, fmt.Errorf("action references unknown coin %q", a.Coin)
	}
	account, err := v.accounts.Get(a.Coin)
	if err != nil {
		return false, err
	}

	// 3. Sender must hold a deposit address for the coin.
	address, err := v.ledger.GetAddress(ctx, a.FromUser, a.Coin)
	if err != nil {
		return false, err
	}
	if address == "" {
		return v.reject(ctx, a, msgNoDepositAddress(a))
	}

	// 4. Amount must meet the coin's configured minimum for this kind.
	txMin := decimalFromFloat(cc.TxMin.Tip)
	if a.Kind == models.KindWithdraw {
		txMin = decimalFromFloat(cc.TxMin.Withdraw)
	}
	if !a.CoinAmount.IsPositive() || a.CoinAmount.LessThan(txMin) {
		return v.reject(ctx, a, msgBelowMinimum(a, txMin))
	}

	// 5. Balance must cover the amount, plus the network fee for
	// address-destined transfers, which also need deeper confirmations.
	minconf := cc.MinConf.Tip
	need := a.CoinAmount
	if !a.Dest.IsUser() {
		minconf = cc.MinConf.Withdraw
		need = need.Add(decimalFromFloat(cc.TxFee))
	}
	balance, err := account.Balance(ctx, a.FromUser, minconf)
	if err != nil {
		return false, err
	}
	if balance.Add(resolve.Epsilon).LessThan(need) {
		return v.reject(ctx, a, msgInsufficientBalance(a, balance, need))
	}

	if a.Dest.IsUser() {
		// 6. One pending tip per (sender, recipient, coin) at a time.
		duplicate, err := v.ledger.HasAction(ctx, store.ActionFilter{
			Kind:     models.KindGiveTip,
			State:    models.StatePending,
			Coin:     a.Coin,
			FromUser: a.FromUser,
			ToUser:   a.Dest.User,
		})
		if err != nil {
			return false, err
		}
		if duplicate {
			return v.reject(ctx, a, msgDuplicatePending(a))
		}

		// 7. Unregistered recipients divert into escrow.
		recipientRegistered, err := registered(ctx, v.ledger, v.cfg, a.Dest.User)
		if err != nil {
			return false, err
		}
		if !recipientRegistered {
			return v.escrow(ctx, a, account)
		}
	} else {
		// 8. Raw addresses get an offline pre-check, then the daemon's
		// verdict.
		if !coin.PrecheckAddress(a.Coin, a.Dest.Address) {
			return v.reject(ctx, a, msgInvalidAddress(a))
		}
		valid, err := account.ValidateAddress(ctx, a.Dest.Address)
		if err != nil {
			return false, err
		}
		if !valid {
			return v.reject(ctx, a, msgInvalidAddress(a))
		}
	}

	return true, nil
}

// reject persists the action as failed and tells the sender why.
func (v *Validator) reject(ctx context.Context, a *models.Action, reason string) (bool, error) {
	if err := v.ledger.InsertAction(ctx, a, models.StateFailed); err != nil {
		if errors.Is(err, store.ErrDuplicateAction) {
			zap.L().Warn("rejected action already recorded",
				zap.String("msg_id", a.Origin.MessageId),
				zap.String("kind", string(a.Kind)))
			return false, nil
		}
		return false, err
	}
	notifyOrigin(ctx, v.notify, a, reason)
	return false, nil
}

// escrow moves the tip into the bot's holding account and parks the action
// as pending until the recipient registers and accepts, declines, or the
// tip expires.
func (v *Validator) escrow(ctx context.Context, a *models.Action, account coin.Account) (bool, error) {
	if err := account.Move(ctx, a.FromUser, v.holding, a.CoinAmount); err != nil {
		// The move is all-or-nothing inside the wallet, so a failure
		// here left balances untouched.
		if _, rejectErr := v.reject(ctx, a, msgTransferFailed(a)); rejectErr != nil {
			zap.L().Error("unable to record failed escrow", zap.Error(rejectErr))
		}
		return false, fmt.Errorf("escrow move for %s: %w", a.Origin.MessageId, err)
	}

	if err := v.ledger.InsertAction(ctx, a, models.StatePending); err != nil {
		// Funds are already in holding. Never retry the move; surface
		// the inconsistency for an operator.
		return false, fmt.Errorf("escrowed funds but failed to persist pending action %s: %w",
			a.Origin.MessageId, err)
	}

	notifyOrigin(ctx, v.notify, a, msgTipHeld(a, v.cfg))
	if err := v.notify.DirectMessage(ctx, a.Dest.User, notifySubject, msgPendingTipReceived(a, v.cfg)); err != nil {
		zap.L().Warn("unable to notify pending-tip recipient",
			zap.String("to", a.Dest.User),
			zap.Error(err))
	}
	return false, nil
}

// registered reports whether a user row exists and every enabled coin has
// a stored deposit address.
func registered(ctx context.Context, ledger store.ActionLedger, cfg *models.BotConfig, username string) (bool, error) {
	_, err := ledger.GetUser(ctx, username)
	if errors.Is(err, store.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	count, err := ledger.CountAddresses(ctx, username)
	if err != nil {
		return false, err
	}
	return count >= len(cfg.EnabledCoins()), nil
}

// holdingAccount is the wallet account escrowed tips sit in.
func holdingAccount(cfg *models.BotConfig) string {
	return cfg.Platform.BotUser
}

func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
