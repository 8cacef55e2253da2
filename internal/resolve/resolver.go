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

package resolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cointipd/internal/models"
)

// Epsilon is the tolerance used for balance comparisons. Coin daemons
// report balances as floating point, so exact comparison is unsafe.
var Epsilon = decimal.New(1, -6)

// RateSource exposes exchange rates from the most recent price snapshot.
// The second return is false when the pair is not covered by the feed.
type RateSource interface {
	Rate(base, quote string) (decimal.Decimal, bool)
}

// BalanceFunc reports a user's spendable balance in the given coin at the
// given confirmation depth.
type BalanceFunc func(ctx context.Context, coin, user string, minconf int) (decimal.Decimal, error)

// Resolver turns raw matched amounts into concrete coin values: keyword
// lookup, fiat conversion and, for fiat-only tips, coin selection.
type Resolver struct {
	cfg     *models.BotConfig
	rates   RateSource
	balance BalanceFunc
}

func NewResolver(cfg *models.BotConfig, rates RateSource, balance BalanceFunc) *Resolver {
	return &Resolver{cfg: cfg, rates: rates, balance: balance}
}

// ResolveAmount parses a raw amount capture. A plain number is returned as
// is. Anything else is looked up in the keyword table, whose value is
// either a literal number or an arithmetic expression evaluated on the
// spot, so deployments can define amounts like "0.5*2".
func (r *Resolver) ResolveAmount(raw string) (decimal.Decimal, error) {
	if d, err := decimal.NewFromString(raw); err == nil {
		return d, nil
	}

	value, ok := r.cfg.Keywords[strings.ToLower(raw)]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown amount keyword %q", raw)
	}

	if d, err := decimal.NewFromString(value); err == nil {
		return d, nil
	}

	vm := goja.New()
	result, err := vm.RunString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to evaluate keyword %q: %w", raw, err)
	}
	num := result.ToFloat()
	if num <= 0 {
		return decimal.Zero, fmt.Errorf("keyword %q evaluated to non-positive amount", raw)
	}
	return decimal.NewFromFloat(num), nil
}

// rate returns the base->quote conversion rate, bridging through btc when
// the feed carries no direct pair. Both legs must be present and positive.
func (r *Resolver) rate(base, quote string) (decimal.Decimal, error) {
	if base == quote {
		return decimal.New(1, 0), nil
	}
	if direct, ok := r.rates.Rate(base, quote); ok && direct.IsPositive() {
		return direct, nil
	}

	leg1, ok1 := r.rates.Rate(base, "btc")
	leg2, ok2 := r.rates.Rate("btc", quote)
	if !ok1 || !ok2 || !leg1.IsPositive() || !leg2.IsPositive() {
		zap.L().Warn("price feed missing conversion legs",
			zap.String("base", base),
			zap.String("quote", quote))
		return decimal.Zero, fmt.Errorf("no exchange rate for %s/%s", base, quote)
	}
	return leg1.Mul(leg2), nil
}

// CoinToFiat converts a coin amount into fiat at the current snapshot.
func (r *Resolver) CoinToFiat(coin, fiat string, amount decimal.Decimal) (decimal.Decimal, error) {
	rate, err := r.rate(coin, fiat)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

// FiatToCoin converts a fiat amount into a coin amount at the current
// snapshot.
func (r *Resolver) FiatToCoin(coin, fiat string, amount decimal.Decimal) (decimal.Decimal, error) {
	rate, err := r.rate(coin, fiat)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Div(rate), nil
}

// SelectCoin picks the coin to settle a fiat-denominated tip with no
// explicit unit. Enabled coins are tried alphabetically by unit, and the
// first one the sender can cover wins. If any enabled coin is missing a
// feed leg the whole selection fails rather than silently skipping it,
// since the skipped coin might have been the sender's only funded one.
func (r *Resolver) SelectCoin(ctx context.Context, fromUser, fiat string, fiatAmount decimal.Decimal) (string, decimal.Decimal, error) {
	type candidate struct {
		unit    string
		minconf int
		amount  decimal.Decimal
	}

	coins := r.cfg.EnabledCoins()
	candidates := make([]candidate, 0, len(coins))
	for _, cc := range coins {
		coinAmount, err := r.FiatToCoin(cc.Unit, fiat, fiatAmount)
		if err != nil {
			return "", decimal.Zero, fmt.Errorf("cannot price %s: %w", cc.Unit, err)
		}
		candidates = append(candidates, candidate{unit: cc.Unit, minconf: cc.MinConf.Tip, amount: coinAmount})
	}

	for _, c := range candidates {
		balance, err := r.balance(ctx, c.unit, fromUser, c.minconf)
		if err != nil {
			return "", decimal.Zero, fmt.Errorf("balance check for %s: %w", c.unit, err)
		}
		if balance.Add(Epsilon).GreaterThanOrEqual(c.amount) {
			return c.unit, c.amount, nil
		}
	}

	return "", decimal.Zero, fmt.Errorf("insufficient funds in every enabled coin for %s %s",
		fiatAmount.String(), fiat)
}
