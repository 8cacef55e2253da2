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
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cointipd/internal/grammar"
	"cointipd/internal/models"
	"cointipd/internal/resolve"
)

// Factory builds Action records from matched commands. Construction
// failures on expected-negative paths (unresolvable amount, missing
// destination) return nil rather than an error; the caller simply moves
// on to the next message.
type Factory struct {
	cfg      *models.BotConfig
	resolver *resolve.Resolver
}

func NewFactory(cfg *models.BotConfig, resolver *resolve.Resolver) *Factory {
	return &Factory{cfg: cfg, resolver: resolver}
}

// FromMatch turns a match into an Action. Identity fields (kind, sender,
// origin) are fixed here and never change afterwards. For a fiat-only tip
// the coin is left empty and resolved during validation, after the sender's
// registration has been confirmed.
func (f *Factory) FromMatch(msg *models.Message, match *grammar.Match) *models.Action {
	a := &models.Action{
		Kind:      match.Rule.Kind,
		FromUser:  strings.ToLower(msg.Author),
		Origin:    msg.Origin(),
		Subreddit: msg.Subreddit,
		CreatedAt: msg.CreatedAt,
	}

	if !a.Kind.ValueBearing() {
		return a
	}

	switch {
	case match.Address != "":
		a.Dest = models.ToAddress(match.Address)
	case match.To != "":
		a.Dest = models.ToUser(strings.ToLower(match.To))
	}
	if !a.Dest.Valid() {
		zap.L().Debug("match has no usable destination",
			zap.String("msg_id", msg.Id),
			zap.String("form", match.Rule.Form))
		return nil
	}

	amount, err := f.resolver.ResolveAmount(match.Amount)
	if err != nil || !amount.IsPositive() {
		zap.L().Debug("unable to resolve amount",
			zap.String("msg_id", msg.Id),
			zap.String("raw", match.Amount),
			zap.Error(err))
		return nil
	}

	a.Coin = match.Rule.Coin
	a.Fiat = match.Rule.Fiat

	if a.Fiat != "" {
		a.FiatAmount = amount
		if a.Coin != "" {
			coinAmount, err := f.resolver.FiatToCoin(a.Coin, a.Fiat, amount)
			if err != nil {
				// Graceful zero: the minimum-size check downstream
				// rejects the action with a proper notification.
				zap.L().Warn("fiat conversion unavailable",
					zap.String("coin", a.Coin),
					zap.String("fiat", a.Fiat))
				coinAmount = decimal.Zero
			}
			a.CoinAmount = coinAmount
		}
		return a
	}

	a.CoinAmount = amount
	if fiats := f.cfg.EnabledFiats(); len(fiats) > 0 {
		if fiatAmount, err := f.resolver.CoinToFiat(a.Coin, fiats[0].Unit, amount); err == nil {
			a.Fiat = fiats[0].Unit
			a.FiatAmount = fiatAmount
		}
	}
	return a
}
