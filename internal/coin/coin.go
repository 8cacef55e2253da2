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

package coin

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"

	"cointipd/internal/models"
)

// Account is the custodial wallet surface the bot needs from a coin
// daemon. Users are wallet accounts, funds move between accounts without
// touching the chain, and only withdrawals broadcast transactions.
type Account interface {
	// Balance returns user's spendable balance counting only deposits
	// with at least minconf confirmations.
	Balance(ctx context.Context, user string, minconf int) (decimal.Decimal, error)

	// Move transfers amount between two accounts inside the wallet.
	Move(ctx context.Context, from, to string, amount decimal.Decimal) error

	// SendFrom broadcasts an on-chain send from user's account and
	// returns the transaction id.
	SendFrom(ctx context.Context, user, address string, amount decimal.Decimal, minconf int) (string, error)

	// NewAddress generates a fresh deposit address for user's account.
	NewAddress(ctx context.Context, user string) (string, error)

	// ValidateAddress asks the daemon whether the address is well formed
	// for its network.
	ValidateAddress(ctx context.Context, address string) (bool, error)
}

// Registry holds one connected Account per enabled coin unit.
type Registry struct {
	accounts map[string]Account
}

// NewRegistry dials every enabled coin's daemon.
func NewRegistry(cfg *models.BotConfig) (*Registry, error) {
	accounts := make(map[string]Account)
	for _, cc := range cfg.EnabledCoins() {
		account, err := NewRPCAccount(cc)
		if err != nil {
			return nil, fmt.Errorf("unable to connect %s daemon: %w", cc.Unit, err)
		}
		accounts[cc.Unit] = account
	}
	return &Registry{accounts: accounts}, nil
}

// Get returns the account backend for a coin unit.
func (r *Registry) Get(unit string) (Account, error) {
	account, ok := r.accounts[unit]
	if !ok {
		return nil, fmt.Errorf("no daemon configured for coin %q", unit)
	}
	return account, nil
}

// Close shuts down all daemon connections.
func (r *Registry) Close() {
	for _, account := range r.accounts {
		if closer, ok := account.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}

// PrecheckAddress is an offline sanity check run before asking the daemon.
// Bitcoin addresses are fully decoded, anything else already passed the
// coin's configured address pattern at match time.
func PrecheckAddress(unit, address string) bool {
	if unit != "btc" {
		return true
	}
	_, err := btcutil.DecodeAddress(address, &chaincfg.MainNetParams)
	return err == nil
}
