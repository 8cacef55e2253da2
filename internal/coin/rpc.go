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
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/shopspring/decimal"

	"cointipd/internal/models"
)

// RPCAccount talks to a bitcoind-lineage daemon over JSON-RPC. The
// account-model calls the bot relies on (getbalance with an account
// argument, move, sendfrom) predate the btcjson typed wrappers, so
// everything goes through RawRequest.
type RPCAccount struct {
	client *rpcclient.Client
	unit   string
}

var _ Account = (*RPCAccount)(nil)

func NewRPCAccount(cc models.CoinConfig) (*RPCAccount, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cc.RPC.Host,
		User:         cc.RPC.User,
		Pass:         cc.RPC.Pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, err
	}
	return &RPCAccount{client: client, unit: cc.Unit}, nil
}

func (a *RPCAccount) Close() {
	a.client.Shutdown()
}

func (a *RPCAccount) Balance(ctx context.Context, user string, minconf int) (decimal.Decimal, error) {
	raw, err := a.call(ctx, "getbalance", user, minconf)
	if err != nil {
		return decimal.Zero, err
	}
	var balance float64
	if err := json.Unmarshal(raw, &balance); err != nil {
		return decimal.Zero, fmt.Errorf("%s getbalance: %w", a.unit, err)
	}
	return decimal.NewFromFloat(balance), nil
}

func (a *RPCAccount) Move(ctx context.Context, from, to string, amount decimal.Decimal) error {
	raw, err := a.call(ctx, "move", from, to, rpcAmount(amount))
	if err != nil {
		return err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return fmt.Errorf("%s move: %w", a.unit, err)
	}
	if !ok {
		return fmt.Errorf("%s move %s -> %s rejected by daemon", a.unit, from, to)
	}
	return nil
}

func (a *RPCAccount) SendFrom(ctx context.Context, user, address string, amount decimal.Decimal, minconf int) (string, error) {
	raw, err := a.call(ctx, "sendfrom", user, address, rpcAmount(amount), minconf)
	if err != nil {
		return "", err
	}
	var txid string
	if err := json.Unmarshal(raw, &txid); err != nil {
		return "", fmt.Errorf("%s sendfrom: %w", a.unit, err)
	}
	return txid, nil
}

func (a *RPCAccount) NewAddress(ctx context.Context, user string) (string, error) {
	raw, err := a.call(ctx, "getnewaddress", user)
	if err != nil {
		return "", err
	}
	var address string
	if err := json.Unmarshal(raw, &address); err != nil {
		return "", fmt.Errorf("%s getnewaddress: %w", a.unit, err)
	}
	return address, nil
}

func (a *RPCAccount) ValidateAddress(ctx context.Context, address string) (bool, error) {
	raw, err := a.call(ctx, "validateaddress", address)
	if err != nil {
		return false, err
	}
	var result struct {
		IsValid bool `json:"isvalid"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return false, fmt.Errorf("%s validateaddress: %w", a.unit, err)
	}
	return result.IsValid, nil
}

func (a *RPCAccount) call(ctx context.Context, method string, args ...interface{}) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params := make([]json.RawMessage, 0, len(args))
	for _, arg := range args {
		encoded, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", a.unit, method, err)
		}
		params = append(params, encoded)
	}

	raw, err := a.client.RawRequest(method, params)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", a.unit, method, err)
	}
	return raw, nil
}

// rpcAmount rounds to the daemon's satoshi precision before marshaling.
// Legacy daemons take amounts as JSON numbers.
func rpcAmount(amount decimal.Decimal) float64 {
	return amount.Round(8).InexactFloat64()
}
