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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActionKind identifies what a parsed command asks the bot to do.
type ActionKind string

const (
	KindAccept   ActionKind = "accept"
	KindDecline  ActionKind = "decline"
	KindHistory  ActionKind = "history"
	KindInfo     ActionKind = "info"
	KindRegister ActionKind = "register"
	KindGiveTip  ActionKind = "givetip"
	KindWithdraw ActionKind = "withdraw"
)

// ValueBearing reports whether the kind moves funds and therefore needs a
// destination and a resolvable amount.
func (k ActionKind) ValueBearing() bool {
	return k == KindGiveTip || k == KindWithdraw
}

// ActionState is the persisted lifecycle state of an Action. The zero value
// means the action has not been persisted yet. Every state except
// StatePending is terminal.
type ActionState string

const (
	StatePending   ActionState = "pending"
	StateCompleted ActionState = "completed"
	StateFailed    ActionState = "failed"
	StateDeclined  ActionState = "declined"
	StateExpired   ActionState = "expired"
)

// Destination is where a value-bearing action sends funds: a registered
// user account or a raw chain address, never both.
type Destination struct {
	User    string
	Address string
}

func ToUser(name string) Destination    { return Destination{User: name} }
func ToAddress(addr string) Destination { return Destination{Address: addr} }

// Valid enforces the user-xor-address rule.
func (d Destination) Valid() bool {
	return (d.User != "") != (d.Address != "")
}

func (d Destination) IsUser() bool { return d.User != "" }

// OriginRef points back to the message or comment that produced an action.
// Paired with the action kind it is the ledger's uniqueness key.
type OriginRef struct {
	MessageId string
	Permalink string
}

// Action is a financial intent parsed from a message or comment. Kind,
// FromUser and Origin are fixed at construction; only State, the resolved
// amounts and TransactionId change afterwards.
type Action struct {
	Id         string          `db:"id"`
	Kind       ActionKind      `db:"type"`
	State      ActionState     `db:"state"`
	FromUser   string          `db:"from_user"`
	Dest       Destination     // to_user / to_addr columns
	Coin       string          `db:"coin"`
	Fiat       string          `db:"fiat"`
	CoinAmount decimal.Decimal `db:"coin_amount"`
	FiatAmount decimal.Decimal `db:"fiat_amount"`
	TxId       string          `db:"txid"`
	Origin     OriginRef       // msg_id / msg_link columns
	Subreddit  string          `db:"subreddit"`
	CreatedAt  time.Time       `db:"created_at"`
}
