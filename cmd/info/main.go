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

// Prints a user's ledger view: registration, addresses and recent
// actions. Read-only; never touches the daemons or the platform.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"cointipd/internal/common"
	"cointipd/internal/config"
	"cointipd/internal/store"

	"go.uber.org/zap"
)

func main() {
	username := flag.String("user", "", "Username to inspect (required)")
	limit := flag.Int("limit", 20, "Maximum actions to list")
	flag.Parse()

	if *username == "" {
		fmt.Fprintln(os.Stderr, "usage: info -user <name> [-limit n]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx := context.Background()
	db, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to open ledger", zap.Error(err))
	}
	defer db.Close()

	user := strings.ToLower(*username)

	if _, err := db.GetUser(ctx, user); err != nil {
		fmt.Printf("%s: not registered\n", user)
		return
	}
	fmt.Printf("%s: registered\n", user)

	botCfg, err := config.LoadBotConfig(cfg.Bot.ConfigFile)
	if err == nil {
		for _, cc := range botCfg.EnabledCoins() {
			address, err := db.GetAddress(ctx, user, cc.Unit)
			if err != nil {
				zap.L().Fatal("Failed to read address", zap.Error(err))
			}
			fmt.Printf("  %s: %s\n", strings.ToUpper(cc.Unit), address)
		}
	}

	sent, err := db.GetActions(ctx, store.ActionFilter{FromUser: user})
	if err != nil {
		zap.L().Fatal("Failed to read actions", zap.Error(err))
	}
	received, err := db.GetActions(ctx, store.ActionFilter{ToUser: user})
	if err != nil {
		zap.L().Fatal("Failed to read actions", zap.Error(err))
	}

	actions := append(sent, received...)
	if len(actions) > *limit {
		actions = actions[len(actions)-*limit:]
	}

	fmt.Printf("\n%-20s %-10s %-10s %-14s %s\n", "created", "kind", "state", "amount", "counterparty")
	for _, a := range actions {
		counterparty := a.Dest.User
		if counterparty == "" {
			counterparty = a.Dest.Address
		}
		amount := ""
		if a.Kind.ValueBearing() {
			amount = a.CoinAmount.String() + " " + strings.ToUpper(a.Coin)
		}
		fmt.Printf("%-20s %-10s %-10s %-14s %s\n",
			a.CreatedAt.Format("2006-01-02 15:04:05"),
			a.Kind, a.State, amount, counterparty)
	}
}
