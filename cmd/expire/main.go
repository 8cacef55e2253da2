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

// Expires stale pending tips: refunds each sender and marks the action
// expired. Intended for cron; the bot also sweeps once per polling pass.
package main

import (
	"context"
	"flag"
	"time"

	"cointipd/internal/bot"
	"cointipd/internal/common"
	"cointipd/internal/config"

	"go.uber.org/zap"
)

func main() {
	ttl := flag.Duration("ttl", 0, "Override the pending-tip TTL (default: BOT_PENDING_TIP_TTL)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}
	if *ttl > 0 {
		cfg.Bot.PendingTipTTL = *ttl
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	b, err := bot.New(cfg.Bot, services.BotConfig, services.DbService,
		services.Platform, services.Feed, services.Coins)
	if err != nil {
		zap.L().Fatal("Failed to build bot", zap.Error(err))
	}

	expired, err := b.ExpireOnce(ctx)
	if err != nil {
		zap.L().Fatal("Expiry sweep failed", zap.Error(err))
	}
	zap.L().Info("Expiry sweep complete",
		zap.Int("expired", expired),
		zap.Duration("ttl", cfg.Bot.PendingTipTTL))
}
