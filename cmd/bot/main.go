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

package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"cointipd/internal/bot"
	"cointipd/internal/common"
	"cointipd/internal/config"

	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "Run a single pipeline pass and exit instead of polling")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting cointip bot")

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

	if *once {
		if err := b.Iterate(ctx); err != nil {
			zap.L().Fatal("Pipeline pass failed", zap.Error(err))
		}
		zap.L().Info("Single pass complete")
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		zap.L().Info("Shutdown signal received, stopping after current pass...")
		cancel()
	}()

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		// A pipeline error here may mean a fund movement and its ledger
		// record disagree. Stop rather than keep moving money.
		zap.L().Fatal("Bot stopped on pipeline error", zap.Error(err))
	}
	zap.L().Info("Bot stopped")
}
