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

package common

import (
	"context"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"cointipd/internal/coin"
	"cointipd/internal/config"
	"cointipd/internal/database"
	"cointipd/internal/models"
	"cointipd/internal/pricefeed"
	"cointipd/internal/reddit"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	}
}

// Services bundles everything a command needs: ledger, coin daemons,
// platform client, price feed and the parsed bot configuration.
type Services struct {
	DbService *database.Service
	Coins     *coin.Registry
	Platform  *reddit.Client
	Feed      *pricefeed.Client
	BotConfig *models.BotConfig
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	botCfg, err := config.LoadBotConfig(cfg.Bot.ConfigFile)
	if err != nil {
		return nil, err
	}

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Connecting coin daemons",
		zap.Int("coins", len(botCfg.EnabledCoins())))
	coins, err := coin.NewRegistry(botCfg)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	platform, err := reddit.NewClient(cfg.Reddit, botCfg.Platform.UserAgent)
	if err != nil {
		coins.Close()
		dbService.Close()
		return nil, err
	}

	feed, err := pricefeed.NewClient(cfg.Bot.FeedBaseURL, botCfg)
	if err != nil {
		coins.Close()
		dbService.Close()
		return nil, err
	}

	return &Services{
		DbService: dbService,
		Coins:     coins,
		Platform:  platform,
		Feed:      feed,
		BotConfig: botCfg,
	}, nil
}

// InitializeDatabaseOnly initializes just the ledger, for read-only
// commands that never touch the daemons or the platform.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	return database.NewService(ctx, cfg.Database)
}

func (cs *Services) Close() {
	if cs.Coins != nil {
		cs.Coins.Close()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
