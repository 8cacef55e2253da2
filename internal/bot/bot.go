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

package bot

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"cointipd/internal/action"
	"cointipd/internal/grammar"
	"cointipd/internal/models"
	"cointipd/internal/pricefeed"
	"cointipd/internal/resolve"
	"cointipd/internal/store"
)

const checkpointKey = "last_processed_comment_time"

// Platform is the social-platform surface the bot consumes.
type Platform interface {
	FetchUnread(ctx context.Context, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, ids ...string) error
	FetchComments(ctx context.Context, subreddit string, limit int) ([]models.Message, error)
	ParentAuthor(ctx context.Context, fullname string) (string, error)
	Reply(ctx context.Context, fullname, text string) error
	DirectMessage(ctx context.Context, to, subject, text string) error
}

// Feed supplies fresh price snapshots.
type Feed interface {
	Refresh(ctx context.Context) pricefeed.Snapshot
}

// Bot runs the polling pipeline: refresh prices, drain the inbox, scan
// subreddit comments past the checkpoint, expire stale pending tips.
type Bot struct {
	runtime  models.RuntimeConfig
	cfg      *models.BotConfig
	ledger   store.ActionLedger
	platform Platform
	feed     Feed
	rates    *snapshotHolder
	matcher  *grammar.Matcher
	factory  *action.Factory
	executor *action.Executor
}

func New(runtime models.RuntimeConfig, cfg *models.BotConfig, ledger store.ActionLedger, platform Platform, feed Feed, accounts action.Accounts) (*Bot, error) {
	g, err := grammar.New(cfg)
	if err != nil {
		return nil, err
	}

	rates := &snapshotHolder{}
	resolver := resolve.NewResolver(cfg, rates, balanceFunc(accounts))
	notify := platformNotifier{platform: platform}
	validator := action.NewValidator(cfg, ledger, accounts, resolver, notify)

	return &Bot{
		runtime:  runtime,
		cfg:      cfg,
		ledger:   ledger,
		platform: platform,
		feed:     feed,
		rates:    rates,
		matcher:  grammar.NewMatcher(g, cfg.Platform.BotUser),
		factory:  action.NewFactory(cfg, resolver),
		executor: action.NewExecutor(cfg, ledger, accounts, validator, notify),
	}, nil
}

// Run polls until the context is cancelled. A fatal pipeline error stops
// the loop; the process should exit rather than keep moving funds on
// inconsistent state.
func (b *Bot) Run(ctx context.Context) error {
	zap.L().Info("bot starting",
		zap.Duration("poll_interval", b.runtime.PollInterval),
		zap.Strings("subreddits", b.cfg.Platform.Subreddits))

	ticker := time.NewTicker(b.runtime.PollInterval)
	defer ticker.Stop()

	for {
		if err := b.Iterate(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Iterate runs one full pipeline pass.
func (b *Bot) Iterate(ctx context.Context) error {
	b.rates.update(b.feed.Refresh(ctx))

	if err := b.processInbox(ctx); err != nil {
		return err
	}
	if err := b.processComments(ctx); err != nil {
		return err
	}

	cutoff := time.Now().Add(-b.runtime.PendingTipTTL)
	expired, err := b.executor.ExpireOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if expired > 0 {
		zap.L().Info("expired stale pending tips", zap.Int("count", expired))
	}
	return nil
}

func (b *Bot) processInbox(ctx context.Context) error {
	messages, err := b.platform.FetchUnread(ctx, b.cfg.Platform.BatchLimit)
	if err != nil {
		// Inbox fetch trouble is transient beyond the adapter's own
		// retries; skip this pass rather than kill the loop.
		zap.L().Warn("unable to fetch inbox", zap.Error(err))
		return nil
	}

	for _, msg := range messages {
		if err := b.handleMessage(ctx, &msg); err != nil {
			return err
		}
		if err := b.platform.MarkRead(ctx, msg.Id); err != nil {
			zap.L().Warn("unable to mark message read",
				zap.String("msg_id", msg.Id),
				zap.Error(err))
		}
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *models.Message) error {
	if b.skip(msg) {
		return nil
	}

	var match *grammar.Match
	if msg.IsComment {
		var err error
		match, err = b.matcher.EvalComment(ctx, msg, b.platform.ParentAuthor)
		if err != nil {
			zap.L().Warn("unable to evaluate comment",
				zap.String("msg_id", msg.Id),
				zap.Error(err))
			return nil
		}
	} else {
		match = b.matcher.EvalMessage(msg)
	}
	if match == nil {
		return nil
	}

	zap.L().Info("command matched",
		zap.String("msg_id", msg.Id),
		zap.String("author", msg.Author),
		zap.String("form", match.Rule.Form))
	return b.executor.Process(ctx, b.factory.FromMatch(msg, match))
}

// processComments scans each configured subreddit for comments newer than
// the persisted checkpoint, so restarting never reprocesses old threads.
// The duplicate guard in the executor backstops any overlap.
func (b *Bot) processComments(ctx context.Context) error {
	checkpoint, err := b.loadCheckpoint(ctx)
	if err != nil {
		return err
	}
	newest := checkpoint

	for _, subreddit := range b.cfg.Platform.Subreddits {
		comments, err := b.platform.FetchComments(ctx, subreddit, b.cfg.Platform.BatchLimit)
		if err != nil {
			zap.L().Warn("unable to fetch comments",
				zap.String("subreddit", subreddit),
				zap.Error(err))
			continue
		}

		for _, msg := range comments {
			// Inclusive at the boundary: a comment stamped exactly at the
			// checkpoint may not have been seen, and the (origin, kind)
			// uniqueness absorbs the rescan.
			if msg.CreatedAt.Before(checkpoint) {
				continue
			}
			if msg.CreatedAt.After(newest) {
				newest = msg.CreatedAt
			}
			if err := b.handleMessage(ctx, &msg); err != nil {
				return err
			}
		}
	}

	if newest.After(checkpoint) {
		if err := b.ledger.SetSetting(ctx, checkpointKey, newest.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) loadCheckpoint(ctx context.Context) (time.Time, error) {
	value, err := b.ledger.GetSetting(ctx, checkpointKey)
	if err != nil {
		return time.Time{}, err
	}
	if value == "" {
		return time.Time{}, nil
	}
	checkpoint, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		zap.L().Warn("ignoring malformed checkpoint", zap.String("value", value))
		return time.Time{}, nil
	}
	return checkpoint, nil
}

// skip filters replies to the bot's own comments, the bot itself and
// banned users.
func (b *Bot) skip(msg *models.Message) bool {
	if msg.WasComment && !msg.IsComment {
		return true
	}
	if msg.Author == "" || strings.EqualFold(msg.Author, b.cfg.Platform.BotUser) {
		return true
	}
	if b.cfg.Platform.IsBanned(msg.Author) {
		zap.L().Debug("ignoring banned user", zap.String("author", msg.Author))
		return true
	}
	return false
}

// ExpireOnce runs a single expiry sweep, used by the standalone expire
// command.
func (b *Bot) ExpireOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-b.runtime.PendingTipTTL)
	return b.executor.ExpireOlderThan(ctx, cutoff)
}
