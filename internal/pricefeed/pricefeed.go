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

package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"cointipd/internal/models"
)

// Snapshot is one point-in-time view of the exchange rates the bot needs,
// keyed by "base_quote". Fiat conversions within a single bot iteration
// always read from the same snapshot so the two legs of a bridged
// conversion cannot straddle a price move.
type Snapshot map[string]decimal.Decimal

// Rate implements the rate lookup consumed by the resolver.
func (s Snapshot) Rate(base, quote string) (decimal.Decimal, bool) {
	d, ok := s[base+"_"+quote]
	return d, ok
}

// Client fetches ticker data from a btc-e compatible public API, one pair
// per request.
type Client struct {
	baseURL string
	pairs   []string
	client  *http.Client
}

// NewClient derives the pair list from the enabled coins and fiats: every
// non-btc coin is priced against btc, and btc against every fiat.
func NewClient(baseURL string, cfg *models.BotConfig) (*Client, error) {
	transport := &http.Transport{
		MaxIdleConns:       10,
		IdleConnTimeout:    30 * time.Second,
		DisableCompression: false,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("unable to configure transport: %w", err)
	}

	var pairs []string
	for _, cc := range cfg.EnabledCoins() {
		if cc.Unit == "btc" {
			continue
		}
		pairs = append(pairs, cc.Unit+"_btc")
	}
	for _, f := range cfg.EnabledFiats() {
		pairs = append(pairs, "btc_"+f.Unit)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		pairs:   pairs,
		client: &http.Client{
			Transport: transport,
			Timeout:   15 * time.Second,
		},
	}, nil
}

type tickerResponse struct {
	Ticker struct {
		Avg  float64 `json:"avg"`
		Last float64 `json:"last"`
	} `json:"ticker"`
	Error string `json:"error"`
}

// Refresh fetches every pair and returns a fresh snapshot. A pair that
// cannot be fetched after retries is omitted rather than failing the whole
// snapshot, so one dead market does not stall the bot. Downstream
// conversion rejects amounts whose legs are missing.
func (c *Client) Refresh(ctx context.Context) Snapshot {
	snapshot := make(Snapshot, len(c.pairs))
	for _, pair := range c.pairs {
		rate, err := c.fetchPair(ctx, pair)
		if err != nil {
			zap.L().Warn("unable to fetch ticker",
				zap.String("pair", pair),
				zap.Error(err))
			continue
		}
		snapshot[pair] = rate
	}
	return snapshot
}

func (c *Client) fetchPair(ctx context.Context, pair string) (decimal.Decimal, error) {
	var rate decimal.Decimal

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+pair+"/ticker", nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("ticker %s: status %d", pair, resp.StatusCode)
		}

		var ticker tickerResponse
		if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
			return err
		}
		if ticker.Error != "" {
			return backoff.Permanent(fmt.Errorf("ticker %s: %s", pair, ticker.Error))
		}

		avg := ticker.Ticker.Avg
		if avg <= 0 {
			avg = ticker.Ticker.Last
		}
		if avg <= 0 {
			return backoff.Permanent(fmt.Errorf("ticker %s: no usable price", pair))
		}

		rate = decimal.NewFromFloat(avg)
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}
