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

package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"cointipd/internal/models"
)

// Client is an authenticated Reddit API client for a script app. It keeps
// a bearer token and refreshes it when it expires.
type Client struct {
	cfg       models.RedditConfig
	userAgent string
	client    *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg models.RedditConfig, userAgent string) (*Client, error) {
	if cfg.ClientId == "" || cfg.Username == "" {
		return nil, fmt.Errorf("reddit credentials not configured")
	}

	transport := &http.Transport{
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("unable to configure transport: %w", err)
	}

	return &Client{
		cfg:       cfg,
		userAgent: userAgent,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
	}, nil
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type": {"password"},
		"username":   {c.cfg.Username},
		"password":   {c.cfg.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ClientId, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("token request failed: status %d: %s", resp.StatusCode, body)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", err
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token request returned no access token")
	}

	c.token = token.AccessToken
	// Refresh a minute early so in-flight calls never race expiry.
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}

// do performs an authenticated API call with exponential-backoff retry on
// transient failures. Reddit throttles aggressively, so 429 and 5xx are
// retried while 4xx client errors fail fast.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	operation := func() error {
		token, err := c.bearer(ctx)
		if err != nil {
			return err
		}

		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("User-Agent", c.userAgent)
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			c.mu.Lock()
			c.token = ""
			c.mu.Unlock()
			return fmt.Errorf("%s %s: token rejected", method, path)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, body))
		}

		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	return backoff.Retry(operation, policy)
}

// FetchUnread returns the bot account's unread inbox, oldest first.
func (c *Client) FetchUnread(ctx context.Context, limit int) ([]models.Message, error) {
	var listing thingListing
	path := fmt.Sprintf("/message/unread?limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &listing); err != nil {
		return nil, err
	}
	messages := listing.messages()
	// The API returns newest first, the pipeline wants arrival order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkRead marks inbox items as read so they are not fetched again.
func (c *Client) MarkRead(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	form := url.Values{"id": {strings.Join(ids, ",")}}
	return c.do(ctx, http.MethodPost, "/api/read_message", form, nil)
}

// FetchComments returns recent comments from a subreddit, oldest first.
func (c *Client) FetchComments(ctx context.Context, subreddit string, limit int) ([]models.Message, error) {
	var listing thingListing
	path := fmt.Sprintf("/r/%s/comments?limit=%d", url.PathEscape(subreddit), limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &listing); err != nil {
		return nil, err
	}
	messages := listing.messages()
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ParentAuthor resolves the author of a thing by fullname. Returns ""
// for deleted or missing things.
func (c *Client) ParentAuthor(ctx context.Context, fullname string) (string, error) {
	var listing thingListing
	if err := c.do(ctx, http.MethodGet, "/api/info?id="+url.QueryEscape(fullname), nil, &listing); err != nil {
		return "", err
	}
	for _, child := range listing.Data.Children {
		author := child.Data.Author
		if author == "" || author == "[deleted]" {
			return "", nil
		}
		return author, nil
	}
	return "", nil
}

// Reply posts a comment reply under the given thing.
func (c *Client) Reply(ctx context.Context, fullname, text string) error {
	form := url.Values{
		"thing_id": {fullname},
		"text":     {text},
		"api_type": {"json"},
	}
	if err := c.do(ctx, http.MethodPost, "/api/comment", form, nil); err != nil {
		return err
	}
	zap.L().Debug("posted reply", zap.String("thing_id", fullname))
	return nil
}

// DirectMessage sends a private message to a user.
func (c *Client) DirectMessage(ctx context.Context, to, subject, text string) error {
	form := url.Values{
		"to":       {to},
		"subject":  {subject},
		"text":     {text},
		"api_type": {"json"},
	}
	if err := c.do(ctx, http.MethodPost, "/api/compose", form, nil); err != nil {
		return err
	}
	zap.L().Debug("sent direct message", zap.String("to", to))
	return nil
}
