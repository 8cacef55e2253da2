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

package grammar

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"cointipd/internal/models"
)

// Match is a recognized command: the rule that fired plus the raw
// fields extracted from the text. Amount is the literal capture and may
// be either a number or a keyword, resolution happens downstream.
type Match struct {
	Rule    *Rule
	To      string
	Address string
	Amount  string
}

// ParentAuthorFunc resolves the author of a comment's parent, used when a
// tip names no recipient. It may hit the network and so takes a context.
type ParentAuthorFunc func(ctx context.Context, parentId string) (string, error)

// Matcher evaluates messages and comments against a Grammar. First match
// wins, which is why rule order inside the Grammar matters.
type Matcher struct {
	grammar *Grammar
	botUser string
}

func NewMatcher(g *Grammar, botUser string) *Matcher {
	return &Matcher{grammar: g, botUser: botUser}
}

// EvalMessage matches a direct message against the message rules.
// Returns nil when nothing matches.
func (m *Matcher) EvalMessage(msg *models.Message) *Match {
	return m.eval(m.grammar.MessageRules, msg.Body)
}

// EvalComment matches a public comment against the comment rules. A tip
// with no explicit recipient goes to the author of the parent comment,
// resolved through parentAuthor. Tips directed at the sender themselves
// or at the bot account are dropped silently.
func (m *Matcher) EvalComment(ctx context.Context, msg *models.Message, parentAuthor ParentAuthorFunc) (*Match, error) {
	match := m.eval(m.grammar.CommentRules, msg.Body)
	if match == nil {
		return nil, nil
	}

	if match.To == "" && match.Address == "" {
		author, err := parentAuthor(ctx, msg.ParentId)
		if err != nil {
			return nil, err
		}
		if author == "" {
			zap.L().Debug("parent author unavailable, dropping comment",
				zap.String("msg_id", msg.Id))
			return nil, nil
		}
		match.To = author
	}

	if match.To != "" {
		if strings.EqualFold(match.To, msg.Author) || strings.EqualFold(match.To, m.botUser) {
			zap.L().Debug("ignoring self-directed tip",
				zap.String("author", msg.Author),
				zap.String("to", match.To))
			return nil, nil
		}
	}

	return match, nil
}

func (m *Matcher) eval(rules []Rule, body string) *Match {
	for i := range rules {
		r := &rules[i]
		sub := r.Pattern.FindStringSubmatch(body)
		if sub == nil {
			continue
		}
		match := &Match{Rule: r}
		for gi, name := range r.Pattern.SubexpNames() {
			if gi == 0 || gi >= len(sub) {
				continue
			}
			switch name {
			case "to":
				match.To = sub[gi]
			case "addr":
				match.Address = sub[gi]
			case "amount":
				match.Amount = sub[gi]
			}
		}
		return match
	}
	return nil
}
