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
	"fmt"
	"regexp"
	"sort"
	"strings"

	"cointipd/internal/models"
)

// amountNum matches a plain numeric amount.
const amountNum = `(?P<amount>\d{1,9}(?:\.\d{1,8})?)`

// Rule is one declarative match rule: a compiled pattern plus the semantic
// metadata needed to turn a match into an action. Fields are extracted
// through the named capture groups "to", "addr" and "amount".
type Rule struct {
	Form    string // human-readable shape, for logs
	Pattern *regexp.Regexp
	Kind    models.ActionKind
	Coin    string // coin unit the rule is bound to, "" for generic fiat rules
	Fiat    string // fiat unit, "" if none
}

// Grammar holds the ordered rule lists for direct messages and for public
// comments. Order is a correctness contract: specific rules (explicit coin
// unit, explicit address) come before generic ones, and the bare
// fiat-symbol rules with no coin unit are appended last across all coins,
// because matching returns the first rule that matches, not the best.
type Grammar struct {
	MessageRules []Rule
	CommentRules []Rule
}

// New builds the grammar once at startup from the enabled coins, fiats,
// command verbs and keyword table.
func New(cfg *models.BotConfig) (*Grammar, error) {
	keywordAlt := keywordAlternation(cfg.Keywords)
	verbs := cfg.Commands

	g := &Grammar{}

	// Simple message commands, most specific grammar not needed here.
	for _, simple := range []struct {
		verb string
		kind models.ActionKind
	}{
		{verbs.Register, models.KindRegister},
		{verbs.Accept, models.KindAccept},
		{verbs.Decline, models.KindDecline},
		{verbs.History, models.KindHistory},
		{verbs.Info, models.KindInfo},
	} {
		rule, err := compileRule(`\+`+regexp.QuoteMeta(simple.verb)+`\b`, "+"+simple.verb, simple.kind, "", "")
		if err != nil {
			return nil, err
		}
		g.MessageRules = append(g.MessageRules, *rule)
	}

	coins := cfg.EnabledCoins()
	fiats := cfg.EnabledFiats()

	// Withdraw rules (messages): address-qualified only.
	for _, cc := range coins {
		addr := `(?P<addr>` + cc.AddressRegex + `)`
		unit := `(?:` + cc.UnitRegex + `)`
		withdraw := `\+` + regexp.QuoteMeta(verbs.Withdraw)

		forms := []struct {
			pattern string
			form    string
			fiat    string
		}{
			{withdraw + `\s+` + addr + `\s+` + amountNum + `\s+` + unit,
				"+withdraw ADDR NUM " + strings.ToUpper(cc.Unit), ""},
		}
		if keywordAlt != "" {
			forms = append(forms, struct {
				pattern string
				form    string
				fiat    string
			}{withdraw + `\s+` + addr + `\s+` + keywordAlt + `\s+` + unit,
				"+withdraw ADDR KEYWORD " + strings.ToUpper(cc.Unit), ""})
		}
		for _, f := range fiats {
			forms = append(forms, struct {
				pattern string
				form    string
				fiat    string
			}{withdraw + `\s+` + addr + `\s+` + f.SymbolRegex + amountNum + `\s+` + unit,
				"+withdraw ADDR $NUM " + strings.ToUpper(cc.Unit), f.Unit})
			if keywordAlt != "" {
				forms = append(forms, struct {
					pattern string
					form    string
					fiat    string
				}{withdraw + `\s+` + addr + `\s+` + f.SymbolRegex + keywordAlt + `\s+` + unit,
					"+withdraw ADDR $KEYWORD " + strings.ToUpper(cc.Unit), f.Unit})
			}
		}

		for _, f := range forms {
			rule, err := compileRule(f.pattern, f.form, models.KindWithdraw, cc.Unit, f.fiat)
			if err != nil {
				return nil, err
			}
			g.MessageRules = append(g.MessageRules, *rule)
		}
	}

	// Tip rules (comments), specific forms first: explicit address, then
	// bare amount, then @user, in numeric, keyword and fiat variants.
	for _, cc := range coins {
		addr := `(?P<addr>` + cc.AddressRegex + `)`
		user := `@(?P<to>\w+)`
		unit := `(?:` + cc.UnitRegex + `)`
		tip := `\+` + regexp.QuoteMeta(verbs.Tip)

		type form struct {
			pattern string
			form    string
			fiat    string
		}
		forms := []form{
			{tip + `\s+` + addr + `\s+` + amountNum + `\s+` + unit, "+tip ADDR NUM UNIT", ""},
			{tip + `\s+` + amountNum + `\s+` + unit, "+tip NUM UNIT", ""},
			{tip + `\s+` + user + `\s+` + amountNum + `\s+` + unit, "+tip @USER NUM UNIT", ""},
		}
		if keywordAlt != "" {
			forms = append(forms,
				form{tip + `\s+` + addr + `\s+` + keywordAlt + `\s+` + unit, "+tip ADDR KEYWORD UNIT", ""},
				form{tip + `\s+` + keywordAlt + `\s+` + unit, "+tip KEYWORD UNIT", ""},
				form{tip + `\s+` + user + `\s+` + keywordAlt + `\s+` + unit, "+tip @USER KEYWORD UNIT", ""},
			)
		}
		for _, f := range fiats {
			forms = append(forms,
				form{tip + `\s+` + addr + `\s+` + f.SymbolRegex + amountNum + `\s+` + unit, "+tip ADDR $NUM UNIT", f.Unit},
				form{tip + `\s+` + f.SymbolRegex + amountNum + `\s+` + unit, "+tip $NUM UNIT", f.Unit},
				form{tip + `\s+` + user + `\s+` + f.SymbolRegex + amountNum + `\s+` + unit, "+tip @USER $NUM UNIT", f.Unit},
			)
			if keywordAlt != "" {
				forms = append(forms,
					form{tip + `\s+` + addr + `\s+` + f.SymbolRegex + keywordAlt + `\s+` + unit, "+tip ADDR $KEYWORD UNIT", f.Unit},
					form{tip + `\s+` + f.SymbolRegex + keywordAlt + `\s+` + unit, "+tip $KEYWORD UNIT", f.Unit},
					form{tip + `\s+` + user + `\s+` + f.SymbolRegex + keywordAlt + `\s+` + unit, "+tip @USER $KEYWORD UNIT", f.Unit},
				)
			}
		}

		for _, f := range forms {
			rule, err := compileRule(f.pattern, f.form, models.KindGiveTip, cc.Unit, f.fiat)
			if err != nil {
				return nil, err
			}
			g.CommentRules = append(g.CommentRules, *rule)
		}
	}

	// Generic fiat-amount rules with no coin unit. These must always come
	// last: they would otherwise swallow the more specific forms above.
	for _, f := range fiats {
		user := `@(?P<to>\w+)`
		tip := `\+` + regexp.QuoteMeta(verbs.Tip)

		patterns := []struct {
			pattern string
			form    string
		}{
			{tip + `\s+` + f.SymbolRegex + amountNum, "+tip $NUM"},
		}
		if keywordAlt != "" {
			patterns = append(patterns, struct {
				pattern string
				form    string
			}{tip + `\s+` + f.SymbolRegex + keywordAlt, "+tip $KEYWORD"})
		}
		patterns = append(patterns, struct {
			pattern string
			form    string
		}{tip + `\s+` + user + `\s+` + f.SymbolRegex + amountNum, "+tip @USER $NUM"})
		if keywordAlt != "" {
			patterns = append(patterns, struct {
				pattern string
				form    string
			}{tip + `\s+` + user + `\s+` + f.SymbolRegex + keywordAlt, "+tip @USER $KEYWORD"})
		}

		for _, p := range patterns {
			rule, err := compileRule(p.pattern, p.form, models.KindGiveTip, "", f.Unit)
			if err != nil {
				return nil, err
			}
			g.CommentRules = append(g.CommentRules, *rule)
		}
	}

	return g, nil
}

func compileRule(pattern, form string, kind models.ActionKind, coin, fiat string) (*Rule, error) {
	re, err := regexp.Compile(`(?i)` + pattern)
	if err != nil {
		return nil, fmt.Errorf("unable to compile rule %q: %w", form, err)
	}
	return &Rule{Form: form, Pattern: re, Kind: kind, Coin: coin, Fiat: fiat}, nil
}

// keywordAlternation builds the amount-keyword alternation from the
// configured keyword table. Longer keywords come first so that a keyword
// that prefixes another never shadows it.
func keywordAlternation(keywords map[string]string) string {
	if len(keywords) == 0 {
		return ""
	}
	words := make([]string, 0, len(keywords))
	for w := range keywords {
		words = append(words, regexp.QuoteMeta(w))
	}
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	return `(?P<amount>` + strings.Join(words, `|`) + `)`
}
