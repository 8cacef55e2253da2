package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cointipd/internal/models"
)

const notifySubject = "cointip"

// notifyOrigin tells the sender the outcome of their command: a public
// reply when the command came from a comment, a direct message otherwise.
// Notification failures are logged, never fatal, since the ledger already
// holds the authoritative outcome.
func notifyOrigin(ctx context.Context, n Notifier, a *models.Action, text string) {
	var err error
	if a.Origin.Permalink != "" {
		err = n.Reply(ctx, a.Origin, text)
	} else {
		err = n.DirectMessage(ctx, a.FromUser, notifySubject, text)
	}
	if err != nil {
		zap.L().Warn("unable to notify sender",
			zap.String("user", a.FromUser),
			zap.String("msg_id", a.Origin.MessageId),
			zap.Error(err))
	}
}

type infoLine struct {
	Coin    string
	Address string
	Balance decimal.Decimal
}

func coinAmount(a *models.Action) string {
	return fmt.Sprintf("%s %s", a.CoinAmount.String(), strings.ToUpper(a.Coin))
}

func msgNotRegistered(cfg *models.BotConfig) string {
	return fmt.Sprintf("Sorry, you are not registered. Send me a message containing +%s to get started.",
		cfg.Commands.Register)
}

func msgNoCoinForFiat(a *models.Action) string {
	return fmt.Sprintf("Sorry /u/%s, I could not find a coin to cover %s %s. "+
		"Either no balance is sufficient at current rates or the exchange rate is unavailable right now.",
		a.FromUser, a.FiatAmount.String(), strings.ToUpper(a.Fiat))
}

func msgNoDepositAddress(a *models.Action) string {
	return fmt.Sprintf("Sorry /u/%s, you have no %s deposit address on file.",
		a.FromUser, strings.ToUpper(a.Coin))
}

func msgBelowMinimum(a *models.Action, txMin decimal.Decimal) string {
	return fmt.Sprintf("Sorry /u/%s, %s is below the minimum of %s %s for a %s.",
		a.FromUser, coinAmount(a), txMin.String(), strings.ToUpper(a.Coin), a.Kind)
}

func msgInsufficientBalance(a *models.Action, balance, need decimal.Decimal) string {
	return fmt.Sprintf("Sorry /u/%s, your confirmed %s balance of %s does not cover %s.",
		a.FromUser, strings.ToUpper(a.Coin), balance.String(), need.String())
}

func msgDuplicatePending(a *models.Action) string {
	return fmt.Sprintf("Sorry /u/%s, you already have a pending %s tip to /u/%s. "+
		"Wait for them to accept or decline it first.",
		a.FromUser, strings.ToUpper(a.Coin), a.Dest.User)
}

func msgInvalidAddress(a *models.Action) string {
	return fmt.Sprintf("Sorry /u/%s, %s does not look like a valid %s address.",
		a.FromUser, a.Dest.Address, strings.ToUpper(a.Coin))
}

func msgTransferFailed(a *models.Action) string {
	return fmt.Sprintf("Sorry /u/%s, your %s of %s failed. Your balance is unchanged "+
		"unless a transaction id appears in your history.",
		a.FromUser, a.Kind, coinAmount(a))
}

func msgTransferCompleted(a *models.Action) string {
	if a.Dest.IsUser() {
		return fmt.Sprintf("Verified: /u/%s tipped /u/%s %s.",
			a.FromUser, a.Dest.User, coinAmount(a))
	}
	return fmt.Sprintf("Verified: sent %s to %s (txid %s).",
		coinAmount(a), a.Dest.Address, a.TxId)
}

func msgTipReceived(a *models.Action) string {
	return fmt.Sprintf("Hey /u/%s, you received a %s tip from /u/%s!",
		a.Dest.User, coinAmount(a), a.FromUser)
}

func msgTipHeld(a *models.Action, cfg *models.BotConfig) string {
	return fmt.Sprintf("/u/%s is not registered, so I am holding your %s tip. "+
		"They have been notified and can +%s it; otherwise it will be returned to you.",
		a.Dest.User, coinAmount(a), cfg.Commands.Accept)
}

func msgPendingTipReceived(a *models.Action, cfg *models.BotConfig) string {
	return fmt.Sprintf("Hey /u/%s, /u/%s sent you a %s tip. "+
		"Reply with +%s to claim it or +%s to return it.",
		a.Dest.User, a.FromUser, coinAmount(a), cfg.Commands.Accept, cfg.Commands.Decline)
}

func msgPendingResolved(tip *models.Action, outcome models.ActionState) string {
	switch outcome {
	case models.StateCompleted:
		return fmt.Sprintf("Your %s tip to /u/%s has been accepted.",
			coinAmount(tip), tip.Dest.User)
	case models.StateDeclined:
		return fmt.Sprintf("Your %s tip to /u/%s was declined and has been returned to you.",
			coinAmount(tip), tip.Dest.User)
	default:
		return fmt.Sprintf("Your %s tip to /u/%s expired unclaimed and has been returned to you.",
			coinAmount(tip), tip.Dest.User)
	}
}

func msgNothingPending(a *models.Action) string {
	return fmt.Sprintf("Hey /u/%s, you have no pending tips.", a.FromUser)
}

func msgAccepted(settled []models.Action) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Accepted %d pending tip(s):\n", len(settled))
	for _, tip := range settled {
		fmt.Fprintf(&b, "* %s from /u/%s\n", coinAmount(&tip), tip.FromUser)
	}
	return b.String()
}

func msgDeclined(settled []models.Action) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Declined %d pending tip(s); the sender(s) have been refunded:\n", len(settled))
	for _, tip := range settled {
		fmt.Fprintf(&b, "* %s from /u/%s\n", coinAmount(&tip), tip.FromUser)
	}
	return b.String()
}

func msgAlreadyRegistered(a *models.Action) string {
	return fmt.Sprintf("Hey /u/%s, you are already registered.", a.FromUser)
}

func msgRegistrationFailed() string {
	return "Sorry, registration failed. Nothing was created; please try again later."
}

func msgRegistered(a *models.Action, cfg *models.BotConfig, pendingTips int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Welcome /u/%s, you are now registered. Send +%s to see your deposit addresses.",
		a.FromUser, cfg.Commands.Info)
	if pendingTips > 0 {
		fmt.Fprintf(&b, " You have %d pending tip(s) waiting; reply +%s to claim them.",
			pendingTips, cfg.Commands.Accept)
	}
	return b.String()
}

func msgInfo(a *models.Action, lines []infoLine) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hey /u/%s, here is your account:\n\ncoin|address|balance\n:---|:---|---:\n", a.FromUser)
	for _, line := range lines {
		fmt.Fprintf(&b, "%s|%s|%s\n", strings.ToUpper(line.Coin), line.Address, line.Balance.String())
	}
	return b.String()
}

func msgHistory(a *models.Action, entries []models.Action) string {
	if len(entries) == 0 {
		return fmt.Sprintf("Hey /u/%s, you have no history yet.", a.FromUser)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hey /u/%s, your recent actions:\n\nwhen|kind|state|amount|counterparty\n:---|:---|:---|---:|:---\n", a.FromUser)
	for _, entry := range entries {
		counterparty := entry.Dest.User
		if counterparty == "" {
			counterparty = entry.Dest.Address
		}
		amount := ""
		if entry.Kind.ValueBearing() {
			amount = coinAmount(&entry)
		}
		fmt.Fprintf(&b, "%s|%s|%s|%s|%s\n",
			entry.CreatedAt.Format("2006-01-02 15:04"),
			entry.Kind, entry.State, amount, counterparty)
	}
	return b.String()
}
