package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"cointipd/internal/models"
	"cointipd/internal/store"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InsertAction persists a new action row. A UNIQUE(msg_id, type) violation
// surfaces as store.ErrDuplicateAction so callers can treat reprocessing as
// an expected-negative outcome.
func (s *Service) InsertAction(ctx context.Context, action *models.Action, state models.ActionState) error {
	if action.Id == "" {
		action.Id = uuid.New().String()
	}
	createdAt := action.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	zap.L().Info("Persisting action",
		zap.String("type", string(action.Kind)),
		zap.String("state", string(state)),
		zap.String("from_user", action.FromUser),
		zap.String("msg_id", action.Origin.MessageId))

	_, err := s.db.ExecContext(ctx, queryInsertAction,
		action.Id, string(action.Kind), string(state),
		strings.ToLower(action.FromUser),
		nullable(strings.ToLower(action.Dest.User)), nullable(action.Dest.Address),
		nullable(action.Coin), nullable(action.Fiat),
		action.CoinAmount.String(), action.FiatAmount.String(),
		nullable(action.TxId),
		action.Origin.MessageId, nullable(action.Origin.Permalink),
		nullable(action.Subreddit), createdAt)
	if err != nil {
		if sqliteErr, ok := err.(sqlite3.Error); ok && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: msg_id %s type %s", store.ErrDuplicateAction, action.Origin.MessageId, action.Kind)
		}
		return fmt.Errorf("unable to insert action: %w", err)
	}

	action.State = state
	return nil
}

// ClaimAction moves a pending action to the given state. The state guard
// in the WHERE clause makes the transition first-writer-wins: a second
// claim of the same (origin, kind) finds no pending row and returns false.
func (s *Service) ClaimAction(ctx context.Context, origin models.OriginRef, kind models.ActionKind, state models.ActionState) (bool, error) {
	result, err := s.db.ExecContext(ctx, queryClaimPendingAction,
		string(state), origin.MessageId, string(kind))
	if err != nil {
		return false, fmt.Errorf("unable to claim action: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	zap.L().Info("Pending action claimed",
		zap.String("msg_id", origin.MessageId),
		zap.String("type", string(kind)),
		zap.String("state", string(state)))
	return true, nil
}

// HasAction reports whether any action matches the filter.
func (s *Service) HasAction(ctx context.Context, filter store.ActionFilter) (bool, error) {
	query, args := buildActionQuery("SELECT COUNT(*) FROM actions", filter)

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("unable to check for action: %w", err)
	}
	return count > 0, nil
}

// GetActions returns every action matching the filter, oldest first.
func (s *Service) GetActions(ctx context.Context, filter store.ActionFilter) ([]models.Action, error) {
	query, args := buildActionQuery(querySelectActions, filter)
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query actions: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	return scanActions(rows)
}

// GetPendingTipsOlderThan returns pending tips created before the cutoff,
// for the expiry sweep.
func (s *Service) GetPendingTipsOlderThan(ctx context.Context, cutoff time.Time) ([]models.Action, error) {
	rows, err := s.db.QueryContext(ctx, queryPendingTipsOlderThan, cutoff)
	if err != nil {
		return nil, fmt.Errorf("unable to query pending tips: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	return scanActions(rows)
}

func buildActionQuery(base string, filter store.ActionFilter) (string, []interface{}) {
	var terms []string
	var args []interface{}

	if filter.Kind != "" {
		terms = append(terms, "type = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.State != "" {
		terms = append(terms, "state = ?")
		args = append(args, string(filter.State))
	}
	if filter.Coin != "" {
		terms = append(terms, "coin = ?")
		args = append(args, filter.Coin)
	}
	if filter.FromUser != "" {
		terms = append(terms, "from_user = ?")
		args = append(args, strings.ToLower(filter.FromUser))
	}
	if filter.ToUser != "" {
		terms = append(terms, "to_user = ?")
		args = append(args, strings.ToLower(filter.ToUser))
	}
	if filter.MessageId != "" {
		terms = append(terms, "msg_id = ?")
		args = append(args, filter.MessageId)
	}

	if len(terms) > 0 {
		base += " WHERE " + strings.Join(terms, " AND ")
	}
	return base, args
}

func scanActions(rows *sql.Rows) ([]models.Action, error) {
	var actions []models.Action
	for rows.Next() {
		var a models.Action
		var kind, state string
		var toUser, toAddr, coin, fiat, coinAmount, fiatAmount, txid, msgLink, subreddit sql.NullString
		err := rows.Scan(&a.Id, &kind, &state, &a.FromUser,
			&toUser, &toAddr, &coin, &fiat,
			&coinAmount, &fiatAmount, &txid,
			&a.Origin.MessageId, &msgLink, &subreddit, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("unable to scan action row: %w", err)
		}

		a.Kind = models.ActionKind(kind)
		a.State = models.ActionState(state)
		a.Dest = models.Destination{User: toUser.String, Address: toAddr.String}
		a.Coin = coin.String
		a.Fiat = fiat.String
		a.TxId = txid.String
		a.Origin.Permalink = msgLink.String
		a.Subreddit = subreddit.String

		if coinAmount.Valid && coinAmount.String != "" {
			a.CoinAmount, err = decimal.NewFromString(coinAmount.String)
			if err != nil {
				return nil, fmt.Errorf("unable to parse coin amount %q: %w", coinAmount.String, err)
			}
		}
		if fiatAmount.Valid && fiatAmount.String != "" {
			a.FiatAmount, err = decimal.NewFromString(fiatAmount.String)
			if err != nil {
				return nil, fmt.Errorf("unable to parse fiat amount %q: %w", fiatAmount.String, err)
			}
		}

		actions = append(actions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating action rows: %w", err)
	}
	return actions, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
