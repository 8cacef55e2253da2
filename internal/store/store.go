package store

import (
	"context"
	"errors"
	"time"

	"cointipd/internal/models"
)

// Sentinel errors shared across ledger implementations.
var (
	ErrDuplicateAction = errors.New("duplicate action")
	ErrUserExists      = errors.New("user already registered")
	ErrUserNotFound    = errors.New("user not found")
)

// ActionFilter narrows action queries. Zero-valued fields are ignored.
type ActionFilter struct {
	Kind      models.ActionKind
	State     models.ActionState
	Coin      string
	FromUser  string
	ToUser    string
	MessageId string
}

// ActionLedger is the persistence contract for actions, accounts, deposit
// addresses and scheduler checkpoints.
type ActionLedger interface {
	// --- Actions ---
	// InsertAction persists a new action row. The (origin, kind) pair is
	// unique; reprocessing the same origin for the same kind fails with
	// ErrDuplicateAction. This is the exactly-once backstop: callers may
	// check first, but the constraint decides races.
	InsertAction(ctx context.Context, action *models.Action, state models.ActionState) error
	// ClaimAction transitions an action out of pending only if it is still
	// pending, and reports whether this caller won the transition. Escrow
	// releases claim the row first so a settle and an expiry sweep racing
	// on the same tip move the held funds exactly once.
	ClaimAction(ctx context.Context, origin models.OriginRef, kind models.ActionKind, state models.ActionState) (bool, error)
	HasAction(ctx context.Context, filter ActionFilter) (bool, error)
	GetActions(ctx context.Context, filter ActionFilter) ([]models.Action, error)
	GetPendingTipsOlderThan(ctx context.Context, cutoff time.Time) ([]models.Action, error)

	// --- Users ---
	GetUser(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, username string) error
	// DeleteUser removes the user row and all address rows: the
	// compensating rollback for a partially failed registration.
	DeleteUser(ctx context.Context, username string) error

	// --- Addresses ---
	StoreAddress(ctx context.Context, username, coin, address string) error
	// GetAddress returns the empty string when no address is stored.
	GetAddress(ctx context.Context, username, coin string) (string, error)
	CountAddresses(ctx context.Context, username string) (int, error)

	// --- Settings (scheduler checkpoints) ---
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// --- Lifecycle ---
	Close()
}
