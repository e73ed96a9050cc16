// Package store defines the persistence interface for the squares engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/footy-fc/squares-engine/internal/event"
	"github.com/footy-fc/squares-engine/internal/model"
)

// ErrNotFound is returned when a requested game snapshot does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. The engine's in-memory arena is the
// live state; the store holds committed snapshots, the immutable purchase
// ledger, and the event log that off-chain projectors consume.
type Store interface {
	// --- Game snapshots ---

	// SaveGame upserts a game snapshot after a committed transition.
	SaveGame(ctx context.Context, g *model.Game) error

	// GetGame retrieves a game snapshot by id.
	GetGame(ctx context.Context, id uint64) (*model.Game, error)

	// ListGames returns all game snapshots, ascending by id.
	ListGames(ctx context.Context) ([]model.Game, error)

	// --- Immutable purchase ledger ---

	// InsertPurchase appends an immutable purchase record.
	InsertPurchase(ctx context.Context, p *model.Purchase) error

	// GetPurchasesByGame returns all purchases for a game.
	GetPurchasesByGame(ctx context.Context, gameID uint64) ([]model.Purchase, error)

	// GetPurchasesByBuyer returns all purchases by one buyer.
	GetPurchasesByBuyer(ctx context.Context, buyer string) ([]model.Purchase, error)

	// --- Event log ---

	// AppendEvent appends an emitted event.
	AppendEvent(ctx context.Context, e *event.Event) error

	// GetEventsByGame returns all events for a game, oldest first.
	GetEventsByGame(ctx context.Context, gameID uint64) ([]event.Event, error)
}
