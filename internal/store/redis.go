package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/footy-fc/squares-engine/internal/event"
	"github.com/footy-fc/squares-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for game snapshots. Writes go to the primary store and refresh the
// cache; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, refresh cache) ---

func (s *CachedStore) SaveGame(ctx context.Context, g *model.Game) error {
	if err := s.primary.SaveGame(ctx, g); err != nil {
		return err
	}
	s.cacheGame(ctx, g)
	return nil
}

func (s *CachedStore) InsertPurchase(ctx context.Context, p *model.Purchase) error {
	return s.primary.InsertPurchase(ctx, p)
}

func (s *CachedStore) AppendEvent(ctx context.Context, e *event.Event) error {
	return s.primary.AppendEvent(ctx, e)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetGame(ctx context.Context, id uint64) (*model.Game, error) {
	data, err := s.rdb.Get(ctx, gameKey(id)).Bytes()
	if err == nil {
		var g model.Game
		if json.Unmarshal(data, &g) == nil {
			return &g, nil
		}
	}

	// Cache miss: read from primary.
	g, err := s.primary.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheGame(ctx, g)
	return g, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListGames(ctx context.Context) ([]model.Game, error) {
	return s.primary.ListGames(ctx)
}

func (s *CachedStore) GetPurchasesByGame(ctx context.Context, gameID uint64) ([]model.Purchase, error) {
	return s.primary.GetPurchasesByGame(ctx, gameID)
}

func (s *CachedStore) GetPurchasesByBuyer(ctx context.Context, buyer string) ([]model.Purchase, error) {
	return s.primary.GetPurchasesByBuyer(ctx, buyer)
}

func (s *CachedStore) GetEventsByGame(ctx context.Context, gameID uint64) ([]event.Event, error) {
	return s.primary.GetEventsByGame(ctx, gameID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheGame(ctx context.Context, g *model.Game) {
	if data, err := json.Marshal(g); err == nil {
		s.rdb.Set(ctx, gameKey(g.ID), data, s.ttl)
	}
}

func gameKey(id uint64) string { return fmt.Sprintf("game:%d", id) }
