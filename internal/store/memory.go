package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/footy-fc/squares-engine/internal/event"
	"github.com/footy-fc/squares-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	games     map[uint64]*model.Game
	purchases []model.Purchase
	events    []event.Event
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games: make(map[uint64]*model.Game),
	}
}

func (s *MemoryStore) SaveGame(_ context.Context, g *model.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	s.games[g.ID] = g.Clone()
	return nil
}

func (s *MemoryStore) GetGame(_ context.Context, id uint64) (*model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[id]
	if !ok {
		return nil, fmt.Errorf("%w: game %d", ErrNotFound, id)
	}
	return g.Clone(), nil
}

func (s *MemoryStore) ListGames(_ context.Context) ([]model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	games := make([]model.Game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, *g.Clone())
	}
	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })
	return games, nil
}

func (s *MemoryStore) InsertPurchase(_ context.Context, p *model.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	cp.Squares = append([]int(nil), p.Squares...)
	s.purchases = append(s.purchases, cp)
	return nil
}

func (s *MemoryStore) GetPurchasesByGame(_ context.Context, gameID uint64) ([]model.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Purchase
	for _, p := range s.purchases {
		if p.GameID == gameID {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetPurchasesByBuyer(_ context.Context, buyer string) ([]model.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Purchase
	for _, p := range s.purchases {
		if p.Buyer == buyer {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, e *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *e)
	return nil
}

func (s *MemoryStore) GetEventsByGame(_ context.Context, gameID uint64) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []event.Event
	for _, e := range s.events {
		if e.GameID == gameID {
			result = append(result, e)
		}
	}
	return result, nil
}
