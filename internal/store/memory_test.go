package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/footy-fc/squares-engine/internal/event"
	"github.com/footy-fc/squares-engine/internal/model"
)

func testGame(id uint64) *model.Game {
	return &model.Game{
		ID:           id,
		Deployer:     "0xdeployer",
		Referee:      "0xref",
		Asset:        model.Native(),
		SquarePrice:  decimal.NewFromFloat(0.1),
		SquareOwners: make([]string, model.GridSize),
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestMemoryStoreGames(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.GetGame(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing game err = %v, want ErrNotFound", err)
	}

	g := testGame(1)
	if err := s.SaveGame(ctx, g); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Snapshots are isolated from later caller mutations.
	g.SquareOwners[0] = "mallory"

	got, err := s.GetGame(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SquareOwners[0] != "" {
		t.Error("stored snapshot shares memory with the caller")
	}

	// Save is an upsert.
	got.TicketsSold = 5
	if err := s.SaveGame(ctx, got); err != nil {
		t.Fatalf("resave: %v", err)
	}
	got, err = s.GetGame(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TicketsSold != 5 {
		t.Errorf("tickets sold = %d, want 5", got.TicketsSold)
	}

	if err := s.SaveGame(ctx, testGame(3)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveGame(ctx, testGame(2)); err != nil {
		t.Fatalf("save: %v", err)
	}

	games, err := s.ListGames(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(games) != 3 {
		t.Fatalf("games = %d, want 3", len(games))
	}
	for i, g := range games {
		if g.ID != uint64(i)+1 {
			t.Errorf("games[%d].ID = %d, want ascending ids", i, g.ID)
		}
	}
}

func TestMemoryStorePurchases(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	purchases := []*model.Purchase{
		{ID: "p1", GameID: 1, Buyer: "alice", Squares: []int{0, 1}, Amount: decimal.NewFromFloat(0.2)},
		{ID: "p2", GameID: 1, Buyer: "bob", Squares: []int{2}, Amount: decimal.NewFromFloat(0.1)},
		{ID: "p3", GameID: 2, Buyer: "alice", Squares: []int{0}, Amount: decimal.NewFromFloat(0.5)},
	}
	for _, p := range purchases {
		if err := s.InsertPurchase(ctx, p); err != nil {
			t.Fatalf("insert %s: %v", p.ID, err)
		}
	}

	byGame, err := s.GetPurchasesByGame(ctx, 1)
	if err != nil {
		t.Fatalf("by game: %v", err)
	}
	if len(byGame) != 2 || byGame[0].ID != "p1" || byGame[1].ID != "p2" {
		t.Errorf("by game = %+v", byGame)
	}

	byBuyer, err := s.GetPurchasesByBuyer(ctx, "alice")
	if err != nil {
		t.Fatalf("by buyer: %v", err)
	}
	if len(byBuyer) != 2 || byBuyer[1].GameID != 2 {
		t.Errorf("by buyer = %+v", byBuyer)
	}
}

func TestMemoryStoreEvents(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	e1 := event.New(event.GameCreated, 1, now, map[string]string{"deployer": "0xdeployer"})
	e2 := event.New(event.TicketsPurchased, 1, now, map[string]string{"buyer": "alice"})
	e3 := event.New(event.GameCreated, 2, now, nil)
	for _, e := range []*event.Event{e1, e2, e3} {
		if err := s.AppendEvent(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	events, err := s.GetEventsByGame(ctx, 1)
	if err != nil {
		t.Fatalf("by game: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Type != event.GameCreated || events[1].Type != event.TicketsPurchased {
		t.Errorf("event order = %v, %v", events[0].Type, events[1].Type)
	}
	if events[1].Attributes["buyer"] != "alice" {
		t.Errorf("attributes = %v", events[1].Attributes)
	}
}
