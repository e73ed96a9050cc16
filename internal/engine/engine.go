// Package engine implements the square-grid prize-pool game state machine:
// game creation, ticket sales, referee finalization, payout distribution,
// and the refund path. Games live in a slice arena behind a mutex; every
// public operation commits atomically or not at all.
//
// All monetary values use shopspring/decimal — never float64 for money.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/footy-fc/squares-engine/internal/bank"
	"github.com/footy-fc/squares-engine/internal/event"
	"github.com/footy-fc/squares-engine/internal/model"
	"github.com/footy-fc/squares-engine/internal/store"
)

// Version is the engine version marker, exposed via Version() and the API.
const Version = "2.0.0"

// Config carries the engine-wide parameters fixed at construction. The
// community wallet and fee are immutable for the lifetime of every game
// created by this engine.
type Config struct {
	// CommunityWallet receives the community fee cut of every distribution.
	CommunityWallet string

	// CommunityFeePercent is the community cut, 0–100. Together with a
	// game's deployer fee it bounds the winner percentages.
	CommunityFeePercent int

	// SaleWindow is how long after creation a board may still sell out.
	// Once elapsed, an unfinalized, not-full game becomes refundable.
	// Zero disables the deadline (only full boards can ever be finalized,
	// and only zero-sale games never resolve).
	SaleWindow time.Duration

	// AllowPartialFinalize permits the referee to finalize a partially
	// sold board after the sale window has elapsed.
	AllowPartialFinalize bool
}

// Engine is the deterministic game state machine. A single mutex serializes
// all state transitions; value transfers run outside the lock so recipient
// code re-entering the engine observes already-committed state.
type Engine struct {
	cfg   Config
	bank  bank.Bank
	store store.Store
	sink  event.Sink

	mu    sync.Mutex
	games []*model.Game // arena: games[id-1]

	now func() time.Time
}

// New creates an engine. The sink may be nil when no consumer listens.
func New(cfg Config, b bank.Bank, st store.Store, sink event.Sink) (*Engine, error) {
	if cfg.CommunityFeePercent < 0 || cfg.CommunityFeePercent > 100 {
		return nil, fmt.Errorf("%w: community fee %d out of range", ErrInvalidParameters, cfg.CommunityFeePercent)
	}
	if cfg.CommunityFeePercent > 0 && cfg.CommunityWallet == "" {
		return nil, fmt.Errorf("%w: community fee set without a community wallet", ErrInvalidParameters)
	}
	if sink == nil {
		sink = event.SinkFunc(func(*event.Event) {})
	}
	return &Engine{
		cfg:   cfg,
		bank:  b,
		store: st,
		sink:  sink,
		now:   time.Now,
	}, nil
}

// SetClock overrides the engine's time source. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Restore rebuilds the arena from persisted snapshots. Call once at
// startup, before serving traffic.
func (e *Engine) Restore(ctx context.Context) error {
	games, err := e.store.ListGames(ctx)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.games = e.games[:0]
	for i := range games {
		g := games[i]
		if g.ID != uint64(len(e.games))+1 {
			return fmt.Errorf("restore: snapshot ids not contiguous at %d", g.ID)
		}
		e.games = append(e.games, &g)
	}
	if len(e.games) > 0 {
		slog.Info("arena restored", "games", len(e.games))
	}
	return nil
}

// CreateGame allocates a new game with the given immutable parameters and
// returns its id. Ids increase from 1.
func (e *Engine) CreateGame(ctx context.Context, squarePrice decimal.Decimal, eventID, referee string, deployerFeePercent int, asset model.AssetRef, deployer string) (uint64, error) {
	if squarePrice.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("%w: square price must be positive", ErrInvalidParameters)
	}
	if referee == "" {
		return 0, fmt.Errorf("%w: referee address required", ErrInvalidParameters)
	}
	if deployer == "" {
		return 0, fmt.Errorf("%w: deployer address required", ErrInvalidParameters)
	}
	maxFee := 100 - e.cfg.CommunityFeePercent
	if deployerFeePercent < 0 || deployerFeePercent > maxFee {
		return 0, fmt.Errorf("%w: deployer fee %d exceeds ceiling %d", ErrInvalidParameters, deployerFeePercent, maxFee)
	}
	if asset.Kind != model.AssetNative && asset.Kind != model.AssetToken {
		return 0, fmt.Errorf("%w: unknown asset kind %q", ErrInvalidParameters, asset.Kind)
	}
	if asset.Kind == model.AssetToken && asset.Token == "" {
		return 0, fmt.Errorf("%w: token asset requires a token symbol", ErrInvalidParameters)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	g := &model.Game{
		ID:                  uint64(len(e.games)) + 1,
		Deployer:            deployer,
		Referee:             referee,
		Asset:               asset,
		SquarePrice:         squarePrice,
		DeployerFeePercent:  deployerFeePercent,
		CommunityFeePercent: e.cfg.CommunityFeePercent,
		EventID:             eventID,
		SquareOwners:        make([]string, model.GridSize),
		PrizePool:           decimal.Zero,
		Active:              true,
		CreatedAt:           e.now().UTC(),
	}

	if err := e.store.SaveGame(ctx, g); err != nil {
		return 0, fmt.Errorf("persist game: %w", err)
	}
	e.games = append(e.games, g)

	slog.Info("game created",
		"id", g.ID,
		"deployer", deployer,
		"referee", referee,
		"event_id", eventID,
		"price", squarePrice.String(),
		"asset", string(asset.Kind),
	)

	e.sink.Emit(event.New(event.GameCreated, g.ID, g.CreatedAt, map[string]string{
		"deployer":             deployer,
		"referee":              referee,
		"event_id":             eventID,
		"square_price":         squarePrice.String(),
		"deployer_fee_percent": fmt.Sprintf("%d", deployerFeePercent),
		"asset":                assetLabel(asset),
	}))
	return g.ID, nil
}

// BuyTickets assigns numTickets lowest-index unowned squares to the buyer
// after drawing exactly numTickets × squarePrice into escrow. For native
// games the attached value must match exactly; token games attach nothing
// and pay through an allowance.
func (e *Engine) BuyTickets(ctx context.Context, gameID uint64, buyer string, numTickets int, attached decimal.Decimal) ([]int, error) {
	if buyer == "" {
		return nil, fmt.Errorf("%w: buyer address required", ErrInvalidParameters)
	}
	if numTickets < 1 {
		return nil, fmt.Errorf("%w: must buy at least one ticket", ErrInvalidParameters)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.lookup(gameID)
	if err != nil {
		return nil, err
	}
	if !g.Active {
		return nil, fmt.Errorf("%w: game %d", ErrGameNotActive, gameID)
	}
	if g.TicketsSold+numTickets > model.GridSize {
		return nil, fmt.Errorf("%w: %d sold, %d requested", ErrGameFull, g.TicketsSold, numTickets)
	}

	required := g.SquarePrice.Mul(decimal.NewFromInt(int64(numTickets)))
	if g.Asset.IsNative() {
		if !attached.Equal(required) {
			return nil, fmt.Errorf("%w: attached %s, required %s", ErrIncorrectPayment, attached, required)
		}
	} else if !attached.IsZero() {
		return nil, fmt.Errorf("%w: token games take no attached value", ErrIncorrectPayment)
	}

	// Interactions before state: pull the escrow. A failed draw leaves the
	// game untouched.
	if err := e.bank.Draw(ctx, buyer, g.Asset, required); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	// Lowest-available-index assignment, deterministic and auditable.
	next := g.Clone()
	squares := make([]int, 0, numTickets)
	for i := 0; i < model.GridSize && len(squares) < numTickets; i++ {
		if next.SquareOwners[i] == "" {
			next.SquareOwners[i] = buyer
			squares = append(squares, i)
		}
	}
	next.TicketsSold += numTickets
	next.PrizePool = next.PrizePool.Add(required)

	now := e.now().UTC()
	purchase := &model.Purchase{
		ID:        uuid.New().String(),
		GameID:    gameID,
		Buyer:     buyer,
		Squares:   squares,
		Amount:    required,
		Timestamp: now,
	}

	if err := e.commit(ctx, next); err != nil {
		// Persistence failed: return the escrowed funds and drop the change.
		if payErr := e.bank.Pay(ctx, buyer, g.Asset, required); payErr != nil {
			slog.Error("escrow return after failed commit", "game", gameID, "buyer", buyer, "err", payErr)
		}
		return nil, err
	}
	if err := e.store.InsertPurchase(ctx, purchase); err != nil {
		slog.Error("purchase ledger append failed", "game", gameID, "purchase", purchase.ID, "err", err)
	}

	slog.Info("tickets purchased",
		"game", gameID,
		"buyer", buyer,
		"tickets", numTickets,
		"amount", required.String(),
		"pool", next.PrizePool.String(),
	)

	e.sink.Emit(event.New(event.TicketsPurchased, gameID, now, map[string]string{
		"buyer":   buyer,
		"tickets": fmt.Sprintf("%d", numTickets),
		"squares": joinInts(squares),
		"amount":  required.String(),
		"pool":    next.PrizePool.String(),
	}))
	return squares, nil
}

// GetGame returns a read-only copy of the full game record.
func (e *Engine) GetGame(_ context.Context, gameID uint64) (*model.Game, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.lookup(gameID)
	if err != nil {
		return nil, err
	}
	return g.Clone(), nil
}

// ListGames returns read-only copies of every game, ascending by id.
func (e *Engine) ListGames(_ context.Context) []model.Game {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.Game, 0, len(e.games))
	for _, g := range e.games {
		out = append(out, *g.Clone())
	}
	return out
}

// IsSquareClaimed reports whether a square has an owner.
func (e *Engine) IsSquareClaimed(_ context.Context, gameID uint64, square int) (bool, error) {
	if square < 0 || square >= model.GridSize {
		return false, fmt.Errorf("%w: square %d out of range", ErrInvalidParameters, square)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.lookup(gameID)
	if err != nil {
		return false, err
	}
	return g.SquareOwners[square] != "", nil
}

// lookup returns the arena entry for an id. Caller holds the lock.
func (e *Engine) lookup(gameID uint64) (*model.Game, error) {
	if gameID == 0 || gameID > uint64(len(e.games)) {
		return nil, fmt.Errorf("%w: %d", ErrGameNotFound, gameID)
	}
	return e.games[gameID-1], nil
}

// commit persists a snapshot and swaps it into the arena. Caller holds the
// lock. Nothing is externally observable until commit succeeds.
func (e *Engine) commit(ctx context.Context, next *model.Game) error {
	if err := e.store.SaveGame(ctx, next); err != nil {
		return fmt.Errorf("persist game %d: %w", next.ID, err)
	}
	e.games[next.ID-1] = next
	return nil
}

func assetLabel(a model.AssetRef) string {
	if a.IsNative() {
		return string(model.AssetNative)
	}
	return a.Token
}

func joinInts(xs []int) string {
	out := ""
	for i, x := range xs {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%d", x)
	}
	return out
}
