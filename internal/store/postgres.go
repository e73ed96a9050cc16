package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/footy-fc/squares-engine/internal/event"
	"github.com/footy-fc/squares-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision;
// square ownership and finalization arrays are stored as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SaveGame(ctx context.Context, g *model.Game) error {
	owners, _ := json.Marshal(g.SquareOwners)
	winners, _ := json.Marshal(g.WinningSquares)
	percentages, _ := json.Marshal(g.WinnerPercentages)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO games (id, deployer, referee, asset_kind, asset_token, asset_decimals,
		                    square_price, deployer_fee_percent, community_fee_percent, event_id,
		                    tickets_sold, square_owners, prize_pool, active, prize_claimed, refunded,
		                    winning_squares, winner_percentages, created_at, finalized_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8, $9, $10, $11, $12, $13::NUMERIC, $14, $15, $16, $17, $18, $19, $20)
		 ON CONFLICT (id) DO UPDATE SET
		   tickets_sold = EXCLUDED.tickets_sold,
		   square_owners = EXCLUDED.square_owners,
		   prize_pool = EXCLUDED.prize_pool,
		   active = EXCLUDED.active,
		   prize_claimed = EXCLUDED.prize_claimed,
		   refunded = EXCLUDED.refunded,
		   winning_squares = EXCLUDED.winning_squares,
		   winner_percentages = EXCLUDED.winner_percentages,
		   finalized_at = EXCLUDED.finalized_at`,
		g.ID, g.Deployer, g.Referee, string(g.Asset.Kind), g.Asset.Token, g.Asset.Decimals,
		g.SquarePrice.String(), g.DeployerFeePercent, g.CommunityFeePercent, g.EventID,
		g.TicketsSold, owners, g.PrizePool.String(), g.Active, g.PrizeClaimed, g.Refunded,
		winners, percentages, g.CreatedAt, g.FinalizedAt,
	)
	return err
}

const gameColumns = `id, deployer, referee, asset_kind, asset_token, asset_decimals,
	square_price::TEXT, deployer_fee_percent, community_fee_percent, event_id,
	tickets_sold, square_owners, prize_pool::TEXT, active, prize_claimed, refunded,
	winning_squares, winner_percentages, created_at, finalized_at`

func (s *PostgresStore) GetGame(ctx context.Context, id uint64) (*model.Game, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id)
	g, err := scanGame(row)
	if err != nil {
		return nil, fmt.Errorf("get game %d: %w", id, err)
	}
	return g, nil
}

func (s *PostgresStore) ListGames(ctx context.Context) ([]model.Game, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+gameColumns+` FROM games ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}

func (s *PostgresStore) InsertPurchase(ctx context.Context, p *model.Purchase) error {
	squares, _ := json.Marshal(p.Squares)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO purchases (id, game_id, buyer, squares, amount, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6)`,
		p.ID, p.GameID, p.Buyer, squares, p.Amount.String(), p.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetPurchasesByGame(ctx context.Context, gameID uint64) ([]model.Purchase, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, game_id, buyer, squares, amount::TEXT, timestamp
		 FROM purchases WHERE game_id = $1 ORDER BY timestamp`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPurchases(rows)
}

func (s *PostgresStore) GetPurchasesByBuyer(ctx context.Context, buyer string) ([]model.Purchase, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, game_id, buyer, squares, amount::TEXT, timestamp
		 FROM purchases WHERE buyer = $1 ORDER BY timestamp`, buyer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPurchases(rows)
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *event.Event) error {
	attrs, _ := json.Marshal(e.Attributes)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, type, game_id, attributes, at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, string(e.Type), e.GameID, attrs, e.At,
	)
	return err
}

func (s *PostgresStore) GetEventsByGame(ctx context.Context, gameID uint64) ([]event.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, game_id, attributes, at
		 FROM events WHERE game_id = $1 ORDER BY at`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var e event.Event
		var typ string
		var attrs []byte
		if err := rows.Scan(&e.ID, &typ, &e.GameID, &attrs, &e.At); err != nil {
			return nil, err
		}
		e.Type = event.Type(typ)
		if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// pgxRow matches both pgx.Row and pgx.Rows for scanning.
type pgxRow interface {
	Scan(dest ...interface{}) error
}

type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanGame(row pgxRow) (*model.Game, error) {
	var g model.Game
	var assetKind string
	var price, pool string
	var owners, winners, percentages []byte

	err := row.Scan(&g.ID, &g.Deployer, &g.Referee, &assetKind, &g.Asset.Token, &g.Asset.Decimals,
		&price, &g.DeployerFeePercent, &g.CommunityFeePercent, &g.EventID,
		&g.TicketsSold, &owners, &pool, &g.Active, &g.PrizeClaimed, &g.Refunded,
		&winners, &percentages, &g.CreatedAt, &g.FinalizedAt)
	if err != nil {
		return nil, err
	}

	g.Asset.Kind = model.AssetKind(assetKind)
	g.SquarePrice, _ = decimal.NewFromString(price)
	g.PrizePool, _ = decimal.NewFromString(pool)
	if err := json.Unmarshal(owners, &g.SquareOwners); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(winners, &g.WinningSquares); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(percentages, &g.WinnerPercentages); err != nil {
		return nil, err
	}
	return &g, nil
}

func scanPurchases(rows pgxRows) ([]model.Purchase, error) {
	var purchases []model.Purchase
	for rows.Next() {
		var p model.Purchase
		var squares []byte
		var amount string
		if err := rows.Scan(&p.ID, &p.GameID, &p.Buyer, &squares, &amount, &p.Timestamp); err != nil {
			return nil, err
		}
		p.Amount, _ = decimal.NewFromString(amount)
		if err := json.Unmarshal(squares, &p.Squares); err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}
