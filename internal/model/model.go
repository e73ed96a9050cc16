// Package model defines the core domain types shared across the squares engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// GridSize is the number of purchasable squares per game.
const GridSize = 100

// AssetKind selects the payment rail for a game. The choice is made once at
// game creation and is immutable for the game's lifetime.
type AssetKind string

const (
	// AssetNative is the native asset (payments attach value).
	AssetNative AssetKind = "native"
	// AssetToken is a fungible token (payments consume an allowance).
	AssetToken AssetKind = "token"
)

// AssetRef identifies the payment asset of a game: either the native asset
// or a fungible token by symbol. Decimals is the smallest-unit scale used
// for payout truncation.
type AssetRef struct {
	Kind     AssetKind `json:"kind" db:"asset_kind"`
	Token    string    `json:"token,omitempty" db:"asset_token"` // empty for native
	Decimals int32     `json:"decimals" db:"asset_decimals"`
}

// Native returns the native-asset reference with the default 18-place scale.
func Native() AssetRef {
	return AssetRef{Kind: AssetNative, Decimals: 18}
}

// Token returns a fungible-token reference.
func Token(symbol string, decimals int32) AssetRef {
	return AssetRef{Kind: AssetToken, Token: symbol, Decimals: decimals}
}

// IsNative reports whether the asset is the native one.
func (a AssetRef) IsNative() bool { return a.Kind == AssetNative }

// Game is the persistent record of one square-grid prize-pool game.
// Creation parameters are immutable; only ticket sales, finalization data,
// and the terminal flags mutate after creation.
type Game struct {
	ID                  uint64          `json:"id" db:"id"`
	Deployer            string          `json:"deployer" db:"deployer"`
	Referee             string          `json:"referee" db:"referee"`
	Asset               AssetRef        `json:"asset"`
	SquarePrice         decimal.Decimal `json:"square_price" db:"square_price"`
	DeployerFeePercent  int             `json:"deployer_fee_percent" db:"deployer_fee_percent"`
	CommunityFeePercent int             `json:"community_fee_percent" db:"community_fee_percent"`
	EventID             string          `json:"event_id" db:"event_id"` // informational only
	TicketsSold         int             `json:"tickets_sold" db:"tickets_sold"`
	SquareOwners        []string        `json:"square_owners"` // len GridSize, "" = unowned
	PrizePool           decimal.Decimal `json:"prize_pool" db:"prize_pool"`
	Active              bool            `json:"active" db:"active"`
	PrizeClaimed        bool            `json:"prize_claimed" db:"prize_claimed"`
	Refunded            bool            `json:"refunded" db:"refunded"`
	WinningSquares      []int           `json:"winning_squares,omitempty"`
	WinnerPercentages   []int           `json:"winner_percentages,omitempty"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	FinalizedAt         *time.Time      `json:"finalized_at,omitempty" db:"finalized_at"`
}

// Owner returns the owner of a square, or "" if unowned or out of range.
func (g *Game) Owner(square int) string {
	if square < 0 || square >= len(g.SquareOwners) {
		return ""
	}
	return g.SquareOwners[square]
}

// Full reports whether every square has been sold.
func (g *Game) Full() bool { return g.TicketsSold >= GridSize }

// Finalized reports whether the referee has recorded an outcome.
func (g *Game) Finalized() bool { return g.FinalizedAt != nil }

// Clone returns a deep copy. The engine hands out clones so callers can
// never mutate arena state.
func (g *Game) Clone() *Game {
	c := *g
	c.SquareOwners = append([]string(nil), g.SquareOwners...)
	c.WinningSquares = append([]int(nil), g.WinningSquares...)
	c.WinnerPercentages = append([]int(nil), g.WinnerPercentages...)
	if g.FinalizedAt != nil {
		t := *g.FinalizedAt
		c.FinalizedAt = &t
	}
	return &c
}

// Purchase is an immutable record of one ticket purchase.
// Once created, these are never modified or deleted.
type Purchase struct {
	ID        string          `json:"id" db:"id"`
	GameID    uint64          `json:"game_id" db:"game_id"`
	Buyer     string          `json:"buyer" db:"buyer"`
	Squares   []int           `json:"squares"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}
