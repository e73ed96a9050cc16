// Package api provides the HTTP surface of the squares engine: game
// creation, ticket purchases, finalization, distribution, refunds, and the
// read-only queries used by dashboards and indexers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/footy-fc/squares-engine/internal/engine"
	"github.com/footy-fc/squares-engine/internal/model"
)

// snapshotTTL bounds staleness of cached game reads. Writes invalidate, so
// the TTL only matters for multi-instance setups.
const snapshotTTL = 2 * time.Second

// Service exposes the engine over HTTP.
type Service struct {
	engine    *engine.Engine
	validate  *validator.Validate
	snapshots *gocache.Cache
	hub       *Hub
}

// NewService creates the HTTP service. Pass nil for hub if the event
// stream is not needed.
func NewService(eng *engine.Engine, hub *Hub) *Service {
	return &Service{
		engine:    eng,
		validate:  validator.New(),
		snapshots: gocache.New(snapshotTTL, time.Minute),
		hub:       hub,
	}
}

// Routes mounts all handlers on a chi router.
func (s *Service) Routes(r chi.Router) {
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}

	r.Get("/version", s.GetVersion)

	r.Get("/games", s.ListGames)
	r.Post("/games", s.CreateGame)
	r.Get("/games/{gameID}", s.GetGame)
	r.Get("/games/{gameID}/squares/{square}", s.GetSquare)

	r.Post("/games/{gameID}/tickets", s.BuyTickets)
	r.Post("/games/{gameID}/finalize", s.FinalizeGame)
	r.Post("/games/{gameID}/distribute", s.DistributeWinnings)
	r.Post("/games/{gameID}/refund", s.RefundTickets)
}

// --- Request/Response types ---

// AssetRequest selects the payment asset for a new game.
type AssetRequest struct {
	Kind     string `json:"kind" validate:"required,oneof=native token"`
	Token    string `json:"token,omitempty"`
	Decimals int32  `json:"decimals" validate:"min=0,max=18"`
}

// CreateGameRequest is the JSON body for POST /games.
type CreateGameRequest struct {
	SquarePrice        decimal.Decimal `json:"square_price" validate:"required"`
	EventID            string          `json:"event_id" validate:"required"`
	Referee            string          `json:"referee" validate:"required"`
	Deployer           string          `json:"deployer" validate:"required"`
	DeployerFeePercent int             `json:"deployer_fee_percent" validate:"min=0,max=100"`
	Asset              AssetRequest    `json:"asset" validate:"required"`
}

// CreateGameResponse returns the allocated game id.
type CreateGameResponse struct {
	GameID  uint64 `json:"game_id"`
	Version string `json:"version"`
}

// BuyTicketsRequest is the JSON body for POST /games/{id}/tickets. Value is
// the attached native amount; token games pay through an allowance and
// attach nothing.
type BuyTicketsRequest struct {
	Buyer      string          `json:"buyer" validate:"required"`
	NumTickets int             `json:"num_tickets" validate:"required,min=1,max=100"`
	Value      decimal.Decimal `json:"value"`
}

// BuyTicketsResponse lists the squares assigned to the buyer.
type BuyTicketsResponse struct {
	GameID  uint64 `json:"game_id"`
	Buyer   string `json:"buyer"`
	Squares []int  `json:"squares"`
}

// FinalizeRequest is the JSON body for POST /games/{id}/finalize.
type FinalizeRequest struct {
	Caller            string `json:"caller" validate:"required"`
	WinningSquares    []int  `json:"winning_squares" validate:"required,min=1"`
	WinnerPercentages []int  `json:"winner_percentages" validate:"required,min=1"`
}

// SquareResponse reports ownership of a single square.
type SquareResponse struct {
	GameID  uint64 `json:"game_id"`
	Square  int    `json:"square"`
	Claimed bool   `json:"claimed"`
}

// --- Handlers ---

// GetVersion handles GET /api/v1/version.
func (s *Service) GetVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": engine.Version})
}

// CreateGame handles POST /api/v1/games.
func (s *Service) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", "InvalidParameters", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, err.Error(), "InvalidParameters", http.StatusBadRequest)
		return
	}

	asset := model.AssetRef{
		Kind:     model.AssetKind(req.Asset.Kind),
		Token:    req.Asset.Token,
		Decimals: req.Asset.Decimals,
	}
	if asset.IsNative() && asset.Decimals == 0 {
		asset = model.Native()
	}

	id, err := s.engine.CreateGame(r.Context(), req.SquarePrice, req.EventID, req.Referee, req.DeployerFeePercent, asset, req.Deployer)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateGameResponse{GameID: id, Version: engine.Version})
}

// GetGame handles GET /api/v1/games/{gameID}.
func (s *Service) GetGame(w http.ResponseWriter, r *http.Request) {
	id, ok := s.gameID(w, r)
	if !ok {
		return
	}

	key := strconv.FormatUint(id, 10)
	if cached, found := s.snapshots.Get(key); found {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	g, err := s.engine.GetGame(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	s.snapshots.Set(key, g, gocache.DefaultExpiration)
	writeJSON(w, http.StatusOK, g)
}

// ListGames handles GET /api/v1/games.
func (s *Service) ListGames(w http.ResponseWriter, r *http.Request) {
	games := s.engine.ListGames(r.Context())
	if games == nil {
		games = []model.Game{}
	}
	writeJSON(w, http.StatusOK, games)
}

// GetSquare handles GET /api/v1/games/{gameID}/squares/{square}.
func (s *Service) GetSquare(w http.ResponseWriter, r *http.Request) {
	id, ok := s.gameID(w, r)
	if !ok {
		return
	}
	square, err := strconv.Atoi(chi.URLParam(r, "square"))
	if err != nil {
		writeError(w, "invalid square index", "InvalidParameters", http.StatusBadRequest)
		return
	}

	claimed, err := s.engine.IsSquareClaimed(r.Context(), id, square)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SquareResponse{GameID: id, Square: square, Claimed: claimed})
}

// BuyTickets handles POST /api/v1/games/{gameID}/tickets.
func (s *Service) BuyTickets(w http.ResponseWriter, r *http.Request) {
	id, ok := s.gameID(w, r)
	if !ok {
		return
	}

	var req BuyTicketsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", "InvalidParameters", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, err.Error(), "InvalidParameters", http.StatusBadRequest)
		return
	}

	squares, err := s.engine.BuyTickets(r.Context(), id, req.Buyer, req.NumTickets, req.Value)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	s.snapshots.Delete(strconv.FormatUint(id, 10))
	writeJSON(w, http.StatusOK, BuyTicketsResponse{GameID: id, Buyer: req.Buyer, Squares: squares})
}

// FinalizeGame handles POST /api/v1/games/{gameID}/finalize.
func (s *Service) FinalizeGame(w http.ResponseWriter, r *http.Request) {
	id, ok := s.gameID(w, r)
	if !ok {
		return
	}

	var req FinalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", "InvalidParameters", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, err.Error(), "InvalidParameters", http.StatusBadRequest)
		return
	}

	if err := s.engine.FinalizeGame(r.Context(), id, req.Caller, req.WinningSquares, req.WinnerPercentages); err != nil {
		writeEngineError(w, err)
		return
	}

	s.snapshots.Delete(strconv.FormatUint(id, 10))
	writeJSON(w, http.StatusOK, map[string]any{"game_id": id, "finalized": true})
}

// DistributeWinnings handles POST /api/v1/games/{gameID}/distribute.
func (s *Service) DistributeWinnings(w http.ResponseWriter, r *http.Request) {
	id, ok := s.gameID(w, r)
	if !ok {
		return
	}

	if err := s.engine.DistributeWinnings(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}

	s.snapshots.Delete(strconv.FormatUint(id, 10))
	writeJSON(w, http.StatusOK, map[string]any{"game_id": id, "distributed": true})
}

// RefundTickets handles POST /api/v1/games/{gameID}/refund.
func (s *Service) RefundTickets(w http.ResponseWriter, r *http.Request) {
	id, ok := s.gameID(w, r)
	if !ok {
		return
	}

	if err := s.engine.RefundTickets(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}

	s.snapshots.Delete(strconv.FormatUint(id, 10))
	writeJSON(w, http.StatusOK, map[string]any{"game_id": id, "refunded": true})
}

// --- helpers ---

func (s *Service) gameID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "gameID"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, "invalid game id", "InvalidParameters", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// engineErrorCodes maps engine error kinds to stable API codes and HTTP
// statuses, so the calling UI can present an actionable message.
var engineErrorCodes = []struct {
	err    error
	code   string
	status int
}{
	{engine.ErrGameNotFound, "GameNotFound", http.StatusNotFound},
	{engine.ErrInvalidParameters, "InvalidParameters", http.StatusBadRequest},
	{engine.ErrUnauthorized, "Unauthorized", http.StatusForbidden},
	{engine.ErrGameNotActive, "GameNotActive", http.StatusConflict},
	{engine.ErrGameFull, "GameFull", http.StatusConflict},
	{engine.ErrIncorrectPayment, "IncorrectPayment", http.StatusBadRequest},
	{engine.ErrTransferFailed, "TransferFailed", http.StatusConflict},
	{engine.ErrAlreadyFinalized, "AlreadyFinalized", http.StatusConflict},
	{engine.ErrNotFinalized, "NotFinalized", http.StatusConflict},
	{engine.ErrNotFinalizable, "NotFinalizable", http.StatusConflict},
	{engine.ErrAlreadyDistributed, "AlreadyDistributed", http.StatusConflict},
	{engine.ErrAlreadyRefunded, "AlreadyRefunded", http.StatusConflict},
	{engine.ErrRefundUnavailable, "RefundUnavailable", http.StatusConflict},
	{engine.ErrPayoutTransferFailed, "PayoutTransferFailed", http.StatusBadGateway},
}

func writeEngineError(w http.ResponseWriter, err error) {
	for _, m := range engineErrorCodes {
		if errors.Is(err, m.err) {
			writeError(w, err.Error(), m.code, m.status)
			return
		}
	}
	writeError(w, err.Error(), "Internal", http.StatusInternalServerError)
}

// writeError writes a JSON error response with a stable code.
func writeError(w http.ResponseWriter, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
