package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/footy-fc/squares-engine/internal/api"
	"github.com/footy-fc/squares-engine/internal/bank"
	"github.com/footy-fc/squares-engine/internal/engine"
	"github.com/footy-fc/squares-engine/internal/model"
	"github.com/footy-fc/squares-engine/internal/store"
)

type testEnv struct {
	srv    *httptest.Server
	bank   *bank.MemoryBank
	engine *engine.Engine
}

func newTestEnv(t *testing.T, cfg engine.Config) *testEnv {
	t.Helper()

	b := bank.NewMemoryBank()
	eng, err := engine.New(cfg, b, store.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	r := chi.NewRouter()
	api.NewService(eng, nil).Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, bank: b, engine: eng}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// errorCode reads the stable error code out of an error response.
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body map[string]string
	decode(t, resp, &body)
	return body["code"]
}

func nativeGameBody(price string) map[string]any {
	return map[string]any{
		"square_price":         price,
		"event_id":             "evt_kog_fcs",
		"referee":              "0xref",
		"deployer":             "0xdeployer",
		"deployer_fee_percent": 0,
		"asset":                map[string]any{"kind": "native", "decimals": 18},
	}
}

func TestVersionEndpoint(t *testing.T) {
	e := newTestEnv(t, engine.Config{})

	resp := e.do(t, http.MethodGet, "/version", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	decode(t, resp, &body)
	if body["version"] != engine.Version {
		t.Errorf("version = %q, want %q", body["version"], engine.Version)
	}
}

func TestListGamesEmpty(t *testing.T) {
	e := newTestEnv(t, engine.Config{})

	resp := e.do(t, http.MethodGet, "/games", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var games []model.Game
	decode(t, resp, &games)
	if len(games) != 0 {
		t.Errorf("games = %d, want 0", len(games))
	}
}

func TestGameLifecycleHTTP(t *testing.T) {
	e := newTestEnv(t, engine.Config{})

	if err := e.bank.Mint("alice", model.Native(), decimal.NewFromInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := e.bank.Mint("bob", model.Native(), decimal.NewFromInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// Create.
	resp := e.do(t, http.MethodPost, "/games", nativeGameBody("0.1"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created api.CreateGameResponse
	decode(t, resp, &created)
	if created.GameID != 1 {
		t.Fatalf("game id = %d, want 1", created.GameID)
	}

	// Buy: alice takes the first 60 squares, bob the remaining 40.
	resp = e.do(t, http.MethodPost, "/games/1/tickets", map[string]any{
		"buyer": "alice", "num_tickets": 60, "value": "6",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("buy status = %d, want 200", resp.StatusCode)
	}
	var bought api.BuyTicketsResponse
	decode(t, resp, &bought)
	if len(bought.Squares) != 60 || bought.Squares[0] != 0 {
		t.Fatalf("squares = %v", bought.Squares)
	}

	resp = e.do(t, http.MethodPost, "/games/1/tickets", map[string]any{
		"buyer": "bob", "num_tickets": 40, "value": "4",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("buy status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// Square ownership.
	resp = e.do(t, http.MethodGet, "/games/1/squares/59", nil)
	var sq api.SquareResponse
	decode(t, resp, &sq)
	if !sq.Claimed {
		t.Error("square 59 should be claimed")
	}

	// Snapshot reflects the sales.
	resp = e.do(t, http.MethodGet, "/games/1", nil)
	var g model.Game
	decode(t, resp, &g)
	if g.TicketsSold != 100 {
		t.Errorf("tickets sold = %d, want 100", g.TicketsSold)
	}
	if !g.PrizePool.Equal(decimal.NewFromInt(10)) {
		t.Errorf("pool = %s, want 10", g.PrizePool)
	}

	// Finalize: alice's square 0 wins everything.
	resp = e.do(t, http.MethodPost, "/games/1/finalize", map[string]any{
		"caller":             "0xref",
		"winning_squares":    []int{0},
		"winner_percentages": []int{100},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("finalize status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// Cached snapshot was invalidated by the write.
	resp = e.do(t, http.MethodGet, "/games/1", nil)
	decode(t, resp, &g)
	if g.Active {
		t.Error("game should be inactive after finalization")
	}

	// Distribute.
	resp = e.do(t, http.MethodPost, "/games/1/distribute", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("distribute status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	bal, err := e.bank.Balance(context.Background(), "alice", model.Native())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	// 10 − 6 spent + 10 pool.
	if !bal.Equal(decimal.NewFromInt(14)) {
		t.Errorf("alice balance = %s, want 14", bal)
	}

	// Distribute again: conflict.
	resp = e.do(t, http.MethodPost, "/games/1/distribute", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second distribute status = %d, want 409", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "AlreadyDistributed" {
		t.Errorf("code = %q, want AlreadyDistributed", code)
	}
}

func TestErrorCodes(t *testing.T) {
	e := newTestEnv(t, engine.Config{})

	if err := e.bank.Mint("alice", model.Native(), decimal.NewFromInt(1)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	resp := e.do(t, http.MethodPost, "/games", nativeGameBody("0.1"))
	resp.Body.Close()

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown game", http.MethodGet, "/games/42", nil, http.StatusNotFound, "GameNotFound"},
		{"bad game id", http.MethodGet, "/games/zero", nil, http.StatusBadRequest, "InvalidParameters"},
		{"bad body", http.MethodPost, "/games/1/tickets", "not json", http.StatusBadRequest, "InvalidParameters"},
		{"missing buyer", http.MethodPost, "/games/1/tickets",
			map[string]any{"num_tickets": 1, "value": "0.1"}, http.StatusBadRequest, "InvalidParameters"},
		{"wrong payment", http.MethodPost, "/games/1/tickets",
			map[string]any{"buyer": "alice", "num_tickets": 1, "value": "0.5"}, http.StatusBadRequest, "IncorrectPayment"},
		{"unfunded buyer", http.MethodPost, "/games/1/tickets",
			map[string]any{"buyer": "mallory", "num_tickets": 1, "value": "0.1"}, http.StatusConflict, "TransferFailed"},
		{"non-referee finalize", http.MethodPost, "/games/1/finalize",
			map[string]any{"caller": "alice", "winning_squares": []int{0}, "winner_percentages": []int{100}},
			http.StatusForbidden, "Unauthorized"},
		{"premature finalize", http.MethodPost, "/games/1/finalize",
			map[string]any{"caller": "0xref", "winning_squares": []int{0}, "winner_percentages": []int{100}},
			http.StatusConflict, "NotFinalizable"},
		{"premature distribute", http.MethodPost, "/games/1/distribute", nil, http.StatusConflict, "NotFinalized"},
		{"premature refund", http.MethodPost, "/games/1/refund", nil, http.StatusConflict, "RefundUnavailable"},
	}

	// Seed one ticket so the board is partially sold.
	resp = e.do(t, http.MethodPost, "/games/1/tickets", map[string]any{
		"buyer": "alice", "num_tickets": 1, "value": "0.1",
	})
	resp.Body.Close()

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := e.do(t, tc.method, tc.path, tc.body)
			if resp.StatusCode != tc.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.status)
			}
			if code := errorCode(t, resp); code != tc.code {
				t.Errorf("code = %q, want %q", code, tc.code)
			}
		})
	}
}

func TestCreateGameValidation(t *testing.T) {
	e := newTestEnv(t, engine.Config{})

	body := nativeGameBody("0.1")
	body["referee"] = ""
	resp := e.do(t, http.MethodPost, "/games", body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	body = nativeGameBody("0.1")
	body["asset"] = map[string]any{"kind": "stock", "decimals": 2}
	resp = e.do(t, http.MethodPost, "/games", body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}
