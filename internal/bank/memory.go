package bank

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/footy-fc/squares-engine/internal/model"
)

// escrowAccount holds all funds drawn by the engine, across every game.
const escrowAccount = "__escrow__"

type tokenState struct {
	decimals  int32
	balances  map[string]decimal.Decimal
	allowance map[string]decimal.Decimal // owner → amount approved to the engine
	failing   bool                       // transfers return false (test injection)
}

// MemoryBank implements Bank with in-memory balances. Used for testing and
// development; a chain adapter satisfies the same interface in production.
type MemoryBank struct {
	mu     sync.Mutex
	native map[string]decimal.Decimal
	tokens map[string]*tokenState
	hooks  map[string]ReceiveHook
}

// NewMemoryBank creates an empty in-memory bank.
func NewMemoryBank() *MemoryBank {
	return &MemoryBank{
		native: make(map[string]decimal.Decimal),
		tokens: make(map[string]*tokenState),
		hooks:  make(map[string]ReceiveHook),
	}
}

// RegisterToken creates a token with the given symbol and decimal scale.
func (b *MemoryBank) RegisterToken(symbol string, decimals int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[symbol] = &tokenState{
		decimals:  decimals,
		balances:  make(map[string]decimal.Decimal),
		allowance: make(map[string]decimal.Decimal),
	}
}

// Mint credits an account, creating test fixtures for either rail.
func (b *MemoryBank) Mint(account string, asset model.AssetRef, amount decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if asset.IsNative() {
		b.native[account] = b.native[account].Add(amount)
		return nil
	}
	ts, ok := b.tokens[asset.Token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, asset.Token)
	}
	ts.balances[account] = ts.balances[account].Add(amount)
	return nil
}

// Approve grants the engine an allowance to draw the owner's tokens,
// mirroring an ERC20 approve ahead of a transferFrom.
func (b *MemoryBank) Approve(owner, symbol string, amount decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts, ok := b.tokens[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	ts.allowance[owner] = amount
	return nil
}

// SetReceiveHook registers receive logic for an account, modeling a smart
// contract wallet. Native payments to the account run the hook with the
// transferred value; a hook error rejects the payment.
func (b *MemoryBank) SetReceiveHook(account string, hook ReceiveHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks[account] = hook
}

// FailTransfers toggles failure injection for a token: while set, every
// transfer of that token reports rejection, like an ERC20 returning false.
func (b *MemoryBank) FailTransfers(symbol string, failing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ts, ok := b.tokens[symbol]; ok {
		ts.failing = failing
	}
}

func (b *MemoryBank) Draw(_ context.Context, from string, asset model.AssetRef, amount decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if asset.IsNative() {
		if b.native[from].LessThan(amount) {
			return fmt.Errorf("%w: %s has %s, need %s", ErrInsufficientFunds, from, b.native[from], amount)
		}
		b.native[from] = b.native[from].Sub(amount)
		b.native[escrowAccount] = b.native[escrowAccount].Add(amount)
		return nil
	}

	ts, ok := b.tokens[asset.Token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, asset.Token)
	}
	if ts.failing {
		return fmt.Errorf("%w: token %s transferFrom returned false", ErrTransferRejected, asset.Token)
	}
	if ts.allowance[from].LessThan(amount) {
		return fmt.Errorf("%w: %s approved %s, need %s", ErrInsufficientAllowance, from, ts.allowance[from], amount)
	}
	if ts.balances[from].LessThan(amount) {
		return fmt.Errorf("%w: %s has %s, need %s", ErrInsufficientFunds, from, ts.balances[from], amount)
	}
	ts.allowance[from] = ts.allowance[from].Sub(amount)
	ts.balances[from] = ts.balances[from].Sub(amount)
	ts.balances[escrowAccount] = ts.balances[escrowAccount].Add(amount)
	return nil
}

func (b *MemoryBank) Pay(_ context.Context, to string, asset model.AssetRef, amount decimal.Decimal) error {
	b.mu.Lock()

	if !asset.IsNative() {
		defer b.mu.Unlock()
		ts, ok := b.tokens[asset.Token]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownToken, asset.Token)
		}
		if ts.failing {
			return fmt.Errorf("%w: token %s transfer returned false", ErrTransferRejected, asset.Token)
		}
		if ts.balances[escrowAccount].LessThan(amount) {
			return fmt.Errorf("%w: escrow has %s, need %s", ErrInsufficientFunds, ts.balances[escrowAccount], amount)
		}
		ts.balances[escrowAccount] = ts.balances[escrowAccount].Sub(amount)
		ts.balances[to] = ts.balances[to].Add(amount)
		return nil
	}

	if b.native[escrowAccount].LessThan(amount) {
		b.mu.Unlock()
		return fmt.Errorf("%w: escrow has %s, need %s", ErrInsufficientFunds, b.native[escrowAccount], amount)
	}
	b.native[escrowAccount] = b.native[escrowAccount].Sub(amount)
	b.native[to] = b.native[to].Add(amount)
	hook := b.hooks[to]

	// Run the receive hook outside the lock: it is arbitrary recipient code
	// and may call back into the bank or the engine.
	b.mu.Unlock()

	if hook != nil {
		if err := hook(escrowAccount, amount); err != nil {
			b.mu.Lock()
			b.native[to] = b.native[to].Sub(amount)
			b.native[escrowAccount] = b.native[escrowAccount].Add(amount)
			b.mu.Unlock()
			return fmt.Errorf("%w: receive hook of %s: %v", ErrTransferRejected, to, err)
		}
	}
	return nil
}

// PayAll delivers the payments atomically. Legs run in order; on the first
// failure every delivered leg is reversed inside the bank, mirroring a
// transaction revert, and a *PayError names the failed recipient and leg.
func (b *MemoryBank) PayAll(ctx context.Context, asset model.AssetRef, payments []Payment) error {
	for i, p := range payments {
		if err := b.Pay(ctx, p.To, asset, p.Amount); err != nil {
			b.reverse(asset, payments[:i])
			return &PayError{Recipient: p.To, Leg: p.Leg, Err: err}
		}
	}
	return nil
}

// reverse force-restores escrow for already-delivered legs. Receive hooks
// have run but their observable balance effects are undone, matching
// revert semantics.
func (b *MemoryBank) reverse(asset model.AssetRef, delivered []Payment) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range delivered {
		if asset.IsNative() {
			b.native[p.To] = b.native[p.To].Sub(p.Amount)
			b.native[escrowAccount] = b.native[escrowAccount].Add(p.Amount)
			continue
		}
		if ts, ok := b.tokens[asset.Token]; ok {
			ts.balances[p.To] = ts.balances[p.To].Sub(p.Amount)
			ts.balances[escrowAccount] = ts.balances[escrowAccount].Add(p.Amount)
		}
	}
}

func (b *MemoryBank) Balance(_ context.Context, account string, asset model.AssetRef) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if asset.IsNative() {
		return b.native[account], nil
	}
	ts, ok := b.tokens[asset.Token]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownToken, asset.Token)
	}
	return ts.balances[account], nil
}

// EscrowBalance reports the engine's escrowed funds for an asset.
func (b *MemoryBank) EscrowBalance(ctx context.Context, asset model.AssetRef) (decimal.Decimal, error) {
	return b.Balance(ctx, escrowAccount, asset)
}
