// Package bank is the value-transfer boundary of the squares engine.
//
// The engine never touches balances directly: it draws escrow in through
// Draw and pays escrow out through Pay, selecting the native or token rail
// from the AssetRef fixed at game creation. Implementations must treat a
// failed token call (false return or error) identically to a revert.
package bank

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/footy-fc/squares-engine/internal/model"
)

var (
	// ErrInsufficientFunds is returned when a draw exceeds the payer's balance.
	ErrInsufficientFunds = errors.New("bank: insufficient funds")

	// ErrInsufficientAllowance is returned when a token draw exceeds the
	// allowance the payer granted to the engine.
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")

	// ErrUnknownToken is returned for a token symbol that was never registered.
	ErrUnknownToken = errors.New("bank: unknown token")

	// ErrTransferRejected is returned when the recipient side of a payment
	// fails: a token transfer returning false, or a receive hook erroring.
	ErrTransferRejected = errors.New("bank: transfer rejected")
)

// Bank moves value between accounts and the engine's escrow.
//
// Draw pulls amount from the named account into escrow (native: debits the
// account's balance; token: consumes the allowance granted to the engine).
// Pay pushes amount from escrow to the named account. For native payments
// the recipient's receive hook, if registered, runs with the transferred
// value — contract wallets with non-trivial receive logic must be payable.
type Bank interface {
	Draw(ctx context.Context, from string, asset model.AssetRef, amount decimal.Decimal) error
	Pay(ctx context.Context, to string, asset model.AssetRef, amount decimal.Decimal) error

	// PayAll delivers every payment or none: on the first failed leg all
	// previously delivered legs are reversed and the error is a *PayError
	// identifying the failed recipient and leg.
	PayAll(ctx context.Context, asset model.AssetRef, payments []Payment) error

	Balance(ctx context.Context, account string, asset model.AssetRef) (decimal.Decimal, error)
}

// Payment is one leg of an atomic multi-recipient payout.
type Payment struct {
	To     string
	Amount decimal.Decimal
	Leg    string // "winner", "deployer", "community", "refund"
}

// ReceiveHook runs when a native payment is delivered to its account,
// mirroring a contract wallet's receive() body. Returning an error rejects
// the payment.
type ReceiveHook func(from string, amount decimal.Decimal) error

// PayError reports which recipient and leg of a distribution failed, so a
// failed payout is triageable without losing atomicity.
type PayError struct {
	Recipient string
	Leg       string // "winner", "deployer", "community", "refund"
	Err       error
}

func (e *PayError) Error() string {
	return fmt.Sprintf("pay %s leg to %s: %v", e.Leg, e.Recipient, e.Err)
}

func (e *PayError) Unwrap() error { return e.Err }
