package engine

import "errors"

// The engine's error taxonomy. Every public operation fails with exactly one
// of these kinds (possibly wrapped with call context); callers map them to
// actionable messages.
var (
	// ErrInvalidParameters rejects malformed creation or finalization input.
	ErrInvalidParameters = errors.New("engine: invalid parameters")

	// ErrGameNotFound is returned for an unknown game id.
	ErrGameNotFound = errors.New("engine: game not found")

	// ErrUnauthorized rejects a finalize attempt by anyone but the referee.
	ErrUnauthorized = errors.New("engine: caller is not the referee")

	// ErrGameNotActive rejects purchases against a finalized or refunded game.
	ErrGameNotActive = errors.New("engine: game is not active")

	// ErrGameFull rejects purchases that would exceed the grid.
	ErrGameFull = errors.New("engine: game is sold out")

	// ErrIncorrectPayment rejects a purchase whose attached value does not
	// equal tickets × price exactly. No change is issued.
	ErrIncorrectPayment = errors.New("engine: incorrect payment amount")

	// ErrTransferFailed reports a failed escrow draw (token transferFrom
	// returning false, missing allowance, or insufficient balance).
	ErrTransferFailed = errors.New("engine: payment transfer failed")

	// ErrAlreadyFinalized rejects a second finalize call.
	ErrAlreadyFinalized = errors.New("engine: game already finalized")

	// ErrNotFinalized rejects distribution before the referee has ruled.
	ErrNotFinalized = errors.New("engine: game not finalized")

	// ErrNotFinalizable rejects finalization before the completion
	// condition (sold out, or sale window elapsed where permitted) is met.
	ErrNotFinalizable = errors.New("engine: completion condition not met")

	// ErrAlreadyDistributed guards against double payout.
	ErrAlreadyDistributed = errors.New("engine: winnings already distributed")

	// ErrAlreadyRefunded guards against double refund.
	ErrAlreadyRefunded = errors.New("engine: game already refunded")

	// ErrRefundUnavailable rejects refunds while the game can still be
	// completed (board full, or sale window still open).
	ErrRefundUnavailable = errors.New("engine: refund conditions not met")

	// ErrPayoutTransferFailed reports a recipient that could not receive
	// funds during distribution or refund; the whole operation reverts.
	ErrPayoutTransferFailed = errors.New("engine: payout transfer failed")
)
