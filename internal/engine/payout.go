package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/footy-fc/squares-engine/internal/bank"
	"github.com/footy-fc/squares-engine/internal/event"
	"github.com/footy-fc/squares-engine/internal/model"
)

// DistributeWinnings pays the prize pool out to the finalized winners, the
// deployer, and the community wallet. Permissionless: funds flow only to
// predetermined recipients.
//
// Ordering is checks-effects-interactions: the prizeClaimed flag is
// committed before any transfer, so recipient code re-entering the engine
// fails with ErrAlreadyDistributed. If any leg fails, delivered legs are
// reversed and the flag is restored — all legs succeed or none do.
func (e *Engine) DistributeWinnings(ctx context.Context, gameID uint64) error {
	e.mu.Lock()

	g, err := e.lookup(gameID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if !g.Finalized() {
		e.mu.Unlock()
		return fmt.Errorf("%w: game %d", ErrNotFinalized, gameID)
	}
	if g.PrizeClaimed {
		e.mu.Unlock()
		return fmt.Errorf("%w: game %d", ErrAlreadyDistributed, gameID)
	}

	payments, dust := payoutLegs(g, e.cfg.CommunityWallet)

	next := g.Clone()
	next.PrizeClaimed = true
	if err := e.commit(ctx, next); err != nil {
		e.mu.Unlock()
		return err
	}
	asset := g.Asset
	pool := g.PrizePool
	e.mu.Unlock()

	if err := e.bank.PayAll(ctx, asset, payments); err != nil {
		e.revertFlag(ctx, gameID, func(g *model.Game) { g.PrizeClaimed = false })

		var payErr *bank.PayError
		if errors.As(err, &payErr) {
			slog.Error("distribution reverted",
				"game", gameID, "leg", payErr.Leg, "recipient", payErr.Recipient, "err", payErr.Err)
			return fmt.Errorf("%w: %s leg to %s: %v", ErrPayoutTransferFailed, payErr.Leg, payErr.Recipient, payErr.Err)
		}
		return fmt.Errorf("%w: %v", ErrPayoutTransferFailed, err)
	}

	now := e.now().UTC()
	attrs := map[string]string{
		"pool": pool.String(),
		"dust": dust.String(),
	}
	for _, p := range payments {
		attrs[p.Leg+":"+p.To] = p.Amount.String()
	}

	slog.Info("winnings distributed",
		"game", gameID,
		"pool", pool.String(),
		"legs", len(payments),
		"dust", dust.String(),
	)

	e.sink.Emit(event.New(event.PrizesDistributed, gameID, now, attrs))
	return nil
}

// RefundTickets returns escrowed funds to every ticket holder of a game
// that can no longer be completed. Permissionless. No deployer or
// community fee is charged on a refunded game.
func (e *Engine) RefundTickets(ctx context.Context, gameID uint64) error {
	e.mu.Lock()

	g, err := e.lookup(gameID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if g.Refunded {
		e.mu.Unlock()
		return fmt.Errorf("%w: game %d", ErrAlreadyRefunded, gameID)
	}
	if g.PrizeClaimed {
		e.mu.Unlock()
		return fmt.Errorf("%w: game %d", ErrAlreadyDistributed, gameID)
	}
	if g.Finalized() {
		e.mu.Unlock()
		return fmt.Errorf("%w: game %d is finalized, distribute instead", ErrAlreadyFinalized, gameID)
	}
	// A full board can always still be finalized; a partial board only
	// becomes refundable once the sale window has closed on it.
	if g.Full() || (g.TicketsSold > 0 && !e.saleWindowElapsed(g)) {
		e.mu.Unlock()
		return fmt.Errorf("%w: game %d", ErrRefundUnavailable, gameID)
	}

	payments := refundLegs(g)

	next := g.Clone()
	next.Refunded = true
	next.Active = false
	if err := e.commit(ctx, next); err != nil {
		e.mu.Unlock()
		return err
	}
	asset := g.Asset
	e.mu.Unlock()

	if err := e.bank.PayAll(ctx, asset, payments); err != nil {
		e.revertFlag(ctx, gameID, func(g *model.Game) {
			g.Refunded = false
			g.Active = true
		})

		var payErr *bank.PayError
		if errors.As(err, &payErr) {
			slog.Error("refund reverted",
				"game", gameID, "recipient", payErr.Recipient, "err", payErr.Err)
			return fmt.Errorf("%w: refund leg to %s: %v", ErrPayoutTransferFailed, payErr.Recipient, payErr.Err)
		}
		return fmt.Errorf("%w: %v", ErrPayoutTransferFailed, err)
	}

	now := e.now().UTC()
	attrs := map[string]string{"pool": g.PrizePool.String()}
	for _, p := range payments {
		attrs["refund:"+p.To] = p.Amount.String()
	}

	slog.Info("tickets refunded", "game", gameID, "holders", len(payments), "pool", g.PrizePool.String())

	e.sink.Emit(event.New(event.TicketsRefunded, gameID, now, attrs))
	return nil
}

// revertFlag restores a terminal flag after a failed payout batch.
func (e *Engine) revertFlag(ctx context.Context, gameID uint64, undo func(*model.Game)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.lookup(gameID)
	if err != nil {
		return
	}
	next := g.Clone()
	undo(next)
	if err := e.commit(ctx, next); err != nil {
		slog.Error("terminal flag revert failed", "game", gameID, "err", err)
	}
}

// payoutLegs computes the distribution legs for a finalized game. Each leg
// is truncated to the asset's smallest unit; the remainder is dust that
// stays in escrow and is never folded into a later game.
func payoutLegs(g *model.Game, communityWallet string) ([]bank.Payment, decimal.Decimal) {
	var payments []bank.Payment
	paid := decimal.Zero

	for i, sq := range g.WinningSquares {
		amount := cut(g.PrizePool, g.WinnerPercentages[i], g.Asset.Decimals)
		if amount.IsZero() {
			continue
		}
		payments = append(payments, bank.Payment{To: g.SquareOwners[sq], Amount: amount, Leg: "winner"})
		paid = paid.Add(amount)
	}
	if g.DeployerFeePercent > 0 {
		amount := cut(g.PrizePool, g.DeployerFeePercent, g.Asset.Decimals)
		if !amount.IsZero() {
			payments = append(payments, bank.Payment{To: g.Deployer, Amount: amount, Leg: "deployer"})
			paid = paid.Add(amount)
		}
	}
	if g.CommunityFeePercent > 0 {
		amount := cut(g.PrizePool, g.CommunityFeePercent, g.Asset.Decimals)
		if !amount.IsZero() {
			payments = append(payments, bank.Payment{To: communityWallet, Amount: amount, Leg: "community"})
			paid = paid.Add(amount)
		}
	}

	return payments, g.PrizePool.Sub(paid)
}

// refundLegs aggregates one exact refund per holder, in first-square order.
func refundLegs(g *model.Game) []bank.Payment {
	counts := make(map[string]int)
	var order []string
	for _, owner := range g.SquareOwners {
		if owner == "" {
			continue
		}
		if counts[owner] == 0 {
			order = append(order, owner)
		}
		counts[owner]++
	}

	payments := make([]bank.Payment, 0, len(order))
	for _, owner := range order {
		amount := g.SquarePrice.Mul(decimal.NewFromInt(int64(counts[owner])))
		payments = append(payments, bank.Payment{To: owner, Amount: amount, Leg: "refund"})
	}
	return payments
}

// cut returns pool × percent / 100 truncated to the asset scale. Shift(-2)
// keeps the division by 100 exact before truncation.
func cut(pool decimal.Decimal, percent int, decimals int32) decimal.Decimal {
	return pool.Mul(decimal.NewFromInt(int64(percent))).Shift(-2).RoundDown(decimals)
}
