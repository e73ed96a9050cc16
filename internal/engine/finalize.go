package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/footy-fc/squares-engine/internal/event"
	"github.com/footy-fc/squares-engine/internal/model"
)

// FinalizeGame records the winning squares and their payout percentages.
// Referee-only, one-shot. Moves no funds.
//
// The completion condition is a fully sold board, or — when the engine is
// configured with AllowPartialFinalize — a partially sold board whose sale
// window has elapsed.
func (e *Engine) FinalizeGame(ctx context.Context, gameID uint64, caller string, winningSquares, winnerPercentages []int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.lookup(gameID)
	if err != nil {
		return err
	}
	if caller != g.Referee {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	if g.Finalized() {
		return fmt.Errorf("%w: game %d", ErrAlreadyFinalized, gameID)
	}
	if !g.Active {
		return fmt.Errorf("%w: game %d", ErrGameNotActive, gameID)
	}
	if !e.finalizable(g) {
		return fmt.Errorf("%w: %d of %d squares sold", ErrNotFinalizable, g.TicketsSold, model.GridSize)
	}

	if len(winningSquares) == 0 || len(winningSquares) != len(winnerPercentages) {
		return fmt.Errorf("%w: %d winning squares, %d percentages", ErrInvalidParameters, len(winningSquares), len(winnerPercentages))
	}

	winnerTotal := 0
	for i, sq := range winningSquares {
		if sq < 0 || sq >= model.GridSize {
			return fmt.Errorf("%w: square %d out of range", ErrInvalidParameters, sq)
		}
		if g.SquareOwners[sq] == "" {
			return fmt.Errorf("%w: winning square %d is unowned", ErrInvalidParameters, sq)
		}
		pct := winnerPercentages[i]
		if pct < 1 {
			return fmt.Errorf("%w: percentage %d for square %d", ErrInvalidParameters, pct, sq)
		}
		winnerTotal += pct
	}
	if winnerTotal+g.DeployerFeePercent+g.CommunityFeePercent != 100 {
		return fmt.Errorf("%w: winners %d + deployer %d + community %d != 100",
			ErrInvalidParameters, winnerTotal, g.DeployerFeePercent, g.CommunityFeePercent)
	}

	now := e.now().UTC()
	next := g.Clone()
	next.WinningSquares = append([]int(nil), winningSquares...)
	next.WinnerPercentages = append([]int(nil), winnerPercentages...)
	next.Active = false
	next.FinalizedAt = &now

	if err := e.commit(ctx, next); err != nil {
		return err
	}

	slog.Info("game finalized",
		"game", gameID,
		"referee", caller,
		"winning_squares", joinInts(winningSquares),
		"percentages", joinInts(winnerPercentages),
	)

	e.sink.Emit(event.New(event.GameFinalized, gameID, now, map[string]string{
		"referee":         caller,
		"winning_squares": joinInts(winningSquares),
		"percentages":     joinInts(winnerPercentages),
		"pool":            next.PrizePool.String(),
	}))
	return nil
}

// finalizable reports whether the completion condition holds. Caller holds
// the lock.
func (e *Engine) finalizable(g *model.Game) bool {
	if g.Full() {
		return true
	}
	if !e.cfg.AllowPartialFinalize || g.TicketsSold == 0 {
		return false
	}
	return e.saleWindowElapsed(g)
}

func (e *Engine) saleWindowElapsed(g *model.Game) bool {
	if e.cfg.SaleWindow <= 0 {
		return false
	}
	return !e.now().Before(g.CreatedAt.Add(e.cfg.SaleWindow))
}
