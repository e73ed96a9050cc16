// Package event defines the engine's emitted events and the sink fanout.
// Events carry enough data (game id, amounts, participant addresses) for an
// off-chain projector to reconstruct ledger state without re-querying the
// engine.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type discriminates the emitted event kinds.
type Type string

const (
	GameCreated       Type = "GameCreated"
	TicketsPurchased  Type = "TicketsPurchased"
	GameFinalized     Type = "GameFinalized"
	PrizesDistributed Type = "PrizesDistributed"
	TicketsRefunded   Type = "TicketsRefunded"
)

// Event is one emitted engine event: a type, the game it belongs to, and a
// flat set of string attributes.
type Event struct {
	ID         string            `json:"id" db:"id"`
	Type       Type              `json:"type" db:"type"`
	GameID     uint64            `json:"game_id" db:"game_id"`
	Attributes map[string]string `json:"attributes"`
	At         time.Time         `json:"at" db:"at"`
}

// New constructs an event with a fresh id.
func New(t Type, gameID uint64, at time.Time, attrs map[string]string) *Event {
	return &Event{
		ID:         uuid.New().String(),
		Type:       t,
		GameID:     gameID,
		Attributes: attrs,
		At:         at,
	}
}

// Sink receives committed events. Emit must not block engine execution;
// implementations drop or buffer as needed.
type Sink interface {
	Emit(e *Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(e *Event)

func (f SinkFunc) Emit(e *Event) { f(e) }

// Fanout broadcasts each event to every sink in order.
type Fanout []Sink

func (f Fanout) Emit(e *Event) {
	for _, s := range f {
		s.Emit(e)
	}
}
