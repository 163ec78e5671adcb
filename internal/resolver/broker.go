package resolver

import (
	"context"
	"time"

	"TrendSentinel/internal/model"
)

// Quote is the live top of book for a symbol.
type Quote struct {
	Bid  float64
	Ask  float64
	Time time.Time
}

// Price returns the side of the book a market order in dir fills against.
func (q Quote) Price(dir model.Direction) float64 {
	if dir == model.Short {
		return q.Bid
	}
	return q.Ask
}

// OrderRequest is a market order with attached protective levels.
type OrderRequest struct {
	Symbol    string
	Direction model.Direction
	Size      float64
	Price     float64
	Stop      float64
	Target    float64
	Comment   string
}

// Fill is the broker's confirmation of a placed order.
type Fill struct {
	Ticket string
	Price  float64
	Size   float64
	Time   time.Time
}

// Broker is the execution venue of one account.
// Connection and authentication failures must wrap ErrFatalConnection;
// rejected placements should be returned as *BrokerError.
type Broker interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
	AccountState(ctx context.Context) (model.AccountState, error)
	OpenPositions(ctx context.Context) (int, error)
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (Fill, error)
}
