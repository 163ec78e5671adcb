package resolver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"TrendSentinel/internal/model"
)

// BarSource returns the most recent closed bar of a symbol.
type BarSource interface {
	LastBar(ctx context.Context, symbol string) (model.Bar, error)
}

type paperPosition struct {
	order  model.Order
	ticket string
}

// PaperBroker simulates a venue: market orders fill at the last close plus half the spread,
// and open positions are settled against later bars with the replay rules.
type PaperBroker struct {
	// BarDuration is the length of the settlement bars. Zero leaves BarsHeld unset.
	BarDuration time.Duration

	mu          sync.Mutex
	bars        BarSource
	instruments map[string]model.Instrument
	spread      float64
	costs       Costs
	capital     float64
	leverage    float64
	seq         int
	open        []paperPosition
	closed      []model.Trade
	now         func() time.Time
}

// NewPaperBroker returns a simulated broker starting with capital.
func NewPaperBroker(bars BarSource, instruments map[string]model.Instrument, capital, leverage, spread float64, costs Costs) *PaperBroker {
	return &PaperBroker{
		bars:        bars,
		instruments: instruments,
		spread:      spread,
		costs:       costs,
		capital:     capital,
		leverage:    leverage,
		now:         time.Now,
	}
}

func (p *PaperBroker) instrument(symbol string) model.Instrument {
	if in, ok := p.instruments[symbol]; ok {
		return in
	}
	return model.DefaultInstrument(symbol)
}

// Quote returns bid/ask around the last close and settles that symbol's positions.
func (p *PaperBroker) Quote(ctx context.Context, symbol string) (Quote, error) {
	bar, err := p.bars.LastBar(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settle(symbol, bar)
	half := p.spread / 2
	return Quote{Bid: bar.Close - half, Ask: bar.Close + half, Time: bar.Time}, nil
}

// AccountState returns the simulated balance.
func (p *PaperBroker) AccountState(context.Context) (model.AccountState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return model.AccountState{Capital: p.capital, Leverage: p.leverage}, nil
}

// OpenPositions settles every symbol with exposure and returns what is still open.
func (p *PaperBroker) OpenPositions(ctx context.Context) (int, error) {
	p.mu.Lock()
	symbols := make(map[string]struct{})
	for _, pos := range p.open {
		symbols[pos.order.Symbol] = struct{}{}
	}
	p.mu.Unlock()

	names := make([]string, 0, len(symbols))
	for s := range symbols {
		names = append(names, s)
	}
	sort.Strings(names)
	for _, s := range names {
		bar, err := p.bars.LastBar(ctx, s)
		if err != nil {
			return 0, fmt.Errorf("settle %s: %w", s, err)
		}
		p.mu.Lock()
		p.settle(s, bar)
		p.mu.Unlock()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.open), nil
}

// PlaceMarketOrder records a fill at the requested price.
func (p *PaperBroker) PlaceMarketOrder(_ context.Context, req OrderRequest) (Fill, error) {
	if req.Size <= 0 {
		return Fill{}, NewBrokerError(10014)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	fill := Fill{Ticket: fmt.Sprintf("paper-%d", p.seq), Price: req.Price, Size: req.Size, Time: p.now()}
	p.open = append(p.open, paperPosition{
		ticket: fill.Ticket,
		order: model.Order{
			Symbol:     req.Symbol,
			Direction:  req.Direction,
			EntryTime:  fill.Time,
			EntryPrice: fill.Price,
			StopPrice:  req.Stop,
			TakeProfit: req.Target,
			Size:       fill.Size,
		},
	})
	return fill, nil
}

// settle closes positions of symbol whose stop or target bar touched. Bars that
// opened before the fill are ignored. Caller holds p.mu.
func (p *PaperBroker) settle(symbol string, bar model.Bar) {
	kept := p.open[:0]
	for _, pos := range p.open {
		if pos.order.Symbol != symbol || bar.Time.Before(pos.order.EntryTime.Truncate(time.Minute)) {
			kept = append(kept, pos)
			continue
		}
		exit, reason, hit := touch(pos.order, bar, p.costs.Slippage)
		if !hit {
			kept = append(kept, pos)
			continue
		}
		tr := closeTrade(pos.order, bar, exit, reason, p.barsHeld(pos.order.EntryTime, bar.Time), p.instrument(symbol), p.costs)
		p.capital += tr.PnL
		p.closed = append(p.closed, tr)
		log.Info().Str("ticket", pos.ticket).Str("symbol", symbol).Str("reason", string(reason)).Float64("pnl", tr.PnL).Msg("paper position closed")
	}
	p.open = kept
}

// barsHeld counts settlement bars from the first one starting at or after the
// fill minute through the exit bar.
func (p *PaperBroker) barsHeld(filled, exitBar time.Time) int {
	d := p.BarDuration
	if d <= 0 {
		return 0
	}
	from := filled.Truncate(time.Minute)
	first := from.Truncate(d)
	if first.Before(from) {
		first = first.Add(d)
	}
	if exitBar.Before(first) {
		return 1
	}
	return int(exitBar.Sub(first)/d) + 1
}
