package resolver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"TrendSentinel/internal/model"
	"TrendSentinel/internal/risk"
	"TrendSentinel/internal/telemetry"
)

// RetryPolicy bounds the placement loop. The delay before attempt n+1 is
// min(BaseDelay + n*Step, MaxDelay).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Step        time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy allows 1000 attempts with a delay growing from 0.5s by 50ms up to 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1000, BaseDelay: 500 * time.Millisecond, Step: 50 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Delay returns the pause after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay + time.Duration(attempt)*p.Step
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// OutcomeKind classifies how an execution ended.
type OutcomeKind string

const (
	Filled           OutcomeKind = "filled"
	CapacityExceeded OutcomeKind = "capacity_exceeded"
	Discarded        OutcomeKind = "discarded"
	Exhausted        OutcomeKind = "exhausted"
	Fatal            OutcomeKind = "fatal"
)

// Outcome reports the result of executing one signal on one account.
type Outcome struct {
	Account  string
	Kind     OutcomeKind
	Fill     Fill
	Attempts int
	LastCode int
	Err      error
}

// Executor places signals on one account's broker.
type Executor struct {
	Account      string
	broker       Broker
	sizer        *risk.Sizer
	policy       RetryPolicy
	riskFraction float64
	maxOpen      int
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewExecutor builds an executor; maxOpen <= 0 disables the open-position ceiling.
func NewExecutor(account string, b Broker, sizer *risk.Sizer, policy RetryPolicy, riskFraction float64, maxOpen int) *Executor {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Executor{
		Account:      account,
		broker:       b,
		sizer:        sizer,
		policy:       policy,
		riskFraction: riskFraction,
		maxOpen:      maxOpen,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute places sig as a market order. Account state, position count and quote are
// fetched fresh on every attempt. ErrCapacityExceeded and a zero size
// (model.ErrInvalidSignal) end it without retrying, ErrFatalConnection means the
// connection was lost, and ErrRetriesExhausted means the policy ran out.
func (e *Executor) Execute(ctx context.Context, sig model.Signal, in model.Instrument) (Outcome, error) {
	out := Outcome{Account: e.Account}
	logger := log.With().Str("account", e.Account).Str("symbol", sig.Symbol).Str("pattern", string(sig.Pattern)).Logger()

	var lastErr error
	for out.Attempts < e.policy.MaxAttempts {
		out.Attempts++
		telemetry.OrderAttemptsTotal.WithLabelValues(e.Account).Inc()

		fill, err := e.attempt(ctx, sig, in)
		if err == nil {
			out.Kind, out.Fill = Filled, fill
			telemetry.OrdersTotal.WithLabelValues(e.Account, string(Filled)).Inc()
			logger.Info().Int("attempt", out.Attempts).Str("ticket", fill.Ticket).Float64("price", fill.Price).Float64("size", fill.Size).Msg("order filled")
			return out, nil
		}
		if code := LastCode(err); code != 0 {
			out.LastCode = code
		}

		switch {
		case errors.Is(err, ErrCapacityExceeded):
			return e.finish(out, CapacityExceeded, err)
		case errors.Is(err, model.ErrInvalidSignal):
			return e.finish(out, Discarded, err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return e.finish(out, Fatal, err)
		case !IsTransient(err):
			return e.finish(out, Fatal, err)
		}

		lastErr = err
		delay := e.policy.Delay(out.Attempts)
		logger.Debug().Err(err).Int("attempt", out.Attempts).Int("code", out.LastCode).Dur("backoff", delay).Msg("attempt failed")
		if out.Attempts >= e.policy.MaxAttempts {
			break
		}
		if err := e.sleep(ctx, delay); err != nil {
			return e.finish(out, Fatal, err)
		}
	}

	err := fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, out.Attempts, lastErr)
	if out.LastCode != 0 {
		err = fmt.Errorf("%w after %d attempts: last code %d (%s)", ErrRetriesExhausted, out.Attempts, out.LastCode, CodeMessage(out.LastCode))
	}
	return e.finish(out, Exhausted, err)
}

func (e *Executor) finish(out Outcome, kind OutcomeKind, err error) (Outcome, error) {
	out.Kind, out.Err = kind, err
	telemetry.OrdersTotal.WithLabelValues(e.Account, string(kind)).Inc()
	ev := log.Error()
	if kind == CapacityExceeded || kind == Discarded {
		ev = log.Warn()
	}
	ev.Err(err).Str("account", e.Account).Int("attempts", out.Attempts).Int("code", out.LastCode).Msg("order not placed")
	return out, err
}

// attempt runs one ceiling check, refresh, validation, sizing and placement.
func (e *Executor) attempt(ctx context.Context, sig model.Signal, in model.Instrument) (Fill, error) {
	if e.maxOpen > 0 {
		n, err := e.broker.OpenPositions(ctx)
		if err != nil {
			return Fill{}, fmt.Errorf("count positions: %w", err)
		}
		if n >= e.maxOpen {
			return Fill{}, fmt.Errorf("%w: %d/%d", ErrCapacityExceeded, n, e.maxOpen)
		}
	}

	acct, err := e.broker.AccountState(ctx)
	if err != nil {
		return Fill{}, fmt.Errorf("account state: %w", err)
	}
	acct.RiskFraction = e.riskFraction

	q, err := e.broker.Quote(ctx, sig.Symbol)
	if err != nil {
		return Fill{}, fmt.Errorf("quote %s: %w", sig.Symbol, err)
	}
	dir := sig.Direction()
	price := q.Price(dir)
	if err := checkLevels(dir, price, sig.StopPrice, sig.TakeProfit); err != nil {
		return Fill{}, err
	}

	size := e.sizer.Size(math.Abs(price-sig.StopPrice), price, acct, in)
	if size <= 0 {
		return Fill{}, fmt.Errorf("%w: zero size at %.5f", model.ErrInvalidSignal, price)
	}

	return e.broker.PlaceMarketOrder(ctx, OrderRequest{
		Symbol:    sig.Symbol,
		Direction: dir,
		Size:      size,
		Price:     price,
		Stop:      sig.StopPrice,
		Target:    sig.TakeProfit,
		Comment:   string(sig.Pattern),
	})
}

// checkLevels requires stop and target on opposite sides of the fill price.
func checkLevels(dir model.Direction, price, stop, target float64) error {
	if dir == model.Long {
		if stop >= price || target <= price {
			return fmt.Errorf("%w: long at %.5f with stop %.5f target %.5f", ErrPriceMoved, price, stop, target)
		}
		return nil
	}
	if stop <= price || target >= price {
		return fmt.Errorf("%w: short at %.5f with stop %.5f target %.5f", ErrPriceMoved, price, stop, target)
	}
	return nil
}

// ExecuteAll runs sig on every executor in order. A failure on one account does not
// prevent the others from being tried.
func ExecuteAll(ctx context.Context, executors []*Executor, sig model.Signal, in model.Instrument) []Outcome {
	outcomes := make([]Outcome, 0, len(executors))
	for _, e := range executors {
		out, _ := e.Execute(ctx, sig, in)
		outcomes = append(outcomes, out)
		if ctx.Err() != nil {
			break
		}
	}
	return outcomes
}
