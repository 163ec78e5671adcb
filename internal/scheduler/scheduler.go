// Package scheduler runs the bias, entry and execution stages on a cron cadence.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"TrendSentinel/internal/bias"
	"TrendSentinel/internal/collector"
	"TrendSentinel/internal/model"
	"TrendSentinel/internal/notifier"
	"TrendSentinel/internal/recorder"
	"TrendSentinel/internal/resolver"
	"TrendSentinel/internal/strategy"
	"TrendSentinel/internal/telemetry"
)

// Execution modes, mirrored from the config.
const (
	ModeSignal = "signal"
	ModePaper  = "paper"
	ModeLive   = "live"
)

// TradingWindow limits execution to [StartHour, EndHour) in Location.
type TradingWindow struct {
	StartHour int
	EndHour   int
	Location  *time.Location
}

// Contains reports whether t falls inside the window.
func (w TradingWindow) Contains(t time.Time) bool {
	if w.Location != nil {
		t = t.In(w.Location)
	}
	h := t.Hour()
	return h >= w.StartHour && h < w.EndHour
}

// Options configures the cycle.
type Options struct {
	Mode            string
	Symbols         []string
	BiasTF          model.Timeframe
	EntryTF         model.Timeframe
	BiasBars        int
	EntryBars       int
	Params          strategy.Params
	Window          TradingWindow
	ShutdownTimeout time.Duration
}

// Scheduler manages the orchestration cycle.
type Scheduler struct {
	Cron        *cron.Cron
	Collector   *collector.Collector
	Detector    *bias.Detector
	Notifier    notifier.Notifier
	Recorder    recorder.Recorder
	Executors   []*resolver.Executor
	Instruments func(symbol string) model.Instrument
	Ctx         context.Context

	opts    Options
	gate    sync.Mutex // held for the whole cycle body
	running atomic.Bool
	skipped atomic.Int64
	stopped bool // guarded by gate
	started bool // guarded by gate

	mu         sync.Mutex
	lastIDs    map[string]string
	lastCycle  time.Time
	cycleID    string
	lastSignal string

	now func() time.Time
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, opts Options, col *collector.Collector, det *bias.Detector, n notifier.Notifier, rec recorder.Recorder, executors []*resolver.Executor, instruments func(string) model.Instrument) *Scheduler {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}
	if n == nil {
		n = notifier.Noop{}
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if instruments == nil {
		instruments = model.DefaultInstrument
	}
	return &Scheduler{
		Cron:        cron.New(cron.WithSeconds()),
		Collector:   col,
		Detector:    det,
		Notifier:    n,
		Recorder:    rec,
		Executors:   executors,
		Instruments: instruments,
		Ctx:         ctx,
		opts:        opts,
		lastIDs:     make(map[string]string),
		now:         time.Now,
	}
}

// Register schedules the cycle on spec, e.g. "0 * * * * *" for every minute.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, func() { s.RunCycle(s.now()) }); err != nil {
		return fmt.Errorf("register cycle: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info().Str("mode", s.opts.Mode).Strs("symbols", s.opts.Symbols).Msg("scheduler started")
}

// Stop stops the cadence and waits up to the shutdown timeout for an in-flight
// cycle to finish. It returns false if the cycle was still running at the deadline.
func (s *Scheduler) Stop() bool {
	deadline := time.NewTimer(s.opts.ShutdownTimeout)
	defer deadline.Stop()

	cronDone := s.Cron.Stop().Done()
	select {
	case <-cronDone:
	case <-deadline.C:
		log.Warn().Dur("timeout", s.opts.ShutdownTimeout).Msg("cycle still running at shutdown")
		return false
	}

	gateDone := make(chan struct{})
	go func() {
		s.gate.Lock()
		s.stopped = true
		s.gate.Unlock()
		close(gateDone)
	}()
	select {
	case <-gateDone:
		log.Info().Msg("scheduler stopped")
		return true
	case <-deadline.C:
		log.Warn().Dur("timeout", s.opts.ShutdownTimeout).Msg("cycle still running at shutdown")
		return false
	}
}

// RunCycle runs the stages due at now. The first cycle runs every stage.
// A call made while another cycle is in flight is skipped and returns false.
func (s *Scheduler) RunCycle(now time.Time) bool {
	if !s.gate.TryLock() {
		n := s.skipped.Add(1)
		telemetry.CyclesTotal.WithLabelValues("skipped").Inc()
		log.Warn().Int64("skipped", n).Msg("previous cycle still running, skipping")
		return false
	}
	defer s.gate.Unlock()
	if s.stopped {
		return false
	}

	s.running.Store(true)
	defer s.running.Store(false)

	id := uuid.NewString()
	s.mu.Lock()
	s.lastCycle, s.cycleID = now, id
	s.mu.Unlock()
	logger := log.With().Str("cycle", id).Logger()

	defer func() {
		if r := recover(); r != nil {
			telemetry.CyclesTotal.WithLabelValues("panic").Inc()
			logger.Error().Interface("panic", r).Msg("cycle panicked")
		}
	}()

	first := !s.started
	s.started = true
	biasDue := first || s.opts.BiasTF.DueAt(now)
	entryDue := first || s.opts.EntryTF.DueAt(now)
	if !biasDue && !entryDue {
		telemetry.CyclesTotal.WithLabelValues("idle").Inc()
		logger.Debug().Msg("no stage due")
		return true
	}

	if biasDue {
		logger.Info().Str("timeframe", string(s.opts.BiasTF)).Bool("initial", first).Msg("bias stage")
		s.biasStage()
	}
	if entryDue {
		logger.Info().Str("timeframe", string(s.opts.EntryTF)).Bool("initial", first).Msg("entry stage")
		signals := s.entryStage()
		for _, sig := range signals {
			s.executeStage(id, now, sig)
		}
	}
	telemetry.CyclesTotal.WithLabelValues("ok").Inc()
	return true
}

func (s *Scheduler) biasStage() {
	tf := s.Detector.Book.Timeframe()
	for _, sym := range s.opts.Symbols {
		bars, err := s.Collector.Bars(s.Ctx, sym, tf, s.opts.BiasBars)
		if err != nil {
			log.Warn().Err(err).Str("symbol", sym).Msg("bias: fetch failed")
			continue
		}
		res, err := s.Detector.Evaluate(sym, bars)
		if err != nil {
			log.Error().Err(err).Str("symbol", sym).Msg("bias: evaluation failed")
			continue
		}
		if res.Changed {
			telemetry.BiasChangesTotal.WithLabelValues(sym, string(res.Current)).Inc()
			s.trySend(notifier.FormatBiasChange(sym, tf, res.Previous, res.Current, res.Bar))
		}
	}
}

// entryStage returns the new signals of this cycle, duplicates removed.
func (s *Scheduler) entryStage() []model.Signal {
	var out []model.Signal
	for _, sym := range s.opts.Symbols {
		b := s.Detector.Book.Get(sym)
		if b == model.BiasNone {
			log.Debug().Str("symbol", sym).Msg("entry: no bias")
			continue
		}
		bars, err := s.Collector.Bars(s.Ctx, sym, s.opts.EntryTF, s.opts.EntryBars)
		if err != nil {
			log.Warn().Err(err).Str("symbol", sym).Msg("entry: fetch failed")
			continue
		}
		signals, err := strategy.DetectEntries(sym, s.opts.EntryTF, bars, b, s.Instruments(sym), s.opts.Params)
		if errors.Is(err, model.ErrInsufficientData) {
			log.Debug().Str("symbol", sym).Int("bars", len(bars)).Msg("entry: not enough bars")
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("symbol", sym).Msg("entry: detection failed")
			continue
		}
		for _, sig := range signals {
			if !s.markDispatched(sig) {
				log.Debug().Str("signal", sig.ID()).Msg("entry: duplicate signal dropped")
				continue
			}
			telemetry.SignalsTotal.WithLabelValues(sym, string(sig.Pattern)).Inc()
			out = append(out, sig)
		}
	}
	return out
}

// markDispatched records sig as the last signal of its symbol; false means it repeats it.
func (s *Scheduler) markDispatched(sig model.Signal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := sig.ID()
	if s.lastIDs[sig.Symbol] == id {
		return false
	}
	s.lastIDs[sig.Symbol] = id
	s.lastSignal = id
	return true
}

func (s *Scheduler) executeStage(cycleID string, now time.Time, sig model.Signal) {
	s.trySend(notifier.FormatSignal(sig))

	evt := &recorder.SignalEvent{CycleID: cycleID, Signal: sig, Bias: s.Detector.Book.Get(sig.Symbol)}
	switch {
	case s.opts.Mode == ModeSignal:
		evt.Note = "signal-only mode"
	case len(s.Executors) == 0:
		evt.Note = "no accounts configured"
	case !s.opts.Window.Contains(now):
		evt.Note = "outside trading window"
	default:
		evt.Executed = true
	}
	if !evt.Executed {
		log.Info().Str("signal", sig.ID()).Str("reason", evt.Note).Msg("signal not executed")
		s.record(evt)
		return
	}

	outcomes := resolver.ExecuteAll(s.Ctx, s.Executors, sig, s.Instruments(sig.Symbol))
	s.record(evt)
	for _, o := range outcomes {
		ex := &recorder.ExecutionEvent{
			CycleID:  cycleID,
			SignalID: sig.ID(),
			Account:  o.Account,
			Symbol:   sig.Symbol,
			Outcome:  string(o.Kind),
			Ticket:   o.Fill.Ticket,
			Price:    o.Fill.Price,
			Size:     o.Fill.Size,
			Attempts: o.Attempts,
			LastCode: o.LastCode,
		}
		if o.Err != nil {
			ex.Error = o.Err.Error()
		}
		if err := s.Recorder.RecordExecution(ex); err != nil {
			log.Error().Err(err).Msg("record execution")
		}
	}
	report := notifier.FormatExecution(sig, outcomes)
	if faulted(outcomes) {
		s.sendFault(report)
		return
	}
	s.trySend(report)
}

// faultRetries bounds delivery retries for fault reports while the gate is held.
const faultRetries = 2

func faulted(outcomes []resolver.Outcome) bool {
	for _, o := range outcomes {
		if o.Kind == resolver.Fatal || o.Kind == resolver.Exhausted {
			return true
		}
	}
	return false
}

// sendFault delivers connection failures and exhausted retries, retrying when
// the sink supports it.
func (s *Scheduler) sendFault(text string) {
	rs, ok := s.Notifier.(notifier.RetrySender)
	if !ok {
		s.trySend(text)
		return
	}
	if err := rs.SendWithRetry(s.Ctx, text, faultRetries); err != nil {
		log.Error().Err(err).Msg("fault report not delivered")
	}
}

func (s *Scheduler) record(evt *recorder.SignalEvent) {
	if err := s.Recorder.RecordSignal(evt); err != nil {
		log.Error().Err(err).Msg("record signal")
	}
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.Send(text); err != nil {
		log.Warn().Err(err).Msg("send notification")
	}
}

// Status returns the state shown by /status.
func (s *Scheduler) Status() notifier.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return notifier.Status{
		Mode:       s.opts.Mode,
		Running:    s.running.Load(),
		LastCycle:  s.lastCycle,
		CycleID:    s.cycleID,
		LastSignal: s.lastSignal,
		Skipped:    int(s.skipped.Load()),
	}
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	switch command {
	case "/bias":
		return notifier.FormatBiasTable(s.Detector.Book.Timeframe(), s.Detector.Book.Snapshot())
	case "/status":
		return notifier.FormatStatus(s.Status())
	default:
		return notifier.FormatHelp()
	}
}
