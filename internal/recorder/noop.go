package recorder

import "TrendSentinel/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSignal(_ *SignalEvent) error              { return nil }
func (n *NoopRecorder) RecordExecution(_ *ExecutionEvent) error        { return nil }
func (n *NoopRecorder) RecordBacktest(_ string, _ []model.Trade) error { return nil }
func (n *NoopRecorder) Close() error                                   { return nil }
