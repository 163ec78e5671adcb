package bias

import (
	"fmt"
	"sync"

	"TrendSentinel/internal/model"
)

// Store persists biases keyed by (symbol, timeframe).
type Store interface {
	LoadBias(symbol string, tf model.Timeframe) (model.Bias, bool, error)
	SaveBias(symbol string, tf model.Timeframe, b model.Bias) error
}

// Book is the in-memory view of the biases of one timeframe, written through to a Store.
type Book struct {
	mu     sync.RWMutex
	tf     model.Timeframe
	store  Store
	biases map[string]model.Bias
}

// NewBook loads the persisted bias of every symbol; missing entries start as NONE.
func NewBook(store Store, tf model.Timeframe, symbols []string) (*Book, error) {
	b := &Book{tf: tf, store: store, biases: make(map[string]model.Bias, len(symbols))}
	for _, sym := range symbols {
		v, ok, err := store.LoadBias(sym, tf)
		if err != nil {
			return nil, fmt.Errorf("load bias %s/%s: %w", sym, tf, err)
		}
		if !ok {
			v = model.BiasNone
		}
		b.biases[sym] = v
	}
	return b, nil
}

// Timeframe returns the timeframe the book tracks.
func (b *Book) Timeframe() model.Timeframe { return b.tf }

// Get returns the current bias of symbol, NONE when unknown.
func (b *Book) Get(symbol string) model.Bias {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if v, ok := b.biases[symbol]; ok {
		return v
	}
	return model.BiasNone
}

// Update stores v for symbol when it differs from the current value.
// The in-memory value only changes once the store accepted the write.
func (b *Book) Update(symbol string, v model.Bias) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.biases[symbol]; ok && cur == v {
		return false, nil
	}
	if err := b.store.SaveBias(symbol, b.tf, v); err != nil {
		return false, err
	}
	b.biases[symbol] = v
	return true, nil
}

// Snapshot returns a copy of all biases.
func (b *Book) Snapshot() map[string]model.Bias {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]model.Bias, len(b.biases))
	for k, v := range b.biases {
		out[k] = v
	}
	return out
}

// MemoryStore keeps biases in a map. Backtests use it so replay never touches disk.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]model.Bias
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]model.Bias)}
}

func memKey(symbol string, tf model.Timeframe) string { return string(tf) + "/" + symbol }

func (m *MemoryStore) LoadBias(symbol string, tf model.Timeframe) (model.Bias, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[memKey(symbol, tf)]
	return v, ok, nil
}

func (m *MemoryStore) SaveBias(symbol string, tf model.Timeframe, v model.Bias) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[memKey(symbol, tf)] = v
	return nil
}
