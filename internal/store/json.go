// Package store persists biases as one JSON file per timeframe.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"TrendSentinel/internal/model"
)

type entry struct {
	Bias      model.Bias `json:"bias"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// JSONStore keeps biases in <dir>/bias_<timeframe>.json.
// Writes replace the file atomically through a temp file and rename.
type JSONStore struct {
	mu  sync.Mutex
	dir string
}

// NewJSONStore creates dir if needed.
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create bias dir: %w", err)
	}
	return &JSONStore{dir: dir}, nil
}

func (s *JSONStore) path(tf model.Timeframe) string {
	return filepath.Join(s.dir, fmt.Sprintf("bias_%s.json", tf))
}

// LoadBias returns the stored bias; ok is false when none was saved.
func (s *JSONStore) LoadBias(symbol string, tf model.Timeframe) (model.Bias, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read(tf)
	if err != nil {
		return model.BiasNone, false, err
	}
	e, ok := entries[symbol]
	if !ok {
		return model.BiasNone, false, nil
	}
	return model.ParseBias(string(e.Bias)), true, nil
}

// SaveBias replaces the bias of symbol.
func (s *JSONStore) SaveBias(symbol string, tf model.Timeframe, b model.Bias) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read(tf)
	if err != nil {
		return err
	}
	entries[symbol] = entry{Bias: b, UpdatedAt: time.Now().UTC()}
	return s.write(tf, entries)
}

// read returns an empty set if the file doesn't exist.
func (s *JSONStore) read(tf model.Timeframe) (map[string]entry, error) {
	data, err := os.ReadFile(s.path(tf))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]entry{}, nil
		}
		return nil, err
	}
	entries := map[string]entry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path(tf), err)
	}
	return entries, nil
}

func (s *JSONStore) write(tf model.Timeframe, entries map[string]entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".bias-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path(tf))
}
