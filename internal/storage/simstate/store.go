// Package simstate persists the simulated marketplace between runs.
package simstate

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/boomkit/internal/domain"
)

const (
	defaultStateDir = "./wal/simulate"
	stateFile       = "marketplace.json"
)

// Store keeps the simulator state in a single JSON file.
type Store struct {
	path string
}

// NewStore creates a store under dir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = defaultStateDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create simulate state dir")
	}

	return &Store{path: filepath.Join(dir, stateFile)}, nil
}

// State represents all persisted simulator data.
type State struct {
	Cash     decimal.Decimal         `json:"cash"`
	Virtual  decimal.Decimal         `json:"virtual"`
	Reserved decimal.Decimal         `json:"reserved"`
	Assets   []domain.AssetValuation `json:"assets"`
	Names    map[string]string       `json:"names"`
	Holdings []domain.Holding        `json:"holdings"`
	Version  uint64                  `json:"version"`
}

// Load reads simulator state from disk. A missing file yields nil.
func (s *Store) Load() (*State, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read simulate state")
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode simulate state")
	}

	return &state, nil
}

// Save writes simulator state to disk atomically via temp file.
func (s *Store) Save(state State) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode simulate state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write simulate state temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist simulate state")
	}

	return nil
}
