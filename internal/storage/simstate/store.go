// Package simstate persists the simulated wallet so paper-trading restarts keep
// cash, holdings and cost basis.
package simstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rebalancer/internal/domain"
)

const defaultStateDir = "./state/simulate"

// Store persists simulator state per scope.
type Store struct {
	path string
}

func getStateDir() string {
	if stateDir := os.Getenv("REBALANCER_SIMULATE_STATE_DIR"); stateDir != "" {
		return stateDir
	}
	return defaultStateDir
}

// NewStore creates a simulator state store. An empty dir falls back to
// REBALANCER_SIMULATE_STATE_DIR and then to ./state/simulate.
func NewStore(dir, scope string) (*Store, error) {
	if dir == "" {
		dir = getStateDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create simulate state dir")
	}

	name := sanitizeScope(scope)
	if name == "" {
		name = "wallet"
	}

	return &Store{path: filepath.Join(dir, fmt.Sprintf("%s.json", name))}, nil
}

// State represents all persisted simulator data.
type State struct {
	Cash      string                    `json:"cash"`
	Positions map[string]StoredPosition `json:"positions"`
}

// StoredPosition is a serializable holding.
type StoredPosition struct {
	Quantity string `json:"quantity"`
	AvgPrice string `json:"avg_price"`
}

// Load reads simulator state from disk. A missing file yields nil state.
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

// NewStoredPosition converts a position into its stored representation.
func NewStoredPosition(pos domain.Position) StoredPosition {
	return StoredPosition{
		Quantity: pos.Quantity.String(),
		AvgPrice: pos.AvgPrice.String(),
	}
}

// ToPosition reconstructs the holding of symbol. The current price is left
// zero and filled by the pricer.
func (sp StoredPosition) ToPosition(symbol string) (domain.Position, error) {
	qty, err := decimal.NewFromString(sp.Quantity)
	if err != nil {
		return domain.Position{}, errors.Wrapf(err, "decode %s quantity", symbol)
	}

	avg := decimal.Zero
	if sp.AvgPrice != "" {
		avg, err = decimal.NewFromString(sp.AvgPrice)
		if err != nil {
			return domain.Position{}, errors.Wrapf(err, "decode %s avg price", symbol)
		}
	}

	return domain.NewPosition(symbol, domain.PositionUpdate{Quantity: qty, AvgPrice: avg})
}

func sanitizeScope(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}

	var b strings.Builder

	prevUnderscore := false

	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)

			prevUnderscore = false

			continue
		}

		if !prevUnderscore {
			b.WriteByte('_')

			prevUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}
