// Package modestate keeps the operator-controlled mode state on disk so the
// dip-buy cadence survives restarts.
package modestate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/rebalancer/internal/domain"
)

const defaultFileName = "mode_state.json"

// fileState is the on-disk document: the mode state plus bookkeeping the
// loop needs across restarts.
type fileState struct {
	domain.ModeState
	LastInterestMonth *time.Time `json:"last_interest_month,omitempty"`
}

// Store serializes ModeState mutations and persists each one. The file may be
// edited by another process (the CLI), so every read and every
// read-modify-write first picks up a newer file.
type Store struct {
	mu      sync.RWMutex
	path    string
	state fileState
	// seen is the file as of the last read or write; every save replaces
	// the file, so a differing identity means another writer.
	seen os.FileInfo
}

// NewStore opens the state file in dir. When the file does not exist the
// defaults are used and written.
func NewStore(dir string, defaults domain.ModeState) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create mode state dir")
	}

	s := &Store{path: filepath.Join(dir, defaultFileName), state: fileState{ModeState: defaults.Clone()}}

	loaded, err := s.reload(true)
	if err != nil {
		return nil, err
	}
	if !loaded {
		if err := s.save(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Load returns a copy of the current state. A file that cannot be read keeps
// the last good state.
func (s *Store) Load() domain.ModeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.reload(false)
	return s.state.ModeState.Clone()
}

// LastInterestMonth returns the month interest was last reinvested, zero if never.
func (s *Store) LastInterestMonth() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.reload(false)
	if s.state.LastInterestMonth == nil {
		return time.Time{}
	}
	return *s.state.LastInterestMonth
}

// MarkInterest records the month interest was reinvested.
func (s *Store) MarkInterest(month time.Time) error {
	return s.updateFile(func(st *fileState) error {
		st.LastInterestMonth = &month
		return nil
	})
}

// MarkDipBuy records the time of a successful dip buy.
func (s *Store) MarkDipBuy(at time.Time) error {
	return s.update(func(st *domain.ModeState) error {
		st.LastDipBuyTime = &at
		return nil
	})
}

// SetDipBuyMode switches between daily and accelerated dip buying.
func (s *Store) SetDipBuyMode(mode domain.DipBuyMode) error {
	return s.update(func(st *domain.ModeState) error {
		if _, err := mode.MarshalText(); err != nil {
			return err
		}
		st.DipBuyMode = mode
		return nil
	})
}

// SetStrategyMode changes the split aggressiveness.
func (s *Store) SetStrategyMode(mode domain.StrategyMode) error {
	return s.update(func(st *domain.ModeState) error {
		if _, err := mode.MarshalText(); err != nil {
			return err
		}
		st.StrategyMode = mode
		return nil
	})
}

// SetFundingPriority replaces the funding order. Symbols must be unique.
func (s *Store) SetFundingPriority(symbols []string) error {
	seen := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		if sym == "" {
			return errors.New("funding symbol must not be empty")
		}
		if _, dup := seen[sym]; dup {
			return errors.Errorf("duplicate funding symbol %s", sym)
		}
		seen[sym] = struct{}{}
	}

	return s.update(func(st *domain.ModeState) error {
		st.FundingPriority = append([]string(nil), symbols...)
		return nil
	})
}

func (s *Store) update(fn func(*domain.ModeState) error) error {
	return s.updateFile(func(st *fileState) error {
		return fn(&st.ModeState)
	})
}

func (s *Store) updateFile(fn func(*fileState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.reload(true); err != nil {
		return err
	}

	prev := s.state
	next := prev.clone()
	if err := fn(&next); err != nil {
		return err
	}

	s.state = next
	if err := s.save(); err != nil {
		s.state = prev
		return err
	}

	return nil
}

// reload reads the file when it changed since the last read or write, or
// unconditionally when force is set. It reports whether a file was found.
// Callers hold the write lock.
func (s *Store) reload(force bool) (bool, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "stat mode state")
	}
	if !force && s.unchanged(info) {
		return true, nil
	}

	payload, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "read mode state")
	}
	if len(payload) == 0 {
		return false, nil
	}

	var state fileState
	if err := json.Unmarshal(payload, &state); err != nil {
		return false, errors.Wrap(err, "decode mode state")
	}

	s.state = state
	s.seen = info

	return true, nil
}

// save writes the state atomically via temp file; callers hold the lock.
func (s *Store) save() error {
	payload, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode mode state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write mode state temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist mode state")
	}

	if info, err := os.Stat(s.path); err == nil {
		s.seen = info
	}

	return nil
}

func (s *Store) unchanged(info os.FileInfo) bool {
	return s.seen != nil &&
		os.SameFile(s.seen, info) &&
		info.ModTime().Equal(s.seen.ModTime()) &&
		info.Size() == s.seen.Size()
}

func (st fileState) clone() fileState {
	out := fileState{ModeState: st.ModeState.Clone()}
	if st.LastInterestMonth != nil {
		month := *st.LastInterestMonth
		out.LastInterestMonth = &month
	}
	return out
}
