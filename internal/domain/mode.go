package domain

import (
	"time"

	"github.com/pkg/errors"
)

// DipBuyMode controls how often dip buying may fire.
type DipBuyMode int

const (
	// DipBuyModeDaily allows one dip buy per calendar day inside the daily window.
	DipBuyModeDaily DipBuyMode = iota
	// DipBuyModeAccelerated compresses the daily cadence into a fixed interval.
	DipBuyModeAccelerated
)

const (
	dipBuyModeStringDaily       = "daily"
	dipBuyModeStringAccelerated = "accelerated"
)

// String returns the string representation of the mode.
func (m DipBuyMode) String() string {
	switch m {
	case DipBuyModeDaily:
		return dipBuyModeStringDaily
	case DipBuyModeAccelerated:
		return dipBuyModeStringAccelerated
	default:
		return "unknown"
	}
}

// ParseDipBuyMode converts a config value into a DipBuyMode.
func ParseDipBuyMode(s string) (DipBuyMode, error) {
	switch s {
	case dipBuyModeStringDaily:
		return DipBuyModeDaily, nil
	case dipBuyModeStringAccelerated:
		return DipBuyModeAccelerated, nil
	}
	return 0, errors.Errorf("unknown dip buy mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m DipBuyMode) MarshalText() ([]byte, error) {
	if m != DipBuyModeDaily && m != DipBuyModeAccelerated {
		return nil, errors.Errorf("invalid dip buy mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *DipBuyMode) UnmarshalText(text []byte) error {
	parsed, err := ParseDipBuyMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// StrategyMode selects how aggressively the funding asset is split.
type StrategyMode int

const (
	StrategyModeNeutral StrategyMode = iota
	StrategyModeAggressive
	StrategyModeDefensive
)

const (
	strategyModeStringNeutral    = "neutral"
	strategyModeStringAggressive = "aggressive"
	strategyModeStringDefensive  = "defensive"
)

// String returns the string representation of the mode.
func (m StrategyMode) String() string {
	switch m {
	case StrategyModeNeutral:
		return strategyModeStringNeutral
	case StrategyModeAggressive:
		return strategyModeStringAggressive
	case StrategyModeDefensive:
		return strategyModeStringDefensive
	default:
		return "unknown"
	}
}

// ParseStrategyMode converts a config value into a StrategyMode.
func ParseStrategyMode(s string) (StrategyMode, error) {
	switch s {
	case strategyModeStringNeutral:
		return StrategyModeNeutral, nil
	case strategyModeStringAggressive:
		return StrategyModeAggressive, nil
	case strategyModeStringDefensive:
		return StrategyModeDefensive, nil
	}
	return 0, errors.Errorf("unknown strategy mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m StrategyMode) MarshalText() ([]byte, error) {
	switch m {
	case StrategyModeNeutral, StrategyModeAggressive, StrategyModeDefensive:
		return []byte(m.String()), nil
	}
	return nil, errors.Errorf("invalid strategy mode %d", int(m))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *StrategyMode) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategyMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ModeState operator-controlled state read by the rebalancing engine.
type ModeState struct {
	DipBuyMode      DipBuyMode   `json:"dip_buy_mode"`
	LastDipBuyTime  *time.Time   `json:"last_dip_buy_time,omitempty"`
	StrategyMode    StrategyMode `json:"strategy_mode"`
	FundingPriority []string     `json:"funding_priority"`
}

// Clone returns a deep copy so a tick works on its own snapshot.
func (s ModeState) Clone() ModeState {
	out := s
	if s.LastDipBuyTime != nil {
		t := *s.LastDipBuyTime
		out.LastDipBuyTime = &t
	}
	out.FundingPriority = append([]string(nil), s.FundingPriority...)
	return out
}
