package rebalancer

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rebalancer/internal/domain"
)

const (
	defaultAggressiveDivisor   = 40
	defaultConservativeDivisor = 80
	defaultDipBuyInterval      = 5 * time.Minute
	defaultSettleDelay         = 2 * time.Second
)

// Divisors split counts used to size a dip buy.
type Divisors struct {
	// Aggressive is used for the initial entry and below average cost.
	Aggressive int
	// Conservative is used at or above average cost.
	Conservative int
}

func (d Divisors) validate() error {
	if d.Aggressive < 1 || d.Conservative < 1 {
		return errors.Errorf("divisors must be >= 1, got %d/%d", d.Aggressive, d.Conservative)
	}
	return nil
}

// Params configuration of the rebalancing engine.
type Params struct {
	PrimarySymbol  string
	ReinvestSymbol string
	InterestSymbol string

	// ProfitTarget fraction of gain over average cost, e.g. 0.10.
	ProfitTarget decimal.Decimal
	// AcceleratedProfitTarget replaces ProfitTarget in accelerated mode when positive.
	AcceleratedProfitTarget decimal.Decimal

	Neutral    Divisors
	Aggressive Divisors
	Defensive  Divisors

	DailyWindow    DailyWindow
	DipBuyInterval time.Duration

	MinTradeAmount    decimal.Decimal
	MinInterestAmount decimal.Decimal

	// PeriodicThreshold absolute drift that triggers the periodic rebalance.
	PeriodicThreshold         decimal.Decimal
	SuppressPeriodicRebalance bool
	// AllowCashFunding lets a dip buy spend cash when no funding asset qualifies.
	AllowCashFunding bool

	SettleDelay time.Duration
}

// DefaultParams returns parameters with the standard divisor tables.
func DefaultParams(primary, reinvest string) Params {
	return Params{
		PrimarySymbol:     primary,
		ReinvestSymbol:    reinvest,
		InterestSymbol:    reinvest,
		ProfitTarget:      decimal.RequireFromString("0.10"),
		Neutral:           Divisors{Aggressive: defaultAggressiveDivisor, Conservative: defaultConservativeDivisor},
		Aggressive:        Divisors{Aggressive: 20, Conservative: 40},
		Defensive:         Divisors{Aggressive: 60, Conservative: 100},
		DailyWindow:       DailyWindow{Start: 15*time.Hour + 50*time.Minute, Length: 10 * time.Minute, Location: time.UTC},
		DipBuyInterval:    defaultDipBuyInterval,
		MinTradeAmount:    decimal.NewFromInt(10),
		MinInterestAmount: decimal.NewFromInt(10),
		PeriodicThreshold: decimal.RequireFromString("0.10"),
		SettleDelay:       defaultSettleDelay,
	}
}

// Validate checks that the parameters are usable.
func (p Params) Validate() error {
	if p.PrimarySymbol == "" {
		return errors.New("primary symbol is required")
	}
	if p.ReinvestSymbol == "" {
		return errors.New("reinvest symbol is required")
	}
	if !p.ProfitTarget.IsPositive() {
		return errors.Errorf("profit target must be positive, got %s", p.ProfitTarget.String())
	}
	if p.AcceleratedProfitTarget.IsNegative() {
		return errors.Errorf("accelerated profit target must not be negative, got %s", p.AcceleratedProfitTarget.String())
	}
	for mode, d := range map[domain.StrategyMode]Divisors{
		domain.StrategyModeNeutral:    p.Neutral,
		domain.StrategyModeAggressive: p.Aggressive,
		domain.StrategyModeDefensive:  p.Defensive,
	} {
		if err := d.validate(); err != nil {
			return errors.Wrapf(err, "%s divisors", mode)
		}
	}
	if p.DailyWindow.Length <= 0 {
		return errors.New("daily window length must be positive")
	}
	if p.DipBuyInterval <= 0 {
		return errors.New("dip buy interval must be positive")
	}
	if p.MinTradeAmount.IsNegative() || p.MinInterestAmount.IsNegative() {
		return errors.New("minimum amounts must not be negative")
	}
	if !p.PeriodicThreshold.IsPositive() {
		return errors.New("periodic rebalance threshold must be positive")
	}
	if p.SettleDelay < 0 {
		return errors.New("settle delay must not be negative")
	}

	return nil
}

// DivisorsFor returns the split table of the given strategy mode.
func (p Params) DivisorsFor(mode domain.StrategyMode) Divisors {
	switch mode {
	case domain.StrategyModeAggressive:
		return p.Aggressive
	case domain.StrategyModeDefensive:
		return p.Defensive
	default:
		return p.Neutral
	}
}

// profitTargetFor returns the profit target active in the given dip-buy mode.
func (p Params) profitTargetFor(mode domain.DipBuyMode) decimal.Decimal {
	if mode == domain.DipBuyModeAccelerated && p.AcceleratedProfitTarget.IsPositive() {
		return p.AcceleratedProfitTarget
	}
	return p.ProfitTarget
}
