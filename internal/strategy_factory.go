package internal

import (
	"github.com/pkg/errors"
	"github.com/vadiminshakov/rebalancer/config"
	"github.com/vadiminshakov/rebalancer/internal/domain"
	"github.com/vadiminshakov/rebalancer/internal/services/portfolio"
	"github.com/vadiminshakov/rebalancer/internal/services/rebalancer"
	"github.com/vadiminshakov/rebalancer/internal/services/strategy/single"
)

// engineParams maps the bot config onto the rebalancing engine.
func engineParams(conf config.Config) rebalancer.Params {
	reinvest := conf.Reinvest
	if reinvest == "" {
		// single-asset exits stay in cash
		reinvest = domain.CashSymbol
	}

	return rebalancer.Params{
		PrimarySymbol:           conf.Primary,
		ReinvestSymbol:          reinvest,
		InterestSymbol:          conf.InterestSymbol,
		ProfitTarget:            conf.ProfitTarget,
		AcceleratedProfitTarget: conf.AcceleratedProfitTarget,
		Neutral:                 divisors(conf.Divisors.Neutral),
		Aggressive:              divisors(conf.Divisors.Aggressive),
		Defensive:               divisors(conf.Divisors.Defensive),
		DailyWindow: rebalancer.DailyWindow{
			Start:    conf.WindowStart,
			Length:   conf.WindowLength,
			Location: conf.WindowLocation,
		},
		DipBuyInterval:            conf.DipBuyInterval,
		MinTradeAmount:            conf.MinTradeAmount,
		MinInterestAmount:         conf.MinInterestAmount,
		PeriodicThreshold:         conf.PeriodicThreshold,
		SuppressPeriodicRebalance: conf.SuppressPeriodicRebalance,
		AllowCashFunding:          conf.AllowCashFunding,
		SettleDelay:               conf.SettleDelay,
	}
}

func divisors(d config.Divisors) rebalancer.Divisors {
	return rebalancer.Divisors{Aggressive: d.Aggressive, Conservative: d.Conservative}
}

// createPlanner picks the decision rules for the configured strategy.
func createPlanner(conf config.Config, engine *rebalancer.Engine, pm *portfolio.Manager) (planner, error) {
	switch conf.Strategy {
	case config.StrategyRotation:
		return engine, nil
	case config.StrategySingle:
		divs := conf.Divisors.Neutral
		params, err := single.NewParams(
			domain.FractionToPercent(conf.ProfitTarget),
			divs.Aggressive,
			divs.Conservative,
			conf.MinTradeAmount,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create single-asset strategy")
		}
		return single.NewPlanner(single.New(params), conf.Primary, engine, pm), nil
	default:
		return nil, errors.Errorf("unsupported strategy type: %s", conf.Strategy)
	}
}
