package internal

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/rebalancer/config"
	"github.com/vadiminshakov/rebalancer/internal/domain"
	"github.com/vadiminshakov/rebalancer/internal/services/portfolio"
	"github.com/vadiminshakov/rebalancer/internal/services/rebalancer"
	"github.com/vadiminshakov/rebalancer/internal/storage/audit"
	"github.com/vadiminshakov/rebalancer/internal/storage/modestate"
)

// marketGateway reads holdings from a venue and trades on it.
type marketGateway interface {
	rebalancer.Executor
	Snapshot(ctx context.Context, symbols []string) (domain.MarketSnapshot, error)
}

type portfolioManager interface {
	UpdatePositions(updates map[string]domain.PositionUpdate) error
	UpdateCash(amount decimal.Decimal) error
	TotalValue() decimal.Decimal
	ReturnPercent() decimal.Decimal
}

type modeStore interface {
	Load() domain.ModeState
	MarkDipBuy(at time.Time) error
	LastInterestMonth() time.Time
	MarkInterest(month time.Time) error
}

type planner interface {
	GetRebalancingActions(ctx context.Context, mode domain.ModeState) []domain.Action
}

type actionEngine interface {
	CheckInterestReinvest(ctx context.Context, monthlyInterest decimal.Decimal) *domain.InterestReinvest
	ExecuteAction(ctx context.Context, action domain.Action, exec rebalancer.Executor) bool
	Now() time.Time
}

// TradingBot represents a single trading instance
type TradingBot struct {
	l         *zap.Logger
	Config    config.Config
	gateway   marketGateway
	portfolio portfolioManager
	modes     modeStore
	planner   planner
	engine    actionEngine
	state     domain.RunState
	auditLog  *audit.WALStore
	closers   []io.Closer
}

// NewTradingBot creates a new trading bot instance
func NewTradingBot(ctx context.Context, logger *zap.Logger, conf config.Config, client any) (*TradingBot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("bot", conf.Name))

	provider, err := newServiceProvider(client, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create service provider")
	}

	gateway, err := provider.Gateway(conf)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create market gateway")
	}

	pm, err := portfolio.NewManager(logger, conf.Targets, conf.InitialCapital)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create portfolio manager")
	}

	modes, err := modestate.NewStore(filepath.Join(conf.StateDir, conf.Name), conf.Mode)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open mode state")
	}

	sink, wal, closers, err := newAuditSink(ctx, logger, conf)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create audit sink")
	}

	engine, err := rebalancer.NewEngine(logger, engineParams(conf), pm, rebalancer.WithAudit(sink))
	if err != nil {
		closeAll(logger, closers)
		return nil, errors.Wrap(err, "failed to create rebalancing engine")
	}

	pl, err := createPlanner(conf, engine, pm)
	if err != nil {
		closeAll(logger, closers)
		return nil, err
	}

	bot := newTradingBot(logger, conf, gateway, pm, modes, pl, engine)
	bot.closers = closers
	bot.auditLog = wal

	return bot, nil
}

func newTradingBot(
	l *zap.Logger,
	conf config.Config,
	gateway marketGateway,
	pm portfolioManager,
	modes modeStore,
	pl planner,
	engine actionEngine,
) *TradingBot {
	return &TradingBot{
		l:         l,
		Config:    conf,
		gateway:   gateway,
		portfolio: pm,
		modes:     modes,
		planner:   pl,
		engine:    engine,
	}
}

// State returns the counters accumulated by the loop.
func (b *TradingBot) State() domain.RunState {
	return b.state
}

// Mode returns the current mode state.
func (b *TradingBot) Mode() domain.ModeState {
	return b.modes.Load()
}

// AuditAfter returns audit records written after index.
func (b *TradingBot) AuditAfter(index uint64) ([]audit.IndexedRecord, error) {
	if b.auditLog == nil {
		return nil, nil
	}
	return b.auditLog.RecordsAfter(index)
}

// Close releases the audit sinks.
func (b *TradingBot) Close() {
	closeAll(b.l, b.closers)
	b.closers = nil
}

// Run executes the trading bot
func (b *TradingBot) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.Config.PollPriceInterval)
	defer ticker.Stop()

	b.l.Info("Starting trading loop",
		zap.String("primary", b.Config.Primary),
		zap.String("strategy", b.Config.Strategy),
		zap.Duration("poll_interval", b.Config.PollPriceInterval))

	for {
		if err := b.Tick(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			b.l.Error("Tick failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			b.l.Info("Context done, stopping trading bot run loop.",
				zap.Int("ticks", b.state.Ticks),
				zap.Int("trades", b.state.Trades))
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick refreshes holdings, runs the decision rules and executes what they
// propose. Actions run in order; the first failed action ends the tick.
func (b *TradingBot) Tick(ctx context.Context) error {
	snapshot, err := b.gateway.Snapshot(ctx, b.Config.Symbols())
	if err != nil {
		return errors.Wrap(err, "read market snapshot")
	}
	if err := b.portfolio.UpdatePositions(snapshot.Positions); err != nil {
		return errors.Wrap(err, "update positions")
	}
	if err := b.portfolio.UpdateCash(snapshot.Cash); err != nil {
		return errors.Wrap(err, "update cash")
	}

	total := b.portfolio.TotalValue()
	b.state = b.state.Observe(total)

	mode := b.modes.Load()
	for _, action := range b.planner.GetRebalancingActions(ctx, mode) {
		if !b.execute(ctx, action) {
			break
		}
	}

	b.reinvestInterest(ctx)

	b.l.Debug("Tick done",
		zap.String("total_value", total.String()),
		zap.String("return_pct", b.portfolio.ReturnPercent().StringFixed(2)),
		zap.String("max_drawdown_pct", b.state.MaxDrawdown.StringFixed(2)),
		zap.Int("trades", b.state.Trades))

	return nil
}

func (b *TradingBot) reinvestInterest(ctx context.Context) {
	if !b.Config.MonthlyInterest.IsPositive() || b.Config.InterestSymbol == "" {
		return
	}

	// the month survives restarts through the mode store
	if last := b.modes.LastInterestMonth(); last.After(b.state.LastInterestMonth) {
		b.state.LastInterestMonth = last
	}

	now := b.engine.Now()
	if !b.state.InterestDue(now) {
		return
	}

	action := b.engine.CheckInterestReinvest(ctx, b.Config.MonthlyInterest)
	if action != nil && !b.execute(ctx, *action) {
		return
	}

	b.state = b.state.MarkInterest(now)
	if err := b.modes.MarkInterest(b.state.LastInterestMonth); err != nil {
		b.l.Warn("failed to persist interest month", zap.Error(err))
	}
}

func (b *TradingBot) execute(ctx context.Context, action domain.Action) bool {
	if !b.engine.ExecuteAction(ctx, action, b.gateway) {
		return false
	}
	b.state.Trades++

	if _, ok := action.(domain.DipBuying); ok {
		if err := b.modes.MarkDipBuy(b.engine.Now()); err != nil {
			b.l.Warn("failed to persist dip buy time", zap.Error(err))
		}
	}

	return true
}
