package internal

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	binance "github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/rebalancer/config"
	"github.com/vadiminshakov/rebalancer/internal/clients"
	"github.com/vadiminshakov/rebalancer/internal/services/pricer"
	"github.com/vadiminshakov/rebalancer/internal/services/trader"
	"github.com/vadiminshakov/rebalancer/internal/storage/audit"
	"github.com/vadiminshakov/rebalancer/internal/storage/postgres"
	"github.com/vadiminshakov/rebalancer/internal/storage/simstate"
	"github.com/vadiminshakov/rebalancer/pkg/retrier"
)

// serviceProvider creates platform-specific services.
type serviceProvider interface {
	Gateway(conf config.Config) (marketGateway, error)
}

// newServiceProvider creates a new service provider based on the client type.
// This is the single point of truth for dispatching to platform-specific implementations.
func newServiceProvider(client any, logger *zap.Logger) (serviceProvider, error) {
	switch c := client.(type) {
	case *binance.Client:
		return &binanceProvider{client: c, logger: logger}, nil
	case *clients.SimulateClient:
		return &simulateProvider{client: c, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unsupported client type: %T", client)
	}
}

type binanceProvider struct {
	client *binance.Client
	logger *zap.Logger
}

func (p *binanceProvider) Gateway(conf config.Config) (marketGateway, error) {
	retry := retrier.New(retrier.WithRetryIf(trader.IsRetryable), retrier.WithLogger(p.logger))
	return trader.NewBinanceTrader(p.logger, p.client, conf.Quote, retry)
}

type simulateProvider struct {
	client *clients.SimulateClient
	logger *zap.Logger
}

func (p *simulateProvider) Gateway(conf config.Config) (marketGateway, error) {
	store, err := simstate.NewStore(filepath.Join(conf.StateDir, "simulate"), conf.Name)
	if err != nil {
		return nil, errors.Wrap(err, "create simulate state store")
	}
	pr := pricer.NewBinancePricer(p.client.GetBinanceClient(), retrier.New(retrier.WithLogger(p.logger)))

	return trader.NewSimulateTrader(p.logger, conf.Quote, conf.InitialCapital, pr, store)
}

// newAuditSink opens every configured audit destination. The WAL store is
// always present and is also returned for readers; the closers release
// every destination.
func newAuditSink(ctx context.Context, logger *zap.Logger, conf config.Config) (audit.Sink, *audit.WALStore, []io.Closer, error) {
	var (
		sinks   []audit.Sink
		closers []io.Closer
	)

	wal, err := audit.NewWALStore(filepath.Join(conf.Audit.WALDir, conf.Name))
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "open audit wal")
	}
	sinks = append(sinks, wal)
	closers = append(closers, wal)

	if conf.Audit.PostgresDSN != "" {
		pool, err := postgres.NewPool(ctx, conf.Audit.PostgresDSN)
		if err != nil {
			closeAll(logger, closers)
			return nil, nil, nil, errors.Wrap(err, "open audit database")
		}
		if err := pool.Migrate(ctx); err != nil {
			pool.Close()
			closeAll(logger, closers)
			return nil, nil, nil, errors.Wrap(err, "migrate audit database")
		}
		sinks = append(sinks, postgres.NewAuditStore(pool))
		closers = append(closers, closerFunc(func() error {
			pool.Close()
			return nil
		}))
	}

	if conf.Audit.Log {
		sinks = append(sinks, audit.NewLogSink(logger))
	}

	return audit.NewMulti(logger, sinks...), wal, closers, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func closeAll(logger *zap.Logger, closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Warn("failed to close resource", zap.Error(err))
		}
	}
}
