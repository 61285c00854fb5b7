// Command rebalancer runs the infinite buying bots described in a YAML
// config: split dip buys of a primary asset funded by rotating out of other
// holdings, full exits at the profit target and periodic rebalancing.
//
// Usage:
//
//	rebalancer --config config.yaml
//	rebalancer --setup
//	rebalancer --config config.yaml --web :8080
//	rebalancer --config config.yaml --bot NAME --dip-mode accelerated
//
// Required environment variables (may be set in .env):
//
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/rebalancer/config"
	"github.com/vadiminshakov/rebalancer/internal"
	"github.com/vadiminshakov/rebalancer/internal/clients"
	"github.com/vadiminshakov/rebalancer/internal/domain"
	"github.com/vadiminshakov/rebalancer/internal/setup"
	"github.com/vadiminshakov/rebalancer/internal/storage/modestate"
	"github.com/vadiminshakov/rebalancer/internal/web"
)

type flags struct {
	configPath   string
	runSetup     bool
	bot          string
	dipMode      string
	strategyMode string
	funding      string
	webAddr      string
}

func (f flags) modeChange() bool {
	return f.dipMode != "" || f.strategyMode != "" || f.funding != ""
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "config.yaml", "path to the YAML config")
	flag.BoolVar(&f.runSetup, "setup", false, "run the interactive config wizard")
	flag.StringVar(&f.bot, "bot", "", "bot name for mode changes")
	flag.StringVar(&f.dipMode, "dip-mode", "", "set dip buy mode (daily|accelerated) and exit")
	flag.StringVar(&f.strategyMode, "strategy-mode", "", "set strategy mode (neutral|aggressive|defensive) and exit")
	flag.StringVar(&f.funding, "funding", "", "set comma-separated funding priority and exit")
	flag.StringVar(&f.webAddr, "web", "", "serve mode state and the audit stream on this address, e.g. :8080")
	flag.Parse()

	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if f.runSetup {
		path, err := setup.RunTUI()
		if err != nil {
			logger.Fatal("setup failed", zap.Error(err))
		}
		f.configPath = path
	}

	configs, err := config.Get(f.configPath)
	if err != nil {
		logger.Fatal("failed to get configuration", zap.Error(err))
	}

	if f.modeChange() {
		if err := applyModeChange(configs, f); err != nil {
			logger.Fatal("failed to change mode", zap.Error(err))
		}
		logger.Info("mode updated", zap.String("bot", f.bot))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bots, err := newBots(ctx, logger, configs)
	if err != nil {
		logger.Fatal("failed to create trading bots", zap.Error(err))
	}

	g, ctx := errgroup.WithContext(ctx)
	views := make(map[string]web.Bot, len(bots))
	for _, bot := range bots {
		views[bot.Config.Name] = bot

		g.Go(func() error {
			defer bot.Close()
			if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return errors.Wrapf(err, "bot %s", bot.Config.Name)
			}
			return nil
		})
		logger.Info("started", zap.String("bot", bot.Config.Name), zap.String("platform", bot.Config.Platform))
	}

	if f.webAddr != "" {
		server := web.NewServer(f.webAddr, logger, views)
		g.Go(func() error {
			return server.Start(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("bot stopped", zap.Error(err))
	}
}

// newBots builds every configured bot before any starts.
func newBots(ctx context.Context, logger *zap.Logger, configs []config.Config) ([]*internal.TradingBot, error) {
	return buildAll(configs, func(conf config.Config) (*internal.TradingBot, error) {
		client, err := newClient(conf.Platform)
		if err != nil {
			return nil, errors.Wrap(err, "create client")
		}
		return internal.NewTradingBot(ctx, logger, conf, client)
	})
}

// buildAll builds one value per config. When a build fails the values already
// built are closed.
func buildAll[T interface{ Close() }](configs []config.Config, build func(config.Config) (T, error)) ([]T, error) {
	built := make([]T, 0, len(configs))
	for _, conf := range configs {
		v, err := build(conf)
		if err != nil {
			for _, b := range built {
				b.Close()
			}
			return nil, errors.Wrapf(err, "bot %s", conf.Name)
		}
		built = append(built, v)
	}
	return built, nil
}

func newClient(platform string) (any, error) {
	switch platform {
	case config.PlatformBinance:
		apiKey := os.Getenv("BINANCE_API_KEY")
		apiSecret := os.Getenv("BINANCE_API_SECRET")
		if apiKey == "" || apiSecret == "" {
			return nil, errors.New("BINANCE_API_KEY and BINANCE_API_SECRET environment variables must be set")
		}
		return clients.NewBinanceClient(apiKey, apiSecret), nil
	case config.PlatformSimulate:
		return clients.NewSimulateClient(), nil
	default:
		return nil, errors.Errorf("unsupported platform: %s", platform)
	}
}

// applyModeChange edits the persisted mode state of one bot.
func applyModeChange(configs []config.Config, f flags) error {
	conf, err := pickBot(configs, f.bot)
	if err != nil {
		return err
	}

	store, err := modestate.NewStore(filepath.Join(conf.StateDir, conf.Name), conf.Mode)
	if err != nil {
		return err
	}

	if f.dipMode != "" {
		mode, err := domain.ParseDipBuyMode(f.dipMode)
		if err != nil {
			return err
		}
		if err := store.SetDipBuyMode(mode); err != nil {
			return err
		}
	}
	if f.strategyMode != "" {
		mode, err := domain.ParseStrategyMode(f.strategyMode)
		if err != nil {
			return err
		}
		if err := store.SetStrategyMode(mode); err != nil {
			return err
		}
	}
	if f.funding != "" {
		symbols := strings.Split(strings.ToUpper(f.funding), ",")
		for i := range symbols {
			symbols[i] = strings.TrimSpace(symbols[i])
		}
		if err := store.SetFundingPriority(symbols); err != nil {
			return err
		}
	}

	return nil
}

func pickBot(configs []config.Config, name string) (config.Config, error) {
	if name == "" {
		if len(configs) == 1 {
			return configs[0], nil
		}
		return config.Config{}, errors.New("--bot is required when the config holds several bots")
	}
	for _, c := range configs {
		if c.Name == name {
			return c, nil
		}
	}
	return config.Config{}, errors.Errorf("bot %q not found", name)
}
