// Package config loads bot definitions from a YAML file.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rebalancer/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	PlatformBinance  = "binance"
	PlatformSimulate = "simulate"

	StrategyRotation = "rotation"
	StrategySingle   = "single"
)

// defaults
const (
	defaultQuote             = "USDT"
	defaultPollPriceInterval = time.Minute
	defaultProfitTarget      = "0.10"
	defaultMinTradeAmount    = "10"
	defaultMinInterestAmount = "10"
	defaultPeriodicThreshold = "0.10"
	defaultInitialCapital    = "10000"
	defaultDipBuyInterval    = 5 * time.Minute
	defaultSettleDelay       = 2 * time.Second
	defaultWindowStart       = "15:50"
	defaultWindowLength      = 10 * time.Minute
	defaultStateDir          = "./state"
	defaultAuditWALDir       = "./wal/audit"
)

var defaultDivisors = DivisorTable{
	Neutral:    Divisors{Aggressive: 40, Conservative: 80},
	Aggressive: Divisors{Aggressive: 20, Conservative: 40},
	Defensive:  Divisors{Aggressive: 60, Conservative: 100},
}

// Divisors split counts of one strategy mode.
type Divisors struct {
	Aggressive   int `yaml:"aggressive"`
	Conservative int `yaml:"conservative"`
}

// DivisorTable split counts per strategy mode.
type DivisorTable struct {
	Neutral    Divisors `yaml:"neutral"`
	Aggressive Divisors `yaml:"aggressive"`
	Defensive  Divisors `yaml:"defensive"`
}

// DailyWindow daily dip-buy window as written in YAML.
type DailyWindow struct {
	// Start local time of day, HH:MM.
	Start    string        `yaml:"start,omitempty"`
	Length   time.Duration `yaml:"length,omitempty"`
	Timezone string        `yaml:"timezone,omitempty"`
}

// Audit sinks configuration.
type Audit struct {
	WALDir      string `yaml:"wal_dir,omitempty"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
	Log         bool   `yaml:"log,omitempty"`
}

// Mode initial mode state used when no state file exists.
type Mode struct {
	DipBuyMode      domain.DipBuyMode   `yaml:"dip_buy_mode"`
	StrategyMode    domain.StrategyMode `yaml:"strategy_mode"`
	FundingPriority []string            `yaml:"funding_priority,omitempty"`
}

// ConfigTmp is the YAML representation of a bot. Decimals are strings so
// that values like 0.1 are read exactly.
type ConfigTmp struct {
	Name     string `yaml:"name,omitempty"`
	Platform string `yaml:"platform"`
	Strategy string `yaml:"strategy,omitempty"`
	Quote    string `yaml:"quote,omitempty"`

	Primary        string            `yaml:"primary"`
	Reinvest       string            `yaml:"reinvest,omitempty"`
	InterestSymbol string            `yaml:"interest_symbol,omitempty"`
	Targets        map[string]string `yaml:"targets,omitempty"`
	InitialCapital string            `yaml:"initial_capital,omitempty"`

	PollPriceInterval time.Duration `yaml:"poll_price_interval,omitempty"`

	ProfitTarget            string        `yaml:"profit_target,omitempty"`
	AcceleratedProfitTarget string        `yaml:"accelerated_profit_target,omitempty"`
	Divisors                *DivisorTable `yaml:"divisors,omitempty"`
	DailyWindow             DailyWindow   `yaml:"daily_window,omitempty"`
	DipBuyInterval          time.Duration `yaml:"dip_buy_interval,omitempty"`
	MinTradeAmount          string        `yaml:"min_trade_amount,omitempty"`
	MinInterestAmount       string        `yaml:"min_interest_amount,omitempty"`
	MonthlyInterest         string        `yaml:"monthly_interest,omitempty"`

	PeriodicThreshold         string        `yaml:"periodic_threshold,omitempty"`
	SuppressPeriodicRebalance bool          `yaml:"suppress_periodic_rebalance,omitempty"`
	AllowCashFunding          bool          `yaml:"allow_cash_funding,omitempty"`
	SettleDelay               time.Duration `yaml:"settle_delay,omitempty"`

	Mode     Mode   `yaml:"mode"`
	StateDir string `yaml:"state_dir,omitempty"`
	Audit    Audit  `yaml:"audit,omitempty"`
}

// Config is a validated bot definition.
type Config struct {
	Name     string
	Platform string
	Strategy string
	Quote    string

	Primary        string
	Reinvest       string
	InterestSymbol string
	Targets        map[string]decimal.Decimal
	InitialCapital decimal.Decimal

	PollPriceInterval time.Duration

	ProfitTarget            decimal.Decimal
	AcceleratedProfitTarget decimal.Decimal
	Divisors                DivisorTable
	WindowStart             time.Duration
	WindowLength            time.Duration
	WindowLocation          *time.Location
	DipBuyInterval          time.Duration
	MinTradeAmount          decimal.Decimal
	MinInterestAmount       decimal.Decimal
	MonthlyInterest         decimal.Decimal

	PeriodicThreshold         decimal.Decimal
	SuppressPeriodicRebalance bool
	AllowCashFunding          bool
	SettleDelay               time.Duration

	Mode     domain.ModeState
	StateDir string
	Audit    Audit
}

// Get reads the YAML file at path. The file holds a list of bots.
func Get(path string) ([]Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	return Parse(f)
}

// Parse decodes and validates YAML config data.
func Parse(data []byte) ([]Config, error) {
	var configsTmp []ConfigTmp
	if err := yaml.Unmarshal(data, &configsTmp); err != nil {
		return nil, errors.Wrap(err, "decode yaml config")
	}
	if len(configsTmp) == 0 {
		return nil, errors.New("config contains no bots")
	}

	configs := make([]Config, 0, len(configsTmp))
	names := make(map[string]struct{}, len(configsTmp))
	for i, c := range configsTmp {
		conf, err := c.toConfig()
		if err != nil {
			return nil, errors.Wrapf(err, "bot #%d", i+1)
		}
		if _, dup := names[conf.Name]; dup {
			return nil, errors.Errorf("bot #%d: duplicate name %q", i+1, conf.Name)
		}
		names[conf.Name] = struct{}{}
		configs = append(configs, conf)
	}

	return configs, nil
}

func (c ConfigTmp) toConfig() (Config, error) {
	conf := Config{
		Name:                      c.Name,
		Platform:                  strings.ToLower(c.Platform),
		Strategy:                  strings.ToLower(c.Strategy),
		Quote:                     strings.ToUpper(c.Quote),
		Primary:                   strings.ToUpper(c.Primary),
		Reinvest:                  strings.ToUpper(c.Reinvest),
		InterestSymbol:            strings.ToUpper(c.InterestSymbol),
		PollPriceInterval:         c.PollPriceInterval,
		DipBuyInterval:            c.DipBuyInterval,
		WindowLength:              c.DailyWindow.Length,
		SuppressPeriodicRebalance: c.SuppressPeriodicRebalance,
		AllowCashFunding:          c.AllowCashFunding,
		SettleDelay:               c.SettleDelay,
		StateDir:                  c.StateDir,
		Audit:                     c.Audit,
	}

	switch conf.Platform {
	case PlatformBinance, PlatformSimulate:
	default:
		return Config{}, errors.Errorf("unsupported platform: %s", c.Platform)
	}

	if conf.Strategy == "" {
		conf.Strategy = StrategyRotation
	}
	if conf.Strategy != StrategyRotation && conf.Strategy != StrategySingle {
		return Config{}, errors.Errorf("unsupported strategy: %s", c.Strategy)
	}

	if conf.Primary == "" {
		return Config{}, errors.New("'primary' is required")
	}
	if conf.Quote == "" {
		conf.Quote = defaultQuote
	}
	if conf.Name == "" {
		conf.Name = fmt.Sprintf("%s_%s_%s", conf.Platform, conf.Strategy, strings.ToLower(conf.Primary))
	}

	if conf.Strategy == StrategyRotation && conf.Reinvest == "" {
		return Config{}, errors.New("'reinvest' is required for the rotation strategy")
	}
	if conf.InterestSymbol == "" {
		conf.InterestSymbol = conf.Reinvest
	}

	var err error
	if conf.Targets, err = parseTargets(c.Targets, conf.Primary, conf.Strategy); err != nil {
		return Config{}, err
	}

	decimals := []struct {
		name string
		raw  string
		def  string
		dst  *decimal.Decimal
	}{
		{"initial_capital", c.InitialCapital, defaultInitialCapital, &conf.InitialCapital},
		{"profit_target", c.ProfitTarget, defaultProfitTarget, &conf.ProfitTarget},
		{"accelerated_profit_target", c.AcceleratedProfitTarget, "0", &conf.AcceleratedProfitTarget},
		{"min_trade_amount", c.MinTradeAmount, defaultMinTradeAmount, &conf.MinTradeAmount},
		{"min_interest_amount", c.MinInterestAmount, defaultMinInterestAmount, &conf.MinInterestAmount},
		{"monthly_interest", c.MonthlyInterest, "0", &conf.MonthlyInterest},
		{"periodic_threshold", c.PeriodicThreshold, defaultPeriodicThreshold, &conf.PeriodicThreshold},
	}
	for _, d := range decimals {
		if *d.dst, err = parseDecimal(d.name, d.raw, d.def); err != nil {
			return Config{}, err
		}
	}
	if !conf.ProfitTarget.IsPositive() || conf.ProfitTarget.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Config{}, errors.Errorf("incorrect 'profit_target' param in yaml config (fraction between 0 and 1, e.g. 0.10), got %s", conf.ProfitTarget.String())
	}

	if conf.PollPriceInterval == 0 {
		conf.PollPriceInterval = defaultPollPriceInterval
	}
	if conf.DipBuyInterval == 0 {
		conf.DipBuyInterval = defaultDipBuyInterval
	}
	if conf.SettleDelay == 0 {
		conf.SettleDelay = defaultSettleDelay
	}
	if conf.WindowLength == 0 {
		conf.WindowLength = defaultWindowLength
	}
	if conf.StateDir == "" {
		conf.StateDir = defaultStateDir
	}
	if conf.Audit.WALDir == "" {
		conf.Audit.WALDir = defaultAuditWALDir
	}

	if conf.WindowStart, err = parseClock(c.DailyWindow.Start); err != nil {
		return Config{}, err
	}
	if conf.WindowLocation, err = time.LoadLocation(c.DailyWindow.Timezone); err != nil {
		return Config{}, errors.Wrapf(err, "incorrect 'daily_window.timezone' param in yaml config")
	}

	conf.Divisors = defaultDivisors
	if c.Divisors != nil {
		conf.Divisors = mergeDivisors(conf.Divisors, *c.Divisors)
	}

	conf.Mode = domain.ModeState{
		DipBuyMode:      c.Mode.DipBuyMode,
		StrategyMode:    c.Mode.StrategyMode,
		FundingPriority: upper(c.Mode.FundingPriority),
	}
	if len(conf.Mode.FundingPriority) == 0 && conf.Reinvest != "" {
		conf.Mode.FundingPriority = []string{conf.Reinvest}
	}

	return conf, nil
}

// Symbols returns every instrument the bot prices, sorted.
func (c Config) Symbols() []string {
	set := map[string]struct{}{c.Primary: {}}
	for s := range c.Targets {
		set[s] = struct{}{}
	}
	for _, s := range []string{c.Reinvest, c.InterestSymbol} {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	for _, s := range c.Mode.FundingPriority {
		set[s] = struct{}{}
	}
	delete(set, domain.CashSymbol)

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)

	return out
}

func parseDecimal(name, raw, def string) (decimal.Decimal, error) {
	if raw == "" {
		raw = def
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "incorrect '%s' param in yaml config (must be a decimal)", name)
	}
	if d.IsNegative() {
		return decimal.Zero, errors.Errorf("incorrect '%s' param in yaml config (must not be negative)", name)
	}
	return d, nil
}

// parseTargets reads target weights. A missing map puts the whole portfolio
// in the primary asset.
func parseTargets(raw map[string]string, primary, strategy string) (map[string]decimal.Decimal, error) {
	if len(raw) == 0 {
		if strategy == StrategyRotation {
			return nil, errors.New("'targets' are required for the rotation strategy")
		}
		return map[string]decimal.Decimal{primary: decimal.NewFromInt(1)}, nil
	}

	targets := make(map[string]decimal.Decimal, len(raw))
	for symbol, w := range raw {
		weight, err := decimal.NewFromString(w)
		if err != nil {
			return nil, errors.Wrapf(err, "incorrect target weight for %s", symbol)
		}
		targets[strings.ToUpper(symbol)] = weight
	}

	return targets, nil
}

// parseClock parses HH:MM into an offset from midnight.
func parseClock(s string) (time.Duration, error) {
	if s == "" {
		s = defaultWindowStart
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, errors.Wrapf(err, "incorrect 'daily_window.start' param in yaml config (format HH:MM)")
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func mergeDivisors(base, override DivisorTable) DivisorTable {
	pick := func(b, o Divisors) Divisors {
		if o.Aggressive != 0 {
			b.Aggressive = o.Aggressive
		}
		if o.Conservative != 0 {
			b.Conservative = o.Conservative
		}
		return b
	}
	return DivisorTable{
		Neutral:    pick(base.Neutral, override.Neutral),
		Aggressive: pick(base.Aggressive, override.Aggressive),
		Defensive:  pick(base.Defensive, override.Defensive),
	}
}

func upper(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(s)
	}
	return out
}
