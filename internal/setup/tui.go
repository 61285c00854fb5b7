// Package setup runs the interactive configuration wizard.
package setup

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rebalancer/config"
	"github.com/vadiminshakov/rebalancer/internal/domain"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is where the wizard writes its result.
const DefaultConfigFile = "config.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// answers collects the wizard input as entered.
type answers struct {
	strategy        string
	platform        string
	primary         string
	reinvest        string
	primaryWeight   string
	pollIntervalStr string
	profitTarget    string
	initialCapital  string
	windowStart     string
	timezone        string
	dipBuyMode      string
	strategyMode    string
	allowCash       bool
}

func showStep(step string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("REBALANCER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the terminal configuration wizard and returns the path of
// the written config file.
func RunTUI() (string, error) {
	a := answers{
		primaryWeight:   "0.5",
		pollIntervalStr: "1m",
		profitTarget:    "0.10",
		initialCapital:  "10000",
		windowStart:     "15:50",
		timezone:        "America/New_York",
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("REBALANCER CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Split buys on dips, exit on profit, rotate the rest.\n"))

	fmt.Println(stepStyle.Render("STEP 1: STRATEGY"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Choose your strategy").
				Options(
					huh.NewOption("Rotation (primary + reinvest asset)", config.StrategyRotation),
					huh.NewOption("Single asset", config.StrategySingle),
				).
				Value(&a.strategy),
		),
	).Run()
	if err != nil {
		return "", err
	}

	showStep("STEP 2: PLATFORM")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Exchange Platform").
				Options(
					huh.NewOption("Binance", config.PlatformBinance),
					huh.NewOption("Simulation", config.PlatformSimulate),
				).
				Value(&a.platform),
		),
	).Run()
	if err != nil {
		return "", err
	}

	showStep("STEP 3: ASSETS")
	fields := []huh.Field{
		huh.NewInput().
			Title("Primary asset").
			Description("Asset accumulated on dips (e.g. BTC)").
			Value(&a.primary).
			Validate(validateSymbol),
	}
	if a.strategy == config.StrategyRotation {
		fields = append(fields,
			huh.NewInput().
				Title("Reinvest asset").
				Description("Asset that receives profits and funds dip buys (e.g. ETH)").
				Value(&a.reinvest).
				Validate(validateSymbol),
			huh.NewInput().
				Title("Primary target weight").
				Description("Fraction of the portfolio, the rest goes to the reinvest asset").
				Value(&a.primaryWeight).
				Validate(validateFraction),
		)
	}
	if err = huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return "", err
	}

	showStep("STEP 4: TIMING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Poll Price Interval").
				Description("Duration string (e.g. 30s, 1m, 5m)").
				Value(&a.pollIntervalStr).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
			huh.NewSelect[string]().
				Title("Dip buy cadence").
				Options(
					huh.NewOption("Daily, inside the buy window", domain.DipBuyModeDaily.String()),
					huh.NewOption("Accelerated, fixed interval", domain.DipBuyModeAccelerated.String()),
				).
				Value(&a.dipBuyMode),
			huh.NewInput().
				Title("Daily window start").
				Description("HH:MM").
				Value(&a.windowStart),
			huh.NewInput().
				Title("Timezone").
				Value(&a.timezone).
				Validate(func(s string) error {
					_, err := time.LoadLocation(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return "", err
	}

	showStep("STEP 5: SIZING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Profit target").
				Description("Fraction over average cost (e.g. 0.10)").
				Value(&a.profitTarget).
				Validate(validateFraction),
			huh.NewSelect[string]().
				Title("Strategy mode").
				Options(
					huh.NewOption("Neutral (1/40, 1/80)", domain.StrategyModeNeutral.String()),
					huh.NewOption("Aggressive (1/20, 1/40)", domain.StrategyModeAggressive.String()),
					huh.NewOption("Defensive (1/60, 1/100)", domain.StrategyModeDefensive.String()),
				).
				Value(&a.strategyMode),
			huh.NewInput().
				Title("Initial capital").
				Description("Simulation starting cash in quote currency").
				Value(&a.initialCapital),
			huh.NewConfirm().
				Title("Allow cash funding?").
				Description("Spend cash when no funding asset qualifies").
				Value(&a.allowCash),
		),
	).Run()
	if err != nil {
		return "", err
	}

	showStep("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Strategy: %s\nPlatform: %s\nPrimary: %s\nReinvest: %s\nInterval: %s\nDip buys: %s\n",
		a.strategy, a.platform, a.primary, a.reinvest, a.pollIntervalStr, a.dipBuyMode,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	var confirm bool
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return "", err
	}
	if !confirm {
		return "", fmt.Errorf("setup cancelled by user")
	}

	cfgTmp, err := a.toConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal([]config.ConfigTmp{cfgTmp})
	if err != nil {
		return "", fmt.Errorf("failed to generate yaml: %w", err)
	}
	if _, err := config.Parse(data); err != nil {
		return "", fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.WriteFile(DefaultConfigFile, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting bot...", DefaultConfigFile)))
	time.Sleep(1500 * time.Millisecond)

	return DefaultConfigFile, nil
}

func (a answers) toConfig() (config.ConfigTmp, error) {
	pollInterval, err := time.ParseDuration(a.pollIntervalStr)
	if err != nil {
		return config.ConfigTmp{}, err
	}
	dipMode, err := domain.ParseDipBuyMode(a.dipBuyMode)
	if err != nil {
		return config.ConfigTmp{}, err
	}
	strategyMode, err := domain.ParseStrategyMode(a.strategyMode)
	if err != nil {
		return config.ConfigTmp{}, err
	}

	primary := strings.ToUpper(a.primary)
	reinvest := strings.ToUpper(a.reinvest)

	cfgTmp := config.ConfigTmp{
		Platform:          a.platform,
		Strategy:          a.strategy,
		Primary:           primary,
		Reinvest:          reinvest,
		InitialCapital:    a.initialCapital,
		PollPriceInterval: pollInterval,
		ProfitTarget:      a.profitTarget,
		DailyWindow:       config.DailyWindow{Start: a.windowStart, Timezone: a.timezone},
		AllowCashFunding:  a.allowCash,
		Mode: config.Mode{
			DipBuyMode:   dipMode,
			StrategyMode: strategyMode,
		},
	}

	if a.strategy == config.StrategyRotation {
		w, err := decimal.NewFromString(a.primaryWeight)
		if err != nil {
			return config.ConfigTmp{}, err
		}
		cfgTmp.Targets = map[string]string{
			primary:  w.String(),
			reinvest: decimal.NewFromInt(1).Sub(w).String(),
		}
		cfgTmp.Mode.FundingPriority = []string{reinvest}
	}

	return cfgTmp, nil
}

func validateSymbol(s string) error {
	if s == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if strings.ContainsAny(s, "_/- ") {
		return fmt.Errorf("enter the base asset only (e.g. BTC)")
	}
	return nil
}

func validateFraction(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.IsPositive() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("must be between 0 and 1")
	}
	return nil
}
