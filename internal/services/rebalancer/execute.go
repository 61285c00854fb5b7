package rebalancer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rebalancer/internal/domain"
	"go.uber.org/zap"
)

// Executor places orders on a venue.
type Executor interface {
	// Buy spends amount of cash on symbol.
	Buy(ctx context.Context, symbol string, amount decimal.Decimal, clientOrderID string) error
	// Sell sells qty units of symbol.
	Sell(ctx context.Context, symbol string, qty decimal.Decimal, clientOrderID string) error
}

// ExecuteAction runs the legs of the action on exec, sell leg first, waiting
// the settle delay between legs. A failed leg aborts the action; completed
// legs are not reversed.
func (e *Engine) ExecuteAction(ctx context.Context, action domain.Action, exec Executor) (ok bool) {
	if action == nil {
		return false
	}

	var note string
	defer func() {
		if r := recover(); r != nil {
			e.l.Error("Action execution panicked",
				zap.String("kind", action.Kind().String()),
				zap.String("reason", action.Why()),
				zap.Any("panic", r))
			ok = false
		}
		e.record(ctx, action, domain.AuditStageExecuted, ok, note)
	}()

	if err := e.execute(ctx, action, exec); err != nil {
		e.l.Error("Action execution failed",
			zap.String("kind", action.Kind().String()),
			zap.String("reason", action.Why()),
			zap.Error(err))

		var partial *soldOnlyError
		if errors.As(err, &partial) {
			note = fmt.Sprintf("%s sold but buy leg failed, proceeds held in cash", partial.symbol)
			e.l.Warn("Sell leg filled without its buy leg, proceeds held in cash",
				zap.String("sold", partial.symbol),
				zap.String("amount", action.Total().String()))
		}
		return false
	}

	e.l.Info("Action executed", zap.String("action", action.String()))

	return true
}

func (e *Engine) execute(ctx context.Context, action domain.Action, exec Executor) error {
	if exec == nil {
		return errors.New("executor is nil")
	}

	switch a := action.(type) {
	case domain.ProfitTaking:
		if err := exec.Sell(ctx, a.SellSymbol, a.SellQty, newOrderID()); err != nil {
			return errors.Wrapf(err, "sell %s", a.SellSymbol)
		}
		if a.BuySymbol == "" || !a.Amount.IsPositive() {
			return nil
		}
		return e.buyAfterSell(ctx, exec, a.SellSymbol, a.BuySymbol, a.Amount)

	case domain.DipBuying:
		if a.FromCash() {
			return errors.Wrapf(exec.Buy(ctx, a.BuySymbol, a.SellAmount, newOrderID()), "buy %s", a.BuySymbol)
		}
		if err := exec.Sell(ctx, a.SellSymbol, a.SellQty, newOrderID()); err != nil {
			return errors.Wrapf(err, "sell %s", a.SellSymbol)
		}
		return e.buyAfterSell(ctx, exec, a.SellSymbol, a.BuySymbol, a.SellAmount)

	case domain.InterestReinvest:
		return errors.Wrapf(exec.Buy(ctx, a.BuySymbol, a.Amount, newOrderID()), "buy %s", a.BuySymbol)

	case domain.Rebalance:
		if a.Side == domain.SideSell {
			return errors.Wrapf(exec.Sell(ctx, a.Symbol, a.Qty, newOrderID()), "sell %s", a.Symbol)
		}
		return errors.Wrapf(exec.Buy(ctx, a.Symbol, a.Amount, newOrderID()), "buy %s", a.Symbol)

	default:
		return errors.Errorf("unsupported action %T", action)
	}
}

// soldOnlyError is a failure after the sell leg of an action filled.
type soldOnlyError struct {
	symbol string
	err    error
}

func (e *soldOnlyError) Error() string { return e.err.Error() }
func (e *soldOnlyError) Unwrap() error { return e.err }

// buyAfterSell runs the buy leg once sold has filled.
func (e *Engine) buyAfterSell(ctx context.Context, exec Executor, sold, symbol string, amount decimal.Decimal) error {
	if err := e.settle(ctx); err != nil {
		return &soldOnlyError{symbol: sold, err: err}
	}
	if err := exec.Buy(ctx, symbol, amount, newOrderID()); err != nil {
		return &soldOnlyError{symbol: sold, err: errors.Wrapf(err, "buy %s", symbol)}
	}
	return nil
}

// settle waits between the sell and buy legs so the proceeds are available.
func (e *Engine) settle(ctx context.Context) error {
	if e.params.SettleDelay <= 0 {
		return nil
	}

	timer := time.NewTimer(e.params.SettleDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "settle interrupted")
	case <-timer.C:
		return nil
	}
}

func newOrderID() string {
	return uuid.New().String()
}
