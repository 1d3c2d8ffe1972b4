package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"futuresbot/internal/exchange"
	"futuresbot/internal/models"
	"futuresbot/pkg/retry"
	"futuresbot/pkg/utils"
)

// RecoveryResult - итог восстановления позиций после перезапуска
type RecoveryResult struct {
	// Found - открытые позиции на бирже
	Found int

	// Restored - позиции, поставленные под мониторинг
	Restored []PositionSnapshot

	// Tracked - символы, уже известные реестру
	Tracked []string

	// Failed - позиции, которые не удалось зарегистрировать
	Failed map[string]error
}

// RecoverPositions находит открытые позиции на бирже и регистрирует их
// в реестре без проверки гардрейлов.
//
// Стоп и тейк-профит на бирже не хранятся, поэтому пересчитываются
// от цены входа со стопом по умолчанию и RiskRewardRatio. Если цена уже
// за стопом, монитор закроет позицию на первой итерации.
// Шлюз без PositionLister пропускается с предупреждением.
func (e *Engine) RecoverPositions(ctx context.Context) (*RecoveryResult, error) {
	result := &RecoveryResult{Failed: make(map[string]error)}

	discovered, err := e.discoverPositions(ctx)
	if errors.Is(err, exchange.ErrNotSupported) {
		e.log.Warn("position recovery skipped: gateway cannot list positions",
			utils.String("gateway", e.gw.GetName()))
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("discover positions: %w", err)
	}
	result.Found = len(discovered)

	for _, p := range discovered {
		if _, tracked := e.ledger.Get(p.Symbol); tracked {
			result.Tracked = append(result.Tracked, p.Symbol)
			continue
		}

		snap, err := e.restorePosition(ctx, p)
		if err != nil {
			result.Failed[p.Symbol] = err
			e.log.Error("position not restored", utils.Symbol(p.Symbol), utils.Err(err))
			continue
		}
		result.Restored = append(result.Restored, snap)

		e.log.Info("position restored",
			utils.Symbol(snap.Symbol),
			utils.PositionID(snap.ID),
			utils.Side(snap.Side),
			utils.Price(snap.EntryPrice),
			utils.Amount(snap.Amount),
			utils.Leverage(snap.Leverage),
			utils.Float64("stop_loss", snap.StopLoss),
		)
	}

	e.notifyRecovery(result)

	if result.Found > 0 {
		e.log.Info("recovery complete",
			utils.Int("found", result.Found),
			utils.Int("restored", len(result.Restored)),
			utils.Int("tracked", len(result.Tracked)),
			utils.Int("failed", len(result.Failed)),
		)
	}
	return result, nil
}

func (e *Engine) discoverPositions(ctx context.Context) ([]*exchange.Position, error) {
	lister, ok := e.gw.(exchange.PositionLister)
	if !ok {
		return nil, exchange.ErrNotSupported
	}
	return retry.DoWithResult(ctx, func() ([]*exchange.Position, error) {
		var out []*exchange.Position
		err := e.timed(ctx, "open_positions", func(cctx context.Context) error {
			var err error
			out, err = lister.GetOpenPositions(cctx)
			return err
		})
		return out, err
	}, e.retryConfig(ctx, retry.DefaultConfig(), "open_positions"))
}

// restorePosition строит уровни от цены входа и добавляет позицию в реестр
func (e *Engine) restorePosition(ctx context.Context, p *exchange.Position) (PositionSnapshot, error) {
	leverage := p.Leverage
	if leverage < 1 {
		leverage = e.risk.Config().MinLeverage
	}

	width := e.risk.CalculateStopLossWidth(0, leverage)
	stop := StopLossPrice(p.Side, p.EntryPrice, width)
	takeProfit := TakeProfitPrice(p.Side, p.EntryPrice, width, e.cfg.RiskRewardRatio)
	if limits := e.limits(ctx, p.Symbol); limits != nil && limits.PriceStep > 0 {
		stop = utils.RoundPrice(stop, limits.PriceStep)
		takeProfit = utils.RoundPrice(takeProfit, limits.PriceStep)
	}

	entryTime := p.OpenedAt
	if entryTime.IsZero() {
		entryTime = e.now()
	}

	return e.ledger.OpenPosition(PositionParams{
		Symbol:     p.Symbol,
		Side:       p.Side,
		EntryPrice: p.EntryPrice,
		Amount:     p.Amount,
		Leverage:   leverage,
		StopLoss:   stop,
		TakeProfit: takeProfit,
		EntryTime:  entryTime,
	})
}

func (e *Engine) notifyRecovery(result *RecoveryResult) {
	for _, snap := range result.Restored {
		e.notify(models.NewNotification(models.NotificationTypeRecovery, models.SeverityWarn, snap.Symbol,
			fmt.Sprintf("Recovered %s %s %.8g @ %.8g x%d, stop %.8g",
				snap.Side, snap.Symbol, snap.Amount, snap.EntryPrice, snap.Leverage, snap.StopLoss)).
			WithMeta("position_id", snap.ID).
			WithMeta("stop_loss", snap.StopLoss).
			WithMeta("take_profit", snap.TakeProfit))
	}

	symbols := make([]string, 0, len(result.Failed))
	for symbol := range result.Failed {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		e.notify(models.NewNotification(models.NotificationTypeError, models.SeverityError, symbol,
			"Open position is not monitored: "+result.Failed[symbol].Error()))
	}
}
