package bot

import (
	"context"
	"fmt"
	"time"

	"futuresbot/internal/models"
	"futuresbot/pkg/utils"
)

// StateStore - граница сохранения состояния риск-движка.
// LoadRiskState возвращает (nil, nil), если состояние еще не сохранялось.
type StateStore interface {
	SaveRiskState(ctx context.Context, state *models.RiskState) error
	LoadRiskState(ctx context.Context) (*models.RiskState, error)
}

// TradeOutcome - результат закрытой сделки для статистики
type TradeOutcome struct {
	Symbol   string
	PnL      float64 // в валюте котировки
	PnLPct   float64 // изменение цены без плеча
	ClosedAt time.Time
}

// ============================================================
// Результаты сделок
// ============================================================

// RecordTradeOutcome обновляет серии, окно последних сделок,
// статистику за все время и дневной убыток
func (e *RiskEngine) RecordTradeOutcome(o TradeOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recordTradeOutcomeLocked(o)
}

func (e *RiskEngine) recordTradeOutcomeLocked(o TradeOutcome) {
	e.rolloverLocked()

	pnl := o.PnL
	if !utils.IsFinite(pnl) {
		pnl = 0
	}
	// без денежного PNL знак берем из процентного
	sign := pnl
	if sign == 0 && utils.IsFinite(o.PnLPct) {
		sign = o.PnLPct
	}

	switch {
	case sign > 0:
		e.winStreak++
		e.lossStreak = 0
		e.wins++
		e.totalProfit += pnl
	case sign < 0:
		e.lossStreak++
		e.winStreak = 0
		e.losses++
		e.totalLoss += -pnl
		e.addDailyLossLocked(-pnl)
	default:
		// безубыток прерывает обе серии
		e.winStreak = 0
		e.lossStreak = 0
	}

	e.pushRecentLocked(sign)
	RecordTradeResult(sign)
	UpdateRiskGauges(e.peakBalance, e.currentDrawdown, e.dailyLoss)

	e.log.Info("trade outcome recorded",
		utils.Symbol(o.Symbol),
		utils.PNL(pnl),
		utils.Int("win_streak", e.winStreak),
		utils.Int("loss_streak", e.lossStreak),
		utils.Float64("daily_loss", e.dailyLoss),
	)
}

func (e *RiskEngine) pushRecentLocked(pnl float64) {
	if len(e.recentTrades) >= e.config.RecentTradesCap {
		copy(e.recentTrades, e.recentTrades[1:])
		e.recentTrades = e.recentTrades[:len(e.recentTrades)-1]
	}
	e.recentTrades = append(e.recentTrades, pnl)
}

func (e *RiskEngine) recentWinRateLocked() float64 {
	if len(e.recentTrades) == 0 {
		return 0
	}
	wins := 0
	for _, p := range e.recentTrades {
		if p > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(e.recentTrades))
}

// addDailyLossLocked добавляет убыток в долях стартового баланса дня
func (e *RiskEngine) addDailyLossLocked(loss float64) {
	if loss <= 0 {
		return
	}
	base := e.dailyStartBalance
	if base <= 0 {
		base = e.peakBalance
	}
	if base <= 0 {
		e.log.Warn("daily loss not tracked: no start balance", utils.Float64("loss", loss))
		return
	}
	e.dailyLoss += loss / base
}

// ============================================================
// Просадка
// ============================================================

// UpdateDrawdown обновляет пик и просадку по текущему балансу.
// Возвращает множитель риска: 1.0, 0.75 при просадке от 15%, 0.5 от 20%.
func (e *RiskEngine) UpdateDrawdown(balance float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updateDrawdownLocked(balance)
}

func (e *RiskEngine) updateDrawdownLocked(balance float64) float64 {
	if !utils.IsFinite(balance) {
		return drawdownMultiplier(e.currentDrawdown)
	}
	if balance < 0 {
		balance = 0
	}

	e.lastBalance = balance
	if e.dailyStartBalance <= 0 && balance > 0 {
		e.dailyStartBalance = balance
	}
	e.rolloverLocked()

	if balance >= e.peakBalance {
		e.peakBalance = balance
		e.currentDrawdown = 0
	} else if e.peakBalance > 0 {
		e.currentDrawdown = utils.Clamp((e.peakBalance-balance)/e.peakBalance, 0, 1)
	}

	UpdateRiskGauges(e.peakBalance, e.currentDrawdown, e.dailyLoss)
	return drawdownMultiplier(e.currentDrawdown)
}

func drawdownMultiplier(dd float64) float64 {
	switch {
	case dd >= 0.20:
		return 0.5
	case dd >= 0.15:
		return 0.75
	default:
		return 1.0
	}
}

// ============================================================
// Торговый день
// ============================================================

// rolloverLocked сбрасывает дневной убыток при смене торговой даты
func (e *RiskEngine) rolloverLocked() {
	today := utils.TradingDate(e.now())
	if e.tradingDate == today {
		return
	}

	e.log.Info("trading day rollover",
		utils.String("from", e.tradingDate),
		utils.String("to", today),
		utils.Float64("daily_loss", e.dailyLoss),
	)
	e.tradingDate = today
	e.dailyLoss = 0
	// 0 = взять первый баланс, который придет в UpdateDrawdown
	e.dailyStartBalance = e.lastBalance
}

// ============================================================
// Сохранение и загрузка
// ============================================================

// Snapshot возвращает копию состояния для API, CLI и сохранения
func (e *RiskEngine) Snapshot() models.RiskState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *RiskEngine) snapshotLocked() models.RiskState {
	recent := make([]float64, len(e.recentTrades))
	copy(recent, e.recentTrades)

	s := models.RiskState{
		PeakBalance:       e.peakBalance,
		CurrentDrawdown:   e.currentDrawdown,
		DailyLoss:         e.dailyLoss,
		DailyStartBalance: e.dailyStartBalance,
		TradingDate:       e.tradingDate,
		WinStreak:         e.winStreak,
		LossStreak:        e.lossStreak,
		RecentTrades:      recent,
		Wins:              e.wins,
		Losses:            e.losses,
		TotalProfit:       e.totalProfit,
		TotalLoss:         e.totalLoss,
		KillSwitchActive:  e.killSwitch.Active,
		KillSwitchReason:  e.killSwitch.Reason,
		UpdatedAt:         e.now(),
	}
	if e.killSwitch.ActivatedAt != nil {
		at := *e.killSwitch.ActivatedAt
		s.KillSwitchAt = &at
	}
	return s
}

// SaveState сохраняет состояние через store
func (e *RiskEngine) SaveState(ctx context.Context, store StateStore) error {
	state := e.Snapshot()
	if err := store.SaveRiskState(ctx, &state); err != nil {
		return fmt.Errorf("save risk state: %w", err)
	}
	return nil
}

// LoadState восстанавливает состояние из store и повторно
// проверяет смену торгового дня. Пустой store не ошибка.
func (e *RiskEngine) LoadState(ctx context.Context, store StateStore) error {
	state, err := store.LoadRiskState(ctx)
	if err != nil {
		return fmt.Errorf("load risk state: %w", err)
	}
	if state == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.restoreLocked(state)
	return nil
}

func (e *RiskEngine) restoreLocked(s *models.RiskState) {
	e.peakBalance = s.PeakBalance
	e.currentDrawdown = utils.Clamp(s.CurrentDrawdown, 0, 1)
	e.dailyLoss = s.DailyLoss
	e.dailyStartBalance = s.DailyStartBalance
	e.tradingDate = s.TradingDate

	e.winStreak, e.lossStreak = s.WinStreak, s.LossStreak
	if e.winStreak > 0 && e.lossStreak > 0 {
		// поврежденное состояние: серии взаимоисключающие
		e.winStreak, e.lossStreak = 0, 0
	}

	recent := s.RecentTrades
	if len(recent) > e.config.RecentTradesCap {
		recent = recent[len(recent)-e.config.RecentTradesCap:]
	}
	e.recentTrades = make([]float64, len(recent), e.config.RecentTradesCap)
	copy(e.recentTrades, recent)

	e.wins, e.losses = s.Wins, s.Losses
	e.totalProfit, e.totalLoss = s.TotalProfit, s.TotalLoss

	e.killSwitch = KillSwitchState{Active: s.KillSwitchActive, Reason: s.KillSwitchReason}
	if s.KillSwitchAt != nil {
		at := *s.KillSwitchAt
		e.killSwitch.ActivatedAt = &at
	}
	SetKillSwitch(e.killSwitch.Active)

	e.rolloverLocked()
	UpdateRiskGauges(e.peakBalance, e.currentDrawdown, e.dailyLoss)

	e.log.Info("risk state restored",
		utils.Float64("peak_balance", e.peakBalance),
		utils.String("trading_date", e.tradingDate),
		utils.Bool("kill_switch", e.killSwitch.Active),
	)
}
