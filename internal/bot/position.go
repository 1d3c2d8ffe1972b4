package bot

import (
	"errors"
	"fmt"
	"math"
	"time"

	"futuresbot/internal/models"
	"futuresbot/pkg/utils"
)

// CloseReason - причина закрытия позиции
type CloseReason string

const (
	CloseNone            CloseReason = ""
	CloseEmergency       CloseReason = "EMERGENCY_EXIT"
	CloseStopLoss        CloseReason = "STOP_LOSS"
	CloseTakeProfit      CloseReason = "TAKE_PROFIT"
	CloseEarlyTakeProfit CloseReason = "EARLY_TAKE_PROFIT"
	CloseTrailingStop    CloseReason = "TRAILING_STOP"
	CloseStale           CloseReason = "STALE"
	CloseManual          CloseReason = "MANUAL"
)

// NotificationType возвращает тип уведомления для причины закрытия
func (r CloseReason) NotificationType() string {
	switch r {
	case CloseEmergency:
		return models.NotificationTypeEmergency
	case CloseStopLoss:
		return models.NotificationTypeStopLoss
	case CloseTakeProfit, CloseEarlyTakeProfit:
		return models.NotificationTypeTakeProfit
	case CloseTrailingStop:
		return models.NotificationTypeTrailingStop
	case CloseStale:
		return models.NotificationTypeStale
	default:
		return models.NotificationTypeClose
	}
}

// StaleRule - правило закрытия "зависшей" позиции:
// после Age закрываем, если PNL в [MinPnL, MaxPnL]
type StaleRule struct {
	Age    time.Duration `yaml:"age"`
	MinPnL float64       `yaml:"min_pnl"`
	MaxPnL float64       `yaml:"max_pnl"`
}

// PositionConfig - параметры выхода из позиции
type PositionConfig struct {
	// Аварийный выход: убыток с плечом от этой доли маржи
	EmergencyLossPct float64 `yaml:"emergency_loss_pct"`

	// Ранняя фиксация: PNL с плечом от этой доли
	EarlyTakeProfitROI float64 `yaml:"early_take_profit_roi"`

	// Трейлинг
	TrailingActivationPct float64 `yaml:"trailing_activation_pct"`
	DefaultTrailingPct    float64 `yaml:"default_trailing_pct"`
	MinTrailingPct        float64 `yaml:"min_trailing_pct"`
	LowVolatility         float64 `yaml:"low_volatility"`
	VolatilityWindow      int     `yaml:"volatility_window"`

	// Безубыток
	BreakevenTriggerPct float64 `yaml:"breakeven_trigger_pct"`
	BreakevenOffsetPct  float64 `yaml:"breakeven_offset_pct"`

	// Закрытие по времени
	StaleRules     []StaleRule `yaml:"stale_rules"`
	StaleExemptPct float64     `yaml:"stale_exempt_pct"`
}

// DefaultPositionConfig возвращает параметры по умолчанию
func DefaultPositionConfig() PositionConfig {
	return PositionConfig{
		EmergencyLossPct:      0.60,
		EarlyTakeProfitROI:    0.10,
		TrailingActivationPct: 0.01,
		DefaultTrailingPct:    0.02,
		MinTrailingPct:        0.002,
		LowVolatility:         0.005,
		VolatilityWindow:      20,
		BreakevenTriggerPct:   0.015,
		BreakevenOffsetPct:    0.001,
		StaleRules: []StaleRule{
			{Age: 48 * time.Hour, MinPnL: -0.02, MaxPnL: 0.01},
			{Age: 24 * time.Hour, MinPnL: -0.01, MaxPnL: 0.005},
			{Age: 12 * time.Hour, MinPnL: -0.005, MaxPnL: 0.003},
		},
		StaleExemptPct: 0.03,
	}
}

// Ошибки позиции
var (
	ErrInvalidPosition = errors.New("invalid position parameters")
)

// PositionParams - параметры новой позиции
type PositionParams struct {
	ID         string // пусто = сгенерировать ULID
	Symbol     string
	Side       string // long, short
	EntryPrice float64
	Amount     float64
	Leverage   int
	StopLoss   float64
	TakeProfit float64 // 0 = не задан
	EntryTime  time.Time
}

// Position - позиция с машиной состояний выхода.
//
// Экстремумы цены, трейлинг-стоп и флаги безубытка/трейлинга
// меняются только методами и только в выгодную сторону.
// Позиция не потокобезопасна: доступ только через PositionLedger.
type Position struct {
	ID         string
	Symbol     string
	Side       string
	EntryPrice float64
	Amount     float64
	Leverage   int
	StopLoss   float64
	TakeProfit float64
	EntryTime  time.Time

	highestPrice      float64
	lowestPrice       float64
	trailingStop      float64
	trailingActivated bool
	breakevenMoved    bool

	state       PositionState
	closeReason CloseReason

	prices []float64 // окно последних цен для реализованной волатильности
	cfg    PositionConfig
}

// NewPosition создает позицию в состоянии Pending.
// Для long: StopLoss < EntryPrice < TakeProfit, для short наоборот.
func NewPosition(p PositionParams, cfg PositionConfig) (*Position, error) {
	if !models.IsValidSide(p.Side) {
		return nil, fmt.Errorf("side %q: %w", p.Side, ErrInvalidPosition)
	}
	if !(p.EntryPrice > 0) || !(p.Amount > 0) || !utils.IsFinite(p.EntryPrice) || !utils.IsFinite(p.Amount) {
		return nil, fmt.Errorf("entry %v amount %v: %w", p.EntryPrice, p.Amount, ErrInvalidPosition)
	}
	if p.Leverage < 1 {
		return nil, fmt.Errorf("leverage %d: %w", p.Leverage, ErrInvalidPosition)
	}
	if err := checkLevels(p.Side, p.EntryPrice, p.StopLoss, p.TakeProfit); err != nil {
		return nil, err
	}

	if p.ID == "" {
		p.ID = utils.NewID()
	}
	if p.EntryTime.IsZero() {
		p.EntryTime = time.Now()
	}
	if cfg.VolatilityWindow <= 0 {
		cfg.VolatilityWindow = 20
	}

	return &Position{
		ID:           p.ID,
		Symbol:       p.Symbol,
		Side:         p.Side,
		EntryPrice:   p.EntryPrice,
		Amount:       p.Amount,
		Leverage:     p.Leverage,
		StopLoss:     p.StopLoss,
		TakeProfit:   p.TakeProfit,
		EntryTime:    p.EntryTime,
		highestPrice: p.EntryPrice,
		lowestPrice:  p.EntryPrice,
		state:        StatePending,
		prices:       make([]float64, 0, cfg.VolatilityWindow),
		cfg:          cfg,
	}, nil
}

func checkLevels(side string, entry, stop, tp float64) error {
	if !(stop > 0) {
		return fmt.Errorf("stop loss %v: %w", stop, ErrInvalidPosition)
	}
	if side == models.SideLong {
		if stop >= entry {
			return fmt.Errorf("long stop %v must be below entry %v: %w", stop, entry, ErrInvalidPosition)
		}
		if tp > 0 && tp <= entry {
			return fmt.Errorf("long take profit %v must be above entry %v: %w", tp, entry, ErrInvalidPosition)
		}
		return nil
	}
	if stop <= entry {
		return fmt.Errorf("short stop %v must be above entry %v: %w", stop, entry, ErrInvalidPosition)
	}
	if tp > 0 && tp >= entry {
		return fmt.Errorf("short take profit %v must be below entry %v: %w", tp, entry, ErrInvalidPosition)
	}
	return nil
}

func (p *Position) isLong() bool {
	return p.Side == models.SideLong
}

// ============================================================
// PNL
// ============================================================

// GetPnL - изменение цены в долях, без плеча (для short со знаком минус)
func (p *Position) GetPnL(price float64) float64 {
	if p.EntryPrice <= 0 || !utils.IsFinite(price) {
		return 0
	}
	change := (price - p.EntryPrice) / p.EntryPrice
	if p.isLong() {
		return change
	}
	return -change
}

// GetLeveragedPnL - PNL на маржу: GetPnL × Leverage
func (p *Position) GetLeveragedPnL(price float64) float64 {
	return p.GetPnL(price) * float64(p.Leverage)
}

// UnrealizedPnL - PNL в валюте котировки
func (p *Position) UnrealizedPnL(price float64) float64 {
	return utils.CalculatePNL(p.Side, p.EntryPrice, price, p.Amount)
}

// ============================================================
// Условия выхода
// ============================================================

// ShouldClose проверяет условия выхода по приоритету:
// аварийный выход, стоп-лосс, тейк-профит (включая раннюю фиксацию),
// трейлинг-стоп, закрытие по времени
func (p *Position) ShouldClose(price float64, now time.Time) (bool, CloseReason) {
	if IsTerminal(p.state) {
		return false, CloseNone
	}
	if !(price > 0) || !utils.IsFinite(price) {
		return false, CloseNone
	}

	pnl := p.GetPnL(price)
	leveraged := pnl * float64(p.Leverage)

	// 1. До ликвидации биржа стоп может не исполнить
	if leveraged <= -p.cfg.EmergencyLossPct {
		return true, CloseEmergency
	}

	// 2. Стоп-лосс
	if p.crossed(price, p.StopLoss) {
		return true, CloseStopLoss
	}

	// 3. Тейк-профит и ранняя фиксация
	if p.TakeProfit > 0 {
		if (p.isLong() && price >= p.TakeProfit) || (!p.isLong() && price <= p.TakeProfit) {
			return true, CloseTakeProfit
		}
	}
	if p.cfg.EarlyTakeProfitROI > 0 && leveraged >= p.cfg.EarlyTakeProfitROI {
		return true, CloseEarlyTakeProfit
	}

	// 4. Трейлинг-стоп
	if p.trailingActivated && p.trailingStop > 0 && p.crossed(price, p.trailingStop) {
		return true, CloseTrailingStop
	}

	// 5. Закрытие по времени
	if p.isStale(pnl, now) {
		return true, CloseStale
	}

	return false, CloseNone
}

// crossed: цена прошла уровень стопа против позиции
func (p *Position) crossed(price, level float64) bool {
	if level <= 0 {
		return false
	}
	if p.isLong() {
		return price <= level
	}
	return price >= level
}

func (p *Position) isStale(pnl float64, now time.Time) bool {
	if pnl >= p.cfg.StaleExemptPct {
		return false
	}
	age := now.Sub(p.EntryTime)

	// применяем правило с наибольшим пройденным возрастом
	var best *StaleRule
	for i := range p.cfg.StaleRules {
		r := &p.cfg.StaleRules[i]
		if age >= r.Age && (best == nil || r.Age > best.Age) {
			best = r
		}
	}
	if best == nil {
		return false
	}
	return pnl >= best.MinPnL && pnl <= best.MaxPnL
}

// ============================================================
// Трейлинг-стоп и безубыток
// ============================================================

// UpdateTrailingStop обновляет экстремум и трейлинг-стоп.
// Трейлинг активируется один раз при PNL ≥ TrailingActivationPct.
// Новый стоп применяется только если он выгоднее текущего.
// Возвращает true, если стоп сдвинулся.
func (p *Position) UpdateTrailingStop(price, trailingPct float64) bool {
	if !IsLive(p.state) || !(price > 0) || !utils.IsFinite(price) {
		return false
	}

	p.observePrice(price)
	if p.isLong() {
		if price > p.highestPrice {
			p.highestPrice = price
		}
	} else if price < p.lowestPrice {
		p.lowestPrice = price
	}

	pnl := p.GetPnL(price)
	if !p.trailingActivated {
		if pnl < p.cfg.TrailingActivationPct {
			return false
		}
		p.trailingActivated = true
		if p.state == StateOpen {
			p.state = StateTrailing
		}
	}

	pct := p.adaptiveTrailingPct(trailingPct, pnl)
	current := p.EffectiveStop()

	if p.isLong() {
		candidate := p.highestPrice * (1 - pct)
		if candidate > current {
			p.trailingStop = candidate
			return true
		}
		return false
	}

	candidate := p.lowestPrice * (1 + pct)
	if current <= 0 || candidate < current {
		p.trailingStop = candidate
		return true
	}
	return false
}

// adaptiveTrailingPct: уже при низкой волатильности и большой прибыли
func (p *Position) adaptiveTrailingPct(base, pnl float64) float64 {
	if !(base > 0) {
		base = p.cfg.DefaultTrailingPct
	}
	if vol := p.RealizedVolatility(); vol > 0 && vol < p.cfg.LowVolatility {
		base *= 0.7
	}
	switch {
	case pnl >= 0.05:
		base *= 0.6
	case pnl >= 0.03:
		base *= 0.8
	}
	return math.Max(base, p.cfg.MinTrailingPct)
}

// MoveToBreakeven переносит стоп к цене входа ±BreakevenOffsetPct
// один раз, когда PNL достигает BreakevenTriggerPct.
// Возвращает true при срабатывании.
func (p *Position) MoveToBreakeven(price float64) bool {
	if p.breakevenMoved || !IsLive(p.state) {
		return false
	}
	if p.GetPnL(price) < p.cfg.BreakevenTriggerPct {
		return false
	}

	var target float64
	if p.isLong() {
		target = p.EntryPrice * (1 + p.cfg.BreakevenOffsetPct)
		if target > p.StopLoss {
			p.StopLoss = target
		}
	} else {
		target = p.EntryPrice * (1 - p.cfg.BreakevenOffsetPct)
		if target < p.StopLoss {
			p.StopLoss = target
		}
	}
	p.breakevenMoved = true
	return true
}

// EffectiveStop - самый выгодный из стоп-лосса и трейлинг-стопа
func (p *Position) EffectiveStop() float64 {
	if p.trailingStop <= 0 {
		return p.StopLoss
	}
	if p.isLong() {
		return math.Max(p.StopLoss, p.trailingStop)
	}
	return math.Min(p.StopLoss, p.trailingStop)
}

// observePrice добавляет цену в окно волатильности
func (p *Position) observePrice(price float64) {
	if len(p.prices) >= p.cfg.VolatilityWindow {
		copy(p.prices, p.prices[1:])
		p.prices = p.prices[:len(p.prices)-1]
	}
	p.prices = append(p.prices, price)
}

// RealizedVolatility - стандартное отклонение доходностей по окну цен.
// Меньше трех наблюдений - 0.
func (p *Position) RealizedVolatility() float64 {
	if len(p.prices) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(p.prices)-1)
	for i := 1; i < len(p.prices); i++ {
		if p.prices[i-1] > 0 {
			returns = append(returns, (p.prices[i]-p.prices[i-1])/p.prices[i-1])
		}
	}
	return utils.StdDev(returns)
}

// ============================================================
// Доступ к состоянию
// ============================================================

func (p *Position) HighestPrice() float64    { return p.highestPrice }
func (p *Position) LowestPrice() float64     { return p.lowestPrice }
func (p *Position) TrailingStop() float64    { return p.trailingStop }
func (p *Position) TrailingActivated() bool  { return p.trailingActivated }
func (p *Position) BreakevenMoved() bool     { return p.breakevenMoved }
func (p *Position) State() PositionState     { return p.state }
func (p *Position) CloseReason() CloseReason { return p.closeReason }

// transition переводит позицию в новое состояние
func (p *Position) transition(to PositionState) error {
	if err := checkTransition(p.state, to); err != nil {
		return err
	}
	p.state = to
	return nil
}

// PositionSnapshot - копия позиции для чтения вне блокировки
type PositionSnapshot struct {
	ID                string        `json:"id"`
	Symbol            string        `json:"symbol"`
	Side              string        `json:"side"`
	State             PositionState `json:"state"`
	EntryPrice        float64       `json:"entry_price"`
	Amount            float64       `json:"amount"`
	Leverage          int           `json:"leverage"`
	StopLoss          float64       `json:"stop_loss"`
	TakeProfit        float64       `json:"take_profit,omitempty"`
	TrailingStop      float64       `json:"trailing_stop,omitempty"`
	EffectiveStop     float64       `json:"effective_stop"`
	HighestPrice      float64       `json:"highest_price"`
	LowestPrice       float64       `json:"lowest_price"`
	TrailingActivated bool          `json:"trailing_activated"`
	BreakevenMoved    bool          `json:"breakeven_moved"`
	EntryTime         time.Time     `json:"entry_time"`
}

// Snapshot возвращает копию позиции
func (p *Position) Snapshot() PositionSnapshot {
	return PositionSnapshot{
		ID:                p.ID,
		Symbol:            p.Symbol,
		Side:              p.Side,
		State:             p.state,
		EntryPrice:        p.EntryPrice,
		Amount:            p.Amount,
		Leverage:          p.Leverage,
		StopLoss:          p.StopLoss,
		TakeProfit:        p.TakeProfit,
		TrailingStop:      p.trailingStop,
		EffectiveStop:     p.EffectiveStop(),
		HighestPrice:      p.highestPrice,
		LowestPrice:       p.lowestPrice,
		TrailingActivated: p.trailingActivated,
		BreakevenMoved:    p.breakevenMoved,
		EntryTime:         p.EntryTime,
	}
}
