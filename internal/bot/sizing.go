package bot

import (
	"math"

	"futuresbot/internal/models"
	"futuresbot/pkg/utils"
)

// ============================================================
// Размер позиции
// ============================================================

// SizingRequest - входные данные расчета размера позиции
type SizingRequest struct {
	Balance       float64
	EntryPrice    float64
	StopLossPrice float64
	Leverage      int     // на размер не влияет, только на маржу
	RiskOverride  float64 // 0 = не задан
	KellyFraction float64 // 0 = не задан
}

// RiskFraction возвращает долю риска для сделки:
// Kelly (не выше 1.5×RiskPerTrade), иначе override, иначе RiskPerTrade
func (e *RiskEngine) RiskFraction(kelly, override float64) float64 {
	if kelly > 0 && utils.IsFinite(kelly) {
		return math.Min(kelly, 1.5*e.config.RiskPerTrade)
	}
	if override > 0 && utils.IsFinite(override) {
		return override
	}
	return e.config.RiskPerTrade
}

// CalculatePositionSize возвращает размер позиции в контрактах.
//
// risk_amount = balance × fraction, distance = |entry-stop|/entry,
// value = min(risk_amount/distance, MaxPositionSize), size = value/entry.
// Не зависит от плеча. При entry ≤ 0 возвращает 0.
func (e *RiskEngine) CalculatePositionSize(req SizingRequest) float64 {
	if req.EntryPrice <= 0 || !utils.IsFinite(req.EntryPrice) {
		return 0
	}
	if req.Balance <= 0 || !utils.IsFinite(req.Balance) {
		return 0
	}

	fraction := e.RiskFraction(req.KellyFraction, req.RiskOverride)
	riskAmount := req.Balance * fraction

	var value float64
	distance := math.Abs(req.EntryPrice-req.StopLossPrice) / req.EntryPrice
	if distance > 0 && utils.IsFinite(distance) {
		value = math.Min(riskAmount/distance, e.config.MaxPositionSize)
	} else {
		value = e.config.MaxPositionSize
	}

	return value / req.EntryPrice
}

// CapPositionValueByMargin ограничивает стоимость позиции так,
// чтобы value/leverage × buffer ≤ balance.
// buffer ≤ 0 означает MinMarginBuffer из конфигурации.
func (e *RiskEngine) CapPositionValueByMargin(value, balance float64, leverage int, buffer float64) float64 {
	if value <= 0 || balance <= 0 || !utils.IsFinite(value) || !utils.IsFinite(balance) {
		return 0
	}
	if leverage < 1 {
		leverage = 1
	}
	if buffer <= 0 {
		buffer = e.config.MinMarginBuffer
	}
	if buffer < 1 {
		buffer = 1
	}
	maxValue := balance * float64(leverage) / buffer
	return math.Min(value, maxValue)
}

// CapPositionValueByTradeLimit ограничивает стоимость позиции так,
// чтобы маржа сделки не превышала MaxTradeValuePct баланса
func (e *RiskEngine) CapPositionValueByTradeLimit(value, balance float64, leverage int) float64 {
	if value <= 0 || balance <= 0 {
		return 0
	}
	if leverage < 1 {
		leverage = 1
	}
	return math.Min(value, balance*e.config.MaxTradeValuePct*float64(leverage))
}

// ============================================================
// Ширина стопа
// ============================================================

const (
	stopATRMultiple    = 1.5
	minStopWidth       = 0.008
	maxStopWidth       = 0.05
	defaultStopWidth   = 0.02
	liquidationStopCap = 0.7
)

// CalculateStopLossWidth возвращает дистанцию стопа как долю цены.
// ATR-волатильность × 1.5, в пределах [0.8%, 5%] и не дальше 70% дистанции ликвидации (1/leverage).
func (e *RiskEngine) CalculateStopLossWidth(volatility float64, leverage int) float64 {
	width := defaultStopWidth
	if volatility > 0 && utils.IsFinite(volatility) {
		width = utils.Clamp(volatility*stopATRMultiple, minStopWidth, maxStopWidth)
	}
	if leverage < 1 {
		leverage = 1
	}
	liqCap := liquidationStopCap / float64(leverage)
	if width > liqCap {
		width = liqCap
	}
	return width
}

// StopLossPrice считает цену стопа для стороны позиции
func StopLossPrice(side string, entry, width float64) float64 {
	if side == models.SideShort {
		return entry * (1 + width)
	}
	return entry * (1 - width)
}

// TakeProfitPrice считает цену тейк-профита с соотношением риск/прибыль rr
func TakeProfitPrice(side string, entry, width, rr float64) float64 {
	if rr <= 0 {
		return 0
	}
	if side == models.SideShort {
		return entry * (1 - width*rr)
	}
	return entry * (1 + width*rr)
}
