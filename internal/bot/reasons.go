package bot

import "fmt"

// ReasonCode - код причины решения гардрейла или диверсификации.
// Свободный текст идет в Reason.Detail, код фиксирован.
type ReasonCode string

const (
	ReasonAllowed        ReasonCode = "ALLOWED"
	ReasonExit           ReasonCode = "EXIT"
	ReasonKillSwitch     ReasonCode = "KILL_SWITCH"
	ReasonInvalidInput   ReasonCode = "INVALID_INPUT"
	ReasonTradeValueCap  ReasonCode = "TRADE_VALUE_CAP"
	ReasonDailyLoss      ReasonCode = "DAILY_LOSS_LIMIT"
	ReasonMaxPositions   ReasonCode = "MAX_POSITIONS"
	ReasonConcentration  ReasonCode = "CONCENTRATION"
	ReasonDuplicate      ReasonCode = "DUPLICATE_SYMBOL"
	ReasonNoSignal       ReasonCode = "NO_SIGNAL"
	ReasonBelowMinAmount ReasonCode = "BELOW_MIN_AMOUNT"
)

// Reason - причина решения
type Reason struct {
	Code   ReasonCode `json:"code"`
	Detail string     `json:"detail,omitempty"`
}

func (r Reason) String() string {
	if r.Detail == "" {
		return string(r.Code)
	}
	return string(r.Code) + ": " + r.Detail
}

// Decision - результат проверки гардрейлов
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

func (d Decision) String() string {
	if d.Allowed {
		return "allowed (" + d.Reason.String() + ")"
	}
	return "blocked (" + d.Reason.String() + ")"
}

func allow(code ReasonCode, detail string) Decision {
	return Decision{Allowed: true, Reason: Reason{Code: code, Detail: detail}}
}

func block(code ReasonCode, format string, args ...interface{}) Decision {
	return Decision{Allowed: false, Reason: Reason{Code: code, Detail: fmt.Sprintf(format, args...)}}
}

// ============================================================
// Корректировки плеча
// ============================================================

// AdjustmentKind - источник корректировки плеча
type AdjustmentKind string

const (
	AdjustConfidence AdjustmentKind = "confidence"
	AdjustMomentum   AdjustmentKind = "momentum"
	AdjustTrend      AdjustmentKind = "trend"
	AdjustRegime     AdjustmentKind = "regime"
	AdjustStreak     AdjustmentKind = "streak"
	AdjustWinRate    AdjustmentKind = "recent_win_rate"
	AdjustDrawdown   AdjustmentKind = "drawdown"
)

// Adjustment - одна корректировка плеча
type Adjustment struct {
	Kind   AdjustmentKind `json:"kind"`
	Delta  int            `json:"delta"`
	Detail string         `json:"detail,omitempty"`
}

// LeverageBreakdown - полный расчет плеча для аудита
type LeverageBreakdown struct {
	VolatilityTier string       `json:"volatility_tier"`
	Base           int          `json:"base"`
	Adjustments    []Adjustment `json:"adjustments"`
	Others         int          `json:"others"`   // сумма корректировок до ограничения
	Drawdown       int          `json:"drawdown"` // отдельный override по просадке
	Result         int          `json:"result"`
}

// Sum возвращает сумму корректировок кроме просадки
func (b *LeverageBreakdown) Sum() int {
	total := 0
	for _, a := range b.Adjustments {
		if a.Kind == AdjustDrawdown {
			continue
		}
		total += a.Delta
	}
	return total
}
