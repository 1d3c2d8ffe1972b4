package models

import "strings"

// Indicators - вектор технических индикаторов от внешнего модуля рыночных данных.
// Ядро использует их только как числа; отсутствующие поля равны 0.
type Indicators struct {
	Close         float64 `json:"close"`
	RSI           float64 `json:"rsi"`
	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macd_signal"`
	BBWidth       float64 `json:"bb_width"`
	BBHigh        float64 `json:"bb_high"`
	BBLow         float64 `json:"bb_low"`
	ATR           float64 `json:"atr"`
	VolumeRatio   float64 `json:"volume_ratio"`
	Momentum      float64 `json:"momentum"`
	ROC           float64 `json:"roc"`
	TrendStrength float64 `json:"trend_strength"` // 0..1, 0 = нет данных
	Regime        string  `json:"regime"`         // trending, ranging, neutral
}

// Volatility возвращает ATR/close. При close ≤ 0 возвращает 0.
func (i *Indicators) Volatility() float64 {
	if i == nil || i.Close <= 0 || i.ATR <= 0 {
		return 0
	}
	return i.ATR / i.Close
}

// TrendOrDefault возвращает силу тренда или нейтральные 0.5, если данных нет
func (i *Indicators) TrendOrDefault() float64 {
	if i == nil || i.TrendStrength <= 0 {
		return 0.5
	}
	if i.TrendStrength > 1 {
		return 1
	}
	return i.TrendStrength
}

// Сигналы генератора
const (
	SignalBuy  = "BUY"
	SignalSell = "SELL"
	SignalHold = "HOLD"
)

// Рыночные режимы
const (
	RegimeTrending = "trending"
	RegimeRanging  = "ranging"
	RegimeNeutral  = "neutral"
)

// SignalResult - результат генератора сигналов
type SignalResult struct {
	Signal     string                 `json:"signal"`
	Confidence float64                `json:"confidence"`
	Reasons    map[string]interface{} `json:"reasons,omitempty"`
}

// Normalize приводит результат к допустимым значениям:
// неизвестный сигнал -> HOLD, уверенность в [0,1]
func (r *SignalResult) Normalize() {
	r.Signal = strings.ToUpper(strings.TrimSpace(r.Signal))
	switch r.Signal {
	case SignalBuy, SignalSell, SignalHold:
	default:
		r.Signal = SignalHold
	}
	if r.Confidence != r.Confidence || r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
}

// Side возвращает сторону позиции для сигнала ("" для HOLD)
func (r *SignalResult) Side() string {
	switch r.Signal {
	case SignalBuy:
		return SideLong
	case SignalSell:
		return SideShort
	default:
		return ""
	}
}
