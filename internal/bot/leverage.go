package bot

import (
	"fmt"
	"math"

	"futuresbot/internal/models"
	"futuresbot/pkg/utils"
)

// LeverageInput - входные данные расчета плеча
type LeverageInput struct {
	Volatility    float64 // ATR/close
	Confidence    float64 // 0..1
	Momentum      float64
	TrendStrength float64 // 0..1
	Regime        string  // trending, ranging, neutral
}

// NewLeverageInput создает вход с нейтральными значениями по умолчанию
func NewLeverageInput(volatility, confidence float64) LeverageInput {
	return LeverageInput{
		Volatility:    volatility,
		Confidence:    confidence,
		TrendStrength: 0.5,
		Regime:        models.RegimeNeutral,
	}
}

// volatilityTier - ступень базового плеча
type volatilityTier struct {
	name     string
	min      float64
	leverage int
}

// Ступени по убыванию волатильности
var volatilityTiers = []volatilityTier{
	{"extreme", 0.10, 3},
	{"very_high", 0.07, 5},
	{"high", 0.05, 7},
	{"elevated", 0.03, 10},
	{"moderate", 0.02, 12},
	{"low", 0.01, 14},
	{"very_low", 0, 16},
}

func baseLeverage(volatility float64) (string, int) {
	// некорректная волатильность трактуется как экстремальная
	if !utils.IsFinite(volatility) || volatility < 0 {
		return volatilityTiers[0].name, volatilityTiers[0].leverage
	}
	for _, t := range volatilityTiers {
		if volatility >= t.min {
			return t.name, t.leverage
		}
	}
	last := volatilityTiers[len(volatilityTiers)-1]
	return last.name, last.leverage
}

func confidenceAdjustment(c float64) int {
	switch {
	case c >= 0.85:
		return 4
	case c >= 0.75:
		return 3
	case c >= 0.65:
		return 2
	case c >= 0.55:
		return 1
	case c >= 0.50:
		return 0
	case c >= 0.40:
		return -1
	case c >= 0.30:
		return -2
	default:
		return -3
	}
}

func momentumAdjustment(m float64) int {
	m = math.Abs(m)
	switch {
	case m >= 0.03:
		return 2
	case m >= 0.015:
		return 1
	case m >= 0.005:
		return 0
	default:
		return -1
	}
}

func trendAdjustment(t float64) int {
	switch {
	case t >= 0.8:
		return 2
	case t >= 0.6:
		return 1
	case t >= 0.3:
		return 0
	default:
		return -1
	}
}

func regimeAdjustment(regime string) int {
	switch regime {
	case models.RegimeTrending:
		return 3
	case models.RegimeRanging:
		return -2
	default:
		return 0
	}
}

func streakAdjustment(win, loss int) int {
	switch {
	case win >= 5:
		return 2
	case win >= 3:
		return 1
	case loss >= 4:
		return -3
	case loss >= 3:
		return -2
	case loss >= 2:
		return -1
	default:
		return 0
	}
}

func winRateAdjustment(wr float64) int {
	switch {
	case wr >= 0.80:
		return 3
	case wr >= 0.65:
		return 2
	case wr >= 0.55:
		return 1
	case wr >= 0.45:
		return 0
	case wr >= 0.35:
		return -1
	case wr >= 0.25:
		return -2
	default:
		return -3
	}
}

// drawdownOverride: 0 при <10%, −3 при 10–15%, −6 при 15–20%, −10 от 20%
func drawdownOverride(dd float64) int {
	switch {
	case dd >= 0.20:
		return -10
	case dd >= 0.15:
		return -6
	case dd >= 0.10:
		return -3
	default:
		return 0
	}
}

const (
	severeDrawdownOverride = -10
	severeOthersFloor      = -5
	minRecentSamples       = 5
)

// GetMaxLeverage возвращает рекомендованное плечо в [MinLeverage, MaxLeverage]
func (e *RiskEngine) GetMaxLeverage(in LeverageInput) int {
	return e.LeverageBreakdown(in).Result
}

// LeverageBreakdown возвращает плечо вместе с полным расчетом
func (e *RiskEngine) LeverageBreakdown(in LeverageInput) LeverageBreakdown {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leverageBreakdownLocked(in)
}

func (e *RiskEngine) leverageBreakdownLocked(in LeverageInput) LeverageBreakdown {
	conf := in.Confidence
	if !utils.IsFinite(conf) {
		conf = 0
	}
	mom := in.Momentum
	if !utils.IsFinite(mom) {
		mom = 0
	}
	trend := in.TrendStrength
	if !utils.IsFinite(trend) {
		trend = 0.5
	}

	tier, base := baseLeverage(in.Volatility)
	b := LeverageBreakdown{VolatilityTier: tier, Base: base}

	b.Adjustments = append(b.Adjustments,
		Adjustment{Kind: AdjustConfidence, Delta: confidenceAdjustment(conf), Detail: fmt.Sprintf("confidence=%.2f", conf)},
		Adjustment{Kind: AdjustMomentum, Delta: momentumAdjustment(mom), Detail: fmt.Sprintf("momentum=%.4f", mom)},
		Adjustment{Kind: AdjustTrend, Delta: trendAdjustment(trend), Detail: fmt.Sprintf("trend=%.2f", trend)},
		Adjustment{Kind: AdjustRegime, Delta: regimeAdjustment(in.Regime), Detail: "regime=" + in.Regime},
		Adjustment{Kind: AdjustStreak, Delta: streakAdjustment(e.winStreak, e.lossStreak),
			Detail: fmt.Sprintf("win_streak=%d loss_streak=%d", e.winStreak, e.lossStreak)},
	)

	if len(e.recentTrades) >= minRecentSamples {
		wr := e.recentWinRateLocked()
		b.Adjustments = append(b.Adjustments,
			Adjustment{Kind: AdjustWinRate, Delta: winRateAdjustment(wr), Detail: fmt.Sprintf("recent_win_rate=%.2f", wr)})
	}

	b.Others = b.Sum()
	b.Drawdown = drawdownOverride(e.currentDrawdown)
	b.Adjustments = append(b.Adjustments,
		Adjustment{Kind: AdjustDrawdown, Delta: b.Drawdown, Detail: fmt.Sprintf("drawdown=%.4f", e.currentDrawdown)})

	others := b.Others
	if b.Drawdown <= severeDrawdownOverride && others < severeOthersFloor {
		others = severeOthersFloor
	}

	b.Result = utils.ClampInt(base+others+b.Drawdown, e.config.MinLeverage, e.config.MaxLeverage)
	LeverageChosen.Observe(float64(b.Result))
	return b
}
