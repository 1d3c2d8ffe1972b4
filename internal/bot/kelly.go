package bot

import (
	"math"

	"futuresbot/pkg/utils"
)

// CalculateKellyCriterion возвращает долю баланса для риска на сделку.
//
// Если winRate, avgWin или avgLoss ≤ 0, возвращает RiskPerTrade.
// Иначе raw = (b·p − q)/b, b = avgWin/avgLoss. В дробном режиме
// множитель 0.5 заменяется по согласованности недавнего и общего
// win rate, затем масштабируется серией (не выше 0.7).
// Результат всегда в [KellyMin, KellyMax].
func (e *RiskEngine) CalculateKellyCriterion(winRate, avgWin, avgLoss float64, fractional bool) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kellyLocked(winRate, avgWin, avgLoss, fractional)
}

func (e *RiskEngine) kellyLocked(winRate, avgWin, avgLoss float64, fractional bool) float64 {
	if !(winRate > 0) || !(avgWin > 0) || !(avgLoss > 0) ||
		!utils.IsFinite(avgWin) || !utils.IsFinite(avgLoss) {
		return e.config.RiskPerTrade
	}
	p := math.Min(winRate, 1)
	q := 1 - p
	b := avgWin / avgLoss
	raw := (b*p - q) / b

	fraction := 1.0
	if fractional {
		fraction = e.kellyFractionLocked(p)
	}

	result := utils.Clamp(raw*fraction, e.config.KellyMin, e.config.KellyMax)
	KellyFraction.Set(result)
	return result
}

const maxKellyFraction = 0.7

// kellyFractionLocked - множитель дробного Kelly
func (e *RiskEngine) kellyFractionLocked(winRate float64) float64 {
	fraction := 0.5

	if len(e.recentTrades) >= minRecentSamples {
		consistency := 1 - math.Abs(e.recentWinRateLocked()-winRate)
		switch {
		case consistency > 0.90:
			fraction = 0.65
		case consistency > 0.85:
			fraction = 0.60
		case consistency > 0.70:
			fraction = 0.55
		case consistency < 0.50:
			fraction = 0.35
		case consistency < 0.60:
			fraction = 0.45
		}
	}

	switch {
	case e.lossStreak >= 3:
		fraction *= 0.65
	case e.lossStreak >= 2:
		fraction *= 0.85
	}
	switch {
	case e.winStreak >= 5:
		fraction *= 1.15
	case e.winStreak >= 3:
		fraction *= 1.08
	}

	return math.Min(fraction, maxKellyFraction)
}

// KellyInputs возвращает статистику за все время для Kelly:
// доля выигрышей, средний выигрыш и средний убыток (по модулю)
func (e *RiskEngine) KellyInputs() (winRate, avgWin, avgLoss float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := e.wins + e.losses
	if total == 0 {
		return 0, 0, 0
	}
	winRate = float64(e.wins) / float64(total)
	if e.wins > 0 {
		avgWin = e.totalProfit / float64(e.wins)
	}
	if e.losses > 0 {
		avgLoss = e.totalLoss / float64(e.losses)
	}
	return winRate, avgWin, avgLoss
}
