package bot

import (
	"math"
	"strconv"

	"futuresbot/pkg/utils"
)

// погрешность сравнения долей, чтобы маржа ровно на лимите не отклонялась
const ratioEpsilon = 1e-9

// ValidateTradeGuardrails - единый гардрейл перед открытием сделки.
//
// Выход (isExit) разрешен всегда. Далее по порядку, до первого отказа:
// kill switch, потолок на сделку, дневной лимит убытка
// (пробой включает kill switch), лимит количества позиций.
func (e *RiskEngine) ValidateTradeGuardrails(balance, positionValue float64, currentPositions int, isExit bool) Decision {
	if isExit {
		return allow(ReasonExit, "exits are always allowed")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.validateGuardrailsLocked(balance, positionValue, currentPositions)
}

func (e *RiskEngine) validateGuardrailsLocked(balance, positionValue float64, currentPositions int) Decision {
	e.rolloverLocked()

	if e.killSwitch.Active {
		return block(ReasonKillSwitch, "kill switch active: %s", e.killSwitch.Reason)
	}

	if !(balance > 0) || !utils.IsFinite(balance) {
		return block(ReasonInvalidInput, "balance must be positive, got %v", balance)
	}
	if positionValue < 0 || !utils.IsFinite(positionValue) {
		return block(ReasonInvalidInput, "position value must be non-negative, got %v", positionValue)
	}

	ratio := positionValue / balance
	if ratio-e.config.MaxTradeValuePct > ratioEpsilon {
		return block(ReasonTradeValueCap,
			"position value %.2f is %s of balance %.2f, exceeds %s per-trade cap",
			positionValue, formatPct(ratio), balance, formatPct(e.config.MaxTradeValuePct))
	}

	if e.dailyLoss >= e.config.DailyLossLimit {
		reason := "daily loss " + formatPct(e.dailyLoss) + " reached limit " + formatPct(e.config.DailyLossLimit)
		e.activateKillSwitchLocked(reason)
		return block(ReasonDailyLoss, "%s", reason)
	}

	if currentPositions >= e.config.MaxOpenPositions {
		return block(ReasonMaxPositions, "%d open positions, max %d", currentPositions, e.config.MaxOpenPositions)
	}

	return allow(ReasonAllowed, "")
}

// formatPct: 0.05 -> "5%", 0.125 -> "12.5%"
func formatPct(f float64) string {
	// убираем хвосты float (5.000000000001)
	v := math.Round(f*100*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}
