package models

import "time"

// RiskState - сохраняемое состояние риск-движка аккаунта.
//
// Переживает рестарт процесса. После загрузки движок обязан
// повторно проверить смену торгового дня (TradingDate).
type RiskState struct {
	PeakBalance       float64 `json:"peak_balance" db:"peak_balance"`
	CurrentDrawdown   float64 `json:"current_drawdown" db:"current_drawdown"`
	DailyLoss         float64 `json:"daily_loss" db:"daily_loss"`
	DailyStartBalance float64 `json:"daily_start_balance" db:"daily_start_balance"`
	TradingDate       string  `json:"trading_date" db:"trading_date"` // YYYY-MM-DD (UTC)

	WinStreak    int       `json:"win_streak" db:"win_streak"`
	LossStreak   int       `json:"loss_streak" db:"loss_streak"`
	RecentTrades []float64 `json:"recent_trades" db:"recent_trades"`

	Wins        int     `json:"wins" db:"wins"`
	Losses      int     `json:"losses" db:"losses"`
	TotalProfit float64 `json:"total_profit" db:"total_profit"`
	TotalLoss   float64 `json:"total_loss" db:"total_loss"`

	KillSwitchActive bool       `json:"kill_switch_active" db:"kill_switch_active"`
	KillSwitchReason string     `json:"kill_switch_reason,omitempty" db:"kill_switch_reason"`
	KillSwitchAt     *time.Time `json:"kill_switch_at,omitempty" db:"kill_switch_at"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// WinRate возвращает долю прибыльных сделок за все время (0 если сделок нет)
func (s *RiskState) WinRate() float64 {
	total := s.Wins + s.Losses
	if total == 0 {
		return 0
	}
	return float64(s.Wins) / float64(total)
}
