package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"futuresbot/internal/models"
)

// Ошибки репозитория состояния риска
var (
	ErrRiskStateNotFound = errors.New("risk state not found")
)

// RiskStateRepository - состояние риск-движка в таблице risk_state.
// Всегда одна запись с id=1.
type RiskStateRepository struct {
	db *sql.DB
}

// NewRiskStateRepository создает новый экземпляр репозитория
func NewRiskStateRepository(db *sql.DB) *RiskStateRepository {
	return &RiskStateRepository{db: db}
}

// SaveRiskState сохраняет состояние (upsert id=1)
func (r *RiskStateRepository) SaveRiskState(ctx context.Context, s *models.RiskState) error {
	recent, err := json.Marshal(s.RecentTrades)
	if err != nil {
		return err
	}
	if s.RecentTrades == nil {
		recent = []byte("[]")
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}

	query := `
		INSERT INTO risk_state (id, peak_balance, current_drawdown, daily_loss, daily_start_balance, trading_date,
			win_streak, loss_streak, recent_trades, wins, losses, total_profit, total_loss,
			kill_switch_active, kill_switch_reason, kill_switch_at, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			peak_balance = excluded.peak_balance,
			current_drawdown = excluded.current_drawdown,
			daily_loss = excluded.daily_loss,
			daily_start_balance = excluded.daily_start_balance,
			trading_date = excluded.trading_date,
			win_streak = excluded.win_streak,
			loss_streak = excluded.loss_streak,
			recent_trades = excluded.recent_trades,
			wins = excluded.wins,
			losses = excluded.losses,
			total_profit = excluded.total_profit,
			total_loss = excluded.total_loss,
			kill_switch_active = excluded.kill_switch_active,
			kill_switch_reason = excluded.kill_switch_reason,
			kill_switch_at = excluded.kill_switch_at,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		s.PeakBalance,
		s.CurrentDrawdown,
		s.DailyLoss,
		s.DailyStartBalance,
		s.TradingDate,
		s.WinStreak,
		s.LossStreak,
		string(recent),
		s.Wins,
		s.Losses,
		s.TotalProfit,
		s.TotalLoss,
		s.KillSwitchActive,
		s.KillSwitchReason,
		s.KillSwitchAt,
		s.UpdatedAt,
	)
	return err
}

// Get возвращает сохраненное состояние или ErrRiskStateNotFound
func (r *RiskStateRepository) Get(ctx context.Context) (*models.RiskState, error) {
	query := `
		SELECT peak_balance, current_drawdown, daily_loss, daily_start_balance, trading_date,
			win_streak, loss_streak, recent_trades, wins, losses, total_profit, total_loss,
			kill_switch_active, kill_switch_reason, kill_switch_at, updated_at
		FROM risk_state
		WHERE id = 1`

	s := &models.RiskState{}
	var (
		recent string
		killAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query).Scan(
		&s.PeakBalance,
		&s.CurrentDrawdown,
		&s.DailyLoss,
		&s.DailyStartBalance,
		&s.TradingDate,
		&s.WinStreak,
		&s.LossStreak,
		&recent,
		&s.Wins,
		&s.Losses,
		&s.TotalProfit,
		&s.TotalLoss,
		&s.KillSwitchActive,
		&s.KillSwitchReason,
		&killAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRiskStateNotFound
		}
		return nil, err
	}

	if recent != "" {
		if err := json.Unmarshal([]byte(recent), &s.RecentTrades); err != nil {
			return nil, err
		}
	}
	if killAt.Valid {
		at := killAt.Time
		s.KillSwitchAt = &at
	}
	return s, nil
}

// LoadRiskState возвращает (nil, nil), если состояние еще не сохранялось
func (r *RiskStateRepository) LoadRiskState(ctx context.Context) (*models.RiskState, error) {
	s, err := r.Get(ctx)
	if errors.Is(err, ErrRiskStateNotFound) {
		return nil, nil
	}
	return s, err
}
