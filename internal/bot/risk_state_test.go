package bot

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futuresbot/internal/models"
)

func TestUpdateDrawdown(t *testing.T) {
	e, _ := newTestRisk(t, nil)

	assert.Equal(t, 1.0, e.UpdateDrawdown(10000))
	assert.Equal(t, 1.0, e.UpdateDrawdown(9000))
	assert.InDelta(t, 0.10, e.Snapshot().CurrentDrawdown, 1e-12)

	// повторный вызов с тем же балансом ничего не меняет
	e.UpdateDrawdown(9000)
	s := e.Snapshot()
	assert.InDelta(t, 0.10, s.CurrentDrawdown, 1e-12)
	assert.Equal(t, 10000.0, s.PeakBalance)

	assert.Equal(t, 0.75, e.UpdateDrawdown(8500))
	assert.Equal(t, 0.5, e.UpdateDrawdown(8000))

	// новый пик сбрасывает просадку
	assert.Equal(t, 1.0, e.UpdateDrawdown(11000))
	s = e.Snapshot()
	assert.Zero(t, s.CurrentDrawdown)
	assert.Equal(t, 11000.0, s.PeakBalance)
}

func TestUpdateDrawdown_IgnoresInvalidBalance(t *testing.T) {
	e, _ := newTestRisk(t, nil)
	e.UpdateDrawdown(10000)
	e.UpdateDrawdown(8000)

	assert.Equal(t, 0.5, e.UpdateDrawdown(math.NaN()))
	assert.InDelta(t, 0.20, e.Snapshot().CurrentDrawdown, 1e-12)

	e.UpdateDrawdown(-5)
	assert.Equal(t, 1.0, e.Snapshot().CurrentDrawdown)
}

func TestDrawdownMultiplier(t *testing.T) {
	tests := []struct {
		dd   float64
		want float64
	}{
		{0, 1}, {0.1499, 1}, {0.15, 0.75}, {0.1999, 0.75}, {0.20, 0.5}, {0.9, 0.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, drawdownMultiplier(tt.dd), "dd=%v", tt.dd)
	}
}

func TestRecordTradeOutcome_Streaks(t *testing.T) {
	e, _ := newTestRisk(t, nil)

	recordOutcomes(e, 10, 20, 5)
	s := e.Snapshot()
	assert.Equal(t, 3, s.WinStreak)
	assert.Zero(t, s.LossStreak)

	recordOutcomes(e, -5)
	s = e.Snapshot()
	assert.Zero(t, s.WinStreak)
	assert.Equal(t, 1, s.LossStreak)

	recordOutcomes(e, 0)
	s = e.Snapshot()
	assert.Zero(t, s.WinStreak)
	assert.Zero(t, s.LossStreak)

	assert.Equal(t, 3, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 35.0, s.TotalProfit, 1e-12)
	assert.InDelta(t, 5.0, s.TotalLoss, 1e-12)
	assert.InDelta(t, 0.75, s.WinRate(), 1e-12)
}

func TestRecordTradeOutcome_PctSign(t *testing.T) {
	e, _ := newTestRisk(t, nil)
	e.RecordTradeOutcome(TradeOutcome{Symbol: "ETHUSDT", PnLPct: -0.01})

	s := e.Snapshot()
	assert.Equal(t, 1, s.LossStreak)
	assert.Equal(t, []float64{-0.01}, s.RecentTrades)
}

// серии взаимоисключающие для любой последовательности
func TestRecordTradeOutcome_StreaksExclusive(t *testing.T) {
	e, _ := newTestRisk(t, nil)
	seq := []float64{1, -1, -2, 3, 0, 0, 4, 5, -6, 7, -8, -9, -10, 0, 11}

	for _, p := range seq {
		recordOutcomes(e, p)
		s := e.Snapshot()
		if s.WinStreak > 0 && s.LossStreak > 0 {
			t.Fatalf("both streaks positive after %v: %+v", p, s)
		}
	}
}

func TestRecordTradeOutcome_RecentCap(t *testing.T) {
	e, _ := newTestRisk(t, nil)
	for i := 1; i <= 15; i++ {
		recordOutcomes(e, float64(i))
	}

	recent := e.Snapshot().RecentTrades
	require.Len(t, recent, 10)
	assert.Equal(t, 6.0, recent[0])
	assert.Equal(t, 15.0, recent[9])
}

func TestDailyRollover(t *testing.T) {
	e, clock := newTestRisk(t, nil)
	e.UpdateDrawdown(1000)
	recordOutcomes(e, -30)

	s := e.Snapshot()
	assert.InDelta(t, 0.03, s.DailyLoss, 1e-12)
	assert.Equal(t, "2024-03-15", s.TradingDate)

	clock.Advance(14 * time.Hour) // 2024-03-16 00:00 UTC
	e.UpdateDrawdown(970)

	s = e.Snapshot()
	assert.Zero(t, s.DailyLoss)
	assert.Equal(t, "2024-03-16", s.TradingDate)
	assert.Equal(t, 970.0, s.DailyStartBalance)

	recordOutcomes(e, -97)
	assert.InDelta(t, 0.10, e.Snapshot().DailyLoss, 1e-12)
}

func TestDailyLoss_WithoutStartBalance(t *testing.T) {
	e, _ := newTestRisk(t, nil)
	recordOutcomes(e, -100)
	assert.Zero(t, e.Snapshot().DailyLoss)
}

func TestSaveLoadState(t *testing.T) {
	e, _ := newTestRisk(t, nil)
	e.UpdateDrawdown(10000)
	e.UpdateDrawdown(9000)
	recordOutcomes(e, 50, -100, -100)
	e.ActivateKillSwitch("manual")

	store := &memStore{}
	require.NoError(t, e.SaveState(context.Background(), store))
	assert.Equal(t, 1, store.saves)

	restored, _ := newTestRisk(t, nil)
	require.NoError(t, restored.LoadState(context.Background(), store))

	want := e.Snapshot()
	got := restored.Snapshot()
	assert.Equal(t, want.PeakBalance, got.PeakBalance)
	assert.Equal(t, want.CurrentDrawdown, got.CurrentDrawdown)
	assert.Equal(t, want.DailyLoss, got.DailyLoss)
	assert.Equal(t, want.TradingDate, got.TradingDate)
	assert.Equal(t, 2, got.LossStreak)
	assert.Equal(t, want.RecentTrades, got.RecentTrades)
	assert.Equal(t, 1, got.Wins)
	assert.Equal(t, 2, got.Losses)
	assert.True(t, got.KillSwitchActive)
	assert.Equal(t, "manual", got.KillSwitchReason)
}

func TestLoadState_Empty(t *testing.T) {
	e, _ := newTestRisk(t, nil)
	require.NoError(t, e.LoadState(context.Background(), &memStore{}))
	assert.Zero(t, e.Snapshot().PeakBalance)
}

func TestLoadState_StaleTradingDate(t *testing.T) {
	store := &memStore{state: &models.RiskState{
		PeakBalance:       5000,
		DailyLoss:         0.08,
		DailyStartBalance: 5000,
		TradingDate:       "2024-03-14",
		RecentTrades:      []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		WinStreak:         2,
		LossStreak:        3,
	}}

	e, _ := newTestRisk(t, nil)
	require.NoError(t, e.LoadState(context.Background(), store))

	s := e.Snapshot()
	assert.Zero(t, s.DailyLoss)
	assert.Equal(t, "2024-03-15", s.TradingDate)
	assert.Len(t, s.RecentTrades, 10)
	assert.Equal(t, 3.0, s.RecentTrades[0])
	// поврежденные серии обнуляются
	assert.Zero(t, s.WinStreak)
	assert.Zero(t, s.LossStreak)
}

type failingStore struct{ err error }

func (f failingStore) SaveRiskState(context.Context, *models.RiskState) error { return f.err }
func (f failingStore) LoadRiskState(context.Context) (*models.RiskState, error) {
	return nil, f.err
}

func TestStateStoreErrors(t *testing.T) {
	e, _ := newTestRisk(t, nil)
	boom := errors.New("disk full")

	err := e.SaveState(context.Background(), failingStore{boom})
	assert.ErrorIs(t, err, boom)

	err = e.LoadState(context.Background(), failingStore{boom})
	assert.ErrorIs(t, err, boom)
}
