package bot

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futuresbot/internal/models"
)

func TestValidateTradeGuardrails_TradeValueCap(t *testing.T) {
	e, _ := newTestRisk(t, nil)

	d := e.ValidateTradeGuardrails(1000, 60, 0, false)
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonTradeValueCap, d.Reason.Code)
	assert.Contains(t, d.Reason.Detail, "5%")
	assert.Contains(t, d.Reason.Detail, "6%")

	// ровно на лимите - разрешено
	d = e.ValidateTradeGuardrails(1000, 50, 0, false)
	assert.True(t, d.Allowed, d.String())

	// выход разрешен всегда
	d = e.ValidateTradeGuardrails(1000, 60, 0, true)
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonExit, d.Reason.Code)
}

func TestValidateTradeGuardrails_InvalidInput(t *testing.T) {
	tests := []struct {
		name           string
		balance, value float64
	}{
		{"zero balance", 0, 10},
		{"negative balance", -100, 10},
		{"nan balance", math.NaN(), 10},
		{"inf balance", math.Inf(1), 10},
		{"negative value", 1000, -1},
		{"nan value", 1000, math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestRisk(t, nil)
			d := e.ValidateTradeGuardrails(tt.balance, tt.value, 0, false)
			assert.False(t, d.Allowed)
			assert.Equal(t, ReasonInvalidInput, d.Reason.Code)
		})
	}
}

func TestValidateTradeGuardrails_MaxPositions(t *testing.T) {
	e, _ := newTestRisk(t, nil)

	assert.True(t, e.ValidateTradeGuardrails(1000, 10, 9, false).Allowed)

	d := e.ValidateTradeGuardrails(1000, 10, 10, false)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonMaxPositions, d.Reason.Code)

	// на выход лимит не действует
	assert.True(t, e.ValidateTradeGuardrails(1000, 10, 10, true).Allowed)
}

func TestValidateTradeGuardrails_DailyLossActivatesKillSwitch(t *testing.T) {
	e, _ := newTestRisk(t, nil)
	e.UpdateDrawdown(1000)
	recordOutcomes(e, -100) // 10% от стартового баланса дня

	d := e.ValidateTradeGuardrails(900, 10, 0, false)
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonDailyLoss, d.Reason.Code)

	active, reason := e.KillSwitch()
	assert.True(t, active)
	assert.Contains(t, reason, "10%")
	assert.True(t, containsString(drainTypes(e.notificationChan), models.NotificationTypeKillSwitch))

	// дальше блокирует сам kill switch
	d = e.ValidateTradeGuardrails(900, 10, 0, false)
	assert.Equal(t, ReasonKillSwitch, d.Reason.Code)
	assert.True(t, e.ValidateTradeGuardrails(900, 10, 0, true).Allowed)
}

func TestValidateTradeGuardrails_BelowDailyLimit(t *testing.T) {
	e, _ := newTestRisk(t, nil)
	e.UpdateDrawdown(1000)
	recordOutcomes(e, -50, -40)

	assert.True(t, e.ValidateTradeGuardrails(910, 10, 0, false).Allowed)
	active, _ := e.KillSwitch()
	assert.False(t, active)
}

func TestKillSwitch_RolloverKeepsSwitch(t *testing.T) {
	e, clock := newTestRisk(t, nil)
	e.UpdateDrawdown(1000)
	recordOutcomes(e, -150)
	require.False(t, e.ValidateTradeGuardrails(850, 10, 0, false).Allowed)

	clock.Advance(24 * time.Hour)

	d := e.ValidateTradeGuardrails(850, 10, 0, false)
	assert.Equal(t, ReasonKillSwitch, d.Reason.Code)
	assert.Zero(t, e.Snapshot().DailyLoss)

	e.DeactivateKillSwitch()
	assert.True(t, e.ValidateTradeGuardrails(850, 10, 0, false).Allowed)
}

func TestKillSwitch_ManualActivation(t *testing.T) {
	e, _ := newTestRisk(t, nil)

	e.ActivateKillSwitch("operator")
	e.ActivateKillSwitch("second")

	active, reason := e.KillSwitch()
	assert.True(t, active)
	assert.Equal(t, "operator", reason)

	s := e.Snapshot()
	require.NotNil(t, s.KillSwitchAt)
	assert.Equal(t, testNow, *s.KillSwitchAt)

	e.DeactivateKillSwitch()
	active, reason = e.KillSwitch()
	assert.False(t, active)
	assert.Empty(t, reason)

	types := drainTypes(e.notificationChan)
	assert.Equal(t, []string{models.NotificationTypeKillSwitch, models.NotificationTypeKillSwitch}, types)
}

func TestFormatPct(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.05, "5%"},
		{0.125, "12.5%"},
		{0.1, "10%"},
		{0.0001, "0.01%"},
		{0, "0%"},
	}
	for _, tt := range tests {
		if got := formatPct(tt.in); got != tt.want {
			t.Errorf("formatPct(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecisionString(t *testing.T) {
	d := block(ReasonMaxPositions, "%d open", 10)
	assert.Equal(t, "blocked (MAX_POSITIONS: 10 open)", d.String())
	assert.True(t, strings.HasPrefix(allow(ReasonAllowed, "").String(), "allowed"))
}
