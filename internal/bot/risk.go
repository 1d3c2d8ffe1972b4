package bot

import (
	"fmt"
	"sync"
	"time"

	"futuresbot/internal/models"
	"futuresbot/pkg/utils"
)

// RiskEngine - риск-движок аккаунта
//
// Функции:
// - Размер позиции от риска на сделку и дистанции стопа
// - Плечо от волатильности, уверенности сигнала и истории сделок
// - Kelly-доля риска с жестким потолком
// - Единый гардрейл перед открытием сделки и kill switch
// - Учет просадки, серий, дневного убытка и концентрации по группам
//
// Владеет единственным мьютексом, который разделяет с PositionLedger.
// Методы с суффиксом Locked требуют, чтобы мьютекс уже был захвачен.
type RiskEngine struct {
	mu sync.Mutex

	config  RiskConfig
	groupOf map[string]string // базовый актив -> группа корреляции

	// Канал для уведомлений (аудит отказов и kill switch)
	notificationChan chan *models.Notification

	now func() time.Time
	log *utils.Logger

	// Просадка
	peakBalance     float64
	currentDrawdown float64
	lastBalance     float64

	// Серии и статистика
	winStreak    int
	lossStreak   int
	recentTrades []float64
	wins         int
	losses       int
	totalProfit  float64
	totalLoss    float64

	// Дневной убыток
	dailyLoss         float64
	dailyStartBalance float64
	tradingDate       string

	killSwitch KillSwitchState
}

// KillSwitchState - явный флаг остановки торговли
type KillSwitchState struct {
	Active      bool       `json:"active"`
	Reason      string     `json:"reason,omitempty"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}

// RiskConfig - конфигурация риск-движка. Не меняется во время работы.
type RiskConfig struct {
	// Максимальная стоимость позиции в USDT
	MaxPositionSize float64 `yaml:"max_position_size"`

	// Риск на сделку как доля баланса (0.02 = 2%)
	RiskPerTrade float64 `yaml:"risk_per_trade"`

	// Максимум одновременно открытых позиций
	MaxOpenPositions int `yaml:"max_open_positions"`

	// Потолок маржи одной сделки как доля баланса
	MaxTradeValuePct float64 `yaml:"max_trade_value_pct"`

	// Дневной лимит убытка как доля стартового баланса дня
	DailyLossLimit float64 `yaml:"daily_loss_limit"`

	// Границы плеча
	MinLeverage int `yaml:"min_leverage"`
	MaxLeverage int `yaml:"max_leverage"`

	// Границы Kelly-доли
	KellyMin           float64 `yaml:"kelly_min"`
	KellyMax           float64 `yaml:"kelly_max"`
	UseFractionalKelly bool    `yaml:"use_fractional_kelly"`

	// Минимальный запас маржи (множитель от required margin)
	// Например, 1.5 означает что нужно 150% от минимально необходимой маржи
	MinMarginBuffer float64 `yaml:"min_margin_buffer"`

	// Лимиты концентрации: для определенных групп и для "other"
	ConcentrationLimit      float64 `yaml:"concentration_limit"`
	OtherConcentrationLimit float64 `yaml:"other_concentration_limit"`
	MinGroupPositions       int     `yaml:"min_group_positions"`

	// Группы корреляции: имя -> базовые активы
	CorrelationGroups map[string][]string `yaml:"correlation_groups"`

	// Емкость окна последних сделок
	RecentTradesCap int `yaml:"recent_trades_cap"`
}

// DefaultRiskConfig возвращает конфигурацию по умолчанию
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxPositionSize:         10000,
		RiskPerTrade:            0.02,
		MaxOpenPositions:        10,
		MaxTradeValuePct:        0.05,
		DailyLossLimit:          0.10,
		MinLeverage:             3,
		MaxLeverage:             20,
		KellyMin:                0.005,
		KellyMax:                0.035,
		UseFractionalKelly:      true,
		MinMarginBuffer:         1.5,
		ConcentrationLimit:      0.40,
		OtherConcentrationLimit: 0.70,
		MinGroupPositions:       2,
		CorrelationGroups:       DefaultCorrelationGroups(),
		RecentTradesCap:         10,
	}
}

// Validate проверяет конфигурацию
func (c RiskConfig) Validate() error {
	switch {
	case c.MaxPositionSize <= 0:
		return fmt.Errorf("max_position_size must be positive, got %v", c.MaxPositionSize)
	case c.RiskPerTrade <= 0 || c.RiskPerTrade >= 1:
		return fmt.Errorf("risk_per_trade must be in (0,1), got %v", c.RiskPerTrade)
	case c.MaxOpenPositions <= 0:
		return fmt.Errorf("max_open_positions must be positive, got %d", c.MaxOpenPositions)
	case c.MaxTradeValuePct <= 0 || c.MaxTradeValuePct > 1:
		return fmt.Errorf("max_trade_value_pct must be in (0,1], got %v", c.MaxTradeValuePct)
	case c.DailyLossLimit <= 0 || c.DailyLossLimit > 1:
		return fmt.Errorf("daily_loss_limit must be in (0,1], got %v", c.DailyLossLimit)
	case c.MinLeverage < 1 || c.MaxLeverage < c.MinLeverage:
		return fmt.Errorf("leverage bounds invalid: [%d,%d]", c.MinLeverage, c.MaxLeverage)
	case c.KellyMin <= 0 || c.KellyMax < c.KellyMin:
		return fmt.Errorf("kelly bounds invalid: [%v,%v]", c.KellyMin, c.KellyMax)
	case c.MinMarginBuffer < 1:
		return fmt.Errorf("min_margin_buffer must be >= 1, got %v", c.MinMarginBuffer)
	case c.ConcentrationLimit <= 0 || c.ConcentrationLimit > 1:
		return fmt.Errorf("concentration_limit must be in (0,1], got %v", c.ConcentrationLimit)
	case c.OtherConcentrationLimit <= 0 || c.OtherConcentrationLimit > 1:
		return fmt.Errorf("other_concentration_limit must be in (0,1], got %v", c.OtherConcentrationLimit)
	case c.RecentTradesCap <= 0:
		return fmt.Errorf("recent_trades_cap must be positive, got %d", c.RecentTradesCap)
	}
	return nil
}

// NewRiskEngine создает риск-движок.
// notifChan может быть nil: тогда уведомления не отправляются.
func NewRiskEngine(config RiskConfig, notifChan chan *models.Notification) *RiskEngine {
	if config.RecentTradesCap <= 0 {
		config.RecentTradesCap = 10
	}
	if config.MinGroupPositions <= 0 {
		config.MinGroupPositions = 2
	}
	if config.CorrelationGroups == nil {
		config.CorrelationGroups = DefaultCorrelationGroups()
	}

	e := &RiskEngine{
		config:           config,
		groupOf:          indexGroups(config.CorrelationGroups),
		notificationChan: notifChan,
		now:              time.Now,
		log:              utils.L().WithComponent("risk"),
		recentTrades:     make([]float64, 0, config.RecentTradesCap),
	}
	e.tradingDate = utils.TradingDate(e.now())
	return e
}

// SetClock подменяет источник времени (тесты, бэктест)
func (e *RiskEngine) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

// SetLogger устанавливает логгер
func (e *RiskEngine) SetLogger(l *utils.Logger) {
	e.mu.Lock()
	e.log = l.WithComponent("risk")
	e.mu.Unlock()
}

// Config возвращает копию конфигурации
func (e *RiskEngine) Config() RiskConfig {
	return e.config
}

// ============================================================
// Kill switch
// ============================================================

// ActivateKillSwitch включает kill switch. Повторная активация сохраняет первую причину.
func (e *RiskEngine) ActivateKillSwitch(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activateKillSwitchLocked(reason)
}

func (e *RiskEngine) activateKillSwitchLocked(reason string) {
	if e.killSwitch.Active {
		return
	}
	at := e.now()
	e.killSwitch = KillSwitchState{Active: true, Reason: reason, ActivatedAt: &at}
	SetKillSwitch(true)

	e.log.Warn("kill switch activated", utils.Reason(reason))
	e.notifyLocked(models.NewNotification(
		models.NotificationTypeKillSwitch, models.SeverityError, "",
		"Kill switch activated: "+reason,
	).WithMeta("active", true))
}

// DeactivateKillSwitch выключает kill switch
func (e *RiskEngine) DeactivateKillSwitch() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.killSwitch.Active {
		return
	}
	prev := e.killSwitch.Reason
	e.killSwitch = KillSwitchState{}
	SetKillSwitch(false)

	e.log.Info("kill switch deactivated", utils.String("previous_reason", prev))
	e.notifyLocked(models.NewNotification(
		models.NotificationTypeKillSwitch, models.SeverityInfo, "",
		"Kill switch deactivated",
	).WithMeta("active", false).WithMeta("previous_reason", prev))
}

// KillSwitch возвращает состояние kill switch
func (e *RiskEngine) KillSwitch() (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.killSwitch.Active, e.killSwitch.Reason
}

// ============================================================
// Уведомления
// ============================================================

func (e *RiskEngine) notifyLocked(n *models.Notification) {
	enqueueNotification(e.notificationChan, n)
}

func (e *RiskEngine) notifyRejection(symbol string, d Decision) {
	RecordGuardrailRejection(d.Reason.Code)
	e.log.Info("trade blocked",
		utils.Symbol(symbol),
		utils.String("code", string(d.Reason.Code)),
		utils.Reason(d.Reason.Detail),
	)
	e.notifyLocked(models.NewNotification(
		models.NotificationTypeGuardrail, models.SeverityWarn, symbol,
		d.Reason.String(),
	).WithMeta("code", string(d.Reason.Code)))
}
