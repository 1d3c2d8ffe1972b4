package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики риск-движка и позиций
// ============================================================
//
// Экспортируются через /metrics (internal/api).
// Gauge-метрики состояния обновляются при каждом изменении RiskEngine.

// ============ Метрики риска ============

// GuardrailRejections - отказы гардрейлов по коду причины
var GuardrailRejections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "futuresbot",
		Subsystem: "risk",
		Name:      "guardrail_rejections_total",
		Help:      "Number of trade openings blocked by guardrails",
	},
	[]string{"reason"},
)

// KillSwitchActive - состояние kill switch (1=активен)
var KillSwitchActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "futuresbot",
		Subsystem: "risk",
		Name:      "kill_switch_active",
		Help:      "Kill switch state (1=active, 0=inactive)",
	},
)

// CurrentDrawdown - текущая просадка от пика (0..1)
var CurrentDrawdown = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "futuresbot",
		Subsystem: "risk",
		Name:      "drawdown_ratio",
		Help:      "Current drawdown from peak balance",
	},
)

// PeakBalance - пиковый баланс аккаунта
var PeakBalance = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "futuresbot",
		Subsystem: "risk",
		Name:      "peak_balance_usdt",
		Help:      "Peak account balance in USDT",
	},
)

// DailyLoss - дневной убыток как доля стартового баланса дня
var DailyLoss = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "futuresbot",
		Subsystem: "risk",
		Name:      "daily_loss_ratio",
		Help:      "Realized loss today as a fraction of the day start balance",
	},
)

// LeverageChosen - выбранное плечо
var LeverageChosen = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "futuresbot",
		Subsystem: "risk",
		Name:      "leverage_chosen",
		Help:      "Leverage recommended by the risk engine",
		Buckets:   []float64{3, 5, 7, 10, 12, 14, 16, 18, 20},
	},
)

// KellyFraction - последняя рассчитанная доля Kelly
var KellyFraction = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "futuresbot",
		Subsystem: "risk",
		Name:      "kelly_fraction",
		Help:      "Last computed Kelly risk fraction",
	},
)

// ============ Метрики позиций ============

// OpenPositions - текущее количество позиций в реестре (включая pending)
var OpenPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "futuresbot",
		Subsystem: "positions",
		Name:      "open",
		Help:      "Current number of tracked positions",
	},
)

// PositionsClosed - закрытые позиции по причине
var PositionsClosed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "futuresbot",
		Subsystem: "positions",
		Name:      "closed_total",
		Help:      "Number of closed positions by close reason",
	},
	[]string{"reason"},
)

// TradesTotal - сделки по результату
var TradesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "futuresbot",
		Subsystem: "positions",
		Name:      "trades_total",
		Help:      "Total number of finished trades",
	},
	[]string{"result"}, // win, loss, breakeven
)

// RealizedPnl - реализованный PNL (может уменьшаться)
var RealizedPnl = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "futuresbot",
		Subsystem: "positions",
		Name:      "realized_pnl_usdt",
		Help:      "Realized PnL since process start in USDT",
	},
)

// ============ Метрики производительности ============

// LoopDuration - длительность итерации циклов монитора и сканера
var LoopDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "futuresbot",
		Subsystem: "engine",
		Name:      "loop_duration_ms",
		Help:      "Duration of a monitor/scanner iteration in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	},
	[]string{"loop"},
)

// GatewayLatency - латентность вызовов биржи
var GatewayLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "futuresbot",
		Subsystem: "exchange",
		Name:      "call_latency_ms",
		Help:      "Exchange gateway call latency in milliseconds",
		Buckets:   []float64{10, 50, 100, 200, 500, 1000, 2000, 5000},
	},
	[]string{"op", "result"},
)

// BufferOverflows - переполнения буферов каналов
var BufferOverflows = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "futuresbot",
		Subsystem: "engine",
		Name:      "buffer_overflows_total",
		Help:      "Number of channel buffer overflows (events dropped)",
	},
	[]string{"buffer"},
)

// BufferBacklog - заполненность буфера в момент переполнения
var BufferBacklog = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "futuresbot",
		Subsystem: "engine",
		Name:      "buffer_backlog_ratio",
		Help:      "Channel fill ratio observed on overflow",
	},
	[]string{"buffer"},
)

// ============ Вспомогательные функции ============

// RecordGuardrailRejection записывает отказ гардрейла
func RecordGuardrailRejection(code ReasonCode) {
	GuardrailRejections.WithLabelValues(string(code)).Inc()
}

// SetKillSwitch обновляет gauge kill switch
func SetKillSwitch(active bool) {
	if active {
		KillSwitchActive.Set(1)
	} else {
		KillSwitchActive.Set(0)
	}
}

// UpdateRiskGauges обновляет метрики состояния риска
func UpdateRiskGauges(peak, drawdown, dailyLoss float64) {
	PeakBalance.Set(peak)
	CurrentDrawdown.Set(drawdown)
	DailyLoss.Set(dailyLoss)
}

// RecordClose записывает закрытие позиции
func RecordClose(reason CloseReason, pnl float64) {
	PositionsClosed.WithLabelValues(string(reason)).Inc()
	RealizedPnl.Add(pnl)
}

// RecordTradeResult записывает результат сделки
func RecordTradeResult(pnl float64) {
	switch {
	case pnl > 0:
		TradesTotal.WithLabelValues("win").Inc()
	case pnl < 0:
		TradesTotal.WithLabelValues("loss").Inc()
	default:
		TradesTotal.WithLabelValues("breakeven").Inc()
	}
}

// RecordGatewayCall записывает латентность вызова биржи
func RecordGatewayCall(op string, latencyMs float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	GatewayLatency.WithLabelValues(op, result).Observe(latencyMs)
}

// RecordBufferOverflow записывает переполнение буфера
func RecordBufferOverflow(bufferName string) {
	BufferOverflows.WithLabelValues(bufferName).Inc()
}

// RecordBufferBacklog записывает заполненность буфера
func RecordBufferBacklog(bufferName string, capacity, length int) {
	if capacity <= 0 {
		return
	}
	BufferBacklog.WithLabelValues(bufferName).Set(float64(length) / float64(capacity))
}
