package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"futuresbot/internal/exchange"
	"futuresbot/internal/models"
	"futuresbot/pkg/retry"
	"futuresbot/pkg/utils"
)

// SignalSource - внешний генератор сигналов (индикаторы + сигнал)
type SignalSource interface {
	Analyze(ctx context.Context, symbol string) (*models.Indicators, *models.SignalResult, error)
}

// TradeJournal - журнал закрытых сделок
type TradeJournal interface {
	SaveTrade(ctx context.Context, trade *models.TradeRecord) error
}

// EventHub - интерфейс для отправки состояния клиентам
//
// Реализуется пакетом internal/websocket/Hub
type EventHub interface {
	// BroadcastPositions отправляет снимок позиций (каждую итерацию монитора)
	BroadcastPositions(positions []PositionSnapshot)

	// BroadcastRiskState отправляет состояние риска
	BroadcastRiskState(state models.RiskState)
}

// EngineConfig - параметры циклов
type EngineConfig struct {
	Symbols []string

	MonitorInterval   time.Duration
	ScanInterval      time.Duration
	ScannerStartDelay time.Duration // обязательная пауза сканера после старта
	GatewayTimeout    time.Duration

	TrailingPct     float64 // базовый трейлинг
	MinConfidence   float64 // минимальная уверенность сигнала для входа
	RiskRewardRatio float64 // тейк-профит = ширина стопа × RR
}

// DefaultEngineConfig возвращает параметры по умолчанию
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MonitorInterval:   time.Second,
		ScanInterval:      30 * time.Second,
		ScannerStartDelay: 10 * time.Second,
		GatewayTimeout:    10 * time.Second,
		TrailingPct:       0.02,
		MinConfidence:     0.55,
		RiskRewardRatio:   2.0,
	}
}

// ErrEngineRunning - повторный Start
var ErrEngineRunning = errors.New("engine already running")

// Engine - оркестратор: сканер рынка открывает сделки через RiskEngine
// и PositionLedger, монитор позиций закрывает их.
//
// Приоритет монитора: он стартует первым и останавливается последним,
// сканер ждет ScannerStartDelay перед первой итерацией.
type Engine struct {
	gw      exchange.Gateway
	signals SignalSource
	risk    *RiskEngine
	ledger  *PositionLedger

	store   StateStore
	journal TradeJournal
	hub     EventHub

	notificationChan chan *models.Notification

	cfg EngineConfig
	log *utils.Logger
	now func() time.Time

	started        atomic.Bool
	monitorRunning atomic.Bool
	scannerRunning atomic.Bool
	monitorDone    chan struct{}
	scannerDone    chan struct{}

	// сериализует закрытия одного символа из монитора и API
	closeMu sync.Mutex
	closing map[string]bool
}

// NewEngine создает Engine
func NewEngine(
	gw exchange.Gateway,
	signals SignalSource,
	risk *RiskEngine,
	ledger *PositionLedger,
	notifChan chan *models.Notification,
	cfg EngineConfig,
) *Engine {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = time.Second
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 30 * time.Second
	}
	return &Engine{
		gw:               gw,
		signals:          signals,
		risk:             risk,
		ledger:           ledger,
		notificationChan: notifChan,
		cfg:              cfg,
		log:              utils.L().WithComponent("engine"),
		now:              time.Now,
		closing:          make(map[string]bool),
	}
}

// SetStateStore подключает хранилище состояния риска
func (e *Engine) SetStateStore(s StateStore) { e.store = s }

// SetJournal подключает журнал сделок
func (e *Engine) SetJournal(j TradeJournal) { e.journal = j }

// SetHub подключает websocket hub
func (e *Engine) SetHub(h EventHub) { e.hub = h }

// Risk возвращает риск-движок
func (e *Engine) Risk() *RiskEngine { return e.risk }

// Ledger возвращает реестр позиций
func (e *Engine) Ledger() *PositionLedger { return e.ledger }

// Running сообщает, запущены ли циклы
func (e *Engine) Running() bool { return e.started.Load() }

// ============================================================
// Запуск и остановка
// ============================================================

// Start загружает состояние риска, восстанавливает открытые позиции
// и запускает циклы: сначала монитор позиций, затем сканер (с задержкой).
// ctx используется для вызовов биржи; отменять его следует после Stop.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrEngineRunning
	}

	if e.store != nil {
		if err := e.risk.LoadState(ctx, e.store); err != nil {
			e.started.Store(false)
			return err
		}
	}

	// позиции с биржи попадают в реестр до первой итерации монитора
	if _, err := e.RecoverPositions(ctx); err != nil {
		e.started.Store(false)
		return err
	}

	e.monitorDone = make(chan struct{})
	e.monitorRunning.Store(true)
	go e.monitorLoop(ctx)

	e.scannerDone = make(chan struct{})
	e.scannerRunning.Store(true)
	go e.scannerLoop(ctx)

	e.log.Info("engine started",
		utils.Int("symbols", len(e.cfg.Symbols)),
		utils.String("scanner_delay", e.cfg.ScannerStartDelay.String()),
	)
	return nil
}

// Stop останавливает сканер, затем монитор, и сохраняет состояние риска
func (e *Engine) Stop(ctx context.Context) error {
	if !e.started.CompareAndSwap(true, false) {
		return nil
	}

	e.scannerRunning.Store(false)
	if err := waitDone(ctx, e.scannerDone); err != nil {
		return fmt.Errorf("stop scanner: %w", err)
	}
	e.log.Info("scanner stopped")

	e.monitorRunning.Store(false)
	if err := waitDone(ctx, e.monitorDone); err != nil {
		return fmt.Errorf("stop monitor: %w", err)
	}
	e.log.Info("monitor stopped")

	return e.saveState(ctx)
}

func waitDone(ctx context.Context, done chan struct{}) error {
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pause ждет d, проверяя флаг. Возвращает false, если флаг снят или ctx отменен.
func pause(ctx context.Context, flag *atomic.Bool, d time.Duration) bool {
	const step = 50 * time.Millisecond
	deadline := time.Now().Add(d)
	for flag.Load() {
		left := time.Until(deadline)
		if left <= 0 {
			return true
		}
		if left > step {
			left = step
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(left):
		}
	}
	return false
}

// ============================================================
// Монитор позиций
// ============================================================

func (e *Engine) monitorLoop(ctx context.Context) {
	defer close(e.monitorDone)

	for e.monitorRunning.Load() && ctx.Err() == nil {
		start := time.Now()
		e.MonitorOnce(ctx)
		LoopDuration.WithLabelValues("monitor").Observe(float64(time.Since(start).Microseconds()) / 1000)

		pause(ctx, &e.monitorRunning, e.cfg.MonitorInterval)
	}
}

// MonitorOnce - одна итерация монитора: обновить баланс и просадку,
// прогнать цену каждой открытой позиции и закрыть сработавшие
func (e *Engine) MonitorOnce(ctx context.Context) {
	if balance, err := e.balance(ctx); err == nil {
		e.risk.UpdateDrawdown(balance)
	} else {
		e.log.Warn("balance refresh failed", utils.Err(err))
	}

	for _, pos := range e.ledger.Positions() {
		if !IsLive(pos.State) {
			continue
		}
		price, err := e.price(ctx, pos.Symbol)
		if err != nil {
			e.log.Warn("ticker failed", utils.Symbol(pos.Symbol), utils.Err(err))
			continue
		}

		sig, ok := e.ledger.Evaluate(pos.Symbol, price, e.now(), e.cfg.TrailingPct)
		if !ok {
			continue
		}
		e.log.Info("exit condition",
			utils.Symbol(sig.Symbol),
			utils.Reason(string(sig.Reason)),
			utils.Price(sig.Price),
			utils.Float64("pnl_pct", sig.PnL),
			utils.Float64("leveraged_pnl", sig.LeveragedPnL),
		)
		if _, err := e.ClosePosition(ctx, sig.Symbol, sig.Reason); err != nil {
			e.log.Error("close failed", utils.Symbol(sig.Symbol), utils.Err(err))
		}
	}

	if e.hub != nil {
		e.hub.BroadcastPositions(e.ledger.Positions())
		e.hub.BroadcastRiskState(e.risk.Snapshot())
	}
}

// ClosePosition закрывает позицию на бирже (с повторами) и в реестре,
// записывает результат в риск-движок и журнал
func (e *Engine) ClosePosition(ctx context.Context, symbol string, reason CloseReason) (*models.TradeRecord, error) {
	if !e.beginClose(symbol) {
		return nil, fmt.Errorf("%s: close already in progress", symbol)
	}
	defer e.endClose(symbol)

	pos, ok := e.ledger.Get(symbol)
	if !ok || !IsLive(pos.State) {
		return nil, fmt.Errorf("%s: %w", symbol, ErrPositionNotFound)
	}

	order, err := retry.DoWithResult(ctx, func() (*exchange.Order, error) {
		var o *exchange.Order
		err := e.timed(ctx, "close_position", func(cctx context.Context) error {
			var err error
			o, err = e.gw.ClosePosition(cctx, symbol)
			return err
		})
		return o, err
	}, e.retryConfig(ctx, retry.AggressiveConfig(), "close_position", utils.Symbol(symbol)))

	var exitPrice float64
	switch {
	case err == nil && order != nil && order.AvgFillPrice > 0:
		exitPrice = order.AvgFillPrice
	case err == nil || errors.Is(err, exchange.ErrNoPosition):
		// позиции на бирже уже нет (стоп биржи, ликвидация): закрываем по рынку
		if exitPrice, err = e.price(ctx, symbol); err != nil {
			return nil, fmt.Errorf("exit price for %s: %w", symbol, err)
		}
	default:
		e.notify(models.NewNotification(models.NotificationTypeError, models.SeverityError, symbol,
			"Failed to close position: "+err.Error()).WithMeta("reason", string(reason)))
		return nil, fmt.Errorf("close %s on exchange: %w", symbol, err)
	}

	rec, err := e.ledger.ClosePosition(symbol, exitPrice, reason, e.now())
	if err != nil {
		return nil, err
	}

	e.risk.RecordTradeOutcome(TradeOutcome{
		Symbol:   rec.Symbol,
		PnL:      rec.PnL,
		PnLPct:   rec.PnLPct,
		ClosedAt: rec.ClosedAt,
	})

	if e.journal != nil {
		if err := e.journal.SaveTrade(ctx, rec); err != nil {
			e.log.Error("journal write failed", utils.PositionID(rec.ID), utils.Err(err))
		}
	}

	severity := models.SeverityInfo
	if reason == CloseEmergency || reason == CloseStopLoss {
		severity = models.SeverityWarn
	}
	e.notify(models.NewNotification(reason.NotificationType(), severity, symbol,
		fmt.Sprintf("Closed %s %s at %.8g: %s, pnl %.2f (%.2f%%)",
			rec.Side, symbol, exitPrice, reason, rec.PnL, rec.PnLPct*100)).
		WithMeta("reason", string(reason)).
		WithMeta("pnl", rec.PnL).
		WithMeta("leveraged_pnl", rec.LeveragedPnL).
		WithMeta("position_id", rec.ID))

	e.log.Info("position closed",
		utils.Symbol(symbol),
		utils.PositionID(rec.ID),
		utils.Reason(string(reason)),
		utils.Price(exitPrice),
		utils.PNL(rec.PnL),
	)

	if err := e.saveState(ctx); err != nil {
		e.log.Error("risk state save failed", utils.Err(err))
	}
	return rec, nil
}

func (e *Engine) beginClose(symbol string) bool {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	if e.closing[symbol] {
		return false
	}
	e.closing[symbol] = true
	return true
}

func (e *Engine) endClose(symbol string) {
	e.closeMu.Lock()
	delete(e.closing, symbol)
	e.closeMu.Unlock()
}

// ============================================================
// Сканер рынка
// ============================================================

func (e *Engine) scannerLoop(ctx context.Context) {
	defer close(e.scannerDone)

	if !pause(ctx, &e.scannerRunning, e.cfg.ScannerStartDelay) {
		return
	}

	for e.scannerRunning.Load() && ctx.Err() == nil {
		start := time.Now()
		e.ScanOnce(ctx)
		LoopDuration.WithLabelValues("scanner").Observe(float64(time.Since(start).Microseconds()) / 1000)

		pause(ctx, &e.scannerRunning, e.cfg.ScanInterval)
	}
}

// ScanOnce - одна итерация сканера: сигнал по каждому символу без позиции
func (e *Engine) ScanOnce(ctx context.Context) {
	if e.signals == nil {
		return
	}
	if active, reason := e.risk.KillSwitch(); active {
		e.log.Debug("scan skipped: kill switch", utils.Reason(reason))
		return
	}

	for _, symbol := range e.cfg.Symbols {
		if ctx.Err() != nil {
			return
		}
		if _, tracked := e.ledger.Get(symbol); tracked {
			continue
		}

		ind, sig, err := e.signals.Analyze(ctx, symbol)
		if err != nil {
			e.log.Warn("analysis failed", utils.Symbol(symbol), utils.Err(err))
			continue
		}
		if sig == nil {
			continue
		}
		sig.Normalize()
		side := sig.Side()
		if side == "" || sig.Confidence < e.cfg.MinConfidence {
			continue
		}

		_, d, err := e.OpenTrade(ctx, TradeIntent{
			Symbol:     symbol,
			Side:       side,
			Confidence: sig.Confidence,
			Indicators: ind,
		})
		if err != nil {
			e.log.Error("open failed", utils.Symbol(symbol), utils.Err(err))
			continue
		}
		if !d.Allowed {
			e.log.Debug("entry rejected", utils.Symbol(symbol), utils.Reason(d.String()))
		}
	}
}

// ============================================================
// Открытие сделки
// ============================================================

// TradeIntent - намерение открыть позицию
type TradeIntent struct {
	Symbol     string
	Side       string // long, short
	Confidence float64
	Indicators *models.Indicators

	// Необязательные ручные параметры (API)
	Leverage   int     // не выше рекомендованного
	StopLoss   float64 // 0 = от волатильности
	TakeProfit float64 // 0 = StopWidth × RiskRewardRatio
}

// OpenTrade проводит сделку через риск-движок и реестр:
// плечо, стоп, Kelly-размер, ограничения маржи, затем Reserve,
// рыночный ордер вне блокировки и Confirm или Cancel.
func (e *Engine) OpenTrade(ctx context.Context, in TradeIntent) (PositionSnapshot, Decision, error) {
	if !models.IsValidSide(in.Side) {
		return PositionSnapshot{}, block(ReasonInvalidInput, "side %q", in.Side), nil
	}

	balance, err := e.balance(ctx)
	if err != nil {
		return PositionSnapshot{}, Decision{}, fmt.Errorf("balance: %w", err)
	}
	multiplier := e.risk.UpdateDrawdown(balance)

	price, err := e.price(ctx, in.Symbol)
	if err != nil {
		return PositionSnapshot{}, Decision{}, fmt.Errorf("ticker %s: %w", in.Symbol, err)
	}

	ind := in.Indicators
	if ind == nil {
		ind = &models.Indicators{Close: price}
	}
	volatility := ind.Volatility()

	leverage := e.risk.GetMaxLeverage(LeverageInput{
		Volatility:    volatility,
		Confidence:    in.Confidence,
		Momentum:      ind.Momentum,
		TrendStrength: ind.TrendOrDefault(),
		Regime:        ind.Regime,
	})
	if in.Leverage > 0 && in.Leverage < leverage {
		leverage = in.Leverage
	}

	limits := e.limits(ctx, in.Symbol)
	if limits != nil && limits.MaxLeverage > 0 && leverage > limits.MaxLeverage {
		leverage = limits.MaxLeverage
	}

	width := e.risk.CalculateStopLossWidth(volatility, leverage)
	stop := in.StopLoss
	if stop <= 0 {
		stop = StopLossPrice(in.Side, price, width)
	}
	takeProfit := in.TakeProfit
	if takeProfit <= 0 {
		takeProfit = TakeProfitPrice(in.Side, price, width, e.cfg.RiskRewardRatio)
	}
	if limits != nil && limits.PriceStep > 0 {
		stop = utils.RoundPrice(stop, limits.PriceStep)
		takeProfit = utils.RoundPrice(takeProfit, limits.PriceStep)
	}

	winRate, avgWin, avgLoss := e.risk.KellyInputs()
	kelly := e.risk.CalculateKellyCriterion(winRate, avgWin, avgLoss, e.risk.Config().UseFractionalKelly)

	size := e.risk.CalculatePositionSize(SizingRequest{
		Balance:       balance,
		EntryPrice:    price,
		StopLossPrice: stop,
		Leverage:      leverage,
		KellyFraction: kelly * multiplier,
	})
	value := e.risk.CapPositionValueByMargin(size*price, balance, leverage, 0)
	value = e.risk.CapPositionValueByTradeLimit(value, balance, leverage)
	amount := value / price

	if limits != nil {
		amount = utils.RoundToLotSize(amount, limits.QtyStep)
		if amount < limits.MinOrderQty || amount*price < limits.MinNotional {
			d := block(ReasonBelowMinAmount, "amount %.8f (%.2f USDT) below exchange minimum", amount, amount*price)
			e.risk.notifyRejection(in.Symbol, d)
			return PositionSnapshot{}, d, nil
		}
	}
	if amount <= 0 {
		d := block(ReasonBelowMinAmount, "computed amount is zero")
		e.risk.notifyRejection(in.Symbol, d)
		return PositionSnapshot{}, d, nil
	}

	var margin float64
	if err := e.timed(ctx, "required_margin", func(cctx context.Context) error {
		var err error
		margin, err = e.gw.CalculateRequiredMargin(cctx, in.Symbol, amount, price, leverage)
		return err
	}); err != nil {
		return PositionSnapshot{}, Decision{}, fmt.Errorf("required margin %s: %w", in.Symbol, err)
	}

	snap, d := e.ledger.Reserve(OpenRequest{
		PositionParams: PositionParams{
			Symbol:     in.Symbol,
			Side:       in.Side,
			EntryPrice: price,
			Amount:     amount,
			Leverage:   leverage,
			StopLoss:   stop,
			TakeProfit: takeProfit,
			EntryTime:  e.now(),
		},
		Balance:     balance,
		TradeMargin: margin,
	})
	if !d.Allowed {
		return PositionSnapshot{}, d, nil
	}

	// ордер не повторяем: повтор может открыть позицию дважды
	var order *exchange.Order
	err = e.timed(ctx, "create_order", func(cctx context.Context) error {
		var err error
		order, err = e.gw.CreateMarketOrder(cctx, exchange.OrderRequest{
			Symbol:   in.Symbol,
			Side:     in.Side,
			Amount:   amount,
			Leverage: leverage,
		})
		return err
	})
	if err != nil {
		if cerr := e.ledger.Cancel(in.Symbol, err.Error()); cerr != nil {
			e.log.Error("cancel reservation failed", utils.Symbol(in.Symbol), utils.Err(cerr))
		}
		typ := models.NotificationTypeError
		if errors.Is(err, exchange.ErrInsufficientMargin) {
			typ = models.NotificationTypeMargin
		}
		e.notify(models.NewNotification(typ, models.SeverityError, in.Symbol, "Order failed: "+err.Error()))
		return PositionSnapshot{}, d, fmt.Errorf("market order %s: %w", in.Symbol, err)
	}

	snap, err = e.ledger.Confirm(in.Symbol, order.AvgFillPrice, order.FilledQty, e.now())
	if err != nil {
		return PositionSnapshot{}, d, err
	}

	e.notify(models.NewNotification(models.NotificationTypeOpen, models.SeverityInfo, in.Symbol,
		fmt.Sprintf("Opened %s %s %.8g @ %.8g x%d", snap.Side, in.Symbol, snap.Amount, snap.EntryPrice, snap.Leverage)).
		WithMeta("position_id", snap.ID).
		WithMeta("stop_loss", snap.StopLoss).
		WithMeta("take_profit", snap.TakeProfit).
		WithMeta("margin", margin))

	e.log.Info("position opened",
		utils.Symbol(in.Symbol),
		utils.PositionID(snap.ID),
		utils.Side(snap.Side),
		utils.Price(snap.EntryPrice),
		utils.Amount(snap.Amount),
		utils.Leverage(snap.Leverage),
	)
	return snap, d, nil
}

// ============================================================
// Вызовы биржи
// ============================================================

// timed выполняет вызов биржи с таймаутом и метрикой латентности
func (e *Engine) timed(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout)
	defer cancel()

	start := time.Now()
	err := fn(cctx)
	RecordGatewayCall(op, float64(time.Since(start).Microseconds())/1000, err)
	return err
}

// retryConfig дополняет базовую конфигурацию повторов классификацией
// ошибок шлюза и логированием. Таймаут одной попытки повторяется,
// пока жив внешний ctx.
func (e *Engine) retryConfig(ctx context.Context, base retry.Config, op string, fields ...utils.Field) retry.Config {
	base.RetryIf = func(err error) bool {
		return ctx.Err() == nil && retryableGatewayError(err)
	}
	base.OnRetry = func(attempt int, err error, delay time.Duration) {
		e.log.Warn("gateway retry", append(fields,
			utils.String("op", op),
			utils.Int("attempt", attempt),
			utils.Err(err),
			utils.String("delay", delay.String()),
		)...)
	}
	return base
}

// retryableGatewayError: ответы биржи, которые повтор не изменит, не повторяются
func retryableGatewayError(err error) bool {
	var permanent *retry.PermanentError
	switch {
	case errors.As(err, &permanent),
		errors.Is(err, exchange.ErrNoPosition),
		errors.Is(err, exchange.ErrUnknownSymbol),
		errors.Is(err, exchange.ErrInvalidOrder),
		errors.Is(err, exchange.ErrInsufficientMargin),
		errors.Is(err, exchange.ErrNotSupported):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return retry.IsRetryable(err)
}

func (e *Engine) balance(ctx context.Context) (float64, error) {
	var b float64
	err := retry.Do(ctx, func() error {
		return e.timed(ctx, "balance", func(cctx context.Context) error {
			var err error
			b, err = e.gw.GetBalance(cctx)
			return err
		})
	}, e.retryConfig(ctx, retry.DefaultConfig(), "balance"))
	return b, err
}

func (e *Engine) price(ctx context.Context, symbol string) (float64, error) {
	var t *exchange.Ticker
	err := retry.Do(ctx, func() error {
		return e.timed(ctx, "ticker", func(cctx context.Context) error {
			var err error
			t, err = e.gw.GetTicker(cctx, symbol)
			return err
		})
	}, e.retryConfig(ctx, retry.DefaultConfig(), "ticker", utils.Symbol(symbol)))
	if err != nil {
		return 0, err
	}
	if t.LastPrice <= 0 {
		return 0, fmt.Errorf("%s: non-positive price %v", symbol, t.LastPrice)
	}
	return t.LastPrice, nil
}

func (e *Engine) limits(ctx context.Context, symbol string) *exchange.Limits {
	lp, ok := e.gw.(exchange.LimitsProvider)
	if !ok {
		return nil
	}
	var l *exchange.Limits
	if err := e.timed(ctx, "limits", func(cctx context.Context) error {
		var err error
		l, err = lp.GetLimits(cctx, symbol)
		return err
	}); err != nil {
		e.log.Warn("limits unavailable", utils.Symbol(symbol), utils.Err(err))
		return nil
	}
	return l
}

func (e *Engine) notify(n *models.Notification) {
	enqueueNotification(e.notificationChan, n)
}

// SaveState сохраняет состояние риска вне циклов (ручной kill switch из API/CLI)
func (e *Engine) SaveState(ctx context.Context) error {
	return e.saveState(ctx)
}

func (e *Engine) saveState(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	return e.risk.SaveState(ctx, e.store)
}
