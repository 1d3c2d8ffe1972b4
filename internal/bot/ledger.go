package bot

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"futuresbot/internal/models"
	"futuresbot/pkg/utils"
)

// Ошибки реестра позиций
var (
	ErrPositionExists   = errors.New("position already exists for symbol")
	ErrPositionNotFound = errors.New("position not found")
)

// PositionLedger - реестр позиций по символам.
//
// Использует мьютекс RiskEngine: проверка гардрейлов, диверсификации
// и вставка позиции выполняются атомарно. Сетевые вызовы под
// блокировкой не выполняются: открытие двухфазное (Reserve, затем
// Confirm или Cancel после ответа биржи).
type PositionLedger struct {
	risk      *RiskEngine
	cfg       PositionConfig
	positions map[string]*Position
}

// NewPositionLedger создает реестр, разделяющий блокировку с risk
func NewPositionLedger(risk *RiskEngine, cfg PositionConfig) *PositionLedger {
	return &PositionLedger{
		risk:      risk,
		cfg:       cfg,
		positions: make(map[string]*Position),
	}
}

// OpenRequest - запрос на резерв позиции
type OpenRequest struct {
	PositionParams

	// Баланс и маржа сделки для гардрейла
	Balance     float64
	TradeMargin float64
}

// Reserve атомарно проверяет гардрейлы, диверсификацию и дубликат
// символа, затем вставляет позицию в состоянии Pending
func (l *PositionLedger) Reserve(req OpenRequest) (PositionSnapshot, Decision) {
	l.risk.mu.Lock()
	defer l.risk.mu.Unlock()

	if _, exists := l.positions[req.Symbol]; exists {
		d := block(ReasonDuplicate, "position for %s already tracked", req.Symbol)
		l.risk.notifyRejection(req.Symbol, d)
		return PositionSnapshot{}, d
	}

	if d := l.risk.validateGuardrailsLocked(req.Balance, req.TradeMargin, len(l.positions)); !d.Allowed {
		l.risk.notifyRejection(req.Symbol, d)
		return PositionSnapshot{}, d
	}

	if d := l.risk.CheckPortfolioDiversification(req.Symbol, l.symbolsLocked()); !d.Allowed {
		l.risk.notifyRejection(req.Symbol, d)
		return PositionSnapshot{}, d
	}

	pos, err := NewPosition(req.PositionParams, l.cfg)
	if err != nil {
		d := block(ReasonInvalidInput, "%v", err)
		l.risk.notifyRejection(req.Symbol, d)
		return PositionSnapshot{}, d
	}

	l.positions[req.Symbol] = pos
	OpenPositions.Set(float64(len(l.positions)))
	return pos.Snapshot(), allow(ReasonAllowed, "reserved")
}

// Confirm переводит Pending в Open по факту исполнения.
// Стоп и тейк сдвигаются пропорционально цене исполнения.
func (l *PositionLedger) Confirm(symbol string, fillPrice, amount float64, at time.Time) (PositionSnapshot, error) {
	l.risk.mu.Lock()
	defer l.risk.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return PositionSnapshot{}, fmt.Errorf("%s: %w", symbol, ErrPositionNotFound)
	}
	if err := pos.transition(StateOpen); err != nil {
		return PositionSnapshot{}, err
	}

	if fillPrice > 0 && utils.IsFinite(fillPrice) && fillPrice != pos.EntryPrice {
		ratio := fillPrice / pos.EntryPrice
		pos.StopLoss *= ratio
		if pos.TakeProfit > 0 {
			pos.TakeProfit *= ratio
		}
		pos.EntryPrice = fillPrice
		pos.highestPrice = fillPrice
		pos.lowestPrice = fillPrice
	}
	if amount > 0 && utils.IsFinite(amount) {
		pos.Amount = amount
	}
	if !at.IsZero() {
		pos.EntryTime = at
	}

	return pos.Snapshot(), nil
}

// Cancel снимает резерв Pending-позиции
func (l *PositionLedger) Cancel(symbol, reason string) error {
	l.risk.mu.Lock()
	defer l.risk.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return fmt.Errorf("%s: %w", symbol, ErrPositionNotFound)
	}
	if err := pos.transition(StateCancelled); err != nil {
		return err
	}
	delete(l.positions, symbol)
	OpenPositions.Set(float64(len(l.positions)))

	l.risk.log.Info("reservation cancelled", utils.Symbol(symbol), utils.Reason(reason))
	return nil
}

// OpenPosition добавляет уже открытую позицию (восстановление, внешний ордер)
// без проверки гардрейлов
func (l *PositionLedger) OpenPosition(params PositionParams) (PositionSnapshot, error) {
	pos, err := NewPosition(params, l.cfg)
	if err != nil {
		return PositionSnapshot{}, err
	}
	pos.state = StateOpen

	l.risk.mu.Lock()
	defer l.risk.mu.Unlock()

	if _, exists := l.positions[params.Symbol]; exists {
		return PositionSnapshot{}, fmt.Errorf("%s: %w", params.Symbol, ErrPositionExists)
	}
	l.positions[params.Symbol] = pos
	OpenPositions.Set(float64(len(l.positions)))
	return pos.Snapshot(), nil
}

// ExitSignal - решение о закрытии позиции
type ExitSignal struct {
	Symbol       string
	Reason       CloseReason
	Price        float64
	PnL          float64
	LeveragedPnL float64
}

// Evaluate прогоняет тик цены через позицию: безубыток,
// трейлинг-стоп и условия выхода. Возвращает сигнал и true, если пора закрывать.
func (l *PositionLedger) Evaluate(symbol string, price float64, now time.Time, trailingPct float64) (ExitSignal, bool) {
	l.risk.mu.Lock()
	defer l.risk.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok || !IsLive(pos.state) {
		return ExitSignal{}, false
	}

	if pos.MoveToBreakeven(price) {
		l.risk.log.Info("stop moved to breakeven",
			utils.Symbol(symbol), utils.Price(pos.StopLoss))
	}
	wasTrailing := pos.trailingActivated
	if pos.UpdateTrailingStop(price, trailingPct) && !wasTrailing && pos.trailingActivated {
		l.risk.log.Info("trailing stop activated",
			utils.Symbol(symbol), utils.Price(pos.trailingStop))
	}

	closeNow, reason := pos.ShouldClose(price, now)
	if !closeNow {
		return ExitSignal{}, false
	}
	return ExitSignal{
		Symbol:       symbol,
		Reason:       reason,
		Price:        price,
		PnL:          pos.GetPnL(price),
		LeveragedPnL: pos.GetLeveragedPnL(price),
	}, true
}

// ClosePosition закрывает позицию, удаляет ее из реестра
// и возвращает реализованный результат
func (l *PositionLedger) ClosePosition(symbol string, exitPrice float64, reason CloseReason, at time.Time) (*models.TradeRecord, error) {
	l.risk.mu.Lock()
	defer l.risk.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, ErrPositionNotFound)
	}
	if err := pos.transition(StateClosed); err != nil {
		return nil, err
	}
	pos.closeReason = reason
	delete(l.positions, symbol)
	OpenPositions.Set(float64(len(l.positions)))

	rec := &models.TradeRecord{
		ID:           pos.ID,
		Symbol:       pos.Symbol,
		Side:         pos.Side,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    exitPrice,
		Amount:       pos.Amount,
		Leverage:     pos.Leverage,
		PnLPct:       pos.GetPnL(exitPrice),
		LeveragedPnL: pos.GetLeveragedPnL(exitPrice),
		PnL:          pos.UnrealizedPnL(exitPrice),
		CloseReason:  string(reason),
		OpenedAt:     pos.EntryTime,
		ClosedAt:     at,
	}
	RecordClose(reason, rec.PnL)
	return rec, nil
}

// Get возвращает копию позиции по символу
func (l *PositionLedger) Get(symbol string) (PositionSnapshot, bool) {
	l.risk.mu.Lock()
	defer l.risk.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return PositionSnapshot{}, false
	}
	return pos.Snapshot(), true
}

// Positions возвращает копии всех позиций, отсортированные по символу
func (l *PositionLedger) Positions() []PositionSnapshot {
	l.risk.mu.Lock()
	defer l.risk.mu.Unlock()

	out := make([]PositionSnapshot, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Count возвращает количество позиций (включая Pending)
func (l *PositionLedger) Count() int {
	l.risk.mu.Lock()
	defer l.risk.mu.Unlock()
	return len(l.positions)
}

// Symbols возвращает символы всех позиций
func (l *PositionLedger) Symbols() []string {
	l.risk.mu.Lock()
	defer l.risk.mu.Unlock()
	return l.symbolsLocked()
}

func (l *PositionLedger) symbolsLocked() []string {
	out := make([]string, 0, len(l.positions))
	for s := range l.positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
