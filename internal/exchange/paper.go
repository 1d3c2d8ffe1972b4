package exchange

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"futuresbot/pkg/utils"
)

// PaperGateway - биржа в памяти для бумажной торговли и тестов.
//
// Исполняет рыночные ордера по последней установленной цене,
// держит маржу занятой до закрытия и зачисляет реализованный PNL на баланс.
type PaperGateway struct {
	mu sync.Mutex

	balance   float64
	prices    map[string]float64
	limits    map[string]*Limits
	positions map[string]*paperPosition

	// failNext - ошибка, которую вернет следующий вызов (для тестов retry)
	failNext []error
}

type paperPosition struct {
	side     string
	amount   float64
	entry    float64
	leverage int
	margin   float64
	opened   time.Time
}

// NewPaperGateway создает бумажную биржу с начальным балансом
func NewPaperGateway(balance float64) *PaperGateway {
	return &PaperGateway{
		balance:   balance,
		prices:    make(map[string]float64),
		limits:    make(map[string]*Limits),
		positions: make(map[string]*paperPosition),
	}
}

// GetName возвращает имя шлюза
func (g *PaperGateway) GetName() string {
	return "paper"
}

// SetPrice устанавливает текущую цену символа
func (g *PaperGateway) SetPrice(symbol string, price float64) {
	g.mu.Lock()
	g.prices[symbol] = price
	g.mu.Unlock()
}

// SetLimits устанавливает торговые лимиты символа
func (g *PaperGateway) SetLimits(l Limits) {
	g.mu.Lock()
	g.limits[l.Symbol] = &l
	g.mu.Unlock()
}

// FailNext ставит в очередь ошибки для следующих вызовов
func (g *PaperGateway) FailNext(errs ...error) {
	g.mu.Lock()
	g.failNext = append(g.failNext, errs...)
	g.mu.Unlock()
}

func (g *PaperGateway) popFailure() error {
	if len(g.failNext) == 0 {
		return nil
	}
	err := g.failNext[0]
	g.failNext = g.failNext[1:]
	return err
}

// GetBalance возвращает свободный баланс плюс занятую маржу
func (g *PaperGateway) GetBalance(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.popFailure(); err != nil {
		return 0, err
	}

	total := g.balance
	for _, p := range g.positions {
		total += p.margin
	}
	return total, nil
}

// GetTicker возвращает последнюю установленную цену
func (g *PaperGateway) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.popFailure(); err != nil {
		return nil, err
	}

	price, ok := g.prices[symbol]
	if !ok || price <= 0 {
		return nil, &ExchangeError{Exchange: "paper", Code: "symbol", Message: "unknown symbol " + symbol, Original: ErrUnknownSymbol}
	}
	return &Ticker{
		Symbol:    symbol,
		BidPrice:  price,
		AskPrice:  price,
		LastPrice: price,
		Timestamp: time.Now(),
	}, nil
}

// CalculateRequiredMargin: notional / leverage
func (g *PaperGateway) CalculateRequiredMargin(ctx context.Context, symbol string, amount, price float64, leverage int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if leverage <= 0 {
		return 0, fmt.Errorf("leverage must be positive: %w", ErrInvalidOrder)
	}
	return amount * price / float64(leverage), nil
}

// GetLimits возвращает лимиты символа или дефолтные
func (g *PaperGateway) GetLimits(ctx context.Context, symbol string) (*Limits, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if l, ok := g.limits[symbol]; ok {
		cp := *l
		return &cp, nil
	}
	return &Limits{Symbol: symbol, MinOrderQty: 0, QtyStep: 0, MaxLeverage: 125}, nil
}

// CreateMarketOrder открывает позицию по текущей цене
func (g *PaperGateway) CreateMarketOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.popFailure(); err != nil {
		return nil, err
	}

	if req.Amount <= 0 || req.Leverage <= 0 || (req.Side != SideLong && req.Side != SideShort) {
		return nil, fmt.Errorf("%s %s %.8f x%d: %w", req.Symbol, req.Side, req.Amount, req.Leverage, ErrInvalidOrder)
	}
	if _, exists := g.positions[req.Symbol]; exists {
		return nil, fmt.Errorf("position already open for %s: %w", req.Symbol, ErrInvalidOrder)
	}

	price, ok := g.prices[req.Symbol]
	if !ok || price <= 0 {
		return nil, &ExchangeError{Exchange: "paper", Code: "symbol", Message: "unknown symbol " + req.Symbol, Original: ErrUnknownSymbol}
	}

	amount := req.Amount
	if l, ok := g.limits[req.Symbol]; ok {
		amount = utils.RoundToLotSize(amount, l.QtyStep)
		if amount < l.MinOrderQty || amount <= 0 {
			return nil, fmt.Errorf("amount %.8f below min %.8f: %w", amount, l.MinOrderQty, ErrInvalidOrder)
		}
	}

	margin := amount * price / float64(req.Leverage)
	if margin > g.balance {
		return nil, &ExchangeError{
			Exchange: "paper",
			Code:     "margin",
			Message:  fmt.Sprintf("required margin %.2f exceeds free balance %.2f", margin, g.balance),
			Original: ErrInsufficientMargin,
		}
	}

	g.balance -= margin
	g.positions[req.Symbol] = &paperPosition{
		side:     req.Side,
		amount:   amount,
		entry:    price,
		leverage: req.Leverage,
		margin:   margin,
		opened:   time.Now(),
	}

	return &Order{
		ID:           utils.NewID(),
		Symbol:       req.Symbol,
		Side:         OrderSide(req.Side),
		Quantity:     req.Amount,
		FilledQty:    amount,
		AvgFillPrice: price,
		Status:       OrderStatusFilled,
		CreatedAt:    time.Now(),
	}, nil
}

// ClosePosition закрывает позицию по текущей цене и возвращает маржу + PNL
func (g *PaperGateway) ClosePosition(ctx context.Context, symbol string) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.popFailure(); err != nil {
		return nil, err
	}

	pos, ok := g.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoPosition)
	}
	price := g.prices[symbol]

	pnl := utils.CalculatePNL(pos.side, pos.entry, price, pos.amount)
	g.balance += pos.margin + pnl
	delete(g.positions, symbol)

	closeSide := SideSell
	if pos.side == SideShort {
		closeSide = SideBuy
	}
	return &Order{
		ID:           utils.NewID(),
		Symbol:       symbol,
		Side:         closeSide,
		Quantity:     pos.amount,
		FilledQty:    pos.amount,
		AvgFillPrice: price,
		Status:       OrderStatusFilled,
		CreatedAt:    time.Now(),
	}, nil
}

// HasPosition сообщает, открыта ли позиция по символу
func (g *PaperGateway) HasPosition(symbol string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.positions[symbol]
	return ok
}

// GetOpenPositions возвращает открытые позиции, отсортированные по символу
func (g *PaperGateway) GetOpenPositions(ctx context.Context) ([]*Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.popFailure(); err != nil {
		return nil, err
	}

	out := make([]*Position, 0, len(g.positions))
	for symbol, p := range g.positions {
		out = append(out, &Position{
			Symbol:     symbol,
			Side:       p.side,
			Amount:     p.amount,
			EntryPrice: p.entry,
			Leverage:   p.leverage,
			OpenedAt:   p.opened,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}
