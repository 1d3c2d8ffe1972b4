package exchange

import (
	"context"
	"errors"
	"time"
)

// Gateway - узкий интерфейс биржи, которым пользуется торговое ядро.
//
// Протоколы конкретных бирж сюда не входят: ядро знает только
// баланс, цену, требуемую маржу, рыночный ордер и закрытие позиции.
type Gateway interface {
	// GetName возвращает имя биржи
	GetName() string

	// GetBalance получает баланс фьючерсного аккаунта в USDT
	GetBalance(ctx context.Context) (float64, error)

	// GetTicker получает текущую цену актива
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)

	// CalculateRequiredMargin считает маржу для позиции по метаданным контракта
	CalculateRequiredMargin(ctx context.Context, symbol string, amount, price float64, leverage int) (float64, error)

	// CreateMarketOrder размещает рыночный ордер на открытие позиции
	CreateMarketOrder(ctx context.Context, req OrderRequest) (*Order, error)

	// ClosePosition закрывает позицию по символу целиком
	ClosePosition(ctx context.Context, symbol string) (*Order, error)
}

// LimitsProvider - опциональное расширение Gateway с торговыми лимитами
type LimitsProvider interface {
	GetLimits(ctx context.Context, symbol string) (*Limits, error)
}

// PositionLister - опциональное расширение Gateway: открытые позиции аккаунта.
// Используется при восстановлении после перезапуска.
type PositionLister interface {
	GetOpenPositions(ctx context.Context) ([]*Position, error)
}

// Position - открытая позиция на бирже
type Position struct {
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"` // "long" или "short"
	Amount     float64   `json:"amount"`
	EntryPrice float64   `json:"entry_price"`
	Leverage   int       `json:"leverage"`
	OpenedAt   time.Time `json:"opened_at"` // нулевое, если биржа не сообщает
}

// OrderRequest - параметры рыночного ордера на открытие
type OrderRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"` // "long" или "short"
	Amount   float64 `json:"amount"`
	Leverage int     `json:"leverage"`
}

// Ticker содержит информацию о текущей цене
type Ticker struct {
	Symbol    string    `json:"symbol"`
	BidPrice  float64   `json:"bid_price"`  // лучшая цена покупки
	AskPrice  float64   `json:"ask_price"`  // лучшая цена продажи
	LastPrice float64   `json:"last_price"` // последняя сделка
	Timestamp time.Time `json:"timestamp"`
}

// Order представляет исполненный ордер
type Order struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"` // "buy" или "sell"
	Quantity     float64   `json:"quantity"`
	FilledQty    float64   `json:"filled_qty"`
	AvgFillPrice float64   `json:"avg_fill_price"`
	Status       string    `json:"status"` // "filled", "partial", "cancelled"
	CreatedAt    time.Time `json:"created_at"`
}

// Limits содержит торговые ограничения биржи
type Limits struct {
	Symbol      string  `json:"symbol"`
	MinOrderQty float64 `json:"min_order_qty"` // минимальный размер ордера
	QtyStep     float64 `json:"qty_step"`      // шаг изменения количества (lot size)
	MinNotional float64 `json:"min_notional"`  // минимальная сумма сделки в USDT
	PriceStep   float64 `json:"price_step"`    // шаг изменения цены (tick size)
	MaxLeverage int     `json:"max_leverage"`  // максимальное плечо
}

// ExchangeError представляет ошибку от биржи
type ExchangeError struct {
	Exchange string
	Code     string
	Message  string
	Original error
}

func (e *ExchangeError) Error() string {
	return e.Exchange + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// Ошибки шлюза
var (
	ErrUnknownSymbol      = errors.New("unknown symbol")
	ErrNoPosition         = errors.New("no open position for symbol")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrNotSupported       = errors.New("operation not supported by gateway")
)

// Side constants for orders (используются при размещении ордеров)
const (
	SideBuy  = "buy"  // покупка (открытие long или закрытие short)
	SideSell = "sell" // продажа (открытие short или закрытие long)
)

// Side constants for positions
const (
	SideLong  = "long"
	SideShort = "short"
)

// OrderSide возвращает сторону ордера на открытие позиции
func OrderSide(positionSide string) string {
	if positionSide == SideShort {
		return SideSell
	}
	return SideBuy
}

// Order status constants
const (
	OrderStatusFilled    = "filled"
	OrderStatusPartial   = "partial"
	OrderStatusCancelled = "cancelled"
	OrderStatusRejected  = "rejected"
)
