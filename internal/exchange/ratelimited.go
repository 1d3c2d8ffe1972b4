package exchange

import (
	"context"

	"futuresbot/pkg/ratelimit"
)

// RateLimitedGateway ограничивает частоту запросов к шлюзу.
// Каждый вызов ждет токен; при отмене ctx возвращает ctx.Err().
type RateLimitedGateway struct {
	inner   Gateway
	limiter *ratelimit.Limiter
}

// WithRateLimit оборачивает шлюз в token bucket (rate запросов/сек, burst)
func WithRateLimit(gw Gateway, rate, burst float64) *RateLimitedGateway {
	return &RateLimitedGateway{inner: gw, limiter: ratelimit.New(rate, burst)}
}

// Unwrap возвращает исходный шлюз
func (g *RateLimitedGateway) Unwrap() Gateway { return g.inner }

func (g *RateLimitedGateway) GetName() string { return g.inner.GetName() }

func (g *RateLimitedGateway) GetBalance(ctx context.Context) (float64, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return g.inner.GetBalance(ctx)
}

func (g *RateLimitedGateway) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return g.inner.GetTicker(ctx, symbol)
}

func (g *RateLimitedGateway) CalculateRequiredMargin(ctx context.Context, symbol string, amount, price float64, leverage int) (float64, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return g.inner.CalculateRequiredMargin(ctx, symbol, amount, price, leverage)
}

func (g *RateLimitedGateway) CreateMarketOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return g.inner.CreateMarketOrder(ctx, req)
}

func (g *RateLimitedGateway) ClosePosition(ctx context.Context, symbol string) (*Order, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return g.inner.ClosePosition(ctx, symbol)
}

// GetLimits проксирует LimitsProvider; без него возвращает (nil, nil)
func (g *RateLimitedGateway) GetLimits(ctx context.Context, symbol string) (*Limits, error) {
	lp, ok := g.inner.(LimitsProvider)
	if !ok {
		return nil, nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return lp.GetLimits(ctx, symbol)
}

// GetOpenPositions проксирует PositionLister; без него возвращает ErrNotSupported
func (g *RateLimitedGateway) GetOpenPositions(ctx context.Context) ([]*Position, error) {
	pl, ok := g.inner.(PositionLister)
	if !ok {
		return nil, ErrNotSupported
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return pl.GetOpenPositions(ctx)
}
