package service

import (
	"context"
	"sync"
	"time"

	"futuresbot/internal/models"
)

// SignalBoard - источник сигналов для сканера, который наполняется
// извне (POST /api/v1/signals). Каждый сигнал используется один раз
// и устаревает через ttl.
type SignalBoard struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	signals map[string]postedSignal
}

type postedSignal struct {
	indicators *models.Indicators
	result     models.SignalResult
	at         time.Time
}

// NewSignalBoard создает доску сигналов
func NewSignalBoard(ttl time.Duration) *SignalBoard {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SignalBoard{
		ttl:     ttl,
		now:     time.Now,
		signals: make(map[string]postedSignal),
	}
}

// Post сохраняет сигнал по символу, заменяя предыдущий
func (b *SignalBoard) Post(symbol string, ind *models.Indicators, res models.SignalResult) {
	res.Normalize()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signals[normalizeSymbol(symbol)] = postedSignal{indicators: ind, result: res, at: b.now()}
}

// Pending возвращает число неиспользованных сигналов
func (b *SignalBoard) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.signals)
}

// Analyze отдает свежий сигнал по символу и удаляет его.
// Нет сигнала - (nil, nil, nil).
func (b *SignalBoard) Analyze(ctx context.Context, symbol string) (*models.Indicators, *models.SignalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.signals[symbol]
	if !ok {
		return nil, nil, nil
	}
	delete(b.signals, symbol)
	if b.now().Sub(s.at) > b.ttl {
		return nil, nil, nil
	}
	res := s.result
	return s.indicators, &res, nil
}
