package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter - token bucket: rate токенов в секунду, емкость burst.
//
//	l := ratelimit.New(10, 20)
//	if err := l.Wait(ctx); err != nil {
//	    return err
//	}
type Limiter struct {
	mu         sync.Mutex
	rate       float64
	burst      float64
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
}

// New создает limiter с полным ведром.
// rate ≤ 0 -> 10/сек, burst ≤ 0 -> 2×rate.
func New(rate, burst float64) *Limiter {
	if rate <= 0 {
		rate = 10
	}
	if burst <= 0 {
		burst = rate * 2
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// SetClock подменяет источник времени (тесты)
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	l.lastRefill = now()
}

// вызывается под lock
func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed > 0 {
		l.tokens += elapsed * l.rate
		if l.tokens > l.burst {
			l.tokens = l.burst
		}
	}
	l.lastRefill = now
}

// Allow забирает токен без ожидания
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Wait ждет токен или отмену ctx
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refill()
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Tokens - текущее число токенов
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return l.tokens
}

// KeyedLimiter - отдельный Limiter на ключ (адрес клиента API)
type KeyedLimiter struct {
	mu       sync.Mutex
	rate     float64
	burst    float64
	limiters map[string]*Limiter
}

// NewKeyed создает набор limiter'ов с общими параметрами
func NewKeyed(rate, burst float64) *KeyedLimiter {
	return &KeyedLimiter{rate: rate, burst: burst, limiters: make(map[string]*Limiter)}
}

// Allow забирает токен для ключа
func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	l, ok := k.limiters[key]
	if !ok {
		l = New(k.rate, k.burst)
		k.limiters[key] = l
	}
	k.mu.Unlock()
	return l.Allow()
}
