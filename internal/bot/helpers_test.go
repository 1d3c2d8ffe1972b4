package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"futuresbot/internal/models"
)

// фиксированное время для тестов: 2024-03-15 10:00 UTC
var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestRisk(t *testing.T, mutate func(*RiskConfig)) (*RiskEngine, *testClock) {
	t.Helper()
	cfg := DefaultRiskConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	clock := &testClock{t: testNow}
	e := NewRiskEngine(cfg, make(chan *models.Notification, 100))
	e.SetClock(clock.Now)
	return e, clock
}

// recordOutcomes записывает последовательность PNL (знак определяет результат)
func recordOutcomes(e *RiskEngine, pnls ...float64) {
	for _, p := range pnls {
		e.RecordTradeOutcome(TradeOutcome{Symbol: "BTCUSDT", PnL: p})
	}
}

// drainTypes вычитывает все уведомления из канала и возвращает их типы
func drainTypes(ch chan *models.Notification) []string {
	var out []string
	for {
		select {
		case n := <-ch:
			out = append(out, n.Type)
		default:
			return out
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// memStore - StateStore в памяти
type memStore struct {
	mu    sync.Mutex
	state *models.RiskState
	saves int
}

func (m *memStore) SaveRiskState(ctx context.Context, s *models.RiskState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.state = &cp
	m.saves++
	return nil
}

func (m *memStore) LoadRiskState(ctx context.Context) (*models.RiskState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, nil
	}
	cp := *m.state
	return &cp, nil
}
