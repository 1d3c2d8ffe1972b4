package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"futuresbot/internal/models"
)

// ============ Mock NotificationStore ============

type MockNotificationStore struct {
	mu        sync.Mutex
	items     []*models.Notification
	nextID    int64
	createErr error
	getErr    error
	deleteErr error
}

func NewMockNotificationStore() *MockNotificationStore {
	return &MockNotificationStore{nextID: 1}
}

func (m *MockNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	n.ID = m.nextID
	m.nextID++
	m.items = append(m.items, n)
	return nil
}

func (m *MockNotificationStore) GetRecent(ctx context.Context, limit int) ([]*models.Notification, error) {
	return m.GetByTypes(ctx, nil, limit)
}

func (m *MockNotificationStore) GetByTypes(ctx context.Context, types []string, limit int) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	want := make(map[string]bool)
	for _, t := range types {
		want[t] = true
	}
	out := []*models.Notification{}
	for i := len(m.items) - 1; i >= 0 && len(out) < limit; i-- {
		if len(want) == 0 || want[m.items[i].Type] {
			out = append(out, m.items[i])
		}
	}
	return out, nil
}

func (m *MockNotificationStore) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	kept := m.items[:0]
	var deleted int64
	for _, n := range m.items {
		if n.Timestamp.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	m.items = kept
	return deleted, nil
}

func (m *MockNotificationStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// ============ Mock WebSocketBroadcaster ============

type MockBroadcaster struct {
	mu    sync.Mutex
	calls []*models.Notification
}

func (m *MockBroadcaster) BroadcastNotification(n *models.Notification) {
	m.mu.Lock()
	m.calls = append(m.calls, n)
	m.mu.Unlock()
}

func (m *MockBroadcaster) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// ============ Mock TradeStore ============

type MockTradeStore struct {
	trades []*models.TradeRecord
	err    error
}

func (m *MockTradeStore) GetRecent(ctx context.Context, limit int) ([]*models.TradeRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := append([]*models.TradeRecord(nil), m.trades...)
	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt.After(out[j].ClosedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockTradeStore) GetSince(ctx context.Context, since time.Time) ([]*models.TradeRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.TradeRecord
	for _, t := range m.trades {
		if !t.ClosedAt.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}
