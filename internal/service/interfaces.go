package service

import (
	"context"
	"time"

	"futuresbot/internal/models"
)

// ============================================================
// Интерфейсы репозиториев
// ============================================================
// Сервисы зависят от интерфейсов, а не от *sql.DB, чтобы в тестах
// подставлять in-memory реализации.

// NotificationStore - журнал уведомлений
//
// Реализуется repository.NotificationRepository
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	GetRecent(ctx context.Context, limit int) ([]*models.Notification, error)
	GetByTypes(ctx context.Context, types []string, limit int) ([]*models.Notification, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// TradeStore - журнал закрытых сделок
//
// Реализуется repository.TradeRepository
type TradeStore interface {
	GetRecent(ctx context.Context, limit int) ([]*models.TradeRecord, error)
	GetSince(ctx context.Context, since time.Time) ([]*models.TradeRecord, error)
}

// WebSocketBroadcaster - отправка уведомлений клиентам
//
// Реализуется websocket.Hub; интерфейс убирает циклическую зависимость пакетов
type WebSocketBroadcaster interface {
	BroadcastNotification(notif *models.Notification)
}
