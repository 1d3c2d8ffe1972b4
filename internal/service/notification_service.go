package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"futuresbot/internal/models"
	"futuresbot/pkg/utils"
)

// Лимиты выборки журнала
const (
	defaultNotificationLimit = 100
	maxNotificationLimit     = 500
)

// NotificationService - аудит событий риска и позиций.
//
// Читает канал уведомлений бота (отказы гардрейлов, kill switch,
// открытия и закрытия), пишет каждое событие в лог, журнал и
// рассылает клиентам WebSocket. Без журнала хранит последние
// события в памяти.
type NotificationService struct {
	store NotificationStore
	wsHub WebSocketBroadcaster
	muted map[string]bool
	log   *utils.Logger

	mu     sync.Mutex
	recent []*models.Notification
}

// NewNotificationService создает сервис. store может быть nil.
// muted - типы, которые только логируются.
func NewNotificationService(store NotificationStore, muted []string) *NotificationService {
	m := make(map[string]bool, len(muted))
	for _, t := range muted {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			m[t] = true
		}
	}
	return &NotificationService{
		store: store,
		muted: m,
		log:   utils.L().WithComponent("notifications"),
	}
}

// SetWebSocketHub устанавливает hub для broadcast уведомлений
func (s *NotificationService) SetWebSocketHub(hub WebSocketBroadcaster) {
	s.wsHub = hub
}

// Run читает канал до его закрытия или отмены ctx.
// После отмены ctx дочитывает то, что уже лежит в буфере.
func (s *NotificationService) Run(ctx context.Context, ch <-chan *models.Notification) {
	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			s.handle(ctx, n)
		case <-ctx.Done():
			s.drain(ch)
			return
		}
	}
}

func (s *NotificationService) drain(ch <-chan *models.Notification) {
	// журнал пишем без отмененного контекста
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			s.handle(ctx, n)
		default:
			return
		}
	}
}

func (s *NotificationService) handle(ctx context.Context, n *models.Notification) {
	if n == nil {
		return
	}
	if err := s.CreateNotification(ctx, n); err != nil {
		s.log.Error("notification store failed", utils.String("type", n.Type), utils.Err(err))
	}
}

// CreateNotification логирует уведомление и, если тип не заглушен,
// сохраняет его и рассылает клиентам
func (s *NotificationService) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	n.Type = strings.ToUpper(n.Type)
	s.logNotification(n)

	if s.muted[n.Type] {
		return nil
	}

	s.remember(n)

	if s.store != nil {
		if err := s.store.Create(ctx, n); err != nil {
			return err
		}
	}

	if s.wsHub != nil {
		s.wsHub.BroadcastNotification(n)
	}
	return nil
}

func (s *NotificationService) logNotification(n *models.Notification) {
	fields := []utils.Field{
		utils.String("type", n.Type),
		utils.Symbol(n.Symbol),
		utils.String("message", n.Message),
	}
	switch n.Severity {
	case models.SeverityError:
		s.log.Error("event", fields...)
	case models.SeverityWarn:
		s.log.Warn("event", fields...)
	default:
		s.log.Info("event", fields...)
	}
}

func (s *NotificationService) remember(n *models.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, n)
	if over := len(s.recent) - maxNotificationLimit; over > 0 {
		s.recent = s.recent[over:]
	}
}

// GetNotifications возвращает уведомления, новые первыми.
// Пустой types - все типы; неизвестные типы отбрасываются.
func (s *NotificationService) GetNotifications(ctx context.Context, types []string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}

	normalized := make([]string, 0, len(types))
	for _, t := range types {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" && models.IsValidNotificationType(t) {
			normalized = append(normalized, t)
		}
	}
	if len(types) > 0 && len(normalized) == 0 {
		return []*models.Notification{}, nil
	}

	if s.store != nil {
		if len(normalized) > 0 {
			return s.store.GetByTypes(ctx, normalized, limit)
		}
		return s.store.GetRecent(ctx, limit)
	}
	return s.fromMemory(normalized, limit), nil
}

func (s *NotificationService) fromMemory(types []string, limit int) []*models.Notification {
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Notification, 0, limit)
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		if len(want) == 0 || want[s.recent[i].Type] {
			out = append(out, s.recent[i])
		}
	}
	return out
}

// CleanupOlderThan удаляет записи журнала старше maxAge
func (s *NotificationService) CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	if s.store == nil || maxAge <= 0 {
		return 0, nil
	}
	n, err := s.store.DeleteOlderThan(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("notifications cleaned up", utils.Int64("deleted", n))
	}
	return n, nil
}
