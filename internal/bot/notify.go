package bot

import (
	"futuresbot/internal/models"
	"futuresbot/pkg/utils"
)

// notificationBuffer - имя буфера в метриках переполнения
const notificationBuffer = "notification"

// enqueueNotification кладет событие в канал без блокировки.
// Вызывается под мьютексом риск-движка, поэтому при полном канале
// событие теряется: остаются метрика и строка лога.
func enqueueNotification(ch chan<- *models.Notification, n *models.Notification) bool {
	if ch == nil || n == nil {
		return false
	}

	select {
	case ch <- n:
		RecordBufferBacklog(notificationBuffer, cap(ch), len(ch))
		return true
	default:
		RecordBufferOverflow(notificationBuffer)
		RecordBufferBacklog(notificationBuffer, cap(ch), len(ch))
		utils.Warn("notification dropped, buffer full",
			utils.String("type", n.Type),
			utils.Symbol(n.Symbol),
			utils.Int("capacity", cap(ch)),
		)
		return false
	}
}
