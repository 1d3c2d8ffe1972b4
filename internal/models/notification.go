package models

import "time"

// Notification представляет событие аудита: отказ гардрейла, kill switch,
// открытие/закрытие позиции, ошибка биржи
type Notification struct {
	ID        int64                  `json:"id" db:"id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	Type      string                 `json:"type" db:"type"`         // OPEN, CLOSE, GUARDRAIL, KILL_SWITCH, ...
	Severity  string                 `json:"severity" db:"severity"` // info, warn, error
	Symbol    string                 `json:"symbol,omitempty" db:"symbol"`
	Message   string                 `json:"message" db:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty" db:"meta"` // дополнительные данные (JSON в БД)
}

// Типы уведомлений
const (
	NotificationTypeOpen         = "OPEN"          // позиция открыта
	NotificationTypeClose        = "CLOSE"         // позиция закрыта (причина в Meta)
	NotificationTypeStopLoss     = "STOP_LOSS"     // закрытие по stop-loss
	NotificationTypeTakeProfit   = "TAKE_PROFIT"   // закрытие по take-profit
	NotificationTypeTrailingStop = "TRAILING_STOP" // закрытие по трейлинг-стопу
	NotificationTypeEmergency    = "EMERGENCY"     // защита от ликвидации
	NotificationTypeStale        = "STALE"         // закрытие по времени
	NotificationTypeGuardrail    = "GUARDRAIL"     // сделка отклонена гардрейлом
	NotificationTypeKillSwitch   = "KILL_SWITCH"   // kill switch включен/выключен
	NotificationTypeError        = "ERROR"         // ошибка API/ордера
	NotificationTypeMargin       = "MARGIN"        // недостаток маржи
	NotificationTypeRecovery     = "RECOVERY"      // позиция восстановлена после перезапуска
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// NewNotification создает уведомление с текущим временем
func NewNotification(typ, severity, symbol, message string) *Notification {
	return &Notification{
		Timestamp: time.Now(),
		Type:      typ,
		Severity:  severity,
		Symbol:    symbol,
		Message:   message,
	}
}

// WithMeta добавляет поле в Meta и возвращает уведомление (для цепочек)
func (n *Notification) WithMeta(key string, value interface{}) *Notification {
	if n.Meta == nil {
		n.Meta = make(map[string]interface{})
	}
	n.Meta[key] = value
	return n
}

var validNotificationTypes = map[string]bool{
	NotificationTypeOpen:         true,
	NotificationTypeClose:        true,
	NotificationTypeStopLoss:     true,
	NotificationTypeTakeProfit:   true,
	NotificationTypeTrailingStop: true,
	NotificationTypeEmergency:    true,
	NotificationTypeStale:        true,
	NotificationTypeGuardrail:    true,
	NotificationTypeKillSwitch:   true,
	NotificationTypeError:        true,
	NotificationTypeMargin:       true,
	NotificationTypeRecovery:     true,
}

// IsValidNotificationType проверяет тип уведомления (регистр важен)
func IsValidNotificationType(t string) bool {
	return validNotificationTypes[t]
}
