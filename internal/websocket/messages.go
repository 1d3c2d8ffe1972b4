package websocket

import (
	"time"

	"futuresbot/internal/bot"
	"futuresbot/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypePositions - снимок позиций реестра.
	// Отправляется каждую итерацию монитора позиций.
	MessageTypePositions MessageType = "positions"

	// MessageTypeRiskState - состояние риск-движка (просадка, серии, kill switch)
	MessageTypeRiskState MessageType = "riskState"

	// MessageTypeNotification - событие аудита: отказ гардрейла,
	// kill switch, открытие и закрытие позиции
	MessageTypeNotification MessageType = "notification"
)

// BaseMessage - общие поля всех сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// PositionsMessage - снимок всех позиций
type PositionsMessage struct {
	BaseMessage
	Count int                    `json:"count"`
	Data  []bot.PositionSnapshot `json:"data"`
}

// RiskStateMessage - состояние риска
type RiskStateMessage struct {
	BaseMessage
	Data *RiskStateData `json:"data"`
}

// RiskStateData - состояние риска с производными полями
type RiskStateData struct {
	models.RiskState
	WinRate float64 `json:"win_rate"`
}

// NotificationMessage - новое уведомление
type NotificationMessage struct {
	BaseMessage
	Data *models.Notification `json:"data"`
}

// NewPositionsMessage создает сообщение со снимком позиций
func NewPositionsMessage(positions []bot.PositionSnapshot) *PositionsMessage {
	if positions == nil {
		positions = []bot.PositionSnapshot{}
	}
	return &PositionsMessage{
		BaseMessage: BaseMessage{Type: MessageTypePositions, Timestamp: time.Now()},
		Count:       len(positions),
		Data:        positions,
	}
}

// NewRiskStateMessage создает сообщение состояния риска
func NewRiskStateMessage(state models.RiskState) *RiskStateMessage {
	return &RiskStateMessage{
		BaseMessage: BaseMessage{Type: MessageTypeRiskState, Timestamp: time.Now()},
		Data:        &RiskStateData{RiskState: state, WinRate: state.WinRate()},
	}
}

// NewNotificationMessage создает сообщение уведомления
func NewNotificationMessage(notif *models.Notification) *NotificationMessage {
	return &NotificationMessage{
		BaseMessage: BaseMessage{Type: MessageTypeNotification, Timestamp: time.Now()},
		Data:        notif,
	}
}
