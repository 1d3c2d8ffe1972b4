package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"futuresbot/internal/models"
)

// NotificationHandler - журнал событий аудита
//
// Endpoints:
// - GET /api/v1/notifications
// - GET /api/v1/notifications?types=guardrail,kill_switch&limit=50
type NotificationHandler struct {
	notifications NotificationReader
}

// NewNotificationHandler создает NotificationHandler
func NewNotificationHandler(notifications NotificationReader) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// GetNotificationsResponse представляет ответ списка уведомлений
type GetNotificationsResponse struct {
	Notifications []*models.Notification `json:"notifications"`
	Total         int                    `json:"total"`
}

// GetNotifications возвращает уведомления, новые первыми.
// Неизвестные типы в фильтре игнорируются, limit по умолчанию 100.
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	var types []string
	if v := r.URL.Query().Get("types"); v != "" {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				types = append(types, part)
			}
		}
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	list, err := h.notifications.GetNotifications(r.Context(), types, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get notifications: "+err.Error())
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}
	respondWithJSON(w, http.StatusOK, GetNotificationsResponse{Notifications: list, Total: len(list)})
}
