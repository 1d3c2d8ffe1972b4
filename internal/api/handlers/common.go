package handlers

import (
	"context"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"futuresbot/internal/bot"
	"futuresbot/internal/models"
	"futuresbot/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes - предел тела запроса
const maxBodyBytes = 1 << 20

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// RiskOperator - операции над риском и позициями.
//
// Реализуется service.RiskService
type RiskOperator interface {
	GetOverview() service.RiskOverview
	ActivateKillSwitch(ctx context.Context, reason string) error
	DeactivateKillSwitch(ctx context.Context) error
	GetPositions() []bot.PositionSnapshot
	GetPosition(symbol string) (bot.PositionSnapshot, error)
	OpenPosition(ctx context.Context, req service.ManualTradeRequest) (bot.PositionSnapshot, bot.Decision, error)
	ClosePosition(ctx context.Context, symbol string) (*models.TradeRecord, error)
	GetTrades(ctx context.Context, limit int) ([]*models.TradeRecord, error)
}

// NotificationReader - чтение журнала событий.
//
// Реализуется service.NotificationService
type NotificationReader interface {
	GetNotifications(ctx context.Context, types []string, limit int) ([]*models.Notification, error)
}

// SignalPoster - прием внешних сигналов для сканера.
//
// Реализуется service.SignalBoard
type SignalPoster interface {
	Post(symbol string, ind *models.Indicators, res models.SignalResult)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
