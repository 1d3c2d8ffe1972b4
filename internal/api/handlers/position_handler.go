package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"futuresbot/internal/bot"
	"futuresbot/internal/models"
	"futuresbot/internal/service"
)

// PositionHandler - позиции реестра и журнал сделок
//
// Endpoints:
// - GET /api/v1/positions
// - GET /api/v1/positions/{symbol}
// - POST /api/v1/positions - ручное открытие через те же гардрейлы
// - DELETE /api/v1/positions/{symbol} - ручное закрытие
// - GET /api/v1/trades?limit=50
type PositionHandler struct {
	risk RiskOperator
}

// NewPositionHandler создает PositionHandler
func NewPositionHandler(risk RiskOperator) *PositionHandler {
	return &PositionHandler{risk: risk}
}

// PositionsResponse - список позиций
type PositionsResponse struct {
	Positions []bot.PositionSnapshot `json:"positions"`
	Total     int                    `json:"total"`
}

// OpenPositionResponse - результат ручного открытия
type OpenPositionResponse struct {
	Position bot.PositionSnapshot `json:"position"`
	Decision bot.Decision         `json:"decision"`
}

// GetPositions возвращает все позиции
//
// GET /api/v1/positions
func (h *PositionHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.risk.GetPositions()
	if positions == nil {
		positions = []bot.PositionSnapshot{}
	}
	respondWithJSON(w, http.StatusOK, PositionsResponse{Positions: positions, Total: len(positions)})
}

// GetPosition возвращает позицию по символу
//
// GET /api/v1/positions/{symbol}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	p, err := h.risk.GetPosition(mux.Vars(r)["symbol"])
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Position not found")
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

// OpenPosition открывает позицию вручную
//
// POST /api/v1/positions
//
// HTTP коды:
// - 201 Created: позиция открыта
// - 400 Bad Request: невалидный запрос
// - 422 Unprocessable Entity: сделка отклонена гардрейлом (code = причина)
// - 502 Bad Gateway: ошибка биржи
func (h *PositionHandler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req service.ManualTradeRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	snap, d, err := h.risk.OpenPosition(r.Context(), req)
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		respondWithError(w, http.StatusBadGateway, "Failed to open position: "+err.Error())
	case !d.Allowed:
		respondWithJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "Trade rejected",
			Code:    string(d.Reason.Code),
			Details: d.Reason.Detail,
		})
	default:
		respondWithJSON(w, http.StatusCreated, OpenPositionResponse{Position: snap, Decision: d})
	}
}

// ClosePosition закрывает позицию вручную
//
// DELETE /api/v1/positions/{symbol}
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	rec, err := h.risk.ClosePosition(r.Context(), mux.Vars(r)["symbol"])
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, bot.ErrPositionNotFound):
		respondWithError(w, http.StatusNotFound, "Position not found")
	case err != nil:
		respondWithError(w, http.StatusBadGateway, "Failed to close position: "+err.Error())
	default:
		respondWithJSON(w, http.StatusOK, rec)
	}
}

// TradesResponse - журнал закрытых сделок
type TradesResponse struct {
	Trades []*models.TradeRecord `json:"trades"`
	Total  int                   `json:"total"`
}

// GetTrades возвращает последние закрытые сделки
//
// GET /api/v1/trades?limit=50
func (h *PositionHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	trades, err := h.risk.GetTrades(r.Context(), limit)
	switch {
	case errors.Is(err, service.ErrNoTradeStore):
		respondWithError(w, http.StatusNotImplemented, "Trade journal is not configured")
		return
	case err != nil:
		respondWithError(w, http.StatusInternalServerError, "Failed to get trades: "+err.Error())
		return
	}
	if trades == nil {
		trades = []*models.TradeRecord{}
	}
	respondWithJSON(w, http.StatusOK, TradesResponse{Trades: trades, Total: len(trades)})
}
