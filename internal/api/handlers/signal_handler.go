package handlers

import (
	"net/http"
	"strings"

	"futuresbot/internal/models"
)

// SignalHandler принимает сигналы внешнего генератора для сканера
//
// Endpoints:
// - POST /api/v1/signals
type SignalHandler struct {
	board   SignalPoster
	symbols map[string]bool
}

// NewSignalHandler создает SignalHandler; принимаются только symbols
func NewSignalHandler(board SignalPoster, symbols []string) *SignalHandler {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	return &SignalHandler{board: board, symbols: set}
}

// SignalRequest - тело POST /api/v1/signals
type SignalRequest struct {
	Symbol     string             `json:"symbol"`
	Signal     string             `json:"signal"` // BUY, SELL, HOLD
	Confidence float64            `json:"confidence"`
	Indicators *models.Indicators `json:"indicators,omitempty"`
}

// PostSignal сохраняет сигнал; сканер заберет его на следующей итерации
//
// HTTP коды:
// - 202 Accepted
// - 400 Bad Request: символ не отслеживается или невалидное тело
func (h *SignalHandler) PostSignal(w http.ResponseWriter, r *http.Request) {
	var req SignalRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if !h.symbols[symbol] {
		respondWithError(w, http.StatusBadRequest, "Symbol is not tracked: "+req.Symbol)
		return
	}

	res := models.SignalResult{Signal: req.Signal, Confidence: req.Confidence}
	res.Normalize()
	h.board.Post(symbol, req.Indicators, res)

	respondWithJSON(w, http.StatusAccepted, res)
}
