package handlers

import (
	"errors"
	"io"
	"net/http"
)

// RiskHandler - состояние риска и kill switch
//
// Endpoints:
// - GET /api/v1/risk
// - POST /api/v1/risk/kill-switch
// - DELETE /api/v1/risk/kill-switch
type RiskHandler struct {
	risk RiskOperator
}

// NewRiskHandler создает RiskHandler
func NewRiskHandler(risk RiskOperator) *RiskHandler {
	return &RiskHandler{risk: risk}
}

// GetRisk возвращает снимок состояния риска
//
// GET /api/v1/risk
func (h *RiskHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.risk.GetOverview())
}

// KillSwitchRequest - тело POST /api/v1/risk/kill-switch
type KillSwitchRequest struct {
	Reason string `json:"reason"`
}

// ActivateKillSwitch включает kill switch. Тело необязательно.
//
// POST /api/v1/risk/kill-switch
func (h *RiskHandler) ActivateKillSwitch(w http.ResponseWriter, r *http.Request) {
	var req KillSwitchRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	if err := h.risk.ActivateKillSwitch(r.Context(), req.Reason); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Kill switch activated but state not saved: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, h.risk.GetOverview())
}

// DeactivateKillSwitch выключает kill switch
//
// DELETE /api/v1/risk/kill-switch
func (h *RiskHandler) DeactivateKillSwitch(w http.ResponseWriter, r *http.Request) {
	if err := h.risk.DeactivateKillSwitch(r.Context()); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Kill switch deactivated but state not saved: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, h.risk.GetOverview())
}
