package api

import (
	"net/http"
	"strconv"

	"github.com/garnizeh/introdesk/internal/models"
	"github.com/garnizeh/introdesk/pkg/repository"
)

// DealsHandler serves the client dashboard's read side of the pipeline.
type DealsHandler struct {
	deals   repository.DealRepo
	signals repository.SignalRepo
}

func NewDealsHandler(deals repository.DealRepo, signals repository.SignalRepo) *DealsHandler {
	return &DealsHandler{deals: deals, signals: signals}
}

func (h *DealsHandler) ListDeals(w http.ResponseWriter, r *http.Request) {
	clientID := callerClientID(r)
	if callerRole(r) == RoleAdmin {
		// admins may scope by any client or see everything
		clientID = r.URL.Query().Get("client_id")
	}

	deals, err := h.deals.ListDeals(r.Context(), clientID)
	if err != nil {
		writeError(w, err)
		return
	}
	if deals == nil {
		deals = []models.Deal{}
	}

	writeJSON(w, map[string]any{"total": len(deals), "items": deals}, http.StatusOK)
}

func (h *DealsHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	clientID := callerClientID(r)
	publishedOnly := true
	if callerRole(r) == RoleAdmin {
		clientID = r.URL.Query().Get("client_id")
		if clientID == "" {
			http.Error(w, "client_id is required", http.StatusBadRequest)
			return
		}
		// admins see unpublished signals too unless they ask otherwise
		publishedOnly = false
		if v := r.URL.Query().Get("published"); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				publishedOnly = b
			}
		}
	}

	signals, err := h.signals.ListSignals(r.Context(), clientID, publishedOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	if signals == nil {
		signals = []models.Signal{}
	}

	writeJSON(w, map[string]any{"total": len(signals), "items": signals}, http.StatusOK)
}
