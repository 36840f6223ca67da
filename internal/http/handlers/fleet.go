package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/screenfleet/server/internal/gateway"
)

// FleetHandler exposes the internal command surface used by the content
// scheduler to push messages at devices.
type FleetHandler struct {
	gateway *gateway.Gateway
}

// NewFleetHandler creates a fleet handler
func NewFleetHandler(gw *gateway.Gateway) *FleetHandler {
	return &FleetHandler{gateway: gw}
}

// commandRequest is the body for device commands and company broadcasts
type commandRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// HandleSendCommand handles POST /api/fleet/devices/{deviceID}/command
func (h *FleetHandler) HandleSendCommand(w http.ResponseWriter, r *http.Request) {
	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid device ID")
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Type == "" {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	delivered := h.gateway.SendToDevice(r.Context(), deviceID, gateway.Envelope{
		Type: req.Type,
		Data: req.Data,
	})

	respondJSON(w, http.StatusOK, map[string]bool{
		"delivered": delivered,
		"queued":    !delivered,
	})
}

// HandleBroadcast handles POST /api/fleet/companies/{companyID}/broadcast
func (h *FleetHandler) HandleBroadcast(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(chi.URLParam(r, "companyID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid company ID")
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Type == "" {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	delivered, queued, err := h.gateway.BroadcastToCompany(r.Context(), companyID, gateway.Envelope{
		Type: req.Type,
		Data: req.Data,
	})
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "broadcast failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{
		"delivered": delivered,
		"queued":    queued,
	})
}
