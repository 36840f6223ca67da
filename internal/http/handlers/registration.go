package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/screenfleet/server/internal/registration"
)

// fingerprintHeaders are the request headers folded into the device fingerprint.
var fingerprintHeaders = []string{"Accept", "Accept-Language", "Accept-Encoding"}

// RegistrationHandler handles the device registration endpoint
type RegistrationHandler struct {
	pipeline *registration.Pipeline
}

// NewRegistrationHandler creates a registration handler
func NewRegistrationHandler(pipeline *registration.Pipeline) *RegistrationHandler {
	return &RegistrationHandler{pipeline: pipeline}
}

// registerRequest is the request body for POST /api/register
type registerRequest struct {
	DeviceName      string   `json:"device_name"`
	OrgCode         string   `json:"org_code"`
	RegistrationKey string   `json:"registration_key"`
	HardwareID      string   `json:"hardware_id"`
	MACAddresses    []string `json:"mac_addresses"`
	Capabilities    []string `json:"capabilities"`
}

// registerResponse is the JSON response for a successful registration
type registerResponse struct {
	Success     bool        `json:"success"`
	DeviceID    string      `json:"device_id"`
	Status      string      `json:"status"`
	RiskScore   float64     `json:"risk_score"`
	Credentials interface{} `json:"credentials"`
}

// HandleRegister handles POST /api/register
func (h *RegistrationHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.DeviceName = strings.TrimSpace(req.DeviceName)
	req.RegistrationKey = strings.TrimSpace(req.RegistrationKey)
	if req.DeviceName == "" || req.RegistrationKey == "" {
		respondWithError(w, http.StatusBadRequest, "device_name and registration_key are required")
		return
	}

	headers := make(map[string]string, len(fingerprintHeaders))
	for _, name := range fingerprintHeaders {
		if v := r.Header.Get(name); v != "" {
			headers[name] = v
		}
	}

	result, err := h.pipeline.Register(r.Context(), registration.Request{
		DeviceName:      req.DeviceName,
		OrgCode:         req.OrgCode,
		RegistrationKey: req.RegistrationKey,
		HardwareID:      req.HardwareID,
		MACAddresses:    req.MACAddresses,
		Capabilities:    req.Capabilities,
	}, registration.ClientContext{
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
		Headers:   headers,
	})
	if err != nil {
		respondWithError(w, registrationStatus(err), err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, registerResponse{
		Success:     true,
		DeviceID:    result.Device.ID.String(),
		Status:      string(result.Device.Status),
		RiskScore:   result.RiskScore,
		Credentials: result.Credentials,
	})
}

// registrationStatus maps pipeline errors to HTTP status codes.
func registrationStatus(err error) int {
	switch {
	case errors.Is(err, registration.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, registration.ErrInvalidKey),
		errors.Is(err, registration.ErrCompanyNotFound):
		return http.StatusNotFound
	case errors.Is(err, registration.ErrKeyAlreadyUsed),
		errors.Is(err, registration.ErrKeyExpired),
		errors.Is(err, registration.ErrDuplicateName),
		errors.Is(err, registration.ErrSimilarNameExists):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
