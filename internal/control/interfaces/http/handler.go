package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"hygrostat-cloud/internal/audit"
	controlapp "hygrostat-cloud/internal/control/application"
	control "hygrostat-cloud/internal/control/domain"
)

// Handler provides the operator control endpoints.
type Handler struct {
	engine      *controlapp.Engine
	auditLogger audit.Logger
}

// NewHandler constructs a handler.
func NewHandler(engine *controlapp.Engine, auditLogger audit.Logger) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("control handler: nil engine")
	}
	return &Handler{engine: engine, auditLogger: auditLogger}, nil
}

// HandleOverride handles POST/DELETE /api/v1/control/override.
func (h *Handler) HandleOverride(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.setOverride(w, r)
	case http.MethodDelete:
		h.clearOverride(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) setOverride(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req struct {
		State control.State `json:"state"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	status, err := h.engine.Command(r.Context(), req.State)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)

	h.logAudit(r, "control.override.set", status.CycleID, body)
}

func (h *Handler) clearOverride(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearOverride()
	w.WriteHeader(http.StatusNoContent)
	h.logAudit(r, "control.override.clear", "", nil)
}

// HandleWeights handles PUT /api/v1/control/weights.
func (h *Handler) HandleWeights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req struct {
		Weights map[string]float64 `json:"weights"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.engine.SetWeights(req.Weights); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	h.logAudit(r, "control.weights.set", "", body)
}

// HandleThresholds handles PUT /api/v1/control/thresholds.
func (h *Handler) HandleThresholds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req control.Thresholds
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.engine.SetThresholds(req); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	h.logAudit(r, "control.thresholds.set", "", body)
}

// HandleStatus handles GET /api/v1/control/status. The actuator's own
// state report is included when the controller is reachable; a failure
// there degrades to a null field, never an error.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status := h.engine.Status()
	resp := struct {
		controlapp.EngineStatus
		ActuatorEnabled *bool `json:"actuator_enabled,omitempty"`
	}{EngineStatus: status}
	if state, err := h.engine.ActuatorState(r.Context()); err == nil {
		resp.ActuatorEnabled = &state.Enabled
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) logAudit(r *http.Request, action, resourceID string, payload []byte) {
	if h.auditLogger == nil {
		return
	}
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        r.Header.Get("X-Operator"),
		Action:       action,
		ResourceType: "control",
		ResourceID:   resourceID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}
