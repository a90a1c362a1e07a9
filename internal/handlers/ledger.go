package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ukydev/vehicle-ledger/internal/db"
	"github.com/ukydev/vehicle-ledger/internal/ledger"
	"github.com/ukydev/vehicle-ledger/internal/models"
	"github.com/ukydev/vehicle-ledger/internal/reminders"
)

// LedgerHandler serves the derived views, the profile and settings.
type LedgerHandler struct {
	ledger *ledger.Ledger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(l *ledger.Ledger) *LedgerHandler {
	return &LedgerHandler{ledger: l}
}

// Total handles GET /api/totals/{kind}.
func (h *LedgerHandler) Total(w http.ResponseWriter, r *http.Request) {
	total, err := h.ledger.GetRunningTotal(r.Context(), models.TotalKind(chi.URLParam(r, "kind")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, total)
}

// Breakdown handles GET /api/totals/{kind}/breakdown.
func (h *LedgerHandler) Breakdown(w http.ResponseWriter, r *http.Request) {
	b, err := h.ledger.GetBreakdown(r.Context(), models.TotalKind(chi.URLParam(r, "kind")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// RebuildTotals handles POST /api/totals/rebuild.
func (h *LedgerHandler) RebuildTotals(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.RebuildTotals(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FuelEfficiency handles GET /api/fuel/efficiency. The summary is null
// until two usable fill-ups exist.
func (h *LedgerHandler) FuelEfficiency(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ledger.GetFuelEfficiency(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

// Reminders handles GET /api/reminders.
func (h *LedgerHandler) Reminders(w http.ResponseWriter, r *http.Request) {
	rs, err := h.ledger.GetUpcomingServices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if rs == nil {
		rs = []reminders.Reminder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reminders": rs,
		"counts":    reminders.Counts(rs),
	})
}

// CompleteService handles POST /api/maintenance/{id}/services/{index}/complete
// and, without an index, POST /api/maintenance/{id}/complete for the visit's
// own trigger.
func (h *LedgerHandler) CompleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	index := reminders.RecordLevel
	if raw := chi.URLParam(r, "index"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "Invalid index")
			return
		}
		index = n
	}

	var c reminders.Completion
	if !readJSON(w, r, &c) {
		return
	}
	rec, err := h.ledger.MarkServiceComplete(r.Context(), id, index, c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetProfile handles GET /api/profile.
func (h *LedgerHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.ledger.GetProfile(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateProfile handles PUT /api/profile.
func (h *LedgerHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var p models.Profile
	if !readJSON(w, r, &p) {
		return
	}
	saved, err := h.ledger.UpdateProfile(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// SetOdometer handles PUT /api/profile/odometer. This is the manual
// correction path and may lower the reading.
func (h *LedgerHandler) SetOdometer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Odometer *float64 `json:"odometer"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if req.Odometer == nil {
		writeError(w, db.NewValidationError("odometer", "is required"))
		return
	}
	p, err := h.ledger.SetOdometer(r.Context(), *req.Odometer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetSetting handles GET /api/settings/{key}.
func (h *LedgerHandler) GetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	s, found, err := h.ledger.GetSetting(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeJSONError(w, http.StatusNotFound, "not_found", "Setting "+key+" not found")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// PutSetting handles PUT /api/settings/{key}. The body is the raw value.
func (h *LedgerHandler) PutSetting(w http.ResponseWriter, r *http.Request) {
	var value json.RawMessage
	if !readJSON(w, r, &value) {
		return
	}
	s, err := h.ledger.PutSetting(r.Context(), chi.URLParam(r, "key"), value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
