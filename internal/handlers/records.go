package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-ledger/internal/ledger"
)

// RecordsHandler serves CRUD over every numbered collection.
type RecordsHandler struct {
	ledger *ledger.Ledger
}

// NewRecordsHandler creates a new RecordsHandler.
func NewRecordsHandler(l *ledger.Ledger) *RecordsHandler {
	return &RecordsHandler{ledger: l}
}

// List handles GET /api/records/{collection}?orderBy=field.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	records, err := h.ledger.ListRecords(r.Context(), collection, r.URL.Query().Get("orderBy"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"collection": collection,
		"records":    records,
	})
}

// Get handles GET /api/records/{collection}/{id}.
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rec, err := h.ledger.GetRecord(r.Context(), chi.URLParam(r, "collection"), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Create handles POST /api/records/{collection}. Any id in the body is
// ignored; the store assigns one.
func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	rec, err := h.ledger.NewRecord(collection)
	if err != nil {
		writeError(w, err)
		return
	}
	if !readJSON(w, r, rec) {
		return
	}
	rec.SetID(0)

	id, err := h.ledger.AddRecord(r.Context(), collection, rec)
	if err != nil {
		writeError(w, err)
		return
	}
	log.WithFields(log.Fields{"collection": collection, "id": id}).Info("Record created")
	writeJSON(w, http.StatusCreated, rec)
}

// Update handles PUT /api/records/{collection}/{id} as a full replacement.
func (h *RecordsHandler) Update(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rec, err := h.ledger.NewRecord(collection)
	if err != nil {
		writeError(w, err)
		return
	}
	if !readJSON(w, r, rec) {
		return
	}
	rec.SetID(id)

	if err := h.ledger.UpdateRecord(r.Context(), collection, rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Delete handles DELETE /api/records/{collection}/{id}.
func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.ledger.DeleteRecord(r.Context(), collection, id); err != nil {
		writeError(w, err)
		return
	}
	log.WithFields(log.Fields{"collection": collection, "id": id}).Info("Record deleted")
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /api/records/{collection}.
func (h *RecordsHandler) Clear(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	if err := h.ledger.ClearCollection(r.Context(), collection); err != nil {
		writeError(w, err)
		return
	}
	log.WithField("collection", collection).Warn("Collection cleared")
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "Invalid "+name)
		return 0, false
	}
	return id, true
}
