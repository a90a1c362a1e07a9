package handlers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-ledger/internal/backup"
	"github.com/ukydev/vehicle-ledger/internal/ledger"
)

// maxImportBytes bounds the size of an uploaded bundle.
const maxImportBytes = 32 << 20

const (
	contentTypeCSV  = "text/csv"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// BackupHandler serves ledger export and import.
type BackupHandler struct {
	ledger *ledger.Ledger
	now    func() time.Time
}

// NewBackupHandler creates a new BackupHandler.
func NewBackupHandler(l *ledger.Ledger) *BackupHandler {
	return &BackupHandler{ledger: l, now: time.Now}
}

// Export handles GET /api/export?format=json|csv|xlsx. With format=csv a
// collection parameter limits the output to one collection.
func (h *BackupHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	collection := r.URL.Query().Get("collection")
	if collection != "" {
		if _, err := h.ledger.Store().Collection(collection); err != nil {
			writeError(w, err)
			return
		}
	}

	bundle, err := h.ledger.ExportAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	var (
		buf         bytes.Buffer
		contentType string
	)
	switch format {
	case "json":
		contentType = "application/json"
		err = writeIndented(&buf, bundle)
	case "csv":
		contentType = contentTypeCSV
		if collection != "" {
			err = backup.WriteCollectionCSV(&buf, bundle, collection)
		} else {
			err = backup.WriteCSV(&buf, bundle)
		}
	case "xlsx":
		contentType = contentTypeXLSX
		err = backup.WriteXLSX(&buf, bundle)
	default:
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "format must be json, csv or xlsx")
		return
	}
	if err != nil {
		writeError(w, fmt.Errorf("rendering %s export: %w", format, err))
		return
	}

	log.WithFields(log.Fields{
		"format":    format,
		"export_id": bundle.Meta.ExportID,
		"bytes":     buf.Len(),
	}).Info("Ledger exported")

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", backup.FileName(h.now(), format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Import handles POST /api/import. The body is a JSON bundle; the response
// is the per-collection report, also on a 500 once collections were written.
func (h *BackupHandler) Import(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "invalid_request", "Failed to read bundle")
		return
	}
	report, err := h.ledger.ImportAll(r.Context(), raw)
	if err != nil && report == nil {
		writeError(w, err)
		return
	}
	if err != nil {
		log.WithError(err).Error("Import finished with an error")
		writeJSON(w, http.StatusInternalServerError, report)
		return
	}
	status := http.StatusOK
	if !report.OK() {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, report)
}
