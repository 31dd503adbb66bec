package api

import (
	"net/http"
	"strconv"

	"github.com/facturaIA/captcha-ocr-service/internal/db"
)

// GetRecognitions returns the most recent audit log entries.
func (h *Handler) GetRecognitions(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	limit := db.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = db.ClampLimit(n)
	}

	ctx := r.Context()
	recs, err := h.store.ListRecognitions(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list recognitions", "error", err)
		h.sendError(w, http.StatusInternalServerError, "failed to get recognitions")
		return
	}

	// Generate presigned URLs for archived samples
	if h.archive != nil {
		for i := range recs {
			if recs[i].SampleObject == "" {
				continue
			}
			u, err := h.archive.GetPresignedURL(ctx, recs[i].SampleObject, sampleURLTTL)
			if err != nil {
				h.logger.WarnContext(ctx, "failed to presign sample", "id", recs[i].ID, "error", err)
				continue
			}
			recs[i].SampleURL = u
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"count":        len(recs),
		"recognitions": recs,
	})
}

// GetStats returns per-backend success and latency figures.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to get stats", "error", err)
		h.sendError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stats":   stats,
	})
}
