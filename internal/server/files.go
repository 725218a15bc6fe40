package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/piyushrajyadav/drop-fade/internal/gateway"
	"github.com/piyushrajyadav/drop-fade/internal/logging"
	"github.com/piyushrajyadav/drop-fade/internal/registry"
)

type handlers struct {
	gw      *gateway.Gateway
	log     *logging.Logger
	version string
	commit  string
	checks  map[string]Check
}

func codeParam(r *http.Request) string {
	return registry.NormalizeCode(chi.URLParam(r, "code"))
}

// contentPath is where clients fetch the bytes behind a code.
func contentPath(code string) string {
	return "/api/file/" + code + "/content"
}

// getMetadata handles GET /api/file/{code}. It never marks the record
// consumed; clients call DELETE on the same path once they have the content.
func (h *handlers) getMetadata(w http.ResponseWriter, r *http.Request) {
	rec, err := h.gw.FetchMetadata(r.Context(), codeParam(r))
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	view := rec.View(h.gw.Now())
	if rec.Kind == registry.KindFile {
		view.URL = contentPath(rec.Code)
	}
	writeJSON(w, http.StatusOK, view)
}

// markConsumed handles DELETE /api/file/{code}: the record is flagged as
// accessed and stays until it expires. Unknown codes still get a 200.
func (h *handlers) markConsumed(w http.ResponseWriter, r *http.Request) {
	if err := h.gw.Consume(r.Context(), codeParam(r)); err != nil {
		h.log.Error("consume_failed", logging.Fields{"request_id": RequestIDFromContext(r.Context())}, err)
		writeError(w, http.StatusInternalServerError, "Failed to mark file as accessed")
		return
	}
	writeJSON(w, http.StatusOK, messageResp{Message: "File marked as accessed"})
}

type successResp struct {
	Success bool `json:"success"`
}

// deleteFile handles POST /api/file/delete/{code}.
func (h *handlers) deleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.gw.Delete(r.Context(), codeParam(r)); err != nil {
		status, msg := statusFor(err)
		if status == http.StatusNotFound {
			msg = "File not found"
		}
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, successResp{Success: true})
}
