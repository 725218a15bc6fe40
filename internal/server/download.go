package server

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/piyushrajyadav/drop-fade/internal/logging"
	"github.com/piyushrajyadav/drop-fade/internal/registry"
)

// content handles GET /api/file/{code}/content and streams the stored
// bytes. Like the metadata lookup it leaves consumption to the client.
func (h *handlers) content(w http.ResponseWriter, r *http.Request) {
	c, err := h.gw.Open(r.Context(), codeParam(r))
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	defer c.Body.Close()

	rec := c.Record
	hdr := w.Header()
	switch rec.Kind {
	case registry.KindText:
		hdr.Set("Content-Type", "text/plain; charset=utf-8")
		hdr.Set("Content-Length", strconv.Itoa(len(rec.InlineContent)))
	default:
		hdr.Set("Content-Type", rec.MediaType)
		hdr.Set("Content-Length", strconv.FormatInt(rec.SizeBytes, 10))
		hdr.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
			"filename": SanitizeFilename(rec.DisplayName),
		}))
		if rec.Checksum != "" {
			hdr.Set("ETag", strconv.Quote(rec.Checksum))
		}
	}

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, c.Body); err != nil {
		// Headers are gone; all that is left is to note it.
		h.log.Warn("content_stream_aborted", logging.Fields{
			"request_id": RequestIDFromContext(r.Context()),
			"code":       rec.Code,
			"error":      err.Error(),
		})
	}
}
