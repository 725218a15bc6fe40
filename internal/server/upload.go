package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/piyushrajyadav/drop-fade/internal/gateway"
	"github.com/piyushrajyadav/drop-fade/internal/logging"
	"github.com/piyushrajyadav/drop-fade/internal/registry"
)

const (
	// multipartOverhead is allowed on top of the file limit for boundaries
	// and the other form fields.
	multipartOverhead = 1 << 20
	multipartMemory   = 1 << 20

	msgNoText = "No text provided or invalid format"
)

// uploadResp is returned after a successful upload. ExpiresAt is epoch
// milliseconds.
type uploadResp struct {
	Code      string `json:"code"`
	ExpiresAt int64  `json:"expiresAt"`
	Message   string `json:"message"`
}

type textUploadReq struct {
	Text   string `json:"text"`
	Expiry string `json:"expiry"`
}

// uploadFile handles POST /api/upload/file with multipart fields "file"
// and optional "expiry".
func (h *handlers) uploadFile(w http.ResponseWriter, r *http.Request) {
	limit := h.gw.MaxFileBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "File size must be less than "+gateway.FormatLimit(limit))
			return
		}
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	upload := gateway.FileUpload{Size: -1}
	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// Body stays nil and the gateway reports the missing file.
	case err != nil:
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	default:
		defer file.Close()
		upload.Body = file
		upload.Size = header.Size
		upload.Name = SanitizeFilename(header.Filename)
		upload.MediaType = normalizeMediaType(header.Filename, header.Header.Get("Content-Type"))
	}

	res, err := h.gw.UploadFile(r.Context(), upload, registry.ParseExpiryOption(r.FormValue("expiry")))
	if err != nil {
		h.logUploadError(r, "file", err)
		writeGatewayError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResp{
		Code:      res.Code,
		ExpiresAt: res.ExpiresAt.UnixMilli(),
		Message:   "File uploaded successfully",
	})
}

// uploadText handles POST /api/upload/text with a JSON body.
func (h *handlers) uploadText(w http.ResponseWriter, r *http.Request) {
	// JSON escaping can at most double the payload; leave room for that.
	r.Body = http.MaxBytesReader(w, r.Body, 2*h.gw.MaxTextBytes()+multipartOverhead)

	var req textUploadReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "Text must be less than "+gateway.FormatLimit(h.gw.MaxTextBytes()))
			return
		}
		writeError(w, http.StatusBadRequest, msgNoText)
		return
	}

	res, err := h.gw.UploadText(r.Context(), req.Text, registry.ParseExpiryOption(req.Expiry))
	if err != nil {
		h.logUploadError(r, "text", err)
		writeGatewayError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResp{
		Code:      res.Code,
		ExpiresAt: res.ExpiresAt.UnixMilli(),
		Message:   "Text saved successfully",
	})
}

func (h *handlers) logUploadError(r *http.Request, kind string, err error) {
	fields := logging.Fields{
		"request_id": RequestIDFromContext(r.Context()),
		"kind":       kind,
	}
	if gateway.IsValidation(err) {
		fields["reason"] = err.Error()
		h.log.Debug("upload_rejected", fields)
		return
	}
	h.log.Error("upload_failed", fields, err)
}
