package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/piyushrajyadav/drop-fade/internal/blob"
	"github.com/piyushrajyadav/drop-fade/internal/gateway"
)

const (
	msgNotFound        = "File not found. The code may be incorrect or expired."
	msgAlreadyConsumed = "This file has already been downloaded."
	msgInternal        = "Internal server error"
)

type messageResp struct {
	Message string `json:"message"`
}

// statusFor maps gateway errors onto an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	var ve *gateway.ValidationError
	var be *gateway.BackendError

	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Message
	case errors.Is(err, gateway.ErrNotFound):
		return http.StatusNotFound, msgNotFound
	case errors.Is(err, gateway.ErrAlreadyConsumed):
		return http.StatusGone, msgAlreadyConsumed
	case errors.As(err, &be):
		if errors.Is(err, blob.ErrCircuitOpen) {
			return http.StatusServiceUnavailable, "Storage is temporarily unavailable"
		}
		if be.Op == "store" {
			return http.StatusInternalServerError, "Failed to upload file"
		}
		return http.StatusBadGateway, "Failed to read file from storage"
	case errors.Is(err, gateway.ErrVerifyFailed):
		return http.StatusInternalServerError, "Failed to verify metadata storage"
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResp{Message: message})
}

// writeGatewayError writes err using statusFor and reports the status used.
func writeGatewayError(w http.ResponseWriter, err error) int {
	status, msg := statusFor(err)
	writeError(w, status, msg)
	return status
}
