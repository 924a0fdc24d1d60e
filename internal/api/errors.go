// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/recsync/internal/device"
	"github.com/ManuGH/recsync/internal/resilience"
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Detail: detail})
}

func writeNotFound(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Detail: detail})
}

// writeDeviceError maps engine errors to a status. A busy, tripped or
// absent device is 503 since a retry may succeed; anything else from the
// device is 502.
func writeDeviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "device_unavailable", Detail: err.Error()})
	case device.IsLockTimeout(err):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "device_busy", Detail: err.Error()})
	case errors.Is(err, device.ErrDisconnected):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "device_disconnected", Detail: err.Error()})
	default:
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "device_error", Detail: err.Error()})
	}
}

func writeInternal(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Detail: err.Error()})
}
