package api

import (
	"encoding/json"
	"net/http"

	"codescope/internal/errors"
)

// ErrorResponse is the wire shape of every failure.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps stable error codes to HTTP status codes.
func statusFor(code errors.Code) int {
	switch code {
	case errors.BadArgument, errors.BadPattern, errors.BadChunking:
		return http.StatusBadRequest
	case errors.NotFound:
		return http.StatusNotFound
	case errors.AlreadyDefined:
		return http.StatusConflict
	case errors.ProjectEvicted:
		return http.StatusGone
	case errors.Capacity:
		return http.StatusServiceUnavailable
	case errors.Timeout:
		return http.StatusGatewayTimeout
	case errors.Cancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(code))
	json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error(), Code: string(code)})
}

func writeInternal(w http.ResponseWriter, err error) {
	writeError(w, errors.Wrap(errors.Internal, err, "internal error"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
