package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/metrics"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/registry"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps registry errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrTransferPending):
		return http.StatusGatewayTimeout
	case errors.Is(err, registry.ErrTransferFailed):
		return http.StatusBadGateway
	case errors.Is(err, registry.ErrPaused):
		return http.StatusLocked
	case errors.Is(err, registry.ErrNotOwner),
		errors.Is(err, registry.ErrBlockedAccount):
		return http.StatusForbidden
	case errors.Is(err, registry.ErrInvalidProof),
		errors.Is(err, registry.ErrAlreadyClaimed),
		errors.Is(err, registry.ErrAlreadyBlocked),
		errors.Is(err, registry.ErrNotBlocked),
		errors.Is(err, registry.ErrNotPaused),
		errors.Is(err, registry.ErrAlreadyPaused):
		return http.StatusConflict
	case errors.Is(err, registry.ErrInvalidAmount),
		errors.Is(err, registry.ErrInvalidAddress),
		errors.Is(err, registry.ErrZeroOwner):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// resultFor classifies an operation outcome for the metrics result label.
func resultFor(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case statusFor(err) < http.StatusInternalServerError:
		return metrics.ResultRejected
	default:
		return metrics.ResultFailed
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeRegistryError reports err with its mapped status. Internal failures
// are logged and not echoed to the client.
func (s *Server) writeRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Sugar().Errorw("Registry operation failed",
			"request_id", requestIDFrom(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		if status == http.StatusInternalServerError {
			writeError(w, status, "Internal error")
			return
		}
	}
	writeError(w, status, err.Error())
}
