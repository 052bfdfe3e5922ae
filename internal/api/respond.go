package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/seantiz/apartment/internal/apartment"
	"github.com/seantiz/apartment/internal/engine"
	"github.com/seantiz/apartment/internal/kind"
	"github.com/seantiz/apartment/internal/store"
)

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// Result classes of engine errors, used as metric labels.
const (
	resultOK          = "ok"
	resultNotFound    = "not_found"
	resultNotLive     = "not_live"
	resultBadRequest  = "bad_request"
	resultUnavailable = "unavailable"
	resultError       = "error"
)

// classifyError maps an engine error to its HTTP status and result class.
func classifyError(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, resultOK
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, resultNotFound
	case errors.Is(err, engine.ErrNotLive):
		return http.StatusConflict, resultNotLive
	case errors.Is(err, kind.ErrUnknownKind),
		errors.Is(err, kind.ErrUnknownOp),
		errors.Is(err, kind.ErrBadArgs):
		return http.StatusBadRequest, resultBadRequest
	case errors.Is(err, engine.ErrClosed),
		errors.Is(err, apartment.ErrNotRunning),
		errors.Is(err, apartment.ErrWakeQueueFull):
		return http.StatusServiceUnavailable, resultUnavailable
	default:
		return http.StatusInternalServerError, resultError
	}
}

// writeEngineError writes the status classifyError picks. Unexpected errors
// are logged and reported as internal without their detail.
func (s *Server) writeEngineError(w http.ResponseWriter, op string, err error) {
	status, result := classifyError(err)
	switch result {
	case resultNotFound:
		s.writeError(w, status, "object not found")
	case resultNotLive:
		s.writeError(w, status, "object is not live")
	case resultError:
		s.logger.Error(op, "error", err)
		s.writeError(w, status, "failed to "+op)
	default:
		s.writeError(w, status, err.Error())
	}
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
