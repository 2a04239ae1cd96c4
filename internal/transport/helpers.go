package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/weftsched/weft/internal/kernel"
)

const maxBodySize = 1 << 20 // 1 MB

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response. This is for transport-level
// failures only (bad JSON, unknown instance, unknown route param) — a
// kernel call that returns a non-Success ErrorCode is not a transport
// failure, so it still gets HTTP 200 with that code in the body, per
// SPEC_FULL.md §4.J's "never a 5xx with no body" contract.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeErrorCode writes the {"error_code": "..."} envelope every embedded
// API call produces, regardless of whether the code is Success or not.
func (s *Server) writeErrorCode(w http.ResponseWriter, code kernel.ErrorCode) {
	s.writeJSON(w, http.StatusOK, errorCodeResponse{ErrorCode: code.String()})
}

type errorCodeResponse struct {
	ErrorCode string `json:"error_code"`
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

// uintURLParam parses a chi URL parameter as a uint64, used for operation
// and resource ids embedded in the path.
func uintURLParam(r *http.Request, key string) (uint64, bool) {
	v := chi.URLParam(r, key)
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseJoinMode maps the wire string onto a kernel.JoinMode. An empty or
// unrecognized mode defaults to JoinAll, the stricter of the two.
func parseJoinMode(s string) kernel.JoinMode {
	switch s {
	case "any", "Any":
		return kernel.JoinAny
	default:
		return kernel.JoinAll
	}
}

// instanceFromRequest resolves the {id} path parameter to a registered
// instance, writing a 404 and returning ok == false if it isn't one.
func (s *Server) instanceFromRequest(w http.ResponseWriter, r *http.Request) (*instance, bool) {
	id := chi.URLParam(r, "id")
	inst, ok := s.registry.get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "scheduler instance not found")
		return nil, false
	}
	return inst, true
}
