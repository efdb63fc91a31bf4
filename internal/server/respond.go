package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/meridianbank/core/internal/bankerr"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var statusByCode = map[string]int{
	"INVALID_INPUT":      http.StatusBadRequest,
	"NOT_FOUND":          http.StatusNotFound,
	"FORBIDDEN":          http.StatusForbidden,
	"INVALID_STATE":      http.StatusUnprocessableEntity,
	"INSUFFICIENT_FUNDS": http.StatusUnprocessableEntity,
	"CONFLICT":           http.StatusConflict,
	"BAD_CREDENTIALS":    http.StatusUnauthorized,
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("response encode failed", zap.Error(err))
	}
}

// writeError maps a taxonomy error to its HTTP status. Expected outcomes
// keep their message; internal failures are logged and surfaced generically.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := bankerr.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := err.Error()
	if !bankerr.Expected(err) {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		message = "internal error"
	}
	s.writeJSON(w, status, errorResponse{Code: code, Message: message})
}
