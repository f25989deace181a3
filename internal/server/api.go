package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lox/celojack/internal/settlement"
)

// apiError is the body of every failed API request
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// verifyResponse carries the replayed round whether or not it matched
type verifyResponse struct {
	Valid        bool                     `json:"valid"`
	Error        *apiError                `json:"error,omitempty"`
	Verification *settlement.Verification `json:"verification,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Code: code, Message: message})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

// handleStats writes a plain text summary of the server
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "Uptime: %s\n", time.Since(s.startedAt).Round(time.Second))
	_, _ = fmt.Fprintf(w, "Live sessions: %d\n", s.manager.Len())
	_, _ = fmt.Fprintf(w, "Connections: %d\n", s.ConnectionCount())
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Rules())
}

// handleVerify replays a claimed round from its seed. A round that does not
// replay is still a successful request, reported with valid=false.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var claim settlement.Claim
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&claim); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidMessage, "invalid claim: "+err.Error())
		return
	}

	v, err := settlement.Verify(claim, s.manager.Rules())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, verifyResponse{Valid: true, Verification: &v})
	case errors.Is(err, settlement.ErrOutcomeMismatch):
		writeJSON(w, http.StatusOK, verifyResponse{
			Error:        &apiError{Code: CodeOutcomeMismatch, Message: err.Error()},
			Verification: &v,
		})
	default:
		writeJSON(w, http.StatusOK, verifyResponse{
			Error: &apiError{Code: "invalid_claim", Message: err.Error()},
		})
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, "session is not live")
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleRounds(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, CodeInvalidMessage, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	rounds, err := s.manager.Rounds(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		code := ErrorCode(err)
		status := http.StatusInternalServerError
		if code == CodeInvalidSession {
			status = http.StatusBadRequest
		} else {
			s.logger.Error("Failed to list rounds", "error", err)
		}
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rounds": rounds})
}
