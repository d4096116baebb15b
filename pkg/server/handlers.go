package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/securecheckio/rules-engine/pkg/engine"
	"github.com/securecheckio/rules-engine/pkg/rules"
	"github.com/securecheckio/rules-engine/pkg/state"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// withRequestID assigns every request a UUID for log correlation.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// evaluateRequest is the wire shape of POST /v1/evaluate.
type evaluateRequest struct {
	TokenID        string                    `json:"token_id"`
	ConversationID string                    `json:"conversation_id"`
	AccountID      string                    `json:"account_id,omitempty"`
	Message        string                    `json:"message"`
	State          *state.ConversationState `json:"state,omitempty"`
}

// evaluateResult is the wire shape of one evaluation result. Durations are
// reported as milliseconds to match the persisted-state conventions.
type evaluateResult struct {
	Matched        bool                      `json:"matched"`
	RuleID         string                    `json:"rule_id,omitempty"`
	Action         rules.Action              `json:"action,omitempty"`
	Severity       rules.Severity            `json:"severity,omitempty"`
	Category       rules.Category            `json:"category,omitempty"`
	Reason         string                    `json:"reason,omitempty"`
	MatchedPattern string                    `json:"matched_pattern,omitempty"`
	Similarity     float64                   `json:"similarity,omitempty"`
	State          *state.ConversationState `json:"state,omitempty"`
	EvalTimeMS     float64                   `json:"eval_time_ms"`
}

type evaluateResponse struct {
	Results []evaluateResult `json:"results"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.TokenID == "" || req.ConversationID == "" {
		s.writeError(w, http.StatusBadRequest, "token_id and conversation_id are required")
		return
	}

	results, err := s.engine.Evaluate(r.Context(), &engine.EvaluationContext{
		TokenID:        req.TokenID,
		ConversationID: req.ConversationID,
		AccountID:      req.AccountID,
		Message:        req.Message,
		State:          req.State,
	})
	if err != nil {
		s.logger.Error("evaluation failed",
			"request_id", r.Context().Value(requestIDKey),
			"error", err,
		)
		s.writeError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}

	resp := evaluateResponse{Results: make([]evaluateResult, 0, len(results))}
	for _, res := range results {
		out := evaluateResult{
			Matched:        res.Matched,
			Action:         res.Action,
			Reason:         res.Reason,
			MatchedPattern: res.MatchedPattern,
			Similarity:     res.Similarity,
			State:          res.State,
			EvalTimeMS:     float64(res.EvalTime.Microseconds()) / 1000,
		}
		if res.Rule != nil {
			out.RuleID = res.Rule.ID
			out.Severity = res.Rule.Severity
			out.Category = res.Rule.Category
		}
		resp.Results = append(resp.Results, out)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]int{"rule_count": s.engine.RuleCount()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
