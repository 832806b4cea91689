package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"comment-insights/internal/common/errors"
	"comment-insights/internal/common/validation"
	"comment-insights/internal/engine/orchestrator"
)

var requestSchema = validation.MustCompile(validation.CommentsRequestSchema)

type analyzeRequest struct {
	RequestID string   `json:"requestId"`
	Comments  []string `json:"comments"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		s.writeError(w, r, errors.NewInputInvalidError("request body unreadable or too large: "+err.Error()))
		return
	}

	result, err := requestSchema.ValidateBytes(body)
	if err != nil {
		s.writeError(w, r, errors.NewInputInvalidError("request body is not valid JSON"))
		return
	}
	if !result.Valid {
		s.writeError(w, r, errors.NewInputInvalidError(result.Summary()))
		return
	}

	var req analyzeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, errors.NewInputInvalidError(err.Error()))
		return
	}

	runID := req.RequestID
	if runID == "" {
		runID = middleware.GetReqID(r.Context())
	}
	var opts []orchestrator.RunOption
	if runID != "" {
		opts = append(opts, orchestrator.WithRunID(runID))
	}

	analysis, err := s.analyzer.AnalyzeAll(r.Context(), req.Comments, opts...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("X-Analysis-Status", analysis.StatusLine())
	writeJSON(w, http.StatusOK, analysis)
}

// statusFor maps a run failure onto the HTTP status the client sees.
func statusFor(err error) int {
	switch {
	case stderrors.Is(err, errors.ErrNoInput), stderrors.Is(err, errors.ErrInputInvalid):
		return http.StatusBadRequest
	case stderrors.Is(err, errors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case stderrors.Is(err, errors.ErrAllBatchesFailed), stderrors.Is(err, errors.ErrFatalRemote):
		return http.StatusBadGateway
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	stdErr := errors.Normalize(err)

	fields := map[string]interface{}{
		"status":    status,
		"errorCode": string(stdErr.Code),
		"error":     err,
		"requestId": middleware.GetReqID(r.Context()),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields)
	} else {
		s.logger.Warn("request rejected", fields)
	}

	body := errorBody{Code: string(stdErr.Code), Message: stdErr.Message, Details: stdErr.Details}
	if stdErr.Code == errors.ErrCodeInternal {
		// internal causes can carry infrastructure detail
		body.Details = ""
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}
