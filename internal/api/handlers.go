package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	xerrors "BrowserUse-Gateway/internal/errors"
	"BrowserUse-Gateway/internal/job"
)

const probeText = "the service is alive"

// codeBodyTooLarge marks a request body cut off by the size limit.
const codeBodyTooLarge xerrors.Code = "REQUEST_BODY_TOO_LARGE"

func init() {
	xerrors.Register(codeBodyTooLarge, xerrors.Attributes{
		Message:  "request body too large",
		Severity: xerrors.SeverityInfo,
	})
}

type objectiveRequest struct {
	Objective string `json:"objective"`
	// BrowserUseObjective is the field name used by agent tool wrappers.
	BrowserUseObjective string `json:"browser_use_objective"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type processingResponse struct {
	Status string `json:"status"`
	TaskID string `json:"task_id,omitempty"`
}

type completedResponse struct {
	Status    string          `json:"status"`
	TaskID    string          `json:"task_id"`
	Objective string          `json:"objective"`
	Message   string          `json:"message"`
	Results   json.RawMessage `json:"results"`
	Outcome   job.OutcomeKind `json:"outcome"`
	Error     string          `json:"error,omitempty"`
}

func (s *Server) handleProbe(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, probeText)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	record, err := s.submit(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, processingResponse{Status: "processing", TaskID: record.ID})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		s.writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "job service not initialized"))
		return
	}
	id := mux.Vars(r)["task_id"]
	record, err := s.service.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !record.Completed() {
		writeJSON(w, http.StatusAccepted, processingResponse{Status: "processing"})
		return
	}
	writeJSON(w, http.StatusOK, completedPayload(record))
}

// handleInvoke submits the objective and waits for it within the invoke
// timeout. A job still running at the deadline keeps running and can be
// polled with the returned task id.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	record, err := s.submit(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.invokeTimeout)
	defer cancel()

	done, err := s.service.WaitUntilCompleted(ctx, record.ID, s.invokePoll)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) || stdErrors.Is(err, context.Canceled) {
			writeJSON(w, http.StatusGatewayTimeout, processingResponse{Status: "processing", TaskID: record.ID})
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completedPayload(done))
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) (*job.Job, error) {
	if s.service == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "job service not initialized")
	}
	var req objectiveRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if stdErrors.As(err, &tooLarge) {
			return nil, xerrors.Wrap(codeBodyTooLarge, err,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return nil, xerrors.Wrap(job.CodeJobValidation, err, "")
	}
	objective := req.Objective
	if strings.TrimSpace(objective) == "" {
		objective = req.BrowserUseObjective
	}
	return s.service.Submit(r.Context(), objective)
}

func completedPayload(record *job.Job) completedResponse {
	resp := completedResponse{
		Status:    string(job.StatusCompleted),
		TaskID:    record.ID,
		Objective: record.Objective,
		Message:   record.Message,
		Results:   json.RawMessage(`{}`),
		Outcome:   job.OutcomeFailed,
	}
	if record.Outcome != nil {
		resp.Results = record.Outcome.Results()
		resp.Outcome = record.Outcome.Kind
		resp.Error = record.Outcome.Reason
	}
	return resp
}

func statusFor(code xerrors.Code) int {
	switch code {
	case job.CodeJobValidation, xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case job.CodeJobNotFound, xerrors.CodeNotFound:
		return http.StatusNotFound
	case codeBodyTooLarge:
		return http.StatusRequestEntityTooLarge
	case job.CodeJobPublish, xerrors.CodeInitializationFailure, xerrors.CodeQueueFailure:
		return http.StatusServiceUnavailable
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	status := statusFor(code)
	message := "internal error"
	if e, ok := xerrors.From(err); ok && status != http.StatusInternalServerError {
		message = e.Message()
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("code", string(code)), slog.Any("error", err))
	}
	writeJSON(w, status, errorResponse{Status: "error", Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
