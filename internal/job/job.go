// Package job tracks submitted objectives from submission to completion and
// runs them on a fixed pool of workers.
package job

import (
	"bytes"
	"encoding/json"

	xerrors "BrowserUse-Gateway/internal/errors"
)

// Status is the lifecycle state of a job. It only moves forward.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

// OutcomeKind tags the variant held by an Outcome.
type OutcomeKind string

const (
	OutcomeOK     OutcomeKind = "ok"
	OutcomeFailed OutcomeKind = "failed"
)

// emptyResult is reported as the result of a failed execution.
var emptyResult = json.RawMessage(`{}`)

// Outcome is the result of one execution: either the engine's result or the
// reason it failed.
type Outcome struct {
	Kind   OutcomeKind     `json:"kind"`
	Result json.RawMessage `json:"result,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// Succeeded wraps an engine result.
func Succeeded(result json.RawMessage) Outcome {
	return Outcome{Kind: OutcomeOK, Result: cloneRaw(result)}
}

// Failed records why an execution produced no result.
func Failed(reason string) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: reason}
}

// OK reports whether the engine returned a result.
func (o Outcome) OK() bool { return o.Kind == OutcomeOK }

// Results returns the document reported to clients. Failed executions and
// engines that returned nothing report an empty object.
func (o Outcome) Results() json.RawMessage {
	if o.Kind != OutcomeOK || len(bytes.TrimSpace(o.Result)) == 0 {
		return cloneRaw(emptyResult)
	}
	return cloneRaw(o.Result)
}

// Job is one submitted objective.
type Job struct {
	ID          string   `json:"task_id"`
	Objective   string   `json:"objective"`
	Status      Status   `json:"status"`
	Outcome     *Outcome `json:"outcome,omitempty"`
	Message     string   `json:"message,omitempty"`
	CreatedAt   int64    `json:"created_at"`
	CompletedAt int64    `json:"completed_at,omitempty"`
}

// Completed reports whether the job reached its terminal state.
func (j *Job) Completed() bool {
	return j != nil && j.Status == StatusCompleted
}

func (j *Job) clone() *Job {
	c := *j
	if j.Outcome != nil {
		outcome := *j.Outcome
		outcome.Result = cloneRaw(j.Outcome.Result)
		c.Outcome = &outcome
	}
	return &c
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

// Stats counts jobs per status.
type Stats struct {
	Total      int `json:"total"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

var (
	// ErrJobNotFound is returned for ids the store has no record of.
	ErrJobNotFound = xerrors.New(CodeJobNotFound, "Task ID not found")
	// ErrJobCompleted is returned when completing a job twice.
	ErrJobCompleted = xerrors.New(CodeJobCompleted, "job already completed")
)

const (
	CodeJobNotFound   xerrors.Code = "JOB_NOT_FOUND"
	CodeJobCompleted  xerrors.Code = "JOB_COMPLETED"
	CodeJobValidation xerrors.Code = "JOB_VALIDATION_FAILED"
	CodeJobPublish    xerrors.Code = "JOB_PUBLISH_FAILED"
	CodeJobExecution  xerrors.Code = "JOB_EXECUTION_FAILED"
)

func init() {
	xerrors.Register(CodeJobNotFound, xerrors.Attributes{
		Message:  "Task ID not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeJobCompleted, xerrors.Attributes{
		Message:  "job already completed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeJobValidation, xerrors.Attributes{
		Message:  "No objective provided.",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeJobPublish, xerrors.Attributes{
		Message:   "failed to enqueue job",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeJobExecution, xerrors.Attributes{
		Message:  "objective execution failed",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
}
