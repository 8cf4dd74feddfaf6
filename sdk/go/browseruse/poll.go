package browseruse

import (
	"context"
	"fmt"
	"time"
)

// State is the terminal state of a Run.
type State string

const (
	// StateCompleted means the job completed and the engine produced a result.
	StateCompleted State = "completed"
	// StateExecutionFailed means the job completed but the engine failed.
	StateExecutionFailed State = "execution_failed"
	// StateSubmissionFailed means no task id was obtained.
	StateSubmissionFailed State = "submission_failed"
	// StateQueryFailed means a status query failed or returned something
	// unrecognized. The query is not retried.
	StateQueryFailed State = "query_failed"
	// StateTimedOut means the job was still processing when the budget ran out.
	StateTimedOut State = "timed_out"
	// StateCancelled means the caller's context ended first.
	StateCancelled State = "cancelled"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 300 * time.Second
)

// PollOptions controls the cadence of Run.
type PollOptions struct {
	// Interval between status queries. Defaults to DefaultPollInterval.
	Interval time.Duration
	// Timeout is the budget measured from a successful submission. Defaults
	// to DefaultPollTimeout.
	Timeout time.Duration
	// Backoff multiplies the interval after every processing response.
	// Values <= 1 keep the interval fixed.
	Backoff float64
	// MaxInterval caps the interval when Backoff grows it.
	MaxInterval time.Duration
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultPollTimeout
	}
	if o.Backoff < 1 {
		o.Backoff = 1
	}
	return o
}

func (o PollOptions) next(interval time.Duration) time.Duration {
	if o.Backoff <= 1 {
		return interval
	}
	grown := time.Duration(float64(interval) * o.Backoff)
	if o.MaxInterval > 0 && grown > o.MaxInterval {
		return o.MaxInterval
	}
	return grown
}

// Outcome is the result of Run. Message is always set.
type Outcome struct {
	State   State
	TaskID  string
	Message string
	// Status is the last status received, set for completed jobs.
	Status *JobStatus
	Err    error
	// Elapsed is measured from submission.
	Elapsed time.Duration
	Polls   int
}

// Run submits objective and polls until the job completes, a query fails,
// the budget runs out or ctx ends. Queries and sleeps share a deadline at
// submission time plus Timeout, so a job that never finishes yields
// StateTimedOut at the budget even when the gateway answers slowly.
func (c *Client) Run(ctx context.Context, objective string, opts PollOptions) Outcome {
	opts = opts.withDefaults()

	taskID, err := c.Submit(ctx, objective)
	if err != nil {
		return Outcome{
			State:   StateSubmissionFailed,
			Message: fmt.Sprintf("failed to submit: %v", err),
			Err:     err,
		}
	}

	started := time.Now()
	budgetCtx, cancelBudget := context.WithDeadline(ctx, started.Add(opts.Timeout))
	defer cancelBudget()

	interval := opts.Interval
	out := Outcome{TaskID: taskID}

	for {
		status, err := c.Query(budgetCtx, taskID)
		out.Polls++
		out.Elapsed = time.Since(started)
		if err != nil {
			if ctx.Err() != nil {
				return cancelled(out, ctx.Err())
			}
			if budgetCtx.Err() != nil {
				return timedOut(out, opts.Timeout)
			}
			out.State = StateQueryFailed
			out.Err = err
			out.Message = fmt.Sprintf("failed to query task %s: %v", taskID, err)
			return out
		}
		if status.Completed() {
			out.Status = &status
			out.Message = status.Message
			if status.Succeeded() {
				out.State = StateCompleted
				return out
			}
			out.State = StateExecutionFailed
			if status.Error != "" {
				out.Message = fmt.Sprintf("%s: %s", status.Message, status.Error)
			}
			return out
		}

		remaining := opts.Timeout - out.Elapsed
		if remaining <= 0 {
			return timedOut(out, opts.Timeout)
		}
		wait := interval
		if wait > remaining {
			wait = remaining
		}
		if err := sleep(ctx, wait); err != nil {
			out.Elapsed = time.Since(started)
			return cancelled(out, err)
		}
		if out.Elapsed = time.Since(started); out.Elapsed >= opts.Timeout {
			return timedOut(out, opts.Timeout)
		}
		interval = opts.next(interval)
	}
}

func timedOut(out Outcome, budget time.Duration) Outcome {
	out.State = StateTimedOut
	out.Err = context.DeadlineExceeded
	out.Message = fmt.Sprintf("task %s still processing after %s", out.TaskID, budget)
	return out
}

func cancelled(out Outcome, err error) Outcome {
	out.State = StateCancelled
	out.Err = err
	out.Message = fmt.Sprintf("polling task %s stopped: %v", out.TaskID, err)
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
