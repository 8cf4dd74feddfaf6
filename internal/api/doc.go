// Package api exposes the job gateway over HTTP: objective submission, task
// status queries, a liveness probe and a synchronous invoke endpoint for
// callers that cannot poll.
package api
