// Package browseruse is the Go client for the BrowserUse gateway.
package browseruse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// DefaultHTTPTimeout bounds each HTTP call made by clients created without a
// custom http.Client. It does not bound the poll loop.
const DefaultHTTPTimeout = 15 * time.Second

const (
	statusProcessing = "processing"
	statusCompleted  = "completed"
	outcomeOK        = "ok"
)

// Client talks to the gateway's submit and query endpoints.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// JobStatus is the body of a query response.
type JobStatus struct {
	Status    string          `json:"status"`
	TaskID    string          `json:"task_id,omitempty"`
	Objective string          `json:"objective,omitempty"`
	Message   string          `json:"message,omitempty"`
	Results   json.RawMessage `json:"results,omitempty"`
	Outcome   string          `json:"outcome,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Completed reports whether the job has finished.
func (s JobStatus) Completed() bool { return s.Status == statusCompleted }

// Succeeded reports whether the engine produced a result. Servers that do not
// report an outcome are treated as successful once completed.
func (s JobStatus) Succeeded() bool {
	return s.Completed() && (s.Outcome == "" || s.Outcome == outcomeOK)
}

// APIError is a non-success HTTP response.
type APIError struct {
	StatusCode int
	Status     string `json:"status"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("browseruse api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient creates a client for the gateway at rawURL. When httpClient is
// nil a client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Probe checks that the gateway is alive.
func (c *Client) Probe(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/probe", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}
	return nil
}

// Submit posts an objective and returns the task id.
func (c *Client) Submit(ctx context.Context, objective string) (string, error) {
	body, err := json.Marshal(map[string]string{"objective": objective})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/submit", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var out JobStatus
	if err := c.do(req, &out, http.StatusAccepted); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", errors.New("submit response carried no task id")
	}
	return out.TaskID, nil
}

// Query returns the current status of a task. Processing and completed
// responses return a JobStatus; anything else is an error.
func (c *Client) Query(ctx context.Context, taskID string) (JobStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/query", nil, taskID)
	if err != nil {
		return JobStatus{}, err
	}
	var out JobStatus
	if err := c.do(req, &out, http.StatusOK, http.StatusAccepted); err != nil {
		return JobStatus{}, err
	}
	switch out.Status {
	case statusProcessing, statusCompleted:
		return out, nil
	default:
		return JobStatus{}, fmt.Errorf("unrecognized task status %q", out.Status)
	}
}

// newRequest builds a request for endpoint. Each segment is appended as one
// escaped path element, so ids containing '/' or spaces survive intact.
func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader, segments ...string) (*http.Request, error) {
	u := *c.baseURL
	u.Path = path.Join("/", c.baseURL.Path, endpoint)
	u.RawPath = ""
	if len(segments) > 0 {
		raw, escaped := u.Path, u.EscapedPath()
		for _, segment := range segments {
			raw += "/" + segment
			escaped += "/" + url.PathEscape(segment)
		}
		u.Path, u.RawPath = raw, escaped
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any, accepted ...int) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	ok := false
	for _, code := range accepted {
		if resp.StatusCode == code {
			ok = true
			break
		}
	}
	if !ok {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
