// Package remote drives a browser-use service that exposes the synchronous
// invoke endpoint. The call blocks for the full duration of the automation.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"BrowserUse-Gateway/internal/automation"
	xerrors "BrowserUse-Gateway/internal/errors"
)

const defaultInvokePath = "/browser_use_invoke"

// Config describes the remote invoke endpoint.
type Config struct {
	BaseURL string
	Path    string
	// Timeout bounds the HTTP round trip. Zero leaves the call unbounded.
	Timeout time.Duration
}

// Engine posts objectives to a remote browser-use service.
type Engine struct {
	endpoint   string
	httpClient *http.Client
}

// NewEngine creates a remote engine.
func NewEngine(cfg Config) (*Engine, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("remote engine base url is empty")
	}
	path := cfg.Path
	if path == "" {
		path = defaultInvokePath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &Engine{
		endpoint:   baseURL + path,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type invokeRequest struct {
	Objective string `json:"objective"`
	ModelName string `json:"model_name,omitempty"`
	UseVision bool   `json:"use_vision,omitempty"`
}

// ExecuteObjective posts the objective and returns the response body.
func (e *Engine) ExecuteObjective(ctx context.Context, objective string, cfg automation.Config) (automation.Result, error) {
	payload, err := json.Marshal(invokeRequest{Objective: objective, ModelName: cfg.ModelName, UseVision: cfg.UseVision})
	if err != nil {
		return nil, fmt.Errorf("encode invoke request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build invoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeEngineFailure, err, "remote engine request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeEngineFailure, err, "read remote engine response")
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, xerrors.New(xerrors.CodeEngineFailure, "remote engine is busy", xerrors.WithRetryable(true))
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, xerrors.New(xerrors.CodeEngineFailure,
			fmt.Sprintf("remote engine returned status %d: %s", resp.StatusCode, truncate(body)))
	}

	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, xerrors.New(xerrors.CodeEngineFailure, "remote engine returned invalid JSON")
	}
	return automation.Result(body), nil
}

func truncate(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len([]rune(text)) > 200 {
		return string([]rune(text)[:200]) + "..."
	}
	return text
}

var _ automation.Engine = (*Engine)(nil)
