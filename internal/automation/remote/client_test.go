package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BrowserUse-Gateway/internal/automation"
	xerrors "BrowserUse-Gateway/internal/errors"
)

func TestExecuteObjectivePostsObjective(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/browser_use_invoke", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body invokeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "go to example.com", body.Objective)
		assert.Equal(t, "gpt-4o-mini", body.ModelName)

		_, _ = w.Write([]byte(`{"status":"success","results":{"ok":true}}`))
	}))
	defer srv.Close()

	engine, err := NewEngine(Config{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	result, err := engine.ExecuteObjective(context.Background(), "go to example.com",
		automation.Config{ModelName: "gpt-4o-mini", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"success","results":{"ok":true}}`, string(result))
}

func TestExecuteObjectiveBusyIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	engine, err := NewEngine(Config{BaseURL: srv.URL, Path: "invoke"})
	require.NoError(t, err)

	_, err = engine.ExecuteObjective(context.Background(), "objective", automation.Config{})
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeEngineFailure, xerrors.CodeOf(err))
	assert.True(t, xerrors.RetryableError(err))
}

func TestExecuteObjectiveServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "browser crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	engine, err := NewEngine(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = engine.ExecuteObjective(context.Background(), "objective", automation.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser crashed")
	assert.False(t, xerrors.RetryableError(err))
}

func TestNewEngineRequiresBaseURL(t *testing.T) {
	_, err := NewEngine(Config{})
	require.Error(t, err)
}
