package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	sentinel := New(CodeNotFound, "missing")
	wrapped := fmt.Errorf("lookup: %w", New(CodeNotFound, "other message"))

	assert.True(t, stdErrors.Is(wrapped, sentinel))
	assert.False(t, stdErrors.Is(wrapped, New(CodeTimeout, "")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("dial tcp: refused")
	err := Wrap(CodeQueueFailure, cause, "publish failed")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "[QUEUE_FAILURE] publish failed: dial tcp: refused", err.Error())
	assert.Equal(t, CodeQueueFailure, CodeOf(err))
	assert.True(t, RetryableError(err))
	assert.True(t, ShouldAlert(err))
}

func TestDefaultsFromRegistry(t *testing.T) {
	const code Code = "TEST_REGISTERED"
	Register(code, Attributes{Message: "registered default", Severity: SeverityCritical})

	err := New(code, "")
	assert.Equal(t, "registered default", err.Message())
	assert.Equal(t, SeverityCritical, err.Severity())
	assert.False(t, err.Retryable())

	overridden := New(code, "", WithRetryable(true), WithSeverity(SeverityInfo), WithMetadata("job_id", "abc"))
	assert.True(t, overridden.Retryable())
	assert.Equal(t, SeverityInfo, overridden.Severity())
	assert.Equal(t, map[string]string{"job_id": "abc"}, overridden.Metadata())
}

func TestUnknownErrors(t *testing.T) {
	plain := stdErrors.New("plain")
	assert.Equal(t, CodeUnknown, CodeOf(plain))
	assert.Equal(t, SeverityCritical, SeverityOf(plain))
	assert.False(t, RetryableError(plain))
	assert.Equal(t, AttributesOf(CodeUnknown), AttributesOf("NEVER_REGISTERED"))
}
