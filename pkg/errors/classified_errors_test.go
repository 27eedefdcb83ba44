package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassification(t *testing.T) {
	err := New(ClassNoHealthyBackend, "no healthy models")
	assert.True(t, IsClass(err, ClassNoHealthyBackend))
	assert.Equal(t, ClassNoHealthyBackend, ClassOf(err))
	assert.Contains(t, err.Error(), "no_healthy_backend")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, ClassBackendError, "dispatch failed")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsClass(err, ClassBackendError))

	assert.Nil(t, Wrap(nil, ClassBackendError, "nothing"))
}

func TestClassOfPlainError(t *testing.T) {
	assert.Equal(t, ClassUnknown, ClassOf(stderrors.New("plain")))
	assert.Equal(t, ClassUnknown, ClassOf(nil))
}

func TestClassOfWrappedChain(t *testing.T) {
	inner := New(ClassBackendTimeout, "deadline exceeded")
	outer := fmt.Errorf("request failed: %w", inner)
	assert.Equal(t, ClassBackendTimeout, ClassOf(outer))
}

func TestRetryable(t *testing.T) {
	assert.True(t, ClassBackendTimeout.Retryable())
	assert.True(t, ClassBackendError.Retryable())
	assert.False(t, ClassInvalidRequest.Retryable())
	assert.False(t, ClassNoHealthyBackend.Retryable())
	assert.False(t, ClassCacheError.Retryable())
}

func TestWithRequestID(t *testing.T) {
	err := New(ClassInternal, "boom").WithRequestID("req-123")
	assert.Equal(t, "req-123", err.RequestID)
	assert.True(t, IsClass(err, ClassInternal))
}
