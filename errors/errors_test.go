package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesSentinel(t *testing.T) {
	wrapped := Wrap(ErrNotFound, "participant abc123")

	assert.Contains(t, wrapped.Error(), "participant abc123")
	assert.True(t, Is(wrapped, ErrNotFound))
	assert.False(t, Is(wrapped, ErrInvalidRequest))
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("node %s", "n-42")
	require.NotNil(t, err)

	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "n-42")
}

func TestNewInvalidRequestError(t *testing.T) {
	err := NewInvalidRequestError("empty %s", "text")
	require.NotNil(t, err)

	assert.True(t, IsInvalidRequestError(err))
	assert.False(t, IsNotFoundError(err))
}

func TestNewInvalidDefinitionError(t *testing.T) {
	err := NewInvalidDefinitionError("timing %q uses the Before direction", "Reminder")
	require.NotNil(t, err)

	assert.True(t, IsInvalidDefinitionError(err))
	assert.Contains(t, err.Error(), "Reminder")
}

func TestHelpersRejectNil(t *testing.T) {
	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsInvalidRequestError(nil))
	assert.False(t, IsInvalidDefinitionError(nil))
}
