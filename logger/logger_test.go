package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{name: "JSON output mode", jsonOutput: true},
		{name: "Console output mode", jsonOutput: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			err := Initialize(tt.jsonOutput)
			require.NoError(t, err)
			require.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)

			Sync()
		})
	}
}

func TestComponentLogger(t *testing.T) {
	require.NoError(t, Initialize(true))

	scheduler := ComponentLogger("scheduler")
	require.NotNil(t, scheduler)

	// Named loggers share the parent's core; a child must not replace the global.
	assert.NotSame(t, Logger, scheduler)
}

func TestFieldsFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, FieldsFromContext(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithParticipantID(ctx, "p-1")
	ctx = WithJobID(ctx, "j-1")

	fields := FieldsFromContext(ctx)
	assert.Equal(t, []interface{}{
		FieldRequestID, "req-1",
		FieldParticipantID, "p-1",
		FieldJobID, "j-1",
	}, fields)
}

func TestLoggerFromContext(t *testing.T) {
	require.NoError(t, Initialize(true))

	plain := LoggerFromContext(context.Background())
	assert.Same(t, Logger, plain)

	enriched := LoggerFromContext(WithJobID(context.Background(), "j-9"))
	assert.NotSame(t, Logger, enriched)
}
