package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := parseLevel("loud")
	assert.Error(t, err)
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestRunnerConfigUsesStderr(t *testing.T) {
	cfg := RunnerConfig("debug")
	assert.Equal(t, []string{"stderr"}, cfg.OutputPaths)

	logger, err := New(cfg)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestComponentNamesLogger(t *testing.T) {
	logger := NewNop()
	assert.NotNil(t, logger.Component("sandbox"))
}
