package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "debug",
		"DEBUG ":  "debug",
		"warn":    "warn",
		"warning": "warn",
		"error":   "error",
		"":        "info",
		"chatty":  "info",
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in).String(), "level %q", in)
	}
}

func TestNew(t *testing.T) {
	logger, err := New("warn", false)
	require.NoError(t, err)
	defer func() { _ = logger.Sync() }()

	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))

	dev, err := New("debug", true)
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zap.DebugLevel))
}
