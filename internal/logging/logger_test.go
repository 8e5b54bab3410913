package logging

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"anime-notifier/internal/config"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console", "auto"} {
		t.Run(format, func(t *testing.T) {
			logger, err := New(config.LogConfig{Level: "debug", Format: format})
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
		})
	}
}

func TestNewDefaultsToInfo(t *testing.T) {
	logger, err := New(config.LogConfig{Format: "json"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "chatty", Format: "json"})
	assert.Error(t, err)
}

func TestResolveFormat(t *testing.T) {
	assert.Equal(t, "json", resolveFormat("json", os.Stdout.Fd()))
	assert.Equal(t, "console", resolveFormat("console", os.Stdout.Fd()))

	// a regular file is never a terminal
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "json", resolveFormat("auto", f.Fd()))
}
