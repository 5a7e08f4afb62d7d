package logger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/webprobe/internal/logger"
)

func TestNew_Levels(t *testing.T) {
	t.Parallel()

	for _, level := range []string{"", "debug", "INFO", "warn", "error"} {
		l, err := logger.New(logger.Config{Level: level})
		require.NoError(t, err, "level %q", level)
		require.NotNil(t, l)
	}
}

func TestNew_RejectsUnknownLevelAndEncoding(t *testing.T) {
	t.Parallel()

	_, err := logger.New(logger.Config{Level: "verbose"})
	assert.Error(t, err)

	_, err = logger.New(logger.Config{Encoding: "xml"})
	assert.Error(t, err)
}

func TestLogger_WithDoesNotPanicOnOddFields(t *testing.T) {
	t.Parallel()

	l, err := logger.New(logger.Config{Level: "error", Encoding: "json"})
	require.NoError(t, err)

	child := l.With("component", "crawler", "dangling")
	assert.NotSame(t, l, child)
	child.Debug("filtered")
	child.Info("filtered", 42)
}

func TestNop(t *testing.T) {
	t.Parallel()

	l := logger.NewNop()
	assert.Same(t, l, l.With("k", "v"))
	assert.NoError(t, l.Sync())
}
