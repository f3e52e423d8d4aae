package log_test

import (
	"log/slog"
	"testing"

	"github.com/raidmeter/encounters/pkg/log"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, log.Debug, log.ParseLevel(" DEBUG "))
	require.Equal(t, log.Warn, log.ParseLevel("warn"))
	require.Equal(t, log.Error, log.ParseLevel("Error"))
	require.Equal(t, log.Info, log.ParseLevel("verbose"))

	require.Equal(t, slog.LevelDebug, log.ToSlogLevel(log.Debug))
	require.Equal(t, slog.LevelError, log.ToSlogLevel(log.Error))
}
