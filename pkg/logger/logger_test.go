package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		l, err := NewLogger(nil)
		require.NoError(t, err)
		require.NotNil(t, l)
		require.False(t, l.Core().Enabled(-1), "debug must be disabled by default")
	})

	t.Run("debug", func(t *testing.T) {
		l, err := NewLogger(&LoggerConfig{Debug: true})
		require.NoError(t, err)
		require.True(t, l.Core().Enabled(-1))
	})

	t.Run("file sink", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "distributor.log")
		l, err := NewLogger(&LoggerConfig{File: path})
		require.NoError(t, err)

		l.Sugar().Infow("root updated", "root", "0xabc")
		_ = l.Sync()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(data), "root updated")
	})
}
