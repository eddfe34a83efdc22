package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("dev environment", func(t *testing.T) {
		l, err := New(EnvDev, LevelDebug)

		require.NoError(t, err)
		require.NotNil(t, l)
	})

	t.Run("prod environment", func(t *testing.T) {
		l, err := New(EnvProduction, LevelInfo)

		require.NoError(t, err)
		require.NotNil(t, l)
	})

	t.Run("unknown environment", func(t *testing.T) {
		_, err := New("staging-ish", LevelInfo)

		require.Error(t, err)
	})
}

func TestParseLevelString(t *testing.T) {
	tests := []struct {
		name  string
		level string
	}{
		{name: "debug", level: "debug"},
		{name: "mixed case", level: "DeBuG"},
		{name: "unknown defaults to info", level: "whatever"},
		{name: "empty defaults to info", level: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Must not panic and produce a usable logger
			l := NewNoOpLogger().With("level", tt.level)
			require.NotNil(t, l)

			l.Info("message ignored")
		})
	}
}
