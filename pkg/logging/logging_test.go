package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":       zapcore.InfoLevel,
		"debug":  zapcore.DebugLevel,
		" WARN ": zapcore.WarnLevel,
		"error":  zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	logger, level, err := New(Config{Level: "warn", Encoding: EncodingConsole})
	require.NoError(t, err)
	defer logger.Sync() //nolint:errcheck

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.NoError(t, SetLevel(level, "debug"))
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	assert.Error(t, SetLevel(level, "nonsense"))
	assert.Equal(t, zapcore.DebugLevel, level.Level())

	_, _, err = New(Config{Encoding: "xml"})
	assert.Error(t, err)
}
