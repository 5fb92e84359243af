package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zap.AtomicLevel
		err  bool
	}{
		{"", zap.NewAtomicLevelAt(zap.InfoLevel), false},
		{"DEBUG", zap.NewAtomicLevelAt(zap.DebugLevel), false},
		{"warning", zap.NewAtomicLevelAt(zap.WarnLevel), false},
		{"error", zap.NewAtomicLevelAt(zap.ErrorLevel), false},
		{"loud", zap.NewAtomicLevelAt(zap.InfoLevel), true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Level(), got)
		})
	}
}

func TestInitialize(t *testing.T) {
	t.Cleanup(func() { Logger = zap.NewNop().Sugar(); JSONOutput = false })

	require.NoError(t, Initialize("debug", true))
	assert.True(t, JSONOutput)
	assert.True(t, Logger.Desugar().Core().Enabled(zap.DebugLevel))

	require.NoError(t, Initialize("warn", false))
	assert.False(t, JSONOutput)
	assert.False(t, Logger.Desugar().Core().Enabled(zap.InfoLevel))
	assert.NotNil(t, Named("align"))

	assert.Error(t, Initialize("nope", false))
}
