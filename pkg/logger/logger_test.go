package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	original := L
	t.Cleanup(func() { SetLevel("info") })

	SetLevel("debug")
	assert.Equal(t, zapcore.DebugLevel, Level())
	assert.True(t, L.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, WithComponent("test").Core().Enabled(zapcore.DebugLevel))
	assert.Same(t, original, L)

	SetLevel("verbose")
	assert.Equal(t, zapcore.DebugLevel, Level())

	SetLevel("warn")
	assert.False(t, L.Core().Enabled(zapcore.InfoLevel))
}
