package log

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T, level LogLevel) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	previous := GetLevel()
	SetOutput(&buf)
	assert.NoError(t, SetLevel(level))

	t.Cleanup(func() {
		SetLevel(previous)
		SetOutput(nil)
	})
	return &buf
}

func TestShouldLog(t *testing.T) {
	assert.True(t, ShouldLog(ErrorLevel, InfoLevel))
	assert.True(t, ShouldLog(InfoLevel, InfoLevel))
	assert.False(t, ShouldLog(DebugLevel, InfoLevel))
	assert.False(t, ShouldLog(FatalLevel, DisabledLevel))
	assert.False(t, ShouldLog("verbose", InfoLevel))
}

func TestSetLevel(t *testing.T) {
	capture(t, InfoLevel)
	assert.Error(t, SetLevel("verbose"))
	assert.Equal(t, InfoLevel, GetLevel())
}

func TestNamedLogger(t *testing.T) {
	buf := capture(t, DebugLevel)

	logger := Named("esprocess")
	assert.Equal(t, "esprocess", logger.Name())
	assert.Equal(t, "esprocess.child", logger.Named("child").Name())

	logger.Infof("started -- pid=%d", 42)
	logger.Trace("hidden")

	out := buf.String()
	assert.Contains(t, out, "[esprocess] started -- pid=42")
	assert.Contains(t, out, " info -")
	assert.NotContains(t, out, "hidden")
}

func TestDebugError(t *testing.T) {
	buf := capture(t, DebugLevel)

	inner := errors.New("inner")
	DebugError(fmt.Errorf("outer: %w", inner))

	out := buf.String()
	assert.Contains(t, out, "outer: inner")
	assert.Contains(t, out, "| 1: inner")
}
