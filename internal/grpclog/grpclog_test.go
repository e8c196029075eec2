package grpclog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestLevelForRecognizedVerbosities(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, levelFor("DEBUG"))
	assert.Equal(t, zapcore.InfoLevel, levelFor("info"))
	assert.Equal(t, zapcore.WarnLevel, levelFor("Warning"))
	assert.Equal(t, zapcore.ErrorLevel, levelFor("ERROR"))
}

func TestLevelForUnknownDefaultsToError(t *testing.T) {
	assert.Equal(t, zapcore.ErrorLevel, levelFor("bogus"))
	assert.Equal(t, zapcore.ErrorLevel, levelFor(""))
}
