// Package grpclog provides the process-wide structured logger used
// throughout the module, gated by the GRPC_VERBOSITY environment
// variable: a single lazily-initialized sink every package reaches for,
// rather than threading a logger through every constructor.
package grpclog

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once   sync.Once
	logger *zap.Logger
)

// Verbosity levels recognized in GRPC_VERBOSITY, lowest to highest.
const (
	VerbosityError = "ERROR"
	VerbosityWarn  = "WARNING"
	VerbosityInfo  = "INFO"
	VerbosityDebug = "DEBUG"
)

func levelFor(verbosity string) zapcore.Level {
	switch strings.ToUpper(verbosity) {
	case VerbosityDebug:
		return zapcore.DebugLevel
	case VerbosityInfo:
		return zapcore.InfoLevel
	case VerbosityWarn:
		return zapcore.WarnLevel
	case VerbosityError:
		return zapcore.ErrorLevel
	default:
		return zapcore.ErrorLevel
	}
}

func build() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(levelFor(os.Getenv("GRPC_VERBOSITY")))
	cfg.EncoderConfig.TimeKey = "ts"
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// L returns the process-wide logger, building it from GRPC_VERBOSITY on
// first use.
func L() *zap.Logger {
	once.Do(func() { logger = build() })
	return logger
}

// SetLogger overrides the process-wide logger, for embedders that want to
// route g2rpc's logs into their own sink. It must be called before the
// first call to L to take effect reliably.
func SetLogger(l *zap.Logger) {
	once.Do(func() {})
	logger = l
}

func Infof(format string, args ...any)  { L().Sugar().Infof(format, args...) }
func Warnf(format string, args ...any)  { L().Sugar().Warnf(format, args...) }
func Errorf(format string, args ...any) { L().Sugar().Errorf(format, args...) }
func Fatalf(format string, args ...any) { L().Sugar().Fatalf(format, args...) }
