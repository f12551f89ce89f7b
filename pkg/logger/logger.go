// Package logger owns the process-wide zap logger shared by the auth service
// and the gateway binaries.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Every entry carries the service name so aggregated log pipelines can tell
// cloudauth apart from co-deployed services.
const serviceName = "cloudauth"

var (
	mu     sync.RWMutex
	global = zap.NewNop()
)

// Init builds the global production logger at the requested level. Unknown
// level strings fall back to info rather than failing startup.
func Init(level string) error {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	logger, err := cfg.Build(zap.Fields(zap.String("service", serviceName)))
	if err != nil {
		return err
	}

	mu.Lock()
	global = logger
	mu.Unlock()
	return nil
}

func parseLevel(level string) zapcore.Level {
	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return parsed
}

// Logger returns the configured global logger. Before Init it is a no-op
// logger, so packages can log unconditionally.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// WithModule returns a child logger annotated with the owning module.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}

// Sync flushes buffered entries, best effort at shutdown.
func Sync() error {
	return Logger().Sync()
}
