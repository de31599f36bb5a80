package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns JSON logger. Level comes from LOG_LEVEL, then from the
// configured level, falling back to info.
func New(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	cfg.DisableStacktrace = true
	lg, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return lg
}

// ParseLevel resolves the effective level; LOG_LEVEL wins over configured.
func ParseLevel(configured string) zapcore.Level {
	level := zapcore.InfoLevel
	for _, v := range []string{configured, os.Getenv("LOG_LEVEL")} {
		if v == "" {
			continue
		}
		var parsed zapcore.Level
		if err := parsed.UnmarshalText([]byte(v)); err == nil {
			level = parsed
		}
	}
	return level
}
