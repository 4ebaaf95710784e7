// Package monitoring owns the process-wide diagnostic logger. Components take
// a *zap.SugaredLogger from here at construction; tests can swap in a no-op
// or an observed logger.
package monitoring

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger = newDefault()

func newDefault() *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	l, err := cfg.Build()
	if err != nil {
		// Config above is static; Build can only fail on a bad sink path.
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

// Logger returns the shared process logger.
func Logger() *zap.SugaredLogger { return logger }

// SetLogger replaces the shared logger. Passing nil installs a no-op logger.
func SetLogger(l *zap.SugaredLogger) {
	if l == nil {
		logger = zap.NewNop().Sugar()
		return
	}
	logger = l
}

// Debug enables verbose logging for the process.
func Debug() {
	cfg := zap.NewDevelopmentConfig()
	if l, err := cfg.Build(); err == nil {
		logger = l.Sugar()
	}
}
