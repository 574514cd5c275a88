package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the service logger. Development gets the console encoder,
// everything else emits JSON to stdout.
func New(env string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if env == "development" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.With(zap.String("service", "auth-bridge")), nil
}

// WithRequestID attaches the request id to a child logger.
func WithRequestID(l *zap.Logger, requestID string) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	if requestID == "" {
		return l
	}
	return l.With(zap.String("request_id", requestID))
}

// Sync flushes buffered entries; the error from syncing stdout is ignored.
func Sync(l *zap.Logger) {
	if l == nil {
		return
	}
	_ = l.Sync()
}
