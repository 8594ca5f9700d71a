package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured log attribute. It aliases zap's field type so call
// sites stay decoupled from the backend while paying no conversion cost.
type Field = zap.Field

// Logger provides the three log levels we need throughout the codebase.
type Logger interface {
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field constructors re-exported so packages import only this one.
func String(key, val string) Field      { return zap.String(key, val) }
func Float64(key string, v float64) Field { return zap.Float64(key, v) }
func Int(key string, v int) Field       { return zap.Int(key, v) }
func Int64(key string, v int64) Field   { return zap.Int64(key, v) }
func Bool(key string, v bool) Field     { return zap.Bool(key, v) }
func Err(err error) Field               { return zap.Error(err) }

type zapLogger struct {
	z *zap.Logger
}

func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

// NewZapLogger creates a production-ready logger (JSON encoding, level INFO).
// The structured event log consumed by dashboards is emitted through it.
func NewZapLogger() (Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{z: z}, nil
}
