package logcollection

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapAdapter implements StructuredLogger on top of zap without exposing zap types
type ZapAdapter struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
}

// NewZapAdapter creates a zap backed logger from configuration
func NewZapAdapter(config ZapConfig) (*ZapAdapter, error) {
	zapLogger, err := createZapLogger(config)
	if err != nil {
		return nil, err
	}
	return NewZapAdapterFromLogger(zapLogger), nil
}

// NewZapAdapterFromLogger wraps an existing zap logger, e.g. one built on an
// observer core in tests.
func NewZapAdapterFromLogger(zapLogger *zap.Logger) *ZapAdapter {
	return &ZapAdapter{
		logger: zapLogger,
		sugar:  zapLogger.Sugar(),
	}
}

// NewNopLogger returns a StructuredLogger that discards everything.
func NewNopLogger() StructuredLogger {
	return NewZapAdapterFromLogger(zap.NewNop())
}

func (z *ZapAdapter) Debugf(format string, args ...interface{}) {
	z.sugar.Debugf(format, args...)
}

func (z *ZapAdapter) Infof(format string, args ...interface{}) {
	z.sugar.Infof(format, args...)
}

func (z *ZapAdapter) Warnf(format string, args ...interface{}) {
	z.sugar.Warnf(format, args...)
}

func (z *ZapAdapter) Errorf(format string, args ...interface{}) {
	z.sugar.Errorf(format, args...)
}

// LogLevelf maps the numeric levels of the logging package onto zap levels
func (z *ZapAdapter) LogLevelf(level int, format string, args ...interface{}) {
	switch level {
	case 0:
		z.sugar.Debugf(format, args...)
	case 2:
		z.sugar.Warnf(format, args...)
	case 3:
		z.sugar.Errorf(format, args...)
	default:
		z.sugar.Infof(format, args...)
	}
}

// LogWithContext logs with fields, adding the request id carried by ctx if any
func (z *ZapAdapter) LogWithContext(ctx context.Context, level LogLevel, msg string, fields ...LogField) {
	zapFields := z.convertFields(fields)
	if ctx != nil {
		if requestID, ok := ctx.Value(requestIDKey{}).(string); ok {
			zapFields = append(zapFields, zap.String("request_id", requestID))
		}
	}
	z.logAtLevel(level, msg, zapFields...)
}

func (z *ZapAdapter) LogWithFields(level LogLevel, msg string, fields ...LogField) {
	z.logAtLevel(level, msg, z.convertFields(fields)...)
}

func (z *ZapAdapter) WithFields(fields ...LogField) StructuredLogger {
	return NewZapAdapterFromLogger(z.logger.With(z.convertFields(fields)...))
}

func (z *ZapAdapter) WithUnit(unitID string) StructuredLogger {
	return z.WithFields(Unit(unitID))
}

// Sync flushes any buffered log entries
func (z *ZapAdapter) Sync() error {
	return z.logger.Sync()
}

type requestIDKey struct{}

// ContextWithRequestID attaches a request id picked up by LogWithContext
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func (z *ZapAdapter) convertFields(fields []LogField) []zap.Field {
	zapFields := make([]zap.Field, len(fields))
	for i, field := range fields {
		zapFields[i] = convertSingleField(field)
	}
	return zapFields
}

func convertSingleField(field LogField) zap.Field {
	switch field.Type {
	case StringField:
		return zap.String(field.Key, field.Value.(string))
	case IntField:
		return zap.Int(field.Key, field.Value.(int))
	case Int64Field:
		return zap.Int64(field.Key, field.Value.(int64))
	case Uint64Field:
		return zap.Uint64(field.Key, field.Value.(uint64))
	case Float64Field:
		return zap.Float64(field.Key, field.Value.(float64))
	case BoolField:
		return zap.Bool(field.Key, field.Value.(bool))
	case DurationField:
		return zap.Duration(field.Key, field.Value.(time.Duration))
	case TimeField:
		return zap.Time(field.Key, field.Value.(time.Time))
	case ErrorField:
		if err, ok := field.Value.(error); ok {
			return zap.NamedError(field.Key, err)
		}
		return zap.String(field.Key, "invalid error field")
	default:
		return zap.Any(field.Key, field.Value)
	}
}

func (z *ZapAdapter) logAtLevel(level LogLevel, msg string, fields ...zap.Field) {
	switch level {
	case DebugLevel:
		z.logger.Debug(msg, fields...)
	case InfoLevel:
		z.logger.Info(msg, fields...)
	case WarnLevel:
		z.logger.Warn(msg, fields...)
	case ErrorLevel:
		z.logger.Error(msg, fields...)
	default:
		z.logger.Info(msg, fields...)
	}
}

// ZapConfig defines zap specific configuration
type ZapConfig struct {
	Level      string `yaml:"level"`      // "debug", "info", "warn", "error"
	Format     string `yaml:"format"`     // "json", "console"
	Output     string `yaml:"output"`     // "stdout", "stderr", file path
	Caller     bool   `yaml:"caller"`     // Include caller information
	Stacktrace bool   `yaml:"stacktrace"` // Include stacktrace on errors
}

func createZapLogger(config ZapConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	switch config.Format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var writeSyncer zapcore.WriteSyncer
	switch config.Output {
	case "stdout", "":
		writeSyncer = zapcore.Lock(zapcore.AddSync(os.Stdout))
	case "stderr":
		writeSyncer = zapcore.Lock(zapcore.AddSync(os.Stderr))
	default:
		fileSyncer, _, err := zap.Open(config.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to open log output %s: %w", config.Output, err)
		}
		writeSyncer = fileSyncer
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)

	opts := []zap.Option{}
	if config.Caller {
		opts = append(opts, zap.AddCaller())
	}
	if config.Stacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return zap.New(core, opts...), nil
}

// DefaultZapConfig returns the default zap configuration
func DefaultZapConfig() ZapConfig {
	return ZapConfig{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		Caller:     false,
		Stacktrace: true,
	}
}
