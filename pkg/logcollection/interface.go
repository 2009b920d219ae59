package logcollection

import (
	"context"
)

// StructuredLogger is the diagnostic stream of the fund keeper. Every
// registry mutation and every per-unit tick outcome is one entry.
type StructuredLogger interface {
	// Printf-style logging, compatible with logging.Logger
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	LogLevelf(level int, format string, args ...interface{})

	LogWithContext(ctx context.Context, level LogLevel, msg string, fields ...LogField)
	LogWithFields(level LogLevel, msg string, fields ...LogField)

	WithFields(fields ...LogField) StructuredLogger
	WithUnit(unitID string) StructuredLogger

	Sync() error
}

// LogLevel represents logging levels
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLogLevel maps a configuration string to a LogLevel.
func ParseLogLevel(level string) (LogLevel, bool) {
	switch level {
	case "debug":
		return DebugLevel, true
	case "info", "":
		return InfoLevel, true
	case "warn":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	default:
		return InfoLevel, false
	}
}

// Diagnostic event names
const (
	EventUnitRegistered = "unit_registered"
	EventUnitUpdated    = "unit_updated"
	EventUnitRemoved    = "unit_removed"
	EventUnitTick       = "unit_tick"
	EventTickCompleted  = "tick_completed"
	EventStrategyChange = "global_strategy_changed"
)
