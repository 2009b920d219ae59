package logcollection

import (
	"fmt"

	"github.com/core-tools/hsu-fundkeeper/pkg/logging"
)

// LoggerConfig defines configuration for creating a structured logger
type LoggerConfig struct {
	Backend    string `yaml:"backend"` // only "zap" is supported
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	Caller     bool   `yaml:"caller"`
	Stacktrace bool   `yaml:"stacktrace"`
}

// DefaultLoggerConfig returns the default logger configuration
func DefaultLoggerConfig() LoggerConfig {
	zapConfig := DefaultZapConfig()
	return LoggerConfig{
		Backend:    "zap",
		Level:      zapConfig.Level,
		Format:     zapConfig.Format,
		Output:     zapConfig.Output,
		Caller:     zapConfig.Caller,
		Stacktrace: zapConfig.Stacktrace,
	}
}

// NewStructuredLogger creates a structured logger with the configured backend
func NewStructuredLogger(cfg LoggerConfig) (StructuredLogger, error) {
	switch cfg.Backend {
	case "zap", "":
		return NewZapAdapter(ZapConfig{
			Level:      cfg.Level,
			Format:     cfg.Format,
			Output:     cfg.Output,
			Caller:     cfg.Caller,
			Stacktrace: cfg.Stacktrace,
		})
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Backend)
	}
}

// AsLogger exposes a structured logger through the printf-style logging.Logger
// used by the components, with a module prefix.
func AsLogger(prefix string, structured StructuredLogger) logging.Logger {
	return logging.NewLogger(prefix, logging.LogFuncs{
		Debugf: structured.Debugf,
		Infof:  structured.Infof,
		Warnf:  structured.Warnf,
		Errorf: structured.Errorf,
	})
}
