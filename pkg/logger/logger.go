package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger provides structured logging for all bot components
type Logger struct {
	sugar *zap.SugaredLogger
}

// Config holds logger configuration
type Config struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"` // "console" or "json"
	FilePath string `yaml:"file_path"`
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
	}
}

// New creates a new logger from the given configuration. When cfg.FilePath
// is set (or the LOG_FILE environment variable), output is redirected to a
// rotating file sink.
func New(cfg Config) *Logger {
	level := parseLevel(cfg.Level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	filePath := cfg.FilePath
	if env := os.Getenv("LOG_FILE"); env != "" {
		filePath = env
	}

	var sink zapcore.WriteSyncer
	if filePath != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    100, // MB
			MaxBackups: 7,
			MaxAge:     28, // days
			Compress:   true,
		})
	} else {
		sink = zapcore.Lock(os.Stdout)
	}

	core := zapcore.NewCore(encoder, sink, level)
	return &Logger{sugar: zap.New(core).Sugar()}
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Named returns a child logger with the given component name
func (l *Logger) Named(name string) *Logger {
	return &Logger{sugar: l.sugar.Named(name)}
}

// With returns a child logger with the given key-value pairs attached
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...)}
}

// Debug logs a message with Debug level
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info logs a message with Info level
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs a message with Warn level
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs a message with Error level
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// Fatal logs a message with Fatal level and exits
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.sugar.Fatalw(msg, keysAndValues...)
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
