package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents a logging level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a Level
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return DEBUG
	case "info", "INFO", "":
		return INFO
	case "warn", "WARN", "warning", "WARNING":
		return WARN
	case "error", "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Config holds logger configuration
type Config struct {
	Level     string `yaml:"level"` // debug, info, warn, error
	File      string `yaml:"file"`  // append-only log file, empty = stderr only
	Component string
}

// Logger is a leveled logger with a component name. Log lines go to stderr
// and, when configured, to an append-only file
type Logger struct {
	level     Level
	component string
	output    io.Writer
	file      *os.File
	mu        sync.Mutex
}

var (
	defaultLogger = &Logger{level: INFO, component: "lanternbot", output: os.Stderr}
	defaultMu     sync.RWMutex
)

// New creates a new logger with the given configuration. The log file is
// opened in append mode and created along with its directory when missing
func New(cfg *Config) (*Logger, error) {
	component := cfg.Component
	if component == "" {
		component = "lanternbot"
	}

	l := &Logger{
		level:     ParseLevel(cfg.Level),
		component: component,
		output:    os.Stderr,
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = f
	}

	return l, nil
}

// Close closes the log file, if any
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// SetOutput sets the stderr-replacement writer, mainly for tests
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

// SetLevel sets the minimum logging level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// WithComponent returns a logger sharing outputs under a different component name
func (l *Logger) WithComponent(component string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	return &Logger{
		level:     l.level,
		component: component,
		output:    l.output,
		file:      l.file,
	}
}

// WithCommandID returns a logger that tags lines with a command correlation id
func (l *Logger) WithCommandID(id string) *CommandLogger {
	return &CommandLogger{logger: l, commandID: id}
}

func (l *Logger) log(level Level, tag, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf(format, args...)
	var line string
	if tag != "" {
		line = fmt.Sprintf("%s %s [%s] [%s] %s\n", timestamp, level.String(), l.component, tag, msg)
	} else {
		line = fmt.Sprintf("%s %s [%s] %s\n", timestamp, level.String(), l.component, msg)
	}

	l.output.Write([]byte(line))
	if l.file != nil {
		l.file.WriteString(line)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...any) {
	l.log(DEBUG, "", format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...any) {
	l.log(INFO, "", format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...any) {
	l.log(WARN, "", format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...any) {
	l.log(ERROR, "", format, args...)
}

// CommandLogger tags every line with the command correlation id
type CommandLogger struct {
	logger    *Logger
	commandID string
}

// Debug logs a debug message with the command id
func (cl *CommandLogger) Debug(format string, args ...any) {
	cl.logger.log(DEBUG, cl.commandID, format, args...)
}

// Info logs an info message with the command id
func (cl *CommandLogger) Info(format string, args ...any) {
	cl.logger.log(INFO, cl.commandID, format, args...)
}

// Warn logs a warning message with the command id
func (cl *CommandLogger) Warn(format string, args ...any) {
	cl.logger.log(WARN, cl.commandID, format, args...)
}

// Error logs an error message with the command id
func (cl *CommandLogger) Error(format string, args ...any) {
	cl.logger.log(ERROR, cl.commandID, format, args...)
}

// Package-level functions that use the default logger

// SetDefaultLogger sets the package-level default logger
func SetDefaultLogger(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// Default returns the package-level default logger
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// Debug logs a debug message using the default logger
func Debug(format string, args ...any) {
	Default().Debug(format, args...)
}

// Info logs an info message using the default logger
func Info(format string, args ...any) {
	Default().Info(format, args...)
}

// Warn logs a warning message using the default logger
func Warn(format string, args ...any) {
	Default().Warn(format, args...)
}

// Error logs an error message using the default logger
func Error(format string, args ...any) {
	Default().Error(format, args...)
}
