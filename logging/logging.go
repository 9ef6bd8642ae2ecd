/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/PivotLLM/MacroBench/global"
)

// Logger provides leveled logging in the format
// "timestamp [LEVEL] [pid] prefix message"
type Logger struct {
	core   *core
	prefix string
}

// core is shared between a logger and the loggers derived from it with With
type core struct {
	mu      sync.RWMutex
	logger  *log.Logger
	level   string
	logFile *os.File
}

var levels = map[string]int{
	global.LogLevelDebug: 0,
	global.LogLevelInfo:  1,
	global.LogLevelWarn:  2,
	global.LogLevelError: 3,
	global.LogLevelFatal: 4,
}

// Option configures a Logger
type Option func(*options)

type options struct {
	console io.Writer
}

// WithConsole mirrors every log line to w (typically os.Stderr)
func WithConsole(w io.Writer) Option {
	return func(o *options) {
		o.console = w
	}
}

// New creates a new logger instance that writes to the specified file.
// An empty path logs only to the console writer, if one is given.
func New(logPath string, opts ...Option) (*Logger, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	var writers []io.Writer
	var logFile *os.File

	if logPath != "" {
		logPath = global.ExpandHomePath(logPath)

		dir := filepath.Dir(logPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", logPath, err)
		}
		logFile = f
		writers = append(writers, f)
	}

	if o.console != nil {
		writers = append(writers, o.console)
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	return &Logger{
		core: &core{
			logger:  log.New(io.MultiWriter(writers...), "", 0),
			level:   global.LogLevelInfo,
			logFile: logFile,
		},
	}, nil
}

// NewNop returns a logger that discards everything. Useful in tests.
func NewNop() *Logger {
	l, _ := New("")
	return l
}

// With returns a logger sharing this logger's output with an extra message prefix
func (l *Logger) With(prefix string) *Logger {
	if l == nil {
		return nil
	}
	p := prefix
	if l.prefix != "" {
		p = l.prefix + " " + prefix
	}
	return &Logger{core: l.core, prefix: p}
}

// Sync flushes any buffered log data to disk
func (l *Logger) Sync() error {
	if l != nil && l.core.logFile != nil {
		return l.core.logFile.Sync()
	}
	return nil
}

// Close closes the log file
func (l *Logger) Close() error {
	if l != nil && l.core.logFile != nil {
		_ = l.core.logFile.Sync()
		return l.core.logFile.Close()
	}
	return nil
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level string) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.level = strings.ToUpper(level)
}

// shouldLog determines if a message should be logged based on the current level
func (l *Logger) shouldLog(level string) bool {
	l.core.mu.RLock()
	current := l.core.level
	l.core.mu.RUnlock()

	currentLevel, exists := levels[current]
	if !exists {
		currentLevel = levels[global.LogLevelInfo]
	}

	messageLevel, exists := levels[level]
	if !exists {
		messageLevel = levels[global.LogLevelInfo]
	}

	return messageLevel >= currentLevel
}

func (l *Logger) formatMessage(level, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	if l.prefix != "" {
		message = l.prefix + " " + message
	}
	return fmt.Sprintf("%s [%s] [%d] %s", timestamp, level, os.Getpid(), message)
}

func (l *Logger) log(level, message string) {
	if l == nil {
		return
	}
	if l.shouldLog(level) {
		l.core.logger.Println(l.formatMessage(level, message))
	}
}

// Debug logs a debug message
func (l *Logger) Debug(message string) {
	l.log(global.LogLevelDebug, message)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

// Info logs an info message
func (l *Logger) Info(message string) {
	l.log(global.LogLevelInfo, message)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func (l *Logger) Warn(message string) {
	l.log(global.LogLevelWarn, message)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

// Error logs an error message
func (l *Logger) Error(message string) {
	l.log(global.LogLevelError, message)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string) {
	l.log(global.LogLevelFatal, message)
	_ = l.Close()
	os.Exit(1)
}

// Fatalf logs a formatted fatal message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.Fatal(fmt.Sprintf(format, args...))
}
