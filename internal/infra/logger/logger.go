package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Level represents log level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Colors for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Logger is the logging interface used throughout the agent.
type Logger interface {
	Debugf(msg string, args ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})
	Sub(module string) Logger
}

// consoleLogger implements Logger with colored output.
type consoleLogger struct {
	module string
	level  Level
	output io.Writer
}

// New creates a new Logger writing to stderr.
func New(module string, level string) Logger {
	return &consoleLogger{
		module: module,
		level:  parseLevel(level),
		output: os.Stderr,
	}
}

// parseLevel converts string level to Level.
func parseLevel(level string) Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Sub creates a sub-logger with a new module name.
func (l *consoleLogger) Sub(module string) Logger {
	newModule := module
	if l.module != "" {
		newModule = l.module + "/" + module
	}
	return &consoleLogger{
		module: newModule,
		level:  l.level,
		output: l.output,
	}
}

// Debugf logs a debug message.
func (l *consoleLogger) Debugf(msg string, args ...interface{}) {
	if l.level <= LevelDebug {
		l.log(LevelDebug, msg, args...)
	}
}

// Infof logs an info message.
func (l *consoleLogger) Infof(msg string, args ...interface{}) {
	if l.level <= LevelInfo {
		l.log(LevelInfo, msg, args...)
	}
}

// Warnf logs a warning message.
func (l *consoleLogger) Warnf(msg string, args ...interface{}) {
	if l.level <= LevelWarn {
		l.log(LevelWarn, msg, args...)
	}
}

// Errorf logs an error message.
func (l *consoleLogger) Errorf(msg string, args ...interface{}) {
	if l.level <= LevelError {
		l.log(LevelError, msg, args...)
	}
}

func (l *consoleLogger) log(level Level, msg string, args ...interface{}) {
	timestamp := time.Now().Format("15:04:05.000")
	levelStr, levelColor := l.levelString(level)

	formattedMsg := fmt.Sprintf(msg, args...)

	moduleStr := ""
	if l.module != "" {
		moduleStr = fmt.Sprintf("%s[%s]%s ", colorCyan, l.module, colorReset)
	}

	fmt.Fprintf(l.output, "%s%s%s %s%s%s %s%s\n",
		colorGray, timestamp, colorReset,
		levelColor, levelStr, colorReset,
		moduleStr, formattedMsg)
}

func (l *consoleLogger) levelString(level Level) (string, string) {
	switch level {
	case LevelDebug:
		return "DBG", colorBlue
	case LevelInfo:
		return "INF", colorGreen
	case LevelWarn:
		return "WRN", colorYellow
	case LevelError:
		return "ERR", colorRed
	default:
		return "???", colorReset
	}
}

// Nop returns a Logger that discards all output. Useful in tests.
func Nop() Logger {
	return &consoleLogger{level: LevelError + 1, output: io.Discard}
}
