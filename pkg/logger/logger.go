// Package logger is the colored console logger raknet-ping runs with,
// now backed by logrus rather than the standard library's log package
// (grounded on sirupsen/logrus's usage in runZeroInc-sockstats'
// cmd/get/main.go and pkg/exporter/exporter.go) while keeping the
// teacher's level constants, colorized prefixes, and Section/Banner
// console helpers.
package logger

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"raknetclient/logging"
)

// ANSI color codes
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorWhite  = "\033[37m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[90m"
)

// Log levels, kept as the teacher's own names rather than logrus's.
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSuccess
)

// Logger wraps a *logrus.Logger with the teacher's colored-prefix
// formatting and exposes logging.Logger so it can be wired straight
// into the framer/handshake/client packages.
type Logger struct {
	entry *logrus.Logger
}

var defaultLogger *Logger

func init() {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"})
	defaultLogger = &Logger{entry: base}
}

// New returns a Logger that can be passed anywhere a logging.Logger is
// expected, sharing the same underlying logrus instance as the
// package-level Debug/Info/Warn/Error helpers.
func New() logging.Logger { return defaultLogger }

// SetLevel sets the minimum log level using the teacher's Level*
// constants.
func SetLevel(level int) {
	switch level {
	case LevelDebug:
		defaultLogger.entry.SetLevel(logrus.DebugLevel)
	case LevelInfo, LevelSuccess:
		defaultLogger.entry.SetLevel(logrus.InfoLevel)
	case LevelWarn:
		defaultLogger.entry.SetLevel(logrus.WarnLevel)
	case LevelError:
		defaultLogger.entry.SetLevel(logrus.ErrorLevel)
	}
}

// SetJSON switches the console formatter to JSON, for log aggregation.
func SetJSON(enabled bool) {
	if enabled {
		defaultLogger.entry.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	defaultLogger.entry.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"})
}

func colorize(color, prefix, msg string) string {
	return fmt.Sprintf("%s[%s]%s %s", color, prefix, ColorReset, msg)
}

// Debugf implements logging.Logger.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.entry.Debug(colorize(ColorGray, "DEBUG", fmt.Sprintf(format, args...)))
}

// Infof implements logging.Logger.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.entry.Info(colorize(ColorWhite, "INFO", fmt.Sprintf(format, args...)))
}

// Warnf implements logging.Logger.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.entry.Warn(colorize(ColorYellow, "WARN", fmt.Sprintf(format, args...)))
}

// Errorf implements logging.Logger.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.entry.Error(colorize(ColorRed, "ERROR", fmt.Sprintf(format, args...)))
}

// Debug logs a debug message (gray).
func Debug(format string, args ...interface{}) { defaultLogger.Debugf(format, args...) }

// Info logs an informational message (white).
func Info(format string, args ...interface{}) { defaultLogger.Infof(format, args...) }

// Warn logs a warning message (yellow).
func Warn(format string, args ...interface{}) { defaultLogger.Warnf(format, args...) }

// Error logs an error message (red).
func Error(format string, args ...interface{}) { defaultLogger.Errorf(format, args...) }

// Success logs a success message (green).
func Success(format string, args ...interface{}) {
	defaultLogger.entry.Info(colorize(ColorGreen, "SUCCESS", fmt.Sprintf(format, args...)))
}

// Fatal logs a fatal error and exits.
func Fatal(format string, args ...interface{}) {
	defaultLogger.entry.Error(colorize(ColorRed, "FATAL", fmt.Sprintf(format, args...)))
	os.Exit(1)
}

// InfoCyan logs an info message in cyan, for highlighting connection
// milestones (handshake established, MTU negotiated).
func InfoCyan(format string, args ...interface{}) {
	defaultLogger.entry.Info(colorize(ColorCyan, "INFO", fmt.Sprintf(format, args...)))
}

// Section prints a section header.
func Section(title string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n%s╔%s╗%s\n", ColorCyan, border, ColorReset)
	fmt.Printf("%s║%s %-57s %s║%s\n", ColorCyan, ColorReset, title, ColorCyan, ColorReset)
	fmt.Printf("%s╚%s╝%s\n\n", ColorCyan, border, ColorReset)
}

// Banner prints the application banner.
func Banner(title, version string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   ██████╗  █████╗ ██╗  ██╗███╗   ██╗███████╗████████╗    ║
║   ██╔══██╗██╔══██╗██║ ██╔╝████╗  ██║██╔════╝╚══██╔══╝    ║
║   ██████╔╝███████║█████╔╝ ██╔██╗ ██║█████╗     ██║       ║
║   ██╔══██╗██╔══██║██╔═██╗ ██║╚██╗██║██╔══╝     ██║       ║
║   ██║  ██║██║  ██║██║  ██╗██║ ╚████║███████╗   ██║       ║
║   ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═══╝╚══════╝   ╚═╝       ║
║                                                           ║
║              %s%-37s%s║
║                    %sVersion %-7s%s                      ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, ColorCyan, title, ColorReset, ColorGreen, version, ColorReset)
}
