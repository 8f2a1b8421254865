// Package logger provides leveled logging for the settlement engine.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = map[Level]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
}

// ParseLevel maps a config string to a Level, defaulting to InfoLevel.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

var (
	minLevel = InfoLevel
	std      = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
)

// Init configures the package-level logger. With format "text" the source
// file and line are included in every record.
func Init(level string, format string) {
	minLevel = ParseLevel(level)
	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}
	std = log.New(os.Stderr, "", flags)
}

func logf(level Level, format string, args ...any) {
	if level < minLevel {
		return
	}
	_ = std.Output(3, fmt.Sprintf("["+levelNames[level]+"] "+format, args...))
}

func Debug(format string, args ...any) { logf(DebugLevel, format, args...) }

func Info(format string, args ...any) { logf(InfoLevel, format, args...) }

func Warn(format string, args ...any) { logf(WarnLevel, format, args...) }

func Error(format string, args ...any) { logf(ErrorLevel, format, args...) }

// Fatal logs and exits the process.
func Fatal(format string, args ...any) {
	_ = std.Output(3, fmt.Sprintf("[FATAL] "+format, args...))
	os.Exit(1)
}
