package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	echolog "github.com/labstack/gommon/log"
)

// EchoLoggerAdapter routes echo's internal logging to a slog logger so
// framework messages land in the server log with the request log.
//
// Usage:
//
//	e := echo.New()
//	e.Logger = NewEchoLoggerAdapter(slogger)
type EchoLoggerAdapter struct {
	logger *slog.Logger
	level  echolog.Lvl
}

// NewEchoLoggerAdapter creates a new Echo logger adapter
func NewEchoLoggerAdapter(logger *slog.Logger) *EchoLoggerAdapter {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &EchoLoggerAdapter{logger: logger, level: echolog.INFO}
}

// echoLevel converts a slog level to the closest gommon level.
func echoLevel(level slog.Level) echolog.Lvl {
	switch {
	case level <= slog.LevelDebug:
		return echolog.DEBUG
	case level <= slog.LevelInfo:
		return echolog.INFO
	case level <= slog.LevelWarn:
		return echolog.WARN
	default:
		return echolog.ERROR
	}
}

// Output returns the output destination (output is managed by slog)
func (a *EchoLoggerAdapter) Output() io.Writer {
	return io.Discard
}

// SetOutput is a no-op, output is managed by slog
func (a *EchoLoggerAdapter) SetOutput(_ io.Writer) {}

// Prefix returns the log prefix
func (a *EchoLoggerAdapter) Prefix() string {
	return ""
}

// SetPrefix is a no-op
func (a *EchoLoggerAdapter) SetPrefix(_ string) {}

// Level returns the current log level
func (a *EchoLoggerAdapter) Level() echolog.Lvl {
	return a.level
}

// SetLevel sets the minimum level forwarded to slog
func (a *EchoLoggerAdapter) SetLevel(level echolog.Lvl) {
	a.level = level
}

// SetHeader is a no-op, format is managed by slog
func (a *EchoLoggerAdapter) SetHeader(_ string) {}

func (a *EchoLoggerAdapter) log(level echolog.Lvl, msg string) {
	if level < a.level {
		return
	}
	switch level {
	case echolog.DEBUG:
		a.logger.Debug(msg)
	case echolog.WARN:
		a.logger.Warn(msg)
	case echolog.ERROR:
		a.logger.Error(msg)
	default:
		a.logger.Info(msg)
	}
}

func (a *EchoLoggerAdapter) logJSON(level echolog.Lvl, j echolog.JSON) {
	if level < a.level {
		return
	}
	a.logger.Log(context.Background(), slogLevel(level), "echo", "data", map[string]any(j))
}

func slogLevel(level echolog.Lvl) slog.Level {
	switch level {
	case echolog.DEBUG:
		return slog.LevelDebug
	case echolog.WARN:
		return slog.LevelWarn
	case echolog.ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Print logs a message at INFO level
func (a *EchoLoggerAdapter) Print(i ...any) { a.log(echolog.INFO, fmt.Sprint(i...)) }

// Printf logs a formatted message at INFO level
func (a *EchoLoggerAdapter) Printf(format string, args ...any) {
	a.log(echolog.INFO, fmt.Sprintf(format, args...))
}

// Printj logs a JSON object at INFO level
func (a *EchoLoggerAdapter) Printj(j echolog.JSON) { a.logJSON(echolog.INFO, j) }

// Debug logs a message at DEBUG level
func (a *EchoLoggerAdapter) Debug(i ...any) { a.log(echolog.DEBUG, fmt.Sprint(i...)) }

// Debugf logs a formatted message at DEBUG level
func (a *EchoLoggerAdapter) Debugf(format string, args ...any) {
	a.log(echolog.DEBUG, fmt.Sprintf(format, args...))
}

// Debugj logs a JSON object at DEBUG level
func (a *EchoLoggerAdapter) Debugj(j echolog.JSON) { a.logJSON(echolog.DEBUG, j) }

// Info logs a message at INFO level
func (a *EchoLoggerAdapter) Info(i ...any) { a.log(echolog.INFO, fmt.Sprint(i...)) }

// Infof logs a formatted message at INFO level
func (a *EchoLoggerAdapter) Infof(format string, args ...any) {
	a.log(echolog.INFO, fmt.Sprintf(format, args...))
}

// Infoj logs a JSON object at INFO level
func (a *EchoLoggerAdapter) Infoj(j echolog.JSON) { a.logJSON(echolog.INFO, j) }

// Warn logs a message at WARN level
func (a *EchoLoggerAdapter) Warn(i ...any) { a.log(echolog.WARN, fmt.Sprint(i...)) }

// Warnf logs a formatted message at WARN level
func (a *EchoLoggerAdapter) Warnf(format string, args ...any) {
	a.log(echolog.WARN, fmt.Sprintf(format, args...))
}

// Warnj logs a JSON object at WARN level
func (a *EchoLoggerAdapter) Warnj(j echolog.JSON) { a.logJSON(echolog.WARN, j) }

// Error logs a message at ERROR level
func (a *EchoLoggerAdapter) Error(i ...any) { a.log(echolog.ERROR, fmt.Sprint(i...)) }

// Errorf logs a formatted message at ERROR level
func (a *EchoLoggerAdapter) Errorf(format string, args ...any) {
	a.log(echolog.ERROR, fmt.Sprintf(format, args...))
}

// Errorj logs a JSON object at ERROR level
func (a *EchoLoggerAdapter) Errorj(j echolog.JSON) { a.logJSON(echolog.ERROR, j) }

// Fatal logs a message at ERROR level and panics so the recover middleware or
// the caller can shut down cleanly.
func (a *EchoLoggerAdapter) Fatal(i ...any) {
	msg := fmt.Sprint(i...)
	a.logger.Error(msg)
	panic("echo fatal error: " + msg)
}

// Fatalf logs a formatted message at ERROR level and panics
func (a *EchoLoggerAdapter) Fatalf(format string, args ...any) {
	a.Fatal(fmt.Sprintf(format, args...))
}

// Fatalj logs a JSON object at ERROR level and panics
func (a *EchoLoggerAdapter) Fatalj(j echolog.JSON) {
	a.Fatal(fmt.Sprintf("%v", j))
}

// Panic logs a message at ERROR level and panics
func (a *EchoLoggerAdapter) Panic(i ...any) {
	msg := fmt.Sprint(i...)
	a.logger.Error(msg)
	panic(msg)
}

// Panicf logs a formatted message at ERROR level and panics
func (a *EchoLoggerAdapter) Panicf(format string, args ...any) {
	a.Panic(fmt.Sprintf(format, args...))
}

// Panicj logs a JSON object at ERROR level and panics
func (a *EchoLoggerAdapter) Panicj(j echolog.JSON) {
	a.Panic(fmt.Sprintf("%v", j))
}
