// Package logger provides the process-wide structured logger: a
// slog.Logger stamped with a per-run correlation id, plus a rate-capped
// path for informational controller-error envelopes so a chatty
// controller can't flood stderr.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

var Log *slog.Logger

// RunID is a process-local correlation id, stamped into every log line,
// that lets a reader tell apart the stderr output of several host
// instances piped from the same controller fan-out.
var RunID = uuid.NewString()

// errorEnvelopeLimiter caps informational (non-resync-forcing) error
// envelope log lines. This is independent of the protocol-mandated
// power-of-two intent-drop throttle in internal/session, which bounds a
// different kind of backlog entirely.
var errorEnvelopeLimiter = rate.NewLimiter(rate.Every(time.Second), 5)

func init() {
	// A safe default so log calls before Init (e.g. in tests that never
	// call it) don't dereference a nil logger.
	Log = slog.New(slog.NewTextHandler(os.Stderr, nil)).With("run_id", RunID)
}

// Init initializes the global logger
func Init(level string, logFile string) error {
	// Parse log level
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelDebug
	}

	// Set up multi-writer (stderr + file). stdout is the framed protocol
	// transport (see cmd/projection-host), so log lines must never land
	// there — a log line interleaved into the frame stream would corrupt
	// it for the controller.
	var writers []io.Writer
	writers = append(writers, os.Stderr)

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}

	multiWriter := io.MultiWriter(writers...)

	// Create handler with custom options
	handler := slog.NewTextHandler(multiWriter, &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Shorten time format
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("15:04:05"))
			}
			return a
		},
	})

	Log = slog.New(handler).With("run_id", RunID)
	slog.SetDefault(Log)

	return nil
}

// Debug logs at debug level
func Debug(msg string, args ...any) {
	Log.Debug(msg, args...)
}

// Info logs at info level
func Info(msg string, args ...any) {
	Log.Info(msg, args...)
}

// Warn logs at warn level
func Warn(msg string, args ...any) {
	Log.Warn(msg, args...)
}

// Error logs at error level
func Error(msg string, args ...any) {
	Log.Error(msg, args...)
}

// ErrorEnvelopeThrottled logs an informational (non-resync-forcing)
// controller error envelope, dropping lines past the rate cap instead
// of letting a chatty controller flood stderr. Resync-forcing errors
// always log in full through Error instead: they're already bounded by
// the session's own resync debounce, and losing one would hide a real
// protocol state transition.
func ErrorEnvelopeThrottled(msg string, args ...any) {
	if !errorEnvelopeLimiter.Allow() {
		return
	}
	Log.Warn(msg, args...)
}
