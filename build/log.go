// Package build contains the ambient logging infrastructure shared by every
// package in this module: a rotating log writer, and a helper for minting
// per-subsystem slog.Logger instances that can be swapped out once the real
// root logger is available.
package build

import (
	"fmt"
	"io"
	"os"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// LogType describes the target(s) a LogWriter writes to.
type LogType int

const (
	// LogTypeNone indicates no logging output should be written.
	LogTypeNone LogType = iota

	// LogTypeStdOut indicates that logging output should be written to
	// stdout.
	LogTypeStdOut
)

// LogWriter is a stdlib io.Writer that can underlie a slog.Backend. Its
// Write method is supplied by one of log_stdoutlog.go (default) or
// log_filelog.go (behind the "filelog" build tag, for short-lived test
// binaries that want a single process-lifetime file instead of a rotated
// one).
type LogWriter struct {
	LogType

	// Rotator, when non-nil, receives all log output in addition to
	// whatever LogType dictates.
	Rotator *rotator.Rotator
}

// RotatingLogWriter is the root of the logging system. It owns the backing
// LogWriter and hands out per-subsystem slog.Logger instances, each of which
// can be registered so its level can be changed independently at runtime.
type RotatingLogWriter struct {
	writer *LogWriter

	backend *slog.Backend

	subsystems map[string]slog.Logger
}

// NewRotatingLogWriter creates a RotatingLogWriter that writes to stdout and,
// once InitLogRotator is called, to a rotated log file.
func NewRotatingLogWriter() *RotatingLogWriter {
	w := &LogWriter{LogType: LoggingType}
	return &RotatingLogWriter{
		writer:     w,
		backend:    slog.NewBackend(w),
		subsystems: make(map[string]slog.Logger),
	}
}

// InitLogRotator initializes the log file rotator. It must be called before
// any package logger is used if file logging is desired; until then, log
// output still reaches stdout.
func (r *RotatingLogWriter) InitLogRotator(logFile string, maxSize, maxFiles int) error {
	logDir, _ := filepathSplit(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	rot, err := rotator.New(logFile, int64(maxSize*1024), false, maxFiles)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	r.writer.Rotator = rot

	return nil
}

// GenSubLogger creates a new slog.Logger for the given subsystem, backed by
// this writer's shared backend. It matches the signature expected by
// decred/slog's SetLogger helpers across the ecosystem.
func (r *RotatingLogWriter) GenSubLogger(tag string) slog.Logger {
	return r.backend.Logger(tag)
}

// RegisterSubLogger records the given logger under the given subsystem tag
// so its level can later be adjusted via SetLogLevel/SetLogLevels.
func (r *RotatingLogWriter) RegisterSubLogger(subsystem string, logger slog.Logger) {
	r.subsystems[subsystem] = logger
}

// SetLogLevel sets the logging level of the named subsystem, if registered.
func (r *RotatingLogWriter) SetLogLevel(subsystem string, level string) {
	logger, ok := r.subsystems[subsystem]
	if !ok {
		return
	}

	lvl, ok := slog.LevelFromString(level)
	if !ok {
		return
	}

	logger.SetLevel(lvl)
}

// SetLogLevels sets every registered subsystem to the given level. Useful
// for a global "--debuglevel=debug" style flag.
func (r *RotatingLogWriter) SetLogLevels(level string) {
	for subsystem := range r.subsystems {
		r.SetLogLevel(subsystem, level)
	}
}

// Close flushes and closes the underlying rotator, if one was initialized.
func (r *RotatingLogWriter) Close() error {
	if r.writer.Rotator == nil {
		return nil
	}
	return r.writer.Rotator.Close()
}

// NewSubLogger creates a logger for the given subsystem. When genSubLogger
// is nil, a disabled logger is returned; this lets packages declare a
// package-level logger eagerly at init time, before the real root logger
// exists, without ever emitting output until SetupLoggers runs.
func NewSubLogger(subsystem string, genSubLogger func(string) slog.Logger) slog.Logger {
	if genSubLogger == nil {
		return slog.Disabled
	}
	return genSubLogger(subsystem)
}

func filepathSplit(path string) (dir, file string) {
	for i := len(path) - 1; i >= 0; i-- {
		if os.IsPathSeparator(path[i]) {
			return path[:i], path[i+1:]
		}
	}
	return "", path
}

var _ io.Writer = (*LogWriter)(nil)
