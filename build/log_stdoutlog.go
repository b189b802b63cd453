//go:build !filelog
// +build !filelog

package build

import "os"

// LoggingType is a log type that writes to stdout. This is the default
// unless the "filelog" build tag is set.
const LoggingType = LogTypeStdOut

// Write writes the log output to stdout, and to the rotator file if one has
// been attached via InitLogRotator.
func (w *LogWriter) Write(b []byte) (int, error) {
	if w.Rotator != nil {
		_, _ = w.Rotator.Write(b)
	}
	return os.Stdout.Write(b)
}
