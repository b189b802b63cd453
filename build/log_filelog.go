//go:build filelog
// +build filelog

package build

import "os"

var logf *os.File

// LoggingType is reported as LogTypeStdOut in this build variant, even
// though Write sends output to a file.
const LoggingType = LogTypeStdOut

// Write writes b to xmrgateway.log in the current directory.
func (w *LogWriter) Write(b []byte) (int, error) {
	return logf.Write(b)
}

func init() {
	var err error
	logf, err = os.Create("xmrgateway.log")
	if err != nil {
		panic(err)
	}
}
