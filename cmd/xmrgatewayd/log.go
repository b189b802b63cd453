package main

import (
	"path/filepath"

	"github.com/xmrgateway/xmrgateway/build"
)

const (
	defaultLogFilename = "xmrgatewayd.log"
	defaultMaxLogSize  = 10 // MB
	defaultMaxLogFiles = 3
)

// setupLogging builds the root RotatingLogWriter and points it at
// cfg.LogDir, in the same two-step (construct, then InitLogRotator) shape
// every dcrlnd-family binary initializes its logging in.
func setupLogging(cfg *config) (*build.RotatingLogWriter, error) {
	w := build.NewRotatingLogWriter()

	logFile := filepath.Join(cfg.LogDir, defaultLogFilename)
	if err := w.InitLogRotator(logFile, defaultMaxLogSize, defaultMaxLogFiles); err != nil {
		return nil, err
	}

	return w, nil
}
