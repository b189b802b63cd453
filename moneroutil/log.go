package moneroutil

import (
	"github.com/decred/slog"
	"github.com/xmrgateway/xmrgateway/build"
)

// log is a logger that is initialized with no output filters. This means
// the package will not perform any logging by default until the caller
// requests it. moneroutil itself rarely has anything worth logging (it is
// pure arithmetic), but it carries the package's logger so a caller
// decoding a malformed address or output key can be told about it at the
// right verbosity without moneroutil importing anything beyond slog.
var log slog.Logger

// The default amount of logging is none.
func init() {
	UseLogger(build.NewSubLogger("XMRU", nil))
}

// DisableLog disables all library log output. Logging output is disabled
// by default until UseLogger is called.
func DisableLog() {
	UseLogger(slog.Disabled)
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger slog.Logger) {
	log = logger
}
