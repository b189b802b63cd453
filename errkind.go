package xmrgateway

import goerrors "github.com/go-errors/errors"

// errKind tags an error as either transient (the current tick is abandoned,
// but the scanner keeps running and retries next tick) or fatal (the
// scanner exits and Status() reports Failed). See spec §7's
// "Error-union discipline": RPC errors and storage write/flush errors are
// transient; only an error wrapped with fatal stops the scanner.
type errKind int

const (
	kindTransient errKind = iota
	kindFatal
)

// tickError wraps an underlying error with its kind and a stack trace
// (via go-errors/errors, the same wrapper dcrlnd reaches for at the point
// an error is logged) so a warn-level log line can include "where", not just
// "what".
type tickError struct {
	kind errKind
	err  *goerrors.Error
}

func (e *tickError) Error() string { return e.err.Error() }

func (e *tickError) Unwrap() error { return e.err.Err }

// transient wraps err as a retriable tick failure: logged, tick abandoned,
// scanner keeps running.
func transient(err error) error {
	if err == nil {
		return nil
	}
	return &tickError{kind: kindTransient, err: goerrors.Wrap(err, 1)}
}

// fatal wraps err as a non-retriable failure: the scanner stops and Status
// reports Failed.
func fatal(err error) error {
	if err == nil {
		return nil
	}
	return &tickError{kind: kindFatal, err: goerrors.Wrap(err, 1)}
}

// isFatal reports whether err (as produced by transient/fatal above) should
// stop the scanner loop. A plain, unwrapped error is treated as transient —
// the conservative default for an error this package didn't itself classify.
func isFatal(err error) bool {
	var te *tickError
	if !goerrorsAs(err, &te) {
		return false
	}
	return te.kind == kindFatal
}

// goerrorsAs is a tiny local alias so this file doesn't need to import both
// "errors" and go-errors/errors just for one As call.
func goerrorsAs(err error, target **tickError) bool {
	for err != nil {
		if te, ok := err.(*tickError); ok {
			*target = te
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
