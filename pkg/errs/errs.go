// Package errs centralizes invariant checks and error wrapping the way
// cmn/debug.Assert does: a failed invariant is a programmer error, so
// it panics with context rather than returning an error value that
// might be ignored.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Assert panics with msg (and args, fmt.Sprintf-formatted) if cond is
// false. Reserved for invariants that should never fail given correct
// wiring — a failure here is a bug in the engine, not a user error.
func Assert(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// AssertNoErr panics with err's message if err is non-nil.
func AssertNoErr(err error) {
	if err != nil {
		panic(err.Error())
	}
}

// Wrap and Wrapf re-export github.com/pkg/errors' stack-capturing
// wrappers so call sites elsewhere in the module don't need their own
// import of the errors package just to add context.
var (
	Wrap  = errors.Wrap
	Wrapf = errors.Wrapf
	New   = errors.New
	Is    = errors.Is
	As    = errors.As
)
