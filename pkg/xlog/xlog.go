// Package xlog centralizes the engine's leveled logging on top of
// glog, the way cmn/config.go and friends call straight through to
// 3rdparty/glog rather than wrapping every call site in a bespoke
// logger interface.
package xlog

import "github.com/golang/glog"

// Verbosity levels used by V() throughout the engine. Kept small and
// named, mirroring the handful of levels the teacher actually checks
// for (SmoduleEC-style per-subsystem levels are not needed here, since
// this is a single binary, not a clustered service).
const (
	// LevelTrace gates per-update-pass diagnostics: dirty subscription
	// counts, reconciliation decisions.
	LevelTrace glog.Level = 4
)

func Infof(format string, args ...interface{})    { glog.Infof(format, args...) }
func Warningf(format string, args ...interface{}) { glog.Warningf(format, args...) }
func Errorf(format string, args ...interface{})   { glog.Errorf(format, args...) }

// Trace logs at LevelTrace, skipped entirely unless -v=4 or higher.
func Trace(format string, args ...interface{}) {
	if glog.V(LevelTrace) {
		glog.Infof(format, args...)
	}
}

// Flush forces buffered log lines to their output, called on graceful
// shutdown so nothing is lost to glog's internal buffering.
func Flush() { glog.Flush() }
