package tree

import (
	"runtime/debug"

	"github.com/reactree/reactree/pkg/attached"
	"github.com/reactree/reactree/pkg/metrics"
	"github.com/reactree/reactree/pkg/path"
	"github.com/reactree/reactree/pkg/subindex"
	"github.com/reactree/reactree/pkg/value"
	"github.com/reactree/reactree/pkg/xlog"
)

// runPass is the update loop body: compose the unresolved snapshot if
// it changed, resolve symlinks, diff all three mirror trees, and
// dispatch every subscription whose tuple actually changed. Runs
// entirely on the loop goroutine; never invoked directly by exported
// methods, only via signalWake + the run() select.
func (t *Tree) runPass() {
	stop := metrics.Timer()
	defer stop()
	defer metrics.PassesTotal.Inc()

	if t.nextState != t.unresolvedState {
		next := t.nextState
		t.resolvedState = attached.Resolved(next, t.maxResolveSteps, t.maxResolveBack)
		t.realpath = attached.Realpath(next)
		t.unresolvedState = next
		t.nextState = next

		// Publish symlinks/unresolved through the same setCore path
		// commands.go uses, so every core-plugin mount always reflects
		// the one coherent coreState rather than racing two different
		// partial-overlay mechanisms against each other.
		t.setCore(path.Path{path.Key("symlinks")}, symlinksToValue(attached.SymlinkInfoMap(next)))
		t.setCore(path.Path{path.Key("unresolved")}, next)
	}

	var dirty []*subindex.Subscription
	dirty = append(dirty, t.pendingDispatch...)
	t.pendingDispatch = nil
	dirty = append(dirty, t.rawIndex.Update(t.rawState)...)
	dirty = append(dirty, t.unresolvedIndex.Update(t.unresolvedState)...)
	dirty = append(dirty, t.resolvedIndex.Update(t.resolvedState)...)

	xlog.Trace("tree: update pass, %d dirty subscriptions", len(dirty))

	for _, sub := range dirty {
		if !sub.Dirty() {
			continue
		}
		tuple := sub.TakeDelivery()
		if cb := sub.Callback(); cb != nil {
			dispatch(cb, tuple)
			metrics.DispatchedCallbacksTotal.Inc()
		}
	}
}

// dispatch runs one subscription callback with the same fault-isolation
// contract plugins.go gives Init/UpdateConfig/Shutdown: a panicking
// callback is recovered, logged with its stack, and never reaches the
// loop goroutine, so one bad subscriber can't take down every other
// subscription and plugin sharing this process.
func dispatch(cb subindex.Callback, tuple []*value.Value) {
	defer func() {
		if r := recover(); r != nil {
			xlog.Errorf("tree: panic in subscription callback: %v\n%s", r, debug.Stack())
		}
	}()
	cb(tuple)
}

func symlinksToValue(m map[string]string) *value.Value {
	pairs := make(map[string]*value.Value, len(m))
	for k, v := range m {
		pairs[k] = value.NewString(v)
	}
	return value.NewMap(pairs)
}
