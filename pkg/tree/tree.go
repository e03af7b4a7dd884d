// Package tree implements the Managed Tree: the engine that owns the
// raw/unresolved/resolved snapshots, reconciles plug-ins against the
// roster derived from the raw state, runs the single cooperative
// update loop, and hosts the command registry. It is built the way
// ec's XactGet runs its jogger loop — one goroutine, channel-driven,
// no sharded locking — generalized from a per-bucket erasure-coding
// runner to a single long-lived state-tree runner.
package tree

import (
	"github.com/reactree/reactree/pkg/attached"
	"github.com/reactree/reactree/pkg/config"
	"github.com/reactree/reactree/pkg/path"
	"github.com/reactree/reactree/pkg/plugin"
	"github.com/reactree/reactree/pkg/subindex"
	"github.com/reactree/reactree/pkg/value"
)

// Snapshot selects which of the engine's three views Get/Subscribe
// reads from.
type Snapshot int

const (
	Resolved Snapshot = iota
	Unresolved
	Raw
)

// pluginInfo is one mounted plug-in instance's bookkeeping, the Go
// analogue of ManagedTree's PluginInfo.
type pluginInfo struct {
	path           path.Path
	tag            string
	config         *value.Value
	instance       plugin.Plugin
	state          *value.Value
	subscriptions  map[*subscription]struct{}
	registeredCmds map[*Command]struct{}
	disabled       bool
}

// Tree is the engine. All exported methods are safe to call from any
// goroutine: they submit a closure to the single loop goroutine and
// block for its result, the same "one thread really owns the state"
// discipline the spec calls for, adapted from asyncio's single-
// threaded cooperative model to real OS threads via a channel instead
// of relying on the absence of preemption.
type Tree struct {
	ops chan func()

	// loop-goroutine-owned state; never touched from any other
	// goroutine.
	rawState, unresolvedState, resolvedState, nextState *value.Value
	realpath                                             func(path.Path) (path.Path, bool)

	rawIndex, unresolvedIndex, resolvedIndex *subindex.Index

	pluginInfos     []*pluginInfo
	pluginList      []attached.PluginDecl
	coreState       *value.Value
	corePluginPaths []path.Path

	commands map[string]map[string]*Command // formatPath(path) -> name -> *Command

	// maxResolveSteps/maxResolveBack bound attached.Resolved's
	// iterative pass, sourced from config.GCO at construction time.
	maxResolveSteps int
	maxResolveBack  int

	// pendingDispatch holds subscriptions that became dirty outside an
	// Index.Update walk (an initial=true Subscribe against state that
	// already existed) and so need a dispatch check on the next pass
	// even though no snapshot changed underneath them.
	pendingDispatch []*subindex.Subscription

	wake     chan struct{}
	stopOnce chan struct{}
	stopped  chan struct{}

	// currentlyOnLoop is true only while run's select body is
	// executing a submitted op or the update pass, and is only ever
	// read/written from the loop goroutine itself, so it needs no
	// synchronization.
	currentlyOnLoop bool
}

// New constructs an idle Tree and starts its update-loop goroutine.
// Close stops it.
func New() *Tree {
	cfg := config.GCO.Get()
	t := &Tree{
		ops:             make(chan func()),
		maxResolveSteps: cfg.MaxResolveSteps,
		maxResolveBack:  cfg.MaxResolveBack,
		rawState:        value.NewMap(nil),
		unresolvedState: value.NewMap(nil),
		resolvedState:   value.NewMap(nil),
		nextState:       value.NewMap(nil),
		realpath:        func(p path.Path) (path.Path, bool) { return p, true },
		rawIndex:        subindex.New(),
		unresolvedIndex: subindex.New(),
		resolvedIndex:   subindex.New(),
		coreState:       value.NewMap(map[string]*value.Value{"commands": value.NewMap(nil)}),
		commands:        map[string]map[string]*Command{},
		wake:            make(chan struct{}, 1),
		stopOnce:        make(chan struct{}),
		stopped:         make(chan struct{}),
	}
	go t.run()
	return t
}

// Close stops the update loop. Pending ops already submitted complete
// first; no new ops may be submitted afterward.
func (t *Tree) Close() {
	close(t.stopOnce)
	<-t.stopped
}

// call submits fn to the loop goroutine and blocks until it returns.
// Called from the loop goroutine itself (e.g. from inside a plug-in's
// capability closure during Init), call runs fn directly instead of
// deadlocking on its own channel.
func (t *Tree) call(fn func()) {
	if t.onLoop() {
		fn()
		return
	}
	done := make(chan struct{})
	t.ops <- func() {
		fn()
		close(done)
	}
	<-done
}

func (t *Tree) onLoop() bool {
	return t.currentlyOnLoop
}

func (t *Tree) run() {
	defer close(t.stopped)
	for {
		select {
		case <-t.stopOnce:
			return
		case fn := <-t.ops:
			t.currentlyOnLoop = true
			fn()
			t.currentlyOnLoop = false
		case <-t.wake:
			t.currentlyOnLoop = true
			t.runPass()
			t.currentlyOnLoop = false
		}
	}
}

func (t *Tree) signalWake() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Get reads one path from the selected snapshot.
func (t *Tree) Get(p path.Path, snap Snapshot) *value.Value {
	var out *value.Value
	t.call(func() {
		out = value.GetAtPath(t.snapshotFor(snap), p)
	})
	return out
}

func (t *Tree) snapshotFor(snap Snapshot) *value.Value {
	switch snap {
	case Raw:
		return t.rawState
	case Unresolved:
		return t.unresolvedState
	default:
		return t.resolvedState
	}
}

// Realpath resolves location through the most recently computed
// symlink table.
func (t *Tree) Realpath(location path.Path) (real path.Path, ok bool) {
	t.call(func() {
		real, ok = t.realpath(location)
	})
	return real, ok
}
