// Package subindex implements the subscription index described in spec
// §4.4: a mirror tree of Directories carrying the last-observed Value at
// each subscribed path, diffed against each new root snapshot to find the
// minimal set of subscriptions that must be redelivered.
package subindex

import (
	"github.com/reactree/reactree/pkg/path"
	"github.com/reactree/reactree/pkg/value"
)

// Callback is invoked with one Value per subscribed path, in path order.
type Callback func(values []*value.Value)

// Directory is one node of the mirror tree: one per distinct path ever
// subscribed to, or needed as an ancestor of one.
type Directory struct {
	parent      *Directory
	elem        path.Element
	hasElem     bool
	children    map[path.Element]*Directory
	subscribers map[*Subscription]int // sub -> slot idx, for O(1) discard
	state       *value.Value
}

func newRoot() *Directory {
	return &Directory{children: map[path.Element]*Directory{}, subscribers: map[*Subscription]int{}, state: value.Absent}
}

// child returns (creating if necessary) the child directory at elem. A
// new child starts from the value at elem within d's last observed state.
func (d *Directory) child(elem path.Element) *Directory {
	if c, ok := d.children[elem]; ok {
		return c
	}
	c := &Directory{parent: d, elem: elem, hasElem: true, children: map[path.Element]*Directory{}, subscribers: map[*Subscription]int{}, state: value.Get(d.state, elem)}
	d.children[elem] = c
	return c
}

// get walks p from d, creating intermediate directories.
func (d *Directory) get(p path.Path) *Directory {
	cur := d
	for _, e := range p {
		cur = cur.child(e)
	}
	return cur
}

func (d *Directory) garbageCollect() {
	for d.parent != nil && len(d.children) == 0 && len(d.subscribers) == 0 {
		parent := d.parent
		delete(parent.children, d.elem)
		d.parent = nil
		d = parent
	}
}

// update recomputes state for the subtree rooted at d given the new value
// at this node, recording subscriptions whose current tuple actually
// changed into dirty.
func (d *Directory) update(newState *value.Value, dirty map[*Subscription]struct{}) {
	if newState == d.state {
		return
	}
	for sub, idx := range d.subscribers {
		if sub.setCurrent(idx, newState) {
			dirty[sub] = struct{}{}
		}
	}
	for elem, child := range d.children {
		childState := value.Get(newState, elem)
		if childState == nil {
			childState = value.Absent
		}
		child.update(childState, dirty)
	}
	d.state = newState
}

// Subscription is an ordered tuple of paths, a callback, and the current/
// reported value tuples used to decide when and what to deliver.
//
// subindex never invokes Callback itself: Update only computes which
// subscriptions became dirty. Actually dispatching — deciding whether a
// dirty subscription's current tuple still differs from what was last
// reported, and running the callback via the engine's own scheduler
// rather than inline — is the caller's (pkg/tree's) job, per spec §5
// ("callbacks are scheduled via run-soon rather than called inline").
type Subscription struct {
	dirs     []*Directory
	callback Callback
	current  []*value.Value
	reported []*value.Value
	disabled bool
}

func (s *Subscription) setCurrent(idx int, v *value.Value) (changed bool) {
	if s.current[idx] == v {
		return false
	}
	s.current[idx] = v
	return true
}

// Callback returns the subscription's registered callback.
func (s *Subscription) Callback() Callback { return s.callback }

// Dirty reports whether the current tuple differs from what was last
// reported — i.e. whether a dispatch is owed.
func (s *Subscription) Dirty() bool {
	return !s.disabled && !sameSlice(s.current, s.reported)
}

// TakeDelivery returns a defensive copy of the current tuple and marks it
// as reported, so a second call without an intervening state change
// reports Dirty()==false. The caller is responsible for actually invoking
// Callback with the returned tuple.
func (s *Subscription) TakeDelivery() []*value.Value {
	tuple := append([]*value.Value(nil), s.current...)
	s.reported = tuple
	return append([]*value.Value(nil), tuple...)
}

func sameSlice(a, b []*value.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Index is one mirror tree (the engine keeps one per snapshot kind: raw,
// unresolved, resolved).
type Index struct {
	root *Directory
}

// New creates an empty index.
func New() *Index {
	return &Index{root: newRoot()}
}

// Subscribe reserves one Directory per path (creating ancestors as
// needed), and returns the new Subscription. If initial is true, the
// subscription's "reported" tuple starts all-Absent, so Dirty() is true
// right away whenever any subscribed path already holds a value (Update
// does not return it unless its tuple changes during that walk);
// otherwise "reported" starts equal to "current" so only genuine
// subsequent changes are delivered.
func (ix *Index) Subscribe(paths []path.Path, callback Callback, initial bool) *Subscription {
	dirs := make([]*Directory, len(paths))
	current := make([]*value.Value, len(paths))
	for i, p := range paths {
		d := ix.root.get(p)
		dirs[i] = d
		current[i] = d.state
	}
	sub := &Subscription{dirs: dirs, callback: callback, current: current}
	if initial {
		sub.reported = make([]*value.Value, len(paths))
		for i := range sub.reported {
			sub.reported[i] = value.Absent
		}
	} else {
		sub.reported = append([]*value.Value(nil), current...)
	}
	for idx, d := range dirs {
		d.subscribers[sub] = idx
	}
	return sub
}

// Unsubscribe disables sub (one-way transition) and removes its index
// membership, garbage collecting now-empty Directories up to the root.
func (ix *Index) Unsubscribe(sub *Subscription) {
	sub.disabled = true
	for _, d := range sub.dirs {
		delete(d.subscribers, sub)
		d.garbageCollect()
	}
}

// Update walks the mirror from the root against newRoot, diffing
// pointer-identity subtree by subtree, and returns every subscription
// whose current tuple changed as a result of this walk. The caller
// decides what to do with each: check Dirty(), then TakeDelivery() and
// run Callback() through its own scheduler.
func (ix *Index) Update(newRoot *value.Value) []*Subscription {
	dirty := map[*Subscription]struct{}{}
	ix.root.update(newRoot, dirty)
	out := make([]*Subscription, 0, len(dirty))
	for sub := range dirty {
		out = append(out, sub)
	}
	return out
}

// Disabled reports whether Unsubscribe has been called.
func (s *Subscription) Disabled() bool { return s.disabled }
