package tree

import (
	"github.com/reactree/reactree/pkg/idgen"
	"github.com/reactree/reactree/pkg/metrics"
	"github.com/reactree/reactree/pkg/path"
	"github.com/reactree/reactree/pkg/plugin"
	"github.com/reactree/reactree/pkg/subindex"
	"github.com/reactree/reactree/pkg/value"
	"github.com/reactree/reactree/pkg/xlog"
)

// subscription binds one subindex.Subscription to the pluginInfo that
// owns it, so plugin removal can sweep every live subscription without
// the plugin having to track its own teardown.
type subscription struct {
	owner *pluginInfo
	tag   string
	idx   *subindex.Index
	sub   *subindex.Subscription
}

// subscribeSnapshot registers callback against paths (absolute, within snap)
// on behalf of pi. Mirrors ManagedTree.subscribe: rejects a disabled
// actor synchronously, otherwise returns immediately and leaves
// delivery to the update loop.
func (t *Tree) subscribeSnapshot(pi *pluginInfo, paths []path.Path, snap Snapshot, callback subindex.Callback, initial bool) (*subscription, error) {
	if pi.disabled {
		return nil, ErrDisabledActor
	}
	idx := t.indexFor(snap)
	raw := idx.Subscribe(paths, callback, initial)
	s := &subscription{owner: pi, tag: idgen.Tag(), idx: idx, sub: raw}
	pi.subscriptions[s] = struct{}{}
	metrics.ActiveSubscriptions.Inc()
	xlog.Trace("tree: subscribe (tag %s) at %s, %d paths", s.tag, path.Format(pi.path), len(paths))
	if raw.Dirty() {
		t.pendingDispatch = append(t.pendingDispatch, raw)
		t.signalWake()
	}
	return s, nil
}

func (t *Tree) indexFor(snap Snapshot) *subindex.Index {
	switch snap {
	case Raw:
		return t.rawIndex
	case Unresolved:
		return t.unresolvedIndex
	default:
		return t.resolvedIndex
	}
}

func (t *Tree) unsubscribe(s *subscription) {
	s.idx.Unsubscribe(s.sub)
	delete(s.owner.subscriptions, s)
	metrics.ActiveSubscriptions.Dec()
	xlog.Trace("tree: unsubscribe (tag %s)", s.tag)
}

// capabilitiesFor builds the capability bundle handed to a freshly
// constructed plug-in instance, closing over pi so every call is
// implicitly scoped to pi's mount path and disabled-ness.
func (t *Tree) capabilitiesFor(pi *pluginInfo) plugin.Capabilities {
	return plugin.Capabilities{
		Path: pi.path,
		Get: func(p path.Path) *value.Value {
			var out *value.Value
			t.call(func() {
				out = value.GetAtPath(t.resolvedState, pi.path.Concat(p))
			})
			return out
		},
		Subscribe: func(paths []path.Path, initial bool, callback func(values []*value.Value)) plugin.Unsubscribe {
			var s *subscription
			var err error
			t.call(func() {
				s, err = t.subscribeSnapshot(pi, paths, Resolved, subindex.Callback(callback), initial)
			})
			if err != nil {
				return func() {}
			}
			return func() {
				t.call(func() { t.unsubscribe(s) })
			}
		},
		SetState: func(p path.Path, v *value.Value) {
			t.call(func() { t.setPluginState(pi, p, v) })
		},
		RegisterCommand: func(p path.Path, name string, doc string, handler plugin.CommandHandler) error {
			var err error
			t.call(func() { _, err = t.registerCommand(pi, pi.path.Concat(p), name, doc, handler) })
			return err
		},
		UnregisterCommand: func(p path.Path, name string) {
			t.call(func() { t.unregisterCommandByName(pi, pi.path.Concat(p), name) })
		},
	}
}

// setPluginState mirrors ManagedTree.__setPluginState: writes v at p
// within pi's own published substate (relative to pi.path), then
// overlays the resulting substate into nextState at pi.path.
func (t *Tree) setPluginState(pi *pluginInfo, p path.Path, v *value.Value) {
	if pi.disabled {
		return
	}
	newState, err := value.SetAtPath(pi.state, p, v)
	if err != nil || newState == pi.state {
		return
	}
	pi.state = newState
	next, err := value.SetAtPath(t.nextState, pi.path, newState)
	if err != nil {
		return
	}
	t.nextState = next
	t.signalWake()
}
