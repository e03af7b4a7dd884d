package tree

import (
	"fmt"
	"runtime/debug"

	"github.com/reactree/reactree/pkg/attached"
	"github.com/reactree/reactree/pkg/idgen"
	"github.com/reactree/reactree/pkg/metrics"
	"github.com/reactree/reactree/pkg/path"
	"github.com/reactree/reactree/pkg/plugin"
	"github.com/reactree/reactree/pkg/value"
	"github.com/reactree/reactree/pkg/xlog"
)

// corePluginKind is the special "__plugin__" identifier that opts a
// mount path into receiving the engine's own published state (commands,
// symlinks, the unresolved snapshot) instead of being resolved through
// the plugin factory registry and instantiated like any other declaration.
const corePluginKind = "core-plugin"

// updatePlugins reconciles the plugin roster against the current raw
// state. Grounded directly on ManagedTree.__updatePlugins: a lockstep
// merge-walk of the old PluginInfo list and the new declaration list,
// both already sorted by mount path (attached.Plugins emits keys
// ascending, depth-first, which is the same order as path.Less).
func (t *Tree) updatePlugins() {
	newList := attached.Plugins(t.rawState)
	if samePluginList(newList, t.pluginList) {
		return
	}

	oldInfos := t.pluginInfos
	var newInfos []*pluginInfo
	var corePaths []path.Path
	oi, ni := 0, 0

	for oi < len(oldInfos) || ni < len(newList) {
		haveOld := oi < len(oldInfos)
		haveNew := ni < len(newList)

		if haveNew && newList[ni].Config.Field("__plugin__").Str() == corePluginKind {
			corePaths = append(corePaths, newList[ni].Path)
			ni++
			continue
		}

		switch {
		case !haveNew || (haveOld && oldInfos[oi].path.Less(newList[ni].Path)):
			t.removePlugin(oldInfos[oi])
			oi++
		case !haveOld || (haveNew && newList[ni].Path.Less(oldInfos[oi].path)):
			newInfos = append(newInfos, t.newPlugin(newList[ni].Path, newList[ni].Config))
			ni++
		default:
			newInfos = append(newInfos, t.updatePlugin(oldInfos[oi], newList[ni].Config))
			oi++
			ni++
		}
	}

	t.pluginInfos = newInfos
	t.pluginList = newList
	t.corePluginPaths = corePaths
	metrics.ActivePlugins.Set(float64(len(newInfos)))
	t.setCore(path.Path{path.Key("instances")}, instanceTagsValue(newInfos))
}

// instanceTagsValue publishes each live pluginInfo's diagnostic tag by
// mount path, so sys.instances lets an operator correlate a log line
// ("tree: panic ... at /foo") with the specific mounted instance.
func instanceTagsValue(infos []*pluginInfo) *value.Value {
	pairs := make(map[string]*value.Value, len(infos))
	for _, pi := range infos {
		pairs[path.Format(pi.path)] = value.NewString(pi.tag)
	}
	return value.NewMap(pairs)
}

func samePluginList(a, b []attached.PluginDecl) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Config != b[i].Config || !a[i].Path.Equal(b[i].Path) {
			return false
		}
	}
	return true
}

func (t *Tree) newPlugin(mount path.Path, config *value.Value) *pluginInfo {
	pi := &pluginInfo{
		path:           mount,
		tag:            idgen.Tag(),
		config:         config,
		state:          value.Null,
		subscriptions:  map[*subscription]struct{}{},
		registeredCmds: map[*Command]struct{}{},
	}

	kind := config.Field("__plugin__").Str()
	if !plugin.Registered(kind) {
		t.recordPluginFailure(pi, fmt.Errorf("no factory registered for %q", kind), "")
		return pi
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				t.recordPluginFailure(pi, fmt.Errorf("panic in init: %v", r), string(debug.Stack()))
			}
		}()
		instance, err := plugin.New(kind, t.capabilitiesFor(pi))
		if err != nil {
			t.recordPluginFailure(pi, err, "")
			return
		}
		pi.instance = instance
		if err := instance.Init(config); err != nil {
			t.recordPluginFailure(pi, err, "")
		}
	}()

	return pi
}

func (t *Tree) updatePlugin(pi *pluginInfo, newConfig *value.Value) *pluginInfo {
	if pi.config == newConfig {
		return pi
	}

	if pi.config.Field("__plugin__") == newConfig.Field("__plugin__") && pi.instance != nil {
		if updater, ok := pi.instance.(plugin.ConfigUpdater); ok {
			accepted := false
			func() {
				defer func() {
					if r := recover(); r != nil {
						xlog.Errorf("tree: panic in updateConfig at %s (tag %s): %v", path.Format(pi.path), pi.tag, r)
						metrics.PluginFailuresTotal.Inc()
					}
				}()
				accepted = updater.UpdateConfig(newConfig)
			}()
			if accepted {
				pi.config = newConfig
				return pi
			}
		}
	}

	t.removePlugin(pi)
	return t.newPlugin(pi.path, newConfig)
}

func (t *Tree) removePlugin(pi *pluginInfo) {
	pi.disabled = true
	instance := pi.instance
	subs := pi.subscriptions
	cmds := pi.registeredCmds

	pi.config = nil
	pi.instance = nil
	pi.state = nil
	pi.subscriptions = map[*subscription]struct{}{}
	pi.registeredCmds = map[*Command]struct{}{}

	for sub := range subs {
		t.unsubscribe(sub)
	}
	for cmd := range cmds {
		t.unregisterCommand(cmd)
	}

	if instance != nil {
		if sd, ok := instance.(plugin.Shutdowner); ok {
			func() {
				defer func() {
					if r := recover(); r != nil {
						xlog.Errorf("tree: panic in shutdown at %s (tag %s): %v", path.Format(pi.path), pi.tag, r)
					}
				}()
				sd.Shutdown()
			}()
		}
	}
}

func (t *Tree) recordPluginFailure(pi *pluginInfo, err error, stack string) {
	xlog.Errorf("tree: plugin load failure at %s (tag %s): %v", path.Format(pi.path), pi.tag, err)
	metrics.PluginFailuresTotal.Inc()
	pairs := map[string]*value.Value{
		"exception": value.NewString(err.Error()),
	}
	if stack != "" {
		pairs["traceback"] = value.NewString(stack)
	}
	pi.state = value.NewMap(pairs)
	pi.instance = nil
	pi.disabled = true
}
