package tree

import (
	"github.com/reactree/reactree/pkg/attached"
	"github.com/reactree/reactree/pkg/path"
	"github.com/reactree/reactree/pkg/value"
)

const reservedSysKey = "sys"

// SetRawState ingests a new raw document. x is sanitized into an
// immutable Value; ErrInvalidState is returned (and the raw state left
// untouched) if it does not sanitize to a JSON mapping. Mirrors
// ManagedTree.setRawState: strip the reserved top-level "sys" key,
// skip entirely if the result is pointer-identical to the current raw
// state, otherwise reconcile plug-ins and wake the update loop.
func (t *Tree) SetRawState(x interface{}) error {
	var outErr error
	t.call(func() {
		v, err := value.Sanitize(x)
		if err != nil || v.Kind() != value.KindMap {
			outErr = ErrInvalidState
			return
		}
		if v.Field(reservedSysKey) != value.Absent {
			v, err = value.Without(v, path.Key(reservedSysKey))
			if err != nil {
				outErr = ErrInvalidState
				return
			}
		}
		if v == t.rawState {
			return
		}
		t.rawState = v
		t.updatePlugins()

		next := v
		for _, pi := range t.pluginInfos {
			next, _ = value.SetAtPath(next, pi.path, pi.state)
		}
		t.nextState = next
		t.setCore(path.Path{path.Key("raw")}, v)
		t.setCore(path.Path{path.Key("plugins")}, pluginRosterValue(t.pluginList))
		t.signalWake()
	})
	return outErr
}

func pluginRosterValue(list []attached.PluginDecl) *value.Value {
	pairs := make(map[string]*value.Value, len(list))
	for _, decl := range list {
		pairs[path.Format(decl.Path)] = decl.Config
	}
	return value.NewMap(pairs)
}
