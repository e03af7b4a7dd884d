package tree_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/reactree/reactree/pkg/path"
	"github.com/reactree/reactree/pkg/plugin"
	"github.com/reactree/reactree/pkg/tree"
	"github.com/reactree/reactree/pkg/value"
)

func init() {
	plugin.RegisterFactory("test.echo", func(caps plugin.Capabilities) plugin.Plugin {
		return &echoPlugin{caps: caps}
	})
	plugin.RegisterFactory("test.cmd", func(caps plugin.Capabilities) plugin.Plugin {
		return &cmdPlugin{caps: caps}
	})
	plugin.RegisterFactory("test.fail", func(plugin.Capabilities) plugin.Plugin {
		return failPlugin{}
	})
}

// echoPlugin subscribes to the paths named in its "watch" config entry
// and republishes whatever it observes as its own state, so tests can
// assert on subscription delivery purely through Tree.Get.
type echoPlugin struct {
	caps  plugin.Capabilities
	unsub plugin.Unsubscribe
}

func (p *echoPlugin) Init(config *value.Value) error {
	var paths []path.Path
	for _, item := range config.Field("watch").Items() {
		paths = append(paths, path.Parse(item.Str(), nil))
	}
	p.unsub = p.caps.Subscribe(paths, true, func(values []*value.Value) {
		p.caps.SetState(nil, value.NewList(append([]*value.Value(nil), values...)))
	})
	return nil
}

func (p *echoPlugin) UpdateConfig(*value.Value) bool { return true }

func (p *echoPlugin) Shutdown() {
	if p.unsub != nil {
		p.unsub()
	}
}

// cmdPlugin registers a "double" command at its own mount.
type cmdPlugin struct {
	caps plugin.Capabilities
}

func (p *cmdPlugin) Init(*value.Value) error {
	return p.caps.RegisterCommand(nil, "double", "doubles an integer", func(arg *value.Value) (*value.Value, error) {
		return value.NewInt(arg.Int() * 2), nil
	})
}

// failPlugin always fails Init, to exercise the engine's fault
// isolation around plug-in load failures.
type failPlugin struct{}

func (failPlugin) Init(*value.Value) error { return fmt.Errorf("boom") }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSetRawStateRejectsNonMapping(t *testing.T) {
	tr := tree.New()
	defer tr.Close()

	if err := tr.SetRawState(42); err == nil {
		t.Fatal("expected error for non-mapping raw state")
	}
}

func TestSetRawStateStripsReservedSysKey(t *testing.T) {
	tr := tree.New()
	defer tr.Close()

	if err := tr.SetRawState(map[string]interface{}{"sys": "userdata", "a": 1}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		return tr.Get(path.Parse("/a", nil), tree.Raw) != value.Absent
	})
	if got := tr.Get(path.Parse("/sys", nil), tree.Raw); got != value.Absent {
		t.Fatalf("expected /sys to be stripped from raw state, got %v", got)
	}
}

func TestSymlinkResolution(t *testing.T) {
	tr := tree.New()
	defer tr.Close()

	raw := map[string]interface{}{
		"foo": "bar",
		"x1": []interface{}{0, 1, 2, map[string]interface{}{"__symlink__": "x2"}, 4},
		"x2": map[string]interface{}{
			"y1": 123,
			"y2": map[string]interface{}{"__symlink__": "foo"},
			"y3": map[string]interface{}{"__symlink__": "/x1/[3]/y1"},
			"y4": map[string]interface{}{"__symlink__": []interface{}{"x2", "y2"}},
		},
	}
	if err := tr.SetRawState(raw); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		return tr.Get(path.Parse("/x2/y2", nil), tree.Resolved) == value.NewString("bar")
	})

	if got := tr.Get(path.Parse("/x1/[3]/y1", nil), tree.Resolved); got != value.NewInt(123) {
		t.Fatalf("x1[3].y1 = %v, want 123", got)
	}
	if got := tr.Get(path.Parse("/x2/y3", nil), tree.Resolved); got != value.NewInt(123) {
		t.Fatalf("x2.y3 = %v, want 123", got)
	}
	if got := tr.Get(path.Parse("/x2/y4", nil), tree.Resolved); got != value.NewString("bar") {
		t.Fatalf("x2.y4 = %v, want bar", got)
	}

	real, ok := tr.Realpath(path.Parse("/x1/[3]", nil))
	if !ok || path.Format(real) != "/x2" {
		t.Fatalf("realpath(/x1/[3]) = %v, %v, want /x2", real, ok)
	}
}

func TestSymlinkCycleYieldsAbsentRealpath(t *testing.T) {
	tr := tree.New()
	defer tr.Close()

	raw := map[string]interface{}{
		"a": map[string]interface{}{"__symlink__": "/b"},
		"b": map[string]interface{}{"__symlink__": "/a"},
	}
	if err := tr.SetRawState(raw); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		return tr.Get(path.Parse("/a", nil), tree.Unresolved) != value.Absent
	})
	if _, ok := tr.Realpath(path.Parse("/a", nil)); ok {
		t.Fatal("expected cycle to yield no real path")
	}
}

func TestPluginSubscriptionDelivery(t *testing.T) {
	tr := tree.New()
	defer tr.Close()

	raw := map[string]interface{}{
		"a": 1,
		"p1": map[string]interface{}{
			"__plugin__": "test.echo",
			"watch":      []interface{}{"/a"},
		},
	}
	if err := tr.SetRawState(raw); err != nil {
		t.Fatal(err)
	}

	wantFirst := value.NewList([]*value.Value{value.NewInt(1)})
	waitFor(t, func() bool {
		return value.Equal(tr.Get(path.Parse("/p1", nil), tree.Resolved), wantFirst)
	})

	raw["a"] = 2
	if err := tr.SetRawState(raw); err != nil {
		t.Fatal(err)
	}
	wantSecond := value.NewList([]*value.Value{value.NewInt(2)})
	waitFor(t, func() bool {
		return value.Equal(tr.Get(path.Parse("/p1", nil), tree.Resolved), wantSecond)
	})
}

func TestCommandRegisterInvokeUnregister(t *testing.T) {
	tr := tree.New()
	defer tr.Close()

	raw := map[string]interface{}{
		"p1": map[string]interface{}{"__plugin__": "test.cmd"},
	}
	if err := tr.SetRawState(raw); err != nil {
		t.Fatal(err)
	}

	p1 := path.Parse("/p1", nil)
	waitFor(t, func() bool {
		_, err := tr.Command(p1, "double")
		return err == nil
	})

	result, err := tr.Invoke(p1, "double", value.NewInt(21))
	if err != nil {
		t.Fatal(err)
	}
	if result != value.NewInt(42) {
		t.Fatalf("double(21) = %v, want 42", result)
	}

	delete(raw, "p1")
	if err := tr.SetRawState(raw); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		_, err := tr.Invoke(p1, "double", value.NewInt(1))
		return err == tree.ErrUnknownCommand
	})
}

func TestPluginLoadFailureIsRecordedNotFatal(t *testing.T) {
	tr := tree.New()
	defer tr.Close()

	raw := map[string]interface{}{
		"p1": map[string]interface{}{"__plugin__": "test.fail"},
		"p2": map[string]interface{}{"a": 1},
	}
	if err := tr.SetRawState(raw); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		v := tr.Get(path.Parse("/p1", nil), tree.Resolved)
		return v.Kind() == value.KindMap && v.Field("exception") != value.Absent
	})
	if got := tr.Get(path.Parse("/p2/a", nil), tree.Resolved); got != value.NewInt(1) {
		t.Fatalf("unrelated state should be unaffected by a sibling plug-in's load failure, got %v", got)
	}
}

func TestUnknownPluginKindFailsLoadOnly(t *testing.T) {
	tr := tree.New()
	defer tr.Close()

	raw := map[string]interface{}{
		"p1": map[string]interface{}{"__plugin__": "no.such.kind"},
	}
	if err := tr.SetRawState(raw); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		v := tr.Get(path.Parse("/p1", nil), tree.Resolved)
		return v.Kind() == value.KindMap && v.Field("exception") != value.Absent
	})
}

func TestCorePluginPublishesCommandRoster(t *testing.T) {
	tr := tree.New()
	defer tr.Close()

	raw := map[string]interface{}{
		"sysroot": map[string]interface{}{"__plugin__": "core-plugin"},
		"p1":      map[string]interface{}{"__plugin__": "test.cmd"},
	}
	if err := tr.SetRawState(raw); err != nil {
		t.Fatal(err)
	}

	commandsPath := path.Path{path.Key("sysroot"), path.Key("commands"), path.Key("/p1"), path.Key("double")}
	waitFor(t, func() bool {
		v := tr.Get(commandsPath, tree.Resolved)
		return v.Kind() == value.KindMap
	})
}
