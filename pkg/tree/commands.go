package tree

import (
	"reflect"
	"runtime"

	"github.com/reactree/reactree/pkg/idgen"
	"github.com/reactree/reactree/pkg/metrics"
	"github.com/reactree/reactree/pkg/path"
	"github.com/reactree/reactree/pkg/plugin"
	"github.com/reactree/reactree/pkg/value"
	"github.com/reactree/reactree/pkg/xlog"
)

// Command is one registered, invocable name at a path.
type Command struct {
	path     path.Path
	name     string
	tag      string
	handler  plugin.CommandHandler
	doc      string
	owner    *pluginInfo
	disabled bool
}

// registerCommand mirrors ManagedTree.registerCommand: rejects a
// disabled actor, rejects a duplicate (path, name), and publishes
// {doc, signature} into the engine-owned commands subtree.
func (t *Tree) registerCommand(pi *pluginInfo, fullPath path.Path, name string, doc string, handler plugin.CommandHandler) (*Command, error) {
	if pi.disabled {
		return nil, ErrDisabledActor
	}
	key := path.Format(fullPath)
	byName, ok := t.commands[key]
	if !ok {
		byName = map[string]*Command{}
		t.commands[key] = byName
	}
	if _, dup := byName[name]; dup {
		return nil, ErrDuplicateCommand
	}

	cmd := &Command{path: fullPath, name: name, tag: idgen.Tag(), handler: handler, doc: doc, owner: pi}
	byName[name] = cmd
	pi.registeredCmds[cmd] = struct{}{}

	t.setCore(path.Path{path.Key("commands"), path.Key(key), path.Key(name)}, commandInfoValue(cmd))
	return cmd, nil
}

func commandInfoValue(cmd *Command) *value.Value {
	return value.NewMap(map[string]*value.Value{
		"doc":       value.NewString(cmd.doc),
		"signature": value.NewString(signatureString(cmd.handler)),
		"tag":       value.NewString(cmd.tag),
	})
}

// signatureString reports the handler's underlying function name as a
// stand-in for Python's inspect.signature(fn) — Go has no runtime
// parameter introspection, so the fully-qualified function name is the
// closest available diagnostic.
func signatureString(h plugin.CommandHandler) string {
	return runtime.FuncForPC(reflect.ValueOf(h).Pointer()).Name()
}

func (t *Tree) unregisterCommand(cmd *Command) {
	if cmd.disabled {
		return
	}
	cmd.disabled = true
	key := path.Format(cmd.path)
	byName := t.commands[key]
	delete(byName, cmd.name)
	delete(cmd.owner.registeredCmds, cmd)

	if len(byName) == 0 {
		delete(t.commands, key)
		t.setCore(path.Path{path.Key("commands"), path.Key(key)}, value.Absent)
	} else {
		t.setCore(path.Path{path.Key("commands"), path.Key(key), path.Key(cmd.name)}, value.Absent)
	}
}

func (t *Tree) unregisterCommandByName(pi *pluginInfo, fullPath path.Path, name string) {
	byName, ok := t.commands[path.Format(fullPath)]
	if !ok {
		return
	}
	cmd, ok := byName[name]
	if !ok || cmd.owner != pi {
		return
	}
	t.unregisterCommand(cmd)
}

// Command looks up the function registered at (p, name), the engine's
// analogue of ManagedTree.command.
func (t *Tree) Command(p path.Path, name string) (plugin.CommandHandler, error) {
	var handler plugin.CommandHandler
	var err error
	t.call(func() {
		byName, ok := t.commands[path.Format(p)]
		if !ok {
			err = ErrUnknownCommand
			return
		}
		cmd, ok := byName[name]
		if !ok {
			err = ErrUnknownCommand
			return
		}
		handler = cmd.handler
	})
	return handler, err
}

// Invoke looks up the command registered at (p, name) and calls it with
// arg, off the loop goroutine so a slow handler never stalls the update
// loop. Returns ErrUnknownCommand if nothing is registered there. Every
// call gets its own idgen.Tie() correlation id in the trace log, so two
// invocations landing in the same update pass (and the same log
// timestamp) can still be told apart.
func (t *Tree) Invoke(p path.Path, name string, arg *value.Value) (*value.Value, error) {
	corr := idgen.Tie()
	handler, err := t.Command(p, name)
	if err != nil {
		metrics.CommandInvocationsTotal.WithLabelValues("not_found").Inc()
		xlog.Trace("tree: invoke %s %s [%s]: not found", path.Format(p), name, corr)
		return nil, err
	}
	result, err := handler(arg)
	if err != nil {
		metrics.CommandInvocationsTotal.WithLabelValues("error").Inc()
		xlog.Trace("tree: invoke %s %s [%s]: error: %v", path.Format(p), name, corr, err)
		return nil, err
	}
	metrics.CommandInvocationsTotal.WithLabelValues("ok").Inc()
	xlog.Trace("tree: invoke %s %s [%s]: ok", path.Format(p), name, corr)
	return result, nil
}

// setCore mirrors ManagedTree.__setCore: mutate the engine-owned core
// subtree and, if any mount declared itself a core plug-in, overlay
// the new core state at each of those mounts.
func (t *Tree) setCore(p path.Path, v *value.Value) {
	next, err := value.SetAtPath(t.coreState, p, v)
	if err != nil {
		return
	}
	t.coreState = next

	nextState := t.nextState
	for _, corePath := range t.corePluginPaths {
		nextState, _ = value.SetAtPath(nextState, corePath, t.coreState)
	}
	if nextState != t.nextState {
		t.nextState = nextState
		t.signalWake()
	}
}
