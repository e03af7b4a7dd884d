// Package plugin defines the contract a tree plug-in implements and the
// capability bundle the engine hands it at load time, plus the
// process-global factory registry that substitutes for dynamic
// module/class loading: a plug-in identifier is a "pkg.Type"-shaped
// string, resolved at Init time the way xreg resolves a provider by
// kind rather than by importing it dynamically.
package plugin

import (
	"github.com/pkg/errors"

	"github.com/reactree/reactree/pkg/path"
	"github.com/reactree/reactree/pkg/value"
)

// Unsubscribe cancels a subscription made through Capabilities.Subscribe.
type Unsubscribe func()

// Capabilities is the bundle a plug-in instance is constructed with.
// Paths passed to Get, SetState, RegisterCommand and UnregisterCommand
// are relative to the plug-in's own mount point; paths passed to
// Subscribe are absolute from the tree root.
type Capabilities struct {
	// Path is this instance's mount point, absolute from the tree root.
	Path path.Path

	// Get returns the current resolved value at p (relative to Path),
	// or value.Absent if nothing is there.
	Get func(p path.Path) *value.Value

	// Subscribe registers callback to be invoked (via the engine's own
	// scheduler, never inline) with one Value per path in paths
	// whenever any of them changes; paths are absolute, not relative to
	// Path. If initial is true the callback also fires once with the
	// values already present. The returned Unsubscribe cancels delivery.
	Subscribe func(paths []path.Path, initial bool, callback func(values []*value.Value)) Unsubscribe

	// SetState writes v at p (relative to Path) within this instance's
	// published substate, in the next update pass. Passing
	// value.Absent removes whatever was there. p may be empty to
	// replace the instance's entire published subtree at once.
	SetState func(p path.Path, v *value.Value)

	// RegisterCommand exposes name as invocable at p (relative to
	// Path); handler receives the caller-supplied argument and
	// returns a result or an error. doc is published alongside the
	// command's signature at sys.commands. Returns an error if
	// (p, name) is already registered by any instance.
	RegisterCommand func(p path.Path, name string, doc string, handler CommandHandler) error

	// UnregisterCommand withdraws a previously registered command.
	UnregisterCommand func(p path.Path, name string)
}

// CommandHandler services one invocation of a registered command.
type CommandHandler func(arg *value.Value) (*value.Value, error)

// Plugin is the contract a mounted plug-in instance implements. Init is
// called once after construction with the declaration's configuration
// mapping (the whole mapping from the raw tree, "__plugin__" key
// included); an error from Init is captured and published as this instance's
// state rather than propagated, per the engine's fault-isolation
// contract.
type Plugin interface {
	Init(config *value.Value) error
}

// ConfigUpdater is implemented by plug-ins that can accept a changed
// declaration without being torn down and recreated. UpdateConfig
// returns true if it accepted newConfig; returning false tells the
// engine to fall back to Shutdown-then-recreate.
type ConfigUpdater interface {
	UpdateConfig(newConfig *value.Value) bool
}

// Shutdowner is implemented by plug-ins that hold resources (timers,
// goroutines, file handles, subscriptions made outside Capabilities)
// needing explicit release when the instance is removed or replaced.
type Shutdowner interface {
	Shutdown()
}

// Factory constructs a fresh, uninitialized plug-in instance bound to
// caps. Init is called separately, immediately after construction.
type Factory func(caps Capabilities) Plugin

var (
	// ErrUnknownKind is returned by New when no factory is registered
	// under the requested identifier.
	ErrUnknownKind = errors.New("plugin: unknown kind")
	// ErrDuplicateKind is wrapped into the panic RegisterFactory raises
	// when the identifier is already taken.
	ErrDuplicateKind = errors.New("plugin: kind already registered")
)

var registry = map[string]Factory{}

// RegisterFactory binds kind (a "pkg.Type"-shaped identifier, matching
// the string a "__plugin__" declaration names) to factory. Intended to
// be called from an init() function in the package defining the
// plug-in, the same way xreg's RegisterGlobalXact/RegisterBucketXact
// bind a provider at package load time instead of through reflection.
// Panics on a duplicate kind: that is a wiring bug caught at process
// start, not a runtime condition.
func RegisterFactory(kind string, factory Factory) {
	if _, dup := registry[kind]; dup {
		panic(errors.Wrapf(ErrDuplicateKind, "kind %q", kind))
	}
	registry[kind] = factory
}

// New resolves kind through the registry and constructs an instance
// bound to caps. It does not call Init.
func New(kind string, caps Capabilities) (Plugin, error) {
	factory, ok := registry[kind]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownKind, "kind %q", kind)
	}
	return factory(caps), nil
}

// Registered reports whether kind has a bound factory, used by the
// engine to fail a plug-in declaration fast instead of constructing
// and then failing Init.
func Registered(kind string) bool {
	_, ok := registry[kind]
	return ok
}
