package tree

import "github.com/pkg/errors"

// Sentinel errors raised synchronously by the engine's non-suspending
// operations. Wrap these with github.com/pkg/errors for call-site
// context; callers should compare with errors.Is against these values.
var (
	// ErrInvalidState is returned by SetRawState when the supplied
	// value does not sanitize to a JSON mapping. The raw state is not
	// modified.
	ErrInvalidState = errors.New("tree: invalid raw state (not a JSON mapping)")

	// ErrDisabledActor is returned when a disabled plug-in instance
	// attempts to subscribe or register a command.
	ErrDisabledActor = errors.New("tree: disabled plugin instance")

	// ErrDuplicateCommand is returned by RegisterCommand when
	// (path, name) is already registered.
	ErrDuplicateCommand = errors.New("tree: command already registered")

	// ErrUnknownCommand is returned by Command when no function is
	// registered at (path, name).
	ErrUnknownCommand = errors.New("tree: unknown command")
)
