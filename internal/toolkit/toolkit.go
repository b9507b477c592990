// Package toolkit defines the narrow interface the session core uses to
// drive a concrete GUI toolkit. The core never depends on which
// toolkit implements it; internal/toolkit/tui provides a terminal
// binding, internal/toolkit/fake provides an in-memory test double.
package toolkit

import "github.com/projection-ui/host/internal/patch"

// IntentFunc is the shape of the bridge-intent and ui-intent callbacks:
// a (name, arg) pair. An empty name is the caller's signal to drop the
// callback silently.
type IntentFunc func(name, arg string)

// NavigateFunc is the shape of the navigate callback: a route name and
// a raw JSON text blob of route parameters.
type NavigateFunc func(route, paramsJSON string)

// ScreenID is an opaque handle a binding assigns to a rendered widget
// tree; patches that don't change screens reuse it, full renders mint a
// new one.
type ScreenID any

// Binding is the set of capabilities a concrete GUI toolkit must expose
// to the session core. Implementations are responsible for their own
// window/event-loop lifecycle; the session core only calls these
// methods from the single UI event-loop task.
type Binding interface {
	// BindBridgeIntent registers the handler invoked for intents raised
	// from the host's own bridge layer (as opposed to user gestures).
	BindBridgeIntent(handler IntentFunc)
	// BindUIIntent registers the handler invoked for user-gesture
	// intents raised by the rendered screen.
	BindUIIntent(handler IntentFunc)
	// BindNavigate registers the handler invoked when the screen
	// requests a route change.
	BindNavigate(handler NavigateFunc)

	SetAppTitle(title string)
	SetActiveScreen(screenName string)
	SetNavCanBack(canBack bool)
	SetErrorTitle(title string)
	SetErrorMessage(message string)
	SetErrorScreenModule(screenModule string)

	// ApplyScreenRender performs a full re-render of the screen
	// described by vm and returns the new opaque screen id.
	ApplyScreenRender(vm patch.Value) (ScreenID, error)
	// ApplyScreenPatch applies an incremental update to the
	// currently-bound screen (identified by screenID) without
	// rebuilding the widget tree.
	ApplyScreenPatch(screenID ScreenID, ops []patch.Op, vm patch.Value) error
}

// PatchChangesScreen reports whether a patch containing ops requires a
// full re-render rather than an incremental apply: true when any op
// targets "/screen/name". The session core applies the same rule by
// calling patch.ChangesScreen directly; Binding has no method through
// which a binding could replace it.
func PatchChangesScreen(ops []patch.Op) bool {
	return patch.ChangesScreen(ops)
}
