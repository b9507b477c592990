// Package fake provides an in-memory toolkit.Binding double used by
// session tests to observe applied state without a real terminal.
package fake

import (
	"sync"

	"github.com/projection-ui/host/internal/patch"
	"github.com/projection-ui/host/internal/toolkit"
)

// Binding is a toolkit.Binding that records every call instead of
// driving a real UI, so tests can assert on what the session core
// pushed to it.
type Binding struct {
	mu sync.Mutex

	bridgeHandler   toolkit.IntentFunc
	uiIntentHandler toolkit.IntentFunc
	navigateHandler toolkit.NavigateFunc

	AppTitle         string
	ActiveScreen     string
	NavCanBack       bool
	ErrorTitle       string
	ErrorMessage     string
	ErrorScreenMod   string

	RenderCount int
	PatchCount  int
	nextScreen  int

	// FailRender/FailPatch, when non-nil, make the next corresponding
	// Apply call return this error instead of succeeding.
	FailRender error
	FailPatch  error
}

func New() *Binding {
	return &Binding{}
}

func (b *Binding) BindBridgeIntent(h toolkit.IntentFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bridgeHandler = h
}

func (b *Binding) BindUIIntent(h toolkit.IntentFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uiIntentHandler = h
}

func (b *Binding) BindNavigate(h toolkit.NavigateFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.navigateHandler = h
}

// FireBridgeIntent invokes the registered bridge-intent handler, for
// tests that simulate a toolkit-originated callback.
func (b *Binding) FireBridgeIntent(name, arg string) {
	b.mu.Lock()
	h := b.bridgeHandler
	b.mu.Unlock()
	if h != nil {
		h(name, arg)
	}
}

// FireUIIntent invokes the registered ui-intent handler.
func (b *Binding) FireUIIntent(name, arg string) {
	b.mu.Lock()
	h := b.uiIntentHandler
	b.mu.Unlock()
	if h != nil {
		h(name, arg)
	}
}

// FireNavigate invokes the registered navigate handler.
func (b *Binding) FireNavigate(route, paramsJSON string) {
	b.mu.Lock()
	h := b.navigateHandler
	b.mu.Unlock()
	if h != nil {
		h(route, paramsJSON)
	}
}

func (b *Binding) SetAppTitle(title string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.AppTitle = title
}

func (b *Binding) SetActiveScreen(screenName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ActiveScreen = screenName
}

func (b *Binding) SetNavCanBack(canBack bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.NavCanBack = canBack
}

func (b *Binding) SetErrorTitle(title string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ErrorTitle = title
}

func (b *Binding) SetErrorMessage(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ErrorMessage = message
}

func (b *Binding) SetErrorScreenModule(screenModule string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ErrorScreenMod = screenModule
}

func (b *Binding) ApplyScreenRender(vm patch.Value) (toolkit.ScreenID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailRender != nil {
		err := b.FailRender
		b.FailRender = nil
		return nil, err
	}
	b.nextScreen++
	b.RenderCount++
	return b.nextScreen, nil
}

func (b *Binding) ApplyScreenPatch(screenID toolkit.ScreenID, ops []patch.Op, vm patch.Value) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailPatch != nil {
		err := b.FailPatch
		b.FailPatch = nil
		return err
	}
	b.PatchCount++
	return nil
}
