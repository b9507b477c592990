// Package tui implements toolkit.Binding as a real terminal UI using
// bubbletea/lipgloss. It renders the /screen subtree of the
// view-model to the alternate screen buffer on stderr; it never reads
// keyboard input itself (UI intents are driven by the server-owned
// view-model, not local key bindings), so intents only
// ever flow out through whatever the embedding caller wires into
// BindUIIntent/BindNavigate/BindBridgeIntent — this binding exists to
// give the session core somewhere to render, not to collect gestures.
package tui

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/projection-ui/host/internal/patch"
	"github.com/projection-ui/host/internal/toolkit"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).Padding(0, 1)
	navStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	bodyStyle  = lipgloss.NewStyle().Padding(1, 2)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true)
)

// screenSnapshot is what the session core pushes into the running
// program on every render or patch; it is immutable once sent, so the
// bubbletea model can hold it without its own locking.
type screenSnapshot struct {
	id           int
	appTitle     string
	activeScreen string
	navCanBack   bool
	errorTitle   string
	errorMessage string
	errorModule  string
	vm           patch.Value
}

type snapshotMsg screenSnapshot

type model struct {
	width, height int
	current       screenSnapshot
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case snapshotMsg:
		m.current = screenSnapshot(msg)
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.current.appTitle))
	b.WriteString("\n")

	nav := m.current.activeScreen
	if m.current.navCanBack {
		nav = "< " + nav
	}
	b.WriteString(navStyle.Render(nav))
	b.WriteString("\n\n")

	if m.current.errorTitle != "" || m.current.errorMessage != "" {
		b.WriteString(errorStyle.Render(m.current.errorTitle))
		b.WriteString("\n")
		b.WriteString(m.current.errorMessage)
		if m.current.errorModule != "" {
			b.WriteString("\n")
			b.WriteString(navStyle.Render("module: " + m.current.errorModule))
		}
		b.WriteString("\n\n")
	}

	b.WriteString(renderScreenVM(m.current.vm))
	return bodyStyle.Render(b.String())
}

// renderScreenVM gives an unstructured but deterministic textual
// rendering of the screen's own vm subtree. A concrete deployment would
// swap this for widget-specific layouts keyed on /screen/module; this
// generic fallback keeps every screen renderable without one.
func renderScreenVM(vm patch.Value) string {
	obj, ok := vm.Object()
	if !ok {
		return ""
	}
	screen, ok := obj.Get("screen")
	if !ok {
		return ""
	}
	screenObj, ok := screen.Object()
	if !ok {
		return ""
	}
	inner, ok := screenObj.Get("vm")
	if !ok {
		return ""
	}
	return renderValue(inner, 0)
}

func renderValue(v patch.Value, depth int) string {
	indent := strings.Repeat("  ", depth)
	switch v.Kind() {
	case patch.KindObject:
		obj, _ := v.Object()
		var b strings.Builder
		for _, k := range obj.Keys() {
			val, _ := obj.Get(k)
			b.WriteString(indent)
			b.WriteString(k)
			b.WriteString(": ")
			if val.Kind() == patch.KindObject || val.Kind() == patch.KindArray {
				b.WriteString("\n")
				b.WriteString(renderValue(val, depth+1))
			} else {
				b.WriteString(renderScalar(val))
				b.WriteString("\n")
			}
		}
		return b.String()
	case patch.KindArray:
		arr, _ := v.Array()
		var b strings.Builder
		for i, e := range arr {
			b.WriteString(indent)
			b.WriteString("- ")
			if e.Kind() == patch.KindObject || e.Kind() == patch.KindArray {
				b.WriteString("\n")
				b.WriteString(renderValue(e, depth+1))
			} else {
				b.WriteString(renderScalar(e))
				b.WriteString("\n")
			}
			_ = i
		}
		return b.String()
	default:
		return indent + renderScalar(v) + "\n"
	}
}

func renderScalar(v patch.Value) string {
	switch v.Kind() {
	case patch.KindNull:
		return "null"
	case patch.KindBool:
		b, _ := v.Bool()
		return strconv.FormatBool(b)
	case patch.KindNumber:
		n, _ := v.Number_()
		return n.String()
	case patch.KindString:
		s, _ := v.String_()
		return s
	default:
		return ""
	}
}

// Binding drives a bubbletea Program as a toolkit.Binding. It never
// reads stdin itself: the session core's protocol stream and the
// terminal's render-only output are independent concerns, so the
// program is started with input disabled, draws to stderr (stdout
// carries the frames), and is driven exclusively via Program.Send from
// ApplyScreenRender/ApplyScreenPatch; the global-property setters only
// stage values that the next apply sends.
type Binding struct {
	mu sync.Mutex

	program *tea.Program
	nextID  int

	bridgeHandler   toolkit.IntentFunc
	uiIntentHandler toolkit.IntentFunc
	navigateHandler toolkit.NavigateFunc

	pending screenSnapshot
}

// New constructs a Binding and starts its bubbletea program rendering
// to the alternate screen buffer on stderr. Callers must call Close when the
// session ends.
func New() *Binding {
	b := &Binding{}
	b.program = tea.NewProgram(model{}, tea.WithAltScreen(), tea.WithInput(nil), tea.WithOutput(os.Stderr))
	go func() {
		_, _ = b.program.Run()
	}()
	// Give the program a moment to start its render loop before the
	// first Send; a missed first frame is harmless (the next apply
	// repaints the whole screen) but this keeps startup tidy.
	time.Sleep(10 * time.Millisecond)
	return b
}

// Close stops the running program.
func (b *Binding) Close() {
	b.program.Quit()
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

func (b *Binding) SetAppTitle(title string) {
	b.mu.Lock()
	b.pending.appTitle = title
	b.mu.Unlock()
}

func (b *Binding) SetActiveScreen(screenName string) {
	b.mu.Lock()
	b.pending.activeScreen = screenName
	b.mu.Unlock()
}

func (b *Binding) SetNavCanBack(canBack bool) {
	b.mu.Lock()
	b.pending.navCanBack = canBack
	b.mu.Unlock()
}

func (b *Binding) SetErrorTitle(title string) {
	b.mu.Lock()
	b.pending.errorTitle = title
	b.mu.Unlock()
}

func (b *Binding) SetErrorMessage(message string) {
	b.mu.Lock()
	b.pending.errorMessage = message
	b.mu.Unlock()
}

func (b *Binding) SetErrorScreenModule(screenModule string) {
	b.mu.Lock()
	b.pending.errorModule = screenModule
	b.mu.Unlock()
}

func (b *Binding) ApplyScreenRender(vm patch.Value) (toolkit.ScreenID, error) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.pending.id = id
	b.pending.vm = vm
	snap := b.pending
	b.mu.Unlock()

	b.program.Send(snapshotMsg(snap))
	return id, nil
}

func (b *Binding) ApplyScreenPatch(screenID toolkit.ScreenID, ops []patch.Op, vm patch.Value) error {
	id, ok := screenID.(int)
	if !ok {
		return fmt.Errorf("tui: patch targets unknown screen id %v", screenID)
	}

	b.mu.Lock()
	if b.pending.id != id {
		b.mu.Unlock()
		return fmt.Errorf("tui: patch targets stale screen id %d, current is %d", id, b.pending.id)
	}
	b.pending.vm = vm
	snap := b.pending
	b.mu.Unlock()

	b.program.Send(snapshotMsg(snap))
	return nil
}
