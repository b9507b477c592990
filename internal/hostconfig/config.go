// Package hostconfig loads the optional, protocol-independent
// presentation config: theme selection and any per-theme overrides.
// Nothing here affects the wire protocol or the revision state
// machine; a config load failure or absence never blocks the session.
package hostconfig

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/fsnotify/fsnotify"

	"github.com/projection-ui/host/internal/logger"
)

// ThemeField handles YAML unmarshaling of theme: string | {name, overrides}.
// A bare scalar names the theme with no overrides; a map form names the
// theme plus a table of style-token overrides.
type ThemeField struct {
	Name      string            `yaml:"name,omitempty"`
	Overrides map[string]string `yaml:"overrides,omitempty"`
}

func (t *ThemeField) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		t.Name = value.Value
		return nil
	}
	type plain ThemeField
	return value.Decode((*plain)(t))
}

// Config is the full set of presentation options a --config file may set.
type Config struct {
	Theme ThemeField `yaml:"theme"`
}

// DefaultConfig is the base that Load parses a file over, and what
// WatchFile delivers when the initial load of the file fails.
func DefaultConfig() Config {
	return Config{Theme: ThemeField{Name: "default"}}
}

// Load reads and parses a presentation config file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("hostconfig: read %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("hostconfig: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Watcher live-reloads a presentation config file and calls onChange
// with each successfully re-parsed Config. Parse failures are logged
// and otherwise ignored: a typo in the config file must never crash the
// session or interrupt the protocol.
type Watcher struct {
	path     string
	onChange func(Config)

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	stopOnce sync.Once
	done     chan struct{}
}

// WatchFile starts watching path for changes, invoking onChange on every
// write that parses successfully. The initial load (or DefaultConfig on
// failure) is delivered synchronously before WatchFile returns.
func WatchFile(path string, onChange func(Config)) (*Watcher, error) {
	if cfg, err := Load(path); err == nil {
		onChange(cfg)
	} else {
		logger.Warn("presentation config failed to load, using defaults", "path", path, "err", err)
		onChange(DefaultConfig())
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("hostconfig: create watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("hostconfig: watch %s: %w", path, err)
	}

	w := &Watcher{
		path:     path,
		onChange: onChange,
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				logger.Warn("presentation config reload failed, keeping prior config", "path", w.path, "err", err)
				continue
			}
			w.onChange(cfg)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("presentation config watcher error", "err", err)
		}
	}
}

// Close stops the watcher goroutine and releases the underlying
// fsnotify handle.
func (w *Watcher) Close() {
	w.stopOnce.Do(func() {
		w.fsw.Close()
		<-w.done
	})
}
