// Package loader discovers plugins on disk and turns descriptors into
// running plugin instances.
package loader

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/shutter/internal/plugin/executor"
	"github.com/jmylchreest/shutter/internal/plugin/manager"
	"github.com/jmylchreest/shutter/pkg/plugin"
)

// Factory creates a plugin instance for a descriptor.
type Factory func(d *plugin.Descriptor) (plugin.Plugin, error)

// Loader maps entry types to factories.
type Loader struct {
	logger hclog.Logger

	mu        sync.RWMutex
	factories map[plugin.EntryType]Factory
}

// New creates a loader with the go-plugin entry type registered.
func New(logger hclog.Logger) *Loader {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	l := &Loader{
		logger:    logger,
		factories: make(map[plugin.EntryType]Factory),
	}
	l.factories[plugin.EntryTypeGoPlugin] = l.goPlugin
	return l
}

// Register adds a factory for an entry type. Entry types can only be
// registered once.
func (l *Loader) Register(entryType plugin.EntryType, f Factory) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.factories[entryType]; exists {
		return fmt.Errorf("entry type already registered: %s", entryType)
	}
	l.factories[entryType] = f
	return nil
}

// Create instantiates the plugin for a descriptor.
func (l *Loader) Create(d *plugin.Descriptor) (plugin.Plugin, error) {
	l.mu.RLock()
	f, ok := l.factories[d.EntryType()]
	l.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("plugin %s has unknown entry type %q", d.Name(), d.EntryType())
	}
	return f(d)
}

// LoadDir discovers plugins in dir and adds them to m in directory order.
// It returns how many were added. Plugins that fail to load are logged and
// skipped.
func (l *Loader) LoadDir(dir string, m *manager.Manager) int {
	descriptors, errs := Discover(dir)
	for _, err := range errs {
		l.logger.Warn("skipping plugin", "error", err)
	}

	added := 0
	for _, d := range descriptors {
		p, err := l.Create(d)
		if err != nil {
			l.logger.Warn("skipping plugin", "plugin", d.Name(), "error", err)
			continue
		}
		if err := m.Add(d, p); err != nil {
			l.logger.Warn("skipping plugin", "plugin", d.Name(), "error", err)
			continue
		}
		l.logger.Debug("plugin loaded", "plugin", d.Name(), "entry_type", d.EntryType(), "binary", d.DLLFile())
		added++
	}
	return added
}

func (l *Loader) goPlugin(d *plugin.Descriptor) (plugin.Plugin, error) {
	if d.DLLFile() == "" {
		return nil, fmt.Errorf("plugin %s has no binary", d.Name())
	}
	return executor.New(d.DLLFile(), executor.WithLogger(l.logger.Named("plugin").Named(d.Name()))), nil
}
