// Package manager drives plugin lifecycles and aggregates their extensions.
package manager

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/shutter/pkg/plugin"
)

var (
	// ErrLifecycle is returned when an operation is not valid in the plugin's current state.
	ErrLifecycle = errors.New("plugin lifecycle violation")

	// ErrNotConfigurable is returned when configuring a plugin whose descriptor says it cannot be.
	ErrNotConfigurable = errors.New("plugin is not configurable")

	// ErrUnknownPlugin is returned for names that were never added.
	ErrUnknownPlugin = errors.New("unknown plugin")
)

// Config holds plugin configuration.
type Config struct {
	// DisabledPlugins is a list of plugin names to disable. "all" disables every plugin.
	DisabledPlugins []string

	// EnabledPlugins is a list of plugin names to explicitly enable.
	// If set, only these plugins are enabled (whitelist mode).
	EnabledPlugins []string
}

// Builder provides a fluent interface for constructing a Manager with configuration.
type Builder struct {
	config Config
	logger hclog.Logger
}

// NewBuilder creates a new Manager builder with default settings.
func NewBuilder() *Builder {
	return &Builder{
		logger: hclog.NewNullLogger(),
	}
}

// WithConfig sets the configuration for the manager.
func (b *Builder) WithConfig(config Config) *Builder {
	b.config = config
	return b
}

// WithLogger sets the logger. Plugin panics and declines are reported here.
func (b *Builder) WithLogger(logger hclog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build constructs the Manager with the configured settings.
func (b *Builder) Build() *Manager {
	return &Manager{
		config: b.config,
		logger: b.logger,
		byName: make(map[string]*entry),
	}
}

type entry struct {
	descriptor *plugin.Descriptor
	plugin     plugin.Plugin
	state      State
}

// Manager owns loaded plugins and their lifecycle state. Plugins are kept
// in the order they were added.
type Manager struct {
	config Config
	logger hclog.Logger

	// lifecycle serialises Initialize, Configure and ShutdownAll.
	lifecycle sync.Mutex

	// mu guards entries and state. It is never held while calling a plugin.
	mu      sync.Mutex
	entries []*entry
	byName  map[string]*entry
}

// Add registers a plugin under its descriptor. Names must be unique.
func (m *Manager) Add(descriptor *plugin.Descriptor, p plugin.Plugin) error {
	if descriptor == nil || p == nil {
		return fmt.Errorf("cannot add a plugin without a descriptor and an implementation")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[descriptor.Name()]; exists {
		return fmt.Errorf("plugin already loaded: %s", descriptor.Name())
	}

	e := &entry{descriptor: descriptor, plugin: p}
	m.entries = append(m.entries, e)
	m.byName[descriptor.Name()] = e
	return nil
}

// InitializeAll initializes every unloaded plugin in load order. Disabled
// plugins are skipped. It returns the number of plugins that became active.
func (m *Manager) InitializeAll(host plugin.Host) int {
	active := 0
	for _, e := range m.snapshot() {
		if m.stateOf(e) != StateUnloaded {
			continue
		}
		if err := m.Initialize(host, e.descriptor.Name()); err == nil && m.stateOf(e) == StateInitialized {
			active++
		}
	}
	return active
}

// Initialize calls the plugin's Initialize. It can only be called once per
// plugin. A plugin that is disabled, declines or panics is never called
// again. None of these is reported as an error.
func (m *Manager) Initialize(host plugin.Host, name string) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	e, err := m.lookup(name)
	if err != nil {
		return err
	}
	if state := m.stateOf(e); state != StateUnloaded {
		return fmt.Errorf("%w: cannot initialize %s in state %s", ErrLifecycle, name, state)
	}
	if !m.IsEnabled(name) {
		m.setState(e, StateDisabled)
		m.logger.Debug("plugin disabled", "plugin", name)
		return nil
	}

	var accepted bool
	if !m.guard(e, "initialize", func() { accepted = e.plugin.Initialize(host, e.descriptor) }) {
		m.setState(e, StateFailed)
		return nil
	}

	if !accepted {
		m.setState(e, StateDeclined)
		m.logger.Debug("plugin declined activation", "plugin", name)
		return nil
	}

	m.setState(e, StateInitialized)
	m.logger.Debug("plugin initialized", "plugin", name, "version", e.descriptor.Version())
	return nil
}

// Configure opens the plugin's configuration. The plugin must be active
// and its descriptor must be configurable.
func (m *Manager) Configure(name string) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	e, err := m.lookup(name)
	if err != nil {
		return err
	}
	if state := m.stateOf(e); !state.Active() {
		return fmt.Errorf("%w: cannot configure %s in state %s", ErrLifecycle, name, state)
	}
	if !e.descriptor.Configurable() {
		return fmt.Errorf("%w: %s", ErrNotConfigurable, name)
	}

	if !m.guard(e, "configure", e.plugin.Configure) {
		return fmt.Errorf("plugin %s failed to configure", name)
	}
	return nil
}

// ShutdownAll shuts down every active plugin in reverse load order.
func (m *Manager) ShutdownAll() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	entries := m.snapshot()
	for _, e := range slices.Backward(entries) {
		if m.stateOf(e).Active() {
			m.shutdown(e)
		}
	}
}

func (m *Manager) shutdown(e *entry) {
	// The state changes even if the plugin panics so it is never called twice.
	m.setState(e, StateShutdown)
	m.guard(e, "shutdown", e.plugin.Shutdown)
	m.logger.Debug("plugin shut down", "plugin", e.descriptor.Name())
}

// State returns the lifecycle state of a plugin.
func (m *Manager) State(name string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.byName[name]
	if !ok {
		return StateUnloaded, false
	}
	return e.state, true
}

// Descriptor returns the descriptor a plugin was added with.
func (m *Manager) Descriptor(name string) (*plugin.Descriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return e.descriptor, true
}

// Status is a plugin's descriptor with its lifecycle state.
type Status struct {
	Descriptor *plugin.Descriptor
	State      State
}

// Statuses returns every added plugin in load order.
func (m *Manager) Statuses() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make([]Status, 0, len(m.entries))
	for _, e := range m.entries {
		statuses = append(statuses, Status{Descriptor: e.descriptor, State: e.state})
	}
	return statuses
}

// Active returns a snapshot of active plugins keyed by descriptor.
func (m *Manager) Active() map[*plugin.Descriptor]plugin.Plugin {
	active := make(map[*plugin.Descriptor]plugin.Plugin)
	for _, e := range m.activeEntries() {
		active[e.descriptor] = e.plugin
	}
	return active
}

// Descriptors returns the descriptors of active plugins sorted by name.
func (m *Manager) Descriptors() []*plugin.Descriptor {
	entries := m.activeEntries()
	descriptors := make([]*plugin.Descriptor, 0, len(entries))
	for _, e := range entries {
		descriptors = append(descriptors, e.descriptor)
	}
	slices.SortFunc(descriptors, plugin.Compare)
	return descriptors
}

// Destinations collects destinations from active plugins in load order.
// A plugin that panics is skipped for this call.
//
// Destinations and Processors do not take the lifecycle lock, so plugins
// may call back into the host from Initialize or Configure. Embedders that
// query from other goroutines must not overlap those queries with
// Configure or ShutdownAll.
func (m *Manager) Destinations() []plugin.Destination {
	var destinations []plugin.Destination
	for _, e := range m.activeEntries() {
		var got []plugin.Destination
		if !m.guard(e, "destinations", func() { got = e.plugin.Destinations() }) {
			continue
		}
		for _, d := range got {
			if d != nil {
				destinations = append(destinations, d)
			}
		}
	}
	return destinations
}

// Processors collects processors from active plugins in load order.
// A plugin that panics is skipped for this call.
func (m *Manager) Processors() []plugin.Processor {
	var processors []plugin.Processor
	for _, e := range m.activeEntries() {
		var got []plugin.Processor
		if !m.guard(e, "processors", func() { got = e.plugin.Processors() }) {
			continue
		}
		for _, p := range got {
			if p != nil {
				processors = append(processors, p)
			}
		}
	}
	return processors
}

// IsEnabled determines if a plugin is enabled based on configuration.
// With no lists configured every plugin is enabled.
func (m *Manager) IsEnabled(name string) bool {
	// "all" disabled takes precedence over everything.
	if slices.Contains(m.config.DisabledPlugins, "all") {
		return false
	}
	if slices.Contains(m.config.DisabledPlugins, name) {
		return false
	}

	if len(m.config.EnabledPlugins) > 0 {
		return slices.Contains(m.config.EnabledPlugins, "all") ||
			slices.Contains(m.config.EnabledPlugins, name)
	}
	return true
}

// guard runs fn, recovering a panic from the plugin. It reports whether fn
// completed.
func (m *Manager) guard(e *entry, operation string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("plugin panicked",
				"plugin", e.descriptor.Name(),
				"operation", operation,
				"panic", fmt.Sprint(r))
			ok = false
		}
	}()
	fn()
	return true
}

func (m *Manager) lookup(name string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
	}
	return e, nil
}

func (m *Manager) snapshot() []*entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}

func (m *Manager) activeEntries() []*entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var active []*entry
	for _, e := range m.entries {
		if e.state.Active() {
			active = append(active, e)
		}
	}
	return active
}

func (m *Manager) stateOf(e *entry) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return e.state
}

func (m *Manager) setState(e *entry, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.state = s
}
