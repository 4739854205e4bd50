// Package host implements the application side of the plugin contract.
package host

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/shutter/internal/capture"
	"github.com/jmylchreest/shutter/internal/config"
	"github.com/jmylchreest/shutter/internal/filename"
	"github.com/jmylchreest/shutter/internal/imaging"
	"github.com/jmylchreest/shutter/internal/plugin/manager"
	"github.com/jmylchreest/shutter/internal/plugin/registry"
	"github.com/jmylchreest/shutter/pkg/plugin"
)

var (
	// ErrUnknownDestination is reported for designations nothing is registered under.
	ErrUnknownDestination = errors.New("unknown destination")

	// ErrDestinationInactive is reported when exporting to a destination that is not active.
	ErrDestinationInactive = errors.New("destination is not active")

	// ErrNoDestinations is returned when the pipeline has nowhere to send a capture.
	ErrNoDestinations = errors.New("no destinations configured")

	// ErrExportFailed is returned by CaptureRegion when the destination reports a failure.
	ErrExportFailed = errors.New("export failed")
)

// ExportListener is told about every export the host performs.
type ExportListener func(info plugin.ExportInformation)

// Option configures a Host.
type Option func(*Host)

// WithManager sets the plugin manager. Without one the host has no plugins.
func WithManager(m *manager.Manager) Option {
	return func(h *Host) {
		h.plugins = m
	}
}

// WithSource sets the screen-capture mechanism used by CaptureRegion.
func WithSource(s capture.Source) Option {
	return func(h *Host) {
		h.source = s
	}
}

// WithLogger sets the root logger. Plugins get named children of it.
func WithLogger(logger hclog.Logger) Option {
	return func(h *Host) {
		h.logger = logger
	}
}

// WithEnv replaces the user and machine values used in filename patterns.
func WithEnv(env filename.Env) Option {
	return func(h *Host) {
		h.env = env
	}
}

// WithClock replaces the time source for new captures.
func WithClock(now func() time.Time) Option {
	return func(h *Host) {
		h.now = now
	}
}

// WithExportListener registers a listener for export results.
func WithExportListener(l ExportListener) Option {
	return func(h *Host) {
		h.listeners = append(h.listeners, l)
	}
}

// Host implements plugin.Host.
type Host struct {
	cfg       config.Config
	plugins   *manager.Manager
	builtins  *registry.Registry[plugin.Destination]
	source    capture.Source
	logger    hclog.Logger
	env       filename.Env
	now       func() time.Time
	listeners []ExportListener

	// pipeline serialises post-capture processing. Processors and
	// destinations must not re-enter it.
	pipeline sync.Mutex
}

var _ plugin.Host = (*Host)(nil)

// New creates a host for the given configuration.
func New(cfg config.Config, opts ...Option) *Host {
	h := &Host{
		cfg:      cfg,
		builtins: registry.New[plugin.Destination](),
		logger:   hclog.NewNullLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.plugins == nil {
		h.plugins = manager.NewBuilder().WithLogger(h.logger.Named("manager")).Build()
	}
	if h.env == (filename.Env{}) {
		h.env = SystemEnv()
	}
	return h
}

// Config returns the configuration the host was built with.
func (h *Host) Config() config.Config {
	return h.cfg
}

// Manager returns the plugin manager.
func (h *Host) Manager() *manager.Manager {
	return h.plugins
}

// RegisterDestination adds a built-in destination. Built-ins come before
// plugin destinations and win designation clashes.
func (h *Host) RegisterDestination(d plugin.Destination) error {
	return h.builtins.Register(d)
}

// Start initializes every loaded plugin.
func (h *Host) Start() int {
	return h.plugins.InitializeAll(h)
}

// Close shuts down every active plugin in reverse load order.
func (h *Host) Close() {
	h.plugins.ShutdownAll()
}

// SaveToStream implements plugin.Host.
func (h *Host) SaveToStream(img image.Image, w io.Writer, settings plugin.OutputSettings) error {
	return imaging.Encode(w, img, settings)
}

// SaveToTmpFile implements plugin.Host.
func (h *Host) SaveToTmpFile(img image.Image, settings plugin.OutputSettings) (string, error) {
	dir, err := h.tempDir()
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, "shutter-"+uuid.NewString()+settings.Format().Extension())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) // #nosec G304 - generated name
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	return h.finish(f, path, img, settings)
}

// SaveNamedTmpFile implements plugin.Host.
func (h *Host) SaveNamedTmpFile(img image.Image, details *plugin.CaptureDetails, settings plugin.OutputSettings) (string, error) {
	dir, err := h.tempDir()
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, h.Filename(settings.Format(), details))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) // #nosec G304 - name is sanitised
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	return h.finish(f, path, img, settings)
}

func (h *Host) tempDir() (string, error) {
	dir := h.cfg.TempDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create temporary directory: %w", err)
	}
	return dir, nil
}

// finish encodes into f and closes it. The file is removed on failure.
func (h *Host) finish(f *os.File, path string, img image.Image, settings plugin.OutputSettings) (string, error) {
	encodeErr := imaging.Encode(f, img, settings)
	closeErr := f.Close()
	if encodeErr != nil || closeErr != nil {
		os.Remove(path)
		if encodeErr != nil {
			return "", encodeErr
		}
		return "", fmt.Errorf("failed to close %s: %w", path, closeErr)
	}
	return path, nil
}

// Filename implements plugin.Host. It does no I/O.
func (h *Host) Filename(format plugin.OutputFormat, details *plugin.CaptureDetails) string {
	return filename.Filename(h.cfg.Output.FilenamePattern, format, details, h.env)
}

// Thumbnail implements plugin.Host.
func (h *Host) Thumbnail(img image.Image, width, height int) (image.Image, error) {
	return imaging.Thumbnail(img, width, height)
}

// Plugins implements plugin.Host.
func (h *Host) Plugins() map[*plugin.Descriptor]plugin.Plugin {
	return h.plugins.Active()
}

// Descriptors returns the active plugin descriptors sorted by name.
func (h *Host) Descriptors() []*plugin.Descriptor {
	return h.plugins.Descriptors()
}

// Destination implements plugin.Host.
func (h *Host) Destination(designation string) (plugin.Destination, bool) {
	if d, ok := h.builtins.Get(designation); ok {
		return d, true
	}
	for _, d := range h.plugins.Destinations() {
		if d.Designation() == designation {
			return d, true
		}
	}
	return nil, false
}

// Destinations implements plugin.Host. Built-ins come first in registration
// order, then plugin destinations in plugin load order. When designations
// clash the first one wins.
func (h *Host) Destinations() []plugin.Destination {
	destinations := h.builtins.All()
	seen := make(map[string]bool, len(destinations))
	for _, d := range destinations {
		seen[d.Designation()] = true
	}

	for _, d := range h.plugins.Destinations() {
		if seen[d.Designation()] {
			h.logger.Debug("destination shadowed", "designation", d.Designation())
			continue
		}
		seen[d.Designation()] = true
		destinations = append(destinations, d)
	}
	return destinations
}

// ExportCapture implements plugin.Host.
func (h *Host) ExportCapture(ctx context.Context, manual bool, designation string, surface plugin.Surface, details *plugin.CaptureDetails) plugin.ExportInformation {
	d, ok := h.Destination(designation)
	if !ok {
		return h.report(plugin.ExportFailed(designation, fmt.Errorf("%w: %s", ErrUnknownDestination, designation)), manual)
	}
	return h.export(ctx, manual, d, surface, details)
}

func (h *Host) export(ctx context.Context, manual bool, d plugin.Destination, surface plugin.Surface, details *plugin.CaptureDetails) (info plugin.ExportInformation) {
	designation := d.Designation()
	if !d.IsActive() {
		return h.report(plugin.ExportFailed(designation, fmt.Errorf("%w: %s", ErrDestinationInactive, designation)), manual)
	}

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("destination panicked", "designation", designation, "panic", fmt.Sprint(r))
			info = h.report(plugin.ExportFailed(designation, fmt.Errorf("destination %s panicked", designation)), manual)
		}
	}()

	info = d.ExportCapture(ctx, manual, surface, details)
	if info.DestinationDesignation == "" {
		info.DestinationDesignation = designation
	}
	return h.report(info, manual)
}

func (h *Host) report(info plugin.ExportInformation, manual bool) plugin.ExportInformation {
	if info.Success {
		h.logger.Info("capture exported", "destination", info.DestinationDesignation, "target", info.Target(), "manual", manual)
	} else {
		h.logger.Warn("capture export failed", "destination", info.DestinationDesignation, "error", info.ErrorDetail, "manual", manual)
	}
	for _, l := range h.listeners {
		l(info)
	}
	return info
}

// CaptureRegion implements plugin.Host. The cursor is only captured when
// both the caller and the configuration ask for it. With a nil destination
// the capture goes through the configured default destinations.
func (h *Host) CaptureRegion(ctx context.Context, captureMouseCursor bool, destination plugin.Destination) error {
	if h.source == nil {
		return capture.ErrNoSource
	}

	grab, err := h.source.Grab(ctx)
	if err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}

	withCursor := captureMouseCursor && h.cfg.Capture.MousePointer
	details := capture.NewDetails(grab.Title, h.now())
	details.Region = grab.Region
	details.CursorCaptured = withCursor && grab.Cursor != nil
	c := capture.New(grab.Flatten(withCursor), details)

	if destination == nil {
		infos, err := h.ImportCapture(ctx, c)
		if err != nil {
			return err
		}
		for _, info := range infos {
			if !info.Success {
				return fmt.Errorf("%w: %s: %s", ErrExportFailed, info.DestinationDesignation, info.ErrorDetail)
			}
		}
		return nil
	}

	h.pipeline.Lock()
	defer h.pipeline.Unlock()

	surface := capture.NewSurface(c)
	h.process(ctx, surface, details)

	info := h.export(ctx, true, destination, surface, details)
	if !info.Success {
		return fmt.Errorf("%w: %s: %s", ErrExportFailed, info.DestinationDesignation, info.ErrorDetail)
	}
	return nil
}

// ImportCapture implements plugin.Host. The capture is wrapped in a surface,
// run through every active processor and exported to each configured
// default destination.
func (h *Host) ImportCapture(ctx context.Context, c plugin.Capture) ([]plugin.ExportInformation, error) {
	if c == nil || c.Image() == nil {
		return nil, imaging.ErrNilImage
	}
	if len(h.cfg.Capture.Destinations) == 0 {
		return nil, ErrNoDestinations
	}

	h.pipeline.Lock()
	defer h.pipeline.Unlock()

	details := c.Details()
	if details == nil {
		details = capture.NewDetails("", h.now())
	}

	surface := capture.NewSurface(c)
	h.process(ctx, surface, details)

	infos := make([]plugin.ExportInformation, 0, len(h.cfg.Capture.Destinations))
	for _, designation := range h.cfg.Capture.Destinations {
		if err := ctx.Err(); err != nil {
			return infos, err
		}
		infos = append(infos, h.ExportCapture(ctx, false, designation, surface, details))
	}
	return infos, nil
}

// Processors returns the active processors in the order they run: by
// priority, then plugin load order.
func (h *Host) Processors() []plugin.Processor {
	var active []plugin.Processor
	for _, p := range h.plugins.Processors() {
		if p.IsActive() {
			active = append(active, p)
		}
	}
	slices.SortStableFunc(active, func(a, b plugin.Processor) int {
		return cmp.Compare(a.Priority(), b.Priority())
	})
	return active
}

func (h *Host) process(ctx context.Context, surface plugin.Surface, details *plugin.CaptureDetails) {
	for _, p := range h.Processors() {
		if ctx.Err() != nil {
			return
		}
		if h.runProcessor(ctx, p, surface, details) {
			h.logger.Debug("capture processed", "processor", p.Designation())
		}
	}
}

func (h *Host) runProcessor(ctx context.Context, p plugin.Processor, surface plugin.Surface, details *plugin.CaptureDetails) (changed bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("processor panicked", "processor", p.Designation(), "panic", fmt.Sprint(r))
			changed = false
		}
	}()
	return p.ProcessCapture(ctx, surface, details)
}

// NewCapture implements plugin.Host.
func (h *Host) NewCapture(img image.Image) plugin.Capture {
	return capture.New(img, capture.NewDetails("", h.now()))
}

// OutputDefaults implements plugin.Host.
func (h *Host) OutputDefaults() plugin.OutputDefaults {
	return h.cfg.OutputDefaults()
}

// Logger implements plugin.Host.
func (h *Host) Logger(name string) hclog.Logger {
	return h.logger.Named(name)
}
