// Package executor runs out-of-process plugins and adapts them to the
// in-process plugin contract.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/shutter/internal/imaging"
	"github.com/jmylchreest/shutter/internal/plugin/protocol"
	"github.com/jmylchreest/shutter/pkg/plugin"
)

// DefaultCallTimeout bounds every call into a remote plugin.
const DefaultCallTimeout = 30 * time.Second

// Option configures an Executor.
type Option func(*Executor)

// WithConnector replaces the go-plugin connector.
func WithConnector(c Connector) Option {
	return func(e *Executor) {
		e.connector = c
	}
}

// WithLogger sets the logger handed to go-plugin and used for call failures.
func WithLogger(logger hclog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithCallTimeout sets the per-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

// Executor implements plugin.Plugin for a plugin binary. The process is
// started by Initialize and stopped by Shutdown.
type Executor struct {
	binary    string
	connector Connector
	logger    hclog.Logger
	timeout   time.Duration

	// mu serialises calls into the remote plugin.
	mu         sync.Mutex
	remote     Remote
	stop       func()
	host       plugin.Host
	descriptor *plugin.Descriptor
	info       plugin.PluginInfo
}

var _ plugin.Plugin = (*Executor)(nil)

// New creates an executor for the plugin binary at path.
func New(binary string, opts ...Option) *Executor {
	e := &Executor{
		binary:    binary,
		connector: GoPluginConnector{},
		logger:    hclog.NewNullLogger(),
		timeout:   DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Binary returns the path of the plugin binary.
func (e *Executor) Binary() string {
	return e.binary
}

// Info returns what the plugin reported about itself during Initialize.
func (e *Executor) Info() plugin.PluginInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.info
}

// Initialize starts the plugin process, checks its protocol version and
// forwards the activation request.
func (e *Executor) Initialize(host plugin.Host, descriptor *plugin.Descriptor) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	logger := e.logger.With("binary", e.binary)

	remote, stop, err := e.connector.Connect(e.binary, e.logger)
	if err != nil {
		logger.Error("failed to start plugin", "error", err)
		return false
	}

	info, err := remote.GetMetadata()
	if err != nil {
		logger.Error("failed to read plugin metadata", "error", err)
		stop()
		return false
	}
	if err := protocol.CheckCompatible(info.ProtocolVersion); err != nil {
		logger.Error("plugin protocol rejected", "error", err)
		stop()
		return false
	}

	ctx, cancel := e.callContext()
	defer cancel()

	ok, err := remote.Initialize(ctx, plugin.InitializeRequest{
		Descriptor: descriptor.Manifest(),
		Defaults:   host.OutputDefaults(),
	})
	if err != nil || !ok {
		if err != nil {
			logger.Error("plugin initialize failed", "error", err)
		}
		stop()
		return false
	}

	e.remote = remote
	e.stop = stop
	e.host = host
	e.descriptor = descriptor
	e.info = info
	return true
}

// Shutdown asks the plugin to release its resources and stops the process.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.remote == nil {
		return
	}

	ctx, cancel := e.callContext()
	defer cancel()

	if err := e.remote.Shutdown(ctx); err != nil {
		e.logger.Warn("plugin shutdown failed", "binary", e.binary, "error", err)
	}
	e.stop()
	e.remote = nil
	e.stop = nil
}

// Configure forwards the configure request.
func (e *Executor) Configure() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.remote == nil {
		return
	}

	ctx, cancel := e.callContext()
	defer cancel()

	if err := e.remote.Configure(ctx); err != nil {
		e.logger.Warn("plugin configure failed", "binary", e.binary, "error", err)
		e.killIfHung(err)
	}
}

// Destinations returns the destinations the plugin currently reports.
func (e *Executor) Destinations() []plugin.Destination {
	infos := e.extensions(Remote.Destinations, "destinations")

	destinations := make([]plugin.Destination, 0, len(infos))
	for _, info := range infos {
		destinations = append(destinations, &remoteDestination{executor: e, info: info})
	}
	return destinations
}

// Processors returns the processors the plugin currently reports.
func (e *Executor) Processors() []plugin.Processor {
	infos := e.extensions(Remote.Processors, "processors")

	processors := make([]plugin.Processor, 0, len(infos))
	for _, info := range infos {
		processors = append(processors, &remoteProcessor{executor: e, info: info})
	}
	return processors
}

func (e *Executor) extensions(list func(Remote, context.Context) ([]plugin.ExtensionInfo, error), kind string) []plugin.ExtensionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.remote == nil {
		return nil
	}

	ctx, cancel := e.callContext()
	defer cancel()

	infos, err := list(e.remote, ctx)
	if err != nil {
		e.logger.Warn("failed to list plugin "+kind, "binary", e.binary, "error", err)
		e.killIfHung(err)
		return nil
	}
	return infos
}

func (e *Executor) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.timeout)
}

// killIfHung stops the plugin process when a call was abandoned because its
// deadline passed. The plugin is not called again. Callers hold e.mu.
func (e *Executor) killIfHung(err error) {
	if !errors.Is(err, context.DeadlineExceeded) || e.remote == nil {
		return
	}
	e.logger.Error("plugin did not answer in time, stopping it", "binary", e.binary, "timeout", e.timeout)
	e.stop()
	e.remote = nil
	e.stop = nil
}

func (e *Executor) export(ctx context.Context, info plugin.ExtensionInfo, manual bool, surface plugin.Surface, details *plugin.CaptureDetails) plugin.ExportInformation {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.remote == nil {
		return plugin.ExportFailed(info.Designation, fmt.Errorf("plugin %s is not running", e.binary))
	}

	settings := plugin.NewOutputSettings(e.host.OutputDefaults())
	var buf bytes.Buffer
	if err := e.host.SaveToStream(surface.Image(), &buf, settings); err != nil {
		return plugin.ExportFailed(info.Designation, fmt.Errorf("failed to encode capture: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result, err := e.remote.Export(ctx, plugin.ExportRequest{
		Designation:       info.Designation,
		ManuallyInitiated: manual,
		Format:            settings.Format(),
		Image:             buf.Bytes(),
		Details:           *details,
	})
	if err != nil {
		e.killIfHung(err)
		return plugin.ExportFailed(info.Designation, err)
	}

	result.DestinationDesignation = info.Designation
	if result.DestinationDescription == "" {
		result.DestinationDescription = info.Description
	}
	return result
}

func (e *Executor) process(ctx context.Context, info plugin.ExtensionInfo, surface plugin.Surface, details *plugin.CaptureDetails) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.remote == nil {
		return false
	}

	// Processors always see lossless pixels.
	defaults := e.host.OutputDefaults()
	settings := plugin.NewOutputSettingsWithReduceColors(defaults, plugin.FormatPNG, defaults.JPGQuality, false)

	var buf bytes.Buffer
	if err := e.host.SaveToStream(surface.Image(), &buf, settings); err != nil {
		e.logger.Warn("failed to encode capture for processor", "designation", info.Designation, "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.remote.Process(ctx, plugin.ProcessRequest{
		Designation: info.Designation,
		Image:       buf.Bytes(),
		Details:     *details,
	})
	if err != nil {
		e.logger.Warn("processor failed", "designation", info.Designation, "error", err)
		e.killIfHung(err)
		return false
	}
	if !resp.Changed {
		return false
	}

	if len(resp.Image) > 0 {
		img, _, err := imaging.Decode(bytes.NewReader(resp.Image))
		if err != nil {
			e.logger.Warn("processor returned an unreadable image", "designation", info.Designation, "error", err)
			return false
		}
		surface.ApplyImage(img)
	}
	if resp.Details.Title != "" {
		details.Title = resp.Details.Title
	}
	for k, v := range resp.Details.MetaData {
		details.AddMetaData(k, v)
	}
	return true
}

type remoteDestination struct {
	executor *Executor
	info     plugin.ExtensionInfo
}

func (d *remoteDestination) Designation() string { return d.info.Designation }
func (d *remoteDestination) Description() string { return d.info.Description }
func (d *remoteDestination) Priority() int       { return d.info.Priority }
func (d *remoteDestination) IsActive() bool      { return d.info.Active }

func (d *remoteDestination) ExportCapture(ctx context.Context, manual bool, surface plugin.Surface, details *plugin.CaptureDetails) plugin.ExportInformation {
	return d.executor.export(ctx, d.info, manual, surface, details)
}

type remoteProcessor struct {
	executor *Executor
	info     plugin.ExtensionInfo
}

func (p *remoteProcessor) Designation() string { return p.info.Designation }
func (p *remoteProcessor) Description() string { return p.info.Description }
func (p *remoteProcessor) Priority() int       { return p.info.Priority }
func (p *remoteProcessor) IsActive() bool      { return p.info.Active }

func (p *remoteProcessor) ProcessCapture(ctx context.Context, surface plugin.Surface, details *plugin.CaptureDetails) bool {
	return p.executor.process(ctx, p.info, surface, details)
}
