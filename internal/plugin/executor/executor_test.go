package executor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/shutter/internal/capture"
	"github.com/jmylchreest/shutter/internal/imaging"
	"github.com/jmylchreest/shutter/pkg/plugin"
)

type fakeRemote struct {
	info         plugin.PluginInfo
	metadataErr  error
	accept       bool
	initErr      error
	initReq      plugin.InitializeRequest
	destinations []plugin.ExtensionInfo
	processors   []plugin.ExtensionInfo
	exportReq    plugin.ExportRequest
	exportResult plugin.ExportInformation
	exportErr    error
	processResp  plugin.ProcessResponse
	configured   int
	shutdowns    int

	// hang makes calls wait for their context to end, as an unresponsive
	// plugin process would.
	hang bool
}

func (f *fakeRemote) GetMetadata() (plugin.PluginInfo, error) { return f.info, f.metadataErr }

func (f *fakeRemote) Initialize(_ context.Context, req plugin.InitializeRequest) (bool, error) {
	f.initReq = req
	return f.accept, f.initErr
}

func (f *fakeRemote) Shutdown(ctx context.Context) error {
	f.shutdowns++
	return f.wait(ctx)
}

func (f *fakeRemote) Configure(context.Context) error {
	f.configured++
	return nil
}

func (f *fakeRemote) Destinations(context.Context) ([]plugin.ExtensionInfo, error) {
	return f.destinations, nil
}

func (f *fakeRemote) Processors(context.Context) ([]plugin.ExtensionInfo, error) {
	return f.processors, nil
}

func (f *fakeRemote) Export(ctx context.Context, req plugin.ExportRequest) (plugin.ExportInformation, error) {
	f.exportReq = req
	if err := f.wait(ctx); err != nil {
		return plugin.ExportInformation{}, err
	}
	return f.exportResult, f.exportErr
}

func (f *fakeRemote) wait(ctx context.Context) error {
	if !f.hang {
		return nil
	}
	<-ctx.Done()
	return &plugin.RPCError{Message: ctx.Err().Error(), Err: ctx.Err()}
}

func (f *fakeRemote) Process(context.Context, plugin.ProcessRequest) (plugin.ProcessResponse, error) {
	return f.processResp, nil
}

type fakeConnector struct {
	remote  *fakeRemote
	err     error
	stopped int
}

func (c *fakeConnector) Connect(string, hclog.Logger) (Remote, func(), error) {
	if c.err != nil {
		return nil, nil, c.err
	}
	return c.remote, func() { c.stopped++ }, nil
}

// fakeHost provides the host operations the executor uses.
type fakeHost struct {
	plugin.Host
	defaults plugin.OutputDefaults
}

func (h *fakeHost) OutputDefaults() plugin.OutputDefaults { return h.defaults }

func (h *fakeHost) SaveToStream(img image.Image, w io.Writer, settings plugin.OutputSettings) error {
	return imaging.Encode(w, img, settings)
}

func newTestExecutor(remote *fakeRemote, opts ...Option) (*Executor, *fakeConnector) {
	connector := &fakeConnector{remote: remote}
	opts = append([]Option{WithConnector(connector)}, opts...)
	return New("/plugins/uploader/shutter-plugin-uploader", opts...), connector
}

func compatibleRemote() *fakeRemote {
	return &fakeRemote{
		info:   plugin.PluginInfo{Name: "uploader", Version: "0.3.0", ProtocolVersion: plugin.ProtocolVersion},
		accept: true,
	}
}

func testDescriptor() *plugin.Descriptor {
	return plugin.NewDescriptor("uploader", "me", "0.3.0", plugin.EntryTypeGoPlugin, true)
}

func testSurface() (*capture.Surface, *plugin.CaptureDetails) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	c := capture.New(img, nil)
	return capture.NewSurface(c), c.Details()
}

// TestInitialize tests the activation handshake.
func TestInitialize(t *testing.T) {
	remote := compatibleRemote()
	e, connector := newTestExecutor(remote)
	host := &fakeHost{defaults: plugin.OutputDefaults{Format: plugin.FormatJPG, JPGQuality: 55}}

	if !e.Initialize(host, testDescriptor()) {
		t.Fatal("Initialize() = false, want true")
	}
	if remote.initReq.Descriptor.Name != "uploader" || remote.initReq.Defaults.JPGQuality != 55 {
		t.Errorf("remote received %+v", remote.initReq)
	}
	if e.Info().Version != "0.3.0" {
		t.Errorf("Info() = %+v", e.Info())
	}
	if connector.stopped != 0 {
		t.Error("process stopped after successful Initialize")
	}
}

// TestInitializeDeclined tests every path that declines activation.
func TestInitializeDeclined(t *testing.T) {
	tests := []struct {
		name      string
		remote    *fakeRemote
		connErr   error
		wantStops int
	}{
		{name: "connect fails", remote: compatibleRemote(), connErr: errors.New("exec format error")},
		{name: "metadata fails", remote: &fakeRemote{metadataErr: errors.New("eof")}, wantStops: 1},
		{
			name:      "incompatible protocol",
			remote:    &fakeRemote{info: plugin.PluginInfo{Name: "old", ProtocolVersion: "0.0.1"}, accept: true},
			wantStops: 1,
		},
		{
			name:      "plugin declines",
			remote:    &fakeRemote{info: plugin.PluginInfo{Name: "x", ProtocolVersion: plugin.ProtocolVersion}},
			wantStops: 1,
		},
		{
			name: "initialize errors",
			remote: &fakeRemote{
				info:    plugin.PluginInfo{Name: "x", ProtocolVersion: plugin.ProtocolVersion},
				accept:  true,
				initErr: errors.New("bad token"),
			},
			wantStops: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, connector := newTestExecutor(tt.remote)
			connector.err = tt.connErr

			if e.Initialize(&fakeHost{}, testDescriptor()) {
				t.Fatal("Initialize() = true, want false")
			}
			if connector.stopped != tt.wantStops {
				t.Errorf("stopped = %d, want %d", connector.stopped, tt.wantStops)
			}
			if len(e.Destinations()) != 0 || len(e.Processors()) != 0 {
				t.Error("declined executor reports extensions")
			}
		})
	}
}

// TestShutdown tests that the process is stopped once.
func TestShutdown(t *testing.T) {
	remote := compatibleRemote()
	e, connector := newTestExecutor(remote)
	if !e.Initialize(&fakeHost{}, testDescriptor()) {
		t.Fatal("Initialize() = false")
	}

	e.Configure()
	e.Shutdown()
	e.Shutdown()

	if remote.configured != 1 {
		t.Errorf("configured = %d, want 1", remote.configured)
	}
	if remote.shutdowns != 1 || connector.stopped != 1 {
		t.Errorf("shutdowns = %d, stopped = %d, want 1 and 1", remote.shutdowns, connector.stopped)
	}
}

// TestRemoteDestination tests exporting through a remote destination.
func TestRemoteDestination(t *testing.T) {
	remote := compatibleRemote()
	remote.destinations = []plugin.ExtensionInfo{{Designation: "upload", Description: "Upload", Priority: 3, Active: true}}
	remote.exportResult = plugin.ExportInformation{Success: true, URI: "https://img.example/x"}

	e, _ := newTestExecutor(remote)
	host := &fakeHost{defaults: plugin.OutputDefaults{Format: plugin.FormatPNG, JPGQuality: 80}}
	if !e.Initialize(host, testDescriptor()) {
		t.Fatal("Initialize() = false")
	}

	destinations := e.Destinations()
	if len(destinations) != 1 {
		t.Fatalf("Destinations() = %d, want 1", len(destinations))
	}
	d := destinations[0]
	if d.Designation() != "upload" || d.Priority() != 3 || !d.IsActive() {
		t.Errorf("destination = %s/%d/%v", d.Designation(), d.Priority(), d.IsActive())
	}

	surface, details := testSurface()
	details.Title = "terminal"
	info := d.ExportCapture(context.Background(), true, surface, details)

	if !info.Success || info.Target() != "https://img.example/x" {
		t.Errorf("ExportCapture() = %+v", info)
	}
	if info.DestinationDesignation != "upload" || info.DestinationDescription != "Upload" {
		t.Errorf("designation/description = %q/%q", info.DestinationDesignation, info.DestinationDescription)
	}
	if !remote.exportReq.ManuallyInitiated || remote.exportReq.Details.Title != "terminal" {
		t.Errorf("export request = %+v", remote.exportReq)
	}
	if _, err := png.Decode(bytes.NewReader(remote.exportReq.Image)); err != nil {
		t.Errorf("exported bytes are not PNG: %v", err)
	}
}

// TestRemoteDestinationError tests that call errors become failed results.
func TestRemoteDestinationError(t *testing.T) {
	remote := compatibleRemote()
	remote.destinations = []plugin.ExtensionInfo{{Designation: "upload"}}
	remote.exportErr = &plugin.RPCError{Message: "connection reset"}

	e, _ := newTestExecutor(remote)
	if !e.Initialize(&fakeHost{defaults: plugin.OutputDefaults{Format: plugin.FormatPNG}}, testDescriptor()) {
		t.Fatal("Initialize() = false")
	}

	surface, details := testSurface()
	info := e.Destinations()[0].ExportCapture(context.Background(), false, surface, details)
	if info.Success || info.ErrorDetail != "connection reset" {
		t.Errorf("ExportCapture() = %+v", info)
	}

	e.Shutdown()
	if len(e.Destinations()) != 0 {
		t.Error("stopped executor still lists destinations")
	}
}

// TestCallTimeout tests that a plugin which stops answering is stopped
// and never called again.
func TestCallTimeout(t *testing.T) {
	remote := compatibleRemote()
	remote.destinations = []plugin.ExtensionInfo{{Designation: "upload", Active: true}}

	e, connector := newTestExecutor(remote, WithCallTimeout(20*time.Millisecond))
	if !e.Initialize(&fakeHost{defaults: plugin.OutputDefaults{Format: plugin.FormatPNG}}, testDescriptor()) {
		t.Fatal("Initialize() = false")
	}
	d := e.Destinations()[0]
	remote.hang = true

	surface, details := testSurface()
	start := time.Now()
	info := d.ExportCapture(context.Background(), false, surface, details)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("ExportCapture() returned after %v", elapsed)
	}
	if info.Success || info.ErrorDetail == "" {
		t.Errorf("ExportCapture() = %+v, want failure", info)
	}
	if connector.stopped != 1 {
		t.Errorf("stopped = %d, want 1", connector.stopped)
	}

	if len(e.Destinations()) != 0 {
		t.Error("stopped executor still lists destinations")
	}
	e.Shutdown()
	if remote.shutdowns != 0 || connector.stopped != 1 {
		t.Errorf("shutdowns = %d, stopped = %d, want 0 and 1", remote.shutdowns, connector.stopped)
	}
}

// TestShutdownTimeout tests that Shutdown returns when the plugin hangs.
func TestShutdownTimeout(t *testing.T) {
	remote := compatibleRemote()
	e, connector := newTestExecutor(remote, WithCallTimeout(20*time.Millisecond))
	if !e.Initialize(&fakeHost{}, testDescriptor()) {
		t.Fatal("Initialize() = false")
	}
	remote.hang = true

	done := make(chan struct{})
	go func() {
		e.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown() did not return")
	}
	if connector.stopped != 1 {
		t.Errorf("stopped = %d, want 1", connector.stopped)
	}
}

// TestRemoteProcessor tests that processed pixels and metadata reach the surface.
func TestRemoteProcessor(t *testing.T) {
	replacement := image.NewRGBA(image.Rect(0, 0, 2, 2))
	replacement.Set(0, 0, color.RGBA{B: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, replacement); err != nil {
		t.Fatal(err)
	}

	remote := compatibleRemote()
	remote.processors = []plugin.ExtensionInfo{{Designation: "redact", Active: true}}
	remote.processResp = plugin.ProcessResponse{
		Changed: true,
		Image:   buf.Bytes(),
		Details: plugin.CaptureDetails{MetaData: map[string]string{"redacted": "2"}},
	}

	e, _ := newTestExecutor(remote)
	if !e.Initialize(&fakeHost{defaults: plugin.OutputDefaults{Format: plugin.FormatJPG, ReduceColors: true}}, testDescriptor()) {
		t.Fatal("Initialize() = false")
	}

	surface, details := testSurface()
	p := e.Processors()[0]
	if !p.ProcessCapture(context.Background(), surface, details) {
		t.Fatal("ProcessCapture() = false, want true")
	}
	if !surface.Modified() {
		t.Error("surface not marked modified")
	}
	if got := surface.Image().Bounds(); got != replacement.Bounds() {
		t.Errorf("surface bounds = %v, want %v", got, replacement.Bounds())
	}
	if details.MetaData["redacted"] != "2" {
		t.Errorf("metadata = %v", details.MetaData)
	}

	remote.processResp = plugin.ProcessResponse{}
	if p.ProcessCapture(context.Background(), surface, details) {
		t.Error("ProcessCapture() = true for unchanged response")
	}
}
