// notify - Shutter destination plugin for desktop notifications
//
// The "notify" destination writes the capture to a temporary file and shows
// it in a desktop notification using dunstify or notify-send. The plugin
// declines activation when neither is on $PATH.
//
// Build:
//
//	go build -o shutter-plugin-notify .
//
// Install by packing the binary with plugin.yaml:
//
//	tar czf notify.tar.gz plugin.yaml shutter-plugin-notify
//	shutter plugins install notify.tar.gz
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/jmylchreest/shutter/pkg/plugin"
)

const designation = "notify"

// notifiers are tried in order. dunstify supports more options but takes the
// same ones notify-send does.
var notifiers = []string{"dunstify", "notify-send"}

type notifyPlugin struct {
	binary   string
	tempDir  string
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
}

func newNotifyPlugin() *notifyPlugin {
	return &notifyPlugin{
		tempDir:  os.TempDir(),
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) error {
			// #nosec G204 -- name is resolved via exec.LookPath
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

func (p *notifyPlugin) GetMetadata() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:            "notify",
		Version:         "0.1.0",
		ProtocolVersion: plugin.ProtocolVersion,
		Description:     "Show captures in a desktop notification",
	}
}

func (p *notifyPlugin) Initialize(_ context.Context, _ plugin.InitializeRequest) (bool, error) {
	for _, name := range notifiers {
		if path, err := p.lookPath(name); err == nil {
			p.binary = path
			return true, nil
		}
	}
	return false, nil
}

func (p *notifyPlugin) Shutdown(context.Context) error { return nil }

func (p *notifyPlugin) Configure(context.Context) error {
	return fmt.Errorf("%s has no settings", designation)
}

func (p *notifyPlugin) Destinations(context.Context) ([]plugin.ExtensionInfo, error) {
	return []plugin.ExtensionInfo{{
		Designation: designation,
		Description: "Desktop notification",
		Priority:    50,
		Active:      p.binary != "",
	}}, nil
}

func (p *notifyPlugin) Processors(context.Context) ([]plugin.ExtensionInfo, error) {
	return nil, nil
}

// Export writes the image next to other temporary files and shows it. The
// file is left for the notification daemon to read.
func (p *notifyPlugin) Export(ctx context.Context, req plugin.ExportRequest) (plugin.ExportInformation, error) {
	if req.Designation != designation {
		return plugin.ExportInformation{}, fmt.Errorf("unknown destination %q", req.Designation)
	}

	f, err := os.CreateTemp(p.tempDir, "shutter-notify-*"+req.Format.Extension())
	if err != nil {
		return plugin.ExportFailed(designation, err), nil
	}
	_, writeErr := f.Write(req.Image)
	if err := f.Close(); writeErr == nil {
		writeErr = err
	}
	if writeErr != nil {
		os.Remove(f.Name())
		return plugin.ExportFailed(designation, writeErr), nil
	}

	body := req.Details.Title
	if body == "" {
		body = req.Details.DateTime.Format("15:04:05")
	}
	args := []string{"-a", "shutter", "-i", f.Name(), "-u", "low", "-t", "5000", "Screenshot captured", body}
	if err := p.run(ctx, p.binary, args...); err != nil {
		return plugin.ExportFailed(designation, fmt.Errorf("%s failed: %w", p.binary, err)), nil
	}

	info := plugin.ExportSucceeded(designation, f.Name())
	info.DestinationDescription = "Desktop notification"
	return info, nil
}

func (p *notifyPlugin) Process(context.Context, plugin.ProcessRequest) (plugin.ProcessResponse, error) {
	return plugin.ProcessResponse{}, nil
}

func main() {
	plugin.Serve(newNotifyPlugin())
}
