package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/jmylchreest/shutter/pkg/plugin"
)

// ProbeTimeout bounds how long a plugin binary may take to describe itself.
const ProbeTimeout = 5 * time.Second

// Probe runs a plugin binary with the info flag and returns what it reports.
// The reported protocol version is checked for compatibility.
func Probe(ctx context.Context, binary string) (plugin.PluginInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, plugin.InfoFlag)
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if stderr.Len() > 0 {
			return plugin.PluginInfo{}, fmt.Errorf("failed to query plugin: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return plugin.PluginInfo{}, fmt.Errorf("failed to query plugin: %w", err)
	}

	info, err := ParseInfo(output)
	if err != nil {
		return plugin.PluginInfo{}, err
	}
	return info, CheckCompatible(info.ProtocolVersion)
}

// ParseInfo decodes the output of a plugin binary run with the info flag.
func ParseInfo(output []byte) (plugin.PluginInfo, error) {
	var info plugin.PluginInfo
	if err := json.Unmarshal(bytes.TrimSpace(output), &info); err != nil {
		return plugin.PluginInfo{}, fmt.Errorf("failed to parse plugin info: %w", err)
	}
	if info.Name == "" {
		return plugin.PluginInfo{}, fmt.Errorf("plugin info has no name")
	}
	return info, nil
}
