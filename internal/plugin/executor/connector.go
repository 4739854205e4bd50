package executor

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"

	"github.com/jmylchreest/shutter/pkg/plugin"
)

// Remote is the host's view of a connected out-of-process plugin.
// *plugin.RemotePluginRPCClient satisfies it.
type Remote interface {
	GetMetadata() (plugin.PluginInfo, error)
	Initialize(ctx context.Context, req plugin.InitializeRequest) (bool, error)
	Shutdown(ctx context.Context) error
	Configure(ctx context.Context) error
	Destinations(ctx context.Context) ([]plugin.ExtensionInfo, error)
	Processors(ctx context.Context) ([]plugin.ExtensionInfo, error)
	Export(ctx context.Context, req plugin.ExportRequest) (plugin.ExportInformation, error)
	Process(ctx context.Context, req plugin.ProcessRequest) (plugin.ProcessResponse, error)
}

// Connector starts a plugin binary and connects to it. The returned func
// stops the plugin process.
type Connector interface {
	Connect(binary string, logger hclog.Logger) (Remote, func(), error)
}

// GoPluginConnector launches plugins with hashicorp/go-plugin over net/rpc.
type GoPluginConnector struct{}

// Connect implements Connector.
func (GoPluginConnector) Connect(binary string, logger hclog.Logger) (Remote, func(), error) {
	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: plugin.Handshake,
		Plugins: map[string]goplugin.Plugin{
			plugin.PluginName: &plugin.RemotePluginRPC{},
		},
		Cmd:              exec.Command(binary),
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
		Logger:           logger,
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("failed to get RPC client: %w", err)
	}

	raw, err := rpcClient.Dispense(plugin.PluginName)
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("failed to dispense plugin: %w", err)
	}

	remote, ok := raw.(*plugin.RemotePluginRPCClient)
	if !ok {
		client.Kill()
		return nil, nil, fmt.Errorf("unexpected plugin client type %T", raw)
	}

	return remote, client.Kill, nil
}
