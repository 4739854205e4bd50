package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/rpc"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
)

// PluginInfo contains metadata a remote plugin reports about itself.
type PluginInfo struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	ProtocolVersion string `json:"protocol_version"`
	Description     string `json:"description"`
}

// ExtensionInfo describes a destination or processor offered by a remote plugin.
type ExtensionInfo struct {
	Designation string `json:"designation"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
	Active      bool   `json:"active"`
}

// InitializeRequest is sent to a remote plugin when it is activated.
type InitializeRequest struct {
	Descriptor Manifest       `json:"descriptor"`
	Defaults   OutputDefaults `json:"defaults"`
}

// ExportRequest carries an encoded surface image to a remote destination.
type ExportRequest struct {
	Designation       string         `json:"designation"`
	ManuallyInitiated bool           `json:"manually_initiated"`
	Format            OutputFormat   `json:"format"`
	Image             []byte         `json:"image"`
	Details           CaptureDetails `json:"details"`
}

// ProcessRequest carries a PNG encoded surface image to a remote processor.
type ProcessRequest struct {
	Designation string         `json:"designation"`
	Image       []byte         `json:"image"`
	Details     CaptureDetails `json:"details"`
}

// ProcessResponse is returned by a remote processor. Image is empty when
// the processor left the surface unchanged.
type ProcessResponse struct {
	Changed bool           `json:"changed"`
	Image   []byte         `json:"image,omitempty"`
	Details CaptureDetails `json:"details"`
}

// RemotePlugin is the interface out-of-process plugins implement. The host
// adapts it to Plugin, so the lifecycle rules are the same.
type RemotePlugin interface {
	GetMetadata() PluginInfo
	Initialize(ctx context.Context, req InitializeRequest) (bool, error)
	Shutdown(ctx context.Context) error
	Configure(ctx context.Context) error
	Destinations(ctx context.Context) ([]ExtensionInfo, error)
	Processors(ctx context.Context) ([]ExtensionInfo, error)
	Export(ctx context.Context, req ExportRequest) (ExportInformation, error)
	Process(ctx context.Context, req ProcessRequest) (ProcessResponse, error)
}

// InfoFlag makes a plugin binary print its PluginInfo as JSON and exit.
const InfoFlag = "--plugin-info"

// Serve runs impl as a go-plugin server. It is called from a plugin's main
// and blocks until the host disconnects. When the binary is started with
// InfoFlag it prints its metadata instead.
func Serve(impl RemotePlugin) {
	if len(os.Args) > 1 && os.Args[1] == InfoFlag {
		if err := json.NewEncoder(os.Stdout).Encode(impl.GetMetadata()); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write plugin info: %v\n", err)
			os.Exit(1)
		}
		return
	}

	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			PluginName: &RemotePluginRPC{Impl: impl},
		},
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:       impl.GetMetadata().Name,
			Output:     os.Stderr,
			Level:      hclog.Info,
			JSONFormat: true,
		}),
	})
}

// RemotePluginRPC implements the go-plugin Plugin interface.
type RemotePluginRPC struct {
	plugin.Plugin
	Impl RemotePlugin
}

// Server returns an RPC server for this plugin.
func (p *RemotePluginRPC) Server(*plugin.MuxBroker) (any, error) {
	return &RemotePluginRPCServer{Impl: p.Impl}, nil
}

// Client returns an RPC client for this plugin.
func (p *RemotePluginRPC) Client(_ *plugin.MuxBroker, c *rpc.Client) (any, error) {
	return NewRemotePluginRPCClient(c), nil
}

// RemotePluginRPCServer is the RPC server implementation.
type RemotePluginRPCServer struct {
	Impl RemotePlugin
}

// GetMetadata implements the RPC method for fetching plugin metadata.
func (s *RemotePluginRPCServer) GetMetadata(_ any, resp *PluginInfo) error {
	*resp = s.Impl.GetMetadata()
	return nil
}

// Initialize implements the RPC method for activation.
func (s *RemotePluginRPCServer) Initialize(req InitializeRequest, resp *bool) error {
	ok, err := s.Impl.Initialize(context.Background(), req)
	if err != nil {
		return err
	}
	*resp = ok
	return nil
}

// Shutdown implements the RPC method for deactivation.
func (s *RemotePluginRPCServer) Shutdown(_ any, resp *string) error {
	if err := s.Impl.Shutdown(context.Background()); err != nil {
		*resp = err.Error()
	}
	return nil
}

// Configure implements the RPC method for opening configuration.
func (s *RemotePluginRPCServer) Configure(_ any, resp *string) error {
	if err := s.Impl.Configure(context.Background()); err != nil {
		*resp = err.Error()
	}
	return nil
}

// Destinations implements the RPC method for listing destinations.
func (s *RemotePluginRPCServer) Destinations(_ any, resp *[]ExtensionInfo) error {
	infos, err := s.Impl.Destinations(context.Background())
	if err != nil {
		return err
	}
	*resp = infos
	return nil
}

// Processors implements the RPC method for listing processors.
func (s *RemotePluginRPCServer) Processors(_ any, resp *[]ExtensionInfo) error {
	infos, err := s.Impl.Processors(context.Background())
	if err != nil {
		return err
	}
	*resp = infos
	return nil
}

// Export implements the RPC method for exporting a capture.
func (s *RemotePluginRPCServer) Export(req ExportRequest, resp *ExportInformation) error {
	info, err := s.Impl.Export(context.Background(), req)
	if err != nil {
		return err
	}
	*resp = info
	return nil
}

// Process implements the RPC method for processing a capture.
func (s *RemotePluginRPCServer) Process(req ProcessRequest, resp *ProcessResponse) error {
	result, err := s.Impl.Process(context.Background(), req)
	if err != nil {
		return err
	}
	*resp = result
	return nil
}

// RemotePluginRPCClient is the RPC client implementation. It satisfies
// RemotePlugin except for GetMetadata, which can fail over RPC.
type RemotePluginRPCClient struct {
	client *rpc.Client
}

// NewRemotePluginRPCClient wraps an RPC client connected to a RemotePluginRPCServer.
func NewRemotePluginRPCClient(c *rpc.Client) *RemotePluginRPCClient {
	return &RemotePluginRPCClient{client: c}
}

// GetMetadata calls the remote GetMetadata method.
func (c *RemotePluginRPCClient) GetMetadata() (PluginInfo, error) {
	var info PluginInfo
	err := c.client.Call("Plugin.GetMetadata", new(any), &info)
	return info, err
}

// Initialize calls the remote Initialize method.
func (c *RemotePluginRPCClient) Initialize(ctx context.Context, req InitializeRequest) (bool, error) {
	var ok bool
	if err := c.invoke(ctx, "Plugin.Initialize", req, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Shutdown calls the remote Shutdown method.
func (c *RemotePluginRPCClient) Shutdown(ctx context.Context) error {
	return c.call(ctx, "Plugin.Shutdown")
}

// Configure calls the remote Configure method.
func (c *RemotePluginRPCClient) Configure(ctx context.Context) error {
	return c.call(ctx, "Plugin.Configure")
}

// Destinations calls the remote Destinations method.
func (c *RemotePluginRPCClient) Destinations(ctx context.Context) ([]ExtensionInfo, error) {
	var infos []ExtensionInfo
	if err := c.invoke(ctx, "Plugin.Destinations", new(any), &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// Processors calls the remote Processors method.
func (c *RemotePluginRPCClient) Processors(ctx context.Context) ([]ExtensionInfo, error) {
	var infos []ExtensionInfo
	if err := c.invoke(ctx, "Plugin.Processors", new(any), &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// Export calls the remote Export method.
func (c *RemotePluginRPCClient) Export(ctx context.Context, req ExportRequest) (ExportInformation, error) {
	var info ExportInformation
	if err := c.invoke(ctx, "Plugin.Export", req, &info); err != nil {
		return ExportInformation{}, err
	}
	return info, nil
}

// Process calls the remote Process method.
func (c *RemotePluginRPCClient) Process(ctx context.Context, req ProcessRequest) (ProcessResponse, error) {
	var resp ProcessResponse
	if err := c.invoke(ctx, "Plugin.Process", req, &resp); err != nil {
		return ProcessResponse{}, err
	}
	return resp, nil
}

// call invokes a method whose reply is an error message, empty on success.
func (c *RemotePluginRPCClient) call(ctx context.Context, method string) error {
	var errMsg string
	if err := c.invoke(ctx, method, new(any), &errMsg); err != nil {
		return err
	}
	if errMsg != "" {
		return &RPCError{Message: errMsg}
	}
	return nil
}

// invoke sends the request and waits for the reply or for ctx to end,
// whichever comes first.
func (c *RemotePluginRPCClient) invoke(ctx context.Context, method string, args, reply any) error {
	call := c.client.Go(method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-call.Done:
		if call.Error != nil {
			return &RPCError{Message: call.Error.Error()}
		}
		return nil
	case <-ctx.Done():
		return &RPCError{
			Message: fmt.Sprintf("%s: %v", method, ctx.Err()),
			Err:     ctx.Err(),
		}
	}
}

// RPCError represents an error returned from an RPC call. Err is set when
// the call was abandoned because its context ended.
type RPCError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return e.Message
}

// Unwrap returns the context error of an abandoned call.
func (e *RPCError) Unwrap() error {
	return e.Err
}
