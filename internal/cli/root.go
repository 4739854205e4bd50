// Package cli provides the command-line interface for shutter.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/jmylchreest/shutter/internal/config"
	"github.com/jmylchreest/shutter/internal/destination/file"
	"github.com/jmylchreest/shutter/internal/host"
	"github.com/jmylchreest/shutter/internal/plugin/loader"
	"github.com/jmylchreest/shutter/internal/plugin/manager"
	"github.com/jmylchreest/shutter/internal/version"
	"github.com/jmylchreest/shutter/pkg/plugin"
)

// options holds the global flags shared by every command.
type options struct {
	configPath string
	logLevel   string
}

// NewRootCmd builds the shutter command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "shutter",
		Short: "Capture, process and export screenshots",
		Long: `Shutter takes screenshots and routes them through processors and
destinations provided by the application and by plugins.

Plugins live one directory deep in the plugin directory, each with a
plugin.yaml manifest. They can be switched off with SHUTTER_DISABLED_PLUGINS
or limited with SHUTTER_ENABLED_PLUGINS.`,
		Version:      version.Short(),
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate(version.String() + "\n")

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", config.DefaultPath(), "config file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error, off)")

	cmd.AddCommand(
		newVersionCmd(),
		newPluginsCmd(opts),
		newDestinationsCmd(opts),
		newImportCmd(opts),
		newCaptureCmd(opts),
		newThumbnailCmd(opts),
	)
	return cmd
}

// addDestinationFlag registers the --destination flag on fs.
func addDestinationFlag(fs *pflag.FlagSet, p *string) {
	fs.StringVarP(p, "destination", "d", "", "export only to this destination instead of the configured ones")
}

// load reads the configuration and builds the root logger.
func (o *options) load(cmd *cobra.Command) (config.Config, hclog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	return cfg, newLogger(level, cmd.ErrOrStderr()), nil
}

// newLogger creates the root logger, coloured when w is a terminal.
func newLogger(level string, w io.Writer) hclog.Logger {
	color := hclog.ColorOff
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) { // #nosec G115 - file descriptors fit in int
		color = hclog.AutoColor
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "shutter",
		Level:  hclog.LevelFromString(level),
		Output: w,
		Color:  color,
	})
}

// session is a started host with its plugins loaded.
type session struct {
	cfg     config.Config
	logger  hclog.Logger
	host    *host.Host
	manager *manager.Manager
}

// setupFunc adjusts the configuration before the host is built and returns
// extra host options.
type setupFunc func(cfg *config.Config) []host.Option

// open loads configuration and plugins and starts a host. The caller must
// call close.
func (o *options) open(cmd *cobra.Command, setup setupFunc) (*session, error) {
	cfg, logger, err := o.load(cmd)
	if err != nil {
		return nil, err
	}

	var extra []host.Option
	if setup != nil {
		extra = setup(&cfg)
	}

	m := manager.NewBuilder().
		WithConfig(manager.Config{
			DisabledPlugins: cfg.Plugins.Disabled,
			EnabledPlugins:  cfg.Plugins.Enabled,
		}).
		WithLogger(logger.Named("manager")).
		Build()
	loaded := loader.New(logger).LoadDir(cfg.Plugins.Directory, m)
	logger.Debug("plugins discovered", "directory", cfg.Plugins.Directory, "count", loaded)

	h := host.New(cfg, append([]host.Option{host.WithManager(m), host.WithLogger(logger)}, extra...)...)
	if err := h.RegisterDestination(file.New(h, cfg.Output.Directory, logger.Named(file.Designation))); err != nil {
		return nil, err
	}
	active := h.Start()
	logger.Debug("plugins started", "active", active)

	return &session{cfg: cfg, logger: logger, host: h, manager: m}, nil
}

func (s *session) close() {
	s.host.Close()
}

// warnOtherInstances logs when another shutter process is running.
func warnOtherInstances(logger hclog.Logger) {
	pids, err := host.OtherInstances()
	if err != nil {
		logger.Debug("unable to list processes", "error", err)
		return
	}
	if len(pids) > 0 {
		logger.Warn("another shutter instance is running", "pids", pids)
	}
}

// printExports writes one line per export and returns an error if any failed.
func printExports(w io.Writer, infos []plugin.ExportInformation) error {
	failed := 0
	for _, info := range infos {
		if info.Success {
			fmt.Fprintf(w, "%s: %s\n", info.DestinationDesignation, info.Target())
			continue
		}
		failed++
		fmt.Fprintf(w, "%s: failed: %s\n", info.DestinationDesignation, info.ErrorDetail)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d exports failed", failed, len(infos))
	}
	return nil
}
