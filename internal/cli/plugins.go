package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/shutter/internal/plugin/loader"
	"github.com/jmylchreest/shutter/internal/plugin/manager"
	"github.com/jmylchreest/shutter/internal/plugin/protocol"
	httputil "github.com/jmylchreest/shutter/internal/util/http"
)

func newPluginsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Manage plugins",
		Long: `List, install and configure plugins.

Plugins are discovered in the plugin directory (plugins.directory in the
config file, or SHUTTER_PLUGIN_DIR). Each plugin has its own subdirectory
with a plugin.yaml manifest.

When SHUTTER_ENABLED_PLUGINS is set, only those plugins are started.
Plugins in SHUTTER_DISABLED_PLUGINS are never started. "all" matches every plugin.`,
	}

	cmd.AddCommand(
		newPluginsListCmd(opts),
		newPluginsInfoCmd(opts),
		newPluginsInstallCmd(opts),
		newPluginsConfigureCmd(opts),
	)
	return cmd
}

func newPluginsListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List discovered plugins and their state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer s.close()

			statuses := s.manager.Statuses()
			out := cmd.OutOrStdout()
			if len(statuses) == 0 {
				fmt.Fprintf(out, "No plugins found in %s\n", s.cfg.Plugins.Directory)
				return nil
			}

			table := NewTable("NAME", "VERSION", "STATE", "CONFIGURABLE", "CREATED BY")
			for _, st := range statuses {
				d := st.Descriptor
				table.AddRow(d.Name(), d.Version(), st.State.String(), strconv.FormatBool(d.Configurable()), d.CreatedBy())
			}
			_, err = table.WriteTo(out)
			return err
		},
	}
}

func newPluginsInfoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info <plugin-name>",
		Short: "Show a plugin's manifest and state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer s.close()

			name := args[0]
			d, ok := s.manager.Descriptor(name)
			if !ok {
				return fmt.Errorf("%w: %s", manager.ErrUnknownPlugin, name)
			}
			state, _ := s.manager.State(name)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:          %s\n", d.Name())
			fmt.Fprintf(out, "Version:       %s\n", d.Version())
			fmt.Fprintf(out, "Created by:    %s\n", d.CreatedBy())
			fmt.Fprintf(out, "Entry type:    %s\n", d.EntryType())
			fmt.Fprintf(out, "Configurable:  %t\n", d.Configurable())
			fmt.Fprintf(out, "State:         %s\n", state)
			if d.DLLFile() != "" {
				fmt.Fprintf(out, "Binary:        %s\n", d.DLLFile())
			}
			return nil
		},
	}
}

func newPluginsInstallCmd(opts *options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "install <bundle>",
		Short: "Install a plugin bundle",
		Long: `Install a plugin from a .tar.gz, .tar.xz, .tar.bz2 or .zip bundle, given
as a local path or an http(s) URL.

The bundle must contain a plugin.yaml manifest at its root or in a single
top-level directory. go-plugin binaries are run with --plugin-info and
rejected if their protocol version is incompatible.

Examples:
  shutter plugins install shutter-plugin-imgur_linux_amd64.tar.xz
  shutter plugins install ./dist/uploader.zip --force
  shutter plugins install https://example.com/releases/notify_linux_amd64.tar.gz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cfg.Plugins.Directory == "" {
				return fmt.Errorf("no plugin directory configured")
			}

			bundle := args[0]
			if httputil.IsURL(bundle) {
				var cleanup func()
				if bundle, cleanup, err = download(cmd.Context(), logger, bundle, cfg.TempDir(), "shutter-bundle-"); err != nil {
					return err
				}
				defer cleanup()
			}

			d, err := loader.Install(cmd.Context(), bundle, cfg.Plugins.Directory, loader.InstallOptions{
				Force: force,
				Probe: protocol.Probe,
			})
			if err != nil {
				return err
			}
			logger.Debug("plugin installed", "plugin", d.Name(), "binary", d.DLLFile())

			fmt.Fprintf(cmd.OutOrStdout(), "Installed %s %s to %s\n", d.Name(), d.Version(), filepath.Join(cfg.Plugins.Directory, d.Name()))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace an installed plugin of the same name")
	return cmd
}

func newPluginsConfigureCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "configure <plugin-name>",
		Short: "Open a plugin's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.manager.Configure(args[0]); err != nil {
				return fmt.Errorf("failed to configure %s: %w", args[0], err)
			}
			return nil
		},
	}
}

// stdoutFile returns the command's output as a file, if it is one.
func stdoutFile(cmd *cobra.Command) (*os.File, bool) {
	f, ok := cmd.OutOrStdout().(*os.File)
	return f, ok
}
