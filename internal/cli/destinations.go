package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

func newDestinationsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "destinations",
		Short: "List available destinations",
		Long: `List every destination a capture can be exported to: the built-in ones
followed by those offered by active plugins. Destinations marked with * are
used for new captures.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer s.close()

			defaults := make(map[string]bool, len(s.cfg.Capture.Destinations))
			for _, d := range s.cfg.Capture.Destinations {
				defaults[d] = true
			}

			table := NewTable("DESIGNATION", "ACTIVE", "PRIORITY", "DESCRIPTION")
			for _, d := range s.host.Destinations() {
				name := d.Designation()
				if defaults[name] {
					name += " *"
				}
				table.AddRow(name, strconv.FormatBool(d.IsActive()), strconv.Itoa(d.Priority()), d.Description())
			}
			if f, ok := stdoutFile(cmd); ok {
				table.FitTerminal(f)
			}
			_, err = table.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
}
