package cli

import (
	"github.com/spf13/cobra"

	"github.com/jmylchreest/shutter/internal/config"
	"github.com/jmylchreest/shutter/internal/host"
	"github.com/jmylchreest/shutter/internal/imaging"
	httputil "github.com/jmylchreest/shutter/internal/util/http"
)

func newImportCmd(opts *options) *cobra.Command {
	var destination string

	cmd := &cobra.Command{
		Use:   "import <image|url>",
		Short: "Run an existing image through the capture pipeline",
		Long: `Import an image file as if it had just been captured. It is run through
every active processor and exported to the configured destinations, or to
--destination when given. The file name becomes the capture title. An
http(s) URL is downloaded to a private directory under the temporary
directory first and removed afterwards.

Examples:
  shutter import ~/Downloads/diagram.png
  shutter import photo.jpg --destination imgur
  shutter import https://example.com/chart.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			remote := httputil.IsURL(source)
			if !remote {
				if err := requireImageFile(source); err != nil {
					return err
				}
			}

			s, err := opts.open(cmd, func(cfg *config.Config) []host.Option {
				if destination != "" {
					cfg.Capture.Destinations = []string{destination}
				}
				return nil
			})
			if err != nil {
				return err
			}
			defer s.close()
			warnOtherInstances(s.logger)

			if remote {
				var cleanup func()
				if source, cleanup, err = download(cmd.Context(), s.logger, source, s.cfg.TempDir(), "shutter-import-"); err != nil {
					return err
				}
				defer cleanup()
			}
			img, err := imaging.Load(source)
			if err != nil {
				return err
			}

			c := s.host.NewCapture(img)
			c.Details().Title = imaging.TitleFromPath(source)

			infos, err := s.host.ImportCapture(cmd.Context(), c)
			if err != nil {
				return err
			}
			return printExports(cmd.OutOrStdout(), infos)
		},
	}
	addDestinationFlag(cmd.Flags(), &destination)
	return cmd
}
