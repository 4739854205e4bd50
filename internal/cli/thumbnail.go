package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/shutter/internal/host"
	"github.com/jmylchreest/shutter/internal/imaging"
	"github.com/jmylchreest/shutter/pkg/plugin"
)

func newThumbnailCmd(opts *options) *cobra.Command {
	var width, height int

	cmd := &cobra.Command{
		Use:   "thumbnail <input> <output>",
		Short: "Write a scaled copy of an image",
		Long: `Scale an image to fit within --width x --height, keeping its aspect ratio.
The output format follows the output file extension.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out := args[0], args[1]

			format, err := plugin.ParseOutputFormat(filepath.Ext(out))
			if err != nil {
				return err
			}
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			img, err := imaging.Load(in)
			if err != nil {
				return err
			}

			h := host.New(cfg, host.WithLogger(logger))
			w, ht := imaging.FitWithin(img, width, height)
			thumb, err := h.Thumbnail(img, w, ht)
			if err != nil {
				return err
			}

			f, err := os.Create(out) // #nosec G304 - user-specified output path
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			if err := h.SaveToStream(thumb, f, plugin.NewOutputSettingsWithFormat(h.OutputDefaults(), format)); err != nil {
				f.Close()
				os.Remove(out)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s (%dx%d)\n", out, w, ht)
			return nil
		},
	}
	cmd.Flags().IntVarP(&width, "width", "W", 256, "maximum width")
	cmd.Flags().IntVarP(&height, "height", "H", 256, "maximum height")
	return cmd
}
