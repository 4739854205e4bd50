package cli

import (
	"fmt"
	"image"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/shutter/internal/capture"
	"github.com/jmylchreest/shutter/internal/config"
	"github.com/jmylchreest/shutter/internal/host"
	"github.com/jmylchreest/shutter/internal/imaging"
	"github.com/jmylchreest/shutter/pkg/plugin"
)

func newCaptureCmd(opts *options) *cobra.Command {
	var (
		from        string
		destination string
		cursor      bool
		cursorImage string
		cursorPos   []int
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Take a capture and export it",
		Long: `Take a capture from the screen source and export it.

The screen source is an image file given with --from. The mouse cursor is
drawn only when --cursor is set, capture.mouse_pointer is enabled and a
cursor image is given.

Examples:
  shutter capture --from screen.png
  shutter capture --from screen.png --cursor --cursor-image arrow.png --cursor-pos 120,80 -d file`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, path := range []string{from, cursorImage} {
				if path == "" {
					continue
				}
				if err := requireImageFile(path); err != nil {
					return err
				}
			}

			img, err := imaging.Load(from)
			if err != nil {
				return err
			}
			src := &capture.StaticSource{Img: img, Title: imaging.TitleFromPath(from)}
			if cursorImage != "" {
				if len(cursorPos) != 2 {
					return fmt.Errorf("--cursor-pos needs two values, got %d", len(cursorPos))
				}
				if src.Cursor, err = imaging.Load(cursorImage); err != nil {
					return err
				}
				src.CursorPos = image.Pt(cursorPos[0], cursorPos[1])
			}

			var infos []plugin.ExportInformation
			s, err := opts.open(cmd, func(*config.Config) []host.Option {
				return []host.Option{
					host.WithSource(src),
					host.WithExportListener(func(info plugin.ExportInformation) { infos = append(infos, info) }),
				}
			})
			if err != nil {
				return err
			}
			defer s.close()
			warnOtherInstances(s.logger)

			var dest plugin.Destination
			if destination != "" {
				d, ok := s.host.Destination(destination)
				if !ok {
					return fmt.Errorf("%w: %s", host.ErrUnknownDestination, destination)
				}
				dest = d
			}

			captureErr := s.host.CaptureRegion(cmd.Context(), cursor, dest)
			if err := printExports(cmd.OutOrStdout(), infos); err != nil && captureErr == nil {
				return err
			}
			return captureErr
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&from, "from", "", "image file to capture from")
	addDestinationFlag(flags, &destination)
	flags.BoolVar(&cursor, "cursor", false, "capture the mouse cursor")
	flags.StringVar(&cursorImage, "cursor-image", "", "cursor image drawn when the cursor is captured")
	flags.IntSliceVar(&cursorPos, "cursor-pos", []int{0, 0}, "cursor position as x,y")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}
