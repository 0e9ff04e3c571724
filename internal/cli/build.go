package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quadview/quadview/pkg/source"
	"github.com/quadview/quadview/pkg/source/tilestore"
)

// buildCommand creates the "build" command: generate a synthetic image,
// derive its pyramid, and persist every tile to a SQLite store.
func (c *CLI) buildCommand() *cobra.Command {
	var (
		out     string
		size    int
		tile    int
		pattern string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a tile pyramid database",
		Long:  `Build generates a synthetic base image, downsamples it into a multiscale pyramid, and writes every tile into a SQLite database that bench and watch can stream from.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if size <= 0 || tile <= 0 {
				return fmt.Errorf("size and tile must be positive")
			}

			prog := newProgress(c.Logger)
			c.Logger.Debug("generating base image", "pattern", pattern, "size", size)

			base := synthImage(pattern, size)
			levels := source.BuildPyramid(base, tile)
			shapes := make([][2]int, len(levels))
			for i, im := range levels {
				shapes[i] = [2]int{im.Rows, im.Cols}
			}

			store, err := tilestore.Create(out, shapes, tile)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := tilestore.WritePyramid(store, levels)
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Wrote %d tiles across %d levels", n, len(levels)))

			printSuccess("Pyramid built")
			printDetail("%dx%d base image, %dpx tiles, %q pattern", size, size, tile, pattern)
			printFile(out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "pyramid.db", "output database path")
	cmd.Flags().IntVar(&size, "size", 4096, "base image edge length in pixels")
	cmd.Flags().IntVar(&tile, "tile", 64, "tile edge length in pixels")
	cmd.Flags().StringVar(&pattern, "pattern", "rings", "base image pattern (gradient, checker, rings)")
	return cmd
}
