package cli

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/quadview/quadview/pkg/chunk"
	"github.com/quadview/quadview/pkg/octree"
	"github.com/quadview/quadview/pkg/source"
	"github.com/quadview/quadview/pkg/source/tilestore"
)

// benchCommand creates the "bench" command: drive a scripted camera path
// over a pyramid and report what the loader did.
func (c *CLI) benchCommand() *cobra.Command {
	var (
		storePath  string
		configPath string
		size       int
		delay      time.Duration
		ticks      int
		interval   time.Duration
		viewport   float64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark chunk loading along a camera path",
		Long:  `Bench pans and zooms a synthetic camera over a tile pyramid, ticking the level-of-detail selector the way a renderer would, and reports cache, pool, and cancellation statistics at the end.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(configPath)
			if err != nil {
				return err
			}

			loader := chunk.NewLoader(cfg, c.Logger)
			defer loader.Shutdown(context.Background())
			id := loader.Register("bench")

			src, cleanup, err := c.openSource(id, storePath, size, cfg.TileSize, delay)
			if err != nil {
				return err
			}
			defer cleanup()
			if storePath != "" {
				printInfo("streaming tiles from %s", storePath)
			} else {
				printInfo("using a synthetic %dpx pyramid with %s latency", size, delay)
			}

			completed := make(chan *chunk.Request, 1024)
			loader.Notify(func(_ chunk.SourceID, req *chunk.Request) {
				select {
				case completed <- req:
				default: // bench never blocks a worker on a full channel
				}
			})

			tree, err := octree.NewTree(src.LevelShapes(), src.TileSize(), c.Logger)
			if err != nil {
				return err
			}
			sel := octree.NewSelector(tree, loader, src, cfg.AncestorLevels, c.Logger)

			prog := newProgress(c.Logger)
			drawn := make(octree.DrawnSet)
			maxDrawable := 0

			rows := float64(src.LevelShapes()[0][0])
			cols := float64(src.LevelShapes()[0][1])
			maxScale := math.Pow(2, float64(tree.NumLevels()-1))

			for i := 0; i < ticks; i++ {
				for applied := true; applied; {
					select {
					case req := <-completed:
						sel.OnChunkLoaded(octree.Location(req.Key.Loc), req.Payload)
					default:
						applied = false
					}
				}

				v := cameraAt(float64(i)/float64(max(ticks-1, 1)), rows, cols, viewport, maxScale)
				drawable := sel.Tick(v, drawn)
				if len(drawable) > maxDrawable {
					maxDrawable = len(drawable)
				}
				// The imaginary renderer gets everything on screen in one
				// frame; real ones trickle, but that only shifts the stats.
				for _, ch := range drawable {
					drawn[ch.Loc()] = struct{}{}
				}
				time.Sleep(interval)
			}
			loader.WaitForSource(context.Background(), id)
			prog.done(fmt.Sprintf("Ran %d ticks", ticks))

			stats, _ := loader.Stats(id)
			fmt.Println(StyleTitle.Render("Loader"))
			printKeyValue("sync loads", fmt.Sprintf("%d", stats.SyncLoads))
			printKeyValue("async loads", fmt.Sprintf("%d", stats.AsyncLoads))
			printKeyValue("cache hits", fmt.Sprintf("%d", stats.CacheHits))
			printKeyValue("cancelled", fmt.Sprintf("%d", stats.Cancelled))
			printKeyValue("failed", fmt.Sprintf("%d", stats.Failed))
			printKeyValue("avg load", stats.AvgLoad.Round(time.Microsecond).String())
			printKeyValue("stale drops", fmt.Sprintf("%d", loader.StaleDrops()))

			fmt.Println(StyleTitle.Render("Cache"))
			printKeyValue("entries", fmt.Sprintf("%d", loader.Cache().Len()))
			printKeyValue("bytes", fmt.Sprintf("%d / %d", loader.Cache().Bytes(), loader.Cache().Capacity()))

			fmt.Println(StyleTitle.Render("Tree"))
			for i := 0; i < tree.NumLevels(); i++ {
				lv := tree.Level(i)
				printKeyValue(fmt.Sprintf("level %d", i),
					fmt.Sprintf("%dx%d tiles, %d touched", lv.GridRows, lv.GridCols, lv.NumChunks()))
			}
			printKeyValue("max drawable", fmt.Sprintf("%d", maxDrawable))

			if stats.Failed > 0 {
				printError("%d loads failed", stats.Failed)
			} else {
				fmt.Println(StyleSuccess.Render(iconSuccess + " no failed loads"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "pyramid database to stream from (default: synthetic in-memory pyramid)")
	cmd.Flags().StringVar(&configPath, "config", "", "TOML config file")
	cmd.Flags().IntVar(&size, "size", 4096, "synthetic base image size (ignored with --store)")
	cmd.Flags().DurationVar(&delay, "delay", 5*time.Millisecond, "artificial per-tile latency for the synthetic source")
	cmd.Flags().IntVar(&ticks, "ticks", 120, "number of camera ticks")
	cmd.Flags().DurationVar(&interval, "interval", 16*time.Millisecond, "pause between ticks")
	cmd.Flags().Float64Var(&viewport, "viewport", 512, "viewport edge length in screen pixels")
	return cmd
}

// openSource resolves the bench/watch data source: a disk-backed store
// when a path is given, otherwise a synthetic delayed in-memory pyramid.
func (c *CLI) openSource(id chunk.SourceID, storePath string, size, tileSize int, delay time.Duration) (source.Source, func(), error) {
	if storePath != "" {
		store, err := tilestore.Open(storePath)
		if err != nil {
			return nil, nil, err
		}
		c.Logger.Debug("opened pyramid store", "path", storePath, "levels", len(store.LevelShapes()))
		return tilestore.NewSource(id, store), func() { store.Close() }, nil
	}

	mem := source.NewMem(id, synthImage("rings", size), tileSize)
	var src source.Source = mem
	if delay > 0 {
		src = source.NewDelayed(mem, delay)
	}
	return src, func() {}, nil
}

// cameraAt returns the view at path position t in [0, 1]: the first half
// pans diagonally across the image at full resolution, the second half
// zooms out from the far corner until the whole image fits.
func cameraAt(t, rows, cols, viewport, maxScale float64) octree.View {
	if t < 0.5 {
		p := t * 2
		r := p * (rows - viewport)
		c := p * (cols - viewport)
		return octree.View{
			TopLeft:     [2]float64{r, c},
			BottomRight: [2]float64{r + viewport, c + viewport},
			Scale:       1,
			AutoLevel:   true,
		}
	}

	p := (t - 0.5) * 2
	scale := math.Pow(maxScale, p) // 1 → maxScale, exponential
	span := viewport * scale
	return octree.View{
		TopLeft:     [2]float64{rows - span, cols - span},
		BottomRight: [2]float64{rows, cols},
		Scale:       scale,
		AutoLevel:   true,
	}
}
