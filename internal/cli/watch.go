package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/quadview/quadview/pkg/chunk"
	"github.com/quadview/quadview/pkg/octree"
)

// watchCommand creates the "watch" command: an interactive terminal view
// of the octree filling in around a camera you steer.
func (c *CLI) watchCommand() *cobra.Command {
	var (
		storePath  string
		configPath string
		size       int
		delay      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch chunks load around an interactive camera",
		Long:  `Watch opens a terminal view of one pyramid level's tile grid. Arrow keys pan, +/- zoom; each cell shows whether its chunk is unloaded, in flight, or resident, so you can see coverage fill in coarse-to-fine as you move.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(configPath)
			if err != nil {
				return err
			}

			loader := chunk.NewLoader(cfg, c.Logger)
			defer loader.Shutdown(context.Background())
			id := loader.Register("watch")

			src, cleanup, err := c.openSource(id, storePath, size, cfg.TileSize, delay)
			if err != nil {
				return err
			}
			defer cleanup()

			tree, err := octree.NewTree(src.LevelShapes(), src.TileSize(), c.Logger)
			if err != nil {
				return err
			}
			sel := octree.NewSelector(tree, loader, src, cfg.AncestorLevels, c.Logger)

			completed := make(chan *chunk.Request, 1024)
			loader.Notify(func(_ chunk.SourceID, req *chunk.Request) {
				select {
				case completed <- req:
				default:
				}
			})

			m := newWatchModel(sel, loader, id, completed)
			_, err = tea.NewProgram(m).Run()
			return err
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "pyramid database to stream from (default: synthetic in-memory pyramid)")
	cmd.Flags().StringVar(&configPath, "config", "", "TOML config file")
	cmd.Flags().IntVar(&size, "size", 4096, "synthetic base image size (ignored with --store)")
	cmd.Flags().DurationVar(&delay, "delay", 25*time.Millisecond, "artificial per-tile latency for the synthetic source")
	return cmd
}

// Grid cell styles.
var (
	cellEmpty   = lipgloss.NewStyle().Foreground(colorDim)
	cellLoading = lipgloss.NewStyle().Foreground(colorYellow)
	cellLoaded  = lipgloss.NewStyle().Foreground(colorGreen)
)

// tickMsg drives the selection loop.
type tickMsg time.Time

func watchTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// watchModel is the bubbletea model for the watch command.
type watchModel struct {
	sel       *octree.Selector
	loader    *chunk.Loader
	sourceID  chunk.SourceID
	completed chan *chunk.Request

	// Camera state in base-image pixels.
	row, col float64
	scale    float64
	viewport float64

	drawn     octree.DrawnSet
	drawable  int
	lastLevel int
}

func newWatchModel(sel *octree.Selector, loader *chunk.Loader, id chunk.SourceID, completed chan *chunk.Request) watchModel {
	return watchModel{
		sel:       sel,
		loader:    loader,
		sourceID:  id,
		completed: completed,
		scale:     1,
		viewport:  512,
		drawn:     make(octree.DrawnSet),
	}
}

func (m watchModel) Init() tea.Cmd {
	return watchTick()
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		step := 64 * m.scale
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			m.row -= step
		case "down", "j":
			m.row += step
		case "left", "h":
			m.col -= step
		case "right", "l":
			m.col += step
		case "+", "=":
			if m.scale > 1 {
				m.scale /= 2
			}
		case "-", "_":
			maxScale := float64(int(1) << (m.sel.Tree().NumLevels() - 1))
			if m.scale < maxScale {
				m.scale *= 2
			}
		}
		return m, nil

	case tickMsg:
		for {
			select {
			case req := <-m.completed:
				m.sel.OnChunkLoaded(octree.Location(req.Key.Loc), req.Payload)
				continue
			default:
			}
			break
		}

		span := m.viewport * m.scale
		v := octree.View{
			TopLeft:     [2]float64{m.row, m.col},
			BottomRight: [2]float64{m.row + span, m.col + span},
			Scale:       m.scale,
			AutoLevel:   true,
		}
		drawable := m.sel.Tick(v, m.drawn)
		for _, ch := range drawable {
			m.drawn[ch.Loc()] = struct{}{}
		}
		m.drawable = len(drawable)
		m.lastLevel = m.sel.Tree().IdealLevel(v)
		return m, watchTick()
	}
	return m, nil
}

func (m watchModel) View() string {
	tree := m.sel.Tree()
	var b strings.Builder

	b.WriteString(StyleTitle.Render(appName) + " ")
	b.WriteString(StyleHighlight.Render(fmt.Sprintf("level %d/%d", m.lastLevel, tree.NumLevels()-1)) + " ")
	b.WriteString(StyleDim.Render(fmt.Sprintf("camera %.0f,%.0f · scale %.0fx", m.row, m.col, m.scale)))
	b.WriteString("\n\n")

	b.WriteString(m.renderGrid(m.lastLevel))
	b.WriteString("\n")

	for i := 0; i < tree.NumLevels(); i++ {
		lv := tree.Level(i)
		loaded := 0
		for r := 0; r < lv.GridRows; r++ {
			for col := 0; col < lv.GridCols; col++ {
				ch := tree.GetChunk(octree.Location{Level: i, Row: r, Col: col}, false)
				if ch != nil && ch.InMemory() {
					loaded++
				}
			}
		}
		b.WriteString(StyleDim.Render(fmt.Sprintf("  level %d: %d/%d loaded", i, loaded, lv.GridRows*lv.GridCols)))
		b.WriteString("\n")
	}

	stats, _ := m.loader.Stats(m.sourceID)
	inflightStyle := StyleDim
	if m.loader.InFlight() > 0 {
		inflightStyle = StyleWarning
	}
	b.WriteString("\n")
	b.WriteString(StyleDim.Render(fmt.Sprintf("  drawable %d · ", m.drawable)))
	b.WriteString(inflightStyle.Render(fmt.Sprintf("in flight %d", m.loader.InFlight())))
	b.WriteString(StyleDim.Render(fmt.Sprintf(" · cancelled %d · cache %d entries",
		stats.Cancelled, m.loader.Cache().Len())))
	b.WriteString("\n\n")
	b.WriteString(StyleDim.Render("  arrows/hjkl pan · +/- zoom · q quit"))
	b.WriteString("\n")
	return b.String()
}

// renderGrid draws one level's tile grid, capped to 48x24 cells around the
// camera so huge levels stay on screen.
func (m watchModel) renderGrid(level int) string {
	tree := m.sel.Tree()
	lv := tree.Level(level)
	if lv == nil {
		return ""
	}

	const maxCols, maxRows = 48, 24
	downscale := float64(int(1) << level)
	tile := float64(tree.TileSize())
	r0 := int(m.row / downscale / tile)
	c0 := int(m.col / downscale / tile)
	r0 = clampInt(r0-2, 0, max(lv.GridRows-maxRows, 0))
	c0 = clampInt(c0-2, 0, max(lv.GridCols-maxCols, 0))

	var b strings.Builder
	for r := r0; r < lv.GridRows && r < r0+maxRows; r++ {
		b.WriteString("  ")
		for col := c0; col < lv.GridCols && col < c0+maxCols; col++ {
			ch := tree.GetChunk(octree.Location{Level: level, Row: r, Col: col}, false)
			switch {
			case ch == nil || ch.State() == octree.NotLoaded:
				b.WriteString(cellEmpty.Render("·"))
			case ch.State() == octree.Loading:
				b.WriteString(cellLoading.Render("░"))
			default:
				b.WriteString(cellLoaded.Render("█"))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
