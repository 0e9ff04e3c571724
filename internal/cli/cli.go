// Package cli implements the quadview command-line interface.
//
// This package provides commands for building tile pyramid databases,
// benchmarking the chunk loader against them, and watching the octree fill
// in interactively. The CLI is built using cobra and supports verbose
// logging via the charmbracelet/log library.
//
// # Commands
//
// The main commands are:
//   - build: Generate a tile pyramid and persist it to a SQLite store
//   - bench: Drive a camera path over a pyramid and report loader stats
//   - watch: Interactive terminal view of chunks loading around the camera
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. Loggers are
// passed through the CLI struct to allow structured progress tracking.
package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/quadview/quadview/pkg/buildinfo"
	"github.com/quadview/quadview/pkg/chunk"
)

// appName is the application name used for display.
const appName = "quadview"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
		}),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Quadview streams multiscale image tiles on demand",
		Long:         `Quadview is a chunked image loading toolkit: it builds multiscale tile pyramids, loads the visible tiles asynchronously through a bounded cache and worker pool, and picks coarser stand-ins while the ideal resolution is still on its way.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(c.buildCommand())
	root.AddCommand(c.benchCommand())
	root.AddCommand(c.watchCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig resolves the loader configuration: file (when given), then
// environment overrides, then validation.
func (c *CLI) loadConfig(path string) (chunk.Config, error) {
	cfg := chunk.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = chunk.LoadConfig(path); err != nil {
			return chunk.Config{}, err
		}
	}
	cfg = chunk.FromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return chunk.Config{}, err
	}
	return cfg, nil
}
