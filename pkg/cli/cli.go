// Package cli implements the drumgrid command line
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/james-see/drumgrid/pkg/config"
	"github.com/james-see/drumgrid/pkg/emitter"
	"github.com/james-see/drumgrid/pkg/logging"
	"github.com/james-see/drumgrid/pkg/pattern"
	"github.com/james-see/drumgrid/pkg/serializer"
)

// DefaultFile is the pattern file commands work on when --file is not set.
const DefaultFile = "pattern.json"

var errNoPattern = errors.New("no pattern file")

// app carries the global flags and what PersistentPreRunE builds from them.
type app struct {
	cfgPath  string
	logLevel string
	file     string
	seed     int64

	cfg    *config.Config
	logger *log.Logger
	em     *emitter.Emitter
}

// NewRootCmd builds the drumgrid command tree.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "drumgrid",
		Short: "Edit, play and export drum step patterns",
		Long: `drumgrid is a step-sequencer drum machine: eight drum rows, up to 64 bars
of 16, 32 or 64 steps, four velocity levels per cell, tempo and swing.

Patterns live in a JSON file (--file, default pattern.json). Bars, rows and
steps are numbered from 1 on the command line.

Examples:
  drumgrid new --bars 2
  drumgrid set 1 1 1 high
  drumgrid show
  drumgrid play --metronome
  drumgrid export -o groove.mid
  drumgrid tui
  drumgrid serve --port 8080`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	defaultCfg, _ := config.DefaultPath()
	rootCmd.PersistentFlags().StringVar(&a.cfgPath, "config", defaultCfg, "Config file path")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&a.file, "file", "f", DefaultFile, "Pattern file")

	rootCmd.AddCommand(
		a.newCmd(),
		a.showCmd(),
		a.setCmd(),
		a.resizeCmd(),
		a.tempoCmd(),
		a.swingCmd(),
		a.rowCmd(),
		a.copyBarCmd(),
		a.clearBarCmd(),
		a.randomizeCmd(),
		a.humanizeCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.convertCmd(),
		a.timingCmd(),
		a.playCmd(),
		a.portsCmd(),
		a.tuiCmd(),
		a.serveCmd(),
	)
	return rootCmd
}

// setup loads the config and builds the shared logger and emitter.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, "drumgrid")
	if err != nil {
		return err
	}
	em, err := emitter.New(append(cfg.EmitterOptions(), emitter.WithLogger(logger))...)
	if err != nil {
		return err
	}

	a.cfg, a.logger, a.em = cfg, logger, em
	cmd.SetContext(logging.WithContext(cmd.Context(), logger))
	return nil
}

func (a *app) storeOptions() []pattern.Option {
	if a.seed == 0 {
		return nil
	}
	return []pattern.Option{pattern.WithRandom(rand.New(rand.NewSource(a.seed)))}
}

// openStore loads the pattern file into a fresh store.
func (a *app) openStore() (*pattern.Store, error) {
	p, err := a.readPattern(a.file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w at %s (run drumgrid new)", errNoPattern, a.file)
	}
	if err != nil {
		return nil, err
	}
	store := pattern.NewStore(a.storeOptions()...)
	if err := store.Replace(p); err != nil {
		return nil, err
	}
	return store, nil
}

// openOrNewStore is openStore, falling back to the default pattern when the
// file does not exist yet.
func (a *app) openOrNewStore() (*pattern.Store, error) {
	store, err := a.openStore()
	if errors.Is(err, errNoPattern) {
		return pattern.NewStore(a.storeOptions()...), nil
	}
	return store, err
}

// edit applies fn to the pattern file and writes it back when fn succeeds.
func (a *app) edit(fn func(*pattern.Store) error) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	if err := fn(store); err != nil {
		return err
	}
	if err := serializer.SaveFile(a.file, store.Pattern()); err != nil {
		return err
	}
	a.logger.Debug("pattern saved", "file", a.file)
	return nil
}

// readPattern reads a pattern file, a legacy pattern file or a MIDI file.
func (a *app) readPattern(path string) (*pattern.Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch serializer.DetectFormatFromContent(data) {
	case serializer.FormatPattern:
		return serializer.Load(data)
	case serializer.FormatLegacy:
		a.logger.Info("reading legacy pattern", "file", path)
		return serializer.LoadLegacy(data, a.em.Velocities())
	case serializer.FormatMIDI:
		res, err := a.em.ImportFile(data, emitter.ImportOptions{})
		if err != nil {
			return nil, err
		}
		a.reportImport(path, res)
		return res.Pattern, nil
	}
	return nil, fmt.Errorf("%s: %w: unrecognised file", path, serializer.ErrMalformedData)
}

func (a *app) reportImport(path string, res *emitter.ImportResult) {
	for note, n := range res.Unmatched {
		a.logger.Warn("no row plays note", "file", path, "note", note, "count", n)
	}
	if res.Truncated {
		a.logger.Warn("notes past the last bar were dropped", "file", path, "max_bars", pattern.MaxBars)
	}
}

// writePattern writes p as MIDI or pattern JSON depending on the extension.
func (a *app) writePattern(path string, p *pattern.Pattern) error {
	switch serializer.DetectFormat(path) {
	case serializer.FormatMIDI:
		return a.em.WriteFile(p, path)
	case serializer.FormatPattern:
		return serializer.SaveFile(path, p)
	default:
		return fmt.Errorf("can't tell the output format of %s: use .json, .mid or .midi", path)
	}
}

func outputPath(input, output, ext string) string {
	if output != "" {
		return output
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ext
}
