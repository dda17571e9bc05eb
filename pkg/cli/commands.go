package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/james-see/drumgrid/pkg/emitter"
	"github.com/james-see/drumgrid/pkg/pattern"
	"github.com/james-see/drumgrid/pkg/serializer"
)

var levelChars = [...]byte{'.', '-', 'o', 'X'}

// index parses a 1-based position argument into a 0-based index.
func index(arg, what string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", what, arg, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: %s %d, numbering starts at 1", pattern.ErrOutOfRange, what, n)
	}
	return n - 1, nil
}

func parseFloat(arg, what string) (float64, error) {
	f, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", what, arg, err)
	}
	return f, nil
}

func (a *app) newCmd() *cobra.Command {
	var (
		bars  int
		steps int
		tempo float64
		swing float64
		force bool
	)
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create an empty pattern file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(a.file); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", a.file)
			}
			store := pattern.NewStore()
			if err := store.Resize(bars, steps); err != nil {
				return err
			}
			if err := store.SetTempo(tempo); err != nil {
				return err
			}
			if err := store.SetSwing(swing); err != nil {
				return err
			}
			if err := serializer.SaveFile(a.file, store.Pattern()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s: %d bar(s) of %d steps at %.1f BPM\n", a.file, bars, steps, tempo)
			return nil
		},
	}
	cmd.Flags().IntVar(&bars, "bars", 1, "Number of bars (1-64)")
	cmd.Flags().IntVar(&steps, "steps", pattern.DefaultStepsPerBar, "Steps per bar (16, 32 or 64)")
	cmd.Flags().Float64Var(&tempo, "tempo", pattern.DefaultTempo, "Tempo in BPM (40-240)")
	cmd.Flags().Float64Var(&swing, "swing", 0, "Swing amount (0-0.5)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the pattern grid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderPattern(store.Pattern()))
			return nil
		},
	}
}

// renderPattern draws every bar as text, one character per cell.
func renderPattern(p *pattern.Pattern) string {
	var s strings.Builder
	tr := p.Transport()
	fmt.Fprintf(&s, "%.1f BPM  swing %.2f  %d steps per bar  %d bar(s)\n", p.TempoBPM, p.Swing, p.StepsPerBar, len(p.Bars))
	for b, bar := range p.Bars {
		fmt.Fprintf(&s, "\nbar %d\n", b+1)
		for r, row := range p.Rows {
			fmt.Fprintf(&s, "%-10s %3d ", row.Name, row.MidiNote)
			for st := 0; st < p.StepsPerBar; st++ {
				if st > 0 && tr.IsBeat(st) {
					s.WriteByte(' ')
				}
				s.WriteByte(levelChars[bar.Cell(r, st)])
			}
			s.WriteByte('\n')
		}
	}
	return s.String()
}

func (a *app) setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <bar> <row> <step> <level>",
		Short: "Set one cell to off, low, mid or high (or 0-3)",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			bar, err := index(args[0], "bar")
			if err != nil {
				return err
			}
			row, err := index(args[1], "row")
			if err != nil {
				return err
			}
			step, err := index(args[2], "step")
			if err != nil {
				return err
			}
			level, err := pattern.ParseLevel(args[3])
			if err != nil {
				return err
			}
			return a.edit(func(s *pattern.Store) error {
				return s.SetVelocity(bar, row, step, level)
			})
		},
	}
}

func (a *app) resizeCmd() *cobra.Command {
	var bars, steps int
	cmd := &cobra.Command{
		Use:   "resize",
		Short: "Change the number of bars or the steps per bar",
		Long: `Resize keeps every cell whose bar and step index still exist and
turns new cells off. Lowering the resolution drops the steps past the end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.edit(func(s *pattern.Store) error {
				tr := s.Transport()
				if !cmd.Flags().Changed("bars") {
					bars = tr.Bars
				}
				if !cmd.Flags().Changed("steps") {
					steps = tr.StepsPerBar
				}
				return s.Resize(bars, steps)
			})
		},
	}
	cmd.Flags().IntVar(&bars, "bars", 0, "Number of bars (1-64)")
	cmd.Flags().IntVar(&steps, "steps", 0, "Steps per bar (16, 32 or 64)")
	return cmd
}

func (a *app) tempoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tempo <bpm>",
		Short: "Set the tempo (40-240 BPM)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bpm, err := parseFloat(args[0], "tempo")
			if err != nil {
				return err
			}
			return a.edit(func(s *pattern.Store) error { return s.SetTempo(bpm) })
		},
	}
}

func (a *app) swingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "swing <amount>",
		Short: "Set the swing amount (0-0.5)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			swing, err := parseFloat(args[0], "swing")
			if err != nil {
				return err
			}
			return a.edit(func(s *pattern.Store) error { return s.SetSwing(swing) })
		},
	}
}

func (a *app) rowCmd() *cobra.Command {
	var (
		name string
		note int
	)
	cmd := &cobra.Command{
		Use:   "row <row>",
		Short: "Rename a row or change its MIDI note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := index(args[0], "row")
			if err != nil {
				return err
			}
			if note < 0 || note > pattern.MaxNote {
				return fmt.Errorf("%w: note %d", pattern.ErrOutOfRange, note)
			}
			return a.edit(func(s *pattern.Store) error {
				cur, err := s.Row(row)
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("name") {
					name = cur.Name
				}
				n := cur.MidiNote
				if cmd.Flags().Changed("note") {
					n = uint8(note)
				}
				return s.SetRow(row, name, n)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Row name")
	cmd.Flags().IntVar(&note, "note", 0, "MIDI note number (0-127)")
	return cmd
}

func (a *app) copyBarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy-bar <from> <to>",
		Short: "Copy one bar over another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := index(args[0], "bar")
			if err != nil {
				return err
			}
			to, err := index(args[1], "bar")
			if err != nil {
				return err
			}
			return a.edit(func(s *pattern.Store) error {
				snap, err := s.CopyBar(from)
				if err != nil {
					return err
				}
				return s.PasteBar(to, snap)
			})
		},
	}
}

func (a *app) clearBarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-bar <bar>",
		Short: "Turn every cell of a bar off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bar, err := index(args[0], "bar")
			if err != nil {
				return err
			}
			return a.edit(func(s *pattern.Store) error { return s.ClearBar(bar) })
		},
	}
}

func (a *app) randomizeCmd() *cobra.Command {
	var (
		density float64
		lo, hi  string
	)
	cmd := &cobra.Command{
		Use:   "randomize <bar>",
		Short: "Fill a bar with random hits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bar, err := index(args[0], "bar")
			if err != nil {
				return err
			}
			minLevel, err := pattern.ParseLevel(lo)
			if err != nil {
				return err
			}
			maxLevel, err := pattern.ParseLevel(hi)
			if err != nil {
				return err
			}
			return a.edit(func(s *pattern.Store) error {
				return s.Randomize(bar, density, minLevel, maxLevel)
			})
		},
	}
	cmd.Flags().Float64Var(&density, "density", 0.3, "Probability that a cell gets a hit (0-1)")
	cmd.Flags().StringVar(&lo, "min", "low", "Quietest level")
	cmd.Flags().StringVar(&hi, "max", "high", "Loudest level")
	cmd.Flags().Int64Var(&a.seed, "seed", 0, "Random seed (0 picks one)")
	return cmd
}

func (a *app) humanizeCmd() *cobra.Command {
	var jitter int
	cmd := &cobra.Command{
		Use:   "humanize <bar>",
		Short: "Nudge the levels of existing hits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bar, err := index(args[0], "bar")
			if err != nil {
				return err
			}
			return a.edit(func(s *pattern.Store) error { return s.Humanize(bar, jitter) })
		},
	}
	cmd.Flags().IntVar(&jitter, "jitter", 1, "Maximum level change per hit")
	cmd.Flags().Int64Var(&a.seed, "seed", 0, "Random seed (0 picks one)")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the pattern as a Standard MIDI File",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			out := outputPath(a.file, output, ".mid")
			if err := a.em.WriteFile(store.Pattern(), out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s -> %s\n", a.file, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output .mid file path")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	var (
		steps    int
		quantize bool
	)
	cmd := &cobra.Command{
		Use:   "import <input.mid>",
		Short: "Replace the pattern with the drum notes of a MIDI file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := emitter.ImportOptions{StepsPerBar: steps, Quantize: quantize}
			if store, err := a.openStore(); err == nil {
				opts.Rows = store.Rows()
			} else if !errors.Is(err, errNoPattern) {
				return err
			}
			res, err := a.em.ReadFile(args[0], opts)
			if err != nil {
				return err
			}
			a.reportImport(args[0], res)
			if err := serializer.SaveFile(a.file, res.Pattern); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s -> %s: %d hit(s) in %d bar(s)\n",
				args[0], a.file, res.Pattern.HitCount(), len(res.Pattern.Bars))
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", pattern.DefaultStepsPerBar, "Steps per bar (16, 32 or 64)")
	cmd.Flags().BoolVar(&quantize, "quantize", false, "Quantize the file before snapping notes to steps")
	return cmd
}

func (a *app) convertCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "convert <input>",
		Short: "Auto-detect and convert between pattern JSON, legacy JSON and MIDI",
		Long:  `Automatically detects the input format from its content and writes the output format named by the output file extension.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			p, err := a.readPattern(input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Converting %s -> %s\n", input, output)
			return a.writePattern(output, p)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path (required)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func (a *app) timingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timing",
		Short: "Print step, bar and pattern durations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			tr := store.Transport()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tempo:        %.2f BPM\n", tr.TempoBPM)
			fmt.Fprintf(out, "swing:        %.2f\n", tr.Swing)
			fmt.Fprintf(out, "steps/bar:    %d (%d per beat)\n", tr.StepsPerBar, tr.StepsPerBeat())
			fmt.Fprintf(out, "nominal step: %v\n", tr.NominalStep())
			fmt.Fprintf(out, "even step:    %v\n", tr.StepDuration(0))
			fmt.Fprintf(out, "odd step:     %v\n", tr.StepDuration(1))
			fmt.Fprintf(out, "gate:         %v\n", a.em.Gate(tr, 0))
			fmt.Fprintf(out, "bar:          %v\n", tr.BarDuration())
			fmt.Fprintf(out, "pattern:      %v (%d bar(s))\n", tr.PatternDuration(), tr.Bars)
			return nil
		},
	}
}
