package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/james-see/drumgrid/pkg/api"
	"github.com/james-see/drumgrid/pkg/emitter"
	"github.com/james-see/drumgrid/pkg/logging"
	"github.com/james-see/drumgrid/pkg/playback"
	"github.com/james-see/drumgrid/pkg/serializer"
	"github.com/james-see/drumgrid/pkg/tui"
)

// openSink opens the named output port, else the configured one, else the
// first port the driver reports. When none can be opened it returns
// fallback, which may be nil for silent playback.
func (a *app) openSink(logger *log.Logger, name string, fallback emitter.Sink) (emitter.Sink, func()) {
	if name == "" {
		name = a.cfg.MIDI.OutputPort
	}
	if name == "" {
		if ports := emitter.OutPorts(); len(ports) > 0 {
			name = ports[0]
		}
	}
	if name == "" {
		logger.Warn("no MIDI output ports found")
		return fallback, func() {}
	}

	sink, err := emitter.OpenPort(name)
	if err != nil {
		logger.Warn("can't open MIDI output", "err", err)
		return fallback, func() {}
	}
	logger.Info("MIDI output", "port", sink.Name())
	return sink, func() {
		if err := sink.Close(); err != nil {
			logger.Warn("closing MIDI output", "err", err)
		}
	}
}

func (a *app) playCmd() *cobra.Command {
	var (
		port      string
		once      bool
		metronome bool
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play the pattern on a MIDI output port",
		Long: `Play loops the pattern until interrupted. Without a usable MIDI output
the notes are written to the debug log instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			interval, err := a.cfg.Resolution()
			if err != nil {
				return err
			}
			if metronome {
				a.em.SetMetronome(true)
			}

			logger := logging.FromContext(cmd.Context())
			sink, closeSink := a.openSink(logger, port, emitter.LogSink{Logger: logger})
			defer closeSink()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			player := playback.New(store, a.em, sink,
				playback.WithLogger(logger),
				playback.WithLoop(!once),
				playback.WithInterval(interval),
			)
			tr := store.Transport()
			fmt.Fprintf(cmd.OutOrStdout(), "Playing %s: %d bar(s) at %.1f BPM (ctrl+c to stop)\n", a.file, tr.Bars, tr.TempoBPM)
			if err := player.Run(ctx); err != nil {
				return err
			}
			if n := player.Failures(); n > 0 {
				logger.Warn("some notes were not delivered", "failures", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "MIDI output port (substring match)")
	cmd.Flags().BoolVar(&once, "once", false, "Stop after one pass instead of looping")
	cmd.Flags().BoolVar(&metronome, "metronome", false, "Click on every beat")
	return cmd
}

func (a *app) portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List MIDI output ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports := emitter.OutPorts()
			if len(ports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No MIDI output ports found")
				return nil
			}
			for i, name := range ports {
				fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", i, name)
			}
			return nil
		},
	}
}

func (a *app) tuiCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch interactive terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openOrNewStore()
			if err != nil {
				return err
			}
			interval, err := a.cfg.Resolution()
			if err != nil {
				return err
			}
			// log output would draw over the alt screen, so a missing port
			// plays silently
			sink, closeSink := a.openSink(logging.FromContext(cmd.Context()), port, nil)
			defer closeSink()

			return tui.Run(store, a.em, tui.Options{Path: a.file, Sink: sink, Interval: interval})
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "MIDI output port (substring match)")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var (
		port int
		save bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = a.cfg.Server.Port
			}
			store, err := a.openOrNewStore()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Starting API server on port %d...\n", port)
			fmt.Fprintf(cmd.OutOrStdout(), "Swagger docs available at http://localhost:%d/swagger/index.html\n", port)
			if err := api.NewServer(store, a.em, logging.FromContext(ctx)).Serve(ctx, port); err != nil {
				return err
			}
			if !save {
				return nil
			}
			if err := serializer.SaveFile(a.file, store.Pattern()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", a.file)
			return nil
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Server port")
	cmd.Flags().BoolVar(&save, "save", false, "Write the pattern back to --file on shutdown")
	return cmd
}
