// Package tui provides a terminal grid editor for drumgrid
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/james-see/drumgrid/pkg/emitter"
	"github.com/james-see/drumgrid/pkg/logging"
	"github.com/james-see/drumgrid/pkg/pattern"
	"github.com/james-see/drumgrid/pkg/playback"
	"github.com/james-see/drumgrid/pkg/serializer"
	"github.com/james-see/drumgrid/pkg/timing"
)

// Acid-inspired color scheme
var (
	acidGreen  = lipgloss.Color("#39FF14")
	acidYellow = lipgloss.Color("#FFFF00")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(acidGreen).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	rowStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			Width(11)

	selectedRowStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true).
			Width(11)

	cursorStyle = lipgloss.NewStyle().
			Foreground(darkGray).
			Background(acidGreen)

	playheadStyle = lipgloss.NewStyle().
			Foreground(acidYellow).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(acidYellow).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(acidGreen).
			Padding(1, 2)
)

// levelGlyphs draws Off, Low, Mid and High.
var levelGlyphs = [...]string{"·", "○", "◐", "●"}

// State represents the current TUI state
type State int

const (
	StateGrid State = iota
	StateFilePicker
	StateSaveAs
	StateBusy
)

// Options configures the editor.
type Options struct {
	Path     string        // pattern file that save writes to
	Sink     emitter.Sink  // live playback output; nil plays silently
	Interval time.Duration // playback clock resolution
	Logger   *log.Logger
}

// Model represents the TUI model
type Model struct {
	state  State
	store  *pattern.Store
	em     *emitter.Emitter
	player *playback.Player
	steps  chan timing.Cursor

	row, step  int
	playing    bool
	playhead   timing.Cursor
	stopPlay   context.CancelFunc
	clipboard  *pattern.Snapshot
	path       string
	status     string
	err        error
	filePicker filepicker.Model
	input      textinput.Model
	spinner    spinner.Model
	width      int
	height     int
}

type stepMsg timing.Cursor

type playbackDoneMsg struct{ err error }

type fileDoneMsg struct {
	status string
	err    error
}

// New creates a new TUI model editing store.
func New(store *pattern.Store, em *emitter.Emitter, opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	steps := make(chan timing.Cursor, 64)
	playerOpts := []playback.Option{
		playback.WithLogger(logger),
		playback.WithStepHook(func(c timing.Cursor) {
			select {
			case steps <- c:
			default:
			}
		}),
	}
	if opts.Interval > 0 {
		playerOpts = append(playerOpts, playback.WithInterval(opts.Interval))
	}

	fp := filepicker.New()
	fp.AllowedTypes = []string{".json", ".mid", ".midi"}
	fp.CurrentDirectory, _ = os.Getwd()

	ti := textinput.New()
	ti.Placeholder = "pattern.json"
	ti.CharLimit = 256

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(acidGreen)

	return Model{
		state:      StateGrid,
		store:      store,
		em:         em,
		player:     playback.New(store, em, opts.Sink, playerOpts...),
		steps:      steps,
		path:       opts.Path,
		filePicker: fp,
		input:      ti,
		spinner:    s,
	}
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForStep(m.steps))
}

func waitForStep(ch <-chan timing.Cursor) tea.Cmd {
	return func() tea.Msg {
		return stepMsg(<-ch)
	}
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// The file picker needs to receive all messages
	if m.state == StateFilePicker {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.String() {
			case "esc":
				m.state = StateGrid
				return m, nil
			case "ctrl+c":
				return m.quit()
			}
		}

		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(msg)
		if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
			m.state = StateBusy
			return m, tea.Batch(m.spinner.Tick, m.openFile(path))
		}
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.SetHeight(msg.Height - 10)
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case StateGrid:
			return m.updateGrid(msg)
		case StateSaveAs:
			return m.updateSaveAs(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stepMsg:
		m.playhead = timing.Cursor(msg)
		return m, waitForStep(m.steps)

	case playbackDoneMsg:
		m.playing = false
		m.stopPlay = nil
		if msg.err != nil {
			m.err = msg.err
		}
		return m, nil

	case fileDoneMsg:
		m.state = StateGrid
		m.status = msg.status
		m.err = msg.err
		m.clampCursor()
		return m, nil
	}

	return m, nil
}

func (m Model) updateGrid(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.err = nil
	tr := m.store.Transport()
	bar := m.store.EditBar()

	switch msg.String() {
	case "up", "k":
		if m.row > 0 {
			m.row--
		}
	case "down", "j":
		if m.row < pattern.NumRows-1 {
			m.row++
		}
	case "left", "h":
		if m.step > 0 {
			m.step--
		}
	case "right", "l":
		if m.step < tr.StepsPerBar-1 {
			m.step++
		}
	case "enter", " ":
		cur, err := m.store.Velocity(bar, m.row, m.step)
		if err == nil {
			err = m.store.SetVelocity(bar, m.row, m.step, cur.Next())
		}
		m.err = err
	case "0", "1", "2", "3":
		level, _ := pattern.ParseLevel(msg.String())
		m.err = m.store.SetVelocity(bar, m.row, m.step, level)
	case "[":
		if bar > 0 {
			m.err = m.store.SetEditBar(bar - 1)
		}
	case "]":
		if bar < tr.Bars-1 {
			m.err = m.store.SetEditBar(bar + 1)
		}
	case "n":
		if m.err = m.store.SetBars(tr.Bars + 1); m.err == nil {
			m.err = m.store.SetEditBar(tr.Bars)
		}
	case "N":
		m.err = m.store.SetBars(tr.Bars - 1)
	case "r":
		m.err = m.store.SetStepsPerBar(nextResolution(tr.StepsPerBar))
		m.clampCursor()
	case "+", "=":
		m.err = m.store.SetTempo(tr.TempoBPM + 1)
	case "-":
		m.err = m.store.SetTempo(tr.TempoBPM - 1)
	case ">", ".":
		m.err = m.store.SetSwing(roundSwing(tr.Swing + 0.05))
	case "<", ",":
		m.err = m.store.SetSwing(roundSwing(tr.Swing - 0.05))
	case "c":
		snap, err := m.store.CopyBar(bar)
		if err == nil {
			m.clipboard = &snap
			m.status = fmt.Sprintf("copied bar %d", bar+1)
		}
		m.err = err
	case "v":
		if m.clipboard == nil {
			m.status = "clipboard is empty"
			break
		}
		if m.err = m.store.PasteBar(bar, *m.clipboard); m.err == nil {
			m.status = fmt.Sprintf("pasted into bar %d", bar+1)
		}
	case "x":
		m.err = m.store.ClearBar(bar)
	case "R":
		m.err = m.store.Randomize(bar, 0.3, pattern.Low, pattern.High)
	case "H":
		m.err = m.store.Humanize(bar, 1)
	case "m":
		on := !m.em.Metronome().Enabled
		m.em.SetMetronome(on)
		m.status = fmt.Sprintf("metronome %s", onOff(on))
	case "p":
		return m.togglePlayback()
	case "s":
		m.state = StateSaveAs
		m.input.SetValue(m.path)
		m.input.Focus()
		return m, textinput.Blink
	case "o":
		m.state = StateFilePicker
		return m, m.filePicker.Init()
	case "e":
		m.state = StateBusy
		return m, tea.Batch(m.spinner.Tick, m.exportMIDI())
	case "q", "ctrl+c":
		return m.quit()
	}
	return m, nil
}

func (m Model) updateSaveAs(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.state = StateGrid
		m.input.Blur()
		return m, nil
	case "enter":
		path := strings.TrimSpace(m.input.Value())
		if path == "" {
			return m, nil
		}
		m.input.Blur()
		m.path = path
		m.state = StateBusy
		return m, tea.Batch(m.spinner.Tick, m.savePattern(path))
	case "ctrl+c":
		return m.quit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) togglePlayback() (tea.Model, tea.Cmd) {
	if m.playing {
		if m.stopPlay != nil {
			m.stopPlay()
		}
		return m, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.stopPlay = cancel
	m.playing = true
	player := m.player
	return m, func() tea.Msg {
		return playbackDoneMsg{err: player.Run(ctx)}
	}
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.stopPlay != nil {
		m.stopPlay()
	}
	m.player.Stop()
	return m, tea.Quit
}

func (m *Model) clampCursor() {
	tr := m.store.Transport()
	if m.step >= tr.StepsPerBar {
		m.step = tr.StepsPerBar - 1
	}
}

func (m Model) savePattern(path string) tea.Cmd {
	p := m.store.Pattern()
	return func() tea.Msg {
		if err := serializer.SaveFile(path, p); err != nil {
			return fileDoneMsg{err: err}
		}
		return fileDoneMsg{status: "saved " + filepath.Base(path)}
	}
}

func (m Model) exportMIDI() tea.Cmd {
	p := m.store.Pattern()
	out := midiPath(m.path)
	em := m.em
	return func() tea.Msg {
		if err := em.WriteFile(p, out); err != nil {
			return fileDoneMsg{err: err}
		}
		return fileDoneMsg{status: "exported " + filepath.Base(out)}
	}
}

func (m Model) openFile(path string) tea.Cmd {
	store, em := m.store, m.em
	return func() tea.Msg {
		p, err := loadAny(path, store, em)
		if err == nil {
			err = store.Replace(p)
		}
		if err != nil {
			return fileDoneMsg{err: err}
		}
		return fileDoneMsg{status: "opened " + filepath.Base(path)}
	}
}

// loadAny reads a pattern file, a legacy pattern file or a MIDI file.
func loadAny(path string, store *pattern.Store, em *emitter.Emitter) (*pattern.Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch serializer.DetectFormatFromContent(data) {
	case serializer.FormatPattern:
		return serializer.Load(data)
	case serializer.FormatLegacy:
		return serializer.LoadLegacy(data, em.Velocities())
	case serializer.FormatMIDI:
		res, err := em.ImportFile(data, emitter.ImportOptions{Rows: store.Rows(), StepsPerBar: store.Transport().StepsPerBar})
		if err != nil {
			return nil, err
		}
		return res.Pattern, nil
	}
	return nil, fmt.Errorf("%s: unrecognised file", filepath.Base(path))
}

func midiPath(path string) string {
	if path == "" {
		return "pattern.mid"
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".mid"
}

func nextResolution(steps int) int {
	for i, r := range pattern.Resolutions {
		if r == steps {
			return pattern.Resolutions[(i+1)%len(pattern.Resolutions)]
		}
	}
	return pattern.DefaultStepsPerBar
}

func roundSwing(s float64) float64 {
	s = float64(int(s*100+0.5)) / 100
	if s < pattern.MinSwing {
		return pattern.MinSwing
	}
	if s > pattern.MaxSwing {
		return pattern.MaxSwing
	}
	return s
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	switch m.state {
	case StateGrid:
		s.WriteString(m.viewGrid())
	case StateFilePicker:
		s.WriteString(m.viewFilePicker())
	case StateSaveAs:
		s.WriteString(m.viewSaveAs())
	case StateBusy:
		s.WriteString(boxStyle.Render(fmt.Sprintf("%s Working...", m.spinner.View())))
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("arrows: move • enter: cycle • 0-3: level • [/]: bar • n/N: add/drop bar • r: resolution\n" +
		"+/-: tempo • </>: swing • c/v/x: copy/paste/clear • R/H: randomize/humanize\n" +
		"p: play • m: metronome • s: save • o: open • e: export MIDI • q: quit"))

	return s.String()
}

func (m Model) viewGrid() string {
	var s strings.Builder
	p := m.store.Pattern()
	bar := m.store.EditBar()
	tr := m.store.Transport()

	state := "■ stopped"
	if m.playing {
		state = fmt.Sprintf("▶ bar %d step %d", m.playhead.Bar+1, m.playhead.Step+1)
	}
	s.WriteString(titleStyle.Render(fmt.Sprintf(" BAR %d/%d  %.1f BPM  SWING %.2f  %d STEPS  %s ",
		bar+1, tr.Bars, tr.TempoBPM, tr.Swing, tr.StepsPerBar, state)))
	s.WriteString("\n")

	for r, row := range p.Rows {
		label := rowStyle
		if r == m.row {
			label = selectedRowStyle
		}
		s.WriteString(label.Render(row.Name))
		for st := 0; st < p.StepsPerBar; st++ {
			if st > 0 && tr.IsBeat(st) {
				s.WriteString(" ")
			}
			glyph := levelGlyphs[p.Bars[bar].Cell(r, st)]
			switch {
			case r == m.row && st == m.step:
				glyph = cursorStyle.Render(glyph)
			case m.playing && m.playhead.Bar == bar && m.playhead.Step == st:
				glyph = playheadStyle.Render(glyph)
			}
			s.WriteString(glyph)
		}
		s.WriteString("\n")
	}

	level := p.Bars[bar].Cell(m.row, m.step)
	s.WriteString(statusStyle.Render(fmt.Sprintf("%s step %d: %s (velocity %d)  metronome %s",
		p.Rows[m.row].Name, m.step+1, level, m.em.Velocities().Velocity(level), onOff(m.em.Metronome().Enabled))))
	if m.err != nil {
		s.WriteString("\n")
		s.WriteString(errorStyle.Render("✗ " + m.err.Error()))
	} else if m.status != "" {
		s.WriteString("\n")
		s.WriteString(statusStyle.Render(m.status))
	}

	return boxStyle.Render(s.String())
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" OPEN PATTERN OR MIDI FILE "))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: back to grid"))

	return s.String()
}

func (m Model) viewSaveAs() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SAVE PATTERN "))
	s.WriteString("\n\n")
	s.WriteString(m.input.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("enter: save • esc: cancel"))

	return boxStyle.Render(s.String())
}

func asciiLogo() string {
	logo := `
   ___  ___ _   _ __  __  ___ ___ ___ ___
  |   \| _ \ | | |  \/  |/ __| _ \_ _|   \
  | |) |   / |_| | |\/| | (_ |   /| || |) |
  |___/|_|_\\___/|_|  |_|\___|_|_\___|___/
`
	return lipgloss.NewStyle().Foreground(acidGreen).Render(logo)
}

// Run starts the TUI application
func Run(store *pattern.Store, em *emitter.Emitter, opts Options) error {
	p := tea.NewProgram(New(store, em, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
