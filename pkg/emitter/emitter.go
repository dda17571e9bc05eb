// Package emitter turns drum patterns into MIDI: Standard MIDI Files for
// export and note events for a live sink.
package emitter

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"

	"github.com/james-see/drumgrid/pkg/pattern"
	"github.com/james-see/drumgrid/pkg/timing"
)

// DrumChannel is General MIDI channel 10, zero-based.
const DrumChannel uint8 = 9

// Emitter defaults
const (
	DefaultTicksPerQuarter uint16  = 480
	DefaultGateRatio       float64 = 0.75

	// MinTicksPerQuarter gives 64 steps per bar two ticks each.
	MinTicksPerQuarter uint16 = 32
)

// ErrSinkUnavailable is returned when the live sink is missing or a send
// to it fails. Playback treats it as a notice, never as fatal.
var ErrSinkUnavailable = errors.New("midi sink unavailable")

// Kind distinguishes note-on from note-off events.
type Kind uint8

const (
	NoteOn Kind = iota
	NoteOff
)

func (k Kind) String() string {
	if k == NoteOff {
		return "note-off"
	}
	return "note-on"
}

// Event is one live MIDI note event.
type Event struct {
	Kind     Kind
	Channel  uint8
	Note     uint8
	Velocity uint8
}

// Message encodes the event as a MIDI channel message.
func (e Event) Message() midi.Message {
	if e.Kind == NoteOff {
		return midi.NoteOff(e.Channel, e.Note)
	}
	return midi.NoteOn(e.Channel, e.Note, e.Velocity)
}

// Off returns the note-off that ends e.
func (e Event) Off() Event {
	return Event{Kind: NoteOff, Channel: e.Channel, Note: e.Note}
}

// Sink receives live events. Implementations should not block.
type Sink interface {
	Send(ev Event) error
	Available() bool
}

// StepSource yields the hits of one step. *pattern.Store implements it.
type StepSource interface {
	Step(bar, step int) (pattern.Step, error)
}

// Metronome configures the quarter-note click.
type Metronome struct {
	Enabled  bool
	Channel  uint8
	Note     uint8
	Velocity uint8
}

// DefaultMetronome clicks a hi wood block on the drum channel.
var DefaultMetronome = Metronome{Enabled: false, Channel: DrumChannel, Note: 76, Velocity: 70}

// Emitter converts pattern steps into MIDI. It holds no pattern state and
// no clock; callers decide when each step happens.
type Emitter struct {
	velocities      pattern.VelocityMap
	ticksPerQuarter uint16
	gateRatio       float64
	logger          *log.Logger

	mu        sync.RWMutex
	metronome Metronome
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithVelocities sets the level to velocity mapping.
func WithVelocities(vm pattern.VelocityMap) Option {
	return func(e *Emitter) { e.velocities = vm }
}

// WithTicksPerQuarter sets the export resolution.
func WithTicksPerQuarter(tpq uint16) Option {
	return func(e *Emitter) { e.ticksPerQuarter = tpq }
}

// WithGateRatio sets note length as a fraction of a step, in (0, 1).
func WithGateRatio(r float64) Option {
	return func(e *Emitter) { e.gateRatio = r }
}

// WithMetronome configures the click.
func WithMetronome(m Metronome) Option {
	return func(e *Emitter) { e.metronome = m }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Emitter) { e.logger = l }
}

// New creates an Emitter. Invalid settings are reported here rather than on
// first use.
func New(opts ...Option) (*Emitter, error) {
	e := &Emitter{
		velocities:      pattern.DefaultVelocities,
		ticksPerQuarter: DefaultTicksPerQuarter,
		gateRatio:       DefaultGateRatio,
		metronome:       DefaultMetronome,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.New(io.Discard)
	}

	if err := e.velocities.Validate(); err != nil {
		return nil, fmt.Errorf("invalid velocities: %w", err)
	}
	if !(e.gateRatio > 0 && e.gateRatio < 1) {
		return nil, fmt.Errorf("invalid gate ratio %v: must be between 0 and 1", e.gateRatio)
	}
	// 64 steps per bar must land on whole ticks with a gate shorter than
	// the step
	if e.ticksPerQuarter < MinTicksPerQuarter || e.ticksPerQuarter%16 != 0 {
		return nil, fmt.Errorf("invalid ticks per quarter %d: need a multiple of 16, at least %d",
			e.ticksPerQuarter, MinTicksPerQuarter)
	}
	if e.metronome.Channel > 15 || e.metronome.Note > 127 || e.metronome.Velocity > 127 {
		return nil, fmt.Errorf("invalid metronome %+v", e.metronome)
	}
	return e, nil
}

// Velocities returns the level to velocity mapping in use.
func (e *Emitter) Velocities() pattern.VelocityMap { return e.velocities }

// Metronome returns the click settings.
func (e *Emitter) Metronome() Metronome {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metronome
}

// SetMetronome toggles the click. It is safe to call during playback.
func (e *Emitter) SetMetronome(enabled bool) {
	e.mu.Lock()
	e.metronome.Enabled = enabled
	e.mu.Unlock()
}

// GateTicks returns the note length used in exported files. It is always
// at least one tick and strictly shorter than a step.
func (e *Emitter) GateTicks(stepsPerBar int) uint32 {
	tps := timing.TicksPerStep(e.ticksPerQuarter, stepsPerBar)
	g := uint32(float64(tps) * e.gateRatio)
	if g >= tps {
		g = tps - 1
	}
	if g == 0 {
		g = 1
	}
	return g
}

// Gate returns how long a note started on step should sound during live
// playback: the gate ratio applied to that step's swung duration, so the
// note ends before the next step begins.
func (e *Emitter) Gate(t timing.Transport, step int) time.Duration {
	return time.Duration(float64(t.StepDuration(step)) * e.gateRatio)
}

// PlayStep sends note-ons for every hit of one step, plus the metronome
// click on quarter-note steps unless a row already strikes the click's key
// on that step. It returns the note-ons that reached the
// sink so the caller can schedule their note-offs. A nil sink is silent;
// an unavailable sink or failed sends yield ErrSinkUnavailable.
func (e *Emitter) PlayStep(src StepSource, bar, step int, sink Sink) ([]Event, error) {
	st, err := src.Step(bar, step)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, nil
	}
	if !sink.Available() {
		return nil, ErrSinkUnavailable
	}

	events := make([]Event, 0, len(st.Hits)+1)
	for _, h := range st.Hits {
		events = append(events, Event{
			Kind:     NoteOn,
			Channel:  DrumChannel,
			Note:     h.Note,
			Velocity: e.velocities.Velocity(h.Level),
		})
	}
	if m := e.Metronome(); m.Enabled && st.StepsPerBar >= timing.BeatsPerBar && st.Index%(st.StepsPerBar/timing.BeatsPerBar) == 0 && !sounds(events, m.Channel, m.Note) {
		events = append(events, Event{
			Kind:     NoteOn,
			Channel:  m.Channel,
			Note:     m.Note,
			Velocity: m.Velocity,
		})
	}

	sent := events[:0]
	var errs []error
	for _, ev := range events {
		if err := sink.Send(ev); err != nil {
			e.logger.Warn("send failed", "note", ev.Note, "err", err)
			errs = append(errs, err)
			continue
		}
		sent = append(sent, ev)
	}
	if len(errs) > 0 {
		return sent, fmt.Errorf("%w: %w", ErrSinkUnavailable, errors.Join(errs...))
	}
	return sent, nil
}

func sounds(events []Event, channel, note uint8) bool {
	for _, ev := range events {
		if ev.Channel == channel && ev.Note == note {
			return true
		}
	}
	return false
}
