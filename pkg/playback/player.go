// Package playback schedules live pattern playback. A Player owns one
// cursor and fires each step when the clock passes its swung onset,
// re-reading tempo, swing and resolution from the store as every step
// begins.
package playback

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/james-see/drumgrid/pkg/emitter"
	"github.com/james-see/drumgrid/pkg/timing"
)

// DefaultInterval is how often Run polls the clock. It bounds timing
// jitter; at 240 BPM and 64 steps per bar a step lasts about 15ms.
const DefaultInterval = time.Millisecond

// ErrAlreadyPlaying is returned by Start while a pass is running.
var ErrAlreadyPlaying = errors.New("already playing")

// Source is what a Player reads from: the step contents and the transport
// settings in force right now. *pattern.Store implements it.
type Source interface {
	emitter.StepSource
	Transport() timing.Transport
}

type pendingOff struct {
	at time.Time
	ev emitter.Event
}

// Player drives an Emitter from a Source on a Clock.
type Player struct {
	src      Source
	em       *emitter.Emitter
	sink     emitter.Sink
	clock    Clock
	logger   *log.Logger
	loop     bool
	interval time.Duration
	onStep   func(timing.Cursor)

	mu       sync.Mutex
	playing  bool
	finished bool
	cursor   timing.Cursor
	last     timing.Cursor
	nextAt   time.Time
	offs     []pendingOff
	failures int
	warned   bool
}

// Option configures a Player.
type Option func(*Player)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(p *Player) { p.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Player) { p.logger = l }
}

// WithLoop selects looping (the default) or a single pass.
func WithLoop(loop bool) Option {
	return func(p *Player) { p.loop = loop }
}

// WithInterval sets the Run polling interval.
func WithInterval(d time.Duration) Option {
	return func(p *Player) { p.interval = d }
}

// WithStepHook registers fn to be called after each step fires. fn runs
// with the player locked and must not call back into it.
func WithStepHook(fn func(timing.Cursor)) Option {
	return func(p *Player) { p.onStep = fn }
}

// New creates a stopped Player. sink may be nil for silent playback.
func New(src Source, em *emitter.Emitter, sink emitter.Sink, opts ...Option) *Player {
	p := &Player{
		src:      src,
		em:       em,
		sink:     sink,
		clock:    SystemClock,
		loop:     true,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.New(io.Discard)
	}
	return p
}

// Playing reports whether a pass is running.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Position returns the most recently fired step.
func (p *Player) Position() timing.Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Failures returns how many sends the sink rejected since Start.
func (p *Player) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

// Start begins playback at bar 0 step 0 and fires that step at now.
func (p *Player) Start(now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return ErrAlreadyPlaying
	}

	p.playing = true
	p.finished = false
	p.cursor = timing.Cursor{}
	p.last = timing.Cursor{}
	p.nextAt = now
	p.offs = p.offs[:0]
	p.failures = 0
	p.warned = false

	if p.sink == nil || !p.sink.Available() {
		p.logger.Warn("no MIDI output, playing silently")
		p.warned = true
	}
	tr := p.src.Transport()
	p.logger.Info("playback started", "bpm", tr.TempoBPM, "swing", tr.Swing, "bars", tr.Bars, "steps", tr.StepsPerBar, "loop", p.loop)

	p.advance(now)
	return nil
}

// Advance fires every step whose onset is at or before now and releases
// every note whose gate has elapsed. It returns the number of steps fired.
func (p *Player) Advance(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.advance(now)
}

func (p *Player) advance(now time.Time) int {
	if !p.playing {
		return 0
	}

	fired := 0
	for p.playing && !p.nextAt.After(now) {
		at := p.nextAt

		// Every note still sounding belongs to an earlier step; release
		// it before anything retriggers.
		p.releaseAll()

		if p.finished {
			p.playing = false
			p.logger.Info("playback finished")
			break
		}

		tr := p.src.Transport()
		c := p.cursor
		if !c.Valid(tr) {
			var ok bool
			if c, ok = c.Next(tr, p.loop); !ok || !c.Valid(tr) {
				p.playing = false
				break
			}
		}

		p.fire(tr, c, at)
		fired++

		p.nextAt = at.Add(tr.StepDuration(c.Step))
		next, ok := c.Next(tr, p.loop)
		if !ok {
			p.finished = true
		}
		p.cursor = next
	}

	p.releaseDue(now)
	return fired
}

// fire emits one step and schedules its note-offs.
func (p *Player) fire(tr timing.Transport, c timing.Cursor, at time.Time) {
	sent, err := p.em.PlayStep(p.src, c.Bar, c.Step, p.sink)
	if err != nil {
		p.noteFailure(err, len(sent) == 0)
	}

	gate := p.em.Gate(tr, c.Step)
	for _, ev := range sent {
		p.offs = append(p.offs, pendingOff{at: at.Add(gate), ev: ev.Off()})
	}

	p.last = c
	if p.onStep != nil {
		p.onStep(c)
	}
}

func (p *Player) noteFailure(err error, nothingSent bool) {
	if !errors.Is(err, emitter.ErrSinkUnavailable) {
		p.logger.Warn("step skipped", "err", err)
		return
	}
	if nothingSent && (p.sink == nil || !p.sink.Available()) {
		// already reported at Start or on the first failure
		return
	}
	p.failures++
	if !p.warned {
		p.logger.Warn("MIDI output failing, continuing", "err", err)
		p.warned = true
		return
	}
	p.logger.Debug("send failed", "err", err)
}

// releaseDue sends the note-offs whose time has come, in schedule order.
func (p *Player) releaseDue(now time.Time) {
	kept := p.offs[:0]
	for _, off := range p.offs {
		if off.at.After(now) {
			kept = append(kept, off)
			continue
		}
		p.send(off.ev)
	}
	p.offs = kept
}

func (p *Player) releaseAll() {
	for _, off := range p.offs {
		p.send(off.ev)
	}
	p.offs = p.offs[:0]
}

func (p *Player) send(ev emitter.Event) {
	if p.sink == nil || !p.sink.Available() {
		return
	}
	if err := p.sink.Send(ev); err != nil {
		p.failures++
		p.logger.Debug("note-off failed", "note", ev.Note, "err", err)
	}
}

// Stop ends playback and releases every sounding note before returning.
// Stopping a stopped Player does nothing.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return
	}
	p.releaseAll()
	p.playing = false
	p.logger.Info("playback stopped", "failures", p.failures)
}

// Run starts playback and advances it on every clock tick until ctx is
// done, Stop is called, or a single pass ends.
func (p *Player) Run(ctx context.Context) error {
	if err := p.Start(p.clock.Now()); err != nil {
		return err
	}
	defer p.Stop()

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			p.Advance(now)
			if !p.Playing() {
				return nil
			}
		}
	}
}
