package emitter

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/google/renameio/v2"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/james-see/drumgrid/pkg/pattern"
	"github.com/james-see/drumgrid/pkg/timing"
)

// TrackName is written as the sequence name of exported files.
const TrackName = "drumgrid"

// ExportFile renders p as a single-track Standard MIDI File. Every bar is
// 4/4 at the pattern tempo; every hit becomes a note-on on the drum channel
// at its step's grid position and a note-off one gate later. Swing is not
// applied to exported ticks. The track ends exactly at the pattern length.
func (e *Emitter) ExportFile(p *pattern.Pattern) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("nil pattern")
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("cannot export: %w", err)
	}

	tr := p.Transport()
	ticksPerStep := timing.TicksPerStep(e.ticksPerQuarter, p.StepsPerBar)
	gate := e.GateTicks(p.StepsPerBar)

	type noteEvent struct {
		tick uint32
		off  bool
		msg  midi.Message
	}
	var events []noteEvent

	timing.Walk(tr, func(c timing.Cursor) bool {
		tick := uint32(c.Bar*p.StepsPerBar+c.Step) * ticksPerStep
		for _, h := range p.StepHits(c.Bar, c.Step) {
			events = append(events,
				noteEvent{tick: tick, msg: midi.NoteOn(DrumChannel, h.Note, e.velocities.Velocity(h.Level))},
				noteEvent{tick: tick + gate, off: true, msg: midi.NoteOff(DrumChannel, h.Note)},
			)
		}
		return true
	})

	// Note-offs sort ahead of note-ons on the same tick so a retriggered
	// note is released before it sounds again.
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return events[i].off && !events[j].off
	})

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(e.ticksPerQuarter)

	var track smf.Track
	track.Add(0, smf.MetaTrackSequenceName(TrackName))
	track.Add(0, smf.MetaMeter(timing.BeatsPerBar, 4))
	track.Add(0, smf.MetaTempo(p.TempoBPM))

	var currentTick uint32
	for _, ev := range events {
		track.Add(ev.tick-currentTick, ev.msg)
		currentTick = ev.tick
	}

	totalTicks := uint32(len(p.Bars)*p.StepsPerBar) * ticksPerStep
	track.Close(totalTicks - currentTick)

	if err := s.Add(track); err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}

	e.logger.Debug("exported pattern", "bars", len(p.Bars), "steps", p.StepsPerBar, "notes", len(events)/2, "ticks", totalTicks)
	return buf.Bytes(), nil
}

// WriteFile exports p to path, replacing any existing file atomically.
func (e *Emitter) WriteFile(p *pattern.Pattern, path string) error {
	data, err := e.ExportFile(p)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write MIDI file: %w", err)
	}
	return nil
}
