package emitter

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gitlab.com/gomidi/midi/v2/smf"
	"gitlab.com/gomidi/quantizer/lib/quantizer"

	"github.com/james-see/drumgrid/pkg/pattern"
)

// ImportOptions controls how a MIDI file is mapped onto the grid.
type ImportOptions struct {
	// Rows assigns notes to lanes. Defaults to pattern.DefaultRows.
	Rows []pattern.Row
	// StepsPerBar is the target resolution. Defaults to 16.
	StepsPerBar int
	// Quantize runs the file through the gomidi quantizer before the
	// notes are snapped to steps.
	Quantize bool
}

// ImportResult is the converted pattern plus what could not be placed.
type ImportResult struct {
	Pattern *pattern.Pattern
	// Unmatched counts note-ons per note number that no row plays.
	Unmatched map[uint8]int
	// Truncated is set when notes fell beyond the last allowed bar.
	Truncated bool
}

// ReadFile imports the MIDI file at path.
func (e *Emitter) ReadFile(path string, opts ImportOptions) (*ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI file: %w", err)
	}
	return e.ImportFile(data, opts)
}

// ImportFile converts MIDI data into a pattern. Note-ons on any channel are
// snapped to the nearest step and matched to rows by note number; their
// velocities are mapped to the nearest level. The file tempo, rounded to
// hundredths of a BPM, is kept when it falls inside the allowed range.
func (e *Emitter) ImportFile(data []byte, opts ImportOptions) (*ImportResult, error) {
	rows := opts.Rows
	if rows == nil {
		rows = pattern.DefaultRows()
	}
	if len(rows) != pattern.NumRows {
		return nil, fmt.Errorf("%w: %d rows, want %d", pattern.ErrShapeMismatch, len(rows), pattern.NumRows)
	}
	stepsPerBar := opts.StepsPerBar
	if stepsPerBar == 0 {
		stepsPerBar = pattern.DefaultStepsPerBar
	}
	if !pattern.ValidResolution(stepsPerBar) {
		return nil, fmt.Errorf("%w: %d steps per bar", pattern.ErrInvalidResolution, stepsPerBar)
	}

	if opts.Quantize {
		var bf bytes.Buffer
		bf.Write(data)
		if err := quantizer.Quantize(&bf, &bf); err != nil {
			return nil, fmt.Errorf("failed to quantize MIDI: %w", err)
		}
		data = bf.Bytes()
	}

	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	ticksPerQuarter := e.ticksPerQuarter
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		ticksPerQuarter = mt.Resolution()
	}
	ticksPerStep := int64(ticksPerQuarter) * 4 / int64(stepsPerBar)
	if ticksPerStep == 0 {
		return nil, fmt.Errorf("MIDI resolution %d is too coarse for %d steps per bar", ticksPerQuarter, stepsPerBar)
	}

	noteRow := make(map[uint8]int, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		// the first row wins when two rows share a note
		noteRow[rows[i].MidiNote] = i
	}

	result := &ImportResult{Unmatched: map[uint8]int{}}
	tempo := pattern.DefaultTempo
	cells := make([][]pattern.Level, 0, 1)
	lastBar := 0

	for _, track := range s.Tracks {
		var currentTick int64
		for _, ev := range track {
			currentTick += int64(ev.Delta)
			msg := ev.Message

			// Tempo meta: FF 51 03 tt tt tt
			if len(msg) >= 6 && msg[0] == 0xFF && msg[1] == 0x51 && msg[2] == 0x03 {
				microsecondsPerBeat := uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
				if microsecondsPerBeat > 0 {
					bpm := math.Round(6000000000.0/float64(microsecondsPerBeat)) / 100
					if bpm >= pattern.MinTempo && bpm <= pattern.MaxTempo {
						tempo = bpm
					}
				}
				continue
			}

			// Note On: 0x9n nn vv with vv > 0
			if len(msg) < 3 || msg[0]&0xF0 != 0x90 || msg[2] == 0 {
				continue
			}
			note, velocity := msg[1], msg[2]

			row, ok := noteRow[note]
			if !ok {
				result.Unmatched[note]++
				continue
			}

			stepIndex := int((currentTick + ticksPerStep/2) / ticksPerStep)
			bar, step := stepIndex/stepsPerBar, stepIndex%stepsPerBar
			if bar >= pattern.MaxBars {
				result.Truncated = true
				continue
			}
			for len(cells) <= bar {
				cells = append(cells, make([]pattern.Level, pattern.NumRows*stepsPerBar))
			}
			if bar > lastBar {
				lastBar = bar
			}

			idx := row*stepsPerBar + step
			if l := e.velocities.Level(velocity); l > cells[bar][idx] {
				cells[bar][idx] = l
			}
		}
	}

	p := &pattern.Pattern{
		Rows:        append([]pattern.Row(nil), rows...),
		StepsPerBar: stepsPerBar,
		TempoBPM:    tempo,
	}
	for b := 0; b <= lastBar; b++ {
		var barCells []pattern.Level
		if b < len(cells) {
			barCells = cells[b]
		} else {
			barCells = make([]pattern.Level, pattern.NumRows*stepsPerBar)
		}
		bar, err := pattern.BarFromCells(pattern.NumRows, stepsPerBar, barCells)
		if err != nil {
			return nil, err
		}
		p.Bars = append(p.Bars, bar)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("imported pattern is invalid: %w", err)
	}

	if len(result.Unmatched) > 0 || result.Truncated {
		e.logger.Warn("notes skipped during import", "unmatched", len(result.Unmatched), "truncated", result.Truncated)
	}
	result.Pattern = p
	return result, nil
}
