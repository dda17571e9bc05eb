// Package timing computes step durations, swing offsets and the playback
// cursor for a step-sequencer pattern.
package timing

import (
	"math"
	"time"
)

// BeatsPerBar is fixed: every bar is 4/4 and stepsPerBar subdivides it.
const BeatsPerBar = 4

// Transport is the subset of pattern state that timing depends on.
type Transport struct {
	TempoBPM    float64
	Swing       float64
	StepsPerBar int
	Bars        int
}

// StepsPerBeat returns how many steps fall on one quarter note.
func (t Transport) StepsPerBeat() int {
	spb := t.StepsPerBar / BeatsPerBar
	if spb < 1 {
		return 1
	}
	return spb
}

// nominalSeconds is 60 / bpm / (stepsPerBar/4).
func (t Transport) nominalSeconds() float64 {
	if t.TempoBPM <= 0 || t.StepsPerBar <= 0 {
		return 0
	}
	return 60.0 / t.TempoBPM / (float64(t.StepsPerBar) / BeatsPerBar)
}

// NominalStep returns the unswung duration of one step.
func (t Transport) NominalStep() time.Duration {
	return seconds(t.nominalSeconds())
}

// StepOffset returns the onset of a step relative to the start of its bar.
// Odd steps are pushed back by swing × nominal; even steps stay on the grid.
func (t Transport) StepOffset(step int) time.Duration {
	n := t.nominalSeconds()
	off := float64(step) * n
	if step%2 == 1 {
		off += t.Swing * n
	}
	return seconds(off)
}

// StepDuration returns the time from the onset of step to the onset of the
// step after it. Each even/odd pair always sums to two nominal steps.
func (t Transport) StepDuration(step int) time.Duration {
	n := t.nominalSeconds()
	if step%2 == 0 {
		return seconds(n * (1 + t.Swing))
	}
	return seconds(n * (1 - t.Swing))
}

// BarDuration returns the length of one bar; swing does not change it.
func (t Transport) BarDuration() time.Duration {
	return seconds(t.nominalSeconds() * float64(t.StepsPerBar))
}

// PatternDuration returns the length of one pass over every bar.
func (t Transport) PatternDuration() time.Duration {
	return seconds(t.nominalSeconds() * float64(t.StepsPerBar) * float64(t.Bars))
}

// NominalStepDuration is the package-level form of Transport.NominalStep.
func NominalStepDuration(bpm float64, stepsPerBar int) time.Duration {
	return Transport{TempoBPM: bpm, StepsPerBar: stepsPerBar}.NominalStep()
}

// TicksPerStep converts the quarter-note resolution of a MIDI file into
// ticks per grid step.
func TicksPerStep(ticksPerQuarter uint16, stepsPerBar int) uint32 {
	if stepsPerBar <= 0 {
		return 0
	}
	return uint32(ticksPerQuarter) * BeatsPerBar / uint32(stepsPerBar)
}

// IsBeat reports whether step lands on a quarter-note boundary.
func (t Transport) IsBeat(step int) bool {
	return step%t.StepsPerBeat() == 0
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
