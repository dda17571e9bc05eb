// Package pattern holds the drum pattern model and the store that owns it.
package pattern

import (
	"errors"
	"fmt"
	"strings"
)

// Pattern limits
const (
	NumRows  = 8
	MinBars  = 1
	MaxBars  = 64
	MinTempo = 40.0
	MaxTempo = 240.0
	MinSwing = 0.0
	MaxSwing = 0.5
	MaxNote  = 127
)

// Default pattern settings
const (
	DefaultStepsPerBar = 16
	DefaultTempo       = 120.0
)

// Errors returned by pattern operations. Every failing operation leaves the
// pattern unchanged.
var (
	ErrOutOfRange        = errors.New("out of range")
	ErrInvalidResolution = errors.New("invalid resolution")
	ErrShapeMismatch     = errors.New("shape mismatch")
)

// Resolutions lists the allowed steps-per-bar values.
var Resolutions = []int{16, 32, 64}

// Level is a discrete velocity level for one cell
type Level uint8

const (
	Off Level = iota
	Low
	Mid
	High
)

var levelNames = [...]string{"off", "low", "mid", "high"}

// String returns the lowercase level name
func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", uint8(l))
}

// Valid reports whether l is one of the four defined levels
func (l Level) Valid() bool {
	return l <= High
}

// Next returns the level after l, wrapping High back to Off.
// Grid editors cycle a cell with SetVelocity(cur.Next()).
func (l Level) Next() Level {
	if l >= High {
		return Off
	}
	return l + 1
}

// ParseLevel accepts a level name or its ordinal 0-3.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range levelNames {
		if s == name || s == fmt.Sprint(i) {
			return Level(i), nil
		}
	}
	return Off, fmt.Errorf("%w: unknown level %q", ErrOutOfRange, s)
}

// Row is the metadata of one drum lane.
type Row struct {
	Name     string
	MidiNote uint8
}

// DefaultRows maps the eight lanes to General MIDI drum notes.
func DefaultRows() []Row {
	return []Row{
		{Name: "Kick", MidiNote: 36},
		{Name: "Snare", MidiNote: 38},
		{Name: "Closed HH", MidiNote: 42},
		{Name: "Open HH", MidiNote: 46},
		{Name: "Low Tom", MidiNote: 41},
		{Name: "Mid Tom", MidiNote: 43},
		{Name: "High Tom", MidiNote: 45},
		{Name: "Crash", MidiNote: 49},
	}
}

// Hit is a non-Off cell of one step.
type Hit struct {
	Row   int
	Note  uint8
	Level Level
}

// Step is everything playback needs to know about one grid column,
// read atomically from the store.
type Step struct {
	Bar         int
	Index       int
	StepsPerBar int
	Hits        []Hit
}

// ValidResolution reports whether steps is an allowed steps-per-bar value.
func ValidResolution(steps int) bool {
	for _, r := range Resolutions {
		if r == steps {
			return true
		}
	}
	return false
}

func validateRow(r Row) error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: row name is empty", ErrOutOfRange)
	}
	if r.MidiNote > MaxNote {
		return fmt.Errorf("%w: midi note %d (max %d)", ErrOutOfRange, r.MidiNote, MaxNote)
	}
	return nil
}

func validateTempo(bpm float64) error {
	if !(bpm >= MinTempo && bpm <= MaxTempo) {
		return fmt.Errorf("%w: tempo %v (want %v-%v)", ErrOutOfRange, bpm, MinTempo, MaxTempo)
	}
	return nil
}

func validateSwing(s float64) error {
	if !(s >= MinSwing && s <= MaxSwing) {
		return fmt.Errorf("%w: swing %v (want %v-%v)", ErrOutOfRange, s, MinSwing, MaxSwing)
	}
	return nil
}
