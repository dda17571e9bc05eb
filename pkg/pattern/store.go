package pattern

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/james-see/drumgrid/pkg/timing"
)

// RandomSource yields uniform values in [0, 1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// Store owns one Pattern and serialises every read and mutation of it.
// Mutators validate before touching state, so a failed call leaves the
// pattern exactly as it was.
type Store struct {
	mu      sync.RWMutex
	p       *Pattern
	editBar int
	rnd     RandomSource
}

// Option configures a Store.
type Option func(*Store)

// WithRandom injects the random source used by Randomize and Humanize.
func WithRandom(r RandomSource) Option {
	return func(s *Store) {
		s.rnd = r
	}
}

// NewStore creates a store holding the default pattern.
func NewStore(opts ...Option) *Store {
	s := &Store{p: New()}
	for _, opt := range opts {
		opt(s)
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s
}

// Pattern returns a deep copy of the current pattern. Callers may keep it
// as a frozen snapshot; later edits are not visible through it.
func (s *Store) Pattern() *Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p.Clone()
}

// Replace validates p and swaps it in as the current pattern. The edit bar
// resets to 0.
func (s *Store) Replace(p *Pattern) error {
	if p == nil {
		return fmt.Errorf("%w: nil pattern", ErrShapeMismatch)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	c := p.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = c
	s.editBar = 0
	return nil
}

// Transport returns the timing-relevant settings of the pattern.
func (s *Store) Transport() timing.Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p.Transport()
}

// checkCell validates a (bar, row, step) address. Caller holds the lock.
func (s *Store) checkCell(bar, row, step int) error {
	if bar < 0 || bar >= len(s.p.Bars) {
		return fmt.Errorf("%w: bar %d (have %d)", ErrOutOfRange, bar, len(s.p.Bars))
	}
	if row < 0 || row >= NumRows {
		return fmt.Errorf("%w: row %d (have %d)", ErrOutOfRange, row, NumRows)
	}
	if step < 0 || step >= s.p.StepsPerBar {
		return fmt.Errorf("%w: step %d (have %d)", ErrOutOfRange, step, s.p.StepsPerBar)
	}
	return nil
}

func (s *Store) checkBar(bar int) error {
	if bar < 0 || bar >= len(s.p.Bars) {
		return fmt.Errorf("%w: bar %d (have %d)", ErrOutOfRange, bar, len(s.p.Bars))
	}
	return nil
}

// Velocity returns the level of one cell.
func (s *Store) Velocity(bar, row, step int) (Level, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkCell(bar, row, step); err != nil {
		return Off, err
	}
	return s.p.Bars[bar].Cell(row, step), nil
}

// SetVelocity sets the level of one cell.
func (s *Store) SetVelocity(bar, row, step int, level Level) error {
	if !level.Valid() {
		return fmt.Errorf("%w: level %d", ErrOutOfRange, level)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkCell(bar, row, step); err != nil {
		return err
	}
	s.p.Bars[bar].set(row, step, level)
	return nil
}

// Resize changes the bar count and the steps per bar. Cells present in both
// the old and the new shape are kept; new cells are Off. The row count is
// fixed at NumRows.
func (s *Store) Resize(bars, stepsPerBar int) error {
	if !ValidResolution(stepsPerBar) {
		return fmt.Errorf("%w: %d steps per bar (want one of %v)", ErrInvalidResolution, stepsPerBar, Resolutions)
	}
	if bars < MinBars || bars > MaxBars {
		return fmt.Errorf("%w: %d bars (want %d-%d)", ErrInvalidResolution, bars, MinBars, MaxBars)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nb := make([]Bar, bars)
	for i := range nb {
		if i < len(s.p.Bars) {
			nb[i] = s.p.Bars[i].reshape(NumRows, stepsPerBar)
		} else {
			nb[i] = NewBar(NumRows, stepsPerBar)
		}
	}
	s.p.Bars = nb
	s.p.StepsPerBar = stepsPerBar
	if s.editBar >= bars {
		s.editBar = bars - 1
	}
	return nil
}

// SetBars changes only the bar count.
func (s *Store) SetBars(bars int) error {
	return s.Resize(bars, s.Transport().StepsPerBar)
}

// SetStepsPerBar changes only the resolution.
func (s *Store) SetStepsPerBar(steps int) error {
	return s.Resize(s.Transport().Bars, steps)
}

// CopyBar returns an immutable snapshot of one bar.
func (s *Store) CopyBar(bar int) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkBar(bar); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{bar: s.p.Bars[bar].clone()}, nil
}

// PasteBar overwrites one bar with a snapshot. A snapshot whose shape does
// not match the current rows x steps is rejected rather than cropped.
func (s *Store) PasteBar(bar int, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkBar(bar); err != nil {
		return err
	}
	if snap.Rows() != NumRows || snap.Steps() != s.p.StepsPerBar {
		return fmt.Errorf("%w: snapshot is %dx%d, bar is %dx%d",
			ErrShapeMismatch, snap.Rows(), snap.Steps(), NumRows, s.p.StepsPerBar)
	}
	s.p.Bars[bar] = snap.bar.clone()
	return nil
}

// ClearBar sets every cell of one bar to Off.
func (s *Store) ClearBar(bar int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkBar(bar); err != nil {
		return err
	}
	s.p.Bars[bar] = NewBar(NumRows, s.p.StepsPerBar)
	return nil
}

// SetTempo sets the tempo in beats per minute.
func (s *Store) SetTempo(bpm float64) error {
	if err := validateTempo(bpm); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p.TempoBPM = bpm
	return nil
}

// SetSwing sets the swing amount.
func (s *Store) SetSwing(swing float64) error {
	if err := validateSwing(swing); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p.Swing = swing
	return nil
}

// Row returns the metadata of one row.
func (s *Store) Row(row int) (Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if row < 0 || row >= NumRows {
		return Row{}, fmt.Errorf("%w: row %d", ErrOutOfRange, row)
	}
	return s.p.Rows[row], nil
}

// Rows returns a copy of all row metadata.
func (s *Store) Rows() []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Row, len(s.p.Rows))
	copy(out, s.p.Rows)
	return out
}

// SetRow renames a row and reassigns its MIDI note.
func (s *Store) SetRow(row int, name string, note uint8) error {
	r := Row{Name: name, MidiNote: note}
	if err := validateRow(r); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if row < 0 || row >= NumRows {
		return fmt.Errorf("%w: row %d", ErrOutOfRange, row)
	}
	s.p.Rows[row] = r
	return nil
}

// EditBar returns the bar currently selected for editing.
func (s *Store) EditBar() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.editBar
}

// SetEditBar selects the bar to edit.
func (s *Store) SetEditBar(bar int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkBar(bar); err != nil {
		return err
	}
	s.editBar = bar
	return nil
}

// Step returns the hits of one step together with the resolution they were
// read under. Playback calls this as each step begins so edits show up on
// the next pass.
func (s *Store) Step(bar, step int) (Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkCell(bar, 0, step); err != nil {
		return Step{}, err
	}
	return Step{
		Bar:         bar,
		Index:       step,
		StepsPerBar: s.p.StepsPerBar,
		Hits:        s.p.StepHits(bar, step),
	}, nil
}
