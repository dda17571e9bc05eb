package pattern

import (
	"fmt"

	"github.com/james-see/drumgrid/pkg/timing"
)

// Bar is one bar's grid stored row-major: cell (row, step) lives at
// row*steps + step.
type Bar struct {
	rows  int
	steps int
	cells []Level
}

// NewBar returns an all-Off bar of the given shape.
func NewBar(rows, steps int) Bar {
	return Bar{rows: rows, steps: steps, cells: make([]Level, rows*steps)}
}

// BarFromCells builds a bar from row-major cells. The cell count must match
// rows*steps.
func BarFromCells(rows, steps int, cells []Level) (Bar, error) {
	if rows < 0 || steps < 0 || len(cells) != rows*steps {
		return Bar{}, fmt.Errorf("%w: %d cells for %dx%d", ErrShapeMismatch, len(cells), rows, steps)
	}
	b := NewBar(rows, steps)
	copy(b.cells, cells)
	return b, nil
}

// Rows returns the number of rows in the bar.
func (b Bar) Rows() int { return b.rows }

// Steps returns the number of steps in the bar.
func (b Bar) Steps() int { return b.steps }

// Cell returns the level at (row, step). Out-of-range reads return Off.
func (b Bar) Cell(row, step int) Level {
	if row < 0 || row >= b.rows || step < 0 || step >= b.steps {
		return Off
	}
	return b.cells[row*b.steps+step]
}

// Cells returns a copy of the row-major cell slice.
func (b Bar) Cells() []Level {
	out := make([]Level, len(b.cells))
	copy(out, b.cells)
	return out
}

func (b *Bar) set(row, step int, l Level) {
	b.cells[row*b.steps+step] = l
}

// clone deep-copies the bar.
func (b Bar) clone() Bar {
	return Bar{rows: b.rows, steps: b.steps, cells: b.Cells()}
}

// reshape re-materialises the bar at a new shape, keeping every cell that
// exists in both shapes and zero-filling the rest.
func (b Bar) reshape(rows, steps int) Bar {
	nb := NewBar(rows, steps)
	for r := 0; r < min(rows, b.rows); r++ {
		for s := 0; s < min(steps, b.steps); s++ {
			nb.cells[r*steps+s] = b.cells[r*b.steps+s]
		}
	}
	return nb
}

// IsEmpty reports whether every cell is Off.
func (b Bar) IsEmpty() bool {
	for _, c := range b.cells {
		if c != Off {
			return false
		}
	}
	return true
}

// Snapshot is an immutable copy of one bar, produced by Store.CopyBar.
type Snapshot struct {
	bar Bar
}

// NewSnapshot wraps row-major cells as a snapshot.
func NewSnapshot(rows, steps int, cells []Level) (Snapshot, error) {
	b, err := BarFromCells(rows, steps, cells)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{bar: b}, nil
}

// Rows returns the snapshot's row count.
func (s Snapshot) Rows() int { return s.bar.rows }

// Steps returns the snapshot's step count.
func (s Snapshot) Steps() int { return s.bar.steps }

// Cell returns the level at (row, step).
func (s Snapshot) Cell(row, step int) Level { return s.bar.Cell(row, step) }

// Cells returns a copy of the row-major cells.
func (s Snapshot) Cells() []Level { return s.bar.Cells() }

// Pattern is the root aggregate: eight rows, 1-64 bars of a shared
// resolution, and one tempo and swing amount.
type Pattern struct {
	Rows        []Row
	Bars        []Bar
	StepsPerBar int
	TempoBPM    float64
	Swing       float64
}

// New returns the default pattern: GM drum rows, one empty 16-step bar,
// 120 BPM and no swing.
func New() *Pattern {
	return &Pattern{
		Rows:        DefaultRows(),
		Bars:        []Bar{NewBar(NumRows, DefaultStepsPerBar)},
		StepsPerBar: DefaultStepsPerBar,
		TempoBPM:    DefaultTempo,
		Swing:       0,
	}
}

// Clone deep-copies the pattern.
func (p *Pattern) Clone() *Pattern {
	c := &Pattern{
		Rows:        make([]Row, len(p.Rows)),
		Bars:        make([]Bar, len(p.Bars)),
		StepsPerBar: p.StepsPerBar,
		TempoBPM:    p.TempoBPM,
		Swing:       p.Swing,
	}
	copy(c.Rows, p.Rows)
	for i, b := range p.Bars {
		c.Bars[i] = b.clone()
	}
	return c
}

// Validate checks every structural invariant of the pattern.
func (p *Pattern) Validate() error {
	if len(p.Rows) != NumRows {
		return fmt.Errorf("%w: %d rows, want %d", ErrShapeMismatch, len(p.Rows), NumRows)
	}
	for i, r := range p.Rows {
		if err := validateRow(r); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	if !ValidResolution(p.StepsPerBar) {
		return fmt.Errorf("%w: %d steps per bar", ErrInvalidResolution, p.StepsPerBar)
	}
	if len(p.Bars) < MinBars || len(p.Bars) > MaxBars {
		return fmt.Errorf("%w: %d bars (want %d-%d)", ErrInvalidResolution, len(p.Bars), MinBars, MaxBars)
	}
	for i, b := range p.Bars {
		if b.rows != NumRows || b.steps != p.StepsPerBar || len(b.cells) != NumRows*p.StepsPerBar {
			return fmt.Errorf("%w: bar %d is %dx%d, want %dx%d", ErrShapeMismatch, i, b.rows, b.steps, NumRows, p.StepsPerBar)
		}
		for j, c := range b.cells {
			if !c.Valid() {
				return fmt.Errorf("%w: bar %d cell %d has level %d", ErrOutOfRange, i, j, c)
			}
		}
	}
	if err := validateTempo(p.TempoBPM); err != nil {
		return err
	}
	return validateSwing(p.Swing)
}

// Equal reports whether two patterns hold identical data.
func (p *Pattern) Equal(o *Pattern) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.StepsPerBar != o.StepsPerBar || p.TempoBPM != o.TempoBPM || p.Swing != o.Swing {
		return false
	}
	if len(p.Rows) != len(o.Rows) || len(p.Bars) != len(o.Bars) {
		return false
	}
	for i := range p.Rows {
		if p.Rows[i] != o.Rows[i] {
			return false
		}
	}
	for i := range p.Bars {
		a, b := p.Bars[i], o.Bars[i]
		if a.rows != b.rows || a.steps != b.steps || len(a.cells) != len(b.cells) {
			return false
		}
		for j := range a.cells {
			if a.cells[j] != b.cells[j] {
				return false
			}
		}
	}
	return true
}

// Transport returns the timing-relevant settings of the pattern.
func (p *Pattern) Transport() timing.Transport {
	return timing.Transport{
		TempoBPM:    p.TempoBPM,
		Swing:       p.Swing,
		StepsPerBar: p.StepsPerBar,
		Bars:        len(p.Bars),
	}
}

// HitCount returns the number of non-Off cells in the pattern.
func (p *Pattern) HitCount() int {
	n := 0
	for _, b := range p.Bars {
		for _, c := range b.cells {
			if c != Off {
				n++
			}
		}
	}
	return n
}

// StepHits returns the non-Off cells of one step in row order.
func (p *Pattern) StepHits(bar, step int) []Hit {
	if bar < 0 || bar >= len(p.Bars) {
		return nil
	}
	b := p.Bars[bar]
	var hits []Hit
	for r := 0; r < b.rows && r < len(p.Rows); r++ {
		if l := b.Cell(r, step); l != Off {
			hits = append(hits, Hit{Row: r, Note: p.Rows[r].MidiNote, Level: l})
		}
	}
	return hits
}
