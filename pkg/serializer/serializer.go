// Package serializer reads and writes drum patterns as versioned JSON.
package serializer

import (
	"errors"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/google/renameio/v2"

	"github.com/james-see/drumgrid/pkg/pattern"
)

// FormatVersion is the newest pattern file version this package writes and
// accepts.
const FormatVersion = 1

// Load errors
var (
	ErrMalformedData      = errors.New("malformed pattern data")
	ErrVersionUnsupported = errors.New("unsupported format version")
	ErrShapeInconsistent  = errors.New("inconsistent pattern shape")
)

// RowDoc is a row as written to disk.
type RowDoc struct {
	Name     string `json:"name"`
	MidiNote int    `json:"midiNote"`
}

// Document is the on-disk pattern layout. Bars are indexed
// [bar][row][step] and hold level ordinals 0-3.
type Document struct {
	FormatVersion int       `json:"formatVersion"`
	TempoBPM      float64   `json:"tempoBpm"`
	Swing         float64   `json:"swing"`
	StepsPerBar   int       `json:"stepsPerBar"`
	Rows          []RowDoc  `json:"rows"`
	Bars          [][][]int `json:"bars"`
}

// loadDoc mirrors Document with pointers so missing fields can be told
// apart from zero values.
type loadDoc struct {
	FormatVersion *int      `json:"formatVersion"`
	TempoBPM      *float64  `json:"tempoBpm"`
	Swing         *float64  `json:"swing"`
	StepsPerBar   *int      `json:"stepsPerBar"`
	Rows          []loadRow `json:"rows"`
	Bars          [][][]int `json:"bars"`
}

type loadRow struct {
	Name     *string `json:"name"`
	MidiNote *int    `json:"midiNote"`
}

// ToDocument converts a pattern to its on-disk layout.
func ToDocument(p *pattern.Pattern) Document {
	doc := Document{
		FormatVersion: FormatVersion,
		TempoBPM:      p.TempoBPM,
		Swing:         p.Swing,
		StepsPerBar:   p.StepsPerBar,
		Rows:          make([]RowDoc, len(p.Rows)),
		Bars:          make([][][]int, len(p.Bars)),
	}
	for i, r := range p.Rows {
		doc.Rows[i] = RowDoc{Name: r.Name, MidiNote: int(r.MidiNote)}
	}
	for i, b := range p.Bars {
		rows := make([][]int, b.Rows())
		for r := range rows {
			rows[r] = make([]int, b.Steps())
			for s := range rows[r] {
				rows[r][s] = int(b.Cell(r, s))
			}
		}
		doc.Bars[i] = rows
	}
	return doc
}

// Save encodes a pattern. The output is deterministic: the same pattern
// always produces the same bytes.
func Save(p *pattern.Pattern) ([]byte, error) {
	if p == nil {
		return nil, errors.New("nil pattern")
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to save invalid pattern: %w", err)
	}
	data, err := json.Marshal(ToDocument(p))
	if err != nil {
		return nil, fmt.Errorf("failed to encode pattern: %w", err)
	}
	return append(data, '\n'), nil
}

// Load decodes and validates a pattern. Grid dimensions are checked against
// the declared rows and stepsPerBar, never inferred.
func Load(data []byte) (*pattern.Pattern, error) {
	var doc loadDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}

	switch {
	case doc.FormatVersion == nil:
		return nil, fmt.Errorf("%w: missing formatVersion", ErrMalformedData)
	case *doc.FormatVersion > FormatVersion:
		return nil, fmt.Errorf("%w: %d (newest supported is %d)", ErrVersionUnsupported, *doc.FormatVersion, FormatVersion)
	case *doc.FormatVersion < 1:
		return nil, fmt.Errorf("%w: formatVersion %d", ErrMalformedData, *doc.FormatVersion)
	case doc.TempoBPM == nil:
		return nil, fmt.Errorf("%w: missing tempoBpm", ErrMalformedData)
	case doc.Swing == nil:
		return nil, fmt.Errorf("%w: missing swing", ErrMalformedData)
	case doc.StepsPerBar == nil:
		return nil, fmt.Errorf("%w: missing stepsPerBar", ErrMalformedData)
	case doc.Rows == nil:
		return nil, fmt.Errorf("%w: missing rows", ErrMalformedData)
	case doc.Bars == nil:
		return nil, fmt.Errorf("%w: missing bars", ErrMalformedData)
	}

	steps := *doc.StepsPerBar
	if !pattern.ValidResolution(steps) {
		return nil, fmt.Errorf("%w: %w: stepsPerBar %d", ErrMalformedData, pattern.ErrInvalidResolution, steps)
	}
	if len(doc.Rows) != pattern.NumRows {
		return nil, fmt.Errorf("%w: %d rows, want %d", ErrShapeInconsistent, len(doc.Rows), pattern.NumRows)
	}
	if n := len(doc.Bars); n < pattern.MinBars || n > pattern.MaxBars {
		return nil, fmt.Errorf("%w: %d bars (want %d-%d)", ErrMalformedData, n, pattern.MinBars, pattern.MaxBars)
	}

	p := &pattern.Pattern{
		Rows:        make([]pattern.Row, pattern.NumRows),
		Bars:        make([]pattern.Bar, len(doc.Bars)),
		StepsPerBar: steps,
		TempoBPM:    *doc.TempoBPM,
		Swing:       *doc.Swing,
	}

	for i, r := range doc.Rows {
		if r.Name == nil || r.MidiNote == nil {
			return nil, fmt.Errorf("%w: row %d missing name or midiNote", ErrMalformedData, i)
		}
		if *r.MidiNote < 0 || *r.MidiNote > pattern.MaxNote {
			return nil, fmt.Errorf("%w: row %d midiNote %d", ErrMalformedData, i, *r.MidiNote)
		}
		p.Rows[i] = pattern.Row{Name: *r.Name, MidiNote: uint8(*r.MidiNote)}
	}

	want := pattern.NumRows * steps
	for i, rows := range doc.Bars {
		cells := make([]pattern.Level, 0, want)
		for _, row := range rows {
			if len(row) != steps {
				return nil, fmt.Errorf("%w: bar %d has a row of %d steps, want %d", ErrShapeInconsistent, i, len(row), steps)
			}
			for _, v := range row {
				if v < int(pattern.Off) || v > int(pattern.High) {
					return nil, fmt.Errorf("%w: bar %d level %d", ErrMalformedData, i, v)
				}
				cells = append(cells, pattern.Level(v))
			}
		}
		if len(cells) != want {
			return nil, fmt.Errorf("%w: bar %d has %d cells, want %d", ErrShapeInconsistent, i, len(cells), want)
		}
		b, err := pattern.BarFromCells(pattern.NumRows, steps, cells)
		if err != nil {
			return nil, fmt.Errorf("%w: bar %d: %v", ErrShapeInconsistent, i, err)
		}
		p.Bars[i] = b
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedData, err)
	}
	return p, nil
}

// SaveFile writes a pattern to path atomically: the file is either fully
// replaced or left as it was.
func SaveFile(path string, p *pattern.Pattern) error {
	data, err := Save(p)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write pattern file: %w", err)
	}
	return nil
}

// LoadFile reads a pattern from path.
func LoadFile(path string) (*pattern.Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern file: %w", err)
	}
	return Load(data)
}
