package serializer

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/james-see/drumgrid/pkg/pattern"
)

// legacyDoc is the unversioned layout written by the first version of the
// sequencer: velocities 0-127 indexed [row][bar][step], no tempo or swing.
type legacyDoc struct {
	NumRows     *int          `json:"num_rows"`
	Bars        *int          `json:"bars"`
	StepsPerBar *int          `json:"steps_per_bar"`
	RowsMeta    []legacyRow   `json:"rows_meta"`
	Data        [][][]float64 `json:"data"`
}

type legacyRow struct {
	Name     string `json:"name"`
	MidiNote int    `json:"midi_note"`
}

// LoadLegacy converts an unversioned pattern file. Raw velocities are
// quantised to the nearest band of vm; tempo and swing take their defaults.
func LoadLegacy(data []byte, vm pattern.VelocityMap) (*pattern.Pattern, error) {
	var doc legacyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	if doc.NumRows == nil || doc.Bars == nil || doc.StepsPerBar == nil || doc.RowsMeta == nil || doc.Data == nil {
		return nil, fmt.Errorf("%w: not a legacy pattern (num_rows, bars, steps_per_bar, rows_meta and data are required)", ErrMalformedData)
	}

	rows, bars, steps := *doc.NumRows, *doc.Bars, *doc.StepsPerBar
	if rows != pattern.NumRows || len(doc.RowsMeta) != rows || len(doc.Data) != rows {
		return nil, fmt.Errorf("%w: legacy pattern has %d rows, want %d", ErrShapeInconsistent, rows, pattern.NumRows)
	}
	if !pattern.ValidResolution(steps) {
		return nil, fmt.Errorf("%w: %w: steps_per_bar %d", ErrMalformedData, pattern.ErrInvalidResolution, steps)
	}
	if bars < pattern.MinBars || bars > pattern.MaxBars {
		return nil, fmt.Errorf("%w: %d bars", ErrMalformedData, bars)
	}

	p := &pattern.Pattern{
		Rows:        make([]pattern.Row, rows),
		Bars:        make([]pattern.Bar, bars),
		StepsPerBar: steps,
		TempoBPM:    pattern.DefaultTempo,
	}
	for i, m := range doc.RowsMeta {
		if m.MidiNote < 0 || m.MidiNote > pattern.MaxNote {
			return nil, fmt.Errorf("%w: row %d midi_note %d", ErrMalformedData, i, m.MidiNote)
		}
		name := m.Name
		if name == "" {
			name = fmt.Sprintf("Part %d", i+1)
		}
		p.Rows[i] = pattern.Row{Name: name, MidiNote: uint8(m.MidiNote)}
	}

	for b := 0; b < bars; b++ {
		cells := make([]pattern.Level, 0, rows*steps)
		for r := 0; r < rows; r++ {
			if len(doc.Data[r]) != bars {
				return nil, fmt.Errorf("%w: row %d has %d bars, want %d", ErrShapeInconsistent, r, len(doc.Data[r]), bars)
			}
			stepData := doc.Data[r][b]
			if len(stepData) != steps {
				return nil, fmt.Errorf("%w: row %d bar %d has %d steps, want %d", ErrShapeInconsistent, r, b, len(stepData), steps)
			}
			for _, v := range stepData {
				cells = append(cells, vm.Level(clampVelocity(v)))
			}
		}
		bar, err := pattern.BarFromCells(rows, steps, cells)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrShapeInconsistent, err)
		}
		p.Bars[b] = bar
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedData, err)
	}
	return p, nil
}

func clampVelocity(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 127:
		return 127
	}
	return uint8(v + 0.5)
}
