package serializer

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/james-see/drumgrid/pkg/pattern"
)

// legacyJSON builds an 8-row legacy document with one bar of 16 steps.
// hits maps row -> step -> velocity.
func legacyJSON(bars int, hits map[int]map[int]int) string {
	var meta, data []string
	for r := 0; r < 8; r++ {
		meta = append(meta, fmt.Sprintf(`{"name":"Part %d","midi_note":%d}`, r+1, 36+r))
		var barsJSON []string
		for b := 0; b < bars; b++ {
			steps := make([]string, 16)
			for s := range steps {
				v := 0
				if b == 0 {
					v = hits[r][s]
				}
				steps[s] = fmt.Sprint(v)
			}
			barsJSON = append(barsJSON, "["+strings.Join(steps, ",")+"]")
		}
		data = append(data, "["+strings.Join(barsJSON, ",")+"]")
	}
	return fmt.Sprintf(`{"num_rows":8,"bars":%d,"steps_per_bar":16,"rows_meta":[%s],"data":[%s]}`,
		bars, strings.Join(meta, ","), strings.Join(data, ","))
}

func TestLoadLegacy(t *testing.T) {
	doc := legacyJSON(2, map[int]map[int]int{
		0: {0: 120, 4: 100},
		1: {4: 80},
		2: {2: 40, 3: 59, 5: 61},
	})

	p, err := LoadLegacy([]byte(doc), pattern.DefaultVelocities)
	if err != nil {
		t.Fatalf("LoadLegacy() error = %v", err)
	}
	if len(p.Bars) != 2 || p.StepsPerBar != 16 {
		t.Fatalf("shape = %d x %d, want 2 x 16", len(p.Bars), p.StepsPerBar)
	}
	if p.TempoBPM != pattern.DefaultTempo {
		t.Errorf("tempo = %v, want default", p.TempoBPM)
	}
	if p.Rows[1].Name != "Part 2" || p.Rows[1].MidiNote != 37 {
		t.Errorf("row 1 = %+v", p.Rows[1])
	}

	tests := []struct {
		row, step int
		expected  pattern.Level
	}{
		{0, 0, pattern.High},
		{0, 4, pattern.High},
		{1, 4, pattern.Mid},
		{2, 2, pattern.Low},
		{2, 3, pattern.Low},
		{2, 5, pattern.Mid},
		{3, 0, pattern.Off},
	}
	for _, tt := range tests {
		if got := p.Bars[0].Cell(tt.row, tt.step); got != tt.expected {
			t.Errorf("cell (%d,%d) = %s, want %s", tt.row, tt.step, got, tt.expected)
		}
	}
}

func TestLoadLegacyRejectsWrongShape(t *testing.T) {
	doc := strings.Replace(legacyJSON(1, nil), `"num_rows":8`, `"num_rows":4`, 1)
	if _, err := LoadLegacy([]byte(doc), pattern.DefaultVelocities); !errors.Is(err, ErrShapeInconsistent) {
		t.Errorf("LoadLegacy() error = %v, want ErrShapeInconsistent", err)
	}

	doc = strings.Replace(legacyJSON(1, nil), `"bars":1`, `"bars":2`, 1)
	if _, err := LoadLegacy([]byte(doc), pattern.DefaultVelocities); !errors.Is(err, ErrShapeInconsistent) {
		t.Errorf("LoadLegacy() error = %v, want ErrShapeInconsistent", err)
	}

	if _, err := LoadLegacy([]byte(`{"formatVersion":1}`), pattern.DefaultVelocities); !errors.Is(err, ErrMalformedData) {
		t.Errorf("LoadLegacy(new format) error = %v, want ErrMalformedData", err)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		expected Format
	}{
		{"beat.mid", FormatMIDI},
		{"beat.MIDI", FormatMIDI},
		{"beat.json", FormatPattern},
		{"beat.txt", FormatUnknown},
		{"beat", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := DetectFormat(tt.filename); got != tt.expected {
				t.Errorf("DetectFormat(%q) = %v, want %v", tt.filename, got, tt.expected)
			}
		})
	}
}

func TestDetectFormatFromContent(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected Format
	}{
		{"MIDI file", []byte("MThd\x00\x00\x00\x06"), FormatMIDI},
		{"pattern", []byte(`{"formatVersion":1}`), FormatPattern},
		{"legacy", []byte(legacyJSON(1, nil)), FormatLegacy},
		{"other json", []byte(`{"hello":1}`), FormatUnknown},
		{"short data", []byte{0x00, 0x01}, FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormatFromContent(tt.data); got != tt.expected {
				t.Errorf("DetectFormatFromContent() = %v, want %v", got, tt.expected)
			}
		})
	}
}
