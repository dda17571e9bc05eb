package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/james-see/drumgrid/pkg/logging"
	"github.com/james-see/drumgrid/pkg/pattern"
	"github.com/james-see/drumgrid/pkg/serializer"
)

// run executes the CLI against a pattern file p.json in dir. A later
// --file in args overrides it.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{
		"--config", filepath.Join(dir, "absent.yaml"),
		"--file", filepath.Join(dir, "p.json"),
	}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := run(t, dir, args...)
	if err != nil {
		t.Fatalf("drumgrid %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func loadPattern(t *testing.T, path string) *pattern.Pattern {
	t.Helper()
	p, err := serializer.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNewAndShow(t *testing.T) {
	dir := t.TempDir()

	out := mustRun(t, dir, "new", "--bars", "2", "--tempo", "100")
	if !strings.Contains(out, "2 bar(s) of 16 steps at 100.0 BPM") {
		t.Errorf("new output = %q", out)
	}
	if _, err := run(t, dir, "new"); err == nil {
		t.Error("new over an existing file should fail without --force")
	}
	mustRun(t, dir, "new", "--force")

	mustRun(t, dir, "set", "1", "1", "1", "high")
	mustRun(t, dir, "set", "1", "2", "5", "2")

	out = mustRun(t, dir, "show")
	for _, want := range []string{
		"120.0 BPM  swing 0.00  16 steps per bar  1 bar(s)",
		"bar 1",
		"X... .... .... ....",
		".... o... .... ....",
		"Crash",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}
}

func TestMissingPatternFile(t *testing.T) {
	_, err := run(t, t.TempDir(), "show")
	if !errors.Is(err, errNoPattern) {
		t.Errorf("show error = %v, want errNoPattern", err)
	}
}

func TestEditCommands(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "p.json")
	mustRun(t, dir, "new")
	mustRun(t, dir, "set", "1", "1", "1", "high")

	mustRun(t, dir, "resize", "--bars", "2", "--steps", "32")
	p := loadPattern(t, file)
	if len(p.Bars) != 2 || p.StepsPerBar != 32 {
		t.Fatalf("resize: bars = %d, steps = %d", len(p.Bars), p.StepsPerBar)
	}
	if p.Bars[0].Cell(0, 0) != pattern.High {
		t.Error("resize lost the downbeat")
	}

	mustRun(t, dir, "resize", "--steps", "16")
	if p = loadPattern(t, file); len(p.Bars) != 2 || p.StepsPerBar != 16 {
		t.Errorf("resize --steps kept bars = %d, steps = %d", len(p.Bars), p.StepsPerBar)
	}

	mustRun(t, dir, "tempo", "90")
	mustRun(t, dir, "swing", "0.25")
	mustRun(t, dir, "row", "1", "--name", "Bass", "--note", "35")
	mustRun(t, dir, "copy-bar", "1", "2")

	p = loadPattern(t, file)
	if p.TempoBPM != 90 || p.Swing != 0.25 {
		t.Errorf("transport = %v BPM, swing %v", p.TempoBPM, p.Swing)
	}
	if p.Rows[0] != (pattern.Row{Name: "Bass", MidiNote: 35}) {
		t.Errorf("row 1 = %+v", p.Rows[0])
	}
	if p.Rows[1].Name != "Snare" {
		t.Errorf("row 2 = %+v, want untouched", p.Rows[1])
	}
	if p.Bars[1].Cell(0, 0) != pattern.High {
		t.Error("copy-bar did not copy the downbeat")
	}

	mustRun(t, dir, "clear-bar", "1")
	p = loadPattern(t, file)
	if !p.Bars[0].IsEmpty() || p.Bars[1].IsEmpty() {
		t.Error("clear-bar should empty bar 1 only")
	}
}

func TestEditErrorsLeaveFileUnchanged(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "p.json")
	mustRun(t, dir, "new")
	before, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		args       []string
		outOfRange bool
	}{
		{"bar zero", []string{"set", "0", "1", "1", "high"}, true},
		{"bar past end", []string{"set", "2", "1", "1", "high"}, true},
		{"row past end", []string{"set", "1", "9", "1", "high"}, true},
		{"bad level", []string{"set", "1", "1", "1", "loud"}, true},
		{"not a number", []string{"set", "one", "1", "1", "high"}, false},
		{"tempo too fast", []string{"tempo", "300"}, true},
		{"swing too wide", []string{"swing", "0.75"}, true},
		{"bad note", []string{"row", "1", "--note", "128"}, true},
		{"bad resolution", []string{"resize", "--steps", "24"}, false},
		{"copy past end", []string{"copy-bar", "1", "3"}, true},
		{"density", []string{"randomize", "1", "--density", "2"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, dir, tt.args...)
			if err == nil {
				t.Fatalf("%v should fail", tt.args)
			}
			if tt.outOfRange && !errors.Is(err, pattern.ErrOutOfRange) {
				t.Errorf("error = %v, want ErrOutOfRange", err)
			}
			after, _ := os.ReadFile(file)
			if !bytes.Equal(before, after) {
				t.Error("failed command changed the pattern file")
			}
		})
	}
}

func TestRandomizeAndHumanize(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "p.json")
	mustRun(t, dir, "new")

	mustRun(t, dir, "randomize", "1", "--density", "1", "--min", "high", "--max", "high", "--seed", "7")
	p := loadPattern(t, file)
	if got := p.HitCount(); got != pattern.NumRows*16 {
		t.Fatalf("HitCount() = %d, want every cell", got)
	}

	mustRun(t, dir, "humanize", "1", "--jitter", "2", "--seed", "7")
	p = loadPattern(t, file)
	if got := p.HitCount(); got != pattern.NumRows*16 {
		t.Errorf("humanize changed the hit count to %d", got)
	}

	mustRun(t, dir, "randomize", "1", "--density", "0", "--seed", "7")
	if p = loadPattern(t, file); p.HitCount() != 0 {
		t.Errorf("density 0 left %d hits", p.HitCount())
	}
}

func TestExportImportConvert(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "new", "--tempo", "90")
	mustRun(t, dir, "set", "1", "1", "1", "high")
	mustRun(t, dir, "set", "1", "2", "5", "mid")

	out := mustRun(t, dir, "export")
	midi := filepath.Join(dir, "p.mid")
	if !strings.Contains(out, "-> "+midi) {
		t.Errorf("export output = %q", out)
	}

	imported := filepath.Join(dir, "imported.json")
	out = mustRun(t, dir, "--file", imported, "import", midi)
	if !strings.Contains(out, "2 hit(s) in 1 bar(s)") {
		t.Errorf("import output = %q", out)
	}
	want := loadPattern(t, filepath.Join(dir, "p.json"))
	if got := loadPattern(t, imported); !got.Equal(want) {
		t.Errorf("import(export(p)) = %+v, want %+v", got, want)
	}

	back := filepath.Join(dir, "back.json")
	mustRun(t, dir, "convert", midi, "-o", back)
	if got := loadPattern(t, back); !got.Equal(want) {
		t.Error("convert .mid -> .json lost data")
	}

	if _, err := run(t, dir, "convert", back, "-o", filepath.Join(dir, "out.txt")); err == nil {
		t.Error("convert to an unknown extension should fail")
	}
	if _, err := run(t, dir, "convert", back); err == nil {
		t.Error("convert without -o should fail")
	}
}

func TestConvertLegacy(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, "old.json")

	var meta, data []string
	for r, row := range pattern.DefaultRows() {
		meta = append(meta, fmt.Sprintf(`{"name": %q, "midi_note": %d}`, row.Name, row.MidiNote))
		steps := make([]string, 16)
		for i := range steps {
			steps[i] = "0"
		}
		if r == 0 {
			steps[4] = "120"
		}
		data = append(data, "[["+strings.Join(steps, ",")+"]]")
	}
	body := fmt.Sprintf(`{"num_rows": 8, "bars": 1, "steps_per_bar": 16, "rows_meta": [%s], "data": [%s]}`,
		strings.Join(meta, ","), strings.Join(data, ","))
	if err := os.WriteFile(legacy, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "new.json")
	mustRun(t, dir, "convert", legacy, "-o", out)
	p := loadPattern(t, out)
	if p.Bars[0].Cell(0, 4) != pattern.High || p.HitCount() != 1 {
		t.Errorf("converted legacy pattern has %d hits, kick step 5 = %v", p.HitCount(), p.Bars[0].Cell(0, 4))
	}
}

func TestTiming(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "new", "--bars", "2")

	out := mustRun(t, dir, "timing")
	for _, want := range []string{
		"nominal step: 125ms",
		"gate:         93.75ms",
		"bar:          2s",
		"pattern:      4s (2 bar(s))",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("timing output missing %q:\n%s", want, out)
		}
	}
}

func TestInvalidLogLevel(t *testing.T) {
	dir := t.TempDir()
	if _, err := run(t, dir, "--log-level", "shouty", "new"); err == nil {
		t.Error("an invalid --log-level should fail")
	}
}

func TestSetupStoresLogger(t *testing.T) {
	a := &app{cfgPath: filepath.Join(t.TempDir(), "absent.yaml"), logLevel: "debug"}
	cmd := &cobra.Command{}
	cmd.SetErr(io.Discard)
	cmd.SetContext(context.Background())

	if err := a.setup(cmd, nil); err != nil {
		t.Fatalf("setup() error = %v", err)
	}
	got := logging.FromContext(cmd.Context())
	if got != a.logger {
		t.Error("command context does not carry the configured logger")
	}
	if got.GetLevel() != log.DebugLevel {
		t.Errorf("logger level = %v, want debug", got.GetLevel())
	}
}
