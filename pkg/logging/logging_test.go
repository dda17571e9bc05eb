package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"info", false},
		{"warn", false},
		{"error", false},
		{"loud", true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			_, err := New(&bytes.Buffer{}, tt.level, "test")
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			}
		})
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "warn", "drumgrid")
	if err != nil {
		t.Fatal(err)
	}
	l.Info("hidden")
	l.Warn("shown", "bar", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "bar=2") || !strings.Contains(out, "drumgrid") {
		t.Errorf("output = %q", out)
	}
}

func TestContextRoundTrip(t *testing.T) {
	l := Discard()
	if got := FromContext(WithContext(context.Background(), l)); got != l {
		t.Error("FromContext() did not return the stored logger")
	}
}
