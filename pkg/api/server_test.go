package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"

	"github.com/james-see/drumgrid/pkg/emitter"
	"github.com/james-see/drumgrid/pkg/pattern"
	"github.com/james-see/drumgrid/pkg/serializer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *pattern.Store) {
	t.Helper()
	em, err := emitter.New()
	if err != nil {
		t.Fatalf("emitter.New() error = %v", err)
	}
	store := pattern.NewStore()
	return NewServer(store, em, nil), store
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	for _, path := range []string{"/health", "/api/v1/health"} {
		w := do(t, s, http.MethodGet, path, "")
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "healthy") {
			t.Errorf("GET %s = %d %s", path, w.Code, w.Body.String())
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodOptions, "/api/v1/pattern", "")
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("OPTIONS = %d, headers %v", w.Code, w.Header())
	}
}

func TestCells(t *testing.T) {
	s, store := newTestServer(t)

	w := do(t, s, http.MethodPut, "/api/v1/cells", `{"bar":0,"row":1,"step":4,"level":"mid"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT /cells = %d %s", w.Code, w.Body.String())
	}
	if l, _ := store.Velocity(0, 1, 4); l != pattern.Mid {
		t.Errorf("cell = %s, want mid", l)
	}

	w = do(t, s, http.MethodGet, "/api/v1/cells/0/1/4", "")
	var cell struct {
		Level    string `json:"level"`
		Velocity int    `json:"velocity"`
	}
	decode(t, w, &cell)
	if cell.Level != "mid" || cell.Velocity != 80 {
		t.Errorf("GET /cells = %+v", cell)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"bad level", http.MethodPut, "/api/v1/cells", `{"bar":0,"row":0,"step":0,"level":"loud"}`, http.StatusBadRequest},
		{"missing level", http.MethodPut, "/api/v1/cells", `{"bar":0,"row":0,"step":0}`, http.StatusBadRequest},
		{"row out of range", http.MethodPut, "/api/v1/cells", `{"bar":0,"row":8,"step":0,"level":"low"}`, http.StatusBadRequest},
		{"bar out of range", http.MethodGet, "/api/v1/cells/3/0/0", "", http.StatusBadRequest},
		{"non-numeric step", http.MethodGet, "/api/v1/cells/0/0/x", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, s, tt.method, tt.path, tt.body); w.Code != tt.status {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, w.Code, tt.status)
			}
		})
	}
}

func TestPatternRoundTrip(t *testing.T) {
	s, store := newTestServer(t)
	_ = store.SetVelocity(0, 0, 0, pattern.High)

	w := do(t, s, http.MethodGet, "/api/v1/pattern", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /pattern = %d", w.Code)
	}
	var doc serializer.Document
	decode(t, w, &doc)
	if doc.FormatVersion != 1 || doc.Bars[0][0][0] != int(pattern.High) {
		t.Errorf("document = %+v", doc)
	}

	// change the saved data and put it back
	doc.TempoBPM = 140
	doc.Bars[0][1][2] = int(pattern.Low)
	body, _ := json.Marshal(doc)
	w = do(t, s, http.MethodPut, "/api/v1/pattern", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("PUT /pattern = %d %s", w.Code, w.Body.String())
	}
	if store.Transport().TempoBPM != 140 {
		t.Errorf("tempo = %v, want 140", store.Transport().TempoBPM)
	}
	if l, _ := store.Velocity(0, 1, 2); l != pattern.Low {
		t.Errorf("cell = %s, want low", l)
	}
}

func TestPutPatternErrors(t *testing.T) {
	s, store := newTestServer(t)
	before := store.Pattern()

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{"formatVersion":`, http.StatusBadRequest},
		{"future version", `{"formatVersion":9}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, s, http.MethodPut, "/api/v1/pattern", tt.body); w.Code != tt.status {
				t.Errorf("PUT /pattern = %d, want %d", w.Code, tt.status)
			}
		})
	}
	if !store.Pattern().Equal(before) {
		t.Error("failed PUT changed the pattern")
	}
}

func TestTransportAndResize(t *testing.T) {
	s, store := newTestServer(t)

	if w := do(t, s, http.MethodPut, "/api/v1/tempo", `{"bpm":90}`); w.Code != http.StatusOK {
		t.Errorf("PUT /tempo = %d", w.Code)
	}
	if w := do(t, s, http.MethodPut, "/api/v1/tempo", `{"bpm":300}`); w.Code != http.StatusBadRequest {
		t.Errorf("PUT /tempo 300 = %d, want 400", w.Code)
	}
	if w := do(t, s, http.MethodPut, "/api/v1/swing", `{"swing":0.25}`); w.Code != http.StatusOK {
		t.Errorf("PUT /swing = %d", w.Code)
	}
	if w := do(t, s, http.MethodPut, "/api/v1/swing", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("PUT /swing without value = %d, want 400", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/api/v1/resize", `{"bars":4}`); w.Code != http.StatusOK {
		t.Errorf("POST /resize = %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/api/v1/resize", `{"stepsPerBar":24}`); w.Code != http.StatusBadRequest {
		t.Errorf("POST /resize 24 = %d, want 400", w.Code)
	}

	tr := store.Transport()
	if tr.TempoBPM != 90 || tr.Swing != 0.25 || tr.Bars != 4 || tr.StepsPerBar != 16 {
		t.Errorf("Transport() = %+v", tr)
	}

	w := do(t, s, http.MethodGet, "/api/v1/timing", "")
	var timing map[string]float64
	decode(t, w, &timing)
	// 90 BPM, 16 steps: 166.67ms nominal, swing 0.25
	if timing["barMs"] < 2666 || timing["barMs"] > 2667 {
		t.Errorf("barMs = %v", timing["barMs"])
	}
	if timing["evenStepMs"]+timing["oddStepMs"] < 333.3 || timing["evenStepMs"]+timing["oddStepMs"] > 333.4 {
		t.Errorf("step pair = %v + %v", timing["evenStepMs"], timing["oddStepMs"])
	}
}

func TestRows(t *testing.T) {
	s, store := newTestServer(t)
	if w := do(t, s, http.MethodPut, "/api/v1/rows/2", `{"name":"Ride","midiNote":51}`); w.Code != http.StatusOK {
		t.Fatalf("PUT /rows/2 = %d %s", w.Code, w.Body.String())
	}
	if r, _ := store.Row(2); r.Name != "Ride" || r.MidiNote != 51 {
		t.Errorf("Row(2) = %+v", r)
	}
	if w := do(t, s, http.MethodPut, "/api/v1/rows/2", `{"name":"Ride","midiNote":200}`); w.Code != http.StatusBadRequest {
		t.Errorf("note 200 = %d, want 400", w.Code)
	}
	if w := do(t, s, http.MethodPut, "/api/v1/rows/9", `{"name":"Ride","midiNote":51}`); w.Code != http.StatusBadRequest {
		t.Errorf("row 9 = %d, want 400", w.Code)
	}
}

func TestCopyPasteBar(t *testing.T) {
	s, store := newTestServer(t)
	_ = store.SetBars(2)
	_ = store.SetVelocity(0, 3, 5, pattern.High)

	if w := do(t, s, http.MethodPost, "/api/v1/bars/1/paste", ""); w.Code != http.StatusBadRequest {
		t.Errorf("paste with empty clipboard = %d, want 400", w.Code)
	}

	w := do(t, s, http.MethodPost, "/api/v1/bars/0/copy", "")
	var view snapshotView
	decode(t, w, &view)
	if view.Rows != 8 || view.Steps != 16 || view.Cells[3][5] != int(pattern.High) {
		t.Errorf("copy = %+v", view)
	}

	if w := do(t, s, http.MethodPost, "/api/v1/bars/1/paste", ""); w.Code != http.StatusOK {
		t.Fatalf("paste = %d %s", w.Code, w.Body.String())
	}
	if l, _ := store.Velocity(1, 3, 5); l != pattern.High {
		t.Errorf("pasted cell = %s, want high", l)
	}

	// a snapshot of the wrong shape is rejected
	_ = store.SetStepsPerBar(32)
	if w := do(t, s, http.MethodPost, "/api/v1/bars/1/paste", ""); w.Code != http.StatusConflict {
		t.Errorf("paste 16-step bar into 32-step pattern = %d, want 409", w.Code)
	}

	if w := do(t, s, http.MethodPost, "/api/v1/bars/1/clear", ""); w.Code != http.StatusNoContent {
		t.Errorf("clear = %d", w.Code)
	}
	if l, _ := store.Velocity(1, 3, 5); l != pattern.Off {
		t.Errorf("cleared cell = %s", l)
	}
}

func TestRandomizeAndHumanize(t *testing.T) {
	s, store := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/v1/bars/0/randomize", `{"density":1,"min":"mid","max":"mid"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("randomize = %d %s", w.Code, w.Body.String())
	}
	p := store.Pattern()
	if p.HitCount() != 8*16 {
		t.Errorf("HitCount() = %d, want every cell", p.HitCount())
	}

	if w := do(t, s, http.MethodPost, "/api/v1/bars/0/humanize", `{"jitter":0}`); w.Code != http.StatusOK {
		t.Errorf("humanize = %d", w.Code)
	}
	if !store.Pattern().Equal(p) {
		t.Error("humanize with zero jitter changed the bar")
	}

	if w := do(t, s, http.MethodPost, "/api/v1/bars/0/randomize", `{"density":2}`); w.Code != http.StatusBadRequest {
		t.Errorf("density 2 = %d, want 400", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/api/v1/bars/5/humanize", ""); w.Code != http.StatusBadRequest {
		t.Errorf("humanize bar 5 = %d, want 400", w.Code)
	}
}

func TestExportImport(t *testing.T) {
	s, store := newTestServer(t)
	_ = store.SetVelocity(0, 0, 0, pattern.High)
	_ = store.SetVelocity(0, 1, 4, pattern.Mid)

	w := do(t, s, http.MethodGet, "/api/v1/export", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "audio/midi" {
		t.Fatalf("export = %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	midiData := w.Body.Bytes()
	if !bytes.HasPrefix(midiData, []byte("MThd")) {
		t.Fatal("export is not a MIDI file")
	}
	want := store.Pattern()

	_ = store.ClearBar(0)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "beat.mid")
	_, _ = fw.Write(midiData)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("import = %d %s", rec.Code, rec.Body.String())
	}
	if !store.Pattern().Equal(want) {
		t.Error("imported pattern differs from the exported one")
	}

	if w := do(t, s, http.MethodPost, "/api/v1/import", ""); w.Code != http.StatusBadRequest {
		t.Errorf("import without file = %d, want 400", w.Code)
	}
}

func TestLevels(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/api/v1/levels", "")
	var resp struct {
		Levels []struct {
			Name     string `json:"name"`
			Velocity int    `json:"velocity"`
		} `json:"levels"`
	}
	decode(t, w, &resp)
	if len(resp.Levels) != 4 || resp.Levels[3].Name != "high" || resp.Levels[3].Velocity != 120 {
		t.Errorf("levels = %+v", resp.Levels)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := s.Serve(ctx, 0); err != nil {
		t.Errorf("Serve() error = %v, want nil after cancel", err)
	}
}
