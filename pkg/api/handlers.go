package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/james-see/drumgrid/pkg/emitter"
	"github.com/james-see/drumgrid/pkg/pattern"
	"github.com/james-see/drumgrid/pkg/serializer"
)

type cellRequest struct {
	Bar   int    `json:"bar"`
	Row   int    `json:"row"`
	Step  int    `json:"step"`
	Level string `json:"level" binding:"required"`
}

type resizeRequest struct {
	Bars        int `json:"bars"`
	StepsPerBar int `json:"stepsPerBar"`
}

type tempoRequest struct {
	BPM *float64 `json:"bpm" binding:"required"`
}

type swingRequest struct {
	Swing *float64 `json:"swing" binding:"required"`
}

type rowRequest struct {
	Name     string `json:"name" binding:"required"`
	MidiNote *int   `json:"midiNote" binding:"required"`
}

type randomizeRequest struct {
	Density *float64 `json:"density"`
	Min     string   `json:"min"`
	Max     string   `json:"max"`
}

type humanizeRequest struct {
	Jitter *int `json:"jitter"`
}

// snapshotView is a copied bar: cells indexed [row][step] as level ordinals.
type snapshotView struct {
	Rows  int     `json:"rows"`
	Steps int     `json:"steps"`
	Cells [][]int `json:"cells"`
}

func viewOf(snap pattern.Snapshot) snapshotView {
	v := snapshotView{Rows: snap.Rows(), Steps: snap.Steps(), Cells: make([][]int, snap.Rows())}
	for r := range v.Cells {
		v.Cells[r] = make([]int, snap.Steps())
		for st := range v.Cells[r] {
			v.Cells[r][st] = int(snap.Cell(r, st))
		}
	}
	return v
}

func (v snapshotView) snapshot() (pattern.Snapshot, error) {
	cells := make([]pattern.Level, 0, v.Rows*v.Steps)
	if len(v.Cells) != v.Rows {
		return pattern.Snapshot{}, fmt.Errorf("%w: %d rows of cells for %d rows", pattern.ErrShapeMismatch, len(v.Cells), v.Rows)
	}
	for r, row := range v.Cells {
		if len(row) != v.Steps {
			return pattern.Snapshot{}, fmt.Errorf("%w: row %d has %d steps, want %d", pattern.ErrShapeMismatch, r, len(row), v.Steps)
		}
		for _, l := range row {
			if l < int(pattern.Off) || l > int(pattern.High) {
				return pattern.Snapshot{}, fmt.Errorf("%w: level %d", pattern.ErrOutOfRange, l)
			}
			cells = append(cells, pattern.Level(l))
		}
	}
	return pattern.NewSnapshot(v.Rows, v.Steps, cells)
}

func pathInt(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s %q", name, c.Param(name))})
		return 0, false
	}
	return n, true
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "drumgrid",
	})
}

// getPattern godoc
// @Summary Get the pattern
// @Description Returns the whole pattern in its file layout
// @Tags pattern
// @Produce json
// @Success 200 {object} serializer.Document
// @Router /api/v1/pattern [get]
func (s *Server) getPattern(c *gin.Context) {
	c.JSON(http.StatusOK, serializer.ToDocument(s.store.Pattern()))
}

// putPattern godoc
// @Summary Replace the pattern
// @Description Replaces the pattern with a pattern file (current or legacy layout)
// @Tags pattern
// @Accept json
// @Produce json
// @Success 200 {object} serializer.Document
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/pattern [put]
func (s *Server) putPattern(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	var p *pattern.Pattern
	if serializer.DetectFormatFromContent(data) == serializer.FormatLegacy {
		p, err = serializer.LoadLegacy(data, s.em.Velocities())
	} else {
		p, err = serializer.Load(data)
	}
	if err == nil {
		err = s.store.Replace(p)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	s.logger.Info("pattern replaced", "bars", len(p.Bars), "steps", p.StepsPerBar)
	c.JSON(http.StatusOK, serializer.ToDocument(s.store.Pattern()))
}

// getCell godoc
// @Summary Read one cell
// @Tags cells
// @Produce json
// @Param bar path int true "Bar index"
// @Param row path int true "Row index"
// @Param step path int true "Step index"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Router /api/v1/cells/{bar}/{row}/{step} [get]
func (s *Server) getCell(c *gin.Context) {
	bar, ok := pathInt(c, "bar")
	if !ok {
		return
	}
	row, ok := pathInt(c, "row")
	if !ok {
		return
	}
	step, ok := pathInt(c, "step")
	if !ok {
		return
	}
	level, err := s.store.Velocity(bar, row, step)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bar": bar, "row": row, "step": step, "level": level.String(), "velocity": s.em.Velocities().Velocity(level)})
}

// putCell godoc
// @Summary Set one cell
// @Description Sets the level (off, low, mid, high or 0-3) of one cell
// @Tags cells
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Router /api/v1/cells [put]
func (s *Server) putCell(c *gin.Context) {
	var req cellRequest
	if !bindJSON(c, &req) {
		return
	}
	level, err := pattern.ParseLevel(req.Level)
	if err == nil {
		err = s.store.SetVelocity(req.Bar, req.Row, req.Step, level)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bar": req.Bar, "row": req.Row, "step": req.Step, "level": level.String()})
}

// resize godoc
// @Summary Resize the pattern
// @Description Changes bar count and/or steps per bar; omitted fields keep their value
// @Tags pattern
// @Accept json
// @Produce json
// @Success 200 {object} map[string]int
// @Failure 400 {object} map[string]string
// @Router /api/v1/resize [post]
func (s *Server) resize(c *gin.Context) {
	var req resizeRequest
	if !bindJSON(c, &req) {
		return
	}
	tr := s.store.Transport()
	if req.Bars == 0 {
		req.Bars = tr.Bars
	}
	if req.StepsPerBar == 0 {
		req.StepsPerBar = tr.StepsPerBar
	}
	if err := s.store.Resize(req.Bars, req.StepsPerBar); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bars": req.Bars, "stepsPerBar": req.StepsPerBar})
}

// putTempo godoc
// @Summary Set the tempo
// @Tags transport
// @Accept json
// @Produce json
// @Success 200 {object} map[string]float64
// @Failure 400 {object} map[string]string
// @Router /api/v1/tempo [put]
func (s *Server) putTempo(c *gin.Context) {
	var req tempoRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := s.store.SetTempo(*req.BPM); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bpm": *req.BPM})
}

// putSwing godoc
// @Summary Set the swing amount
// @Tags transport
// @Accept json
// @Produce json
// @Success 200 {object} map[string]float64
// @Failure 400 {object} map[string]string
// @Router /api/v1/swing [put]
func (s *Server) putSwing(c *gin.Context) {
	var req swingRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := s.store.SetSwing(*req.Swing); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"swing": *req.Swing})
}

// putRow godoc
// @Summary Rename a row or change its note
// @Tags rows
// @Accept json
// @Produce json
// @Param row path int true "Row index"
// @Success 200 {object} serializer.RowDoc
// @Failure 400 {object} map[string]string
// @Router /api/v1/rows/{row} [put]
func (s *Server) putRow(c *gin.Context) {
	row, ok := pathInt(c, "row")
	if !ok {
		return
	}
	var req rowRequest
	if !bindJSON(c, &req) {
		return
	}
	if *req.MidiNote < 0 || *req.MidiNote > pattern.MaxNote {
		abortWithError(c, fmt.Errorf("%w: midi note %d", pattern.ErrOutOfRange, *req.MidiNote))
		return
	}
	if err := s.store.SetRow(row, req.Name, uint8(*req.MidiNote)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.RowDoc{Name: req.Name, MidiNote: *req.MidiNote})
}

// copyBar godoc
// @Summary Copy a bar
// @Description Copies a bar to the server clipboard and returns it
// @Tags bars
// @Produce json
// @Param bar path int true "Bar index"
// @Success 200 {object} snapshotView
// @Failure 400 {object} map[string]string
// @Router /api/v1/bars/{bar}/copy [post]
func (s *Server) copyBar(c *gin.Context) {
	bar, ok := pathInt(c, "bar")
	if !ok {
		return
	}
	snap, err := s.store.CopyBar(bar)
	if err != nil {
		abortWithError(c, err)
		return
	}
	s.mu.Lock()
	s.clipboard = &snap
	s.mu.Unlock()
	c.JSON(http.StatusOK, viewOf(snap))
}

// pasteBar godoc
// @Summary Paste into a bar
// @Description Pastes the request body snapshot, or the clipboard when the body is empty
// @Tags bars
// @Accept json
// @Produce json
// @Param bar path int true "Bar index"
// @Success 200 {object} snapshotView
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/bars/{bar}/paste [post]
func (s *Server) pasteBar(c *gin.Context) {
	bar, ok := pathInt(c, "bar")
	if !ok {
		return
	}

	var snap pattern.Snapshot
	if c.Request.ContentLength > 0 {
		var view snapshotView
		if !bindJSON(c, &view) {
			return
		}
		var err error
		if snap, err = view.snapshot(); err != nil {
			abortWithError(c, err)
			return
		}
	} else {
		s.mu.Lock()
		clip := s.clipboard
		s.mu.Unlock()
		if clip == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "clipboard is empty"})
			return
		}
		snap = *clip
	}

	if err := s.store.PasteBar(bar, snap); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(snap))
}

// clearBar godoc
// @Summary Clear a bar
// @Tags bars
// @Param bar path int true "Bar index"
// @Success 204
// @Failure 400 {object} map[string]string
// @Router /api/v1/bars/{bar}/clear [post]
func (s *Server) clearBar(c *gin.Context) {
	bar, ok := pathInt(c, "bar")
	if !ok {
		return
	}
	if err := s.store.ClearBar(bar); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// randomizeBar godoc
// @Summary Fill a bar with random hits
// @Description Density defaults to 0.3 and the level range to low-high
// @Tags bars
// @Accept json
// @Produce json
// @Param bar path int true "Bar index"
// @Success 200 {object} snapshotView
// @Failure 400 {object} map[string]string
// @Router /api/v1/bars/{bar}/randomize [post]
func (s *Server) randomizeBar(c *gin.Context) {
	bar, ok := pathInt(c, "bar")
	if !ok {
		return
	}
	req := randomizeRequest{Min: "low", Max: "high"}
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	density := 0.3
	if req.Density != nil {
		density = *req.Density
	}
	lo, err := pattern.ParseLevel(req.Min)
	if err != nil {
		abortWithError(c, err)
		return
	}
	hi, err := pattern.ParseLevel(req.Max)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := s.store.Randomize(bar, density, lo, hi); err != nil {
		abortWithError(c, err)
		return
	}
	s.respondBar(c, bar)
}

// humanizeBar godoc
// @Summary Jitter the levels of a bar
// @Description Moves every hit by up to jitter levels (default 1)
// @Tags bars
// @Accept json
// @Produce json
// @Param bar path int true "Bar index"
// @Success 200 {object} snapshotView
// @Failure 400 {object} map[string]string
// @Router /api/v1/bars/{bar}/humanize [post]
func (s *Server) humanizeBar(c *gin.Context) {
	bar, ok := pathInt(c, "bar")
	if !ok {
		return
	}
	var req humanizeRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	jitter := 1
	if req.Jitter != nil {
		jitter = *req.Jitter
	}
	if err := s.store.Humanize(bar, jitter); err != nil {
		abortWithError(c, err)
		return
	}
	s.respondBar(c, bar)
}

func (s *Server) respondBar(c *gin.Context, bar int) {
	snap, err := s.store.CopyBar(bar)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(snap))
}

// exportMIDI godoc
// @Summary Export as MIDI
// @Description Returns the pattern as a Standard MIDI File
// @Tags convert
// @Produce application/octet-stream
// @Success 200 {file} binary
// @Failure 500 {object} map[string]string
// @Router /api/v1/export [get]
func (s *Server) exportMIDI(c *gin.Context) {
	data, err := s.em.ExportFile(s.store.Pattern())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=pattern.mid")
	c.Data(http.StatusOK, "audio/midi", data)
}

// importMIDI godoc
// @Summary Import a MIDI file
// @Description Upload a MIDI file; its notes replace the pattern
// @Tags convert
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "MIDI file to import"
// @Param stepsPerBar query int false "Grid resolution (default: 16)"
// @Param quantize query bool false "Quantize before snapping"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Router /api/v1/import [post]
func (s *Server) importMIDI(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}

	steps, err := strconv.Atoi(c.DefaultQuery("stepsPerBar", "16"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stepsPerBar"})
		return
	}
	quantize := c.Query("quantize") == "true"

	res, err := s.em.ImportFile(data, emitter.ImportOptions{
		Rows:        s.store.Rows(),
		StepsPerBar: steps,
		Quantize:    quantize,
	})
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.Replace(res.Pattern); err != nil {
		abortWithError(c, err)
		return
	}

	unmatched := make(map[string]int, len(res.Unmatched))
	for note, n := range res.Unmatched {
		unmatched[strconv.Itoa(int(note))] = n
	}
	c.JSON(http.StatusOK, gin.H{
		"bars":        len(res.Pattern.Bars),
		"stepsPerBar": res.Pattern.StepsPerBar,
		"tempoBpm":    res.Pattern.TempoBPM,
		"hits":        res.Pattern.HitCount(),
		"unmatched":   unmatched,
		"truncated":   res.Truncated,
	})
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// getTiming godoc
// @Summary Step timing
// @Description Returns step, bar and pattern durations for the current transport
// @Tags transport
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/v1/timing [get]
func (s *Server) getTiming(c *gin.Context) {
	tr := s.store.Transport()
	c.JSON(http.StatusOK, gin.H{
		"tempoBpm":      tr.TempoBPM,
		"swing":         tr.Swing,
		"stepsPerBar":   tr.StepsPerBar,
		"bars":          tr.Bars,
		"nominalStepMs": millis(tr.NominalStep()),
		"evenStepMs":    millis(tr.StepDuration(0)),
		"oddStepMs":     millis(tr.StepDuration(1)),
		"barMs":         millis(tr.BarDuration()),
		"patternMs":     millis(tr.PatternDuration()),
	})
}

// listLevels godoc
// @Summary List velocity levels
// @Description Returns the level names with their MIDI velocities
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]map[string]any
// @Router /api/v1/levels [get]
func (s *Server) listLevels(c *gin.Context) {
	vm := s.em.Velocities()
	levels := make([]gin.H, 0, 4)
	for _, l := range []pattern.Level{pattern.Off, pattern.Low, pattern.Mid, pattern.High} {
		levels = append(levels, gin.H{"name": l.String(), "ordinal": int(l), "velocity": vm.Velocity(l)})
	}
	c.JSON(http.StatusOK, gin.H{"levels": levels})
}
