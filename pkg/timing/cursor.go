package timing

// Cursor is a playback position.
type Cursor struct {
	Bar  int
	Step int
}

// Next advances the cursor by one step. Steps wrap at StepsPerBar and bump
// the bar. With loop set the bar wraps to 0 after the last one; without it
// Next reports false once the last step of the last bar has been passed.
//
// A cursor that is out of range for t (the pattern shrank under it) is
// moved to the start of the following bar, or of the pattern.
func (c Cursor) Next(t Transport, loop bool) (Cursor, bool) {
	bars := t.Bars
	if bars < 1 {
		bars = 1
	}

	if c.Bar >= bars {
		if !loop {
			return c, false
		}
		return Cursor{}, true
	}

	n := Cursor{Bar: c.Bar, Step: c.Step + 1}
	if n.Step >= t.StepsPerBar {
		n.Step = 0
		n.Bar++
	}
	if n.Bar >= bars {
		if !loop {
			return c, false
		}
		n.Bar = 0
	}
	return n, true
}

// Valid reports whether c addresses a step inside t.
func (c Cursor) Valid(t Transport) bool {
	return c.Bar >= 0 && c.Bar < t.Bars && c.Step >= 0 && c.Step < t.StepsPerBar
}

// Walk calls fn for every position of one linear pass over t, in order.
// Walk stops early if fn returns false.
func Walk(t Transport, fn func(Cursor) bool) {
	if t.Bars < 1 || t.StepsPerBar < 1 {
		return
	}
	c := Cursor{}
	for ok := true; ok; c, ok = c.Next(t, false) {
		if !fn(c) {
			return
		}
	}
}
