package pattern

import "fmt"

// VelocityMap assigns a MIDI velocity to each level. Index Off is ignored
// on output; Low < Mid < High must hold.
type VelocityMap [4]uint8

// DefaultVelocities is the stock 40/80/120 banding.
var DefaultVelocities = VelocityMap{0, 40, 80, 120}

// Validate checks that the bands are strictly increasing and within MIDI
// range.
func (m VelocityMap) Validate() error {
	if m[Low] == 0 {
		return fmt.Errorf("%w: low velocity must be above 0", ErrOutOfRange)
	}
	if !(m[Low] < m[Mid] && m[Mid] < m[High]) {
		return fmt.Errorf("%w: velocities %d/%d/%d are not increasing", ErrOutOfRange, m[Low], m[Mid], m[High])
	}
	if m[High] > 127 {
		return fmt.Errorf("%w: high velocity %d (max 127)", ErrOutOfRange, m[High])
	}
	return nil
}

// Velocity returns the MIDI velocity for a level; Off is 0.
func (m VelocityMap) Velocity(l Level) uint8 {
	if l == Off || !l.Valid() {
		return 0
	}
	return m[l]
}

// Level returns the level whose band is nearest to v. Zero maps to Off and
// every other velocity to at least Low.
func (m VelocityMap) Level(v uint8) Level {
	if v == 0 {
		return Off
	}
	best, bestDist := Low, -1
	for _, l := range []Level{Low, Mid, High} {
		d := int(v) - int(m[l])
		if d < 0 {
			d = -d
		}
		// ties go to the louder band
		if bestDist < 0 || d <= bestDist {
			best, bestDist = l, d
		}
	}
	return best
}
