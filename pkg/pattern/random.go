package pattern

import (
	"fmt"
)

// Randomize overwrites one bar with random hits. Each cell is independently
// Off with probability 1-density, otherwise a level drawn uniformly from
// [lo, hi].
func (s *Store) Randomize(bar int, density float64, lo, hi Level) error {
	if !(density >= 0 && density <= 1) {
		return fmt.Errorf("%w: density %v (want 0-1)", ErrOutOfRange, density)
	}
	if lo == Off || hi == Off || !lo.Valid() || !hi.Valid() {
		return fmt.Errorf("%w: velocity range %s-%s", ErrOutOfRange, lo, hi)
	}
	if lo > hi {
		lo, hi = hi, lo
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkBar(bar); err != nil {
		return err
	}

	span := int(hi-lo) + 1
	b := NewBar(NumRows, s.p.StepsPerBar)
	for i := range b.cells {
		if s.rnd.Float64() < density {
			b.cells[i] = lo + Level(pick(s.rnd, span))
		}
	}
	s.p.Bars[bar] = b
	return nil
}

// Humanize nudges every non-Off cell of one bar by a uniform random amount
// in [-jitter, +jitter] levels, clamped to Low..High. Off cells never change
// and no cell becomes Off.
func (s *Store) Humanize(bar int, jitter int) error {
	if jitter < 0 {
		return fmt.Errorf("%w: jitter %d", ErrOutOfRange, jitter)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkBar(bar); err != nil {
		return err
	}

	b := s.p.Bars[bar].clone()
	for i, c := range b.cells {
		if c == Off {
			continue
		}
		delta := pick(s.rnd, 2*jitter+1) - jitter
		v := int(c) + delta
		if v < int(Low) {
			v = int(Low)
		}
		if v > int(High) {
			v = int(High)
		}
		b.cells[i] = Level(v)
	}
	s.p.Bars[bar] = b
	return nil
}

// pick returns a uniform integer in [0, n).
func pick(r RandomSource, n int) int {
	i := int(r.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}
