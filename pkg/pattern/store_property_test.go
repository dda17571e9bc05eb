package pattern

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPropertySetVelocityReadBack(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("set then read returns the level", prop.ForAll(
		func(bar, row, step int, lvl uint8) bool {
			s := NewStore()
			if err := s.Resize(4, 64); err != nil {
				return false
			}
			level := Level(lvl)
			if err := s.SetVelocity(bar, row, step, level); err != nil {
				return false
			}
			got, err := s.Velocity(bar, row, step)
			return err == nil && got == level
		},
		gen.IntRange(0, 3),
		gen.IntRange(0, NumRows-1),
		gen.IntRange(0, 63),
		gen.UInt8Range(0, 3),
	))

	properties.Property("out of range writes leave the grid untouched", prop.ForAll(
		func(bar, row, step int) bool {
			s := NewStore()
			_ = s.SetVelocity(0, 1, 1, High)
			before := s.Pattern()
			if bar >= 0 && bar < 1 && row >= 0 && row < NumRows && step >= 0 && step < 16 {
				return true
			}
			err := s.SetVelocity(bar, row, step, Mid)
			return err != nil && s.Pattern().Equal(before)
		},
		gen.IntRange(-3, 4),
		gen.IntRange(-3, 12),
		gen.IntRange(-5, 40),
	))

	properties.TestingRun(t)
}

func TestPropertyResizeRoundTripPreservesCells(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("grow then shrink keeps cells below the smaller resolution", prop.ForAll(
		func(from, to int, seed []float64) bool {
			small, large := Resolutions[from], Resolutions[to]
			if small > large {
				small, large = large, small
			}
			if len(seed) == 0 {
				seed = []float64{0.5}
			}

			s := NewStore(WithRandom(&seqRandom{vals: seed}))
			if err := s.Resize(2, small); err != nil {
				return false
			}
			_ = s.Randomize(0, 0.6, Low, High)
			_ = s.Randomize(1, 0.6, Low, High)
			before := s.Pattern()

			if err := s.Resize(2, large); err != nil {
				return false
			}
			if err := s.Resize(2, small); err != nil {
				return false
			}
			return s.Pattern().Equal(before)
		},
		gen.IntRange(0, len(Resolutions)-1),
		gen.IntRange(0, len(Resolutions)-1),
		gen.SliceOf(gen.Float64Range(0, 0.999)),
	))

	properties.TestingRun(t)
}
