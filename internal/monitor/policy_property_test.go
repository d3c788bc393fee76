package monitor

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_HysteresisOnlyCrossingsChangeTier(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	p := DefaultPolicy()

	properties.Property("tier changes only on crossing the opposite threshold", prop.ForAll(
		func(samples []uint64) bool {
			tier := p.HighTier
			for _, usage := range samples {
				next := p.Next(tier, usage)
				switch {
				case next == tier:
				case next == p.LowTier && usage > p.HighWaterMB:
				case next == p.HighTier && usage < p.LowWaterMB:
				default:
					t.Logf("tier %d -> %d on %dMB", tier, next, usage)
					return false
				}
				if usage >= p.LowWaterMB && usage <= p.HighWaterMB && next != tier {
					return false
				}
				tier = next
			}
			return true
		},
		gen.SliceOf(gen.UInt64Range(0, 1000)),
	))

	properties.Property("result is always one of the two tiers", prop.ForAll(
		func(usage uint64, high bool) bool {
			current := p.LowTier
			if high {
				current = p.HighTier
			}
			next := p.Next(current, usage)
			return next == p.LowTier || next == p.HighTier
		},
		gen.UInt64Range(0, 5000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
