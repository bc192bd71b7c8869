package trigger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestFloorModeRatchet(t *testing.T) {
	band := NewBand(BandParams{
		InitialFloor: d(100),
		Depreciation: d(0.01),
	})

	// 120 seeds the bound at 118.8, 130 ratchets it to 128.7.
	assert.False(t, band.Observe(d(120)))
	assert.False(t, band.Observe(d(130)))

	// 128 discounts to 126.72, below the ratcheted bound.
	assert.True(t, band.Observe(d(128)))
}

func TestFloorModeBoundOnlyRises(t *testing.T) {
	band := NewBand(BandParams{
		InitialFloor: d(100),
		Depreciation: d(0.05),
	})

	assert.False(t, band.Observe(d(200)))
	lower, _, lowerSet, _ := band.Bounds()
	assert.True(t, lowerSet)
	assert.True(t, lower.Equal(d(200).Mul(d(0.95))))

	assert.False(t, band.Observe(d(250)))
	lower, _, _, _ = band.Bounds()
	assert.True(t, lower.Equal(d(250).Mul(d(0.95))))
}

func TestFloorModeNotEnforcedBelowInitialFloor(t *testing.T) {
	band := NewBand(BandParams{
		InitialFloor: d(204),
		Depreciation: d(0.01),
	})

	// Discounted prices never clear the floor, so no amount of chop fires.
	for _, p := range []float64{200, 203, 198, 205, 190} {
		assert.False(t, band.Observe(d(p)), "price %v", p)
	}
}

func TestCeilingModeRatchet(t *testing.T) {
	band := NewBand(BandParams{
		InitialCeiling: d(300),
		Appreciation:   d(0.01),
	})

	// 280 seeds the bound at 282.8, 260 ratchets it to 262.6.
	assert.False(t, band.Observe(d(280)))
	assert.False(t, band.Observe(d(260)))

	// 262 inflates to 264.62, above the ratcheted bound.
	assert.True(t, band.Observe(d(262)))
}

func TestUnboundedDepreciation(t *testing.T) {
	band := NewBand(BandParams{Depreciation: d(0.01)})

	assert.False(t, band.Observe(d(205)))
	assert.False(t, band.Observe(d(210))) // bound ratchets to 207.9

	// Shallow retrace stays inside the band.
	assert.False(t, band.Observe(d(208)))

	// 200 is below the 207.9 bound.
	assert.True(t, band.Observe(d(200)))
}

func TestUnboundedAppreciation(t *testing.T) {
	band := NewBand(BandParams{Appreciation: d(0.01)})

	assert.False(t, band.Observe(d(200)))
	assert.False(t, band.Observe(d(190))) // bound ratchets to 191.9

	assert.True(t, band.Observe(d(195)))
}

func TestNoTriggersFiresImmediately(t *testing.T) {
	band := NewBand(BandParams{})
	assert.True(t, band.Observe(d(100)))
}

func TestResetClearsBounds(t *testing.T) {
	band := NewBand(BandParams{Depreciation: d(0.01)})

	assert.False(t, band.Observe(d(210)))
	band.Reset()

	_, _, lowerSet, upperSet := band.Bounds()
	assert.False(t, lowerSet)
	assert.False(t, upperSet)

	// After reset the old 207.9 bound is gone; 200 just reseeds.
	assert.False(t, band.Observe(d(200)))
}
