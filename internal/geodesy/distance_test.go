package geodesy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// coincident points can still land a few centimetres off zero after acos.
const zeroTolerance = 0.5

func TestParseUnit(t *testing.T) {
	tests := []struct {
		in   string
		want Unit
	}{
		{"degrees", Degrees},
		{"Deg", Degrees},
		{"D", Degrees},
		{" radians ", Radians},
		{"RAD", Radians},
		{"r", Radians},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnit(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("invalid", func(t *testing.T) {
		_, err := ParseUnit("gradians")
		require.ErrorIs(t, err, ErrInvalidUnit)
		assert.Contains(t, err.Error(), "gradians")
	})
}

func TestDistance_KnownValues(t *testing.T) {
	// A quarter of a great circle along the equator.
	quarter := Distance(0, 0, 90, 0, Degrees, 0)
	assert.InDelta(t, math.Pi/2*EarthRadius, quarter, 1e-6)

	// One degree of latitude on the default sphere.
	oneDeg := Distance(10, 45, 10, 46, Degrees, EarthRadius)
	assert.InDelta(t, EarthRadius*math.Pi/180, oneDeg, 1e-3)

	// Unit sphere returns the central angle.
	assert.InDelta(t, math.Pi, Distance(0, 0, 180, 0, Degrees, 1), 1e-12)
}

func TestDistance_Symmetry(t *testing.T) {
	pts := [][2]float64{
		{0, 0}, {-179.5, 12}, {179.9, -12}, {45, 89.999}, {-120.25, -60.5}, {0.01, 0.01},
	}
	for _, a := range pts {
		for _, b := range pts {
			assert.InDelta(t,
				Distance(a[0], a[1], b[0], b[1], Degrees, 0),
				Distance(b[0], b[1], a[0], a[1], Degrees, 0),
				1e-9, "a=%v b=%v", a, b)
		}
	}
}

func TestDistance_ZeroIdentity(t *testing.T) {
	pts := [][2]float64{
		{0, 0}, {0, 90}, {0, -90}, {180, 0}, {-180, 45}, {179.999, -33.3}, {12.345, 67.891},
	}
	for _, p := range pts {
		d := Distance(p[0], p[1], p[0], p[1], Degrees, 0)
		assert.False(t, math.IsNaN(d), "NaN at %v", p)
		assert.InDelta(t, 0, d, zeroTolerance, "p=%v", p)
	}
}

func TestDistance_Antipodal(t *testing.T) {
	d := Distance(30, 40, -150, -40, Degrees, 0)
	assert.False(t, math.IsNaN(d))
	assert.InDelta(t, math.Pi*EarthRadius, d, 1)
}

func TestDistance_UnitEquivalence(t *testing.T) {
	deg := Distance(-97.5, 35.2, -80.1, 25.8, Degrees, 0)
	rad := Distance(-97.5*math.Pi/180, 35.2*math.Pi/180, -80.1*math.Pi/180, 25.8*math.Pi/180, Radians, 0)
	assert.InDelta(t, deg, rad, 1e-6)
}

func TestBroadcast(t *testing.T) {
	lons := []float64{0, 1, 2}
	lats := []float64{0, 0, 0}

	got, err := Broadcast(nil, lons, lats, []float64{0}, []float64{0}, Degrees, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range lons {
		assert.InDelta(t, Distance(lons[i], 0, 0, 0, Degrees, 0), got[i], 1e-9)
	}

	// Reuses a correctly sized buffer.
	buf := make([]float64, 3)
	out, err := Broadcast(buf, []float64{0}, []float64{0}, lons, lats, Degrees, 0)
	require.NoError(t, err)
	assert.Same(t, &buf[0], &out[0])

	_, err = Broadcast(nil, lons, []float64{0, 0}, []float64{0}, []float64{0}, Degrees, 0)
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Broadcast(nil, nil, lats, lons, lats, Degrees, 0)
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestField_MatchesDistance(t *testing.T) {
	lons := []float64{-10, 0, 10, 179.5, -179.5}
	lats := []float64{-5, 0, 5, 60, -89.9}

	f, err := NewField(lons, lats, Degrees)
	require.NoError(t, err)
	assert.Equal(t, 5, f.Len())

	got := f.DistancesFrom(nil, 3.5, -2.25, 0)
	for i := range lons {
		assert.InDelta(t, Distance(lons[i], lats[i], 3.5, -2.25, Degrees, 0), got[i], 1e-6)
	}

	same := f.DistancesFrom(got, lons[1], lats[1], 0)
	assert.InDelta(t, 0, same[1], zeroTolerance)
}

func TestField_Radians(t *testing.T) {
	f, err := NewField([]float64{0, math.Pi / 2}, []float64{0, 0}, Radians)
	require.NoError(t, err)
	got := f.DistancesFrom(nil, 0, 0, 1)
	assert.InDelta(t, 0, got[0], 1e-9)
	assert.InDelta(t, math.Pi/2, got[1], 1e-12)
}

func TestNewField_LengthMismatch(t *testing.T) {
	_, err := NewField([]float64{1, 2}, []float64{1}, Degrees)
	require.ErrorIs(t, err, ErrShapeMismatch)
}
