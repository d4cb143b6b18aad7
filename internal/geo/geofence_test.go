package geo_test

import (
	"math"
	"testing"

	"classattend/internal/geo"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	t.Run("identical points", func(t *testing.T) {
		p := geo.Point{Lat: 12.9716, Lon: 77.5946}
		require.Zero(t, geo.Distance(p, p))
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		d := geo.Distance(geo.Point{Lat: 0, Lon: 0}, geo.Point{Lat: 1, Lon: 0})
		require.InDelta(t, 111195, d, 1)
	})

	t.Run("symmetric", func(t *testing.T) {
		a := geo.Point{Lat: 51.5007, Lon: -0.1246}
		b := geo.Point{Lat: 40.6892, Lon: -74.0445}
		require.InDelta(t, geo.Distance(a, b), geo.Distance(b, a), 1e-6)
		require.InDelta(t, 5574840, geo.Distance(a, b), 2000)
	})
}

func TestIsWithin(t *testing.T) {
	g := geo.Geofence{Lat: 10, Lon: 20, Radius: 50}

	t.Run("center is always inside", func(t *testing.T) {
		for _, r := range []float64{0.001, 10, 50, 500} {
			g := geo.Geofence{Lat: -33.8688, Lon: 151.2093, Radius: r}
			require.True(t, geo.IsWithin(g.Center(), g))
		}
	})

	t.Run("matches haversine distance", func(t *testing.T) {
		// ~0.0003 degrees latitude is ~33m
		near := geo.Point{Lat: 10.0003, Lon: 20}
		far := geo.Point{Lat: 10.001, Lon: 20}
		require.True(t, geo.IsWithin(near, g))
		require.False(t, geo.IsWithin(far, g))
		require.Equal(t, geo.Distance(far, g.Center()) <= g.Radius, geo.IsWithin(far, g))
	})

	t.Run("boundary is inside", func(t *testing.T) {
		p := geo.Point{Lat: 10.001, Lon: 20}
		edge := geo.Geofence{Lat: 10, Lon: 20, Radius: geo.Distance(p, geo.Point{Lat: 10, Lon: 20})}
		require.True(t, geo.IsWithin(p, edge))
	})
}

func TestValidCoordinates(t *testing.T) {
	require.True(t, geo.ValidCoordinates(geo.Point{Lat: 90, Lon: -180}))
	require.False(t, geo.ValidCoordinates(geo.Point{Lat: 91, Lon: 0}))
	require.False(t, geo.ValidCoordinates(geo.Point{Lat: 0, Lon: 181}))
	require.False(t, geo.ValidCoordinates(geo.Point{Lat: math.NaN(), Lon: 0}))
}
