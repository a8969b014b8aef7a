package location

import (
	"math"
	"testing"

	"marketpace/internal/types"
)

func TestHaversineKm_SamePoint(t *testing.T) {
	if d := haversineKm(25.033, 121.565, 25.033, 121.565); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineKm_KnownDistance(t *testing.T) {
	// Taipei 101 to Taipei Main Station, roughly 4.6 km.
	d := haversineKm(25.0339, 121.5645, 25.0478, 121.5170)
	if d < 4.0 || d > 5.5 {
		t.Fatalf("expected ~4.6 km, got %f", d)
	}
}

func TestHaversineKm_Symmetric(t *testing.T) {
	a := haversineKm(40.7128, -74.0060, 34.0522, -118.2437)
	b := haversineKm(34.0522, -118.2437, 40.7128, -74.0060)
	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("not symmetric: %f vs %f", a, b)
	}
	if a < 3900 || a > 4000 {
		t.Fatalf("NYC-LA expected ~3936 km, got %f", a)
	}
}

func TestDistanceMiles(t *testing.T) {
	a := types.Point{Lat: 40.7128, Lng: -74.0060}
	b := types.Point{Lat: 40.7580, Lng: -73.9855}
	mi := DistanceMiles(a, b)
	if mi < 3.0 || mi > 3.6 {
		t.Fatalf("expected ~3.3 mi, got %f", mi)
	}
	if km := DistanceKm(a, b); math.Abs(km/mi-kmPerMile) > 1e-9 {
		t.Fatalf("km/mi ratio off: %f", km/mi)
	}
}

func TestMilesToKm(t *testing.T) {
	if got := MilesToKm(10); math.Abs(got-16.09344) > 1e-9 {
		t.Fatalf("got %f", got)
	}
}
