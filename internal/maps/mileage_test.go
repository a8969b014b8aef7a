package maps

import (
	"context"
	"errors"
	"testing"

	"googlemaps.github.io/maps"

	"marketpace/internal/types"
)

type stubDirections struct {
	routes []maps.Route
	err    error
	req    *maps.DirectionsRequest
}

func (s *stubDirections) Directions(_ context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error) {
	s.req = r
	return s.routes, nil, s.err
}

var (
	timesSquare = types.Point{Lat: 40.7580, Lng: -73.9855}
	unionSquare = types.Point{Lat: 40.7359, Lng: -73.9911}
)

func TestEstimateMiles_UsesDirections(t *testing.T) {
	stub := &stubDirections{routes: []maps.Route{{
		Legs: []*maps.Leg{{Distance: maps.Distance{Meters: 3219}}},
	}}}
	s := &MileageService{client: stub}

	got, err := s.EstimateMiles(context.Background(), timesSquare, unionSquare)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if got != 2.0 {
		t.Fatalf("expected 2.0 mi, got %v", got)
	}
	if stub.req.Mode != maps.TravelModeDriving || stub.req.Origin != "40.758000,-73.985500" {
		t.Fatalf("unexpected request %+v", stub.req)
	}
}

func TestEstimateMiles_FallsBackOnError(t *testing.T) {
	s, _ := NewMileageService("", nil)
	s.client = &stubDirections{err: errors.New("quota")}

	got, err := s.EstimateMiles(context.Background(), timesSquare, unionSquare)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	// ~1.55 mi straight line times the road factor.
	if got < 1.8 || got > 2.2 {
		t.Fatalf("unexpected fallback estimate %v", got)
	}
}

func TestEstimateMiles_NoKeyNoRoute(t *testing.T) {
	s, err := NewMileageService("", nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := s.EstimateMiles(context.Background(), types.Point{}, unionSquare); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
	s.client = &stubDirections{}
	got, err := s.EstimateMiles(context.Background(), timesSquare, unionSquare)
	if err != nil || got == 0 {
		t.Fatalf("expected fallback for empty routes, got %v %v", got, err)
	}
}
