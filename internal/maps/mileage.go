// README: Driving mileage between two points via Google Directions, with a straight-line fallback.
package maps

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"googlemaps.github.io/maps"

	"marketpace/internal/modules/location"
	"marketpace/internal/types"
)

const (
	metersPerMile = 1609.344
	// roadFactor approximates driving distance from great-circle distance.
	roadFactor = 1.3
)

var ErrNoRoute = errors.New("no route found")

// directions is the subset of *maps.Client used here.
type directions interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// MileageService estimates driving miles. Without an API key it only uses
// the straight-line fallback.
type MileageService struct {
	client directions
	log    *zap.Logger
}

// NewMileageService creates a MileageService. apiKey may be empty.
func NewMileageService(apiKey string, log *zap.Logger) (*MileageService, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if apiKey == "" {
		return &MileageService{log: log}, nil
	}
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &MileageService{client: client, log: log}, nil
}

// EstimateMiles returns driving miles from one point to another, rounded to a tenth.
func (s *MileageService) EstimateMiles(ctx context.Context, from, to types.Point) (float64, error) {
	if from.IsZero() || to.IsZero() {
		return 0, fmt.Errorf("%w: both points are required", ErrNoRoute)
	}
	if s.client != nil {
		miles, err := s.drivingMiles(ctx, from, to)
		if err == nil {
			return miles, nil
		}
		s.log.Warn("directions lookup failed, using straight-line estimate", zap.Error(err))
	}
	return roundTenth(location.DistanceMiles(from, to) * roadFactor), nil
}

func (s *MileageService) drivingMiles(ctx context.Context, from, to types.Point) (float64, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
		Units:       maps.UnitsImperial,
		Region:      "US",
	}
	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, ErrNoRoute
	}
	meters := 0
	for _, leg := range routes[0].Legs {
		meters += leg.Distance.Meters
	}
	return roundTenth(float64(meters) / metersPerMile), nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
