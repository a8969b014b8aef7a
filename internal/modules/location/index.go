// README: Redis GEO index of open routes, keyed by route origin.
package location

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"marketpace/internal/types"
)

const openRoutesKey = "geo:routes:open"

var ErrBadRequest = errors.New("bad request")

type RouteIndex struct {
	rdb *redis.Client
}

func NewRouteIndex(rdb *redis.Client) *RouteIndex {
	return &RouteIndex{rdb: rdb}
}

// IndexRoute adds or moves a route's origin in the open set.
func (x *RouteIndex) IndexRoute(ctx context.Context, routeID types.ID, at types.Point) error {
	if routeID == "" || at.IsZero() {
		return ErrBadRequest
	}
	return x.rdb.GeoAdd(ctx, openRoutesKey, &redis.GeoLocation{
		Name:      string(routeID),
		Longitude: at.Lng,
		Latitude:  at.Lat,
	}).Err()
}

func (x *RouteIndex) RemoveRoute(ctx context.Context, routeID types.ID) error {
	return x.rdb.ZRem(ctx, openRoutesKey, string(routeID)).Err()
}

// NearbyRoutes returns open route ids within radiusKm of at, closest first.
func (x *RouteIndex) NearbyRoutes(ctx context.Context, at types.Point, radiusKm float64, limit int) ([]types.ID, error) {
	if radiusKm <= 0 || limit <= 0 {
		return nil, ErrBadRequest
	}
	locs, err := x.rdb.GeoRadius(ctx, openRoutesKey, at.Lng, at.Lat, &redis.GeoRadiusQuery{
		Radius:   radiusKm,
		Unit:     "km",
		WithDist: true,
		Count:    limit,
		Sort:     "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]types.ID, 0, len(locs))
	for _, l := range locs {
		out = append(out, types.ID(l.Name))
	}
	return out, nil
}
