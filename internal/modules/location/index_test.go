package location

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"marketpace/internal/types"
)

func newTestIndex(t *testing.T) *RouteIndex {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRouteIndex(rdb)
}

var (
	timesSquare = types.Point{Lat: 40.7580, Lng: -73.9855}
	unionSquare = types.Point{Lat: 40.7359, Lng: -73.9911}
	brooklyn    = types.Point{Lat: 40.6782, Lng: -73.9442}
	newark      = types.Point{Lat: 40.7357, Lng: -74.1724}
)

func TestNearbyRoutes_OrderedByDistance(t *testing.T) {
	ctx := context.Background()
	x := newTestIndex(t)

	for id, p := range map[types.ID]types.Point{"r-union": unionSquare, "r-bk": brooklyn, "r-newark": newark} {
		if err := x.IndexRoute(ctx, id, p); err != nil {
			t.Fatalf("index %s: %v", id, err)
		}
	}

	got, err := x.NearbyRoutes(ctx, timesSquare, 12, 10)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 2 || got[0] != "r-union" || got[1] != "r-bk" {
		t.Fatalf("unexpected routes: %v", got)
	}
}

func TestNearbyRoutes_Limit(t *testing.T) {
	ctx := context.Background()
	x := newTestIndex(t)
	_ = x.IndexRoute(ctx, "a", unionSquare)
	_ = x.IndexRoute(ctx, "b", brooklyn)

	got, err := x.NearbyRoutes(ctx, timesSquare, 50, 1)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected only the closest route, got %v", got)
	}
}

func TestRemoveRoute(t *testing.T) {
	ctx := context.Background()
	x := newTestIndex(t)
	_ = x.IndexRoute(ctx, "a", unionSquare)

	if err := x.RemoveRoute(ctx, "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := x.RemoveRoute(ctx, "missing"); err != nil {
		t.Fatalf("remove missing should be a no-op: %v", err)
	}
	got, err := x.NearbyRoutes(ctx, timesSquare, 50, 10)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty index, got %v", got)
	}
}

func TestIndexRoute_Validation(t *testing.T) {
	ctx := context.Background()
	x := newTestIndex(t)

	if err := x.IndexRoute(ctx, "", unionSquare); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for empty id, got %v", err)
	}
	if err := x.IndexRoute(ctx, "a", types.Point{}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for zero point, got %v", err)
	}
	if _, err := x.NearbyRoutes(ctx, timesSquare, 0, 10); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for zero radius, got %v", err)
	}
}
