// README: Matching store backed by Redis GEO and sets.
package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"marketpace/internal/types"
)

const (
	driverGeoKey       = "matching:drivers"
	dispatchKeyPrefix  = "matching:route:%s:dispatched_at"
	notifiedKeyPrefix  = "matching:route:%s:notified"
	broadcastKeyPrefix = "matching:route:%s:broadcast"
	// Routes resolve well within a week.
	keyTTL = 7 * 24 * time.Hour
)

type Store interface {
	UpsertDriver(ctx context.Context, c Candidate) error
	RemoveDriver(ctx context.Context, id types.ID) error
	NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]types.ID, error)
	RecordDispatch(ctx context.Context, routeID types.ID, driverIDs []types.ID, at time.Time) error
	Notified(ctx context.Context, routeID types.ID) ([]types.ID, error)
	GetDispatchedAt(ctx context.Context, routeID types.ID) (time.Time, bool, error)
	MarkBroadcast(ctx context.Context, routeID types.ID) error
	IsBroadcast(ctx context.Context, routeID types.ID) (bool, error)
}

type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{redis: rdb}
}

func (s *RedisStore) UpsertDriver(ctx context.Context, c Candidate) error {
	return s.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(c.DriverID),
		Longitude: c.Position.Lng,
		Latitude:  c.Position.Lat,
	}).Err()
}

func (s *RedisStore) RemoveDriver(ctx context.Context, id types.ID) error {
	return s.redis.ZRem(ctx, driverGeoKey, string(id)).Err()
}

func (s *RedisStore) NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]types.ID, error) {
	results, err := s.redis.GeoRadius(ctx, driverGeoKey, p.Lng, p.Lat, &redis.GeoRadiusQuery{
		Radius: radiusKm,
		Unit:   "km",
		Count:  limit,
		Sort:   "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r.Name)
	}
	return ids, nil
}

// RecordDispatch keeps the first dispatch time and adds to the notified set.
func (s *RedisStore) RecordDispatch(ctx context.Context, routeID types.ID, driverIDs []types.ID, at time.Time) error {
	pipe := s.redis.Pipeline()
	pipe.SetNX(ctx, key(dispatchKeyPrefix, routeID), at.UTC().Format(time.RFC3339), keyTTL)
	if len(driverIDs) > 0 {
		members := make([]interface{}, len(driverIDs))
		for i, d := range driverIDs {
			members[i] = string(d)
		}
		notified := key(notifiedKeyPrefix, routeID)
		pipe.SAdd(ctx, notified, members...)
		pipe.Expire(ctx, notified, keyTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Notified(ctx context.Context, routeID types.ID) ([]types.ID, error) {
	members, err := s.redis.SMembers(ctx, key(notifiedKeyPrefix, routeID)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(members))
	for i, m := range members {
		ids[i] = types.ID(m)
	}
	return ids, nil
}

// GetDispatchedAt returns when the route was first offered, and whether it has been.
func (s *RedisStore) GetDispatchedAt(ctx context.Context, routeID types.ID) (time.Time, bool, error) {
	val, err := s.redis.Get(ctx, key(dispatchKeyPrefix, routeID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (s *RedisStore) MarkBroadcast(ctx context.Context, routeID types.ID) error {
	return s.redis.Set(ctx, key(broadcastKeyPrefix, routeID), "1", keyTTL).Err()
}

func (s *RedisStore) IsBroadcast(ctx context.Context, routeID types.ID) (bool, error) {
	val, err := s.redis.Get(ctx, key(broadcastKeyPrefix, routeID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "1", nil
}

func key(prefix string, routeID types.ID) string {
	return fmt.Sprintf(prefix, string(routeID))
}
