// README: Matching service offers open routes to nearby drivers and widens the offer when nobody accepts.
package matching

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"marketpace/internal/modules/route"
	"marketpace/internal/types"
)

var ErrBadRequest = errors.New("bad request")

// OfferSender delivers one route offer to one driver.
type OfferSender interface {
	SendOffer(ctx context.Context, driverID types.ID, offer route.Offer) error
}

// OpenRoutes lists routes that can still be accepted.
type OpenRoutes interface {
	ListAvailable(ctx context.Context) ([]*route.Route, error)
}

type Config struct {
	TickSeconds int
	RadiusKm    float64
}

type Service struct {
	store  Store
	sender OfferSender
	routes OpenRoutes
	cfg    Config
	log    *zap.Logger
	now    func() time.Time
}

func NewService(store Store, sender OfferSender, cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = 3
	}
	if cfg.TickSeconds <= 0 {
		cfg.TickSeconds = 3
	}
	return &Service{store: store, sender: sender, cfg: cfg, log: log, now: time.Now}
}

// SetRoutes attaches the route lister used by the scheduler. The route
// service depends on this one for dispatch, so it is wired after both exist.
func (s *Service) SetRoutes(routes OpenRoutes) {
	s.routes = routes
}

// UpdateDriver records a driver's current position.
func (s *Service) UpdateDriver(ctx context.Context, driverID types.ID, at types.Point) error {
	if driverID == "" || at.IsZero() {
		return fmt.Errorf("%w: driver id and position are required", ErrBadRequest)
	}
	return s.store.UpsertDriver(ctx, Candidate{DriverID: driverID, Position: at, UpdatedAt: s.now()})
}

// RemoveDriver takes a driver out of the offer pool.
func (s *Service) RemoveDriver(ctx context.Context, driverID types.ID) error {
	return s.store.RemoveDriver(ctx, driverID)
}

// OfferRoute notifies a random sample of nearby drivers that have not seen
// this route yet.
func (s *Service) OfferRoute(ctx context.Context, offer route.Offer) error {
	_, err := s.dispatch(ctx, offer, s.cfg.RadiusKm, selectPoolSize, notifyInitialCount)
	return err
}

func (s *Service) dispatch(ctx context.Context, offer route.Offer, radiusKm float64, pool, pick int) (Dispatch, error) {
	d := Dispatch{RouteID: offer.RouteID, At: s.now()}
	if offer.RouteID == "" {
		return d, fmt.Errorf("%w: route id is required", ErrBadRequest)
	}

	seen, err := s.store.Notified(ctx, offer.RouteID)
	if err != nil {
		return d, err
	}
	nearby, err := s.store.NearbyDrivers(ctx, offer.Origin, radiusKm, pool+len(seen))
	if err != nil {
		return d, err
	}
	fresh := exclude(nearby, seen)
	if len(fresh) > pool {
		fresh = fresh[:pool]
	}

	for _, driverID := range PickRandomDrivers(fresh, pick) {
		if err := s.sender.SendOffer(ctx, driverID, offer); err != nil {
			s.log.Warn("route offer not delivered",
				zap.String("route_id", string(offer.RouteID)),
				zap.String("driver_id", string(driverID)),
				zap.Error(err),
			)
			continue
		}
		d.Notified = append(d.Notified, driverID)
	}

	if err := s.store.RecordDispatch(ctx, offer.RouteID, d.Notified, d.At); err != nil {
		return d, err
	}
	s.log.Info("route offered",
		zap.String("route_id", string(offer.RouteID)),
		zap.Int("notified", len(d.Notified)),
	)
	return d, nil
}

// RunScheduler widens offers for routes still open after broadcastDelay until ctx ends.
func (s *Service) RunScheduler(ctx context.Context) {
	tick := time.Duration(s.cfg.TickSeconds) * time.Second
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickBroadcast(ctx)
		}
	}
}

func (s *Service) tickBroadcast(ctx context.Context) {
	if s.routes == nil {
		return
	}
	open, err := s.routes.ListAvailable(ctx)
	if err != nil {
		s.log.Warn("list open routes failed", zap.Error(err))
		return
	}
	now := s.now()
	for _, r := range open {
		if err := s.widen(ctx, r, now); err != nil {
			s.log.Warn("widen offer failed", zap.String("route_id", string(r.ID)), zap.Error(err))
		}
	}
}

func (s *Service) widen(ctx context.Context, r *route.Route, now time.Time) error {
	offer := route.OfferFor(r)
	at, ok, err := s.store.GetDispatchedAt(ctx, r.ID)
	if err != nil {
		return err
	}
	if !ok {
		_, err := s.dispatch(ctx, offer, s.cfg.RadiusKm, selectPoolSize, notifyInitialCount)
		return err
	}
	if now.Sub(at) < broadcastDelay {
		return nil
	}
	done, err := s.store.IsBroadcast(ctx, r.ID)
	if err != nil || done {
		return err
	}
	radius := s.cfg.RadiusKm * broadcastRadiusFactor
	if _, err := s.dispatch(ctx, offer, radius, broadcastExtraCount, broadcastExtraCount); err != nil {
		return err
	}
	return s.store.MarkBroadcast(ctx, r.ID)
}

// PickRandomDrivers returns up to n distinct drivers from pool in random order.
// The pool is not modified.
func PickRandomDrivers(pool []types.ID, n int) []types.ID {
	if n <= 0 || len(pool) == 0 {
		return nil
	}
	cp := make([]types.ID, len(pool))
	copy(cp, pool)
	rand.Shuffle(len(cp), func(i, j int) { cp[i], cp[j] = cp[j], cp[i] })
	if n < len(cp) {
		cp = cp[:n]
	}
	return cp
}

func exclude(ids, drop []types.ID) []types.ID {
	if len(drop) == 0 {
		return ids
	}
	skip := make(map[types.ID]struct{}, len(drop))
	for _, d := range drop {
		skip[d] = struct{}{}
	}
	out := make([]types.ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
