// README: Route service implements the route and stop state transitions and persistence.
package route

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"marketpace/internal/modules/fees"
	"marketpace/internal/modules/settlement"
	"marketpace/internal/obs"
	"marketpace/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid state transition")
	ErrNotFound     = errors.New("route not found")
	ErrConflict     = errors.New("route state conflict")
	ErrBadRequest   = errors.New("bad request")
	ErrRouteClosed  = errors.New("route closed for acceptance")
	ErrNotAssigned  = errors.New("driver not assigned to route")
	ErrTooEarly     = errors.New("too early to start route")
	ErrNotTipper    = errors.New("caller is not the tipping customer")
)

// InvalidTransitionError names the entity and the refused move.
type InvalidTransitionError struct {
	Entity string
	ID     types.ID
	From   string
	To     string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid %s transition %s -> %s", e.Entity, e.From, e.To)
	if e.ID != "" {
		msg += " (" + string(e.ID) + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidState }

type RouteClosedError struct {
	RouteID  types.ID
	ClosesAt time.Time
}

func (e *RouteClosedError) Error() string {
	return fmt.Sprintf("route %s closed for acceptance at %s", e.RouteID, e.ClosesAt.Format(time.RFC3339))
}

func (e *RouteClosedError) Is(target error) bool { return target == ErrRouteClosed }

// Settler settles terminal deliveries. Implemented by settlement.Service.
type Settler interface {
	Settle(ctx context.Context, d settlement.Delivery) (settlement.Result, error)
	SettleRejection(ctx context.Context, d settlement.Delivery) (settlement.Result, error)
}

// Notifier pushes a status label to a customer. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, customerID types.ID, label string) error
}

// Index keeps open routes searchable by distance from their origin.
type Index interface {
	IndexRoute(ctx context.Context, routeID types.ID, at types.Point) error
	RemoveRoute(ctx context.Context, routeID types.ID) error
	NearbyRoutes(ctx context.Context, at types.Point, radiusKm float64, limit int) ([]types.ID, error)
}

// Offer is what nearby drivers are told about a newly open route.
type Offer struct {
	RouteID           types.ID
	TimeSlot          string
	StartTime         time.Time
	Origin            types.Point
	Stops             int
	TotalMiles        float64
	EstimatedEarnings types.Money
}

type Dispatcher interface {
	OfferRoute(ctx context.Context, offer Offer) error
}

type MileageEstimator interface {
	EstimateMiles(ctx context.Context, from, to types.Point) (float64, error)
}

type Deps struct {
	Settler    Settler
	Notifier   Notifier
	Index      Index
	Dispatcher Dispatcher
	Mileage    MileageEstimator
	Log        *zap.Logger
	Now        func() time.Time
}

type Service struct {
	store      Store
	settler    Settler
	notifier   Notifier
	index      Index
	dispatcher Dispatcher
	mileage    MileageEstimator
	log        *zap.Logger
	now        func() time.Time
}

func NewService(store Store, deps Deps) *Service {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		store:      store,
		settler:    deps.Settler,
		notifier:   deps.Notifier,
		index:      deps.Index,
		dispatcher: deps.Dispatcher,
		mileage:    deps.Mileage,
		log:        deps.Log,
		now:        deps.Now,
	}
}

type PublishOrder struct {
	OrderID  types.ID
	BuyerID  types.ID
	SellerID types.ID
	Mileage  float64
	IsLarge  bool
	Pickup   Place
	Dropoff  Place
}

type Place struct {
	Address  string
	Position types.Point
}

// PublishStop fixes the visiting order. When a publish carries no stops,
// every pickup is visited before any dropoff, in order sequence.
type PublishStop struct {
	OrderID types.ID
	Kind    StopKind
}

type PublishCommand struct {
	TimeSlot  string
	StartTime time.Time
	Orders    []PublishOrder
	Stops     []PublishStop
}

type AcceptCommand struct {
	RouteID  types.ID
	DriverID types.ID
}

type StartCommand struct {
	RouteID  types.ID
	DriverID types.ID
}

type PauseCommand struct {
	RouteID  types.ID
	DriverID types.ID
}

type ResumeCommand struct {
	RouteID  types.ID
	DriverID types.ID
}

type BailCommand struct {
	RouteID  types.ID
	DriverID types.ID
	Reason   string
}

type AdvanceStopCommand struct {
	RouteID  types.ID
	StopID   types.ID
	DriverID types.ID
	To       StopStatus
}

type RejectCommand struct {
	RouteID  types.ID
	StopID   types.ID
	DriverID types.ID
	Outcome  RejectionOutcome
}

const (
	TipperBuyer  = "buyer"
	TipperSeller = "seller"
)

// TipCommand adds a tip. TipperID must be the order's buyer or seller as
// named by Tipper; an empty TipperID means an admin acting for them.
type TipCommand struct {
	RouteID  types.ID
	OrderID  types.ID
	Tipper   string
	TipperID types.ID
	Amount   types.Money
}

type MarkLateCommand struct {
	RouteID  types.ID
	OrderID  types.ID
	DriverID types.ID
}

// StopResult reports a committed stop transition. Settlement problems never
// undo the stop; they show up as SettlementPending.
type StopResult struct {
	Route             *Route
	Stop              Stop
	RouteCompleted    bool
	Settlement        *settlement.Result
	SettlementPending bool
	SettlementError   string
}

func (s *Service) Publish(ctx context.Context, cmd PublishCommand) (r *Route, err error) {
	defer obs.Time(ctx, s.log, "route.publish")(&err)

	if cmd.StartTime.IsZero() || len(cmd.Orders) == 0 {
		return nil, fmt.Errorf("%w: start time and at least one order are required", ErrBadRequest)
	}
	now := s.now()
	id := types.NewID()

	orders := make([]Order, 0, len(cmd.Orders))
	byID := make(map[types.ID]PublishOrder, len(cmd.Orders))
	for _, po := range cmd.Orders {
		if po.OrderID == "" || po.BuyerID == "" || po.SellerID == "" {
			return nil, fmt.Errorf("%w: order, buyer and seller ids are required", ErrBadRequest)
		}
		if _, dup := byID[po.OrderID]; dup {
			return nil, fmt.Errorf("%w: duplicate order %s", ErrBadRequest, po.OrderID)
		}
		if po.Mileage < 0 {
			return nil, fmt.Errorf("%w: mileage cannot be negative", ErrBadRequest)
		}
		if po.Mileage == 0 {
			po.Mileage = s.estimateMiles(ctx, po.Pickup.Position, po.Dropoff.Position)
		}
		byID[po.OrderID] = po
		orders = append(orders, Order{
			ID:        po.OrderID,
			BuyerID:   po.BuyerID,
			SellerID:  po.SellerID,
			Mileage:   po.Mileage,
			IsLarge:   po.IsLarge,
			BuyerTip:  types.USD(0),
			SellerTip: types.USD(0),
		})
	}

	seq := cmd.Stops
	if len(seq) == 0 {
		for _, o := range orders {
			seq = append(seq, PublishStop{OrderID: o.ID, Kind: KindPickup})
		}
		for _, o := range orders {
			seq = append(seq, PublishStop{OrderID: o.ID, Kind: KindDropoff})
		}
	}
	stops, err := buildStops(id, seq, byID)
	if err != nil {
		return nil, err
	}

	r = &Route{
		ID:        id,
		TimeSlot:  cmd.TimeSlot,
		StartTime: cmd.StartTime,
		Status:    StatusAvailable,
		Origin:    stops[0].Position,
		Orders:    orders,
		Stops:     stops,
		CreatedAt: now,
	}
	r.TotalMiles, r.EstimatedEarnings = earnings(orders)

	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	_ = s.store.AppendEvent(ctx, &Event{
		RouteID:    id,
		FromStatus: string(StatusNone),
		ToStatus:   string(StatusAvailable),
		ActorType:  ActorDispatch,
		CreatedAt:  now,
	})
	s.log.Info("route published",
		zap.String("route_id", string(id)),
		zap.Int("stops", len(stops)),
		zap.Time("start_time", r.StartTime),
	)
	s.announce(ctx, r)
	return r, nil
}

func buildStops(routeID types.ID, seq []PublishStop, orders map[types.ID]PublishOrder) ([]Stop, error) {
	seen := make(map[types.ID]map[StopKind]bool, len(orders))
	stops := make([]Stop, 0, len(seq))
	for i, ps := range seq {
		po, ok := orders[ps.OrderID]
		if !ok {
			return nil, fmt.Errorf("%w: stop references unknown order %s", ErrBadRequest, ps.OrderID)
		}
		if !ps.Kind.Valid() {
			return nil, fmt.Errorf("%w: unknown stop kind %q", ErrBadRequest, ps.Kind)
		}
		if seen[ps.OrderID] == nil {
			seen[ps.OrderID] = make(map[StopKind]bool, 2)
		}
		if seen[ps.OrderID][ps.Kind] {
			return nil, fmt.Errorf("%w: order %s has two %s stops", ErrBadRequest, ps.OrderID, ps.Kind)
		}
		if ps.Kind == KindDropoff && !seen[ps.OrderID][KindPickup] {
			return nil, fmt.Errorf("%w: order %s dropoff precedes its pickup", ErrBadRequest, ps.OrderID)
		}
		seen[ps.OrderID][ps.Kind] = true

		st := Stop{
			ID:      types.DerivedID(routeID, ps.OrderID, types.ID(ps.Kind)),
			RouteID: routeID,
			Seq:     i + 1,
			Kind:    ps.Kind,
			Status:  StopPending,
			OrderID: ps.OrderID,
		}
		if ps.Kind == KindPickup {
			st.CustomerID = po.SellerID
			st.Address, st.Position = po.Pickup.Address, po.Pickup.Position
		} else {
			st.CustomerID = po.BuyerID
			st.Address, st.Position = po.Dropoff.Address, po.Dropoff.Position
		}
		stops = append(stops, st)
	}
	for id := range orders {
		if !seen[id][KindPickup] || !seen[id][KindDropoff] {
			return nil, fmt.Errorf("%w: order %s needs one pickup and one dropoff", ErrBadRequest, id)
		}
	}
	return stops, nil
}

// earnings totals the miles and the driver's fee-derived pay before tips.
func earnings(orders []Order) (float64, types.Money) {
	var miles float64
	total := types.USD(0)
	for _, o := range orders {
		b := fees.Compute(fees.Input{Mileage: o.Mileage, IsLarge: o.IsLarge})
		if o.Mileage > 0 {
			miles += o.Mileage
		} else {
			miles += fees.DefaultMileage.InexactFloat64()
		}
		total = total.Add(types.MoneyFromDecimal(b.DriverTotal, types.CurrencyUSD))
	}
	return miles, total
}

func (s *Service) estimateMiles(ctx context.Context, from, to types.Point) float64 {
	if s.mileage == nil || from.IsZero() || to.IsZero() {
		return 0
	}
	miles, err := s.mileage.EstimateMiles(ctx, from, to)
	if err != nil {
		s.log.Warn("mileage estimate failed", zap.Error(err))
		return 0
	}
	return miles
}

// announce indexes an open route and offers it to nearby drivers.
func (s *Service) announce(ctx context.Context, r *Route) {
	if s.index != nil && !r.Origin.IsZero() {
		if err := s.index.IndexRoute(ctx, r.ID, r.Origin); err != nil {
			s.log.Warn("index route failed", zap.String("route_id", string(r.ID)), zap.Error(err))
		}
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.OfferRoute(ctx, OfferFor(r)); err != nil {
			s.log.Warn("route offer failed", zap.String("route_id", string(r.ID)), zap.Error(err))
		}
	}
}

func OfferFor(r *Route) Offer {
	return Offer{
		RouteID:           r.ID,
		TimeSlot:          r.TimeSlot,
		StartTime:         r.StartTime,
		Origin:            r.Origin,
		Stops:             len(r.Stops),
		TotalMiles:        r.TotalMiles,
		EstimatedEarnings: r.EstimatedEarnings,
	}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Route, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Events(ctx context.Context, id types.ID) ([]Event, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Events(ctx, id)
}

// ListAvailable returns open routes that still accept drivers, soonest first.
func (s *Service) ListAvailable(ctx context.Context) ([]*Route, error) {
	routes, err := s.store.ListByStatus(ctx, StatusAvailable)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := routes[:0]
	for _, r := range routes {
		if CanAccept(r, now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Service) ListByDriver(ctx context.Context, driverID types.ID) ([]*Route, error) {
	if driverID == "" {
		return nil, ErrBadRequest
	}
	return s.store.ListByDriver(ctx, driverID)
}

const nearbyLimit = 50

// Nearby returns acceptable routes whose origin is within radiusKm, nearest first.
func (s *Service) Nearby(ctx context.Context, at types.Point, radiusKm float64) ([]*Route, error) {
	if radiusKm <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive", ErrBadRequest)
	}
	if s.index == nil {
		return nil, nil
	}
	ids, err := s.index.NearbyRoutes(ctx, at, radiusKm, nearbyLimit)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]*Route, 0, len(ids))
	for _, id := range ids {
		r, err := s.store.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			_ = s.index.RemoveRoute(ctx, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if r.Status == StatusAvailable && CanAccept(r, now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Service) Window(ctx context.Context, id types.ID) (AcceptWindow, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return AcceptWindow{}, err
	}
	return Window(r, s.now()), nil
}

// Estimate is the expected route duration in whole minutes.
func (s *Service) Estimate(ctx context.Context, id types.ID) (int, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return int(EstimateDuration(r) / time.Minute), nil
}

func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (r *Route, err error) {
	defer obs.Time(ctx, s.log, "route.accept")(&err)

	if cmd.DriverID == "" {
		return nil, ErrBadRequest
	}
	cur, err := s.store.Get(ctx, cmd.RouteID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(cur.Status, StatusAccepted) {
		return nil, routeTransitionError(cur, StatusAccepted)
	}
	now := s.now()
	if !CanAccept(cur, now) {
		return nil, &RouteClosedError{RouteID: cur.ID, ClosesAt: cur.StartTime.Add(-AcceptDeadline)}
	}

	next := cur.Clone()
	next.Status = StatusAccepted
	driver := cmd.DriverID
	next.DriverID = &driver
	next.AcceptedAt = &now
	if err := s.commit(ctx, cur, next); err != nil {
		return nil, err
	}
	_ = s.store.AppendEvent(ctx, &Event{
		RouteID:    cur.ID,
		FromStatus: string(cur.Status),
		ToStatus:   string(StatusAccepted),
		ActorType:  ActorDriver,
		ActorID:    &driver,
		CreatedAt:  now,
	})
	if s.index != nil {
		if err := s.index.RemoveRoute(ctx, cur.ID); err != nil {
			s.log.Warn("unindex route failed", zap.String("route_id", string(cur.ID)), zap.Error(err))
		}
	}
	s.log.Info("route accepted", zap.String("route_id", string(cur.ID)), zap.String("driver_id", string(driver)))
	return next, nil
}

func (s *Service) Start(ctx context.Context, cmd StartCommand) (r *Route, err error) {
	defer obs.Time(ctx, s.log, "route.start")(&err)

	cur, err := s.assigned(ctx, cmd.RouteID, cmd.DriverID)
	if err != nil {
		return nil, err
	}
	if cur.Status != StatusAccepted {
		return nil, routeTransitionError(cur, StatusActive)
	}
	now := s.now()
	if !CanStartPickup(cur, now) {
		return nil, fmt.Errorf("%w: pickups open at %s", ErrTooEarly,
			cur.StartTime.Add(-EarlyStartAllowance).Format(time.RFC3339))
	}

	next := cur.Clone()
	next.Status = StatusActive
	next.StartedAt = &now
	eta := now.Add(startEstimate)
	for i := range next.Stops {
		st := &next.Stops[i]
		if st.Status.Terminal() {
			continue
		}
		st.Status = StopPending
		st.EstimatedAt = clonePtr(&eta)
	}
	if err := s.commit(ctx, cur, next); err != nil {
		return nil, err
	}
	_ = s.store.AppendEvent(ctx, &Event{
		RouteID:    cur.ID,
		FromStatus: string(cur.Status),
		ToStatus:   string(StatusActive),
		ActorType:  ActorDriver,
		ActorID:    next.DriverID,
		CreatedAt:  now,
	})
	return next, nil
}

func (s *Service) Pause(ctx context.Context, cmd PauseCommand) (*Route, error) {
	return s.flip(ctx, cmd.RouteID, cmd.DriverID, StatusActive, StatusPaused)
}

func (s *Service) Resume(ctx context.Context, cmd ResumeCommand) (*Route, error) {
	return s.flip(ctx, cmd.RouteID, cmd.DriverID, StatusPaused, StatusActive)
}

func (s *Service) flip(ctx context.Context, routeID, driverID types.ID, from, to Status) (*Route, error) {
	cur, err := s.assigned(ctx, routeID, driverID)
	if err != nil {
		return nil, err
	}
	if cur.Status != from || !CanTransition(from, to) {
		return nil, routeTransitionError(cur, to)
	}
	now := s.now()
	next := cur.Clone()
	next.Status = to
	if to == StatusPaused {
		next.PausedAt = &now
	} else {
		next.PausedAt = nil
	}
	if err := s.commit(ctx, cur, next); err != nil {
		return nil, err
	}
	_ = s.store.AppendEvent(ctx, &Event{
		RouteID:    cur.ID,
		FromStatus: string(from),
		ToStatus:   string(to),
		ActorType:  ActorDriver,
		ActorID:    next.DriverID,
		CreatedAt:  now,
	})
	return next, nil
}

// Bail releases the route back to the pool. Completed and rejected stops keep
// their state; their settlements are never reverted.
func (s *Service) Bail(ctx context.Context, cmd BailCommand) (r *Route, err error) {
	defer obs.Time(ctx, s.log, "route.bail")(&err)

	cur, err := s.assigned(ctx, cmd.RouteID, cmd.DriverID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(cur.Status, StatusBailed) {
		return nil, routeTransitionError(cur, StatusBailed)
	}

	now := s.now()
	next := cur.Clone()
	next.Status = StatusAvailable
	next.DriverID = nil
	next.AcceptedAt = nil
	next.StartedAt = nil
	next.PausedAt = nil
	if cmd.Reason != "" {
		reason := cmd.Reason
		next.BailReason = &reason
	}
	for i := range next.Stops {
		if !next.Stops[i].Status.Terminal() {
			next.Stops[i].reset()
		}
	}
	if err := s.commit(ctx, cur, next); err != nil {
		return nil, err
	}

	driver := cmd.DriverID
	_ = s.store.AppendEvent(ctx, &Event{
		RouteID:    cur.ID,
		FromStatus: string(cur.Status),
		ToStatus:   string(StatusBailed),
		ActorType:  ActorDriver,
		ActorID:    &driver,
		Reason:     next.BailReason,
		CreatedAt:  now,
	})
	_ = s.store.AppendEvent(ctx, &Event{
		RouteID:    cur.ID,
		FromStatus: string(StatusBailed),
		ToStatus:   string(StatusAvailable),
		ActorType:  ActorSystem,
		CreatedAt:  now,
	})
	s.log.Info("route bailed",
		zap.String("route_id", string(cur.ID)),
		zap.String("driver_id", string(driver)),
		zap.String("reason", cmd.Reason),
	)
	s.announce(ctx, next)
	return next, nil
}

func (s *Service) AdvanceStop(ctx context.Context, cmd AdvanceStopCommand) (res StopResult, err error) {
	defer obs.Time(ctx, s.log, "route.advance_stop")(&err)

	if cmd.To == StopRejected {
		return StopResult{}, fmt.Errorf("%w: rejections need an outcome", ErrBadRequest)
	}
	cur, err := s.activeFor(ctx, cmd.RouteID, cmd.DriverID)
	if err != nil {
		return StopResult{}, err
	}
	next := cur.Clone()
	st, ok := next.Stop(cmd.StopID)
	if !ok {
		return StopResult{}, fmt.Errorf("%w: stop %s", ErrNotFound, cmd.StopID)
	}
	from := st.Status
	if !CanAdvanceStop(st.Kind, from, cmd.To) {
		return StopResult{}, &InvalidTransitionError{Entity: "stop", ID: st.ID, From: string(from), To: string(cmd.To)}
	}
	if st.Kind == KindDropoff && cmd.To == StopDelivering {
		if p, ok := next.StopFor(st.OrderID, KindPickup); !ok || p.Status != StopCompleted {
			return StopResult{}, &InvalidTransitionError{
				Entity: "stop", ID: st.ID, From: string(from), To: string(cmd.To),
				Reason: "pickup not completed",
			}
		}
	}

	now := s.now()
	s.applyStop(next, st, cmd.To, cmd.DriverID, now)
	if st.Kind == KindPickup && cmd.To == StopPickedUp {
		if d, ok := next.StopFor(st.OrderID, KindDropoff); ok && !d.Status.Terminal() {
			eta := now.Add(pickedUpEstimate)
			d.EstimatedAt = &eta
		}
	}
	if st.Kind == KindDropoff && cmd.To == StopEnRoute {
		if o, ok := next.Order(st.OrderID); ok {
			eta := UpdatedETA(o.Mileage, now)
			st.EstimatedAt = &eta
		}
	}
	return s.commitStop(ctx, cur, next, st, from, cmd.DriverID, now)
}

// RejectDelivery records a buyer refusing the item at the door. The buyer still
// pays their share and the driver is compensated.
func (s *Service) RejectDelivery(ctx context.Context, cmd RejectCommand) (res StopResult, err error) {
	defer obs.Time(ctx, s.log, "route.reject_delivery")(&err)

	if cmd.Outcome != RejectionReturnToSeller && cmd.Outcome != RejectionMarkComplete {
		return StopResult{}, fmt.Errorf("%w: unknown rejection outcome %q", ErrBadRequest, cmd.Outcome)
	}
	cur, err := s.activeFor(ctx, cmd.RouteID, cmd.DriverID)
	if err != nil {
		return StopResult{}, err
	}
	next := cur.Clone()
	st, ok := next.Stop(cmd.StopID)
	if !ok {
		return StopResult{}, fmt.Errorf("%w: stop %s", ErrNotFound, cmd.StopID)
	}
	from := st.Status
	if st.Kind != KindDropoff || !CanAdvanceStop(st.Kind, from, StopRejected) {
		return StopResult{}, &InvalidTransitionError{Entity: "stop", ID: st.ID, From: string(from), To: string(StopRejected)}
	}

	now := s.now()
	s.applyStop(next, st, StopRejected, cmd.DriverID, now)
	st.Rejection = cmd.Outcome
	res, err = s.commitStop(ctx, cur, next, st, from, cmd.DriverID, now)
	if err == nil && cmd.Outcome == RejectionReturnToSeller {
		if o, ok := next.Order(st.OrderID); ok {
			s.notify(ctx, o.SellerID, "item returning to seller")
		}
	}
	return res, err
}

func (s *Service) applyStop(r *Route, st *Stop, to StopStatus, driverID types.ID, now time.Time) {
	st.Status = to
	st.ActualAt = clonePtr(&now)
	if to.Terminal() {
		st.CompletedAt = clonePtr(&now)
		by := driverID
		st.CompletedBy = &by
	}
	if r.AllStopsTerminal() && CanTransition(r.Status, StatusCompleted) {
		r.Status = StatusCompleted
		r.CompletedAt = clonePtr(&now)
	}
}

func (s *Service) commitStop(ctx context.Context, cur, next *Route, st *Stop, from StopStatus, driverID types.ID, now time.Time) (StopResult, error) {
	if err := s.commit(ctx, cur, next); err != nil {
		return StopResult{}, err
	}
	driver := driverID
	_ = s.store.AppendEvent(ctx, &Event{
		RouteID:    cur.ID,
		StopID:     &st.ID,
		FromStatus: string(from),
		ToStatus:   string(st.Status),
		ActorType:  ActorDriver,
		ActorID:    &driver,
		CreatedAt:  now,
	})
	res := StopResult{Route: next, Stop: *st}
	if next.Status == StatusCompleted && cur.Status != StatusCompleted {
		res.RouteCompleted = true
		_ = s.store.AppendEvent(ctx, &Event{
			RouteID:    cur.ID,
			FromStatus: string(cur.Status),
			ToStatus:   string(StatusCompleted),
			ActorType:  ActorSystem,
			CreatedAt:  now,
		})
		s.log.Info("route completed", zap.String("route_id", string(cur.ID)))
	}

	s.notify(ctx, st.CustomerID, st.Label())

	if st.Kind == KindDropoff && st.Status.Terminal() {
		sr, err := s.settle(ctx, next, st.OrderID)
		if err != nil {
			s.log.Error("settlement failed after stop commit",
				zap.String("route_id", string(cur.ID)),
				zap.String("stop_id", string(st.ID)),
				zap.Error(err),
			)
			res.SettlementPending = true
			res.SettlementError = err.Error()
		} else {
			res.Settlement = &sr
		}
	}
	return res, nil
}

// SettleOrder retries settlement for a terminal delivery on the route.
func (s *Service) SettleOrder(ctx context.Context, routeID, orderID types.ID) (settlement.Result, error) {
	r, err := s.store.Get(ctx, routeID)
	if err != nil {
		return settlement.Result{}, err
	}
	return s.settle(ctx, r, orderID)
}

func (s *Service) settle(ctx context.Context, r *Route, orderID types.ID) (settlement.Result, error) {
	if s.settler == nil {
		return settlement.Result{}, errors.New("no settler configured")
	}
	d, err := DeliveryFor(r, orderID)
	if err != nil {
		return settlement.Result{}, err
	}
	if d.Rejected {
		return s.settler.SettleRejection(ctx, d)
	}
	return s.settler.Settle(ctx, d)
}

// DeliveryFor builds the settlement view of an order whose dropoff is terminal.
func DeliveryFor(r *Route, orderID types.ID) (settlement.Delivery, error) {
	o, ok := r.Order(orderID)
	if !ok {
		return settlement.Delivery{}, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	drop, ok := r.StopFor(orderID, KindDropoff)
	if !ok {
		return settlement.Delivery{}, fmt.Errorf("%w: dropoff for order %s", ErrNotFound, orderID)
	}
	if !drop.Status.Terminal() {
		return settlement.Delivery{}, &InvalidTransitionError{
			Entity: "delivery", ID: orderID, From: string(drop.Status), To: "settled",
			Reason: "dropoff not finished",
		}
	}
	var driver types.ID
	switch {
	case drop.CompletedBy != nil:
		driver = *drop.CompletedBy
	case r.DriverID != nil:
		driver = *r.DriverID
	}
	return settlement.Delivery{
		ID:        types.DerivedID(r.ID, orderID),
		RouteID:   r.ID,
		OrderID:   orderID,
		DriverID:  driver,
		BuyerID:   o.BuyerID,
		SellerID:  o.SellerID,
		Mileage:   o.Mileage,
		IsLarge:   o.IsLarge,
		BuyerTip:  o.BuyerTip,
		SellerTip: o.SellerTip,
		Late:      o.Late,
		Rejected:  drop.Status == StopRejected,
	}, nil
}

// AddTip adds a buyer or seller tip. Tips go entirely to the driver, are
// charged to the tipper at settlement and are refused once the delivery has
// finished.
func (s *Service) AddTip(ctx context.Context, cmd TipCommand) (*Route, error) {
	if cmd.Amount.Amount <= 0 {
		return nil, fmt.Errorf("%w: tip must be positive", ErrBadRequest)
	}
	if cmd.Tipper != TipperBuyer && cmd.Tipper != TipperSeller {
		return nil, fmt.Errorf("%w: tipper must be buyer or seller", ErrBadRequest)
	}
	cur, err := s.store.Get(ctx, cmd.RouteID)
	if err != nil {
		return nil, err
	}
	next := cur.Clone()
	o, ok := next.Order(cmd.OrderID)
	if !ok {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, cmd.OrderID)
	}
	party := o.BuyerID
	if cmd.Tipper == TipperSeller {
		party = o.SellerID
	}
	if cmd.TipperID != "" && cmd.TipperID != party {
		return nil, fmt.Errorf("%w: %s is not the %s of order %s", ErrNotTipper, cmd.TipperID, cmd.Tipper, cmd.OrderID)
	}
	if d, ok := next.StopFor(cmd.OrderID, KindDropoff); ok && d.Status.Terminal() {
		return nil, &InvalidTransitionError{
			Entity: "delivery", ID: cmd.OrderID, From: string(d.Status), To: "tipped",
			Reason: "delivery already finished",
		}
	}
	if cmd.Tipper == TipperBuyer {
		o.BuyerTip = o.BuyerTip.Add(cmd.Amount)
	} else {
		o.SellerTip = o.SellerTip.Add(cmd.Amount)
	}
	if err := s.commit(ctx, cur, next); err != nil {
		return nil, err
	}
	s.log.Info("tip added",
		zap.String("route_id", string(cur.ID)),
		zap.String("order_id", string(cmd.OrderID)),
		zap.String("tipper", cmd.Tipper),
		zap.String("amount", cmd.Amount.String()),
	)
	return next, nil
}

// MarkLate flags an order as delivered late. The flag is informational and
// does not change fees.
func (s *Service) MarkLate(ctx context.Context, cmd MarkLateCommand) (*Route, error) {
	cur, err := s.assigned(ctx, cmd.RouteID, cmd.DriverID)
	if err != nil {
		return nil, err
	}
	next := cur.Clone()
	o, ok := next.Order(cmd.OrderID)
	if !ok {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, cmd.OrderID)
	}
	if o.Late {
		return next, nil
	}
	o.Late = true
	if err := s.commit(ctx, cur, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *Service) assigned(ctx context.Context, routeID, driverID types.ID) (*Route, error) {
	if driverID == "" {
		return nil, ErrBadRequest
	}
	r, err := s.store.Get(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if !r.AssignedTo(driverID) {
		return nil, ErrNotAssigned
	}
	return r, nil
}

// activeFor loads a route the driver may advance stops on.
func (s *Service) activeFor(ctx context.Context, routeID, driverID types.ID) (*Route, error) {
	r, err := s.assigned(ctx, routeID, driverID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusActive {
		return nil, fmt.Errorf("%w: route %s is %s", ErrInvalidState, r.ID, r.Status)
	}
	return r, nil
}

// commit writes next if cur is still the stored version.
func (s *Service) commit(ctx context.Context, cur, next *Route) error {
	ok, err := s.store.Update(ctx, next, cur.Status, cur.StatusVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	next.StatusVersion = cur.StatusVersion + 1
	return nil
}

func (s *Service) notify(ctx context.Context, customerID types.ID, label string) {
	if s.notifier == nil || customerID == "" {
		return
	}
	if err := s.notifier.Notify(ctx, customerID, label); err != nil {
		s.log.Warn("notify failed", zap.String("customer_id", string(customerID)), zap.Error(err))
	}
}

func routeTransitionError(r *Route, to Status) error {
	return &InvalidTransitionError{Entity: "route", ID: r.ID, From: string(r.Status), To: string(to)}
}
