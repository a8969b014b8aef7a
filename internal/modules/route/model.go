// README: Route aggregate, its orders and the route-level status flow.
package route

import (
	"time"

	"marketpace/internal/types"
)

type Status string

const (
	StatusNone      Status = "none"
	StatusAvailable Status = "available"
	StatusAccepted  Status = "accepted"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusBailed    Status = "bailed"
	StatusCompleted Status = "completed"
)

type Route struct {
	ID                types.ID
	TimeSlot          string
	StartTime         time.Time
	Status            Status
	StatusVersion     int
	DriverID          *types.ID
	TotalMiles        float64
	EstimatedEarnings types.Money
	BailReason        *string // most recent bail, kept after a later accept
	Origin            types.Point
	Orders            []Order
	Stops             []Stop
	CreatedAt         time.Time
	AcceptedAt        *time.Time
	StartedAt         *time.Time
	PausedAt          *time.Time
	CompletedAt       *time.Time
}

// Order carries the per-order delivery attributes used at settlement.
type Order struct {
	ID        types.ID
	BuyerID   types.ID
	SellerID  types.ID
	Mileage   float64
	IsLarge   bool
	BuyerTip  types.Money
	SellerTip types.Money
	Late      bool
}

func (o Order) Tips() types.Money {
	return o.BuyerTip.Add(o.SellerTip)
}

type Event struct {
	ID         int64
	RouteID    types.ID
	StopID     *types.ID
	FromStatus string
	ToStatus   string
	ActorType  string
	ActorID    *types.ID
	Reason     *string
	CreatedAt  time.Time
}

const (
	ActorDriver   = "driver"
	ActorDispatch = "dispatch"
	ActorSystem   = "system"
	ActorCustomer = "customer"
)

// AllowedTransitions represents the route state flow (diagram) as code.
var AllowedTransitions = map[Status][]Status{
	StatusAvailable: {StatusAccepted},
	StatusAccepted:  {StatusActive, StatusBailed},
	StatusActive:    {StatusPaused, StatusBailed, StatusCompleted},
	StatusPaused:    {StatusActive, StatusBailed},
	StatusBailed:    {StatusAvailable},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func (r *Route) Order(id types.ID) (*Order, bool) {
	for i := range r.Orders {
		if r.Orders[i].ID == id {
			return &r.Orders[i], true
		}
	}
	return nil, false
}

func (r *Route) Stop(id types.ID) (*Stop, bool) {
	for i := range r.Stops {
		if r.Stops[i].ID == id {
			return &r.Stops[i], true
		}
	}
	return nil, false
}

// StopFor returns the stop of the given kind for an order.
func (r *Route) StopFor(orderID types.ID, kind StopKind) (*Stop, bool) {
	for i := range r.Stops {
		if r.Stops[i].OrderID == orderID && r.Stops[i].Kind == kind {
			return &r.Stops[i], true
		}
	}
	return nil, false
}

// AllStopsTerminal reports whether every stop is completed or rejected.
func (r *Route) AllStopsTerminal() bool {
	if len(r.Stops) == 0 {
		return false
	}
	for _, s := range r.Stops {
		if !s.Status.Terminal() {
			return false
		}
	}
	return true
}

func (r *Route) AssignedTo(driverID types.ID) bool {
	return r.DriverID != nil && *r.DriverID == driverID
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (r *Route) Clone() *Route {
	if r == nil {
		return nil
	}
	cp := *r
	cp.DriverID = clonePtr(r.DriverID)
	cp.BailReason = clonePtr(r.BailReason)
	cp.AcceptedAt = clonePtr(r.AcceptedAt)
	cp.StartedAt = clonePtr(r.StartedAt)
	cp.PausedAt = clonePtr(r.PausedAt)
	cp.CompletedAt = clonePtr(r.CompletedAt)
	cp.Orders = append([]Order(nil), r.Orders...)
	cp.Stops = make([]Stop, len(r.Stops))
	for i, s := range r.Stops {
		s.EstimatedAt = clonePtr(s.EstimatedAt)
		s.ActualAt = clonePtr(s.ActualAt)
		s.CompletedAt = clonePtr(s.CompletedAt)
		s.CompletedBy = clonePtr(s.CompletedBy)
		cp.Stops[i] = s
	}
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
