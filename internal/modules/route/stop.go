// README: Stop kinds, statuses and the per-kind stop transition tables.
package route

import (
	"fmt"
	"time"

	"marketpace/internal/types"
)

type StopKind string

const (
	KindPickup  StopKind = "pickup"
	KindDropoff StopKind = "dropoff"
)

type StopStatus string

const (
	StopPending    StopStatus = "pending"
	StopEnRoute    StopStatus = "en_route"
	StopPickedUp   StopStatus = "picked_up"
	StopDelivering StopStatus = "delivering"
	StopCompleted  StopStatus = "completed"
	StopRejected   StopStatus = "rejected"
)

// RejectionOutcome is the driver's choice after a buyer rejects the item.
type RejectionOutcome string

const (
	RejectionNone           RejectionOutcome = ""
	RejectionReturnToSeller RejectionOutcome = "return_to_seller"
	RejectionMarkComplete   RejectionOutcome = "mark_complete"
)

type Stop struct {
	ID          types.ID
	RouteID     types.ID
	Seq         int
	Kind        StopKind
	Status      StopStatus
	OrderID     types.ID
	CustomerID  types.ID
	Address     string
	Position    types.Point
	EstimatedAt *time.Time
	ActualAt    *time.Time
	CompletedAt *time.Time
	CompletedBy *types.ID
	Rejection   RejectionOutcome
}

var pickupFlow = map[StopStatus][]StopStatus{
	StopPending:  {StopEnRoute},
	StopEnRoute:  {StopPickedUp},
	StopPickedUp: {StopCompleted},
}

var dropoffFlow = map[StopStatus][]StopStatus{
	StopPending:    {StopEnRoute},
	StopEnRoute:    {StopDelivering},
	StopDelivering: {StopCompleted, StopRejected},
}

func (s StopStatus) Terminal() bool {
	return s == StopCompleted || s == StopRejected
}

func (k StopKind) Valid() bool {
	return k == KindPickup || k == KindDropoff
}

// ParseStopStatus maps a wire label to a stop status.
func ParseStopStatus(v string) (StopStatus, error) {
	switch s := StopStatus(v); s {
	case StopPending, StopEnRoute, StopPickedUp, StopDelivering, StopCompleted, StopRejected:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown stop status %q", ErrBadRequest, v)
}

func ParseRejectionOutcome(v string) (RejectionOutcome, error) {
	switch o := RejectionOutcome(v); o {
	case RejectionReturnToSeller, RejectionMarkComplete:
		return o, nil
	}
	return "", fmt.Errorf("%w: unknown rejection outcome %q", ErrBadRequest, v)
}

// CanAdvanceStop reports whether a stop of the given kind may move from one
// status to the next. Skipping and going backward are never allowed.
func CanAdvanceStop(kind StopKind, from, to StopStatus) bool {
	var flow map[StopStatus][]StopStatus
	switch kind {
	case KindPickup:
		flow = pickupFlow
	case KindDropoff:
		flow = dropoffFlow
	default:
		return false
	}
	for _, s := range flow[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Label is the customer-facing text for a stop status.
func (s StopStatus) Label() string {
	switch s {
	case StopPending:
		return "scheduled"
	case StopEnRoute:
		return "driver en route"
	case StopPickedUp:
		return "item picked up"
	case StopDelivering:
		return "out for delivery"
	case StopCompleted:
		return "delivered"
	case StopRejected:
		return "delivery rejected"
	default:
		return string(s)
	}
}

// reset returns an incomplete stop to the unassigned pool state.
func (s *Stop) reset() {
	s.Status = StopPending
	s.EstimatedAt = nil
	s.ActualAt = nil
	s.Rejection = RejectionNone
}

// Label is the notification text for this stop's current status.
func (s Stop) Label() string {
	if s.Kind == KindPickup && s.Status == StopCompleted {
		return "pickup complete"
	}
	return s.Status.Label()
}
