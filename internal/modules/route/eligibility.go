// README: Time-window rules for accepting and starting a route.
package route

import "time"

const (
	// AcceptDeadline closes a route to new drivers this long before start.
	AcceptDeadline = 20 * time.Minute
	// EarlyStartAllowance lets the assigned driver start pickups this early.
	EarlyStartAllowance = 15 * time.Minute
)

// CanAccept reports whether a route still takes new drivers at now. A route
// without a start time never accepts.
func CanAccept(r *Route, now time.Time) bool {
	if r == nil || r.StartTime.IsZero() {
		return false
	}
	return now.Before(r.StartTime.Add(-AcceptDeadline))
}

// CanStartPickup reports whether the assigned driver may begin pickups. The
// two windows are independent: a route can be closed for acceptance and still
// not be startable.
func CanStartPickup(r *Route, now time.Time) bool {
	if r == nil || r.StartTime.IsZero() {
		return false
	}
	return !now.Before(r.StartTime.Add(-EarlyStartAllowance))
}

type AcceptWindow struct {
	Open               bool
	ClosesAt           time.Time
	MinutesUntilClosed int
}

func Window(r *Route, now time.Time) AcceptWindow {
	if r == nil || r.StartTime.IsZero() {
		return AcceptWindow{}
	}
	closes := r.StartTime.Add(-AcceptDeadline)
	w := AcceptWindow{Open: CanAccept(r, now), ClosesAt: closes}
	if left := closes.Sub(now); left > 0 {
		w.MinutesUntilClosed = int(left / time.Minute)
	}
	return w
}
