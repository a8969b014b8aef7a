// README: Driver candidates and dispatch constants for route offers.
package matching

import (
	"time"

	"marketpace/internal/types"
)

// Candidate is an on-shift driver's last reported position.
type Candidate struct {
	DriverID  types.ID
	Position  types.Point
	UpdatedAt time.Time
}

// Dispatch is the outcome of offering one route.
type Dispatch struct {
	RouteID  types.ID
	Notified []types.ID
	At       time.Time
}

const (
	// notifyInitialCount is the number of drivers offered a route on first dispatch.
	notifyInitialCount = 5
	// selectPoolSize is how many nearby drivers to sample before picking notifyInitialCount.
	selectPoolSize = 10
	// broadcastDelay is how long an offered route may stay unaccepted before
	// it is pushed to a wider pool.
	broadcastDelay = 30 * time.Second
	// broadcastExtraCount is how many additional drivers the wider push reaches.
	broadcastExtraCount = 10
	// broadcastRadiusFactor widens the search radius for the wider push.
	broadcastRadiusFactor = 3
)
