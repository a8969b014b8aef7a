// README: Route duration and delivery ETA estimates shown to drivers.
package route

import "time"

const (
	bufferPerStop   = 5 * time.Minute
	handlingPerStop = 3 * time.Minute
	drivingPerMile  = 2 * time.Minute

	etaBase         = 15 * time.Minute
	etaPerMile      = 3 * time.Minute
	etaDefaultMiles = 5.0

	startEstimate    = 30 * time.Minute
	pickedUpEstimate = 20 * time.Minute
)

// EstimateDuration is a buffer and handling time per stop plus driving time
// per mile.
func EstimateDuration(r *Route) time.Duration {
	if r == nil {
		return 0
	}
	stops := time.Duration(len(r.Stops))
	driving := time.Duration(r.TotalMiles * float64(drivingPerMile))
	return stops*bufferPerStop + stops*handlingPerStop + driving
}

// UpdatedETA projects arrival for a delivery of the given distance.
func UpdatedETA(miles float64, now time.Time) time.Time {
	if miles <= 0 {
		miles = etaDefaultMiles
	}
	return now.Add(etaBase + time.Duration(miles*float64(etaPerMile)))
}
