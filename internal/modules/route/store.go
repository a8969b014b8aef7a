// README: Route persistence contract. Every write is a compare-and-swap on status and status_version.
package route

import (
	"context"

	"marketpace/internal/types"
)

type Store interface {
	Create(ctx context.Context, r *Route) error
	Get(ctx context.Context, id types.ID) (*Route, error)
	// ListByStatus returns routes ordered by start time.
	ListByStatus(ctx context.Context, status Status) ([]*Route, error)
	ListByDriver(ctx context.Context, driverID types.ID) ([]*Route, error)
	// Update stores r only if the stored route is still at from/version, and
	// bumps the version. It reports false when another writer won.
	Update(ctx context.Context, r *Route, from Status, version int) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	Events(ctx context.Context, routeID types.ID) ([]Event, error)
}
