// README: Route store backed by PostgreSQL.
package route

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketpace/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const routeColumns = `
	id, time_slot, start_time, status, status_version, driver_id,
	total_miles, estimated_earnings, currency, bail_reason, origin_lat, origin_lng,
	created_at, accepted_at, started_at, paused_at, completed_at`

func (s *PGStore) Create(ctx context.Context, r *Route) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO routes (`+routeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		string(r.ID), r.TimeSlot, r.StartTime, string(r.Status), r.StatusVersion, idPtr(r.DriverID),
		r.TotalMiles, r.EstimatedEarnings.Amount, currency(r.EstimatedEarnings), r.BailReason,
		r.Origin.Lat, r.Origin.Lng,
		r.CreatedAt, r.AcceptedAt, r.StartedAt, r.PausedAt, r.CompletedAt,
	)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, o := range r.Orders {
		batch.Queue(`
			INSERT INTO route_orders (route_id, order_id, buyer_id, seller_id, mileage, is_large, buyer_tip, seller_tip, late)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			string(r.ID), string(o.ID), string(o.BuyerID), string(o.SellerID),
			o.Mileage, o.IsLarge, o.BuyerTip.Amount, o.SellerTip.Amount, o.Late,
		)
	}
	for _, st := range r.Stops {
		batch.Queue(`
			INSERT INTO route_stops (
				id, route_id, seq, kind, status, order_id, customer_id, address, lat, lng,
				estimated_at, actual_at, completed_at, completed_by, rejection
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			string(st.ID), string(r.ID), st.Seq, string(st.Kind), string(st.Status),
			string(st.OrderID), string(st.CustomerID), st.Address, st.Position.Lat, st.Position.Lng,
			st.EstimatedAt, st.ActualAt, st.CompletedAt, idPtr(st.CompletedBy), string(st.Rejection),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Route, error) {
	row := s.db.QueryRow(ctx, `SELECT `+routeColumns+` FROM routes WHERE id = $1`, string(id))
	r, err := scanRoute(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PGStore) ListByStatus(ctx context.Context, status Status) ([]*Route, error) {
	return s.list(ctx, `SELECT `+routeColumns+` FROM routes WHERE status = $1 ORDER BY start_time, id`, string(status))
}

func (s *PGStore) ListByDriver(ctx context.Context, driverID types.ID) ([]*Route, error) {
	return s.list(ctx, `SELECT `+routeColumns+` FROM routes WHERE driver_id = $1 ORDER BY start_time, id`, string(driverID))
}

func (s *PGStore) list(ctx context.Context, query string, arg string) ([]*Route, error) {
	rows, err := s.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	var out []*Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, r := range out {
		if err := s.loadChildren(ctx, r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PGStore) Update(ctx context.Context, r *Route, from Status, version int) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE routes
		SET status = $1,
		    status_version = status_version + 1,
		    driver_id = $2,
		    total_miles = $3,
		    estimated_earnings = $4,
		    bail_reason = $5,
		    accepted_at = $6,
		    started_at = $7,
		    paused_at = $8,
		    completed_at = $9
		WHERE id = $10 AND status = $11 AND status_version = $12`,
		string(r.Status), idPtr(r.DriverID), r.TotalMiles, r.EstimatedEarnings.Amount, r.BailReason,
		r.AcceptedAt, r.StartedAt, r.PausedAt, r.CompletedAt,
		string(r.ID), string(from), version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	batch := &pgx.Batch{}
	for _, o := range r.Orders {
		batch.Queue(`
			UPDATE route_orders
			SET mileage = $1, buyer_tip = $2, seller_tip = $3, late = $4
			WHERE route_id = $5 AND order_id = $6`,
			o.Mileage, o.BuyerTip.Amount, o.SellerTip.Amount, o.Late, string(r.ID), string(o.ID),
		)
	}
	for _, st := range r.Stops {
		batch.Queue(`
			UPDATE route_stops
			SET status = $1, estimated_at = $2, actual_at = $3, completed_at = $4,
			    completed_by = $5, rejection = $6
			WHERE id = $7`,
			string(st.Status), st.EstimatedAt, st.ActualAt, st.CompletedAt,
			idPtr(st.CompletedBy), string(st.Rejection), string(st.ID),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PGStore) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO route_state_events (
			route_id, stop_id, from_status, to_status, actor_type, actor_id, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(e.RouteID), idPtr(e.StopID), e.FromStatus, e.ToStatus,
		e.ActorType, idPtr(e.ActorID), e.Reason, e.CreatedAt,
	)
	return err
}

func (s *PGStore) Events(ctx context.Context, routeID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, route_id, stop_id, from_status, to_status, actor_type, actor_id, reason, created_at
		FROM route_state_events
		WHERE route_id = $1
		ORDER BY id`, string(routeID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var rid string
		var stopID, actorID *string
		if err := rows.Scan(&e.ID, &rid, &stopID, &e.FromStatus, &e.ToStatus,
			&e.ActorType, &actorID, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.RouteID = types.ID(rid)
		e.StopID = toID(stopID)
		e.ActorID = toID(actorID)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PGStore) loadChildren(ctx context.Context, r *Route) error {
	rows, err := s.db.Query(ctx, `
		SELECT order_id, buyer_id, seller_id, mileage, is_large, buyer_tip, seller_tip, late
		FROM route_orders
		WHERE route_id = $1
		ORDER BY order_id`, string(r.ID),
	)
	if err != nil {
		return err
	}
	for rows.Next() {
		var o Order
		var oid, buyer, seller string
		if err := rows.Scan(&oid, &buyer, &seller, &o.Mileage, &o.IsLarge,
			&o.BuyerTip.Amount, &o.SellerTip.Amount, &o.Late); err != nil {
			rows.Close()
			return err
		}
		o.ID, o.BuyerID, o.SellerID = types.ID(oid), types.ID(buyer), types.ID(seller)
		o.BuyerTip.Currency = r.EstimatedEarnings.Currency
		o.SellerTip.Currency = r.EstimatedEarnings.Currency
		r.Orders = append(r.Orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.Query(ctx, `
		SELECT id, seq, kind, status, order_id, customer_id, address, lat, lng,
		       estimated_at, actual_at, completed_at, completed_by, rejection
		FROM route_stops
		WHERE route_id = $1
		ORDER BY seq`, string(r.ID),
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var st Stop
		var sid, kind, status, oid, customer, rejection string
		var completedBy *string
		if err := rows.Scan(&sid, &st.Seq, &kind, &status, &oid, &customer, &st.Address,
			&st.Position.Lat, &st.Position.Lng, &st.EstimatedAt, &st.ActualAt, &st.CompletedAt,
			&completedBy, &rejection); err != nil {
			return err
		}
		st.ID, st.RouteID, st.OrderID, st.CustomerID = types.ID(sid), r.ID, types.ID(oid), types.ID(customer)
		st.Kind, st.Status, st.Rejection = StopKind(kind), StopStatus(status), RejectionOutcome(rejection)
		st.CompletedBy = toID(completedBy)
		r.Stops = append(r.Stops, st)
	}
	return rows.Err()
}

func scanRoute(row pgx.Row) (*Route, error) {
	var r Route
	var id, status, cur string
	var driverID *string
	var acceptedAt, startedAt, pausedAt, completedAt *time.Time
	err := row.Scan(
		&id, &r.TimeSlot, &r.StartTime, &status, &r.StatusVersion, &driverID,
		&r.TotalMiles, &r.EstimatedEarnings.Amount, &cur, &r.BailReason,
		&r.Origin.Lat, &r.Origin.Lng,
		&r.CreatedAt, &acceptedAt, &startedAt, &pausedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	r.ID = types.ID(id)
	r.Status = Status(status)
	r.DriverID = toID(driverID)
	r.EstimatedEarnings.Currency = cur
	r.AcceptedAt, r.StartedAt, r.PausedAt, r.CompletedAt = acceptedAt, startedAt, pausedAt, completedAt
	return &r, nil
}

func idPtr(id *types.ID) *string {
	if id == nil {
		return nil
	}
	v := string(*id)
	return &v
}

func toID(s *string) *types.ID {
	if s == nil {
		return nil
	}
	v := types.ID(*s)
	return &v
}

func currency(m types.Money) string {
	if m.Currency == "" {
		return types.CurrencyUSD
	}
	return m.Currency
}
