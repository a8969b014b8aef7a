// README: Base handler utilities (JSON helpers, error mapping, response views).
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"marketpace/internal/modules/fees"
	"marketpace/internal/modules/matching"
	"marketpace/internal/modules/route"
	"marketpace/internal/modules/settlement"
	"marketpace/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, route.ErrBadRequest), errors.Is(err, settlement.ErrBadRequest), errors.Is(err, matching.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, route.ErrNotAssigned), errors.Is(err, route.ErrNotTipper):
		return http.StatusForbidden
	case errors.Is(err, route.ErrNotFound), errors.Is(err, settlement.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, route.ErrInvalidState), errors.Is(err, route.ErrConflict),
		errors.Is(err, route.ErrRouteClosed), errors.Is(err, route.ErrTooEarly),
		errors.Is(err, settlement.ErrSettlementInProgress), errors.Is(err, settlement.ErrKindMismatch):
		return http.StatusConflict
	case errors.Is(err, settlement.ErrPaymentCapture):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		writeError(c, status, "internal error")
		return
	}
	writeError(c, status, err.Error())
}

type moneyView struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Display     string `json:"display"`
}

func viewMoney(m types.Money) moneyView {
	cur := m.Currency
	if cur == "" {
		cur = types.CurrencyUSD
	}
	return moneyView{AmountCents: m.Amount, Currency: cur, Display: m.String()}
}

type pointView struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type stopView struct {
	ID          types.ID   `json:"id"`
	Seq         int        `json:"seq"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Label       string     `json:"label"`
	OrderID     types.ID   `json:"order_id"`
	CustomerID  types.ID   `json:"customer_id"`
	Address     string     `json:"address"`
	Position    pointView  `json:"position"`
	EstimatedAt *time.Time `json:"estimated_at,omitempty"`
	ActualAt    *time.Time `json:"actual_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Rejection   string     `json:"rejection,omitempty"`
}

func viewStop(st route.Stop) stopView {
	return stopView{
		ID:          st.ID,
		Seq:         st.Seq,
		Kind:        string(st.Kind),
		Status:      string(st.Status),
		Label:       st.Label(),
		OrderID:     st.OrderID,
		CustomerID:  st.CustomerID,
		Address:     st.Address,
		Position:    pointView{Lat: st.Position.Lat, Lng: st.Position.Lng},
		EstimatedAt: st.EstimatedAt,
		ActualAt:    st.ActualAt,
		CompletedAt: st.CompletedAt,
		Rejection:   string(st.Rejection),
	}
}

type orderView struct {
	ID        types.ID  `json:"id"`
	BuyerID   types.ID  `json:"buyer_id"`
	SellerID  types.ID  `json:"seller_id"`
	Mileage   float64   `json:"mileage"`
	IsLarge   bool      `json:"is_large"`
	BuyerTip  moneyView `json:"buyer_tip"`
	SellerTip moneyView `json:"seller_tip"`
	Late      bool      `json:"late"`
}

type routeView struct {
	ID                types.ID    `json:"id"`
	TimeSlot          string      `json:"time_slot"`
	StartTime         time.Time   `json:"start_time"`
	Status            string      `json:"status"`
	StatusVersion     int         `json:"status_version"`
	DriverID          *types.ID   `json:"driver_id,omitempty"`
	TotalMiles        float64     `json:"total_miles"`
	EstimatedEarnings moneyView   `json:"estimated_earnings"`
	BailReason        *string     `json:"bail_reason,omitempty"`
	Origin            pointView   `json:"origin"`
	Orders            []orderView `json:"orders"`
	Stops             []stopView  `json:"stops"`
	AcceptedAt        *time.Time  `json:"accepted_at,omitempty"`
	StartedAt         *time.Time  `json:"started_at,omitempty"`
	CompletedAt       *time.Time  `json:"completed_at,omitempty"`
}

func viewRoute(r *route.Route) routeView {
	v := routeView{
		ID:                r.ID,
		TimeSlot:          r.TimeSlot,
		StartTime:         r.StartTime,
		Status:            string(r.Status),
		StatusVersion:     r.StatusVersion,
		DriverID:          r.DriverID,
		TotalMiles:        r.TotalMiles,
		EstimatedEarnings: viewMoney(r.EstimatedEarnings),
		BailReason:        r.BailReason,
		Origin:            pointView{Lat: r.Origin.Lat, Lng: r.Origin.Lng},
		Orders:            make([]orderView, 0, len(r.Orders)),
		Stops:             make([]stopView, 0, len(r.Stops)),
		AcceptedAt:        r.AcceptedAt,
		StartedAt:         r.StartedAt,
		CompletedAt:       r.CompletedAt,
	}
	for _, o := range r.Orders {
		v.Orders = append(v.Orders, orderView{
			ID:        o.ID,
			BuyerID:   o.BuyerID,
			SellerID:  o.SellerID,
			Mileage:   o.Mileage,
			IsLarge:   o.IsLarge,
			BuyerTip:  viewMoney(o.BuyerTip),
			SellerTip: viewMoney(o.SellerTip),
			Late:      o.Late,
		})
	}
	for _, st := range r.Stops {
		v.Stops = append(v.Stops, viewStop(st))
	}
	return v
}

func viewRoutes(rs []*route.Route) []routeView {
	out := make([]routeView, 0, len(rs))
	for _, r := range rs {
		out = append(out, viewRoute(r))
	}
	return out
}

type settlementResultView struct {
	DeliveryID   types.ID     `json:"delivery_id"`
	Kind         string       `json:"kind"`
	State        string       `json:"state"`
	Fees         fees.Display `json:"fees"`
	DriverPayout moneyView    `json:"driver_payout"`
	BuyerCharge  moneyView    `json:"buyer_charge"`
	SellerCharge moneyView    `json:"seller_charge"`
	BuyerTip     moneyView    `json:"buyer_tip"`
	SellerTip    moneyView    `json:"seller_tip"`
	Replayed     bool         `json:"replayed"`
}

func viewResult(res settlement.Result) settlementResultView {
	return settlementResultView{
		DeliveryID:   res.DeliveryID,
		Kind:         string(res.Kind),
		State:        string(res.State),
		Fees:         res.Breakdown.Display(),
		DriverPayout: viewMoney(res.DriverPayout),
		BuyerCharge:  viewMoney(res.BuyerCharge),
		SellerCharge: viewMoney(res.SellerCharge),
		BuyerTip:     viewMoney(res.BuyerTip),
		SellerTip:    viewMoney(res.SellerTip),
		Replayed:     res.Replayed,
	}
}

type stopResultView struct {
	Route             routeView             `json:"route"`
	Stop              stopView              `json:"stop"`
	RouteCompleted    bool                  `json:"route_completed"`
	Settlement        *settlementResultView `json:"settlement,omitempty"`
	SettlementPending bool                  `json:"settlement_pending"`
	SettlementError   string                `json:"settlement_error,omitempty"`
}

func viewStopResult(res route.StopResult) stopResultView {
	v := stopResultView{
		Route:             viewRoute(res.Route),
		Stop:              viewStop(res.Stop),
		RouteCompleted:    res.RouteCompleted,
		SettlementPending: res.SettlementPending,
		SettlementError:   res.SettlementError,
	}
	if res.Settlement != nil {
		sv := viewResult(*res.Settlement)
		v.Settlement = &sv
	}
	return v
}
