// README: Route handlers for drivers: browse, accept, lifecycle, stops, tips and settlement retry.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"marketpace/internal/http/middleware"
	"marketpace/internal/modules/route"
	"marketpace/internal/types"
)

type RouteHandler struct {
	routes   *route.Service
	radiusKm float64
}

// NewRouteHandler takes the default search radius used when a nearby query omits one.
func NewRouteHandler(routes *route.Service, radiusKm float64) *RouteHandler {
	return &RouteHandler{routes: routes, radiusKm: radiusKm}
}

func (h *RouteHandler) ListAvailable(c *gin.Context) {
	rs, err := h.routes.ListAvailable(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"routes": viewRoutes(rs)})
}

func (h *RouteHandler) Nearby(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	radius := h.radiusKm
	if v := c.Query("radius_km"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid radius_km")
			return
		}
		radius = r
	}
	rs, err := h.routes.Nearby(c.Request.Context(), types.Point{Lat: lat, Lng: lng}, radius)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"routes": viewRoutes(rs)})
}

func (h *RouteHandler) Mine(c *gin.Context) {
	rs, err := h.routes.ListByDriver(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"routes": viewRoutes(rs)})
}

func (h *RouteHandler) Get(c *gin.Context) {
	r, err := h.routes.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewRoute(r))
}

func (h *RouteHandler) Window(c *gin.Context) {
	w, err := h.routes.Window(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"open":                 w.Open,
		"closes_at":            w.ClosesAt,
		"minutes_until_closed": w.MinutesUntilClosed,
	})
}

func (h *RouteHandler) Estimate(c *gin.Context) {
	minutes, err := h.routes.Estimate(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"estimated_minutes": minutes})
}

type eventView struct {
	ID         int64     `json:"id"`
	StopID     *types.ID `json:"stop_id,omitempty"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ActorType  string    `json:"actor_type"`
	ActorID    *types.ID `json:"actor_id,omitempty"`
	Reason     *string   `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (h *RouteHandler) Events(c *gin.Context) {
	events, err := h.routes.Events(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, eventView{
			ID:         e.ID,
			StopID:     e.StopID,
			FromStatus: e.FromStatus,
			ToStatus:   e.ToStatus,
			ActorType:  e.ActorType,
			ActorID:    e.ActorID,
			Reason:     e.Reason,
			CreatedAt:  e.CreatedAt,
		})
	}
	writeJSON(c, http.StatusOK, gin.H{"events": out})
}

func (h *RouteHandler) Accept(c *gin.Context) {
	h.driverOp(c, func(routeID, driverID types.ID) (*route.Route, error) {
		return h.routes.Accept(c.Request.Context(), route.AcceptCommand{RouteID: routeID, DriverID: driverID})
	})
}

func (h *RouteHandler) Start(c *gin.Context) {
	h.driverOp(c, func(routeID, driverID types.ID) (*route.Route, error) {
		return h.routes.Start(c.Request.Context(), route.StartCommand{RouteID: routeID, DriverID: driverID})
	})
}

func (h *RouteHandler) Pause(c *gin.Context) {
	h.driverOp(c, func(routeID, driverID types.ID) (*route.Route, error) {
		return h.routes.Pause(c.Request.Context(), route.PauseCommand{RouteID: routeID, DriverID: driverID})
	})
}

func (h *RouteHandler) Resume(c *gin.Context) {
	h.driverOp(c, func(routeID, driverID types.ID) (*route.Route, error) {
		return h.routes.Resume(c.Request.Context(), route.ResumeCommand{RouteID: routeID, DriverID: driverID})
	})
}

type bailRequest struct {
	Reason string `json:"reason"`
}

func (h *RouteHandler) Bail(c *gin.Context) {
	var req bailRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid body")
			return
		}
	}
	h.driverOp(c, func(routeID, driverID types.ID) (*route.Route, error) {
		return h.routes.Bail(c.Request.Context(), route.BailCommand{RouteID: routeID, DriverID: driverID, Reason: req.Reason})
	})
}

func (h *RouteHandler) driverOp(c *gin.Context, op func(routeID, driverID types.ID) (*route.Route, error)) {
	r, err := op(types.ID(c.Param("id")), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewRoute(r))
}

type stopStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *RouteHandler) AdvanceStop(c *gin.Context) {
	var req stopStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "status is required")
		return
	}
	to, err := route.ParseStopStatus(req.Status)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	res, err := h.routes.AdvanceStop(c.Request.Context(), route.AdvanceStopCommand{
		RouteID:  types.ID(c.Param("id")),
		StopID:   types.ID(c.Param("stop_id")),
		DriverID: types.ID(middleware.CallerUID(c)),
		To:       to,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewStopResult(res))
}

type rejectRequest struct {
	Outcome string `json:"outcome" binding:"required"`
}

func (h *RouteHandler) Reject(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "outcome is required")
		return
	}
	res, err := h.routes.RejectDelivery(c.Request.Context(), route.RejectCommand{
		RouteID:  types.ID(c.Param("id")),
		StopID:   types.ID(c.Param("stop_id")),
		DriverID: types.ID(middleware.CallerUID(c)),
		Outcome:  route.RejectionOutcome(req.Outcome),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewStopResult(res))
}

type tipRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"required"`
	Tipper      string `json:"tipper" binding:"required"`
}

func (h *RouteHandler) Tip(c *gin.Context) {
	var req tipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "amount_cents and tipper are required")
		return
	}
	// Customers may only tip as themselves, on their own order.
	var tipperID types.ID
	if role := middleware.CallerRole(c); role != middleware.RoleAdmin {
		if role != req.Tipper {
			writeError(c, http.StatusForbidden, "forbidden: tipper does not match caller role")
			return
		}
		tipperID = types.ID(middleware.CallerUID(c))
	}
	r, err := h.routes.AddTip(c.Request.Context(), route.TipCommand{
		RouteID:  types.ID(c.Param("id")),
		OrderID:  types.ID(c.Param("order_id")),
		Tipper:   req.Tipper,
		TipperID: tipperID,
		Amount:   types.USD(req.AmountCents),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewRoute(r))
}

func (h *RouteHandler) MarkLate(c *gin.Context) {
	r, err := h.routes.MarkLate(c.Request.Context(), route.MarkLateCommand{
		RouteID:  types.ID(c.Param("id")),
		OrderID:  types.ID(c.Param("order_id")),
		DriverID: types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewRoute(r))
}

func (h *RouteHandler) Settle(c *gin.Context) {
	res, err := h.routes.SettleOrder(c.Request.Context(), types.ID(c.Param("id")), types.ID(c.Param("order_id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewResult(res))
}
