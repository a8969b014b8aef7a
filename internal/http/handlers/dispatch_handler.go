// README: Dispatch handler: publishes new routes.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"marketpace/internal/modules/route"
	"marketpace/internal/types"
)

type DispatchHandler struct {
	routes *route.Service
}

func NewDispatchHandler(routes *route.Service) *DispatchHandler {
	return &DispatchHandler{routes: routes}
}

type placeRequest struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

func (p placeRequest) place() route.Place {
	return route.Place{Address: p.Address, Position: types.Point{Lat: p.Lat, Lng: p.Lng}}
}

type publishOrderRequest struct {
	OrderID  string       `json:"order_id"`
	BuyerID  string       `json:"buyer_id"`
	SellerID string       `json:"seller_id"`
	Mileage  float64      `json:"mileage"`
	IsLarge  bool         `json:"is_large"`
	Pickup   placeRequest `json:"pickup"`
	Dropoff  placeRequest `json:"dropoff"`
}

type publishStopRequest struct {
	OrderID string `json:"order_id"`
	Kind    string `json:"kind"`
}

type publishRequest struct {
	TimeSlot  string                `json:"time_slot"`
	StartTime time.Time             `json:"start_time" binding:"required"`
	Orders    []publishOrderRequest `json:"orders" binding:"required"`
	Stops     []publishStopRequest  `json:"stops"`
}

func (h *DispatchHandler) Publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	cmd := route.PublishCommand{TimeSlot: req.TimeSlot, StartTime: req.StartTime}
	for _, o := range req.Orders {
		cmd.Orders = append(cmd.Orders, route.PublishOrder{
			OrderID:  types.ID(o.OrderID),
			BuyerID:  types.ID(o.BuyerID),
			SellerID: types.ID(o.SellerID),
			Mileage:  o.Mileage,
			IsLarge:  o.IsLarge,
			Pickup:   o.Pickup.place(),
			Dropoff:  o.Dropoff.place(),
		})
	}
	for _, s := range req.Stops {
		cmd.Stops = append(cmd.Stops, route.PublishStop{OrderID: types.ID(s.OrderID), Kind: route.StopKind(s.Kind)})
	}
	r, err := h.routes.Publish(c.Request.Context(), cmd)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, viewRoute(r))
}
