// README: Driver location handler; positions feed route offers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketpace/internal/http/middleware"
	"marketpace/internal/modules/matching"
	"marketpace/internal/types"
)

type LocationHandler struct {
	matching *matching.Service
}

func NewLocationHandler(svc *matching.Service) *LocationHandler {
	return &LocationHandler{matching: svc}
}

type locationRequest struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	OffShift bool    `json:"off_shift"`
}

func (h *LocationHandler) Update(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing id")
		return
	}
	// Only the authenticated driver may update their own location.
	if middleware.CallerUID(c) != id {
		writeError(c, http.StatusForbidden, "forbidden: id does not match authenticated user")
		return
	}
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid body")
		return
	}
	var err error
	if req.OffShift {
		err = h.matching.RemoveDriver(c.Request.Context(), types.ID(id))
	} else {
		err = h.matching.UpdateDriver(c.Request.Context(), types.ID(id), types.Point{Lat: req.Lat, Lng: req.Lng})
	}
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}
