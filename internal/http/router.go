// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"marketpace/internal/http/handlers"
	"marketpace/internal/http/middleware"
	"marketpace/internal/infra"
	"marketpace/internal/modules/matching"
	"marketpace/internal/modules/route"
	"marketpace/internal/modules/settlement"
)

type RouterDeps struct {
	Routes     *route.Service
	Settlement *settlement.Service
	Matching   *matching.Service
	Verifier   infra.TokenVerifier
	Log        *zap.Logger
	// RadiusKm is the default nearby-search radius.
	RadiusKm float64
}

func NewRouter(deps RouterDeps) *gin.Engine {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Logging(log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	routeHandler := handlers.NewRouteHandler(deps.Routes, deps.RadiusKm)
	api.GET("/routes/:id", routeHandler.Get)
	api.GET("/routes/:id/window", routeHandler.Window)
	api.GET("/routes/:id/estimate", routeHandler.Estimate)
	api.GET("/routes/:id/events", routeHandler.Events)

	driver := api.Group("/drivers", middleware.RequireRole(middleware.RoleDriver))
	driver.GET("/routes", routeHandler.ListAvailable)
	driver.GET("/routes/nearby", routeHandler.Nearby)
	driver.GET("/me/routes", routeHandler.Mine)
	driver.POST("/routes/:id/accept", routeHandler.Accept)
	driver.POST("/routes/:id/start", routeHandler.Start)
	driver.POST("/routes/:id/pause", routeHandler.Pause)
	driver.POST("/routes/:id/resume", routeHandler.Resume)
	driver.POST("/routes/:id/bail", routeHandler.Bail)
	driver.POST("/routes/:id/stops/:stop_id/status", routeHandler.AdvanceStop)
	driver.POST("/routes/:id/stops/:stop_id/reject", routeHandler.Reject)

	api.POST("/routes/:id/orders/:order_id/tip",
		middleware.RequireRole(middleware.RoleBuyer, middleware.RoleSeller, middleware.RoleAdmin), routeHandler.Tip)
	api.POST("/routes/:id/orders/:order_id/late",
		middleware.RequireRole(middleware.RoleDriver), routeHandler.MarkLate)
	api.POST("/routes/:id/orders/:order_id/settle",
		middleware.RequireRole(middleware.RoleDispatcher, middleware.RoleAdmin), routeHandler.Settle)

	settlementHandler := handlers.NewSettlementHandler(deps.Settlement)
	api.GET("/deliveries/:id/settlement", settlementHandler.Get)

	dispatchHandler := handlers.NewDispatchHandler(deps.Routes)
	api.POST("/dispatch/routes",
		middleware.RequireRole(middleware.RoleDispatcher, middleware.RoleAdmin), dispatchHandler.Publish)

	if deps.Matching != nil {
		locationHandler := handlers.NewLocationHandler(deps.Matching)
		driver.PUT("/:id/location", locationHandler.Update)
	}

	return r
}
