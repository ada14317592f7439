// internal/api/router.go
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"autohaven/internal/common/auth"
	"autohaven/internal/common/logger"
)

// NewRouter wires the HTTP surface: health and metrics are open, everything
// under /api/v1 requires a verified bearer token, deletes require admin.
func NewRouter(handler *Handler, verifier auth.Verifier, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(Recovery(log))
	router.Use(RequestLogger(log))
	router.Use(CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1", Authenticated(verifier))
	{
		cars := v1.Group("/cars")
		cars.POST("", handler.CreateListing)
		cars.GET("", handler.ListListings)
		cars.GET("/:id", handler.GetListing)
		cars.PATCH("/:id", handler.UpdateListing)
		cars.DELETE("/:id", AdminOnly(), handler.DeleteListing)
		cars.POST("/:id/enrich", handler.EnrichListing)
		cars.POST("/:id/notify", handler.NotifyListing)
	}

	return router
}
