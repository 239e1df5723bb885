package http

import (
	"net/http"

	"saga-transaction/internal/common/health"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the saga API. A nil failure handler or gatherer leaves its routes out.
func NewRouter(h *SagaHandler, f *FailureHandler, checker health.HealthChecker, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		status := checker.Check(c.Request.Context())
		code := http.StatusOK
		if !status.Healthy() {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/sagas")
	{
		api.POST("", h.RunSaga)
		api.GET("", h.ListSagas)
		api.GET("/:id", h.GetSaga)
		api.GET("/:id/events", h.GetSagaEvents)
	}

	if f != nil {
		router.GET("/api/failures", f.ListUnresolved)
		router.POST("/api/failures/:id/resolve", f.Resolve)
	}

	return router
}
