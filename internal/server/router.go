package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/0xPexy/aletta-backend/internal/analysis"
	"github.com/0xPexy/aletta-backend/internal/auth"
	"github.com/0xPexy/aletta-backend/internal/metrics"
)

const serviceName = "aletta-backend"

// Version is overridden at build time with -ldflags.
var Version = "dev"

func NewRouter(svc *analysis.Service, authSvc *auth.Service, hub *EventHub, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if m != nil {
		r.Use(httpMetrics(m.HTTP))
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": serviceName, "version": Version})
	})
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	h := newReportHandler(svc)
	api := r.Group("/api")
	api.GET("/report/:id", h.GetReport)
	api.GET("/reports", h.FindReports)
	if hub != nil {
		api.GET("/events", hub.ServeWS)
	}
	guarded := api.Group("", auth.JWTMiddleware(authSvc))
	guarded.POST("/analyze", h.Analyze)

	return r
}
