package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/wrapped-backend/internal/http/handlers"
	httpMW "github.com/yungbote/wrapped-backend/internal/http/middleware"
	"github.com/yungbote/wrapped-backend/internal/observability"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	HealthHandler    *httpH.HealthHandler
	AnalyticsHandler *httpH.AnalyticsHandler
	IngestHandler    *httpH.IngestHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/metrics", cfg.HealthHandler.Metrics)
	}

	api := r.Group("/api")
	{
		if h := cfg.AnalyticsHandler; h != nil {
			api.GET("/data", h.GetData)
			api.POST("/refresh", h.Refresh)
			api.POST("/compare", h.Compare)
			api.POST("/chat", h.Chat)
			api.POST("/search", h.Search)
			api.GET("/wrapped/:user_id", h.Wrapped)
			api.GET("/graph", h.Graph)
			api.GET("/users", h.ListUsers)
			api.GET("/users/:user_id/reports", h.ListReports)
		}

		if h := cfg.IngestHandler; h != nil {
			api.POST("/ingest", h.Upload)
			api.POST("/users/:user_id/reembed", h.Reembed)
		}
	}

	return r
}
