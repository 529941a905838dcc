package app

import (
	httpH "github.com/yungbote/wrapped-backend/internal/http/handlers"
	"github.com/yungbote/wrapped-backend/internal/observability"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
)

type Handlers struct {
	Health    *httpH.HealthHandler
	Analytics *httpH.AnalyticsHandler
	Ingest    *httpH.IngestHandler
}

func wireHandlers(log *logger.Logger, metrics *observability.Metrics, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:    httpH.NewHealthHandler(metrics),
		Analytics: httpH.NewAnalyticsHandler(log, serviceset.Analytics),
		Ingest:    httpH.NewIngestHandler(log, serviceset.Analytics),
	}
}
