package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/wrapped-backend/internal/cache"
	"github.com/yungbote/wrapped-backend/internal/data/db"
	"github.com/yungbote/wrapped-backend/internal/observability"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
	"github.com/yungbote/wrapped-backend/internal/platform/neo4jdb"
	"github.com/yungbote/wrapped-backend/internal/platform/openai"
	"github.com/yungbote/wrapped-backend/internal/services"
)

// Clients holds external connections. Everything except Store is optional
// and nil when its environment is not configured.
type Clients struct {
	Store       *db.Service
	OpenAI      openai.Client
	VectorIndex services.PointIndex
	Graph       *neo4jdb.Client
	Redis       *goredis.Client
	ReportCache cache.ReportStore
	RefreshBus  cache.RefreshBus
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, metrics *observability.Metrics) (Clients, error) {
	log.Info("Wiring clients...")

	store, err := db.NewService(log, db.ConfigFromEnv())
	if err != nil {
		return Clients{}, fmt.Errorf("init store: %w", err)
	}
	out := Clients{Store: store}

	// OpenAI
	oa, err := openai.NewClient(log, openai.ConfigFromEnv())
	if err != nil {
		log.Warn("openai disabled, running with offline fallbacks", "error", err)
	} else {
		out.OpenAI = oa
	}

	// Qdrant
	idx, err := bootstrapVectorIndex(ctx, log, cfg.Embedding.Dim, metrics)
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init vector index: %w", err)
	}
	out.VectorIndex = idx

	// Neo4j
	graph, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init neo4j: %w", err)
	}
	out.Graph = graph

	// Redis
	rdb, err := cache.NewRedisFromEnv(log)
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}
	if rdb != nil {
		out.Redis = rdb
		if out.ReportCache, err = cache.NewRedisReportStore(log, rdb, cfg.ReportCachePrefix, cfg.ReportCacheTTL); err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init report cache: %w", err)
		}
		if out.RefreshBus, err = cache.NewRedisRefreshBus(log, rdb, cfg.RedisChannel); err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init refresh bus: %w", err)
		}
	}

	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Graph != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = c.Graph.Close(ctx)
		cancel()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}
