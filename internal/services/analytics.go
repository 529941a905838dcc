package services

import (
	"context"
	"errors"
	"time"

	"github.com/yungbote/wrapped-backend/internal/analytics/clustering"
	"github.com/yungbote/wrapped-backend/internal/analytics/embedding"
	"github.com/yungbote/wrapped-backend/internal/analytics/entitygraph"
	"github.com/yungbote/wrapped-backend/internal/analytics/normalize"
	"github.com/yungbote/wrapped-backend/internal/analytics/retrieval"
	"github.com/yungbote/wrapped-backend/internal/analytics/wrapped"
	"github.com/yungbote/wrapped-backend/internal/cache"
	"github.com/yungbote/wrapped-backend/internal/data/repos"
	"github.com/yungbote/wrapped-backend/internal/pkg/dbctx"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
	"github.com/yungbote/wrapped-backend/internal/platform/neo4jdb"
)

var (
	// ErrNotLoaded is returned by view-backed operations before the first refresh.
	ErrNotLoaded = errors.New("analytics view not loaded")
	// ErrNotFound marks an unknown user or conversation.
	ErrNotFound = errors.New("not found")
)

type AnalyticsService interface {
	Ingest(ctx context.Context, in IngestInput) (IngestResult, error)
	Reembed(ctx context.Context, userID string, startBatch int) (embedding.Result, error)
	ListUsers(ctx context.Context) ([]string, error)

	Wrapped(ctx context.Context, userID string, fresh bool) (wrapped.Summary, error)
	Graph(ctx context.Context, userID string, topK int) (entitygraph.Summary, error)
	Reports(ctx context.Context, userID string) ([]StoredReport, error)

	View() *View
	Refresh(ctx context.Context, reason string) (*View, error)
	StartRefreshListener(ctx context.Context) error

	Search(ctx context.Context, userID, query string) (retrieval.Context, error)
	Compare(ctx context.Context, userA, userB string) ([]retrieval.Pair, error)
	Chat(ctx context.Context, in ChatInput) (ChatAnswer, error)
}

// Answerer produces free-text chat answers.
type Answerer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type AnalyticsConfig struct {
	DefaultUserID   string
	FetchPageSize   int
	FetchMaxRecords int
	GraphTopK       int
	ExtractTimeout  time.Duration
	ChatTimeout     time.Duration
	Instance        string
}

func (c AnalyticsConfig) withDefaults() AnalyticsConfig {
	if c.FetchPageSize <= 0 {
		c.FetchPageSize = 500
	}
	if c.FetchMaxRecords <= 0 {
		c.FetchMaxRecords = 36000
	}
	if c.GraphTopK <= 0 {
		c.GraphTopK = 10
	}
	if c.ExtractTimeout <= 0 {
		c.ExtractTimeout = 30 * time.Second
	}
	if c.ChatTimeout <= 0 {
		c.ChatTimeout = 60 * time.Second
	}
	return c
}

// AnalyticsDeps wires the service. Graph, Mirror, ReportCache and Bus are
// optional; Answerer and Extractor may be nil to run fully offline.
type AnalyticsDeps struct {
	Log         *logger.Logger
	ChatLogs    repos.ChatLogRepo
	Reports     repos.ReportRepo
	Pipeline    *embedding.Pipeline
	Clusterer   *clustering.Engine
	Retriever   *retrieval.Engine
	Extractor   entitygraph.Extractor
	Answerer    Answerer
	Graph       *neo4jdb.Client
	Mirror      *VectorMirror
	ReportCache cache.ReportStore
	Bus         cache.RefreshBus
	Config      AnalyticsConfig
	Now         func() time.Time
}

type analyticsService struct {
	log         *logger.Logger
	chatLogs    repos.ChatLogRepo
	reports     repos.ReportRepo
	pipeline    *embedding.Pipeline
	clusterer   *clustering.Engine
	retriever   *retrieval.Engine
	extractor   entitygraph.Extractor
	answerer    Answerer
	graph       *neo4jdb.Client
	mirror      *VectorMirror
	reportCache cache.ReportStore
	bus         cache.RefreshBus
	cfg         AnalyticsConfig
	now         func() time.Time
	view        *cache.Snapshots[View]
}

func NewAnalyticsService(d AnalyticsDeps) AnalyticsService {
	log := d.Log
	if log == nil {
		log = logger.NewNop()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	clusterer := d.Clusterer
	if clusterer == nil {
		clusterer = clustering.NewEngine(log, nil, clustering.DefaultK)
	}
	return &analyticsService{
		log:         log.With("service", "AnalyticsService"),
		chatLogs:    d.ChatLogs,
		reports:     d.Reports,
		pipeline:    d.Pipeline,
		clusterer:   clusterer,
		retriever:   d.Retriever,
		extractor:   d.Extractor,
		answerer:    d.Answerer,
		graph:       d.Graph,
		mirror:      d.Mirror,
		reportCache: d.ReportCache,
		bus:         d.Bus,
		cfg:         d.Config.withDefaults(),
		now:         now,
		view:        cache.NewSnapshots[View](),
	}
}

func (s *analyticsService) ListUsers(ctx context.Context) ([]string, error) {
	return s.chatLogs.ListUsers(dbctx.Context{Ctx: ctx})
}

func (s *analyticsService) normalizeOptions(defaultUser string) normalize.Options {
	if defaultUser == "" {
		defaultUser = s.cfg.DefaultUserID
	}
	return normalize.Options{DefaultUserID: defaultUser}
}
