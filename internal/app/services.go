package app

import (
	"github.com/yungbote/wrapped-backend/internal/analytics/clustering"
	"github.com/yungbote/wrapped-backend/internal/analytics/embedding"
	"github.com/yungbote/wrapped-backend/internal/analytics/entitygraph"
	"github.com/yungbote/wrapped-backend/internal/analytics/retrieval"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
	"github.com/yungbote/wrapped-backend/internal/platform/openai"
	"github.com/yungbote/wrapped-backend/internal/services"
)

const (
	labelSystemPrompt  = "You name clusters of chat conversations. Reply with the title only."
	answerSystemPrompt = "You are a helpful assistant answering questions about a user's chat history."
)

type Services struct {
	Analytics services.AnalyticsService
	Pipeline  *embedding.Pipeline
	Retriever *retrieval.Engine
	Clusterer *clustering.Engine
	Mirror    *services.VectorMirror
}

func wireServices(log *logger.Logger, cfg Config, clients Clients, reposet Repos) Services {
	log.Info("Wiring services...")

	var (
		pipeline  *embedding.Pipeline
		retriever *retrieval.Engine
		labelGen  clustering.Generator
		extractor entitygraph.Extractor
		answerer  services.Answerer
	)
	if oa := clients.OpenAI; oa != nil {
		pipeline = embedding.New(log, oa, reposet.ChatLogs, cfg.Embedding)
		retriever = retrieval.NewEngine(log, oa, cfg.Retrieval)
		labelGen = openai.Generator{Client: oa, System: labelSystemPrompt}
		extractor = entitygraph.NewLLMExtractor(oa, cfg.ExtractMaxChars)
		answerer = openai.Generator{Client: oa, System: answerSystemPrompt}
	}

	var mirror *services.VectorMirror
	if clients.VectorIndex != nil {
		mirror = services.NewVectorMirror(log, clients.VectorIndex)
		if pipeline != nil {
			pipeline.WithMirror(mirror)
		}
	}

	labeler := clustering.NewLabeler(log, labelGen, cfg.Labeler)
	clusterer := clustering.NewEngine(log, labeler, cfg.ClusterK)

	analytics := services.NewAnalyticsService(services.AnalyticsDeps{
		Log:         log,
		ChatLogs:    reposet.ChatLogs,
		Reports:     reposet.Reports,
		Pipeline:    pipeline,
		Clusterer:   clusterer,
		Retriever:   retriever,
		Extractor:   extractor,
		Answerer:    answerer,
		Graph:       clients.Graph,
		Mirror:      mirror,
		ReportCache: clients.ReportCache,
		Bus:         clients.RefreshBus,
		Config:      cfg.Analytics,
	})

	return Services{
		Analytics: analytics,
		Pipeline:  pipeline,
		Retriever: retriever,
		Clusterer: clusterer,
		Mirror:    mirror,
	}
}
