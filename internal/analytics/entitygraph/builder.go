package entitygraph

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/wrapped-backend/internal/observability"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
)

// Builder accumulates co-occurrences across transcripts for one pass.
type Builder struct {
	log       *logger.Logger
	extractor Extractor
	timeout   time.Duration

	mu    sync.Mutex
	graph *Graph
	fails int
}

func NewBuilder(log *logger.Logger, extractor Extractor, callTimeout time.Duration) *Builder {
	if log == nil {
		log = logger.NewNop()
	}
	return &Builder{
		log:       log.With("service", "EntityGraphBuilder"),
		extractor: extractor,
		timeout:   callTimeout,
		graph:     NewGraph(),
	}
}

// Ingest extracts entities from one transcript and links every pair of them.
// Extraction failures degrade to an empty entity list.
func (b *Builder) Ingest(ctx context.Context, transcript string) []string {
	var ents []Entity
	if b.extractor != nil {
		callCtx := ctx
		cancel := func() {}
		if b.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, b.timeout)
		}
		out, err := b.extractor.Extract(callCtx, transcript)
		cancel()
		if err != nil {
			b.log.Warn("entity extraction failed; using empty entity list", "error", err)
			observability.Current().IncLLMFallback("entities")
			b.mu.Lock()
			b.fails++
			b.mu.Unlock()
		} else {
			ents = out
		}
	}
	names := Filter(ents)
	b.Add(names)
	return names
}

// Add links an already filtered, de-duplicated entity list.
func (b *Builder) Add(names []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range names {
		b.graph.AddNode(n)
	}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			b.graph.AddEdge(names[i], names[j], 1)
		}
	}
}

// Snapshot returns an independent copy of the graph.
func (b *Builder) Snapshot() *Graph {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.graph.Clone()
}

func (b *Builder) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fails
}

func (b *Builder) Summarize(topK int) Summary {
	return b.Snapshot().Summarize(topK)
}
