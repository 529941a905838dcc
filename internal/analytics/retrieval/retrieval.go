package retrieval

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
	"github.com/yungbote/wrapped-backend/internal/observability"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
)

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Config struct {
	TopN        int
	MinScore    float64
	BodyChars   int
	CallTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{TopN: 50, MinScore: 0.25, BodyChars: 500, CallTimeout: 60 * time.Second}
}

type Hit struct {
	Score    float64          `json:"score"`
	Document chatlog.Document `json:"document"`
}

// Context is the rendered retrieval result handed to answer generation.
type Context struct {
	Hits      []Hit  `json:"hits"`
	Text      string `json:"text"`
	NoContext bool   `json:"no_context"`
}

type Engine struct {
	log      *logger.Logger
	embedder Embedder
	cfg      Config
}

func NewEngine(log *logger.Logger, embedder Embedder, cfg Config) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	d := DefaultConfig()
	if cfg.TopN <= 0 {
		cfg.TopN = d.TopN
	}
	if cfg.BodyChars <= 0 {
		cfg.BodyChars = d.BodyChars
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = d.CallTimeout
	}
	return &Engine{log: log.With("service", "RetrievalEngine"), embedder: embedder, cfg: cfg}
}

func (e *Engine) Config() Config { return e.cfg }

// Retrieve embeds query and ranks userID's documents against it. An empty
// query is a validation error; an empty result is Context{NoContext: true}.
func (e *Engine) Retrieve(ctx context.Context, userID, query string, docs []chatlog.Document) (Context, error) {
	vec, err := e.EmbedQuery(ctx, query)
	if err != nil {
		return Context{}, err
	}
	return e.RetrieveVector(userID, vec, docs), nil
}

// EmbedQuery embeds one query under the call timeout.
func (e *Engine) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if strings.TrimSpace(query) == "" {
		return nil, chatlog.NewError(chatlog.KindValidation, "retrieval.Retrieve", "query is empty", nil)
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	vecs, err := e.embedder.Embed(callCtx, []string{query})
	cancel()
	if err != nil {
		return nil, chatlog.Wrap(chatlog.KindService, "retrieval.embed_query", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, chatlog.NewError(chatlog.KindService, "retrieval.embed_query", "embedder returned no vector", nil)
	}
	return vecs[0], nil
}

// RetrieveVector ranks and renders docs against an already embedded query.
func (e *Engine) RetrieveVector(userID string, query []float32, docs []chatlog.Document) Context {
	hits := Rank(query, userID, docs, e.cfg.TopN, e.cfg.MinScore)
	observability.Current().ObserveRetrieval(len(hits))
	e.log.Debug("retrieval ranked", "user_id", userID, "candidates", len(docs), "hits", len(hits))
	return Render(hits, e.cfg.BodyChars)
}

// Rank scores the user's embedded documents, sorts them by descending score
// (document order on ties), keeps the top n and then drops scores below min.
func Rank(query []float32, userID string, docs []chatlog.Document, n int, min float64) []Hit {
	hits := make([]Hit, 0, len(docs))
	for _, d := range docs {
		if d.UserID != userID || d.EmbeddingMissing || len(d.Vector) == 0 {
			continue
		}
		hits = append(hits, Hit{Score: Cosine(query, d.Vector), Document: d})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if n > 0 && len(hits) > n {
		hits = hits[:n]
	}
	out := hits[:0]
	for _, h := range hits {
		if h.Score >= min {
			out = append(out, h)
		}
	}
	return out
}

// Render formats hits as "Title: ...\n<body>" blocks separated by blank lines.
func Render(hits []Hit, bodyChars int) Context {
	if len(hits) == 0 {
		return Context{Hits: []Hit{}, NoContext: true}
	}
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, "Title: "+h.Document.Title+"\n"+Truncate(h.Document.Body, bodyChars))
	}
	return Context{Hits: hits, Text: strings.Join(parts, "\n\n")}
}

// Truncate cuts s to n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
