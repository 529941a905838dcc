package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
	"github.com/yungbote/wrapped-backend/internal/observability"
	"github.com/yungbote/wrapped-backend/internal/platform/httpx"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
)

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Store persists vectors keyed by stable row id. Upserts must be idempotent
// and make a single attempt; upsert owns the retry budget.
type Store interface {
	UpsertEmbeddings(ctx context.Context, recs []chatlog.EmbeddingRecord) error
}

// Mirror is an optional secondary vector index. Its failures never fail a run.
type Mirror interface {
	MirrorEmbeddings(ctx context.Context, items []Item, recs []chatlog.EmbeddingRecord) error
}

// Item is one text to embed.
type Item struct {
	ID             uuid.UUID
	UserID         string
	ConversationID string
	Title          string
	Text           string
}

type Config struct {
	BatchSize   int
	Dim         int
	MaxRetries  int
	BackoffUnit time.Duration
	BatchDelay  time.Duration
	CallTimeout time.Duration
	Workers     int
	MaxChars    int
}

func DefaultConfig() Config {
	return Config{
		BatchSize:   50,
		Dim:         1536,
		MaxRetries:  3,
		BackoffUnit: time.Second,
		BatchDelay:  500 * time.Millisecond,
		CallTimeout: 60 * time.Second,
		Workers:     1,
		MaxChars:    24000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Dim <= 0 {
		c.Dim = d.Dim
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffUnit < 0 {
		c.BackoffUnit = 0
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxChars <= 0 {
		c.MaxChars = d.MaxChars
	}
	return c
}

type Result struct {
	Batches            int `json:"batches"`
	Embedded           int `json:"embedded"`
	Fallbacks          int `json:"fallbacks"`
	ZeroVectors        int `json:"zero_vectors"`
	LastCompletedBatch int `json:"last_completed_batch"`
}

type Pipeline struct {
	log      *logger.Logger
	embedder Embedder
	store    Store
	mirror   Mirror
	cfg      Config
	gate     *rate.Limiter
	sleep    func(ctx context.Context, d time.Duration) error
}

func New(log *logger.Logger, embedder Embedder, store Store, cfg Config) *Pipeline {
	if log == nil {
		log = logger.NewNop()
	}
	cfg = cfg.withDefaults()
	limit := rate.Inf
	if cfg.BatchDelay > 0 {
		limit = rate.Every(cfg.BatchDelay)
	}
	return &Pipeline{
		log:      log.With("service", "EmbeddingPipeline"),
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		gate:     rate.NewLimiter(limit, 1),
		sleep:    httpx.Sleep,
	}
}

// WithMirror attaches a secondary vector index.
func (p *Pipeline) WithMirror(m Mirror) *Pipeline {
	p.mirror = m
	return p
}

func (p *Pipeline) Config() Config { return p.cfg }

// NumBatches reports how many batches n items split into.
func (p *Pipeline) NumBatches(n int) int {
	return (n + p.cfg.BatchSize - 1) / p.cfg.BatchSize
}

// Run embeds items batch by batch starting at startBatch and upserts each
// batch before moving on. On a persistence failure it returns the partial
// result together with a *chatlog.Error carrying the batch boundary.
func (p *Pipeline) Run(ctx context.Context, items []Item, startBatch int) (Result, error) {
	total := p.NumBatches(len(items))
	res := Result{LastCompletedBatch: startBatch - 1}
	if startBatch < 0 {
		return res, chatlog.NewError(chatlog.KindValidation, "embedding.Run", fmt.Sprintf("start batch %d is negative", startBatch), nil)
	}
	if startBatch >= total {
		return res, nil
	}
	p.log.Info("embedding run started", "items", len(items), "batches", total, "start_batch", startBatch, "workers", p.cfg.Workers)

	var (
		mu   sync.Mutex
		done = make(map[int]bool)
	)
	record := func(idx int, st batchStats) {
		mu.Lock()
		defer mu.Unlock()
		res.Batches++
		res.Embedded += st.embedded
		res.Fallbacks += st.fallbacks
		res.ZeroVectors += st.zeros
		done[idx] = true
		for done[res.LastCompletedBatch+1] {
			res.LastCompletedBatch++
		}
	}
	lastCompleted := func() int {
		mu.Lock()
		defer mu.Unlock()
		return res.LastCompletedBatch
	}

	if p.cfg.Workers == 1 {
		for b := startBatch; b < total; b++ {
			st, err := p.runBatch(ctx, items, b, lastCompleted)
			if err != nil {
				return res, err
			}
			record(b, st)
		}
		p.log.Info("embedding run finished", "batches", res.Batches, "fallbacks", res.Fallbacks, "zero_vectors", res.ZeroVectors)
		return res, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for b := startBatch; b < total; b++ {
		b := b
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			st, err := p.runBatch(gctx, items, b, lastCompleted)
			if err != nil {
				return err
			}
			record(b, st)
			return nil
		})
	}
	err := g.Wait()
	p.log.Info("embedding run finished", "batches", res.Batches, "fallbacks", res.Fallbacks, "zero_vectors", res.ZeroVectors, "error", err)
	return res, err
}

type batchStats struct {
	embedded  int
	fallbacks int
	zeros     int
}

func (p *Pipeline) runBatch(ctx context.Context, items []Item, b int, lastCompleted func() int) (batchStats, error) {
	start := b * p.cfg.BatchSize
	end := min(start+p.cfg.BatchSize, len(items))
	batch := items[start:end]

	ctx, span := observability.StartSpan(ctx, "embedding.batch",
		attribute.Int("batch.index", b),
		attribute.Int("batch.size", len(batch)),
	)
	defer span.End()

	if err := p.gate.Wait(ctx); err != nil {
		return batchStats{}, err
	}
	began := time.Now()

	texts := make([]string, len(batch))
	for i, it := range batch {
		texts[i] = p.clip(it.Text)
	}
	recs, st := p.EmbedBatch(ctx, batch, texts)

	if err := p.upsert(ctx, recs); err != nil {
		observability.Current().ObserveEmbedBatch("failed", time.Since(began))
		span.RecordError(err)
		return st, chatlog.PersistenceError("embedding.upsert", b, start, end, lastCompleted(), err)
	}
	if p.mirror != nil {
		if err := p.mirror.MirrorEmbeddings(ctx, batch, recs); err != nil {
			p.log.Warn("vector mirror upsert failed", "batch", b, "error", err)
		}
	}
	outcome := "ok"
	if st.fallbacks > 0 {
		outcome = "fallback"
	}
	observability.Current().ObserveEmbedBatch(outcome, time.Since(began))
	p.log.Debug("embedding batch stored", "batch", b, "rows", len(batch), "fallbacks", st.fallbacks, "zero_vectors", st.zeros)
	return st, nil
}

// EmbedBatch produces exactly one Dim-length vector per item. A batch call
// that fails or returns the wrong shape falls back to one call per text;
// texts that still fail get a zero vector marked Missing.
func (p *Pipeline) EmbedBatch(ctx context.Context, batch []Item, texts []string) ([]chatlog.EmbeddingRecord, batchStats) {
	var st batchStats
	recs := make([]chatlog.EmbeddingRecord, len(batch))

	live := make([]int, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			recs[i] = p.zero(batch[i].ID)
			st.zeros++
			continue
		}
		live = append(live, i)
	}
	if len(live) == 0 {
		observability.Current().AddEmbedded("zero", st.zeros)
		return recs, st
	}

	liveTexts := make([]string, len(live))
	for j, i := range live {
		liveTexts[j] = texts[i]
	}
	vecs, err := p.call(ctx, liveTexts)
	if err == nil {
		err = p.checkShape(vecs, len(liveTexts))
	}
	if err == nil {
		for j, i := range live {
			recs[i] = chatlog.EmbeddingRecord{ID: batch[i].ID, Vector: vecs[j], Dim: p.cfg.Dim}
		}
		st.embedded += len(live)
		observability.Current().AddEmbedded("batch", len(live))
		observability.Current().AddEmbedded("zero", st.zeros)
		return recs, st
	}

	p.log.Warn("batch embedding failed; embedding texts one by one", "texts", len(live), "error", err)
	for _, i := range live {
		st.fallbacks++
		vecs, err := p.call(ctx, []string{texts[i]})
		if err == nil {
			err = p.checkShape(vecs, 1)
		}
		if err != nil {
			p.log.Warn("single embedding failed; storing zero vector", "id", batch[i].ID.String(), "error", err)
			recs[i] = p.zero(batch[i].ID)
			st.zeros++
			continue
		}
		recs[i] = chatlog.EmbeddingRecord{ID: batch[i].ID, Vector: vecs[0], Dim: p.cfg.Dim}
		st.embedded++
		observability.Current().AddEmbedded("single", 1)
	}
	observability.Current().AddEmbedded("zero", st.zeros)
	return recs, st
}

func (p *Pipeline) call(ctx context.Context, texts []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()
	return p.embedder.Embed(callCtx, texts)
}

func (p *Pipeline) checkShape(vecs [][]float32, n int) error {
	if len(vecs) != n {
		return fmt.Errorf("embedding count mismatch: want=%d got=%d", n, len(vecs))
	}
	for i, v := range vecs {
		if len(v) != p.cfg.Dim {
			return fmt.Errorf("embedding %d dimension mismatch: want=%d got=%d", i, p.cfg.Dim, len(v))
		}
	}
	return nil
}

func (p *Pipeline) zero(id uuid.UUID) chatlog.EmbeddingRecord {
	return chatlog.EmbeddingRecord{ID: id, Vector: make([]float32, p.cfg.Dim), Dim: p.cfg.Dim, Missing: true}
}

func (p *Pipeline) clip(s string) string {
	r := []rune(s)
	if len(r) <= p.cfg.MaxChars {
		return s
	}
	return string(r[:p.cfg.MaxChars])
}

// upsert tries MaxRetries+1 times, waiting BackoffUnit*2^attempt between tries.
func (p *Pipeline) upsert(ctx context.Context, recs []chatlog.EmbeddingRecord) error {
	var err error
	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
		err = p.store.UpsertEmbeddings(callCtx, recs)
		cancel()
		if err == nil {
			return nil
		}
		if attempt >= p.cfg.MaxRetries || ctx.Err() != nil {
			return err
		}
		wait := httpx.ExpBackoff(p.cfg.BackoffUnit, attempt+1)
		p.log.Warn("embedding upsert failed; retrying", "attempt", attempt+1, "max_retries", p.cfg.MaxRetries, "wait", wait.String(), "error", err)
		observability.Current().IncUpsertRetry()
		if serr := p.sleep(ctx, wait); serr != nil {
			return err
		}
	}
}
