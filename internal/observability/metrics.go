package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/wrapped-backend/internal/platform/envutil"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge
	apiReqError *Counter

	llmRequests  *CounterVec
	llmLatency   *HistogramVec
	llmTokens    *CounterVec
	llmFallbacks *CounterVec

	embedBatches   *CounterVec
	embedTexts     *CounterVec
	embedLatency   *HistogramVec
	upsertRetries  *Counter
	normalizeRows  *CounterVec
	clusterRuns    *CounterVec
	clusterLatency *HistogramVec
	retrievalHits  *HistogramVec
	refreshes      *CounterVec

	vectorOps     *CounterVec
	vectorLatency *HistogramVec

	pgStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current returns the process metrics, or nil when metrics are disabled.
// Every method on *Metrics is nil-safe.
func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	return envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second)
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

// New builds an unregistered metrics set.
func New() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("wr_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"wr_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGauge("wr_api_inflight_requests", "In-flight API requests."),
		apiReqError: NewCounter("wr_api_requests_error_total", "API requests answered with 5xx."),

		llmRequests: NewCounterVec("wr_llm_requests_total", "LLM requests by model/endpoint/status.", []string{"model", "endpoint", "status"}),
		llmLatency: NewHistogramVec(
			"wr_llm_request_duration_seconds",
			"LLM request latency in seconds.",
			[]string{"model", "endpoint", "status"},
			[]float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		),
		llmTokens:    NewCounterVec("wr_llm_tokens_total", "LLM tokens by model/direction.", []string{"model", "direction"}),
		llmFallbacks: NewCounterVec("wr_llm_fallbacks_total", "LLM calls that degraded to a fallback.", []string{"purpose"}),

		embedBatches: NewCounterVec("wr_embed_batches_total", "Embedding batches by outcome.", []string{"outcome"}),
		embedTexts:   NewCounterVec("wr_embed_texts_total", "Embedded texts by path (batch, single, zero).", []string{"path"}),
		embedLatency: NewHistogramVec(
			"wr_embed_batch_duration_seconds",
			"Embedding batch latency in seconds.",
			[]string{"outcome"},
			[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		),
		upsertRetries: NewCounter("wr_embed_upsert_retries_total", "Embedding upsert retries."),
		normalizeRows: NewCounterVec("wr_normalize_rows_total", "Normalized rows by outcome.", []string{"outcome"}),
		clusterRuns:   NewCounterVec("wr_cluster_runs_total", "Per-user clustering runs by label source.", []string{"label"}),
		clusterLatency: NewHistogramVec(
			"wr_cluster_duration_seconds",
			"Clustering latency for one user.",
			nil,
			[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		),
		retrievalHits: NewHistogramVec(
			"wr_retrieval_hits",
			"Retrieved documents per query.",
			nil,
			[]float64{0, 1, 2, 5, 10, 20, 50},
		),
		refreshes: NewCounterVec("wr_snapshot_refreshes_total", "Snapshot refreshes by status.", []string{"status"}),

		vectorOps: NewCounterVec("wr_vector_store_operations_total", "Vector index operations by provider/operation/status.", []string{"provider", "operation", "status"}),
		vectorLatency: NewHistogramVec(
			"wr_vector_store_operation_duration_seconds",
			"Vector index operation latency in seconds.",
			[]string{"provider", "operation", "status"},
			[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		),

		pgStats:   NewGaugeVec("wr_db_pool", "Database pool statistics.", []string{"stat"}),
		redisUp:   NewGauge("wr_redis_up", "Redis reachable (1) or not (0)."),
		redisPing: NewGauge("wr_redis_ping_seconds", "Redis ping latency in seconds."),
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight, m.apiReqError,
		m.llmRequests, m.llmLatency, m.llmTokens, m.llmFallbacks,
		m.embedBatches, m.embedTexts, m.embedLatency, m.upsertRetries,
		m.normalizeRows, m.clusterRuns, m.clusterLatency, m.retrievalHits, m.refreshes,
		m.vectorOps, m.vectorLatency,
		m.pgStats, m.redisUp, m.redisPing,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
	if isServerErrorStatus(status) {
		m.apiReqError.Inc()
	}
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = "unknown"
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.llmRequests.Inc(model, endpoint, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model, endpoint, status)
	}
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
}

// IncLLMFallback counts an LLM-backed step that fell back (labels, entities, chat).
func (m *Metrics) IncLLMFallback(purpose string) {
	if m == nil {
		return
	}
	m.llmFallbacks.Inc(purpose)
}

func (m *Metrics) ObserveEmbedBatch(outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.embedBatches.Inc(outcome)
	m.embedLatency.Observe(dur.Seconds(), outcome)
}

func (m *Metrics) AddEmbedded(path string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.embedTexts.Add(float64(n), path)
}

func (m *Metrics) IncUpsertRetry() {
	if m == nil {
		return
	}
	m.upsertRetries.Inc()
}

func (m *Metrics) AddNormalized(kept, dropped, skipped int) {
	if m == nil {
		return
	}
	m.normalizeRows.Add(float64(kept), "kept")
	m.normalizeRows.Add(float64(dropped), "dropped")
	m.normalizeRows.Add(float64(skipped), "skipped")
}

func (m *Metrics) ObserveCluster(labelSource string, dur time.Duration) {
	if m == nil {
		return
	}
	m.clusterRuns.Inc(labelSource)
	m.clusterLatency.Observe(dur.Seconds())
}

func (m *Metrics) ObserveRetrieval(hits int) {
	if m == nil {
		return
	}
	m.retrievalHits.Observe(float64(hits))
}

func (m *Metrics) IncRefresh(status string) {
	if m == nil {
		return
	}
	m.refreshes.Inc(status)
}

func (m *Metrics) ObserveVectorStoreOperation(provider, operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.vectorOps.Inc(provider, operation, status)
	m.vectorLatency.Observe(dur.Seconds(), provider, operation, status)
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
