package app

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/wrapped-backend/internal/analytics/clustering"
	"github.com/yungbote/wrapped-backend/internal/analytics/embedding"
	"github.com/yungbote/wrapped-backend/internal/analytics/retrieval"
	"github.com/yungbote/wrapped-backend/internal/platform/envutil"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
	"github.com/yungbote/wrapped-backend/internal/services"
)

type Config struct {
	LogMode     string
	HTTPAddr    string
	ServiceName string
	Environment string
	Version     string
	CORSOrigins []string

	Embedding embedding.Config
	ClusterK  int
	Labeler   clustering.LabelerConfig
	Retrieval retrieval.Config
	Analytics services.AnalyticsConfig

	ExtractMaxChars   int
	RedisChannel      string
	ReportCachePrefix string
	ReportCacheTTL    time.Duration
	RefreshOnStart    bool
	ShutdownTimeout   time.Duration
}

// LoadConfig reads the environment. When ANALYTICS_CONFIG_FILE names a YAML
// file, its keys fill in variables the environment leaves unset.
func LoadConfig(log *logger.Logger) Config {
	if path := strings.TrimSpace(os.Getenv("ANALYTICS_CONFIG_FILE")); path != "" {
		applied, err := applyOverlayFile(path)
		if err != nil {
			log.Warn("config overlay ignored", "path", path, "error", err)
		} else {
			log.Info("config overlay applied", "path", path, "keys", applied)
		}
	}

	host, _ := os.Hostname()
	cfg := Config{
		LogMode:     envutil.String("LOG_MODE", "development"),
		HTTPAddr:    envutil.String("HTTP_ADDR", ":8080"),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "wrapped-backend"),
		Environment: envutil.String("ENVIRONMENT", "development"),
		Version:     envutil.String("SERVICE_VERSION", ""),
		CORSOrigins: splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),

		Embedding: embedding.Config{
			Dim:         envutil.Int("EMBED_DIM", 1536),
			BatchSize:   envutil.Int("EMBED_BATCH_SIZE", 50),
			MaxRetries:  envutil.Int("EMBED_MAX_RETRIES", 3),
			BackoffUnit: envutil.Millis("EMBED_BACKOFF_MS", time.Second),
			BatchDelay:  envutil.Millis("EMBED_BATCH_DELAY_MS", 500*time.Millisecond),
			CallTimeout: envutil.Seconds("EMBED_CALL_TIMEOUT_SECONDS", 60*time.Second),
			Workers:     envutil.Int("EMBED_WORKERS", 1),
			MaxChars:    envutil.Int("EMBED_MAX_CHARS", 24000),
		},
		ClusterK: envutil.Int("CLUSTER_K", clustering.DefaultK),
		Labeler: clustering.LabelerConfig{
			Attempts:    envutil.Int("LABEL_ATTEMPTS", 3),
			RetryDelay:  envutil.Millis("LABEL_RETRY_DELAY_MS", time.Second),
			CallTimeout: envutil.Seconds("LABEL_CALL_TIMEOUT_SECONDS", 30*time.Second),
		},
		Retrieval: retrieval.Config{
			TopN:        envutil.Int("RETRIEVAL_TOP_N", 50),
			MinScore:    envutil.Float("RETRIEVAL_MIN_SCORE", 0.25),
			BodyChars:   envutil.Int("RETRIEVAL_BODY_CHARS", 500),
			CallTimeout: envutil.Seconds("RETRIEVAL_CALL_TIMEOUT_SECONDS", 60*time.Second),
		},
		Analytics: services.AnalyticsConfig{
			DefaultUserID:   envutil.String("DEFAULT_USER_ID", ""),
			FetchPageSize:   envutil.Int("FETCH_PAGE_SIZE", 500),
			FetchMaxRecords: envutil.Int("FETCH_MAX_RECORDS", 36000),
			GraphTopK:       envutil.Int("GRAPH_TOP_K", 10),
			ExtractTimeout:  envutil.Seconds("EXTRACT_TIMEOUT_SECONDS", 30*time.Second),
			ChatTimeout:     envutil.Seconds("CHAT_TIMEOUT_SECONDS", 60*time.Second),
			Instance:        envutil.String("INSTANCE_ID", host),
		},

		ExtractMaxChars:   envutil.Int("EXTRACT_MAX_CHARS", 12000),
		RedisChannel:      envutil.String("REDIS_CHANNEL", "wrapped:refresh"),
		ReportCachePrefix: envutil.String("REPORT_CACHE_PREFIX", "wrapped:report"),
		ReportCacheTTL:    envutil.Seconds("REPORT_CACHE_TTL_SECONDS", 24*time.Hour),
		RefreshOnStart:    envutil.Bool("REFRESH_ON_START", true),
		ShutdownTimeout:   envutil.Seconds("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
	}
	return cfg
}

// applyOverlayFile sets every key of a flat YAML mapping as an environment
// variable unless the environment already defines it. It returns the keys
// that were applied.
func applyOverlayFile(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overlay: %w", err)
	}
	values, err := parseOverlay(raw)
	if err != nil {
		return nil, err
	}
	var applied []string
	for k, v := range values {
		if _, ok := os.LookupEnv(k); ok {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return applied, fmt.Errorf("set %s: %w", k, err)
		}
		applied = append(applied, k)
	}
	sort.Strings(applied)
	return applied, nil
}

// parseOverlay decodes a flat mapping of variable names to scalars. Keys are
// upper-cased; lists are joined with commas.
func parseOverlay(raw []byte) (map[string]string, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse overlay: %w", err)
	}
	out := make(map[string]string, len(doc))
	for k, v := range doc {
		key := strings.ToUpper(strings.TrimSpace(k))
		if key == "" || v == nil {
			continue
		}
		switch tv := v.(type) {
		case map[string]any:
			return nil, fmt.Errorf("parse overlay: key %s: nested mappings are not supported", key)
		case []any:
			parts := make([]string, 0, len(tv))
			for _, item := range tv {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		default:
			out[key] = fmt.Sprint(tv)
		}
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
