package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yungbote/wrapped-backend/internal/platform/logger"
)

func TestParseOverlayFlattensScalarsAndLists(t *testing.T) {
	raw := []byte("embed_dim: 768\nretrieval_min_score: 0.3\nrefresh_on_start: false\ncors_allowed_origins:\n  - http://a\n  - http://b\n")
	got, err := parseOverlay(raw)
	if err != nil {
		t.Fatalf("parseOverlay: %v", err)
	}
	want := map[string]string{
		"EMBED_DIM":            "768",
		"RETRIEVAL_MIN_SCORE":  "0.3",
		"REFRESH_ON_START":     "false",
		"CORS_ALLOWED_ORIGINS": "http://a,http://b",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s: want=%q got=%q", k, v, got[k])
		}
	}
}

func TestParseOverlayRejectsNesting(t *testing.T) {
	if _, err := parseOverlay([]byte("qdrant:\n  url: http://q\n")); err == nil {
		t.Fatalf("nested mapping: want error")
	}
}

func TestLoadConfigEnvBeatsOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wrapped.yaml")
	if err := os.WriteFile(path, []byte("EMBED_BATCH_SIZE: 7\nCLUSTER_K: 9\n"), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("ANALYTICS_CONFIG_FILE", path)
	t.Setenv("CLUSTER_K", "3")
	t.Setenv("EMBED_BATCH_SIZE", "")
	os.Unsetenv("EMBED_BATCH_SIZE")

	cfg := LoadConfig(logger.NewNop())
	if cfg.Embedding.BatchSize != 7 {
		t.Fatalf("batch size from overlay: want=7 got=%d", cfg.Embedding.BatchSize)
	}
	if cfg.ClusterK != 3 {
		t.Fatalf("cluster k from env: want=3 got=%d", cfg.ClusterK)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ANALYTICS_CONFIG_FILE", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "")
	cfg := LoadConfig(logger.NewNop())
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("addr: want=:8080 got=%q", cfg.HTTPAddr)
	}
	if cfg.ReportCacheTTL != 24*time.Hour {
		t.Fatalf("ttl: want=24h got=%v", cfg.ReportCacheTTL)
	}
	if cfg.Retrieval.MinScore != 0.25 {
		t.Fatalf("min score: want=0.25 got=%v", cfg.Retrieval.MinScore)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" http://a , ,http://b")
	if len(got) != 2 || got[0] != "http://a" || got[1] != "http://b" {
		t.Fatalf("splitList: got=%v", got)
	}
}
