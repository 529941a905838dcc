package qdrant

import (
	"errors"
	"testing"
)

func TestResolveConfigFromEnvValid(t *testing.T) {
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("QDRANT_COLLECTION", "")
	t.Setenv("QDRANT_VECTOR_DIM", "")

	cfg, err := ResolveConfigFromEnv(1536)
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.Collection != "wrapped_conversations" {
		t.Fatalf("Collection: want=%q got=%q", "wrapped_conversations", cfg.Collection)
	}
	if cfg.VectorDim != 1536 {
		t.Fatalf("VectorDim: want=1536 got=%d", cfg.VectorDim)
	}
}

func TestResolveConfigFromEnvErrors(t *testing.T) {
	cases := []struct {
		url, dim string
		want     ConfigErrorCode
	}{
		{"", "", ConfigErrorMissingURL},
		{"qdrant:6333", "", ConfigErrorInvalidURL},
		{"http://qdrant:6333", "abc", ConfigErrorInvalidVectorDim},
		{"http://qdrant:6333", "0", ConfigErrorInvalidVectorDim},
	}
	for _, tc := range cases {
		t.Setenv("QDRANT_URL", tc.url)
		t.Setenv("QDRANT_VECTOR_DIM", tc.dim)
		_, err := ResolveConfigFromEnv(8)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("url=%q dim=%q: expected *ConfigError, got=%T", tc.url, tc.dim, err)
		}
		if cfgErr.Code != tc.want {
			t.Fatalf("url=%q dim=%q: code want=%q got=%q", tc.url, tc.dim, tc.want, cfgErr.Code)
		}
	}
}
