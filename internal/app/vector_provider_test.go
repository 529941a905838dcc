package app

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/wrapped-backend/internal/platform/logger"
	"github.com/yungbote/wrapped-backend/internal/platform/qdrant"
	"github.com/yungbote/wrapped-backend/internal/services"
)

func TestResolveVectorProviderDefaultsToNone(t *testing.T) {
	t.Setenv("VECTOR_PROVIDER", "")
	t.Setenv("QDRANT_URL", "")

	cfg, err := resolveVectorProviderConfig(1536)
	if err != nil {
		t.Fatalf("resolveVectorProviderConfig: %v", err)
	}
	if cfg.Provider != VectorProviderNone {
		t.Fatalf("provider: want=%q got=%q", VectorProviderNone, cfg.Provider)
	}
}

func TestResolveVectorProviderFromQdrantURL(t *testing.T) {
	t.Setenv("VECTOR_PROVIDER", "")
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("QDRANT_COLLECTION", "wrapped")
	t.Setenv("QDRANT_VECTOR_DIM", "")

	cfg, err := resolveVectorProviderConfig(768)
	if err != nil {
		t.Fatalf("resolveVectorProviderConfig: %v", err)
	}
	if cfg.Provider != VectorProviderQdrant || cfg.Source != "qdrant_url_default" {
		t.Fatalf("provider: got=%q source=%q", cfg.Provider, cfg.Source)
	}
	if cfg.Qdrant.VectorDim != 768 {
		t.Fatalf("vector dim follows embedding: want=768 got=%d", cfg.Qdrant.VectorDim)
	}
}

func TestResolveVectorProviderErrors(t *testing.T) {
	cases := []struct {
		name     string
		provider string
		url      string
		dim      string
		code     VectorProviderConfigErrorCode
	}{
		{"unknown provider", "pinecone", "", "", VectorProviderConfigErrorInvalidProvider},
		{"explicit qdrant without url", "qdrant", "", "", VectorProviderConfigErrorMissingQdrantURL},
		{"relative url", "qdrant", "qdrant:6333", "", VectorProviderConfigErrorInvalidQdrantURL},
		{"bad dim", "qdrant", "http://qdrant:6333", "abc", VectorProviderConfigErrorInvalidQdrantVector},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("VECTOR_PROVIDER", tc.provider)
			t.Setenv("QDRANT_URL", tc.url)
			t.Setenv("QDRANT_VECTOR_DIM", tc.dim)

			_, err := resolveVectorProviderConfig(1536)
			var got *VectorProviderConfigError
			if !errors.As(err, &got) {
				t.Fatalf("error type: want=*VectorProviderConfigError got=%T (%v)", err, err)
			}
			if got.Code != tc.code {
				t.Fatalf("code: want=%q got=%q", tc.code, got.Code)
			}
		})
	}
}

func TestBootstrapVectorIndexWrapsConnectFailure(t *testing.T) {
	t.Setenv("VECTOR_PROVIDER", "qdrant")
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("QDRANT_VECTOR_DIM", "")

	prev := newQdrantVectorStore
	t.Cleanup(func() { newQdrantVectorStore = prev })
	dial := errors.New("connection refused")
	newQdrantVectorStore = func(context.Context, *logger.Logger, qdrant.Config) (services.PointIndex, error) {
		return nil, dial
	}

	_, err := bootstrapVectorIndex(context.Background(), logger.NewNop(), 3, nil)
	var got *VectorProviderConfigError
	if !errors.As(err, &got) || got.Code != VectorProviderConfigErrorConnectFailed {
		t.Fatalf("error: want connect_failed got=%v", err)
	}
	if !errors.Is(err, dial) {
		t.Fatalf("cause not preserved: %v", err)
	}
}

func TestBootstrapVectorIndexInstruments(t *testing.T) {
	t.Setenv("VECTOR_PROVIDER", "qdrant")
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("QDRANT_VECTOR_DIM", "")

	prev := newQdrantVectorStore
	t.Cleanup(func() { newQdrantVectorStore = prev })
	inner := &fakePointIndex{}
	newQdrantVectorStore = func(context.Context, *logger.Logger, qdrant.Config) (services.PointIndex, error) {
		return inner, nil
	}

	idx, err := bootstrapVectorIndex(context.Background(), logger.NewNop(), 3, nil)
	if err != nil {
		t.Fatalf("bootstrapVectorIndex: %v", err)
	}
	if _, ok := idx.(*instrumentedPointIndex); !ok {
		t.Fatalf("index type: want=*instrumentedPointIndex got=%T", idx)
	}
}
