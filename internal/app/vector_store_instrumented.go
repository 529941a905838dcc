package app

import (
	"context"
	"time"

	"github.com/yungbote/wrapped-backend/internal/observability"
	"github.com/yungbote/wrapped-backend/internal/platform/qdrant"
	"github.com/yungbote/wrapped-backend/internal/services"
)

type instrumentedPointIndex struct {
	provider string
	inner    services.PointIndex
	metrics  *observability.Metrics
}

func instrumentPointIndex(provider string, inner services.PointIndex, metrics *observability.Metrics) services.PointIndex {
	if inner == nil {
		return nil
	}
	return &instrumentedPointIndex{provider: provider, inner: inner, metrics: metrics}
}

func (s *instrumentedPointIndex) Upsert(ctx context.Context, points []qdrant.Point) error {
	start := time.Now()
	err := s.inner.Upsert(ctx, points)
	s.observe("upsert", err, time.Since(start))
	return err
}

func (s *instrumentedPointIndex) Delete(ctx context.Context, ids []string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, ids)
	s.observe("delete", err, time.Since(start))
	return err
}

func (s *instrumentedPointIndex) Search(ctx context.Context, userID string, q []float32, limit int) ([]qdrant.Match, error) {
	start := time.Now()
	out, err := s.inner.Search(ctx, userID, q, limit)
	s.observe("search", err, time.Since(start))
	return out, err
}

func (s *instrumentedPointIndex) observe(operation string, err error, dur time.Duration) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.ObserveVectorStoreOperation(s.provider, operation, status, dur)
}
