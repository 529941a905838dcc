package services

import (
	"context"
	"fmt"

	"github.com/yungbote/wrapped-backend/internal/analytics/embedding"
	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
	"github.com/yungbote/wrapped-backend/internal/platform/qdrant"
)

// PointIndex is the vector index surface the mirror needs.
type PointIndex interface {
	Upsert(ctx context.Context, points []qdrant.Point) error
	Delete(ctx context.Context, ids []string) error
	Search(ctx context.Context, userID string, q []float32, limit int) ([]qdrant.Match, error)
}

// VectorMirror keeps conversation embeddings in an external vector index and
// serves candidate prefiltering for search. Zero-vector fallbacks are removed
// from the index instead of stored.
type VectorMirror struct {
	log   *logger.Logger
	index PointIndex
}

func NewVectorMirror(log *logger.Logger, index PointIndex) *VectorMirror {
	if log == nil {
		log = logger.NewNop()
	}
	return &VectorMirror{log: log.With("service", "VectorMirror"), index: index}
}

func (m *VectorMirror) MirrorEmbeddings(ctx context.Context, items []embedding.Item, recs []chatlog.EmbeddingRecord) error {
	if m == nil || m.index == nil || len(recs) == 0 {
		return nil
	}
	byID := make(map[string]embedding.Item, len(items))
	for _, it := range items {
		byID[it.ID.String()] = it
	}

	points := make([]qdrant.Point, 0, len(recs))
	var stale []string
	for _, r := range recs {
		id := r.ID.String()
		if r.Missing {
			stale = append(stale, id)
			continue
		}
		it := byID[id]
		points = append(points, qdrant.Point{
			ID:             id,
			Vector:         r.Vector,
			UserID:         it.UserID,
			ConversationID: it.ConversationID,
			Title:          it.Title,
		})
	}
	if len(points) > 0 {
		if err := m.index.Upsert(ctx, points); err != nil {
			return fmt.Errorf("mirror upsert: %w", err)
		}
	}
	if len(stale) > 0 {
		if err := m.index.Delete(ctx, stale); err != nil {
			return fmt.Errorf("mirror delete: %w", err)
		}
	}
	m.log.Debug("mirrored embeddings", "upserted", len(points), "removed", len(stale))
	return nil
}

// Candidates returns the row ids of the user's nearest conversations.
func (m *VectorMirror) Candidates(ctx context.Context, userID string, q []float32, limit int) (map[string]struct{}, error) {
	if m == nil || m.index == nil {
		return nil, fmt.Errorf("vector mirror not configured")
	}
	matches, err := m.index.Search(ctx, userID, q, limit)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(matches))
	for _, mt := range matches {
		out[mt.ID] = struct{}{}
	}
	return out, nil
}

var _ embedding.Mirror = (*VectorMirror)(nil)
