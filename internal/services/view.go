package services

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/wrapped-backend/internal/analytics/projection"
	"github.com/yungbote/wrapped-backend/internal/cache"
	"github.com/yungbote/wrapped-backend/internal/data/graph"
	"github.com/yungbote/wrapped-backend/internal/data/repos"
	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
	"github.com/yungbote/wrapped-backend/internal/observability"
)

const (
	reasonRefresh      = "refresh"
	peerRefreshTimeout = 5 * time.Minute
)

// Point is one conversation placed in the 3D topic map.
type Point struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	ConversationID   string    `json:"conversation_id"`
	Title            string    `json:"title"`
	CreatedAt        time.Time `json:"created_at"`
	Cluster          int       `json:"cluster"`
	ClusterTitle     string    `json:"cluster_title"`
	X                float64   `json:"x"`
	Y                float64   `json:"y"`
	Z                float64   `json:"z"`
	EmbeddingMissing bool      `json:"embedding_missing"`
}

type DateRange struct {
	Min *time.Time `json:"min"`
	Max *time.Time `json:"max"`
}

type Stats struct {
	TotalConversations int       `json:"total_conversations"`
	UniqueUsers        int       `json:"unique_users"`
	UniqueClusters     int       `json:"unique_clusters"`
	DateRange          DateRange `json:"date_range"`
	LastUpdated        time.Time `json:"last_updated"`
}

// View is the immutable analytics snapshot served to readers. Docs, Points
// and the per-user index are aligned.
type View struct {
	Docs     []chatlog.Document     `json:"-"`
	Points   []Point                `json:"points"`
	Clusters []chatlog.UserClusters `json:"clusters"`
	Stats    Stats                  `json:"stats"`

	byUser map[string][]int
}

// UserDocs returns the documents of one user in view order.
func (v *View) UserDocs(userID string) []chatlog.Document {
	if v == nil {
		return nil
	}
	idx := v.byUser[userID]
	out := make([]chatlog.Document, 0, len(idx))
	for _, i := range idx {
		out = append(out, v.Docs[i])
	}
	return out
}

func (v *View) HasUser(userID string) bool {
	if v == nil {
		return false
	}
	_, ok := v.byUser[userID]
	return ok
}

// Find returns the document with the given row id or conversation id.
func (v *View) Find(userID, id string) (chatlog.Document, bool) {
	if v == nil || id == "" {
		return chatlog.Document{}, false
	}
	for _, i := range v.byUser[userID] {
		d := v.Docs[i]
		if d.ID == id || d.ConversationID == id {
			return d, true
		}
	}
	return chatlog.Document{}, false
}

// View returns the current snapshot, or nil before the first refresh.
func (s *analyticsService) View() *View {
	return s.view.Load()
}

// Refresh rebuilds the snapshot from the store. Readers keep the previous
// snapshot until the new one is complete; on error it stays in place.
func (s *analyticsService) Refresh(ctx context.Context, reason string) (*View, error) {
	if reason == "" {
		reason = reasonRefresh
	}
	start := time.Now()
	v, err := s.view.Refresh(ctx, func(ctx context.Context, _ *View) (*View, error) {
		return s.buildView(ctx)
	})
	if err != nil {
		observability.Current().IncRefresh("error")
		s.log.Warn("view refresh failed", "reason", reason, "error", err)
		return v, err
	}
	observability.Current().IncRefresh("ok")
	s.log.Info("view refreshed",
		"reason", reason,
		"conversations", v.Stats.TotalConversations,
		"users", v.Stats.UniqueUsers,
		"dur_ms", time.Since(start).Milliseconds(),
	)
	s.syncTopics(ctx, v)
	s.announce(ctx, reasonRefresh, "", v.Stats.TotalConversations)
	return v, nil
}

func (s *analyticsService) buildView(ctx context.Context) (*View, error) {
	ctx, span := observability.StartSpan(ctx, "analytics.view.build")
	defer span.End()

	rows, err := s.chatLogs.FetchAll(ctx, repos.ChatLogFilter{Kind: chatlog.KindConversation}, s.cfg.FetchPageSize, s.cfg.FetchMaxRecords)
	if err != nil {
		return nil, err
	}
	docs := make([]chatlog.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, chatlog.DocumentFromRow(row))
	}
	span.SetAttributes(attribute.Int("view.documents", len(docs)))

	res, err := s.clusterer.ClusterUsers(ctx, docs)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(docs))
	for i, d := range docs {
		if !d.EmbeddingMissing {
			vectors[i] = d.Vector
		}
	}
	coords := projection.Project3D(vectors)

	v := &View{
		Docs:     docs,
		Points:   make([]Point, len(docs)),
		Clusters: res.Users,
		byUser:   map[string][]int{},
	}
	titles := map[string]struct{}{}
	for i, d := range docs {
		a := res.Assignments[i]
		v.Points[i] = Point{
			ID:               d.ID,
			UserID:           d.UserID,
			ConversationID:   d.ConversationID,
			Title:            d.Title,
			CreatedAt:        d.CreatedAt,
			Cluster:          a.ClusterID,
			ClusterTitle:     a.ClusterTitle,
			X:                coords[i][0],
			Y:                coords[i][1],
			Z:                coords[i][2],
			EmbeddingMissing: d.EmbeddingMissing,
		}
		v.byUser[d.UserID] = append(v.byUser[d.UserID], i)
		titles[a.ClusterTitle] = struct{}{}
	}
	v.Stats = buildStats(docs, len(v.byUser), len(titles), s.now().UTC())
	return v, nil
}

func buildStats(docs []chatlog.Document, users, clusters int, now time.Time) Stats {
	st := Stats{
		TotalConversations: len(docs),
		UniqueUsers:        users,
		UniqueClusters:     clusters,
		LastUpdated:        now,
	}
	if len(docs) == 0 {
		return st
	}
	times := make([]time.Time, 0, len(docs))
	for _, d := range docs {
		times = append(times, d.CreatedAt)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	lo, hi := times[0], times[len(times)-1]
	st.DateRange = DateRange{Min: &lo, Max: &hi}
	return st
}

func (s *analyticsService) syncTopics(ctx context.Context, v *View) {
	if s.graph == nil || v == nil {
		return
	}
	for _, uc := range v.Clusters {
		if err := graph.UpsertTopics(ctx, s.graph, s.log, uc); err != nil {
			s.log.Warn("neo4j topic sync failed", "user_id", uc.UserID, "error", err)
		}
	}
}

// StartRefreshListener rebuilds the local view whenever a peer reports that
// stored data changed. Peer view rebuilds are ignored.
func (s *analyticsService) StartRefreshListener(ctx context.Context) error {
	if s.bus == nil {
		return nil
	}
	return s.bus.StartForwarder(ctx, func(ev cache.RefreshEvent) {
		if !shouldRefreshOn(ev, s.cfg.Instance) {
			return
		}
		rctx, cancel := context.WithTimeout(ctx, peerRefreshTimeout)
		defer cancel()
		if _, err := s.Refresh(rctx, "peer:"+ev.Reason); err != nil {
			s.log.Warn("peer-triggered refresh failed", "peer", ev.Instance, "error", err)
		}
	})
}

func shouldRefreshOn(ev cache.RefreshEvent, self string) bool {
	if ev.Reason == reasonRefresh {
		return false
	}
	return self == "" || ev.Instance != self
}
