package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/wrapped-backend/internal/analytics/entitygraph"
	"github.com/yungbote/wrapped-backend/internal/analytics/wrapped"
	"github.com/yungbote/wrapped-backend/internal/data/graph"
	"github.com/yungbote/wrapped-backend/internal/data/repos"
	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
	"github.com/yungbote/wrapped-backend/internal/observability"
	"github.com/yungbote/wrapped-backend/internal/pkg/dbctx"
)

// AllUsers keys the graph report built over every stored conversation.
const AllUsers = "all"

type StoredReport struct {
	Kind        string          `json:"kind"`
	Year        int             `json:"year"`
	GeneratedAt time.Time       `json:"generated_at"`
	Payload     json.RawMessage `json:"payload"`
}

// Wrapped returns the user's usage summary for the current year. Unless fresh
// is set, a cached report is served before recomputing.
func (s *analyticsService) Wrapped(ctx context.Context, userID string, fresh bool) (wrapped.Summary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return wrapped.Summary{}, chatlog.NewError(chatlog.KindValidation, "wrapped", "user_id required", nil)
	}
	year := s.now().UTC().Year()

	var out wrapped.Summary
	if !fresh {
		if ok := s.loadReport(ctx, userID, chatlog.ReportWrapped, year, &out); ok {
			return out, nil
		}
	}

	rows, err := s.chatLogs.FetchAll(ctx, repos.ChatLogFilter{UserID: userID, Kind: chatlog.KindMessage}, s.cfg.FetchPageSize, s.cfg.FetchMaxRecords)
	if err != nil {
		return out, err
	}
	if len(rows) == 0 {
		return out, fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	records := make([]chatlog.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.Record())
	}

	ctx, span := observability.StartSpan(ctx, "analytics.wrapped")
	defer span.End()
	out, err = wrapped.Aggregate(ctx, records, wrapped.Options{
		UserID:      userID,
		Extractor:   s.extractor,
		CallTimeout: s.cfg.ExtractTimeout,
		Now:         s.now,
		Log:         s.log,
	})
	if err != nil {
		return out, err
	}
	s.storeReport(ctx, userID, chatlog.ReportWrapped, out.Year, out)
	return out, nil
}

// Graph builds the entity co-occurrence summary over the user's
// conversations, or over every conversation when userID is empty. The result
// is stored and, when a graph database is configured, mirrored there.
func (s *analyticsService) Graph(ctx context.Context, userID string, topK int) (entitygraph.Summary, error) {
	userID = strings.TrimSpace(userID)
	if topK <= 0 {
		topK = s.cfg.GraphTopK
	}
	key := userID
	if key == "" {
		key = AllUsers
	}

	rows, err := s.chatLogs.FetchAll(ctx, repos.ChatLogFilter{UserID: userID, Kind: chatlog.KindConversation}, s.cfg.FetchPageSize, s.cfg.FetchMaxRecords)
	if err != nil {
		return entitygraph.Summary{}, err
	}
	if userID != "" && len(rows) == 0 {
		return entitygraph.Summary{}, fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}

	ctx, span := observability.StartSpan(ctx, "analytics.graph")
	defer span.End()
	b := entitygraph.NewBuilder(s.log, s.extractor, s.cfg.ExtractTimeout)
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return entitygraph.Summary{}, err
		}
		b.Ingest(ctx, row.Body)
	}
	out := b.Summarize(topK)
	if n := b.Failures(); n > 0 {
		s.log.Warn("entity graph built with extraction failures", "user_id", key, "failures", n)
	}

	s.storeReport(ctx, key, chatlog.ReportGraph, s.now().UTC().Year(), out)
	if err := graph.UpsertEntityGraph(ctx, s.graph, s.log, key, out); err != nil {
		s.log.Warn("neo4j entity graph sync failed", "user_id", key, "error", err)
	}
	return out, nil
}

// loadReport serves a cached report. Stored rows are history only; ingest
// invalidates the cache but not the table.
func (s *analyticsService) loadReport(ctx context.Context, userID, kind string, year int, out any) bool {
	if s.reportCache == nil {
		return false
	}
	raw, ok, err := s.reportCache.Get(ctx, userID, kind, year)
	if err != nil {
		s.log.Warn("report cache get failed", "user_id", userID, "kind", kind, "error", err)
		return false
	}
	return ok && json.Unmarshal(raw, out) == nil
}

// Reports lists the stored reports of a user, newest year first.
func (s *analyticsService) Reports(ctx context.Context, userID string) ([]StoredReport, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, chatlog.NewError(chatlog.KindValidation, "reports", "user_id required", nil)
	}
	if s.reports == nil {
		return []StoredReport{}, nil
	}
	rows, err := s.reports.ListByUser(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return nil, err
	}
	out := make([]StoredReport, 0, len(rows))
	for _, row := range rows {
		out = append(out, StoredReport{
			Kind:        row.Kind,
			Year:        row.Year,
			GeneratedAt: row.GeneratedAt,
			Payload:     json.RawMessage(row.Payload),
		})
	}
	return out, nil
}

// storeReport persists and caches a freshly computed report. Failures are
// logged; the caller already has the result.
func (s *analyticsService) storeReport(ctx context.Context, userID, kind string, year int, payload any) {
	if s.reports != nil {
		if _, err := s.reports.Save(dbctx.Context{Ctx: ctx}, userID, kind, year, payload, s.now().UTC()); err != nil {
			s.log.Warn("report save failed", "user_id", userID, "kind", kind, "error", err)
		}
	}
	if s.reportCache == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.reportCache.Set(ctx, userID, kind, year, raw); err != nil {
		s.log.Warn("report cache set failed", "user_id", userID, "kind", kind, "error", err)
	}
}
