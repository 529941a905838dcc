package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/wrapped-backend/internal/analytics/embedding"
	"github.com/yungbote/wrapped-backend/internal/analytics/normalize"
	"github.com/yungbote/wrapped-backend/internal/analytics/transcript"
	"github.com/yungbote/wrapped-backend/internal/cache"
	"github.com/yungbote/wrapped-backend/internal/data/repos"
	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
	"github.com/yungbote/wrapped-backend/internal/observability"
	"github.com/yungbote/wrapped-backend/internal/pkg/dbctx"
)

type IngestInput struct {
	Table         normalize.Table
	DefaultUserID string
	Embed         bool
	StartBatch    int
}

type IngestResult struct {
	Normalize     normalize.Report  `json:"normalize"`
	Users         []string          `json:"users"`
	Messages      int               `json:"messages"`
	Conversations int               `json:"conversations"`
	Embedding     *embedding.Result `json:"embedding,omitempty"`
}

// Ingest normalizes a raw table, stores message and conversation rows and,
// when requested, embeds the conversations. A schema error stores nothing.
func (s *analyticsService) Ingest(ctx context.Context, in IngestInput) (IngestResult, error) {
	ctx, span := observability.StartSpan(ctx, "analytics.ingest")
	defer span.End()

	var out IngestResult
	records, report, err := normalize.Normalize(in.Table, s.normalizeOptions(in.DefaultUserID))
	out.Normalize = report
	if err != nil {
		return out, err
	}
	observability.Current().AddNormalized(report.Kept, report.Dropped, report.Skipped)

	convs := transcript.Reconstruct(records)
	rows := make([]*chatlog.ChatLog, 0, len(records)+len(convs))
	users := map[string]struct{}{}
	for _, r := range records {
		rows = append(rows, chatlog.MessageRow(r))
		if _, ok := users[r.UserID]; !ok {
			users[r.UserID] = struct{}{}
			out.Users = append(out.Users, r.UserID)
		}
	}
	convRows := make([]*chatlog.ChatLog, 0, len(convs))
	for _, c := range convs {
		convRows = append(convRows, chatlog.ConversationRow(c))
	}
	rows = append(rows, convRows...)
	out.Messages = len(records)
	out.Conversations = len(convs)
	span.SetAttributes(
		attribute.Int("ingest.messages", out.Messages),
		attribute.Int("ingest.conversations", out.Conversations),
	)

	if err := s.chatLogs.UpsertBatch(dbctx.Context{Ctx: ctx}, rows); err != nil {
		return out, err
	}
	s.log.Info("ingested export",
		"messages", out.Messages,
		"conversations", out.Conversations,
		"dropped", report.Dropped,
		"skipped", report.Skipped,
	)

	if in.Embed {
		res, err := s.embedRows(ctx, convRows, in.StartBatch)
		out.Embedding = &res
		if err != nil {
			return out, err
		}
	}

	for _, u := range out.Users {
		s.invalidateReports(ctx, u)
	}
	s.invalidateReports(ctx, AllUsers)
	s.announce(ctx, "ingest", "", out.Conversations)
	return out, nil
}

// Reembed recomputes the embeddings of every conversation of one user.
func (s *analyticsService) Reembed(ctx context.Context, userID string, startBatch int) (embedding.Result, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return embedding.Result{}, chatlog.NewError(chatlog.KindValidation, "reembed", "user_id required", nil)
	}
	rows, err := s.chatLogs.FetchAll(ctx, repos.ChatLogFilter{UserID: userID, Kind: chatlog.KindConversation}, s.cfg.FetchPageSize, s.cfg.FetchMaxRecords)
	if err != nil {
		return embedding.Result{}, err
	}
	if len(rows) == 0 {
		return embedding.Result{}, fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	res, err := s.embedRows(ctx, rows, startBatch)
	if err != nil {
		return res, err
	}
	s.announce(ctx, "reembed", userID, len(rows))
	return res, nil
}

func (s *analyticsService) embedRows(ctx context.Context, rows []*chatlog.ChatLog, startBatch int) (embedding.Result, error) {
	if s.pipeline == nil {
		return embedding.Result{}, chatlog.NewError(chatlog.KindValidation, "embed", "embedding pipeline not configured", nil)
	}
	items := make([]embedding.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, embedding.Item{
			ID:             row.ID,
			UserID:         row.UserID,
			ConversationID: row.ConversationID,
			Title:          row.Title,
			Text:           row.Body,
		})
	}
	start := time.Now()
	res, err := s.pipeline.Run(ctx, items, startBatch)
	if err != nil {
		s.log.Warn("embedding run failed",
			"items", len(items),
			"last_completed_batch", res.LastCompletedBatch,
			"error", err,
		)
		return res, err
	}
	s.log.Info("embedding run complete",
		"items", len(items),
		"embedded", res.Embedded,
		"zero_vectors", res.ZeroVectors,
		"dur_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (s *analyticsService) invalidateReports(ctx context.Context, userID string) {
	if s.reportCache == nil {
		return
	}
	if err := s.reportCache.Invalidate(ctx, userID); err != nil {
		s.log.Warn("report cache invalidate failed", "user_id", userID, "error", err)
	}
}

// announce tells peers that stored data or the view changed. Publishing is
// best effort.
func (s *analyticsService) announce(ctx context.Context, reason, userID string, docs int) {
	if s.bus == nil {
		return
	}
	ev := cache.RefreshEvent{
		Instance:  s.cfg.Instance,
		Reason:    reason,
		UserID:    userID,
		Documents: docs,
		At:        s.now().UTC(),
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Warn("refresh publish failed", "reason", reason, "error", err)
	}
}
