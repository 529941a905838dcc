package chatlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/wrapped-backend/internal/domain"
	cl "github.com/yungbote/wrapped-backend/internal/domain/chatlog"
	"github.com/yungbote/wrapped-backend/internal/pkg/dbctx"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
)

const (
	DefaultPageSize   = 500
	DefaultMaxRecords = 36000
	upsertChunk       = 500
)

// Filter narrows reads. Empty fields match everything.
type Filter struct {
	UserID string
	Kind   string
}

type ChatLogRepo interface {
	UpsertBatch(dbc dbctx.Context, rows []*types.ChatLog) error
	UpdateEmbeddings(dbc dbctx.Context, recs []types.EmbeddingRecord) error
	ListPage(dbc dbctx.Context, f Filter, offset, limit int) ([]*types.ChatLog, error)
	Count(dbc dbctx.Context, f Filter) (int64, error)
	ListUsers(dbc dbctx.Context) ([]string, error)
	FetchAll(ctx context.Context, f Filter, pageSize, maxRecords int) ([]*types.ChatLog, error)
	UpsertEmbeddings(ctx context.Context, recs []types.EmbeddingRecord) error
}

type chatLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatLogRepo(db *gorm.DB, baseLog *logger.Logger) ChatLogRepo {
	return &chatLogRepo{
		db:  db,
		log: baseLog.With("repo", "ChatLogRepo"),
	}
}

func (r *chatLogRepo) tx(dbc dbctx.Context) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return t.WithContext(ctx)
}

// UpsertBatch inserts rows or refreshes their content by id. Stored
// embeddings are left untouched.
func (r *chatLogRepo) UpsertBatch(dbc dbctx.Context, rows []*types.ChatLog) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	clean := make([]*types.ChatLog, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		row.UpdatedAt = now
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		clean = append(clean, row)
	}
	for start := 0; start < len(clean); start += upsertChunk {
		chunk := clean[start:min(start+upsertChunk, len(clean))]
		err := withRetry(dbc.Ctx, writeAttempts, func() error {
			return r.tx(dbc).Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"title",
					"author_role",
					"body",
					"company",
					"attachments",
					"updated_at",
				}),
			}).Create(&chunk).Error
		})
		if err != nil {
			return cl.Wrap(cl.KindPersistence, "chat_logs.upsert", err)
		}
	}
	return nil
}

// UpdateEmbeddings writes vectors onto existing rows in one transaction,
// retrying transient failures.
func (r *chatLogRepo) UpdateEmbeddings(dbc dbctx.Context, recs []types.EmbeddingRecord) error {
	return r.writeEmbeddings(dbc, recs, writeAttempts)
}

// UpsertEmbeddings is the pipeline store contract. It makes a single attempt;
// the pipeline owns the retry budget for embedding writes.
func (r *chatLogRepo) UpsertEmbeddings(ctx context.Context, recs []types.EmbeddingRecord) error {
	return r.writeEmbeddings(dbctx.Context{Ctx: ctx}, recs, 1)
}

func (r *chatLogRepo) writeEmbeddings(dbc dbctx.Context, recs []types.EmbeddingRecord, attempts int) error {
	if len(recs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	err := withRetry(dbc.Ctx, attempts, func() error {
		return r.tx(dbc).Transaction(func(txx *gorm.DB) error {
			missingRows := 0
			for _, rec := range recs {
				doc, err := cl.EncodeEmbedding(rec.Vector)
				if err != nil {
					return fmt.Errorf("encode embedding %s: %w", rec.ID, err)
				}
				res := txx.Model(&types.ChatLog{}).
					Where("id = ?", rec.ID).
					Updates(map[string]any{
						"embeddings_json":   doc,
						"embedding_dim":     rec.Dim,
						"embedding_missing": rec.Missing,
						"embedded_at":       now,
						"updated_at":        now,
					})
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected == 0 {
					missingRows++
				}
			}
			if missingRows > 0 {
				r.log.Warn("embedding update matched no row", "count", missingRows)
			}
			return nil
		})
	})
	if err != nil {
		return cl.Wrap(cl.KindPersistence, "chat_logs.update_embeddings", err)
	}
	return nil
}

func (r *chatLogRepo) scoped(dbc dbctx.Context, f Filter) *gorm.DB {
	q := r.tx(dbc).Model(&types.ChatLog{})
	if uid := strings.TrimSpace(f.UserID); uid != "" {
		q = q.Where("user_id = ?", uid)
	}
	if kind := strings.TrimSpace(f.Kind); kind != "" {
		q = q.Where("kind = ?", kind)
	}
	return q
}

func (r *chatLogRepo) ListPage(dbc dbctx.Context, f Filter, offset, limit int) ([]*types.ChatLog, error) {
	if offset < 0 || limit <= 0 {
		return nil, cl.NewError(cl.KindValidation, "chat_logs.list", fmt.Sprintf("bad page offset=%d limit=%d", offset, limit), nil)
	}
	var out []*types.ChatLog
	if err := r.scoped(dbc, f).
		Order("created_at ASC").
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, cl.Wrap(cl.KindPersistence, "chat_logs.list", err)
	}
	return out, nil
}

func (r *chatLogRepo) Count(dbc dbctx.Context, f Filter) (int64, error) {
	var n int64
	if err := r.scoped(dbc, f).Count(&n).Error; err != nil {
		return 0, cl.Wrap(cl.KindPersistence, "chat_logs.count", err)
	}
	return n, nil
}

func (r *chatLogRepo) ListUsers(dbc dbctx.Context) ([]string, error) {
	var out []string
	if err := r.tx(dbc).Model(&types.ChatLog{}).
		Distinct("user_id").
		Order("user_id ASC").
		Pluck("user_id", &out).Error; err != nil {
		return nil, cl.Wrap(cl.KindPersistence, "chat_logs.users", err)
	}
	return out, nil
}

// FetchAll pages through matching rows until a short page or maxRecords.
func (r *chatLogRepo) FetchAll(ctx context.Context, f Filter, pageSize, maxRecords int) ([]*types.ChatLog, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	dbc := dbctx.Context{Ctx: ctx}
	out := make([]*types.ChatLog, 0, min(pageSize, maxRecords))
	for offset := 0; offset < maxRecords; offset += pageSize {
		limit := min(pageSize, maxRecords-offset)
		page, err := r.ListPage(dbc, f, offset, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < limit {
			break
		}
	}
	if len(out) >= maxRecords {
		r.log.Warn("fetch hit record cap", "cap", maxRecords, "user_id", f.UserID, "kind", f.Kind)
	}
	return out, nil
}
